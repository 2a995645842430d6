package engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/graphrec/core"
	"github.com/rushteam/graphrec/filter"
	"github.com/rushteam/graphrec/pipeline"
	"github.com/rushteam/graphrec/recall"
	"github.com/rushteam/graphrec/rerank"
	"github.com/rushteam/graphrec/store"
)

const moviesCSV = `id,title,genres
1,Heat,Action
2,Ronin,Action
3,Casino,Drama
4,Alien,Horror
`

const ratingsCSV = `userId,movieId,rating
10,1,4.0
10,2,5.0
20,1,3.0
20,2,3.5
20,3,4.0
30,4,1.0
40,3,2.0
`

// brokenCache 的所有操作都失败。
type brokenCache struct{}

func (brokenCache) Name() string                                      { return "broken" }
func (brokenCache) Get(context.Context, string) ([]byte, error)       { return nil, errors.New("down") }
func (brokenCache) Set(context.Context, string, []byte, ...int) error { return errors.New("down") }
func (brokenCache) Delete(context.Context, string) error              { return errors.New("down") }
func (brokenCache) Incr(context.Context, string) (int64, error)       { return 0, errors.New("down") }
func (brokenCache) Close() error                                      { return nil }

func newLoadedEngine(t *testing.T, opts Options) (*Engine, *store.MemoryGraph) {
	t.Helper()
	g := store.NewMemoryGraph()
	opts.Graph = g
	e, err := New(opts)
	require.NoError(t, err)
	_, err = e.LoadDataset(context.Background(), strings.NewReader(moviesCSV), strings.NewReader(ratingsCSV), 2000)
	require.NoError(t, err)
	return e, g
}

func titlesOf(recs []core.Recommendation) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Title)
	}
	return out
}

func TestEngine_ResolveContentAfterMaterialize(t *testing.T) {
	ctx := context.Background()
	e, g := newLoadedEngine(t, Options{})

	stats, err := e.MaterializeSimilarities(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Pages)
	assert.Equal(t, [][2]string{{"1", "2"}}, g.Edges(core.RelSimilar))

	recs, err := e.Resolve(ctx, "10", "1")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, core.Recommendation{ItemID: "2", Title: "Ronin", Attribute: "Action", Source: "recall.content"}, recs[0])
}

func TestEngine_ResolveFallsBackToCollaborative(t *testing.T) {
	ctx := context.Background()
	e, g := newLoadedEngine(t, Options{})
	_, err := e.MaterializeSimilarities(ctx, 0)
	require.NoError(t, err)

	recs, err := e.Resolve(ctx, "10", "3")
	require.NoError(t, err)

	direct, err := (&recall.UserBasedCF{Graph: g}).Recall(ctx, &core.RecommendContext{UserID: "10"})
	require.NoError(t, err)
	require.NotEmpty(t, direct)

	assert.Equal(t, []string{"Casino"}, titlesOf(recs))
	assert.Equal(t, direct[0].Title, recs[0].Title)
	assert.Equal(t, "recall.u2i", recs[0].Source)
}

func TestEngine_ResolveEmptyIsNotAnError(t *testing.T) {
	ctx := context.Background()
	e, _ := newLoadedEngine(t, Options{})

	recs, err := e.Resolve(ctx, "30", "4")
	require.NoError(t, err)
	assert.Empty(t, recs)

	recs, err = e.Resolve(ctx, "nobody", "nothing")
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestEngine_CacheInvalidatedByMaterialize(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryStore()
	defer kv.Close()
	e, _ := newLoadedEngine(t, Options{Cache: kv})

	before, err := e.Resolve(ctx, "10", "1")
	require.NoError(t, err)
	// 物化前没有 SIMILAR 边，回退到协同过滤
	assert.Equal(t, []string{"Casino"}, titlesOf(before))
	assert.Equal(t, "recall.u2i", before[0].Source)

	_, err = e.MaterializeSimilarities(ctx, 0)
	require.NoError(t, err)
	gen, err := kv.Get(ctx, cacheGenerationKey)
	require.NoError(t, err)
	assert.Equal(t, "1", string(gen))

	after, err := e.Resolve(ctx, "10", "1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Ronin"}, titlesOf(after))
	assert.Equal(t, "recall.content", after[0].Source)

	cached, err := e.Resolve(ctx, "10", "1")
	require.NoError(t, err)
	assert.Equal(t, after, cached)
}

func TestEngine_CacheFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	e, _ := newLoadedEngine(t, Options{Cache: brokenCache{}})

	_, err := e.MaterializeSimilarities(ctx, 0)
	require.NoError(t, err)
	recs, err := e.Resolve(ctx, "10", "1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Ronin"}, titlesOf(recs))
}

func TestEngine_PostPipeline(t *testing.T) {
	ctx := context.Background()
	post := &pipeline.Pipeline{Nodes: []pipeline.Node{
		&filter.FilterNode{Filters: []filter.Filter{filter.NewBlacklistFilter([]string{"2"}, nil, "")}},
		&rerank.TopNNode{N: 1},
	}}
	e, _ := newLoadedEngine(t, Options{Post: post})
	_, err := e.MaterializeSimilarities(ctx, 0)
	require.NoError(t, err)

	recs, err := e.Resolve(ctx, "10", "1")
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestEngine_StoreErrorPropagates(t *testing.T) {
	g := store.NewMemoryGraph()
	e, err := New(Options{Graph: g})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.Resolve(ctx, "10", "1")
	require.ErrorIs(t, err, context.Canceled)
}

func TestNew_RequiresGraph(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
	assert.True(t, core.IsInvalidInput(err))
}
