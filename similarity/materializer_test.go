package similarity

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/graphrec/core"
	"github.com/rushteam/graphrec/store"
)

// plainGraph 隐藏 Batch，用于覆盖逐条写入路径。
type plainGraph struct {
	core.GraphStore
}

// failingGraph 在第 failAt 次 UpsertEdge 时返回错误。
type failingGraph struct {
	core.GraphStore
	calls  int
	failAt int
	err    error
}

func (f *failingGraph) UpsertEdge(ctx context.Context, e core.Edge) error {
	f.calls++
	if f.calls == f.failAt {
		return f.err
	}
	return f.GraphStore.UpsertEdge(ctx, e)
}

func catalog(t *testing.T, attrs map[string]string) *store.MemoryGraph {
	t.Helper()
	g := store.NewMemoryGraph()
	for key, attr := range attrs {
		props := map[string]any{core.PropTitle: "title " + key}
		if attr != "" {
			props[core.PropAttribute] = attr
		}
		_, err := g.UpsertNode(context.Background(), core.LabelItem, key, props)
		require.NoError(t, err)
	}
	return g
}

// expectedPairs 按定义枚举：a != b 且类别相等。
func expectedPairs(attrs map[string]string) [][2]string {
	out := make([][2]string, 0)
	for a, x := range attrs {
		for b, y := range attrs {
			if a < b && x != "" && x == y {
				out = append(out, [2]string{a, b})
			}
		}
	}
	return sortPairs(out)
}

func sortPairs(p [][2]string) [][2]string {
	sort.Slice(p, func(i, j int) bool {
		if p[i][0] != p[j][0] {
			return p[i][0] < p[j][0]
		}
		return p[i][1] < p[j][1]
	})
	return p
}

func TestMaterializer_SingleAttributeMatch(t *testing.T) {
	g := catalog(t, map[string]string{"m1": "Action", "m2": "Action", "m3": "Drama"})

	stats, err := (&Materializer{Graph: g}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, [][2]string{{"m1", "m2"}}, g.Edges(core.RelSimilar))
	assert.Equal(t, 1, stats.Pages)
	assert.Equal(t, 3, stats.NodesScanned)
	assert.Equal(t, 1, stats.EdgesUpserted)
	assert.NotEmpty(t, stats.RunID)
}

func TestMaterializer_PageSizeDoesNotChangeResult(t *testing.T) {
	attrs := map[string]string{
		"m1": "Action", "m2": "Drama", "m3": "Action", "m4": "Drama", "m5": "Action",
	}
	small := catalog(t, attrs)
	full := catalog(t, attrs)

	s1, err := (&Materializer{Graph: small, PageSize: 2}).Run(context.Background())
	require.NoError(t, err)
	s2, err := (&Materializer{Graph: full, PageSize: 5}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, s1.Pages)
	assert.Equal(t, 1, s2.Pages)
	assert.Equal(t, full.Edges(core.RelSimilar), small.Edges(core.RelSimilar))
	assert.Equal(t, expectedPairs(attrs), small.Edges(core.RelSimilar))
}

func TestMaterializer_Idempotent(t *testing.T) {
	g := catalog(t, map[string]string{"a": "x", "b": "x", "c": "x", "d": "y"})
	m := &Materializer{Graph: g, PageSize: 3, Workers: 2}

	_, err := m.Run(context.Background())
	require.NoError(t, err)
	first := g.Edges(core.RelSimilar)

	_, err = m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, g.Edges(core.RelSimilar))
	assert.Len(t, first, 3)
}

func TestMaterializer_NoSelfEdgesAndExactCorrectness(t *testing.T) {
	attrs := make(map[string]string)
	genres := []string{"Action", "Drama", "Comedy|Drama", "action", ""}
	for i := 0; i < 23; i++ {
		attrs[fmt.Sprintf("m%02d", i)] = genres[i%len(genres)]
	}
	g := catalog(t, attrs)

	_, err := (&Materializer{Graph: g, PageSize: 4, Workers: 3}).Run(context.Background())
	require.NoError(t, err)

	edges := g.Edges(core.RelSimilar)
	for _, e := range edges {
		assert.NotEqual(t, e[0], e[1])
	}
	assert.Equal(t, expectedPairs(attrs), edges)
}

func TestMaterializer_WithoutBatcher(t *testing.T) {
	attrs := map[string]string{"m1": "Action", "m2": "Action", "m3": "Action"}
	g := catalog(t, attrs)

	_, err := (&Materializer{Graph: plainGraph{g}, PageSize: 1}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, expectedPairs(attrs), g.Edges(core.RelSimilar))
}

func TestMaterializer_StoreErrorAborts(t *testing.T) {
	g := catalog(t, map[string]string{"m1": "Action", "m2": "Action", "m3": "Action"})
	storeErr := core.NewGraphUnavailable("upsert edge", errors.New("connection refused"))
	fg := &failingGraph{GraphStore: g, failAt: 2, err: storeErr}

	_, err := (&Materializer{Graph: fg, PageSize: 10}).Run(context.Background())
	require.Error(t, err)
	assert.True(t, core.IsUnavailable(err))
	assert.ErrorIs(t, err, storeErr)

	// 恢复方式是从头重跑
	_, err = (&Materializer{Graph: g, PageSize: 10}).Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, g.Edges(core.RelSimilar), 3)
}

func TestMaterializer_Canceled(t *testing.T) {
	g := catalog(t, map[string]string{"m1": "Action", "m2": "Action"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stats, err := (&Materializer{Graph: g}).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, stats.Pages)
	assert.Equal(t, 0, g.EdgeCount(core.RelSimilar))
}

func TestMaterializer_EmptyCatalog(t *testing.T) {
	stats, err := (&Materializer{Graph: store.NewMemoryGraph()}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Pages)
}
