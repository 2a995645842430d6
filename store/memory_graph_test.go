package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/graphrec/core"
)

func movie(key string) core.NodeRef { return core.NodeRef{Label: core.LabelItem, Key: key} }
func user(key string) core.NodeRef  { return core.NodeRef{Label: core.LabelActor, Key: key} }

func seedMovies(t *testing.T, g *MemoryGraph, movies map[string][2]string) {
	t.Helper()
	ctx := context.Background()
	for key, tv := range movies {
		_, err := g.UpsertNode(ctx, core.LabelItem, key, map[string]any{
			core.PropTitle:     tv[0],
			core.PropAttribute: tv[1],
		})
		require.NoError(t, err)
	}
}

func rate(t *testing.T, g *MemoryGraph, u, m string, rating float64) {
	t.Helper()
	ctx := context.Background()
	_, err := g.UpsertNode(ctx, core.LabelActor, u, nil)
	require.NoError(t, err)
	_, err = g.UpsertNode(ctx, core.LabelItem, m, nil)
	require.NoError(t, err)
	require.NoError(t, g.UpsertEdge(ctx, core.Edge{
		Type:  core.RelRated,
		From:  user(u),
		To:    movie(m),
		Props: map[string]any{core.PropRating: rating},
	}))
}

func TestMemoryGraph_UpsertNodeOverwritesAttributes(t *testing.T) {
	ctx := context.Background()
	g := NewMemoryGraph()

	ref, err := g.UpsertNode(ctx, core.LabelItem, "m1", map[string]any{core.PropTitle: "Old", core.PropAttribute: "Drama"})
	require.NoError(t, err)
	assert.Equal(t, "m1", ref.Key)

	ref, err = g.UpsertNode(ctx, core.LabelItem, "m1", map[string]any{core.PropTitle: "New", core.PropKey: "hijack"})
	require.NoError(t, err)
	title, _ := ref.Prop(core.PropTitle)
	attr, _ := ref.Prop(core.PropAttribute)
	key, _ := ref.Prop(core.PropKey)
	assert.Equal(t, "New", title)
	assert.Equal(t, "Drama", attr, "attributes not supplied are kept")
	assert.Equal(t, "m1", key, "key property cannot be overwritten")

	page, err := g.PageNodes(ctx, core.LabelItem, 0, 10)
	require.NoError(t, err)
	assert.Len(t, page, 1)
}

func TestMemoryGraph_UpsertNodeRequiresKey(t *testing.T) {
	_, err := NewMemoryGraph().UpsertNode(context.Background(), core.LabelItem, "", nil)
	require.Error(t, err)
	assert.True(t, core.IsOperationFailed(err))
}

func TestMemoryGraph_RatedEdgeOverwritesStrength(t *testing.T) {
	g := NewMemoryGraph()
	rate(t, g, "u1", "m1", 3.0)
	rate(t, g, "u1", "m1", 4.5)

	assert.Equal(t, 1, g.EdgeCount(core.RelRated))
	props, ok := g.EdgeProps(core.RelRated, user("u1"), movie("m1"))
	require.True(t, ok)
	assert.Equal(t, 4.5, props[core.PropRating])
}

func TestMemoryGraph_UndirectedEdgeMatchesEitherDirection(t *testing.T) {
	ctx := context.Background()
	g := NewMemoryGraph()
	seedMovies(t, g, map[string][2]string{"a": {"A", "x"}, "b": {"B", "x"}})

	require.NoError(t, g.UpsertEdge(ctx, core.Edge{Type: core.RelSimilar, From: movie("b"), To: movie("a"), Undirected: true}))
	require.NoError(t, g.UpsertEdge(ctx, core.Edge{Type: core.RelSimilar, From: movie("a"), To: movie("b"), Undirected: true}))

	assert.Equal(t, [][2]string{{"a", "b"}}, g.Edges(core.RelSimilar))
}

func TestMemoryGraph_UpsertEdgeMissingEndpoint(t *testing.T) {
	ctx := context.Background()
	g := NewMemoryGraph()
	seedMovies(t, g, map[string][2]string{"a": {"A", "x"}})

	err := g.UpsertEdge(ctx, core.Edge{Type: core.RelSimilar, From: movie("a"), To: movie("ghost"), Undirected: true})
	require.Error(t, err)
	assert.True(t, core.IsOperationFailed(err))
	assert.True(t, errors.Is(err, core.ErrGraphOperationFailed))
	assert.Equal(t, 0, g.EdgeCount(core.RelSimilar))
}

func TestMemoryGraph_BatchRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	g := NewMemoryGraph()
	seedMovies(t, g, map[string][2]string{"a": {"A", "x"}, "b": {"B", "x"}})

	boom := errors.New("boom")
	err := g.Batch(ctx, func(w core.GraphWriter) error {
		if _, err := w.UpsertNode(ctx, core.LabelItem, "c", map[string]any{core.PropTitle: "C"}); err != nil {
			return err
		}
		if _, err := w.UpsertNode(ctx, core.LabelItem, "a", map[string]any{core.PropTitle: "changed"}); err != nil {
			return err
		}
		if err := w.UpsertEdge(ctx, core.Edge{Type: core.RelSimilar, From: movie("a"), To: movie("b"), Undirected: true}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	assert.Equal(t, 0, g.EdgeCount(core.RelSimilar))
	page, err := g.PageNodes(ctx, core.LabelItem, 0, 10)
	require.NoError(t, err)
	require.Len(t, page, 2)
	title, _ := page[0].Prop(core.PropTitle)
	assert.Equal(t, "A", title)
}

func TestMemoryGraph_PageNodesOrderedByKey(t *testing.T) {
	ctx := context.Background()
	g := NewMemoryGraph()
	seedMovies(t, g, map[string][2]string{"m3": {}, "m1": {}, "m5": {}, "m2": {}, "m4": {}})

	var keys []string
	for offset := 0; ; offset += 2 {
		page, err := g.PageNodes(ctx, core.LabelItem, offset, 2)
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		for _, n := range page {
			keys = append(keys, n.Key)
		}
	}
	assert.Equal(t, []string{"m1", "m2", "m3", "m4", "m5"}, keys)

	_, err := g.PageNodes(ctx, core.LabelItem, -1, 2)
	assert.True(t, core.IsInvalidInput(err))
}

func TestMemoryGraph_QuerySameAttribute(t *testing.T) {
	ctx := context.Background()
	g := NewMemoryGraph()
	seedMovies(t, g, map[string][2]string{
		"m1": {"One", "Action"},
		"m2": {"Two", "Action"},
		"m3": {"Three", "Drama"},
		"m4": {"Four", "action"},
	})
	_, err := g.UpsertNode(ctx, core.LabelItem, "m5", map[string]any{core.PropTitle: "No genre"})
	require.NoError(t, err)

	it, err := g.Query(ctx, core.StmtSameAttribute, map[string]any{"key": "m1", "attribute": "Action"})
	require.NoError(t, err)
	rows, err := core.CollectRows(ctx, it)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "m2", rows[0].String("key"))

	it, err = g.Query(ctx, core.StmtSameAttribute, map[string]any{"key": "m5", "attribute": nil})
	require.NoError(t, err)
	rows, err = core.CollectRows(ctx, it)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestMemoryGraph_QueryCoRatersAndPeerItems(t *testing.T) {
	ctx := context.Background()
	g := NewMemoryGraph()
	seedMovies(t, g, map[string][2]string{
		"m1": {"One", "A"}, "m2": {"Two", "A"}, "m3": {"Three", "B"}, "m4": {"Four", "C"},
	})
	rate(t, g, "u1", "m1", 4)
	rate(t, g, "u1", "m2", 5)
	rate(t, g, "u2", "m1", 3)
	rate(t, g, "u2", "m2", 3)
	rate(t, g, "u2", "m3", 3)
	rate(t, g, "u3", "m4", 1)

	it, err := g.Query(ctx, core.StmtCoRaters, map[string]any{"user": "u1", "limit": 5})
	require.NoError(t, err)
	rows, err := core.CollectRows(ctx, it)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "u2", rows[0].String("key"))
	assert.Equal(t, int64(2), rows[0].Int("shared"))

	it, err = g.Query(ctx, core.StmtPeerItems, map[string]any{"user": "u1", "peers": []string{"u2"}, "limit": 5})
	require.NoError(t, err)
	rows, err = core.CollectRows(ctx, it)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "m3", rows[0].String("key"))
	assert.Equal(t, "Three", rows[0].String("title"))
}

func TestMemoryGraph_QueryUnknownStatement(t *testing.T) {
	_, err := NewMemoryGraph().Query(context.Background(), core.Statement{Name: "nope"}, nil)
	require.Error(t, err)
	assert.True(t, core.IsNotSupported(err))
}

func TestMemoryGraph_RowIterConsumedOnce(t *testing.T) {
	ctx := context.Background()
	g := NewMemoryGraph()
	seedMovies(t, g, map[string][2]string{"a": {"A", "x"}, "b": {"B", "x"}})

	it, err := g.Query(ctx, core.StmtSameAttribute, map[string]any{"key": "a", "attribute": "x"})
	require.NoError(t, err)
	require.True(t, it.Next(ctx))
	assert.False(t, it.Next(ctx))
	require.NoError(t, it.Close(ctx))
	assert.False(t, it.Next(ctx))
}
