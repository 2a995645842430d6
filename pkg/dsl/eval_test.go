package dsl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/graphrec/core"
)

func TestEval_Evaluate(t *testing.T) {
	item := core.NewItem("m1")
	item.Title = "The Matrix"
	item.Attribute = "Action|Sci-Fi"
	item.Score = 3
	item.PutLabel(core.LabelRecallSource, core.Label{Value: "content", Source: "recall"})
	rctx := &core.RecommendContext{UserID: "42", ItemID: "m0", Params: map[string]any{"min_score": 2.0}}

	tests := []struct {
		expr string
		want bool
	}{
		{expr: "", want: true},
		{expr: `label.recall_source == "content"`, want: true},
		{expr: `item.attribute.contains("Sci-Fi")`, want: true},
		{expr: `item.title.startsWith("The") && item.score >= 3.0`, want: true},
		{expr: `rctx.params.min_score > item.score`, want: false},
		{expr: `rctx.user_id == "42" && rctx.item_id != item.id`, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := NewEval(item, rctx).Evaluate(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEval_Errors(t *testing.T) {
	item := core.NewItem("m1")

	_, err := NewEval(item, nil).Evaluate(`item.id ==`)
	assert.Error(t, err)

	_, err = NewEval(item, nil).Evaluate(`item.id`)
	assert.Error(t, err, "non-boolean result")
}

func TestCompile_Cached(t *testing.T) {
	p1, err := Compile(`item.score > 1.0`)
	require.NoError(t, err)
	p2, err := Compile(`item.score > 1.0`)
	require.NoError(t, err)
	assert.Equal(t, p1, p2)
}
