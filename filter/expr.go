package filter

import (
	"context"

	"github.com/rushteam/graphrec/core"
	"github.com/rushteam/graphrec/pkg/dsl"
)

// ExprFilter 按 CEL 表达式过滤：表达式为 true 的物品被移除。
//
// 示例：
//
//	&ExprFilter{Expr: `item.attribute.contains("Horror")`}
//	&ExprFilter{Expr: `label.resolved_by == "recall.u2i" && item.score < 2.0`}
type ExprFilter struct {
	Expr string
}

// NewExprFilter 创建表达式过滤器，表达式在创建时编译校验。
func NewExprFilter(expr string) (*ExprFilter, error) {
	if _, err := dsl.Compile(expr); err != nil {
		return nil, core.WrapDomainError(core.ModuleConfig, core.ErrorCodeInvalidInput, "filter: invalid expression", err)
	}
	return &ExprFilter{Expr: expr}, nil
}

func (f *ExprFilter) Name() string {
	return "filter.expr"
}

func (f *ExprFilter) ShouldFilter(
	_ context.Context,
	rctx *core.RecommendContext,
	item *core.Item,
) (bool, error) {
	if f.Expr == "" {
		return false, nil
	}
	return dsl.NewEval(item, rctx).Evaluate(f.Expr)
}
