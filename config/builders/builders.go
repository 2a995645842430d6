// Package builders 注册内置的后处理 Node，供 YAML 配置驱动。
package builders

import (
	"fmt"

	"github.com/rushteam/graphrec/config"
	"github.com/rushteam/graphrec/filter"
	"github.com/rushteam/graphrec/pipeline"
	"github.com/rushteam/graphrec/pkg/conv"
	"github.com/rushteam/graphrec/rerank"
)

func init() {
	config.Register("filter.expr", BuildExprFilterNode)
	config.Register("filter.blacklist", BuildBlacklistNode)
	config.Register("rerank.topn", BuildTopNNode)
}

// BuildExprFilterNode 配置：expr（CEL 表达式，为 true 时移除物品）。
func BuildExprFilterNode(cfg map[string]any) (pipeline.Node, error) {
	expr := conv.ConfigGet[string](cfg, "expr", "")
	if expr == "" {
		return nil, fmt.Errorf("filter.expr: expr is required")
	}
	f, err := filter.NewExprFilter(expr)
	if err != nil {
		return nil, err
	}
	return &filter.FilterNode{Filters: []filter.Filter{f}}, nil
}

// BuildBlacklistNode 配置：item_ids（字符串或数字列表）。
func BuildBlacklistNode(cfg map[string]any) (pipeline.Node, error) {
	ids := conv.SliceAnyToString(cfg["item_ids"])
	for i, id := range ids {
		ids[i] = conv.CanonicalID(id)
	}
	return &filter.FilterNode{Filters: []filter.Filter{filter.NewBlacklistFilter(ids, nil, "")}}, nil
}

// BuildTopNNode 配置：n（<=0 时不截断）。
func BuildTopNNode(cfg map[string]any) (pipeline.Node, error) {
	return &rerank.TopNNode{N: int(conv.ConfigGetInt64(cfg, "n", 0))}, nil
}
