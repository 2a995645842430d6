package recall

import (
	"context"
	"fmt"

	"github.com/rushteam/graphrec/core"
	"github.com/rushteam/graphrec/metrics"
	"github.com/rushteam/graphrec/pipeline"
	"github.com/rushteam/graphrec/pkg/logger"
)

// Fallback 是一个 Recall Node：按顺序尝试召回源，返回第一个非空结果。
//
// 只采用一个源的结果，顺序与内容不做改动，仅追加 resolved_by 标签记录来源。召回源的错误立即上抛，不会被当作空结果跳过；
// 所有源都为空时返回空结果与 nil 错误。
type Fallback struct {
	Sources []Source
	Logger  *logger.Logger
}

func (n *Fallback) Name() string        { return "recall.fallback" }
func (n *Fallback) Kind() pipeline.Kind { return pipeline.KindRecall }

func (n *Fallback) Process(
	ctx context.Context,
	rctx *core.RecommendContext,
	_ []*core.Item,
) ([]*core.Item, error) {
	return n.Recall(ctx, rctx)
}

func (n *Fallback) Recall(
	ctx context.Context,
	rctx *core.RecommendContext,
) ([]*core.Item, error) {
	log := logger.OrNop(n.Logger)
	for _, src := range n.Sources {
		items, err := src.Recall(ctx, rctx)
		if err != nil {
			return nil, fmt.Errorf("recall %s: %w", src.Name(), err)
		}
		if len(items) == 0 {
			log.Debug("recall source empty, falling back", "source", src.Name())
			continue
		}
		for _, it := range items {
			it.PutLabel(core.LabelResolvedBy, core.Label{Value: src.Name(), Source: "resolver"})
		}
		metrics.ResolveTotal.WithLabelValues(src.Name()).Inc()
		return items, nil
	}
	metrics.ResolveTotal.WithLabelValues("empty").Inc()
	return []*core.Item{}, nil
}

var _ Source = (*Fallback)(nil)
var _ pipeline.Node = (*Fallback)(nil)
