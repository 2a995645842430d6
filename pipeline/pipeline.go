package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rushteam/graphrec/core"
	"github.com/rushteam/graphrec/pkg/logger"
)

// Pipeline 把推荐后处理拆成可组合的 Node 链。
// 没有 Node 的 Pipeline 原样返回输入。
type Pipeline struct {
	Nodes  []Node
	Logger *logger.Logger
}

func (p *Pipeline) Run(
	ctx context.Context,
	rctx *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	if p == nil {
		return items, nil
	}
	log := logger.OrNop(p.Logger)
	cur := items
	for _, node := range p.Nodes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		start := time.Now()
		next, err := node.Process(ctx, rctx, cur)
		if err != nil {
			return nil, fmt.Errorf("pipeline node %s: %w", node.Name(), err)
		}
		log.Debug("pipeline node done",
			"node", node.Name(), "kind", string(node.Kind()),
			"in", len(cur), "out", len(next), "elapsed", time.Since(start))
		cur = next
	}
	return cur, nil
}
