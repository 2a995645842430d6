package recall

import (
	"context"
	"sort"

	"github.com/rushteam/graphrec/core"
)

// ContentRecall 是基于内容的召回源。
//
// 核心思想："与当前物品同类的物品"。同类关系由相似边物化预先写入图中，
// 召回只走一跳 SIMILAR 边，结果按标题升序、主键升序排列，同一张图上多次调用输出一致。
type ContentRecall struct {
	Graph core.GraphStore

	// TopK 返回 TopK 个物品，默认 5
	TopK int
}

func (r *ContentRecall) Name() string {
	return "recall.content"
}

func (r *ContentRecall) Recall(
	ctx context.Context,
	rctx *core.RecommendContext,
) ([]*core.Item, error) {
	if r.Graph == nil || rctx == nil || rctx.ItemID == "" {
		return []*core.Item{}, nil
	}
	topK := topKOr(r.TopK)

	it, err := r.Graph.Query(ctx, core.StmtSimilarItems, map[string]any{
		"key":   rctx.ItemID,
		"limit": int64(topK),
	})
	if err != nil {
		return nil, err
	}
	rows, err := core.CollectRows(ctx, it)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(rows))
	out := make([]*core.Item, 0, len(rows))
	for _, row := range rows {
		key := row.String("key")
		if _, dup := seen[key]; dup || key == "" {
			continue
		}
		seen[key] = struct{}{}
		item := core.NewItem(key)
		item.Title = row.String("title")
		item.Attribute = row.String("attribute")
		out = append(out, item)
	}

	// 存储已按同样规则排序，这里再排一次保证跨存储的确定性
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Title != out[j].Title {
			return out[i].Title < out[j].Title
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > topK {
		out = out[:topK]
	}
	for i, item := range out {
		item.Score = float64(len(out) - i)
		item.PutLabel(core.LabelRecallSource, core.Label{Value: "content", Source: "recall"})
	}
	return out, nil
}
