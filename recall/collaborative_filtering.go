package recall

import (
	"context"
	"sort"

	"github.com/rushteam/graphrec/core"
)

// UserBasedCF 是基于用户的协同过滤召回源（User-based Collaborative Filtering, User-CF）。
//
// 核心思想："兴趣相似的用户，喜欢相似的物品"
//
// 算法流程：
//  1. 找与目标用户共同评分物品最多的 TopKSimilarUsers 个用户
//     （共同数降序，相同时按用户主键升序）
//  2. 推荐这些用户评过、目标用户没评过的物品
//     （支持用户数降序，其次标题升序、物品主键升序），每个物品只出现一次
//
// 没有共同评分的用户不会成为候选；目标用户不存在或没有评分时返回空结果。
type UserBasedCF struct {
	Graph core.GraphStore

	// TopKSimilarUsers 参与推荐的相似用户数，默认 5
	TopKSimilarUsers int

	// TopKItems 最终返回的物品数，默认 5
	TopKItems int

	// MinCommonItems 两个用户至少需要有多少个共同评分物品才算相似，默认 1
	MinCommonItems int
}

func (r *UserBasedCF) Name() string {
	return "recall.u2i"
}

func (r *UserBasedCF) Recall(
	ctx context.Context,
	rctx *core.RecommendContext,
) ([]*core.Item, error) {
	if r.Graph == nil || rctx == nil || rctx.UserID == "" {
		return []*core.Item{}, nil
	}

	peers, err := r.similarUsers(ctx, rctx.UserID)
	if err != nil {
		return nil, err
	}
	if len(peers) == 0 {
		return []*core.Item{}, nil
	}

	topK := topKOr(r.TopKItems)
	it, err := r.Graph.Query(ctx, core.StmtPeerItems, map[string]any{
		"user":  rctx.UserID,
		"peers": peers,
		"limit": int64(topK),
	})
	if err != nil {
		return nil, err
	}
	rows, err := core.CollectRows(ctx, it)
	if err != nil {
		return nil, err
	}

	byKey := make(map[string]*core.Item, len(rows))
	out := make([]*core.Item, 0, len(rows))
	for _, row := range rows {
		key := row.String("key")
		if key == "" {
			continue
		}
		support := float64(row.Int("support"))
		if item, dup := byKey[key]; dup {
			if support > item.Score {
				item.Score = support
			}
			continue
		}
		item := core.NewItem(key)
		item.Title = row.String("title")
		item.Score = support
		byKey[key] = item
		out = append(out, item)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].Title != out[j].Title {
			return out[i].Title < out[j].Title
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > topK {
		out = out[:topK]
	}
	for _, item := range out {
		item.PutLabel(core.LabelRecallSource, core.Label{Value: "collaborative", Source: "recall"})
	}
	return out, nil
}

// similarUsers 返回排序后的相似用户主键。
func (r *UserBasedCF) similarUsers(ctx context.Context, user string) ([]string, error) {
	topK := topKOr(r.TopKSimilarUsers)
	minCommon := int64(r.MinCommonItems)
	if minCommon <= 0 {
		minCommon = 1
	}

	it, err := r.Graph.Query(ctx, core.StmtCoRaters, map[string]any{
		"user":  user,
		"limit": int64(topK),
	})
	if err != nil {
		return nil, err
	}
	rows, err := core.CollectRows(ctx, it)
	if err != nil {
		return nil, err
	}

	type peer struct {
		key    string
		shared int64
	}
	peers := make([]peer, 0, len(rows))
	for _, row := range rows {
		p := peer{key: row.String("key"), shared: row.Int("shared")}
		if p.key == "" || p.key == user || p.shared < minCommon {
			continue
		}
		peers = append(peers, p)
	}
	sort.SliceStable(peers, func(i, j int) bool {
		if peers[i].shared != peers[j].shared {
			return peers[i].shared > peers[j].shared
		}
		return peers[i].key < peers[j].key
	})
	if len(peers) > topK {
		peers = peers[:topK]
	}

	keys := make([]string, 0, len(peers))
	for _, p := range peers {
		keys = append(keys, p.key)
	}
	return keys, nil
}
