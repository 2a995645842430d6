package filter

import (
	"context"
	"sync"

	"github.com/goccy/go-json"

	"github.com/rushteam/graphrec/core"
)

// BlacklistFilter 是黑名单过滤器，过滤掉黑名单中的物品。
//
// 黑名单来源（可组合）：
//   - ItemIDs：内存中的固定列表
//   - Store + Key：KV 中以 JSON 数组存放的全局黑名单
//   - Store + UserKeyPrefix：KV 中 {prefix}:{userID} 存放的用户拉黑列表
//
// KV 中 key 不存在视为空名单。
type BlacklistFilter struct {
	ItemIDs []string

	Store         core.Store
	Key           string
	UserKeyPrefix string

	once sync.Once
	ids  map[string]struct{}
}

// NewBlacklistFilter 创建一个黑名单过滤器。
func NewBlacklistFilter(itemIDs []string, store core.Store, key string) *BlacklistFilter {
	return &BlacklistFilter{
		ItemIDs: itemIDs,
		Store:   store,
		Key:     key,
	}
}

func (f *BlacklistFilter) Name() string {
	return "filter.blacklist"
}

func (f *BlacklistFilter) ShouldFilter(
	ctx context.Context,
	rctx *core.RecommendContext,
	item *core.Item,
) (bool, error) {
	if item == nil {
		return true, nil
	}

	f.once.Do(func() {
		f.ids = make(map[string]struct{}, len(f.ItemIDs))
		for _, id := range f.ItemIDs {
			f.ids[id] = struct{}{}
		}
	})
	if _, ok := f.ids[item.ID]; ok {
		return true, nil
	}

	if f.Store == nil {
		return false, nil
	}
	keys := make([]string, 0, 2)
	if f.Key != "" {
		keys = append(keys, f.Key)
	}
	if f.UserKeyPrefix != "" && rctx != nil && rctx.UserID != "" {
		keys = append(keys, f.UserKeyPrefix+":"+rctx.UserID)
	}
	for _, key := range keys {
		ids, err := f.load(ctx, key)
		if err != nil {
			return false, err
		}
		for _, id := range ids {
			if item.ID == id {
				return true, nil
			}
		}
	}
	return false, nil
}

func (f *BlacklistFilter) load(ctx context.Context, key string) ([]string, error) {
	data, err := f.Store.Get(ctx, key)
	if core.IsStoreNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}
