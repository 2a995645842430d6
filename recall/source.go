package recall

import (
	"context"

	"github.com/rushteam/graphrec/core"
)

// Source 表示一个可复用的召回源（基于内容 / 协同过滤 / ...）。
// 查不到数据返回空结果与 nil 错误；存储错误原样上抛。
type Source interface {
	Name() string
	Recall(ctx context.Context, rctx *core.RecommendContext) ([]*core.Item, error)
}

const defaultTopK = 5

func topKOr(k int) int {
	if k <= 0 {
		return defaultTopK
	}
	return k
}
