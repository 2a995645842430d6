package core

// RecommendContext 承载一次推荐请求的输入，贯穿整个 Pipeline 透传。
type RecommendContext struct {
	UserID string // actor key，协同过滤使用
	ItemID string // item key，基于内容的推荐使用
	Scene  string

	// Labels 是请求级标签，可驱动 Pipeline 行为
	Labels map[string]Label

	// Params 请求级参数，供过滤表达式读取
	Params map[string]any
}

// PutLabel 写入请求级 Label。
func (rctx *RecommendContext) PutLabel(key string, lbl Label) {
	if rctx.Labels == nil {
		rctx.Labels = make(map[string]Label)
	}
	if old, ok := rctx.Labels[key]; ok {
		rctx.Labels[key] = MergeLabel(old, lbl)
		return
	}
	rctx.Labels[key] = lbl
}

// GetLabel 获取请求级 Label。
func (rctx *RecommendContext) GetLabel(key string) (Label, bool) {
	if rctx.Labels == nil {
		return Label{}, false
	}
	lbl, ok := rctx.Labels[key]
	return lbl, ok
}
