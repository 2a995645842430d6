package core

// Item 是推荐链路中的统一承载结构：物品标识、展示信息、分数、标签。
// Labels 用于解释与策略驱动；Score 仅在单个召回源内部有意义。
type Item struct {
	ID        string
	Title     string
	Attribute string
	Score     float64
	Meta      map[string]any
	Labels    map[string]Label
}

func NewItem(id string) *Item {
	return &Item{
		ID:     id,
		Meta:   make(map[string]any),
		Labels: make(map[string]Label),
	}
}

// PutLabel 写入 Label；若已存在同名 key，则按 MergeLabel 规则累积。
func (it *Item) PutLabel(key string, lbl Label) {
	if it.Labels == nil {
		it.Labels = make(map[string]Label)
	}
	if old, ok := it.Labels[key]; ok {
		it.Labels[key] = MergeLabel(old, lbl)
		return
	}
	it.Labels[key] = lbl
}

// Recommendation 是对外暴露的推荐记录。
// 基于内容的结果带 Attribute；协同过滤结果只保证 Title。
type Recommendation struct {
	ItemID    string `json:"item_id"`
	Title     string `json:"title"`
	Attribute string `json:"attribute,omitempty"`
	Source    string `json:"source"`
}

// ToRecommendations 把链路上的 Item 转为对外记录，保持顺序。
// Source 取自 resolved_by 标签。
func ToRecommendations(items []*Item) []Recommendation {
	out := make([]Recommendation, 0, len(items))
	for _, it := range items {
		if it == nil {
			continue
		}
		rec := Recommendation{
			ItemID:    it.ID,
			Title:     it.Title,
			Attribute: it.Attribute,
		}
		if lbl, ok := it.Labels[LabelResolvedBy]; ok {
			rec.Source = lbl.Value
		}
		out = append(out, rec)
	}
	return out
}
