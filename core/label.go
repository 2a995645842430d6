package core

// Label 是推荐链路中的一等公民：可解释、可追踪、可透传。
// Value 与 Source 的语义由业务自定义，这里只约定合并规则。
type Label struct {
	Value  string `json:"value"`
	Source string `json:"source"` // recall / resolver / filter / rerank ...
}

// 链路内约定的标签 key
const (
	LabelRecallSource = "recall_source" // 产出该物品的召回源
	LabelResolvedBy   = "resolved_by"   // Resolver 最终采用的召回源
	LabelFiltered     = "filtered"      // 被过滤时记录过滤器名
)

// MergeLabel 合并同名 Label，保留历史：
//   - Value 以 '|' 累积
//   - Source 以 ',' 累积
func MergeLabel(existing Label, incoming Label) Label {
	if existing.Value == "" {
		return incoming
	}
	if incoming.Value == "" {
		return existing
	}

	merged := existing
	merged.Value = existing.Value + "|" + incoming.Value
	switch {
	case existing.Source == "":
		merged.Source = incoming.Source
	case incoming.Source == "":
		merged.Source = existing.Source
	default:
		merged.Source = existing.Source + "," + incoming.Source
	}
	return merged
}
