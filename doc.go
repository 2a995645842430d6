// Package graphrec 是一个基于图存储的电影推荐工具包。
//
// 设计要点：
// - 图优先: 用户、电影、评分、相似关系都存为图中的节点与边
// - 物化相似边: 同类电影之间预先写入 SIMILAR 边，查询时只走一跳
// - 内容优先回退协同: 先按相似电影推荐，为空时按相似用户的评分推荐
// - Pipeline 后处理: 过滤、截断等 Node 可通过配置插拔
package graphrec

import (
	"github.com/rushteam/graphrec/core"
	"github.com/rushteam/graphrec/engine"
	"github.com/rushteam/graphrec/pipeline"
)

// 轻量 facade：便于用户直接 import "graphrec" 使用核心抽象。
type (
	Engine         = engine.Engine
	Options        = engine.Options
	GraphStore     = core.GraphStore
	Recommendation = core.Recommendation
	Pipeline       = pipeline.Pipeline
	Node           = pipeline.Node
)

// New 见 engine.New。
func New(opts Options) (*Engine, error) {
	return engine.New(opts)
}
