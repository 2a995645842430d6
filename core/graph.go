package core

import (
	"context"
	"fmt"

	"github.com/rushteam/graphrec/pkg/conv"
)

// 图模型中的标签、关系类型与属性名。
// 导入链路按这些名称写入，召回与物化按这些名称读取。
const (
	LabelItem  = "Movie" // 物品节点
	LabelActor = "User"  // 用户节点

	RelRated   = "RATED"   // User -> Movie，有向，携带评分
	RelSimilar = "SIMILAR" // Movie - Movie，无向，物化产生

	PropKey       = "id"     // 节点主键属性
	PropTitle     = "title"  // 物品标题
	PropAttribute = "genres" // 物品类别属性（整串精确匹配）
	PropRating    = "rating" // RATED 边上的评分
)

// NodeRef 是图节点的轻量引用：标签 + 主键，附带本次读取/写入的属性。
type NodeRef struct {
	Label string
	Key   string
	Props map[string]any
}

// Prop 读取字符串属性，不存在或类型不符时返回 ("", false)。
func (n NodeRef) Prop(name string) (string, bool) {
	if n.Props == nil {
		return "", false
	}
	return conv.ToString(n.Props[name])
}

func (n NodeRef) String() string {
	return fmt.Sprintf("(:%s {%s: %q})", n.Label, PropKey, n.Key)
}

// Edge 描述一条待写入的边。
// Undirected 为 true 时按无向语义 create-or-match：任一方向已存在即视为命中。
type Edge struct {
	Type       string
	From       NodeRef
	To         NodeRef
	Props      map[string]any
	Undirected bool
}

// Statement 是一条固定形态的只读查询。
// Neo4j 实现执行 Cypher；内存实现按 Name 分派到等价的遍历逻辑。
type Statement struct {
	Name   string
	Cypher string
}

// Row 是查询返回的一行结果，列名 -> 值。
type Row map[string]any

// String 读取字符串列，nil 或类型不符时返回空串。
func (r Row) String(col string) string {
	s, _ := conv.ToString(r[col])
	return s
}

// Int 读取整数列，兼容 int / int64 / float64。
func (r Row) Int(col string) int64 {
	n, _ := conv.ToInt64(r[col])
	return n
}

// Float 读取浮点列。
func (r Row) Float(col string) float64 {
	f, _ := conv.ToFloat64(r[col])
	return f
}

// RowIter 是惰性、有限、只能消费一次的结果序列。
//
// 用法：
//
//	it, err := g.Query(ctx, stmt, params)
//	if err != nil { ... }
//	defer it.Close(ctx)
//	for it.Next(ctx) {
//	    row := it.Row()
//	}
//	if err := it.Err(); err != nil { ... }
type RowIter interface {
	Next(ctx context.Context) bool
	Row() Row
	Err() error
	// Close 释放底层会话，所有退出路径都必须调用
	Close(ctx context.Context) error
}

// GraphWriter 是图写入的最小操作集，GraphStore 与批量事务共用。
type GraphWriter interface {
	// UpsertNode 按 label+key create-or-match 节点，然后覆盖传入的非主键属性
	UpsertNode(ctx context.Context, label, key string, props map[string]any) (NodeRef, error)

	// UpsertEdge 按类型与端点 create-or-match 边，命中时覆盖属性；端点必须已存在
	UpsertEdge(ctx context.Context, edge Edge) error
}

// GraphStore 是图数据库的领域端口。
//
// 设计原则：
//   - 定义在领域层（core），由基础设施层（store）实现
//   - 组件通过构造参数显式持有 GraphStore，不依赖全局 driver/session
//   - 存储层错误原样上抛（UNAVAILABLE / OPERATION_FAILED），不在内部重试
//
// 实现：
//   - store.MemoryGraph：内存实现，用于测试/开发
//   - store.Neo4jGraph：Neo4j 实现
type GraphStore interface {
	GraphWriter

	// Name 返回存储后端名称（用于日志/监控）
	Name() string

	// Query 执行只读遍历，返回惰性结果序列
	Query(ctx context.Context, stmt Statement, params map[string]any) (RowIter, error)

	// PageNodes 返回某标签下按主键升序、跳过 offset 后的至多 limit 个节点。
	// 只有在一次物化期间节点集合不变时，分页才保证不重不漏。
	PageNodes(ctx context.Context, label string, offset, limit int) ([]NodeRef, error)

	// Close 释放连接
	Close(ctx context.Context) error
}

// Batcher 是可选能力：把一组写入作为一个整体提交，失败则全部不生效。
type Batcher interface {
	Batch(ctx context.Context, fn func(w GraphWriter) error) error
}

// Graph 错误定义
var (
	// ErrGraphUnavailable 表示图存储不可达（连接、认证、超时、熔断）
	ErrGraphUnavailable = NewDomainError(ModuleGraph, ErrorCodeUnavailable, "graph: store unavailable")

	// ErrGraphOperationFailed 表示图操作被存储拒绝（写入非法、约束冲突、端点缺失）
	ErrGraphOperationFailed = NewDomainError(ModuleGraph, ErrorCodeOperationFailed, "graph: operation failed")

	// ErrGraphNotSupported 表示存储不支持该查询
	ErrGraphNotSupported = NewDomainError(ModuleGraph, ErrorCodeNotSupported, "graph: statement not supported")
)

// NewGraphUnavailable 包装一个不可达错误，op 为触发的操作名
func NewGraphUnavailable(op string, err error) error {
	return WrapDomainError(ModuleGraph, ErrorCodeUnavailable, "graph: "+op+": store unavailable", err)
}

// NewGraphOperationFailed 包装一个操作失败错误，op 为触发的操作名
func NewGraphOperationFailed(op string, err error) error {
	return WrapDomainError(ModuleGraph, ErrorCodeOperationFailed, "graph: "+op+": operation failed", err)
}

// CollectRows 消费整个序列并关闭，用于结果集有界的查询。
func CollectRows(ctx context.Context, it RowIter) (rows []Row, err error) {
	defer func() {
		if cerr := it.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()
	for it.Next(ctx) {
		rows = append(rows, it.Row())
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return rows, nil
}
