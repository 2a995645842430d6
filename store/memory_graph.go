package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rushteam/graphrec/core"
	"github.com/rushteam/graphrec/pkg/conv"
)

// MemoryGraph 是内存实现的 GraphStore，用于测试/开发/原型。
// 语义对齐 Neo4j 实现：MERGE 式 upsert、无向边任一方向命中、null 属性不参与相等比较。
// 查询按 Statement.Name 分派，仅支持 core/statements.go 中的固定查询。
type MemoryGraph struct {
	mu    sync.RWMutex
	nodes map[string]map[string]map[string]any // label -> key -> props
	edges map[edgeID]map[string]any
	adj   map[nodeID]map[edgeID]struct{}
}

type nodeID struct {
	label string
	key   string
}

type edgeID struct {
	typ  string
	from nodeID
	to   nodeID
}

func NewMemoryGraph() *MemoryGraph {
	return &MemoryGraph{
		nodes: make(map[string]map[string]map[string]any),
		edges: make(map[edgeID]map[string]any),
		adj:   make(map[nodeID]map[edgeID]struct{}),
	}
}

func (g *MemoryGraph) Name() string { return "memory_graph" }

func (g *MemoryGraph) UpsertNode(ctx context.Context, label, key string, props map[string]any) (core.NodeRef, error) {
	if err := ctx.Err(); err != nil {
		return core.NodeRef{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.upsertNode(label, key, props, nil)
}

func (g *MemoryGraph) UpsertEdge(ctx context.Context, edge core.Edge) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.upsertEdge(edge, nil)
}

// Batch 在一把写锁内执行 fn，fn 返回错误时按 undo 日志回滚全部写入。
// fn 只能通过传入的 GraphWriter 写入，不能回调 g 的其他方法。
func (g *MemoryGraph) Batch(ctx context.Context, fn func(w core.GraphWriter) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	w := &memoryBatchWriter{g: g}
	if err := fn(w); err != nil {
		for i := len(w.undo) - 1; i >= 0; i-- {
			w.undo[i]()
		}
		return err
	}
	return nil
}

func (g *MemoryGraph) PageNodes(ctx context.Context, label string, offset, limit int) ([]core.NodeRef, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if offset < 0 || limit <= 0 {
		return nil, core.WrapDomainError(core.ModuleGraph, core.ErrorCodeInvalidInput,
			"graph: page nodes", fmt.Errorf("invalid window offset=%d limit=%d", offset, limit))
	}
	g.mu.RLock()
	defer g.mu.RUnlock()

	byKey := g.nodes[label]
	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if offset >= len(keys) {
		return []core.NodeRef{}, nil
	}
	end := offset + limit
	if end > len(keys) {
		end = len(keys)
	}
	out := make([]core.NodeRef, 0, end-offset)
	for _, k := range keys[offset:end] {
		out = append(out, core.NodeRef{Label: label, Key: k, Props: copyProps(byKey[k])})
	}
	return out, nil
}

func (g *MemoryGraph) Query(ctx context.Context, stmt core.Statement, params map[string]any) (core.RowIter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()

	var rows []core.Row
	switch stmt.Name {
	case core.StmtSameAttribute.Name:
		rows = g.sameAttribute(params)
	case core.StmtSimilarItems.Name:
		rows = g.similarItems(params)
	case core.StmtCoRaters.Name:
		rows = g.coRaters(params)
	case core.StmtPeerItems.Name:
		rows = g.peerItems(params)
	default:
		return nil, core.WrapDomainError(core.ModuleGraph, core.ErrorCodeNotSupported,
			"graph: query", fmt.Errorf("statement %q not supported by %s", stmt.Name, g.Name()))
	}
	return &sliceRowIter{rows: rows}, nil
}

func (g *MemoryGraph) Close(ctx context.Context) error { return nil }

// EdgeCount 返回某类型边的数量（无向边计一次），用于测试与诊断。
func (g *MemoryGraph) EdgeCount(typ string) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n := 0
	for id := range g.edges {
		if id.typ == typ {
			n++
		}
	}
	return n
}

// Edges 返回某类型边的端点 key 对，按 (from, to) 排序。
func (g *MemoryGraph) Edges(typ string) [][2]string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([][2]string, 0)
	for id := range g.edges {
		if id.typ == typ {
			out = append(out, [2]string{id.from.key, id.to.key})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i][0] != out[j][0] {
			return out[i][0] < out[j][0]
		}
		return out[i][1] < out[j][1]
	})
	return out
}

// EdgeProps 返回一条边的属性副本；无向边两个方向都能查到。
func (g *MemoryGraph) EdgeProps(typ string, from, to core.NodeRef) (map[string]any, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	a := nodeID{label: from.Label, key: from.Key}
	b := nodeID{label: to.Label, key: to.Key}
	if props, ok := g.edges[edgeID{typ: typ, from: a, to: b}]; ok {
		return copyProps(props), true
	}
	if props, ok := g.edges[edgeID{typ: typ, from: b, to: a}]; ok {
		return copyProps(props), true
	}
	return nil, false
}

// ---------- 写入（调用方持有写锁） ----------

func (g *MemoryGraph) upsertNode(label, key string, props map[string]any, undo *[]func()) (core.NodeRef, error) {
	if label == "" || key == "" {
		return core.NodeRef{}, core.NewGraphOperationFailed("upsert node",
			fmt.Errorf("label and key are required (label=%q key=%q)", label, key))
	}
	byKey, ok := g.nodes[label]
	if !ok {
		byKey = make(map[string]map[string]any)
		g.nodes[label] = byKey
	}
	cur, exists := byKey[key]
	if !exists {
		cur = map[string]any{core.PropKey: key}
		byKey[key] = cur
		if undo != nil {
			*undo = append(*undo, func() { delete(byKey, key) })
		}
	} else if undo != nil && len(props) > 0 {
		prev := copyProps(cur)
		*undo = append(*undo, func() { byKey[key] = prev })
	}
	// 对齐 SET n += $props：nil 值删除属性，主键不可覆盖
	for k, v := range props {
		if k == core.PropKey {
			continue
		}
		if v == nil {
			delete(cur, k)
			continue
		}
		cur[k] = v
	}
	return core.NodeRef{Label: label, Key: key, Props: copyProps(cur)}, nil
}

func (g *MemoryGraph) upsertEdge(edge core.Edge, undo *[]func()) error {
	if edge.Type == "" {
		return core.NewGraphOperationFailed("upsert edge", errors.New("edge type is required"))
	}
	from := nodeID{label: edge.From.Label, key: edge.From.Key}
	to := nodeID{label: edge.To.Label, key: edge.To.Key}
	if !g.hasNode(from) || !g.hasNode(to) {
		return core.NewGraphOperationFailed("upsert edge",
			fmt.Errorf("%s endpoint missing: %s -> %s", edge.Type, edge.From, edge.To))
	}

	id, found := g.findEdge(edge.Type, from, to, edge.Undirected)
	if !found {
		if edge.Undirected && nodeLess(to, from) {
			from, to = to, from
		}
		id = edgeID{typ: edge.Type, from: from, to: to}
		g.edges[id] = make(map[string]any)
		g.link(id)
		if undo != nil {
			*undo = append(*undo, func() {
				delete(g.edges, id)
				g.unlink(id)
			})
		}
	} else if undo != nil && len(edge.Props) > 0 {
		prev := copyProps(g.edges[id])
		*undo = append(*undo, func() { g.edges[id] = prev })
	}

	props := g.edges[id]
	for k, v := range edge.Props {
		if v == nil {
			delete(props, k)
			continue
		}
		props[k] = v
	}
	return nil
}

func (g *MemoryGraph) hasNode(id nodeID) bool {
	_, ok := g.nodes[id.label][id.key]
	return ok
}

func (g *MemoryGraph) findEdge(typ string, from, to nodeID, undirected bool) (edgeID, bool) {
	id := edgeID{typ: typ, from: from, to: to}
	if _, ok := g.edges[id]; ok {
		return id, true
	}
	if undirected {
		rev := edgeID{typ: typ, from: to, to: from}
		if _, ok := g.edges[rev]; ok {
			return rev, true
		}
	}
	return edgeID{}, false
}

func (g *MemoryGraph) link(id edgeID) {
	for _, n := range []nodeID{id.from, id.to} {
		set, ok := g.adj[n]
		if !ok {
			set = make(map[edgeID]struct{})
			g.adj[n] = set
		}
		set[id] = struct{}{}
	}
}

func (g *MemoryGraph) unlink(id edgeID) {
	delete(g.adj[id.from], id)
	delete(g.adj[id.to], id)
}

// ---------- 查询（调用方持有读锁） ----------

func (g *MemoryGraph) sameAttribute(params map[string]any) []core.Row {
	key, _ := conv.ToString(params["key"])
	attr, ok := conv.ToString(params["attribute"])
	if !ok {
		return nil
	}
	rows := make([]core.Row, 0)
	for k, props := range g.nodes[core.LabelItem] {
		if k == key {
			continue
		}
		if v, ok := conv.ToString(props[core.PropAttribute]); ok && v == attr {
			rows = append(rows, core.Row{"key": k})
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].String("key") < rows[j].String("key") })
	return rows
}

func (g *MemoryGraph) similarItems(params map[string]any) []core.Row {
	key, _ := conv.ToString(params["key"])
	self := nodeID{label: core.LabelItem, key: key}
	seen := make(map[string]struct{})
	rows := make([]core.Row, 0)
	for id := range g.adj[self] {
		if id.typ != core.RelSimilar {
			continue
		}
		other := id.to
		if other == self {
			other = id.from
		}
		if other.label != core.LabelItem || other == self {
			continue
		}
		if _, dup := seen[other.key]; dup {
			continue
		}
		seen[other.key] = struct{}{}
		props := g.nodes[core.LabelItem][other.key]
		rows = append(rows, core.Row{
			"key":       other.key,
			"title":     props[core.PropTitle],
			"attribute": props[core.PropAttribute],
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		ti, tj := rows[i].String("title"), rows[j].String("title")
		if ti != tj {
			return ti < tj
		}
		return rows[i].String("key") < rows[j].String("key")
	})
	return truncateRows(rows, params["limit"])
}

func (g *MemoryGraph) coRaters(params map[string]any) []core.Row {
	user, _ := conv.ToString(params["user"])
	self := nodeID{label: core.LabelActor, key: user}
	if !g.hasNode(self) {
		return nil
	}
	shared := make(map[string]map[string]struct{}) // other user -> shared items
	for _, item := range g.ratedBy(self) {
		for id := range g.adj[item] {
			if id.typ != core.RelRated || id.to != item || id.from.label != core.LabelActor || id.from == self {
				continue
			}
			set, ok := shared[id.from.key]
			if !ok {
				set = make(map[string]struct{})
				shared[id.from.key] = set
			}
			set[item.key] = struct{}{}
		}
	}
	rows := make([]core.Row, 0, len(shared))
	for k, set := range shared {
		rows = append(rows, core.Row{"key": k, "shared": int64(len(set))})
	}
	sort.Slice(rows, func(i, j int) bool {
		si, sj := rows[i].Int("shared"), rows[j].Int("shared")
		if si != sj {
			return si > sj
		}
		return rows[i].String("key") < rows[j].String("key")
	})
	return truncateRows(rows, params["limit"])
}

func (g *MemoryGraph) peerItems(params map[string]any) []core.Row {
	user, _ := conv.ToString(params["user"])
	self := nodeID{label: core.LabelActor, key: user}
	rated := make(map[string]struct{})
	for _, item := range g.ratedBy(self) {
		rated[item.key] = struct{}{}
	}

	support := make(map[string]map[string]struct{}) // item -> peers
	for _, peer := range peerKeys(params["peers"]) {
		for _, item := range g.ratedBy(nodeID{label: core.LabelActor, key: peer}) {
			if _, ok := rated[item.key]; ok {
				continue
			}
			set, ok := support[item.key]
			if !ok {
				set = make(map[string]struct{})
				support[item.key] = set
			}
			set[peer] = struct{}{}
		}
	}
	rows := make([]core.Row, 0, len(support))
	for k, peers := range support {
		rows = append(rows, core.Row{
			"key":     k,
			"title":   g.nodes[core.LabelItem][k][core.PropTitle],
			"support": int64(len(peers)),
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		si, sj := rows[i].Int("support"), rows[j].Int("support")
		if si != sj {
			return si > sj
		}
		ti, tj := rows[i].String("title"), rows[j].String("title")
		if ti != tj {
			return ti < tj
		}
		return rows[i].String("key") < rows[j].String("key")
	})
	return truncateRows(rows, params["limit"])
}

// ratedBy 返回用户经 RATED 边指向的物品节点。
func (g *MemoryGraph) ratedBy(user nodeID) []nodeID {
	out := make([]nodeID, 0)
	for id := range g.adj[user] {
		if id.typ == core.RelRated && id.from == user && id.to.label == core.LabelItem {
			out = append(out, id.to)
		}
	}
	return out
}

// ---------- 辅助 ----------

type memoryBatchWriter struct {
	g    *MemoryGraph
	undo []func()
}

func (w *memoryBatchWriter) UpsertNode(ctx context.Context, label, key string, props map[string]any) (core.NodeRef, error) {
	if err := ctx.Err(); err != nil {
		return core.NodeRef{}, err
	}
	return w.g.upsertNode(label, key, props, &w.undo)
}

func (w *memoryBatchWriter) UpsertEdge(ctx context.Context, edge core.Edge) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return w.g.upsertEdge(edge, &w.undo)
}

type sliceRowIter struct {
	rows   []core.Row
	idx    int
	cur    core.Row
	err    error
	closed bool
}

func (it *sliceRowIter) Next(ctx context.Context) bool {
	if it.closed || it.idx >= len(it.rows) {
		return false
	}
	if err := ctx.Err(); err != nil {
		it.err = err
		return false
	}
	it.cur = it.rows[it.idx]
	it.idx++
	return true
}

func (it *sliceRowIter) Row() core.Row { return it.cur }
func (it *sliceRowIter) Err() error    { return it.err }

func (it *sliceRowIter) Close(ctx context.Context) error {
	it.closed = true
	it.rows = nil
	return nil
}

func truncateRows(rows []core.Row, limit any) []core.Row {
	n, ok := conv.ToInt64(limit)
	if !ok || n <= 0 || int(n) >= len(rows) {
		return rows
	}
	return rows[:n]
}

func peerKeys(v any) []string {
	switch val := v.(type) {
	case []string:
		return val
	case []any:
		return conv.SliceAnyToString(val)
	default:
		return nil
	}
}

func nodeLess(a, b nodeID) bool {
	if a.label != b.label {
		return a.label < b.label
	}
	return a.key < b.key
}

func copyProps(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

var _ core.GraphStore = (*MemoryGraph)(nil)
var _ core.Batcher = (*MemoryGraph)(nil)
