package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/rushteam/graphrec/core"
	"github.com/rushteam/graphrec/metrics"
	"github.com/rushteam/graphrec/pkg/logger"
)

// Neo4jConfig 是 Neo4jGraph 的连接配置。
type Neo4jConfig struct {
	URI      string
	Username string
	Password string
	Database string

	// QueryTimeout 作用于每个事务，超时按 UNAVAILABLE 上抛
	QueryTimeout   time.Duration
	MaxPoolSize    int
	ConnectTimeout time.Duration

	// 熔断：连续 BreakerFailures 次不可达后打开，BreakerTimeout 后进入半开
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

func (c Neo4jConfig) withDefaults() Neo4jConfig {
	if c.Username == "" {
		c.Username = "neo4j"
	}
	if c.QueryTimeout <= 0 {
		c.QueryTimeout = 30 * time.Second
	}
	if c.MaxPoolSize <= 0 {
		c.MaxPoolSize = 50
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.BreakerFailures == 0 {
		c.BreakerFailures = 5
	}
	if c.BreakerTimeout <= 0 {
		c.BreakerTimeout = 10 * time.Second
	}
	return c
}

// Neo4jGraph 是 Neo4j 实现的 GraphStore。
//
// 每次调用独占一个 session 并在所有退出路径上关闭；Query 把 session 交给返回的 RowIter。
// 所有事务都是显式事务并带超时，不使用驱动的托管重试。
type Neo4jGraph struct {
	driver  neo4j.DriverWithContext
	cfg     Neo4jConfig
	breaker *gobreaker.CircuitBreaker[any]
	log     *logger.Logger
}

func NewNeo4jGraph(ctx context.Context, cfg Neo4jConfig, log *logger.Logger) (*Neo4jGraph, error) {
	cfg = cfg.withDefaults()
	if strings.TrimSpace(cfg.URI) == "" {
		return nil, core.WrapDomainError(core.ModuleGraph, core.ErrorCodeInvalidInput, "graph: neo4j config", errors.New("uri is required"))
	}
	log = logger.OrNop(log).With("store", "neo4j")

	auth := neo4j.BasicAuth(cfg.Username, cfg.Password, "")
	driver, err := neo4j.NewDriverWithContext(cfg.URI, auth, func(c *neo4j.Config) {
		c.MaxConnectionPoolSize = cfg.MaxPoolSize
		c.SocketConnectTimeout = cfg.ConnectTimeout
	})
	if err != nil {
		return nil, core.NewGraphUnavailable("init driver", err)
	}

	vctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := driver.VerifyConnectivity(vctx); err != nil {
		_ = driver.Close(ctx)
		return nil, core.NewGraphUnavailable("verify connectivity", err)
	}

	g := &Neo4jGraph{driver: driver, cfg: cfg, log: log}
	g.breaker = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "neo4j",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		IsSuccessful: breakerSuccessful,
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("neo4j circuit breaker state changed", "from", from.String(), "to", to.String())
		},
	})
	log.Info("neo4j connected", "uri", cfg.URI, "database", cfg.Database)
	return g, nil
}

func (g *Neo4jGraph) Name() string { return "neo4j" }

func (g *Neo4jGraph) Close(ctx context.Context) error {
	if g == nil || g.driver == nil {
		return nil
	}
	err := g.driver.Close(ctx)
	g.driver = nil
	return err
}

// EnsureSchema 创建主键唯一约束与类别索引。尽力而为：受限账号无权建约束时记录警告后继续。
func (g *Neo4jGraph) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE CONSTRAINT movie_id_unique IF NOT EXISTS FOR (m:Movie) REQUIRE m.id IS UNIQUE`,
		`CREATE CONSTRAINT user_id_unique IF NOT EXISTS FOR (u:User) REQUIRE u.id IS UNIQUE`,
		`CREATE INDEX movie_genres_idx IF NOT EXISTS FOR (m:Movie) ON (m.genres)`,
	}
	session := g.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	for _, cypher := range stmts {
		res, err := session.Run(ctx, cypher, nil, neo4j.WithTxTimeout(g.cfg.QueryTimeout))
		if err == nil {
			_, err = res.Consume(ctx)
		}
		if err != nil {
			cerr := g.classify("ensure schema", err)
			if core.IsUnavailable(cerr) || errors.Is(cerr, context.Canceled) {
				return cerr
			}
			g.log.Warn("neo4j schema init failed (continuing)", "error", err)
		}
	}
	return nil
}

func (g *Neo4jGraph) UpsertNode(ctx context.Context, label, key string, props map[string]any) (core.NodeRef, error) {
	var ref core.NodeRef
	err := g.write(ctx, "upsert_node", func(tx neo4j.ExplicitTransaction) error {
		var err error
		ref, err = upsertNodeTx(ctx, tx, label, key, props)
		return err
	})
	return ref, err
}

func (g *Neo4jGraph) UpsertEdge(ctx context.Context, edge core.Edge) error {
	return g.write(ctx, "upsert_edge", func(tx neo4j.ExplicitTransaction) error {
		return upsertEdgeTx(ctx, tx, edge)
	})
}

// Batch 把 fn 内的全部写入放进同一个显式事务，fn 出错或提交失败时整体回滚。
func (g *Neo4jGraph) Batch(ctx context.Context, fn func(w core.GraphWriter) error) error {
	return g.write(ctx, "batch", func(tx neo4j.ExplicitTransaction) error {
		return fn(&neo4jTxWriter{tx: tx})
	})
}

func (g *Neo4jGraph) PageNodes(ctx context.Context, label string, offset, limit int) ([]core.NodeRef, error) {
	if offset < 0 || limit <= 0 {
		return nil, core.WrapDomainError(core.ModuleGraph, core.ErrorCodeInvalidInput,
			"graph: page nodes", fmt.Errorf("invalid window offset=%d limit=%d", offset, limit))
	}
	if err := validateIdent(label); err != nil {
		return nil, err
	}
	cypher := fmt.Sprintf(`
MATCH (n:%s)
RETURN n.%s AS key, properties(n) AS props
ORDER BY n.%s
SKIP $offset LIMIT $limit
`, label, core.PropKey, core.PropKey)
	params := map[string]any{"offset": int64(offset), "limit": int64(limit)}

	it, err := g.Query(ctx, core.Statement{Name: "page_nodes", Cypher: cypher}, params)
	if err != nil {
		return nil, err
	}
	rows, err := core.CollectRows(ctx, it)
	if err != nil {
		return nil, err
	}
	out := make([]core.NodeRef, 0, len(rows))
	for _, row := range rows {
		props, _ := row["props"].(map[string]any)
		out = append(out, core.NodeRef{Label: label, Key: row.String("key"), Props: props})
	}
	return out, nil
}

// Query 打开读 session 与显式事务并执行语句；返回的 RowIter 持有 session，Close 时释放。
func (g *Neo4jGraph) Query(ctx context.Context, stmt core.Statement, params map[string]any) (core.RowIter, error) {
	op := stmt.Name
	if op == "" {
		op = "query"
	}
	start := time.Now()
	defer metrics.ObserveGraphOp(g.Name(), op, start)

	v, err := g.breaker.Execute(func() (any, error) {
		session := g.session(ctx, neo4j.AccessModeRead)
		tx, err := session.BeginTransaction(ctx, neo4j.WithTxTimeout(g.cfg.QueryTimeout))
		if err != nil {
			_ = session.Close(ctx)
			return nil, g.classify(op, err)
		}
		res, err := tx.Run(ctx, stmt.Cypher, params)
		if err != nil {
			_ = tx.Close(ctx)
			_ = session.Close(ctx)
			return nil, g.classify(op, err)
		}
		return &neo4jRowIter{g: g, op: op, session: session, tx: tx, res: res}, nil
	})
	if err != nil {
		return nil, g.classify(op, err)
	}
	return v.(*neo4jRowIter), nil
}

// write 在独占 session 的显式写事务中执行 fn：成功提交，失败回滚。
func (g *Neo4jGraph) write(ctx context.Context, op string, fn func(tx neo4j.ExplicitTransaction) error) error {
	start := time.Now()
	defer metrics.ObserveGraphOp(g.Name(), op, start)

	_, err := g.breaker.Execute(func() (any, error) {
		session := g.session(ctx, neo4j.AccessModeWrite)
		defer session.Close(ctx)

		tx, err := session.BeginTransaction(ctx, neo4j.WithTxTimeout(g.cfg.QueryTimeout))
		if err != nil {
			return nil, g.classify(op, err)
		}
		if err := fn(tx); err != nil {
			_ = tx.Rollback(ctx)
			return nil, g.classify(op, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, g.classify(op, err)
		}
		return nil, nil
	})
	if err != nil {
		return g.classify(op, err)
	}
	return nil
}

func (g *Neo4jGraph) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return g.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   mode,
		DatabaseName: g.cfg.Database,
	})
}

// classify 把驱动错误归类为领域错误并记录指标；已归类的错误与 context.Canceled 原样返回。
func (g *Neo4jGraph) classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if core.IsDomainError(err) || errors.Is(err, context.Canceled) {
		return err
	}
	out := classifyNeo4jError(op, err)
	kind := "operation_failed"
	if core.IsUnavailable(out) {
		kind = "unavailable"
	}
	metrics.RecordGraphError(g.Name(), op, kind)
	return out
}

func classifyNeo4jError(op string, err error) error {
	if err == nil {
		return nil
	}
	if core.IsDomainError(err) || errors.Is(err, context.Canceled) {
		return err
	}
	if isUnavailable(err) {
		return core.NewGraphUnavailable(op, err)
	}
	return core.NewGraphOperationFailed(op, err)
}

func isUnavailable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, gobreaker.ErrOpenState) ||
		errors.Is(err, gobreaker.ErrTooManyRequests) {
		return true
	}
	if neo4j.IsConnectivityError(err) {
		return true
	}
	var nerr *neo4j.Neo4jError
	if errors.As(err, &nerr) {
		return strings.HasPrefix(nerr.Code, "Neo.ClientError.Security") ||
			strings.HasPrefix(nerr.Code, "Neo.TransientError")
	}
	return false
}

// breakerSuccessful 只把不可达计为熔断失败；写入被拒绝、取消等不影响熔断状态。
func breakerSuccessful(err error) bool {
	return err == nil || !core.IsUnavailable(err)
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// validateIdent 校验拼入 Cypher 的标签/关系类型名。
func validateIdent(name string) error {
	if !identPattern.MatchString(name) {
		return core.WrapDomainError(core.ModuleGraph, core.ErrorCodeInvalidInput,
			"graph: invalid identifier", fmt.Errorf("%q", name))
	}
	return nil
}

// ---------- 事务内写入 ----------

type txRunner interface {
	Run(ctx context.Context, cypher string, params map[string]any) (neo4j.ResultWithContext, error)
}

type neo4jTxWriter struct {
	tx neo4j.ExplicitTransaction
}

func (w *neo4jTxWriter) UpsertNode(ctx context.Context, label, key string, props map[string]any) (core.NodeRef, error) {
	return upsertNodeTx(ctx, w.tx, label, key, props)
}

func (w *neo4jTxWriter) UpsertEdge(ctx context.Context, edge core.Edge) error {
	return upsertEdgeTx(ctx, w.tx, edge)
}

func upsertNodeTx(ctx context.Context, tx txRunner, label, key string, props map[string]any) (core.NodeRef, error) {
	if err := validateIdent(label); err != nil {
		return core.NodeRef{}, err
	}
	if key == "" {
		return core.NodeRef{}, core.NewGraphOperationFailed("upsert node", errors.New("key is required"))
	}
	set := make(map[string]any, len(props))
	for k, v := range props {
		if k != core.PropKey {
			set[k] = v
		}
	}
	cypher := fmt.Sprintf(`
MERGE (n:%s {%s: $key})
SET n += $props
RETURN properties(n) AS props
`, label, core.PropKey)
	res, err := tx.Run(ctx, cypher, map[string]any{"key": key, "props": set})
	if err != nil {
		return core.NodeRef{}, err
	}
	rec, err := res.Single(ctx)
	if err != nil {
		return core.NodeRef{}, err
	}
	out, _ := rec.AsMap()["props"].(map[string]any)
	return core.NodeRef{Label: label, Key: key, Props: out}, nil
}

func upsertEdgeTx(ctx context.Context, tx txRunner, edge core.Edge) error {
	for _, name := range []string{edge.Type, edge.From.Label, edge.To.Label} {
		if err := validateIdent(name); err != nil {
			return err
		}
	}
	from, to := edge.From, edge.To
	pattern := "-[r:%s]->"
	if edge.Undirected {
		// 无向边按 (label, key) 升序落盘，MERGE 无向模式任一方向命中
		if to.Label < from.Label || (to.Label == from.Label && to.Key < from.Key) {
			from, to = to, from
		}
		pattern = "-[r:%s]-"
	}
	cypher := fmt.Sprintf(`
MATCH (a:%s {%s: $from})
MATCH (b:%s {%s: $to})
MERGE (a)`+pattern+`(b)
SET r += $props
RETURN count(r) AS n
`, from.Label, core.PropKey, to.Label, core.PropKey, edge.Type)

	props := edge.Props
	if props == nil {
		props = map[string]any{}
	}
	res, err := tx.Run(ctx, cypher, map[string]any{"from": from.Key, "to": to.Key, "props": props})
	if err != nil {
		return err
	}
	rec, err := res.Single(ctx)
	if err != nil {
		return err
	}
	if n, _ := rec.AsMap()["n"].(int64); n == 0 {
		return core.NewGraphOperationFailed("upsert edge",
			fmt.Errorf("%s endpoint missing: %s -> %s", edge.Type, edge.From, edge.To))
	}
	return nil
}

var _ core.GraphStore = (*Neo4jGraph)(nil)
var _ core.Batcher = (*Neo4jGraph)(nil)
