// Package similarity 把类别完全相同的物品之间物化为 SIMILAR 边。
//
// 物化按主键分页扫描物品，每页先并发查出候选对、再一次性写入，
// 单页的内存占用与事务大小都有上界。每次运行都是全量重算，
// 重复运行不会产生重复边，失败后从头重跑即可。
package similarity

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rushteam/graphrec/core"
	"github.com/rushteam/graphrec/metrics"
	"github.com/rushteam/graphrec/pkg/logger"
)

const (
	DefaultPageSize = 2000
	DefaultWorkers  = 4
)

// Stats 是一次物化运行的统计。
type Stats struct {
	RunID         string
	Pages         int
	NodesScanned  int
	EdgesUpserted int
	Duration      time.Duration
}

// Materializer 物化 SIMILAR 边。
type Materializer struct {
	Graph    core.GraphStore
	PageSize int // 每页物品数，<=0 时取 DefaultPageSize
	Workers  int // 单页内查询并发数，<=0 时取 DefaultWorkers
	Logger   *logger.Logger
}

// Run 执行一次全量物化。
// 每页开始前检查 ctx；任何存储错误都会中止运行并原样（附带页偏移）返回，
// 已提交的页保持不变。
func (m *Materializer) Run(ctx context.Context) (Stats, error) {
	stats := Stats{RunID: uuid.NewString()}
	if m.Graph == nil {
		return stats, core.WrapDomainError(core.ModuleGraph, core.ErrorCodeInvalidInput,
			"similarity: graph store is required", nil)
	}
	pageSize := m.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	log := logger.OrNop(m.Logger).With("run_id", stats.RunID, "store", m.Graph.Name())

	start := time.Now()
	log.Info("similarity materialization started", "page_size", pageSize)

	err := m.run(ctx, pageSize, &stats, log)
	stats.Duration = time.Since(start)
	metrics.MaterializeDuration.Observe(stats.Duration.Seconds())

	switch {
	case err == nil:
		metrics.MaterializeRuns.WithLabelValues("ok").Inc()
		log.Info("similarity materialization finished",
			"pages", stats.Pages, "nodes", stats.NodesScanned, "edges", stats.EdgesUpserted,
			"duration", stats.Duration)
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		metrics.MaterializeRuns.WithLabelValues("canceled").Inc()
		log.Warn("similarity materialization canceled", "pages", stats.Pages, "error", err)
	default:
		metrics.MaterializeRuns.WithLabelValues("error").Inc()
		log.Error("similarity materialization failed", "pages", stats.Pages, "error", err)
	}
	return stats, err
}

func (m *Materializer) run(ctx context.Context, pageSize int, stats *Stats, log *logger.Logger) error {
	for offset := 0; ; offset += pageSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := m.Graph.PageNodes(ctx, core.LabelItem, offset, pageSize)
		if err != nil {
			return fmt.Errorf("similarity: page at offset %d: %w", offset, err)
		}
		if len(page) == 0 {
			return nil
		}

		pairs, err := m.pagePairs(ctx, page)
		if err != nil {
			return fmt.Errorf("similarity: page at offset %d: %w", offset, err)
		}
		if err := m.writePairs(ctx, pairs); err != nil {
			return fmt.Errorf("similarity: write page at offset %d: %w", offset, err)
		}

		stats.Pages++
		stats.NodesScanned += len(page)
		stats.EdgesUpserted += len(pairs)
		metrics.MaterializePages.Inc()
		metrics.MaterializeEdges.Add(float64(len(pairs)))
		log.Debug("similarity page done", "offset", offset, "nodes", len(page), "edges", len(pairs))
	}
}

// pagePairs 并发查出本页每个物品的同类物品，返回去重后的规范化无向对（小 key 在前）。
// 写入前整页候选已确定。
func (m *Materializer) pagePairs(ctx context.Context, page []core.NodeRef) ([][2]string, error) {
	workers := m.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	matches := make([][]string, len(page))

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for i, node := range page {
		attr, ok := node.Prop(core.PropAttribute)
		if !ok {
			continue // 无类别的物品不参与相似
		}
		eg.Go(func() error {
			it, err := m.Graph.Query(gctx, core.StmtSameAttribute, map[string]any{
				"key":       node.Key,
				"attribute": attr,
			})
			if err != nil {
				return err
			}
			rows, err := core.CollectRows(gctx, it)
			if err != nil {
				return err
			}
			keys := make([]string, 0, len(rows))
			for _, row := range rows {
				keys = append(keys, row.String("key"))
			}
			matches[i] = keys
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[[2]string]struct{})
	for i, node := range page {
		for _, other := range matches[i] {
			if other == "" || other == node.Key {
				continue
			}
			p := [2]string{node.Key, other}
			if other < node.Key {
				p = [2]string{other, node.Key}
			}
			seen[p] = struct{}{}
		}
	}
	pairs := make([][2]string, 0, len(seen))
	for p := range seen {
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i][0] != pairs[j][0] {
			return pairs[i][0] < pairs[j][0]
		}
		return pairs[i][1] < pairs[j][1]
	})
	return pairs, nil
}

// writePairs 写入一页的 SIMILAR 边；存储支持 Batcher 时整页一个事务。
func (m *Materializer) writePairs(ctx context.Context, pairs [][2]string) error {
	if len(pairs) == 0 {
		return nil
	}
	write := func(w core.GraphWriter) error {
		for _, p := range pairs {
			if err := w.UpsertEdge(ctx, similarEdge(p)); err != nil {
				return err
			}
		}
		return nil
	}
	if b, ok := m.Graph.(core.Batcher); ok {
		return b.Batch(ctx, write)
	}
	return write(m.Graph)
}

func similarEdge(p [2]string) core.Edge {
	return core.Edge{
		Type:       core.RelSimilar,
		From:       core.NodeRef{Label: core.LabelItem, Key: p[0]},
		To:         core.NodeRef{Label: core.LabelItem, Key: p[1]},
		Undirected: true,
	}
}
