// Package metrics 汇总 graphrec 的 Prometheus 指标。
//
// 覆盖：
//   - 图存储操作耗时与错误（按 store / op / kind）
//   - 相似边物化的页数、边数与整体耗时
//   - Resolve 的命中策略（content / collaborative / empty）
//   - 推荐结果缓存命中率
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	GraphOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "graphrec_graph_op_duration_seconds",
			Help:    "Duration of graph store operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"store", "op"},
	)

	GraphOpErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphrec_graph_op_errors_total",
			Help: "Total number of graph store operation errors",
		},
		[]string{"store", "op", "kind"}, // kind: unavailable / operation_failed / other
	)

	MaterializePages = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "graphrec_materialize_pages_total",
			Help: "Total number of item pages processed by the similarity materializer",
		},
	)

	MaterializeEdges = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "graphrec_materialize_edges_total",
			Help: "Total number of SIMILAR edge upserts issued by the similarity materializer",
		},
	)

	MaterializeRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphrec_materialize_runs_total",
			Help: "Total number of materializer runs by outcome",
		},
		[]string{"outcome"}, // ok / error / canceled
	)

	MaterializeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "graphrec_materialize_duration_seconds",
			Help:    "Wall-clock duration of a full materializer run",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
		},
	)

	ResolveTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphrec_resolve_total",
			Help: "Total number of resolve calls by the strategy that produced the answer",
		},
		[]string{"strategy"},
	)

	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "graphrec_cache_hits_total",
			Help: "Total number of recommendation cache hits",
		},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "graphrec_cache_misses_total",
			Help: "Total number of recommendation cache misses",
		},
	)
)

// ObserveGraphOp 记录一次图存储操作的耗时。
func ObserveGraphOp(store, op string, start time.Time) {
	GraphOpDuration.WithLabelValues(store, op).Observe(time.Since(start).Seconds())
}

// RecordGraphError 记录一次图存储操作错误。
func RecordGraphError(store, op, kind string) {
	GraphOpErrors.WithLabelValues(store, op, kind).Inc()
}
