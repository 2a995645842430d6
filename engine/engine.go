// Package engine 是 graphrec 的编程接口：组装图存储、相似边物化、召回与后处理，
// 对外提供 MaterializeSimilarities / Resolve / LoadDataset。
package engine

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/rushteam/graphrec/core"
	"github.com/rushteam/graphrec/ingest"
	"github.com/rushteam/graphrec/metrics"
	"github.com/rushteam/graphrec/pipeline"
	"github.com/rushteam/graphrec/pkg/logger"
	"github.com/rushteam/graphrec/recall"
	"github.com/rushteam/graphrec/similarity"
)

const (
	cacheGenerationKey = "graphrec:gen"
	cacheKeyPrefix     = "graphrec:rec"
)

// Options 是 Engine 的依赖与参数。零值参数使用各组件的默认值。
type Options struct {
	Graph core.GraphStore

	// Cache 为空时不缓存；CacheTTL <= 0 时缓存不过期（仍随代际号失效）
	Cache    core.Store
	CacheTTL time.Duration

	// Post 是 Resolve 结果的后处理链，为空时结果原样返回
	Post *pipeline.Pipeline

	Logger *logger.Logger

	PageSize int
	Workers  int

	ContentTopK       int
	SimilarUsers      int
	CollaborativeTopK int
	MinCommonItems    int

	IngestBatchSize int
}

type Engine struct {
	opts     Options
	resolver *recall.Fallback
	log      *logger.Logger
}

func New(opts Options) (*Engine, error) {
	if opts.Graph == nil {
		return nil, core.NewDomainError(core.ModuleConfig, core.ErrorCodeInvalidInput, "engine: graph store is required")
	}
	log := logger.OrNop(opts.Logger).With("component", "engine")
	return &Engine{
		opts: opts,
		log:  log,
		resolver: &recall.Fallback{
			Logger: log,
			Sources: []recall.Source{
				&recall.ContentRecall{Graph: opts.Graph, TopK: opts.ContentTopK},
				&recall.UserBasedCF{
					Graph:            opts.Graph,
					TopKSimilarUsers: opts.SimilarUsers,
					TopKItems:        opts.CollaborativeTopK,
					MinCommonItems:   opts.MinCommonItems,
				},
			},
		},
	}, nil
}

// MaterializeSimilarities 全量物化 SIMILAR 边；pageSize <= 0 时使用配置值或默认值。
// 成功后递增缓存代际号，旧的推荐缓存不再命中。
// 同一张图上的多次物化需要调用方串行执行。
func (e *Engine) MaterializeSimilarities(ctx context.Context, pageSize int) (similarity.Stats, error) {
	if pageSize <= 0 {
		pageSize = e.opts.PageSize
	}
	m := &similarity.Materializer{
		Graph:    e.opts.Graph,
		PageSize: pageSize,
		Workers:  e.opts.Workers,
		Logger:   e.log,
	}
	stats, err := m.Run(ctx)
	if err != nil {
		return stats, err
	}
	if e.opts.Cache != nil {
		if _, err := e.opts.Cache.Incr(ctx, cacheGenerationKey); err != nil {
			e.log.Warn("bump cache generation failed", "error", err)
		}
	}
	return stats, nil
}

// Resolve 先走基于内容的推荐，结果为空时回退到协同过滤。
// 查不到任何推荐是成功的空结果；存储错误原样返回。
func (e *Engine) Resolve(ctx context.Context, actorKey, itemKey string) ([]core.Recommendation, error) {
	gen := e.cacheGeneration(ctx)
	key := cacheKey(gen, actorKey, itemKey)
	if recs, ok := e.cacheGet(ctx, key); ok {
		return recs, nil
	}

	rctx := &core.RecommendContext{UserID: actorKey, ItemID: itemKey}
	items, err := e.resolver.Recall(ctx, rctx)
	if err != nil {
		return nil, err
	}
	if e.opts.Post != nil {
		items, err = e.opts.Post.Run(ctx, rctx, items)
		if err != nil {
			return nil, err
		}
	}
	recs := core.ToRecommendations(items)

	e.cacheSet(ctx, key, recs)
	return recs, nil
}

// LoadDataset 导入电影与评分 CSV。
func (e *Engine) LoadDataset(ctx context.Context, movies, ratings io.Reader, sampleSize int) (ingest.Summary, error) {
	l := &ingest.Loader{Graph: e.opts.Graph, BatchSize: e.opts.IngestBatchSize, Logger: e.log}
	return l.LoadCSV(ctx, movies, ratings, sampleSize)
}

// ---------- 缓存 ----------

func cacheKey(gen int64, actorKey, itemKey string) string {
	return fmt.Sprintf("%s:%d:%q:%q", cacheKeyPrefix, gen, actorKey, itemKey)
}

func (e *Engine) cacheGeneration(ctx context.Context) int64 {
	if e.opts.Cache == nil {
		return 0
	}
	data, err := e.opts.Cache.Get(ctx, cacheGenerationKey)
	if err != nil {
		if !core.IsStoreNotFound(err) {
			e.log.Warn("read cache generation failed", "error", err)
		}
		return 0
	}
	gen, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return 0
	}
	return gen
}

func (e *Engine) cacheGet(ctx context.Context, key string) ([]core.Recommendation, bool) {
	if e.opts.Cache == nil {
		return nil, false
	}
	data, err := e.opts.Cache.Get(ctx, key)
	if err != nil {
		if !core.IsStoreNotFound(err) {
			e.log.Warn("cache get failed", "key", key, "error", err)
		}
		metrics.CacheMisses.Inc()
		return nil, false
	}
	var recs []core.Recommendation
	if err := json.Unmarshal(data, &recs); err != nil {
		e.log.Warn("cache payload corrupted", "key", key, "error", err)
		metrics.CacheMisses.Inc()
		return nil, false
	}
	metrics.CacheHits.Inc()
	return recs, true
}

func (e *Engine) cacheSet(ctx context.Context, key string, recs []core.Recommendation) {
	if e.opts.Cache == nil {
		return
	}
	data, err := json.Marshal(recs)
	if err != nil {
		e.log.Warn("cache encode failed", "key", key, "error", err)
		return
	}
	var ttl []int
	if e.opts.CacheTTL > 0 {
		ttl = append(ttl, int(e.opts.CacheTTL/time.Second))
	}
	if err := e.opts.Cache.Set(ctx, key, data, ttl...); err != nil {
		e.log.Warn("cache set failed", "key", key, "error", err)
	}
}
