// graphrec 命令行：导入数据集、物化相似边、查询推荐。
//
//	graphrec [-config graphrec.yaml] [-metrics-addr :9100] load [-movies m.csv] [-ratings r.csv] [-sample 2000]
//	graphrec [-config graphrec.yaml] materialize [-page-size 2000]
//	graphrec [-config graphrec.yaml] recommend -user 1 -item 862
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rushteam/graphrec/config"
	_ "github.com/rushteam/graphrec/config/builders"
	"github.com/rushteam/graphrec/core"
	"github.com/rushteam/graphrec/engine"
	"github.com/rushteam/graphrec/pkg/logger"
	"github.com/rushteam/graphrec/store"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "graphrec: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: graphrec [-config path] [-metrics-addr addr] <load|materialize|recommend> [flags]")
}

func run(args []string, stdout io.Writer) error {
	global := flag.NewFlagSet("graphrec", flag.ContinueOnError)
	global.Usage = usage
	configPath := global.String("config", "", "YAML 配置文件路径")
	metricsAddr := global.String("metrics-addr", "", "Prometheus /metrics 监听地址，为空时不启动")
	if err := global.Parse(args); err != nil {
		return err
	}
	if global.NArg() == 0 {
		usage()
		return errors.New("missing command")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *metricsAddr != "" {
		serveMetrics(ctx, *metricsAddr, log)
	}

	app, closeFn, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeFn()

	cmd, rest := global.Arg(0), global.Args()[1:]
	switch cmd {
	case "load":
		return app.load(ctx, rest, stdout)
	case "materialize":
		return app.materialize(ctx, rest, stdout)
	case "recommend":
		return app.recommend(ctx, rest, stdout)
	default:
		usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

type app struct {
	cfg    config.Config
	engine *engine.Engine
	log    *logger.Logger
}

func newApp(ctx context.Context, cfg config.Config, log *logger.Logger) (*app, func(), error) {
	graph, err := store.NewNeo4jGraph(ctx, cfg.StoreConfig(), log)
	if err != nil {
		return nil, nil, err
	}
	if err := graph.EnsureSchema(ctx); err != nil {
		_ = graph.Close(context.Background())
		return nil, nil, err
	}

	var cache core.Store
	if cfg.Cache.Enabled {
		cache, err = newCache(ctx, cfg, log)
		if err != nil {
			_ = graph.Close(context.Background())
			return nil, nil, err
		}
	}

	post, err := cfg.BuildPipeline()
	if err != nil {
		_ = graph.Close(context.Background())
		return nil, nil, err
	}

	e, err := engine.New(engine.Options{
		Graph:             graph,
		Cache:             cache,
		CacheTTL:          cfg.Cache.TTL,
		Post:              post,
		Logger:            log,
		PageSize:          cfg.Similarity.PageSize,
		Workers:           cfg.Similarity.Workers,
		ContentTopK:       cfg.Recall.ContentTopK,
		SimilarUsers:      cfg.Recall.SimilarUsers,
		CollaborativeTopK: cfg.Recall.CollaborativeTopK,
		MinCommonItems:    cfg.Recall.MinCommonItems,
		IngestBatchSize:   cfg.Ingest.BatchSize,
	})
	if err != nil {
		_ = graph.Close(context.Background())
		return nil, nil, err
	}

	closeFn := func() {
		if cache != nil {
			if err := cache.Close(); err != nil {
				log.Warn("close cache failed", "error", err)
			}
		}
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := graph.Close(shutdown); err != nil {
			log.Warn("close graph failed", "error", err)
		}
	}
	return &app{cfg: cfg, engine: e, log: log}, closeFn, nil
}

// newCache 优先使用 Redis；未配置地址时退回进程内缓存。
func newCache(ctx context.Context, cfg config.Config, log *logger.Logger) (core.Store, error) {
	if cfg.Redis.Addr == "" {
		log.Debug("redis not configured, using in-process cache")
		return store.NewMemoryStore(), nil
	}
	rs, err := store.NewRedisStore(ctx, cfg.Redis.Addr, cfg.Redis.DB)
	if err != nil {
		return nil, err
	}
	return rs, nil
}

func serveMetrics(ctx context.Context, addr string, log *logger.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server stopped", "addr", addr, "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdown)
	}()
	log.Info("metrics server listening", "addr", addr)
}

func (a *app) load(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("load", flag.ContinueOnError)
	moviesPath := fs.String("movies", a.cfg.Ingest.MoviesPath, "电影 CSV 路径")
	ratingsPath := fs.String("ratings", a.cfg.Ingest.RatingsPath, "评分 CSV 路径")
	sample := fs.Int("sample", a.cfg.Ingest.SampleSize, "每个文件读取的数据行数")
	if err := fs.Parse(args); err != nil {
		return err
	}

	movies, err := os.Open(*moviesPath)
	if err != nil {
		return fmt.Errorf("open movies: %w", err)
	}
	defer movies.Close()
	ratings, err := os.Open(*ratingsPath)
	if err != nil {
		return fmt.Errorf("open ratings: %w", err)
	}
	defer ratings.Close()

	sum, err := a.engine.LoadDataset(ctx, movies, ratings, *sample)
	if err != nil {
		return err
	}
	return writeJSON(stdout, map[string]any{
		"movies":      sum.Movies,
		"ratings":     sum.Ratings,
		"duration_ms": sum.Duration.Milliseconds(),
	})
}

func (a *app) materialize(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("materialize", flag.ContinueOnError)
	pageSize := fs.Int("page-size", a.cfg.Similarity.PageSize, "每页物品数")
	if err := fs.Parse(args); err != nil {
		return err
	}

	stats, err := a.engine.MaterializeSimilarities(ctx, *pageSize)
	if err != nil {
		return err
	}
	return writeJSON(stdout, map[string]any{
		"run_id":      stats.RunID,
		"pages":       stats.Pages,
		"nodes":       stats.NodesScanned,
		"edges":       stats.EdgesUpserted,
		"duration_ms": stats.Duration.Milliseconds(),
	})
}

func (a *app) recommend(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("recommend", flag.ContinueOnError)
	user := fs.String("user", "", "用户 ID")
	item := fs.String("item", "", "电影 ID")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *user == "" || *item == "" {
		return core.NewDomainError(core.ModuleConfig, core.ErrorCodeInvalidInput, "recommend: -user and -item are required")
	}

	recs, err := a.engine.Resolve(ctx, *user, *item)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		a.log.Info("no recommendations", "user", *user, "item", *item)
	}
	return writeJSON(stdout, recs)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
