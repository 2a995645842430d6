package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rushteam/graphrec/core"
	"github.com/rushteam/graphrec/pipeline"
	"github.com/rushteam/graphrec/store"
)

// Config 是 graphrec 的运行配置：YAML 文件 + 环境变量覆盖。
//
// 环境变量：
//
//	NEO4J_URI / NEO4J_USERNAME（或 NEO4J_USER）/ NEO4J_PASSWORD / NEO4J_DATABASE
//	REDIS_ADDR
//	GRAPHREC_LOG_MODE
type Config struct {
	Neo4j      Neo4jConfig           `yaml:"neo4j"`
	Redis      RedisConfig           `yaml:"redis"`
	Log        LogConfig             `yaml:"log"`
	Similarity SimilarityConfig      `yaml:"similarity"`
	Recall     RecallConfig          `yaml:"recall"`
	Ingest     IngestConfig          `yaml:"ingest"`
	Cache      CacheConfig           `yaml:"cache"`
	Pipeline   []pipeline.NodeConfig `yaml:"pipeline"`
}

type Neo4jConfig struct {
	URI            string        `yaml:"uri"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	Database       string        `yaml:"database"`
	QueryTimeout   time.Duration `yaml:"query_timeout"`
	MaxPoolSize    int           `yaml:"max_pool_size"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

type RedisConfig struct {
	Addr string `yaml:"addr"` // 为空时使用进程内缓存
	DB   int    `yaml:"db"`
}

type LogConfig struct {
	Mode string `yaml:"mode"` // dev / prod
}

type SimilarityConfig struct {
	PageSize int `yaml:"page_size"`
	Workers  int `yaml:"workers"`
}

type RecallConfig struct {
	ContentTopK       int `yaml:"content_top_k"`
	SimilarUsers      int `yaml:"similar_users"`
	CollaborativeTopK int `yaml:"collaborative_top_k"`
	MinCommonItems    int `yaml:"min_common_items"`
}

type IngestConfig struct {
	MoviesPath  string `yaml:"movies_path"`
	RatingsPath string `yaml:"ratings_path"`
	SampleSize  int    `yaml:"sample_size"`
	BatchSize   int    `yaml:"batch_size"`
}

type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	TTL     time.Duration `yaml:"ttl"`
}

// Default 返回默认配置。
func Default() Config {
	return Config{
		Neo4j: Neo4jConfig{
			URI:            "bolt://localhost:7687",
			Username:       "neo4j",
			QueryTimeout:   30 * time.Second,
			MaxPoolSize:    50,
			ConnectTimeout: 10 * time.Second,
		},
		Log:        LogConfig{Mode: "dev"},
		Similarity: SimilarityConfig{PageSize: 2000, Workers: 4},
		Recall: RecallConfig{
			ContentTopK:       5,
			SimilarUsers:      5,
			CollaborativeTopK: 5,
			MinCommonItems:    1,
		},
		Ingest: IngestConfig{
			MoviesPath:  "movies.csv",
			RatingsPath: "ratings.csv",
			SampleSize:  2000,
			BatchSize:   500,
		},
		Cache: CacheConfig{Enabled: true, TTL: 5 * time.Minute},
	}
}

// Load 读取 YAML 配置（path 为空时只用默认值），再应用环境变量覆盖并校验。
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, core.WrapDomainError(core.ModuleConfig, core.ErrorCodeInvalidInput, "config: parse yaml", err)
		}
	}
	cfg.ApplyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv 用环境变量覆盖连接类配置，空值不覆盖。
func (c *Config) ApplyEnv(getenv func(string) string) {
	set := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v := strings.TrimSpace(getenv(k)); v != "" {
				*dst = v
				return
			}
		}
	}
	set(&c.Neo4j.URI, "NEO4J_URI")
	set(&c.Neo4j.Username, "NEO4J_USERNAME", "NEO4J_USER")
	set(&c.Neo4j.Password, "NEO4J_PASSWORD")
	set(&c.Neo4j.Database, "NEO4J_DATABASE")
	set(&c.Redis.Addr, "REDIS_ADDR")
	set(&c.Log.Mode, "GRAPHREC_LOG_MODE")
}

// Validate 拒绝非正的尺寸与超时，并校验 pipeline 中的 Node 类型均已注册。
func (c Config) Validate() error {
	var errs []error
	positive := func(name string, v int) {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", name, v))
		}
	}
	positive("similarity.page_size", c.Similarity.PageSize)
	positive("similarity.workers", c.Similarity.Workers)
	positive("recall.content_top_k", c.Recall.ContentTopK)
	positive("recall.similar_users", c.Recall.SimilarUsers)
	positive("recall.collaborative_top_k", c.Recall.CollaborativeTopK)
	positive("ingest.sample_size", c.Ingest.SampleSize)
	positive("ingest.batch_size", c.Ingest.BatchSize)
	positive("neo4j.max_pool_size", c.Neo4j.MaxPoolSize)
	if c.Neo4j.QueryTimeout <= 0 {
		errs = append(errs, fmt.Errorf("neo4j.query_timeout must be positive"))
	}
	if c.Cache.Enabled && c.Cache.TTL < time.Second {
		errs = append(errs, fmt.Errorf("cache.ttl must be at least 1s when cache is enabled"))
	}
	if err := ValidatePipelineConfig(c.pipelineConfig()); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return core.WrapDomainError(core.ModuleConfig, core.ErrorCodeInvalidInput, "config: invalid", errors.Join(errs...))
	}
	return nil
}

// StoreConfig 转换为 store.Neo4jGraph 的连接配置。
func (c Config) StoreConfig() store.Neo4jConfig {
	return store.Neo4jConfig{
		URI:            c.Neo4j.URI,
		Username:       c.Neo4j.Username,
		Password:       c.Neo4j.Password,
		Database:       c.Neo4j.Database,
		QueryTimeout:   c.Neo4j.QueryTimeout,
		MaxPoolSize:    c.Neo4j.MaxPoolSize,
		ConnectTimeout: c.Neo4j.ConnectTimeout,
	}
}

// BuildPipeline 用注册表构建后处理 Pipeline；未配置 Node 时返回空 Pipeline。
func (c Config) BuildPipeline() (*pipeline.Pipeline, error) {
	pc := c.pipelineConfig()
	if err := ValidatePipelineConfig(pc); err != nil {
		return nil, err
	}
	return pc.BuildPipeline(DefaultFactory())
}

func (c Config) pipelineConfig() *pipeline.Config {
	pc := &pipeline.Config{}
	pc.Pipeline.Name = "postprocess"
	pc.Pipeline.Nodes = c.Pipeline
	return pc
}
