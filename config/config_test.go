package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/graphrec/config"
	_ "github.com/rushteam/graphrec/config/builders"
	"github.com/rushteam/graphrec/core"
	"github.com/rushteam/graphrec/pipeline"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "graphrec.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, 2000, cfg.Similarity.PageSize)
	assert.Equal(t, 5, cfg.Recall.ContentTopK)
	assert.Equal(t, 2000, cfg.Ingest.SampleSize)
	assert.Equal(t, 30*time.Second, cfg.Neo4j.QueryTimeout)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := writeFile(t, `
neo4j:
  uri: bolt://graph:7687
  query_timeout: 5s
similarity:
  page_size: 100
cache:
  enabled: false
pipeline:
  - type: filter.expr
    config:
      expr: 'item.attribute.contains("Horror")'
  - type: rerank.topn
    config:
      n: 3
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Similarity.PageSize)
	assert.Equal(t, 4, cfg.Similarity.Workers, "unset keys keep defaults")
	assert.Equal(t, 5*time.Second, cfg.Neo4j.QueryTimeout)
	assert.False(t, cfg.Cache.Enabled)

	p, err := cfg.BuildPipeline()
	require.NoError(t, err)
	assert.Len(t, p.Nodes, 2)

	items := []*core.Item{core.NewItem("a"), core.NewItem("b"), core.NewItem("c"), core.NewItem("d")}
	items[1].Attribute = "Horror"
	out, err := p.Run(context.Background(), &core.RecommendContext{}, items)
	require.NoError(t, err)
	assert.Len(t, out, 3)
	assert.Equal(t, "c", out[1].ID)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"NEO4J_URI":      "neo4j://prod:7687",
		"NEO4J_USER":     "reader",
		"NEO4J_PASSWORD": "secret",
		"REDIS_ADDR":     "redis:6379",
	}
	cfg := config.Default()
	cfg.ApplyEnv(func(k string) string { return env[k] })

	assert.Equal(t, "neo4j://prod:7687", cfg.Neo4j.URI)
	assert.Equal(t, "reader", cfg.Neo4j.Username)
	assert.Equal(t, "secret", cfg.Neo4j.Password)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, "dev", cfg.Log.Mode)

	env["NEO4J_USERNAME"] = "admin"
	cfg.ApplyEnv(func(k string) string { return env[k] })
	assert.Equal(t, "admin", cfg.Neo4j.Username, "NEO4J_USERNAME wins over NEO4J_USER")
}

func TestValidate(t *testing.T) {
	cfg := config.Default()
	cfg.Similarity.PageSize = 0
	cfg.Recall.ContentTopK = -1
	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, core.IsInvalidInput(err))
	assert.Contains(t, err.Error(), "similarity.page_size")
	assert.Contains(t, err.Error(), "recall.content_top_k")

	cfg = config.Default()
	cfg.Pipeline = append(cfg.Pipeline, pipelineNode("rank.unknown"))
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported node type")
}

func TestStoreConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Neo4j.Database = "movies"
	sc := cfg.StoreConfig()
	assert.Equal(t, "movies", sc.Database)
	assert.Equal(t, 50, sc.MaxPoolSize)
}

func pipelineNode(typ string) pipeline.NodeConfig {
	return pipeline.NodeConfig{Type: typ}
}
