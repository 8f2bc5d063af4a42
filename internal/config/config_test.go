package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "search.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	t.Setenv("CONFIG_PATH", path)
	return path
}

func TestLoadDefaults(t *testing.T) {
	writeConfig(t, "env: test\n")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "test", cfg.Env)
	assert.Equal(t, "http://localhost:9200", cfg.Elastic.URL)
	assert.Equal(t, "localhost", cfg.Qdrant.Host)
	assert.Equal(t, 6333, cfg.Qdrant.Port)
	assert.Equal(t, 20, cfg.Search.DefaultLimit)
	assert.Equal(t, 24*time.Hour, cfg.Embeddings.MemoryTTL)
	assert.InDelta(t, 0.25, cfg.Search.RefineSimilarity, 1e-9)
	assert.False(t, cfg.IsProduction())
}

func TestEnvOverrides(t *testing.T) {
	writeConfig(t, "elastic:\n  url: http://file:9200\n")
	t.Setenv("ES_URL", "http://env:9200")
	t.Setenv("QDRANT_HOST", "qdrant.internal")
	t.Setenv("QDRANT_PORT", "7333")
	t.Setenv("APP_ENV", "production")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://env:9200", cfg.Elastic.URL)
	assert.Equal(t, "qdrant.internal", cfg.Qdrant.Host)
	assert.Equal(t, 7333, cfg.Qdrant.Port)
	assert.True(t, cfg.IsProduction())
}

func TestLoadFileValues(t *testing.T) {
	writeConfig(t, `
search:
  default_limit: 15
  hadith_source_books: [7016, 7017]
llm:
  small_model: test/model
`)
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 15, cfg.Search.DefaultLimit)
	assert.Equal(t, []int64{7016, 7017}, cfg.Search.HadithSourceBooks)
	assert.Equal(t, "test/model", cfg.LLM.SmallModel)
}

func TestMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "absent.yaml"))
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "development", cfg.Env)
}
