package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "data", cfg.DataDir)
	assert.Equal(t, IndexExact, cfg.Index)
	assert.Equal(t, "gpt-4", cfg.Classifier.Model)
	assert.Equal(t, 8, cfg.Ingestion.PoolSize)
	assert.Equal(t, 10*time.Second, cfg.Ingestion.ClassifyTimeout)
	assert.Equal(t, 2, cfg.Ingestion.ClassifyAttempts)
	assert.Zero(t, cfg.Ingestion.CohortCacheTTL)
	assert.Equal(t, 100, cfg.Search.CandidateLimit)
	assert.Equal(t, 150, cfg.HNSW.EfSearch)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
}

func TestLoad_YAMLThenEnvironment(t *testing.T) {
	path := writeFile(t, "cohorts.yaml", `
data_dir: /var/lib/cohorts
index: hnsw
classifier:
  host: http://localhost:11434
  model: qwen2.5:3b
ingestion:
  pool_size: 4
  cohort_cache_ttl: 24h
search:
  candidate_limit: 50
`)
	t.Setenv("COHORTS_INGESTION_POOL_SIZE", "16")
	t.Setenv("COHORTS_CLASSIFIER_TOKEN", "secret")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/cohorts", cfg.DataDir)
	assert.Equal(t, IndexHNSW, cfg.Index)
	assert.Equal(t, "qwen2.5:3b", cfg.Classifier.Model)
	assert.Equal(t, 16, cfg.Ingestion.PoolSize, "environment wins over the file")
	assert.Equal(t, 24*time.Hour, cfg.Ingestion.CohortCacheTTL)
	assert.Equal(t, 50, cfg.Search.CandidateLimit)
	assert.Equal(t, "secret", cfg.Classifier.Token)

	aiCfg := cfg.AIConfig()
	require.NoError(t, aiCfg.Validate())
	assert.Equal(t, "http://localhost:11434/v1", aiCfg.ClassifierHost)
}

func TestLoad_DotEnv(t *testing.T) {
	envFile := writeFile(t, "test.env", "COHORTS_SEARCH_CANDIDATE_LIMIT=42\nCOHORTS_HTTP_ADDR=:9999\n")
	t.Setenv("COHORTS_HTTP_ADDR", ":7000")
	// Variables loaded from the file outlive the test unless cleared.
	t.Cleanup(func() { os.Unsetenv("COHORTS_SEARCH_CANDIDATE_LIMIT") })

	cfg, err := Load("", envFile)
	require.NoError(t, err)
	assert.Equal(t, 42, cfg.Search.CandidateLimit)
	assert.Equal(t, ":7000", cfg.HTTP.Addr, "existing variables are not overridden")
}

func TestLoad_OpenAIKeyFallback(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "sk-test", cfg.Classifier.Token)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.ErrorContains(t, err, "read config file")
	})

	t.Run("unknown key", func(t *testing.T) {
		path := writeFile(t, "bad.yaml", "colour: blue\n")
		_, err := Load(path)
		assert.ErrorContains(t, err, "parse config file")
	})

	t.Run("bad environment value", func(t *testing.T) {
		t.Setenv("COHORTS_INGESTION_CLASSIFY_TIMEOUT", "soon")
		_, err := Load("")
		assert.ErrorContains(t, err, "read environment")
	})

	t.Run("missing env file", func(t *testing.T) {
		_, err := Load("", filepath.Join(t.TempDir(), "absent.env"))
		assert.ErrorContains(t, err, "load env files")
	})

	t.Run("invalid result", func(t *testing.T) {
		t.Setenv("COHORTS_INDEX", "faiss")
		_, err := Load("")
		assert.ErrorContains(t, err, "configuration validation failed")
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "in memory without dir", mutate: func(c *Config) { c.DataDir = ""; c.InMemory = true }},
		{name: "no dir", mutate: func(c *Config) { c.DataDir = "" }, wantErr: "data_dir"},
		{name: "log level", mutate: func(c *Config) { c.LogLevel = "trace" }, wantErr: "log_level"},
		{name: "index", mutate: func(c *Config) { c.Index = "faiss" }, wantErr: "index"},
		{name: "classifier model", mutate: func(c *Config) { c.Classifier.Model = "" }, wantErr: "ClassifierModel"},
		{name: "pool size", mutate: func(c *Config) { c.Ingestion.PoolSize = 0 }, wantErr: "pool_size"},
		{name: "timeout", mutate: func(c *Config) { c.Ingestion.ClassifyTimeout = 0 }, wantErr: "classify_timeout"},
		{name: "attempts", mutate: func(c *Config) { c.Ingestion.ClassifyAttempts = 0 }, wantErr: "classify_attempts"},
		{name: "retry delay", mutate: func(c *Config) { c.Ingestion.RetryDelay = -time.Second }, wantErr: "retry_delay"},
		{name: "cache ttl", mutate: func(c *Config) { c.Ingestion.CohortCacheTTL = -time.Second }, wantErr: "cohort_cache_ttl"},
		{name: "candidates", mutate: func(c *Config) { c.Search.CandidateLimit = 0 }, wantErr: "candidate_limit"},
		{name: "hnsw", mutate: func(c *Config) { c.HNSW.M = 0 }, wantErr: "hnsw"},
		{name: "addr", mutate: func(c *Config) { c.HTTP.Addr = " " }, wantErr: "http.addr"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
