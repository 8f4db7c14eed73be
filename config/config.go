// Package config loads application settings from an optional YAML file,
// an optional .env file and COHORTS_-prefixed environment variables, in that
// order of increasing precedence.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/poiesic/cohorts/ai"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "COHORTS"

// Index kinds.
const (
	IndexExact = "exact"
	IndexHNSW  = "hnsw"
)

// Config holds every setting of the application.
type Config struct {
	DataDir  string `yaml:"data_dir" envconfig:"DATA_DIR"`
	InMemory bool   `yaml:"in_memory" envconfig:"IN_MEMORY"`
	LogLevel string `yaml:"log_level" envconfig:"LOG_LEVEL"`

	// Index selects the vector search: exact (default) or hnsw.
	Index string `yaml:"index" envconfig:"INDEX"`

	Classifier ClassifierConfig `yaml:"classifier" envconfig:"CLASSIFIER"`
	Ingestion  IngestionConfig  `yaml:"ingestion" envconfig:"INGESTION"`
	Search     SearchConfig     `yaml:"search" envconfig:"SEARCH"`
	HNSW       HNSWConfig       `yaml:"hnsw" envconfig:"HNSW"`
	HTTP       HTTPConfig       `yaml:"http" envconfig:"HTTP"`
}

// ClassifierConfig describes the OpenAI-compatible classification service.
type ClassifierConfig struct {
	Host  string `yaml:"host" envconfig:"HOST"`
	Model string `yaml:"model" envconfig:"MODEL"`
	Token string `yaml:"token" envconfig:"TOKEN"`
}

// IngestionConfig tunes the reconciliation pipeline.
type IngestionConfig struct {
	PoolSize         int           `yaml:"pool_size" envconfig:"POOL_SIZE"`
	ClassifyTimeout  time.Duration `yaml:"classify_timeout" envconfig:"CLASSIFY_TIMEOUT"`
	ClassifyAttempts int           `yaml:"classify_attempts" envconfig:"CLASSIFY_ATTEMPTS"`
	RetryDelay       time.Duration `yaml:"retry_delay" envconfig:"RETRY_DELAY"`
	CohortCacheTTL   time.Duration `yaml:"cohort_cache_ttl" envconfig:"COHORT_CACHE_TTL"`
}

// SearchConfig tunes similar-user queries.
type SearchConfig struct {
	CandidateLimit int `yaml:"candidate_limit" envconfig:"CANDIDATE_LIMIT"`
}

// HNSWConfig tunes the approximate index.
type HNSWConfig struct {
	M        int     `yaml:"m" envconfig:"M"`
	EfSearch int     `yaml:"ef_search" envconfig:"EF_SEARCH"`
	Ml       float64 `yaml:"ml" envconfig:"ML"`
}

// HTTPConfig configures the query server.
type HTTPConfig struct {
	Addr            string        `yaml:"addr" envconfig:"ADDR"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	aiDefaults := ai.DefaultConfig()
	return &Config{
		DataDir:  "data",
		LogLevel: "info",
		Index:    IndexExact,
		Classifier: ClassifierConfig{
			Host:  aiDefaults.ClassifierHost,
			Model: aiDefaults.ClassifierModel,
		},
		Ingestion: IngestionConfig{
			PoolSize:         8,
			ClassifyTimeout:  10 * time.Second,
			ClassifyAttempts: 2,
			RetryDelay:       500 * time.Millisecond,
		},
		Search: SearchConfig{
			CandidateLimit: 100,
		},
		HNSW: HNSWConfig{
			M:        16,
			EfSearch: 150,
			Ml:       0.25,
		},
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
	}
}

// Load builds the configuration. path names an optional YAML file; envFiles
// are .env files loaded into the process environment without overriding
// variables that are already set. When envFiles is empty, ./.env is loaded if
// it exists.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := decodeYAML(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := loadEnvFiles(envFiles); err != nil {
		return nil, err
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	if cfg.Classifier.Token == "" {
		cfg.Classifier.Token = os.Getenv("OPENAI_API_KEY")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func decodeYAML(raw []byte, cfg *Config) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	return dec.Decode(cfg)
}

func loadEnvFiles(files []string) error {
	if len(files) == 0 {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("load env files: %w", err)
	}
	return nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if !c.InMemory && strings.TrimSpace(c.DataDir) == "" {
		return errors.New("data_dir is required unless in_memory is set")
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level %q must be one of debug, info, warn, error", c.LogLevel)
	}
	switch c.Index {
	case IndexExact, IndexHNSW:
	default:
		return fmt.Errorf("index %q must be %s or %s", c.Index, IndexExact, IndexHNSW)
	}
	if err := c.AIConfig().Validate(); err != nil {
		return err
	}
	if c.Ingestion.PoolSize < 1 {
		return errors.New("ingestion.pool_size must be >= 1")
	}
	if c.Ingestion.ClassifyTimeout <= 0 {
		return errors.New("ingestion.classify_timeout must be positive")
	}
	if c.Ingestion.ClassifyAttempts < 1 {
		return errors.New("ingestion.classify_attempts must be >= 1")
	}
	if c.Ingestion.RetryDelay < 0 {
		return errors.New("ingestion.retry_delay must be >= 0")
	}
	if c.Ingestion.CohortCacheTTL < 0 {
		return errors.New("ingestion.cohort_cache_ttl must be >= 0")
	}
	if c.Search.CandidateLimit < 1 {
		return errors.New("search.candidate_limit must be >= 1")
	}
	if c.HNSW.M < 1 || c.HNSW.EfSearch < 1 || c.HNSW.Ml <= 0 {
		return errors.New("hnsw.m, hnsw.ef_search and hnsw.ml must be positive")
	}
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		return errors.New("http.addr is required")
	}
	return nil
}

// AIConfig converts the classifier settings into an ai.Config.
func (c *Config) AIConfig() *ai.Config {
	return ai.NewConfig(
		ai.WithClassifierHost(c.Classifier.Host),
		ai.WithClassifierModel(c.Classifier.Model),
		ai.WithToken(c.Classifier.Token),
	)
}
