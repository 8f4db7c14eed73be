// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cohorts opens the profile store, the optional vector index and the
// classifier once and hands out pipelines and searchers that share them.
package cohorts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/poiesic/cohorts/ai"
	"github.com/poiesic/cohorts/ai/openai"
	"github.com/poiesic/cohorts/config"
	"github.com/poiesic/cohorts/core"
	"github.com/poiesic/cohorts/ingestion"
	"github.com/poiesic/cohorts/reindex"
	"github.com/poiesic/cohorts/search"
	"github.com/poiesic/cohorts/storage"
	"github.com/poiesic/cohorts/storage/badger"
	"github.com/poiesic/cohorts/vectorindex"
)

// ErrIndexDisabled is returned by operations that need the HNSW index when
// the database was opened with exact search.
var ErrIndexDisabled = errors.New("hnsw index is not enabled")

type Database struct {
	backend     *badger.Backend
	profileRepo *badger.ProfileRepository
	cohortRepo  *badger.CohortCacheRepository
	runRepo     *badger.RunRepository
	index       *vectorindex.HNSWIndex
	provider    ai.AIProvider
	config      *config.Config
	baseLogger  *slog.Logger
	logger      *slog.Logger
}

// DatabaseOption configures a Database.
type DatabaseOption func(*databaseOptions)

type databaseOptions struct {
	provider ai.AIProvider
	logger   *slog.Logger
}

// WithAIProvider uses provider instead of opening the configured
// OpenAI-compatible classifier. The database still closes it.
func WithAIProvider(provider ai.AIProvider) DatabaseOption {
	return func(o *databaseOptions) {
		o.provider = provider
	}
}

// WithLogger sets the logger handed to every component.
func WithLogger(logger *slog.Logger) DatabaseOption {
	return func(o *databaseOptions) {
		o.logger = logger
	}
}

// OpenDatabase opens everything cfg describes. A nil cfg means config.Default().
func OpenDatabase(cfg *config.Config, opts ...DatabaseOption) (*Database, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Apply options
	options := &databaseOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	// Open backend
	storeDir := ""
	if !cfg.InMemory {
		storeDir = filepath.Join(cfg.DataDir, "profiles")
	}
	backend, err := badger.OpenBackend(storeDir, cfg.InMemory)
	if err != nil {
		return nil, err
	}

	// Create profile repository
	profileRepo, err := badger.NewProfileRepository(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}

	db := &Database{
		backend:     backend,
		profileRepo: profileRepo,
		cohortRepo:  badger.NewCohortCacheRepository(backend),
		runRepo:     badger.NewRunRepository(backend),
		config:      cfg,
		baseLogger:  options.logger,
		logger:      options.logger.With("component", "database"),
	}

	if cfg.Index == config.IndexHNSW {
		indexDir := ""
		if !cfg.InMemory {
			indexDir = filepath.Join(cfg.DataDir, "index")
		}
		db.index, err = vectorindex.NewHNSWIndex(vectorindex.HNSWConfig{
			Dir:      indexDir,
			M:        cfg.HNSW.M,
			EfSearch: cfg.HNSW.EfSearch,
			Ml:       cfg.HNSW.Ml,
		})
		if err != nil {
			db.closeStore()
			return nil, fmt.Errorf("open hnsw index: %w", err)
		}
	}

	// Create AI provider with configured settings
	db.provider = options.provider
	if db.provider == nil {
		db.provider, err = openai.NewProvider(cfg.AIConfig())
		if err != nil {
			if db.index != nil {
				db.index.Close()
			}
			db.closeStore()
			return nil, err
		}
	}

	return db, nil
}

// Close releases the provider, saves the index and closes the store.
func (db *Database) Close() error {
	var errs []error

	// Close AI provider first
	if err := db.provider.Close(); err != nil {
		db.logger.Error("error closing AI provider", "err", err)
	}

	if db.index != nil {
		if err := db.index.Close(); err != nil {
			db.logger.Error("error saving hnsw index", "err", err)
			errs = append(errs, err)
		}
	}

	if err := db.closeStore(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (db *Database) closeStore() error {
	db.runRepo.Close()
	db.cohortRepo.Close()
	if err := db.profileRepo.Close(); err != nil {
		db.logger.Error("error closing profile repository", "err", err)
		return err
	}

	// Close backend
	if err := db.backend.Close(); err != nil {
		db.logger.Error("error closing backend storage", "err", err)
		return err
	}
	return nil
}

func (db *Database) ProfileRepository() storage.ProfileRepository {
	return db.profileRepo
}

func (db *Database) RunRepository() storage.RunRepository {
	return db.runRepo
}

// NewPipeline creates a reconciliation pipeline configured from the
// database's settings. opts are applied after those settings.
func (db *Database) NewPipeline(opts ...ingestion.Option) (*ingestion.Pipeline, error) {
	settings := db.config.Ingestion
	base := []ingestion.Option{
		ingestion.WithLogger(db.baseLogger),
		ingestion.WithPoolSize(settings.PoolSize),
		ingestion.WithClassifyTimeout(settings.ClassifyTimeout),
		ingestion.WithClassifyAttempts(settings.ClassifyAttempts, settings.RetryDelay),
		ingestion.WithCohortCache(db.cohortRepo),
		ingestion.WithCohortCacheTTL(settings.CohortCacheTTL),
		ingestion.WithRunLedger(db.runRepo),
	}
	return ingestion.NewPipeline(db.profileRepo, db.provider, append(base, opts...)...)
}

// NewSearcher creates a searcher. Candidates come from the HNSW index when
// it is enabled and from the exact store search otherwise.
func (db *Database) NewSearcher(opts ...search.Option) (*search.Searcher, error) {
	base := []search.Option{
		search.WithLogger(db.baseLogger),
		search.WithCandidateLimit(db.config.Search.CandidateLimit),
	}
	if db.index != nil {
		base = append(base, search.WithVectorSearcher(vectorindex.NewProfileSearcher(db.index, db.profileRepo)))
	}
	return search.NewSearcher(db.profileRepo, append(base, opts...)...)
}

// NewReindexer creates a reindexer that rebuilds the HNSW index from the store.
// A nil cfg means reindex.DefaultConfig().
func (db *Database) NewReindexer(cfg *reindex.Config, progress io.Writer) (*reindex.Reindexer, error) {
	if db.index == nil {
		return nil, ErrIndexDisabled
	}
	return reindex.NewReindexer(db.profileRepo, db.index, cfg, progress), nil
}

// SetEmbeddings stores the embedding vector of a profile and refreshes the
// index entry when the index is enabled. A vector the index would reject is
// not stored.
func (db *Database) SetEmbeddings(ctx context.Context, id core.ID, vector []float32) error {
	if db.index != nil {
		if err := db.index.Accepts(vector); err != nil {
			return fmt.Errorf("index embeddings of %d: %w", id, err)
		}
	}
	if err := db.profileRepo.SetEmbeddings(ctx, id, vector); err != nil {
		return err
	}
	if db.index == nil {
		return nil
	}
	if err := db.index.Add(ctx, id, vector); err != nil {
		return fmt.Errorf("index embeddings of %d: %w", id, err)
	}
	return nil
}

// EmbeddingReport counts the outcome of ImportEmbeddings.
type EmbeddingReport struct {
	Stored  int
	Missing int
	Failed  int
}

// ImportEmbeddings stores each vector on the profile it names, looked up by
// email first and cookie second. Unknown users are counted and skipped;
// failed writes are joined into the returned error after every entry is tried.
func (db *Database) ImportEmbeddings(ctx context.Context, embeddings []*ingestion.Embedding) (*EmbeddingReport, error) {
	report := &EmbeddingReport{}
	var errs []error
	for _, e := range embeddings {
		if err := ctx.Err(); err != nil {
			return report, errors.Join(append(errs, err)...)
		}
		profile, err := db.findProfile(ctx, e.Email, e.Cookie)
		if errors.Is(err, storage.ErrNotFound) {
			db.logger.Debug("no profile for embedding", "line", e.Line, "email", e.Email, "cookie", e.Cookie)
			report.Missing++
			continue
		}
		if err == nil {
			err = db.SetEmbeddings(ctx, profile.Id, e.Vector)
		}
		if err != nil {
			report.Failed++
			errs = append(errs, fmt.Errorf("line %d: %w", e.Line, err))
			continue
		}
		report.Stored++
	}
	db.logger.Info("embeddings imported",
		"stored", report.Stored, "missing", report.Missing, "failed", report.Failed)
	return report, errors.Join(errs...)
}

func (db *Database) findProfile(ctx context.Context, email, cookie string) (*core.Profile, error) {
	if email != "" {
		profile, err := db.profileRepo.FindByEmail(ctx, email)
		if err == nil || cookie == "" || !errors.Is(err, storage.ErrNotFound) {
			return profile, err
		}
	}
	return db.profileRepo.FindByCookie(ctx, cookie)
}
