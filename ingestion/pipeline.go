package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/cohorts/ai"
	"github.com/poiesic/cohorts/core"
	"github.com/poiesic/cohorts/storage"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultPoolSize is the number of concurrent classifier calls.
	DefaultPoolSize = 8

	// DefaultClassifyTimeout bounds a single classifier call.
	DefaultClassifyTimeout = 10 * time.Second

	// DefaultRetryDelay is the first pause between classifier attempts.
	DefaultRetryDelay = 500 * time.Millisecond
)

// Pipeline reconciles batches of profile records against the stored profiles.
// Distinct interests are classified concurrently; everything else runs
// sequentially in one pass per batch.
type Pipeline struct {
	profiles storage.ProfileRepository
	runs     storage.RunRepository
	cohorts  *cohortAssigner
	pool     *ants.Pool
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the worker pool size for concurrent classification.
// Default is DefaultPoolSize.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}

		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		if p.pool != nil {
			p.pool.Release()
		}
		p.pool = pool
		p.cohorts.pool = pool
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger.With("component", "pipeline")
		p.cohorts.logger = logger.With("component", "cohort-assigner")
		return nil
	}
}

// WithClassifyTimeout bounds each classifier call.
// Default is DefaultClassifyTimeout.
func WithClassifyTimeout(timeout time.Duration) Option {
	return func(p *Pipeline) error {
		if timeout <= 0 {
			timeout = DefaultClassifyTimeout
		}
		p.cohorts.timeout = timeout
		return nil
	}
}

// WithClassifyAttempts sets how many times an interest is sent to the
// classifier before it degrades to unknown, and the first pause between
// attempts, which doubles after each failure.
// Default is a single attempt.
func WithClassifyAttempts(attempts int, retryDelay time.Duration) Option {
	return func(p *Pipeline) error {
		if attempts < 1 {
			attempts = 1
		}
		if retryDelay < 0 {
			retryDelay = DefaultRetryDelay
		}
		p.cohorts.attempts = attempts
		p.cohorts.retryDelay = retryDelay
		return nil
	}
}

// WithCohortCache persists classifications across runs.
// Nothing is cached until WithCohortCacheTTL sets a positive TTL.
func WithCohortCache(cache storage.CohortCacheRepository) Option {
	return func(p *Pipeline) error {
		p.cohorts.cache = cache
		return nil
	}
}

// WithCohortCacheTTL sets how long cached classifications stay valid.
// Zero (the default) keeps classifications for the duration of one run only.
func WithCohortCacheTTL(ttl time.Duration) Option {
	return func(p *Pipeline) error {
		if ttl < 0 {
			ttl = 0
		}
		p.cohorts.cacheTTL = ttl
		return nil
	}
}

// WithRunLedger records a summary of every named run.
func WithRunLedger(runs storage.RunRepository) Option {
	return func(p *Pipeline) error {
		p.runs = runs
		return nil
	}
}

// NewPipeline creates a new reconciliation pipeline.
func NewPipeline(
	profiles storage.ProfileRepository,
	provider ai.AIProvider,
	opts ...Option,
) (*Pipeline, error) {
	if profiles == nil {
		return nil, ErrProfileRepositoryRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	pool, err := ants.NewPool(DefaultPoolSize)
	if err != nil {
		return nil, err
	}

	logger := slog.Default()
	p := &Pipeline{
		profiles: profiles,
		pool:     pool,
		logger:   logger.With("component", "pipeline"),
		now:      func() time.Time { return time.Now().UTC() },
		cohorts: &cohortAssigner{
			classifier: provider.Classifier(),
			pool:       pool,
			timeout:    DefaultClassifyTimeout,
			attempts:   1,
			retryDelay: DefaultRetryDelay,
			logger:     logger.With("component", "cohort-assigner"),
		},
	}

	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.Release()
			return nil, optErr
		}
	}

	return p, nil
}

// ReconcileFile reads a CSV or JSON batch file and reconciles it.
// The file name is the run's source in the run ledger.
func (p *Pipeline) ReconcileFile(ctx context.Context, path string) (*core.BatchReport, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}
	return p.load(ctx, filepath.Base(path), func() ([]*core.Record, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return ReadRecords(f, format)
	})
}

// ReconcileReader reconciles a batch read from r.
func (p *Pipeline) ReconcileReader(ctx context.Context, source string, format Format, r io.Reader) (*core.BatchReport, error) {
	return p.load(ctx, source, func() ([]*core.Record, error) {
		return ReadRecords(r, format)
	})
}

// Reconcile reconciles already decoded records. Every record must carry an
// identity; otherwise nothing is written and ErrLoadFailed is returned.
func (p *Pipeline) Reconcile(ctx context.Context, source string, records []*core.Record) (*core.BatchReport, error) {
	var errs []error
	for _, record := range records {
		if err := core.ValidateRecord(record); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrLoadFailed, errors.Join(errs...))
	}
	return p.load(ctx, source, func() ([]*core.Record, error) {
		return records, nil
	})
}

// load reads the batch and the stored snapshot concurrently, then reconciles.
// Either failure is fatal and nothing is written.
func (p *Pipeline) load(ctx context.Context, source string, read func() ([]*core.Record, error)) (*core.BatchReport, error) {
	var (
		records  []*core.Record
		snapshot []*core.Profile
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		records, err = read()
		return err
	})
	g.Go(func() error {
		var err error
		snapshot, err = p.profiles.Snapshot(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}
	return p.reconcile(ctx, source, records, snapshot)
}

// reconcile runs one batch against a snapshot of the store:
// suppress known cookies, classify interests, insert new identities and
// merge existing ones.
func (p *Pipeline) reconcile(ctx context.Context, source string, records []*core.Record, snapshot []*core.Profile) (*core.BatchReport, error) {
	report := &core.BatchReport{
		RunID:     uuid.NewString(),
		Source:    source,
		Received:  len(records),
		StartedAt: p.now(),
	}
	logger := p.logger.With("run", report.RunID, "source", source)
	logger.Info("reconciling batch", "records", len(records), "stored", len(snapshot))

	byEmail := make(map[string]*core.Profile, len(snapshot))
	cookies := make(map[string]bool, len(snapshot))
	for _, profile := range snapshot {
		if profile.Email != "" {
			byEmail[profile.Email] = profile
		}
		if profile.Cookie != "" {
			cookies[profile.Cookie] = true
		}
	}

	// Records whose cookie is already stored are dropped before anything else.
	survivors := make([]*core.Record, 0, len(records))
	for _, record := range records {
		if record.Cookie != "" && cookies[record.Cookie] {
			report.Suppressed++
			continue
		}
		survivors = append(survivors, record)
	}

	interests := make([][]string, len(survivors))
	var distinct []string
	seen := make(map[string]bool)
	for i, record := range survivors {
		interests[i] = core.ParseInterests(record.Interests)
		for _, interest := range interests[i] {
			if !seen[interest] {
				seen[interest] = true
				distinct = append(distinct, interest)
			}
		}
	}
	report.DistinctInterests = len(distinct)

	assigned, err := p.cohorts.assign(ctx, distinct)
	if err != nil {
		return nil, fmt.Errorf("classification aborted: %w", err)
	}
	report.ClassifierFailures = assigned.failures

	newGroups := newFoldedGroups()
	existingGroups := newFoldedGroups()
	for i, record := range survivors {
		incoming := profileFromRecord(record, interests[i], assigned.cohorts)
		if record.Email != "" && byEmail[record.Email] != nil {
			existingGroups.add(record.Email, incoming)
			continue
		}
		newGroups.add(record.IdentityKey(), incoming)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var opErrs []error
	if inserts := newGroups.profiles(); len(inserts) > 0 {
		for i := range inserts {
			inserts[i] = core.Sanitize(inserts[i])
		}
		result, err := p.profiles.InsertProfiles(ctx, inserts...)
		if result != nil {
			report.Inserts = *result
		}
		if err != nil {
			opErrs = append(opErrs, fmt.Errorf("insert: %w", err))
		}
	}

	if merges := existingGroups.keys; len(merges) > 0 {
		updates := make([]*core.ProfileUpdate, 0, len(merges))
		for _, email := range merges {
			existing := byEmail[email]
			patch := core.Sanitize(core.Reconcile(existing, existingGroups.byKey[email]))
			updates = append(updates, &core.ProfileUpdate{Id: existing.Id, Patch: patch})
		}
		result, err := p.profiles.UpdateProfiles(ctx, updates...)
		if result != nil {
			report.Updates = *result
		}
		if err != nil {
			opErrs = append(opErrs, fmt.Errorf("update: %w", err))
		}
	} else {
		logger.Info("no records to merge")
	}

	report.FinishedAt = p.now()
	p.recordRun(ctx, logger, report)

	logger.Info("batch reconciled",
		"suppressed", report.Suppressed,
		"interests", report.DistinctInterests,
		"classifier_failures", report.ClassifierFailures,
		"inserted", report.Inserted(),
		"updated", report.Updated(),
		"failed", report.Failed(),
		"duration", report.FinishedAt.Sub(report.StartedAt))

	if err := errors.Join(append(opErrs, report.Err())...); err != nil {
		return report, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return report, nil
}

func (p *Pipeline) recordRun(ctx context.Context, logger *slog.Logger, report *core.BatchReport) {
	if p.runs == nil || report.Source == "" {
		return
	}
	if err := p.runs.SaveRun(ctx, report.RunRecord()); err != nil {
		logger.Warn("failed to record run", "err", err)
	}
}

// Release releases resources including the worker pool.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}

// profileFromRecord builds the incoming observation of a record.
func profileFromRecord(record *core.Record, interests []string, cohorts map[string]core.Cohort) *core.Profile {
	createdAt, _ := core.ParseTimestamp(record.CreatedAt)
	return &core.Profile{
		Email:     record.Email,
		Cookie:    record.Cookie,
		Interests: interests,
		Cohorts:   core.CohortsFor(interests, cohorts),
		CreatedAt: createdAt,
		Fields:    maps.Clone(record.Fields),
	}
}

// foldedGroups folds observations sharing a key, keeping first-seen order.
type foldedGroups struct {
	keys  []string
	byKey map[string]*core.Profile
}

func newFoldedGroups() *foldedGroups {
	return &foldedGroups{byKey: make(map[string]*core.Profile)}
}

func (g *foldedGroups) add(key string, p *core.Profile) {
	acc, ok := g.byKey[key]
	if !ok {
		g.keys = append(g.keys, key)
		g.byKey[key] = p
		return
	}
	g.byKey[key] = core.Fold(acc, p)
}

func (g *foldedGroups) profiles() []*core.Profile {
	out := make([]*core.Profile, len(g.keys))
	for i, key := range g.keys {
		out[i] = g.byKey[key]
	}
	return out
}
