package storage

import (
	"context"
	"time"

	"github.com/poiesic/cohorts/core"
)

// VectorSearcher finds stored profiles whose embeddings are closest to a vector.
// Results are ordered by similarity score (highest first).
type VectorSearcher interface {
	FindSimilar(ctx context.Context, vector []float32, limit int) ([]*core.SearchResult, error)
}

// Repository provides common storage operations shared across all repositories.
// Implementations must be thread-safe and support concurrent access.
type Repository interface {
	// Close releases resources held by the repository.
	Close() error
}

// ProfileRepository provides operations for managing profiles.
type ProfileRepository interface {
	Repository
	VectorSearcher

	// Snapshot reads every stored profile at a single point in time.
	Snapshot(ctx context.Context) ([]*core.Profile, error)

	// InsertProfiles stores new profiles in one batched operation.
	// Profiles with Id=0 get IDFromContent of their identity key.
	// Sets InsertedAt and UpdatedAt. A profile whose ID or identity is already
	// stored fails with ErrDuplicateKey without affecting its siblings.
	InsertProfiles(ctx context.Context, profiles ...*core.Profile) (*core.WriteResult, error)

	// UpdateProfiles applies targeted updates in one batched operation.
	// Only fields present in each patch are written. A missing profile fails
	// with ErrNotFound without affecting its siblings.
	UpdateProfiles(ctx context.Context, updates ...*core.ProfileUpdate) (*core.WriteResult, error)

	// SetEmbeddings replaces the embedding vector of one profile.
	// Returns ErrNotFound if the profile doesn't exist.
	SetEmbeddings(ctx context.Context, id core.ID, vector []float32) error

	// GetProfile retrieves a single profile by ID.
	// Returns ErrNotFound if the profile doesn't exist.
	GetProfile(ctx context.Context, id core.ID) (*core.Profile, error)

	// GetProfiles retrieves multiple profiles by their IDs.
	// Returns only the profiles that exist (no error for missing profiles).
	GetProfiles(ctx context.Context, ids ...core.ID) ([]*core.Profile, error)

	// FindByEmail returns the profile addressed by email.
	// Returns ErrNotFound if none is stored.
	FindByEmail(ctx context.Context, email string) (*core.Profile, error)

	// FindByCookie returns the profile carrying cookie.
	// Returns ErrNotFound if none is stored.
	FindByCookie(ctx context.Context, cookie string) (*core.Profile, error)
}

// CohortCacheRepository persists interest classifications across runs.
type CohortCacheRepository interface {
	Repository

	// GetCohorts returns cached cohorts for the given interests.
	// Interests without a live cache entry are absent from the result.
	GetCohorts(ctx context.Context, interests ...string) (map[string]core.Cohort, error)

	// PutCohorts caches classifications. Entries expire after ttl; ttl <= 0
	// stores nothing.
	PutCohorts(ctx context.Context, assignments map[string]core.Cohort, ttl time.Duration) error
}

// RunRepository is the ledger of finished reconciliation runs.
type RunRepository interface {
	Repository

	// SaveRun records the latest run for its source.
	SaveRun(ctx context.Context, run *core.RunRecord) error

	// LastRun returns the latest run for source, or nil, nil if there is none.
	LastRun(ctx context.Context, source string) (*core.RunRecord, error)

	// Runs returns the latest run of every source, ordered by source.
	Runs(ctx context.Context) ([]*core.RunRecord, error)
}
