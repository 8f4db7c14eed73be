package search

import (
	"context"
	"errors"
	"log/slog"

	"github.com/poiesic/cohorts/core"
	"github.com/poiesic/cohorts/storage"
)

// DefaultCandidateLimit is the number of nearest neighbors fetched per query
// before filtering and windowing.
const DefaultCandidateLimit = 100

// Searcher answers similar-user queries. It never writes to the store.
type Searcher struct {
	profiles       storage.ProfileRepository
	vectors        storage.VectorSearcher
	candidateLimit int
	logger         *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger.With("component", "searcher")
		return nil
	}
}

// WithCandidateLimit sets the size of the candidate pool.
// Default is DefaultCandidateLimit.
func WithCandidateLimit(limit int) Option {
	return func(s *Searcher) error {
		if limit < 1 {
			limit = DefaultCandidateLimit
		}
		s.candidateLimit = limit
		return nil
	}
}

// WithVectorSearcher replaces the vector search used for candidates.
// Default is the profile repository's own exact search.
func WithVectorSearcher(vectors storage.VectorSearcher) Option {
	return func(s *Searcher) error {
		if vectors != nil {
			s.vectors = vectors
		}
		return nil
	}
}

// NewSearcher creates a new searcher.
func NewSearcher(profiles storage.ProfileRepository, opts ...Option) (*Searcher, error) {
	if profiles == nil {
		return nil, ErrProfileRepositoryRequired
	}

	s := &Searcher{
		profiles:       profiles,
		vectors:        profiles,
		candidateLimit: DefaultCandidateLimit,
		logger:         slog.Default().With("component", "searcher"),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// FindSimilar returns the users most similar to the one named by query.
func (s *Searcher) FindSimilar(ctx context.Context, query core.SimilarityQuery) (*core.SimilarityResult, error) {
	return s.FindSimilarWithMonitor(ctx, query, nil)
}

// FindSimilarWithMonitor is FindSimilar with monitoring.
// The monitor receives callbacks at each stage of the search process.
func (s *Searcher) FindSimilarWithMonitor(ctx context.Context, query core.SimilarityQuery, monitor SearchMonitor) (*core.SimilarityResult, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}

	// Bounds are checked before anything touches the store.
	if err := core.ValidateSimilarityQuery(&query); err != nil {
		return nil, err
	}
	monitor.Start(query)

	profile, err := s.resolve(ctx, query.Email, query.Cookie)
	if err != nil {
		return nil, err
	}
	if len(profile.Embeddings) == 0 {
		return nil, ErrEmbeddingNotFound
	}
	monitor.AfterResolve(profile)

	candidates, err := s.vectors.FindSimilar(ctx, profile.Embeddings, s.candidateLimit)
	if err != nil {
		s.logger.Error("error querying for similar profiles", "err", err)
		return nil, err
	}
	monitor.AfterCandidateSearch(candidates)

	var cohort core.Cohort
	if query.Cohort != "" {
		cohort = core.ParseCohortFilter(query.Cohort)
	}

	users := make([]core.SimilarUser, 0, len(candidates))
	for _, candidate := range candidates {
		if sameUser(profile, candidate.Profile) {
			monitor.Excluded(candidate.Profile)
			continue
		}
		if cohort != "" && !candidate.Profile.HasCohort(cohort) {
			continue
		}
		users = append(users, core.SimilarUser{Email: candidate.Profile.Email, Score: candidate.Score})
	}

	result := &core.SimilarityResult{
		Cohort: string(cohort),
		Users:  window(users, query.Offset, query.Limit),
	}
	s.logger.Debug("similar users",
		"candidates", len(candidates),
		"matches", len(users),
		"returned", len(result.Users))
	monitor.Finish(result)
	return result, nil
}

// Lookup returns the stored profile of a user without its embeddings.
// When both email and cookie are given, the profile must carry both.
func (s *Searcher) Lookup(ctx context.Context, email, cookie string) (*core.Profile, error) {
	if email == "" && cookie == "" {
		return nil, &core.QueryError{Field: "email|cookie"}
	}
	profile, err := s.resolve(ctx, email, cookie)
	if err != nil {
		return nil, err
	}
	if email != "" && cookie != "" && profile.Cookie != cookie {
		return nil, ErrProfileNotFound
	}
	profile = profile.Clone()
	profile.Embeddings = nil
	return profile, nil
}

// resolve finds the profile by email when one is given, otherwise by cookie.
func (s *Searcher) resolve(ctx context.Context, email, cookie string) (*core.Profile, error) {
	var (
		profile *core.Profile
		err     error
	)
	if email != "" {
		profile, err = s.profiles.FindByEmail(ctx, email)
	} else {
		profile, err = s.profiles.FindByCookie(ctx, cookie)
	}
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		s.logger.Error("error resolving user", "err", err)
		return nil, err
	}
	return profile, nil
}

// sameUser reports whether candidate is the querying profile itself,
// matched by ID or by any shared identity key.
func sameUser(self, candidate *core.Profile) bool {
	if candidate.Id == self.Id {
		return true
	}
	if self.Email != "" && candidate.Email == self.Email {
		return true
	}
	return self.Cookie != "" && candidate.Cookie == self.Cookie
}

// window returns users[offset:offset+limit], clamped to the slice.
func window(users []core.SimilarUser, offset, limit int) []core.SimilarUser {
	if offset >= len(users) {
		return []core.SimilarUser{}
	}
	end := min(offset+limit, len(users))
	return users[offset:end]
}
