package vectorindex

import (
	"context"

	"github.com/poiesic/cohorts/core"
	"github.com/poiesic/cohorts/storage"
)

// ProfileSource resolves index hits back to stored profiles.
type ProfileSource interface {
	GetProfiles(ctx context.Context, ids ...core.ID) ([]*core.Profile, error)
}

// ProfileSearcher answers storage.VectorSearcher queries from an Index,
// loading the matched profiles from the store.
type ProfileSearcher struct {
	index    Index
	profiles ProfileSource
}

var _ storage.VectorSearcher = (*ProfileSearcher)(nil)

// NewProfileSearcher creates a ProfileSearcher.
func NewProfileSearcher(index Index, profiles ProfileSource) *ProfileSearcher {
	return &ProfileSearcher{index: index, profiles: profiles}
}

// FindSimilar searches the index and returns the matching profiles in score order.
// Hits whose profile is no longer stored are skipped.
func (s *ProfileSearcher) FindSimilar(ctx context.Context, vector []float32, limit int) ([]*core.SearchResult, error) {
	hits, err := s.index.Search(ctx, vector, limit)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, nil
	}

	ids := make([]core.ID, len(hits))
	for i, hit := range hits {
		ids[i] = hit.Id
	}
	profiles, err := s.profiles.GetProfiles(ctx, ids...)
	if err != nil {
		return nil, err
	}
	byID := make(map[core.ID]*core.Profile, len(profiles))
	for _, p := range profiles {
		byID[p.Id] = p
	}

	results := make([]*core.SearchResult, 0, len(hits))
	for _, hit := range hits {
		if p, ok := byID[hit.Id]; ok {
			results = append(results, &core.SearchResult{Profile: p, Score: hit.Score})
		}
	}
	return results, nil
}
