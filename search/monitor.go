package search

import "github.com/poiesic/cohorts/core"

// SearchMonitor provides hooks to observe the search process.
// Implement this interface to track intermediate steps and results during search.
type SearchMonitor interface {
	Start(query core.SimilarityQuery)
	AfterResolve(profile *core.Profile)
	AfterCandidateSearch(candidates []*core.SearchResult)
	Excluded(candidate *core.Profile)
	Finish(result *core.SimilarityResult)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ core.SimilarityQuery)                {}
func (n *noopMonitor) AfterResolve(_ *core.Profile)                {}
func (n *noopMonitor) AfterCandidateSearch(_ []*core.SearchResult) {}
func (n *noopMonitor) Excluded(_ *core.Profile)                    {}
func (n *noopMonitor) Finish(_ *core.SimilarityResult)             {}
