package ai

import (
	"context"

	"github.com/poiesic/cohorts/core"
)

// Classifier maps a free-text interest onto one cohort.
// Implementations must be thread-safe for concurrent use.
type Classifier interface {
	// Classify returns the cohort of a trimmed, non-empty interest.
	// Answers outside the enumeration are returned as core.CohortUnknown.
	// Returns an error if the classification service fails; callers decide
	// how to degrade.
	Classify(ctx context.Context, interest string) (core.Cohort, error)
}

// AIProvider aggregates AI services for convenient initialization and lifecycle management.
type AIProvider interface {
	// Classifier returns the interest classification service.
	// The returned Classifier is safe for concurrent use.
	Classifier() Classifier

	// Close releases resources held by the provider and its services.
	// After Close is called, the provider and its services should not be used.
	Close() error
}
