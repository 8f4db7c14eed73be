// Package vectorindex provides approximate nearest neighbor search over profile embeddings.
package vectorindex

import (
	"context"
	"errors"

	"github.com/poiesic/cohorts/core"
)

// ErrDimensionMismatch is returned when a vector's length differs from the index's.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Hit pairs a profile ID with its cosine similarity score.
type Hit struct {
	Id    core.ID
	Score float32 // cosine similarity in [-1, 1], higher = more similar
}

// Index provides approximate nearest neighbor search over embeddings.
// Implementations must be safe for concurrent use from multiple goroutines.
type Index interface {
	// Add inserts or updates the vector for the given profile ID.
	// If the ID already exists, the vector is replaced.
	Add(ctx context.Context, id core.ID, vector []float32) error

	// Remove deletes the vector for the given profile ID.
	// Returns nil if the ID does not exist (idempotent).
	Remove(ctx context.Context, id core.ID) error

	// Search returns the topK most similar vectors to query, sorted by descending score.
	// Returns fewer than topK results if the index contains fewer vectors.
	Search(ctx context.Context, query []float32, topK int) ([]Hit, error)

	// Reset removes every vector.
	Reset(ctx context.Context) error

	// Len returns the number of vectors currently in the index.
	Len() int

	// Save persists the index state to its backing store.
	Save(ctx context.Context) error

	// Close releases resources. Implementations should save before closing.
	Close() error
}
