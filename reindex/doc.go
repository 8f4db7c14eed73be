// Package reindex rebuilds the approximate nearest neighbor index from the
// embeddings stored with each profile.
//
// Embeddings are written by an external collaborator; run a reindex after a
// bulk embedding load or whenever the persisted graph is lost.
package reindex
