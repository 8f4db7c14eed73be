package ingestion

import "errors"

var (
	// ErrProfileRepositoryRequired is returned when a profile repository is not provided.
	ErrProfileRepositoryRequired = errors.New("profile repository required")

	// ErrAIProviderRequired is returned when an AI provider is not provided.
	ErrAIProviderRequired = errors.New("AI provider required")

	// ErrUnsupportedFormat is returned for batch files that are neither CSV nor JSON.
	ErrUnsupportedFormat = errors.New("unsupported batch format")

	// ErrMalformedBatch is returned when a batch cannot be decoded or fails schema validation.
	ErrMalformedBatch = errors.New("malformed batch")

	// ErrLoadFailed is returned when the batch or the stored snapshot cannot be read.
	// Nothing has been written when it is returned.
	ErrLoadFailed = errors.New("failed to load batch")

	// ErrPersistence is returned when some inserts or updates failed.
	// The accompanying report lists every outcome.
	ErrPersistence = errors.New("failed to persist batch")
)
