package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"slices"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/poiesic/cohorts/core"
	"github.com/poiesic/cohorts/storage"
)

// Backend wraps a BadgerDB instance and provides low-level operations.
type Backend struct {
	db     *badger.DB
	logger *slog.Logger
}

// badgerLoggerAdapter adapts slog.Logger to badger.Logger interface.
type badgerLoggerAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLoggerAdapter)(nil)

func (bl *badgerLoggerAdapter) Errorf(msg string, items ...any) {
	bl.logger.Error(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Warningf(msg string, items ...any) {
	bl.logger.Warn(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Infof(msg string, items ...any) {
	bl.logger.Info(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Debugf(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

// OpenBackend opens a BadgerDB database at the specified path.
// Creates the directory if it doesn't exist.
func OpenBackend(filePath string, inMemory bool) (*Backend, error) {
	var opts badger.Options

	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		info, err := os.Stat(filePath)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
			if err := os.MkdirAll(filePath, 0755); err != nil {
				return nil, err
			}
			if info, err = os.Stat(filePath); err != nil {
				return nil, err
			}
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("%s is not a directory", filePath)
		}
		opts = badger.DefaultOptions(filePath)
	}

	logger := slog.Default().With("component", "badger")
	opts.Logger = &badgerLoggerAdapter{logger: logger}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &Backend{
		db:     db,
		logger: logger,
	}, nil
}

// Close closes the BadgerDB database.
func (b *Backend) Close() error {
	return b.db.Close()
}

// IsClosed returns true if the database is closed.
func (b *Backend) IsClosed() bool {
	return b.db.IsClosed()
}

// WithTx executes a function within a BadgerDB transaction.
// If isWrite is true, creates a read-write transaction.
// The transaction is automatically discarded if fn returns an error.
func (b *Backend) WithTx(fn func(tx *badger.Txn) error, isWrite bool) error {
	if b.db.IsClosed() {
		return storage.ErrStorageClosed
	}
	tx := b.db.NewTransaction(isWrite)
	defer tx.Discard()
	return fn(tx)
}

// writeBatch applies write to items 0..n-1 in as few read-write transactions as
// badger allows and returns one error per item.
//
// A transaction that grows too large is discarded and the items before the
// overflowing one are replayed and committed on their own; writing continues in
// a fresh transaction. An item error does not abort its siblings. A failed commit
// fails every item of that chunk. Write functions must finish all reads and
// checks before their first Set.
func (b *Backend) writeBatch(ctx context.Context, n int, write func(tx *badger.Txn, i int) error) []error {
	errs := make([]error, n)
	if b.db.IsClosed() {
		for i := range errs {
			errs[i] = storage.ErrStorageClosed
		}
		return errs
	}

	start := 0
	for start < n {
		if err := ctx.Err(); err != nil {
			for i := start; i < n; i++ {
				errs[i] = err
			}
			break
		}
		start = b.writeChunk(start, n, write, errs)
	}
	return errs
}

// writeChunk commits items from start up to the first one that does not fit
// and returns the index of the next unwritten item.
func (b *Backend) writeChunk(start, limit int, write func(tx *badger.Txn, i int) error, errs []error) int {
	for {
		tx := b.db.NewTransaction(true)
		end := limit
		var tooBig error
		for i := start; i < limit; i++ {
			err := write(tx, i)
			if errors.Is(err, badger.ErrTxnTooBig) {
				end, tooBig = i, err
				break
			}
			errs[i] = err
		}

		if tooBig != nil {
			tx.Discard()
			if end == start {
				// A single item larger than a transaction can never be written.
				errs[start] = tooBig
				return start + 1
			}
			b.logger.Debug("transaction full, splitting batch", "committed", end-start)
			limit = end
			continue
		}

		if err := tx.Commit(); err != nil {
			for i := start; i < end; i++ {
				if errs[i] == nil {
					errs[i] = err
				}
			}
		}
		return end
	}
}

// FindSimilar performs an exact scan over stored profile embeddings.
// Implements storage.VectorSearcher interface.
func (b *Backend) FindSimilar(ctx context.Context, vector []float32, limit int) ([]*core.SearchResult, error) {
	var results []*core.SearchResult

	err := b.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(profilePrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			var profile *core.Profile
			err := iter.Item().Value(func(val []byte) error {
				var err error
				profile, err = storage.UnmarshalProfile(val)
				return err
			})
			if err != nil {
				return err
			}

			// Skip profiles without comparable embeddings
			if len(profile.Embeddings) == 0 || len(profile.Embeddings) != len(vector) {
				continue
			}

			results = append(results, &core.SearchResult{
				Profile: profile,
				Score:   cosineSimilarity(vector, profile.Embeddings),
			})
		}

		return nil
	}, false)

	if err != nil {
		return nil, err
	}

	// Sort by similarity descending
	slices.SortStableFunc(results, func(a, b *core.SearchResult) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		return 0
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	return results, nil
}

// cosineSimilarity returns the cosine of the angle between a and b, or 0 when
// either vector has zero length.
func cosineSimilarity(a, b []float32) float32 {
	var dot, normA, normB float64
	minLen := min(len(a), len(b))
	for i := 0; i < minLen; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
