package badger

import (
	"context"
	"errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/cohorts/core"
	"github.com/poiesic/cohorts/storage"
)

// RunRepository implements storage.RunRepository for BadgerDB.
// Only the latest run of each source is kept.
type RunRepository struct {
	backend *Backend
}

var _ storage.RunRepository = (*RunRepository)(nil)

// NewRunRepository creates a new RunRepository.
func NewRunRepository(backend *Backend) *RunRepository {
	return &RunRepository{
		backend: backend,
	}
}

// Close releases resources. RunRepository has no resources to release.
func (r *RunRepository) Close() error {
	return nil
}

// SaveRun persists the run as the latest for its source.
func (r *RunRepository) SaveRun(ctx context.Context, run *core.RunRecord) error {
	if run.Source == "" {
		return errors.New("run has no source")
	}
	return r.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set(makeRunKey(run.Source), storage.MarshalRunRecord(run)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// LastRun retrieves the latest run for source.
// Returns nil, nil if the source has never been reconciled.
func (r *RunRepository) LastRun(ctx context.Context, source string) (*core.RunRecord, error) {
	var run *core.RunRecord
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeRunKey(source))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}

		return item.Value(func(val []byte) error {
			var unmarshalErr error
			run, unmarshalErr = storage.UnmarshalRunRecord(val)
			return unmarshalErr
		})
	}, false)

	return run, err
}

// Runs lists the latest run of every source in key order.
func (r *RunRepository) Runs(ctx context.Context) ([]*core.RunRecord, error) {
	var runs []*core.RunRecord
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(runPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			err := iter.Item().Value(func(val []byte) error {
				run, err := storage.UnmarshalRunRecord(val)
				if err != nil {
					return err
				}
				runs = append(runs, run)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	}, false)
	return runs, err
}
