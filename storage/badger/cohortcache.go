// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package badger

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/cohorts/core"
	"github.com/poiesic/cohorts/storage"
)

// CohortCacheRepository implements storage.CohortCacheRepository for BadgerDB.
// Entries carry a badger TTL, so expired classifications simply disappear.
type CohortCacheRepository struct {
	backend *Backend
}

var _ storage.CohortCacheRepository = (*CohortCacheRepository)(nil)

// NewCohortCacheRepository creates a new CohortCacheRepository.
func NewCohortCacheRepository(backend *Backend) *CohortCacheRepository {
	return &CohortCacheRepository{
		backend: backend,
	}
}

// Close releases resources. CohortCacheRepository has no resources to release.
func (r *CohortCacheRepository) Close() error {
	return nil
}

// GetCohorts returns live cache entries for interests.
func (r *CohortCacheRepository) GetCohorts(ctx context.Context, interests ...string) (map[string]core.Cohort, error) {
	result := make(map[string]core.Cohort)
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, interest := range interests {
			if err := ctx.Err(); err != nil {
				return err
			}
			item, err := tx.Get(makeCohortCacheKey(interest))
			if err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					continue
				}
				return err
			}
			err = item.Value(func(val []byte) error {
				result[interest] = storage.UnmarshalCohort(val)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// PutCohorts caches assignments with the given ttl. ttl <= 0 is a no-op.
func (r *CohortCacheRepository) PutCohorts(ctx context.Context, assignments map[string]core.Cohort, ttl time.Duration) error {
	if ttl <= 0 || len(assignments) == 0 {
		return nil
	}
	if r.backend.IsClosed() {
		return storage.ErrStorageClosed
	}

	wb := r.backend.db.NewWriteBatch()
	defer wb.Cancel()
	for interest, cohort := range assignments {
		if err := ctx.Err(); err != nil {
			return err
		}
		entry := badger.NewEntry(makeCohortCacheKey(interest), storage.MarshalCohort(cohort)).WithTTL(ttl)
		if err := wb.SetEntry(entry); err != nil {
			return err
		}
	}
	return wb.Flush()
}
