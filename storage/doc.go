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

// Package storage provides the storage abstraction layer for cohorts.
//
// This package defines repository interfaces that decouple the profile store
// from the reconciliation pipeline and the similarity query service.
//
// # Architecture
//
//   - ProfileRepository: canonical profiles, batched inserts and targeted updates
//   - CohortCacheRepository: interest classifications kept across runs
//   - RunRepository: ledger of finished reconciliation runs
//   - VectorSearcher: nearest-neighbor search over profile embeddings
//
// # Batched writes
//
// InsertProfiles and UpdateProfiles report one outcome per profile in a
// core.WriteResult. A batch may partially succeed; a failed profile never rolls
// back its siblings, and callers must inspect the result rather than assume
// all-or-nothing.
//
// # Usage
//
// Use in tests with in-memory storage:
//
//	repos, err := badger.NewMemoryRepositories()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer repos.Close()
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines.
package storage
