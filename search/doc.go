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

// Package search answers similar-user queries over stored profile embeddings.
//
// A query names a user by email or cookie. The Searcher resolves the user,
// pulls a candidate pool of nearest neighbors by embedding, optionally keeps
// only candidates in a cohort, drops the querying user, and returns one
// offset/limit window of the remaining users ranked by score.
//
// Query bounds are checked before any storage access, so an invalid query
// never reaches the vector search.
package search
