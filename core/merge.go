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

package core

import (
	"cmp"
	"maps"
	"slices"
	"strings"
)

// InterestSeparator delimits interests in raw batch text.
const InterestSeparator = "|"

// MergeLists returns the deduplicated union of a and b.
// Nil inputs are treated as empty. Returns nil when the union is empty so
// that an empty merge never materializes a field.
// The result is sorted; callers should only rely on set equality.
func MergeLists[T cmp.Ordered](a, b []T) []T {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	merged := make([]T, 0, len(a)+len(b))
	merged = append(merged, a...)
	merged = append(merged, b...)
	slices.Sort(merged)
	return slices.Compact(merged)
}

// Sanitize returns a copy of p without null scalar fields.
// List fields are kept as they are, including non-nil empty lists: "no interests
// yet" is different from "interests unknown".
func Sanitize(p *Profile) *Profile {
	if p == nil {
		return nil
	}
	out := p.Clone()
	if out.Fields != nil {
		maps.DeleteFunc(out.Fields, func(_ string, v Value) bool {
			return v.IsNull()
		})
		if len(out.Fields) == 0 {
			out.Fields = nil
		}
	}
	return out
}

// ParseInterests splits raw interest text on InterestSeparator and trims each entry.
// Null or blank input yields nil (absent), never an empty list.
func ParseInterests(raw Value) []string {
	if raw.IsNull() {
		return nil
	}
	text := raw.Text()
	if strings.TrimSpace(text) == "" {
		return nil
	}
	var interests []string
	for _, part := range strings.Split(text, InterestSeparator) {
		part = strings.TrimSpace(part)
		if part != "" {
			interests = append(interests, part)
		}
	}
	return interests
}

// CohortsFor returns the set of cohorts assigned to interests.
// Interests missing from assignments count as CohortUnknown.
// Returns nil when interests is nil.
func CohortsFor(interests []string, assignments map[string]Cohort) []Cohort {
	if interests == nil {
		return nil
	}
	cohorts := make([]Cohort, 0, len(interests))
	for _, interest := range interests {
		cohort, ok := assignments[interest]
		if !ok {
			cohort = CohortUnknown
		}
		cohorts = append(cohorts, cohort)
	}
	slices.Sort(cohorts)
	return slices.Compact(cohorts)
}

// Fold combines two observations of the same identity from one batch.
// Lists are unioned, non-null scalars from next win, and the first known
// creation time is kept.
func Fold(acc, next *Profile) *Profile {
	out := acc.Clone()
	if next.Email != "" {
		out.Email = next.Email
	}
	if next.Cookie != "" {
		out.Cookie = next.Cookie
	}
	out.Interests = foldList(acc.Interests, next.Interests)
	out.Cohorts = foldList(acc.Cohorts, next.Cohorts)
	if out.CreatedAt.IsZero() {
		out.CreatedAt = next.CreatedAt
	}
	for k, v := range next.Fields {
		if v.IsNull() {
			if _, ok := out.Fields[k]; ok {
				continue
			}
		}
		if out.Fields == nil {
			out.Fields = make(map[string]Value, len(next.Fields))
		}
		out.Fields[k] = v
	}
	return out
}

// foldList unions two lists but keeps a known-empty list known.
func foldList[T cmp.Ordered](a, b []T) []T {
	merged := MergeLists(a, b)
	if merged == nil && (a != nil || b != nil) {
		return []T{}
	}
	return merged
}

// Reconcile builds the update patch for an incoming observation of an existing profile.
// Interests and cohorts are the union of stored and incoming values; other fields
// take the incoming value; the stored creation time is preserved when known.
func Reconcile(existing, incoming *Profile) *Profile {
	patch := incoming.Clone()
	patch.Id = existing.Id
	patch.Interests = MergeLists(existing.Interests, incoming.Interests)
	patch.Cohorts = MergeLists(existing.Cohorts, incoming.Cohorts)
	if !existing.CreatedAt.IsZero() {
		patch.CreatedAt = existing.CreatedAt.UTC()
	}
	patch.Embeddings = nil
	patch.InsertedAt = existing.InsertedAt
	return patch
}
