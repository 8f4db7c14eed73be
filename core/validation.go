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
	"fmt"
	"strconv"
)

// Similarity query bounds.
const (
	DefaultSimilarityLimit = 10
	MaxSimilarityLimit     = 15
	MaxSimilarityOffset    = 5
)

// ValidateRecord validates a batch Record according to domain rules.
//
// Validation rules:
//   - At least one of Email or Cookie must be present
//   - CreatedAt, when present, must parse as a timestamp
//
// NOT validated:
//   - Interests (free text, classified later)
//   - Fields (passed through untouched)
func ValidateRecord(record *Record) error {
	if record == nil {
		return fmt.Errorf("%w: record is nil", ErrInvalidRecord)
	}

	if record.Email == "" && record.Cookie == "" {
		return &RecordError{Line: record.Line, Field: "email|cookie", Err: ErrMissingIdentity}
	}

	if !record.CreatedAt.IsNull() {
		if _, ok := ParseTimestamp(record.CreatedAt); !ok {
			return &RecordError{Line: record.Line, Field: "created_at", Err: ErrInvalidTimestamp}
		}
	}

	return nil
}

// ValidateProfile validates a Profile before it is persisted.
//
// Validation rules:
//   - At least one of Email or Cookie must be present
//   - Every cohort must belong to the enumeration
func ValidateProfile(profile *Profile) error {
	if profile == nil {
		return fmt.Errorf("%w: profile is nil", ErrInvalidProfile)
	}

	if profile.Email == "" && profile.Cookie == "" {
		return fmt.Errorf("%w: %w", ErrInvalidProfile, ErrMissingIdentity)
	}

	for _, c := range profile.Cohorts {
		if !c.IsValid() {
			return fmt.Errorf("%w: %w: %q", ErrInvalidProfile, ErrInvalidCohort, c)
		}
	}

	return nil
}

// ValidateSimilarityQuery checks identity and window bounds and fills in the default limit.
//
// Validation rules:
//   - Email or Cookie must be present
//   - 0 <= Offset <= MaxSimilarityOffset
//   - 0 <= Limit <= MaxSimilarityLimit, where 0 selects DefaultSimilarityLimit
//
// Cohort is not checked: a label outside the enumeration matches no profile.
func ValidateSimilarityQuery(q *SimilarityQuery) error {
	if q.Email == "" && q.Cookie == "" {
		return &QueryError{Field: "email|cookie"}
	}
	if q.Offset < 0 || q.Offset > MaxSimilarityOffset {
		return &QueryError{Field: "offset", Value: strconv.Itoa(q.Offset), Bound: "between 0 and " + strconv.Itoa(MaxSimilarityOffset)}
	}
	if q.Limit < 0 || q.Limit > MaxSimilarityLimit {
		return &QueryError{Field: "limit", Value: strconv.Itoa(q.Limit), Bound: "between 1 and " + strconv.Itoa(MaxSimilarityLimit)}
	}
	if q.Limit == 0 {
		q.Limit = DefaultSimilarityLimit
	}
	return nil
}
