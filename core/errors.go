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
	"errors"
	"fmt"
)

// Domain validation errors
var (
	// ErrInvalidRecord indicates a batch Record failed validation.
	ErrInvalidRecord = errors.New("invalid record")

	// ErrMissingIdentity indicates neither email nor cookie is present.
	ErrMissingIdentity = errors.New("email or cookie is required")

	// ErrInvalidTimestamp indicates a created_at value could not be parsed.
	ErrInvalidTimestamp = errors.New("invalid timestamp")

	// ErrInvalidProfile indicates a Profile failed validation.
	ErrInvalidProfile = errors.New("invalid profile")

	// ErrInvalidCohort indicates a label outside the cohort enumeration.
	ErrInvalidCohort = errors.New("invalid cohort")

	// ErrInvalidQuery indicates a similarity query violated its bounds.
	ErrInvalidQuery = errors.New("invalid query")
)

// RecordError reports a rejected batch record with enough context to fix the input.
type RecordError struct {
	Line  int
	Field string
	Err   error
}

func (e *RecordError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: line %d: %v", ErrInvalidRecord, e.Line, e.Err)
	}
	return fmt.Sprintf("%s: line %d: field %q: %v", ErrInvalidRecord, e.Line, e.Field, e.Err)
}

// Unwrap exposes both ErrInvalidRecord and the underlying cause to errors.Is.
func (e *RecordError) Unwrap() []error {
	return []error{ErrInvalidRecord, e.Err}
}

// QueryError reports a similarity query parameter outside its accepted range.
type QueryError struct {
	Field string
	Value string
	Bound string
}

func (e *QueryError) Error() string {
	if e.Bound == "" {
		return fmt.Sprintf("%s: %s is required", ErrInvalidQuery, e.Field)
	}
	return fmt.Sprintf("%s: %s=%s must be %s", ErrInvalidQuery, e.Field, e.Value, e.Bound)
}

func (e *QueryError) Unwrap() error {
	return ErrInvalidQuery
}
