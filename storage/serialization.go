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

package storage

import (
	"fmt"

	"github.com/poiesic/cohorts/core"
)

// MarshalID serializes an ID to bytes.
func MarshalID(id core.ID) []byte {
	buf := make([]byte, core.IDMUS.Size(id))
	core.IDMUS.Marshal(id, buf)
	return buf
}

// UnmarshalID deserializes an ID from bytes.
func UnmarshalID(data []byte) (core.ID, error) {
	id, _, err := core.IDMUS.Unmarshal(data)
	if err != nil {
		return 0, fmt.Errorf("%w: id: %w", ErrSerializationFailed, err)
	}
	return id, nil
}

// MarshalProfile serializes a Profile to bytes.
func MarshalProfile(profile *core.Profile) []byte {
	buf := make([]byte, core.ProfileMUS.Size(*profile))
	core.ProfileMUS.Marshal(*profile, buf)
	return buf
}

// UnmarshalProfile deserializes a Profile from bytes.
func UnmarshalProfile(data []byte) (*core.Profile, error) {
	profile, _, err := core.ProfileMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: profile: %w", ErrSerializationFailed, err)
	}
	return &profile, nil
}

// MarshalCohort serializes a cached cohort label to bytes.
func MarshalCohort(cohort core.Cohort) []byte {
	return []byte(cohort)
}

// UnmarshalCohort deserializes a cached cohort label.
// Labels no longer in the enumeration read back as CohortUnknown.
func UnmarshalCohort(data []byte) core.Cohort {
	c := core.Cohort(data)
	if !c.IsValid() {
		return core.CohortUnknown
	}
	return c
}

// MarshalRunRecord serializes a RunRecord to bytes.
func MarshalRunRecord(run *core.RunRecord) []byte {
	buf := make([]byte, core.RunRecordMUS.Size(*run))
	core.RunRecordMUS.Marshal(*run, buf)
	return buf
}

// UnmarshalRunRecord deserializes a RunRecord from bytes.
func UnmarshalRunRecord(data []byte) (*core.RunRecord, error) {
	run, _, err := core.RunRecordMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: run: %w", ErrSerializationFailed, err)
	}
	return &run, nil
}
