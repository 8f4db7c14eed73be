package core

import (
	"errors"
	"testing"
)

func TestValidateRecord(t *testing.T) {
	tests := []struct {
		name      string
		record    *Record
		wantErr   error
		wantField string
	}{
		{
			name:   "email only",
			record: &Record{Line: 1, Email: "a@example.com"},
		},
		{
			name:   "cookie only",
			record: &Record{Line: 1, Cookie: "c1"},
		},
		{
			name:   "valid created_at",
			record: &Record{Line: 1, Email: "a@example.com", CreatedAt: String("2024-01-01")},
		},
		{
			name:      "missing identity",
			record:    &Record{Line: 3, Interests: String("golf")},
			wantErr:   ErrMissingIdentity,
			wantField: "email|cookie",
		},
		{
			name:      "bad created_at",
			record:    &Record{Line: 4, Cookie: "c1", CreatedAt: String("soon")},
			wantErr:   ErrInvalidTimestamp,
			wantField: "created_at",
		},
		{
			name:    "nil record",
			record:  nil,
			wantErr: ErrInvalidRecord,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRecord(tt.record)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("ValidateRecord() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ValidateRecord() error = %v, want %v", err, tt.wantErr)
			}
			if !errors.Is(err, ErrInvalidRecord) {
				t.Errorf("ValidateRecord() error should wrap ErrInvalidRecord")
			}
			if tt.wantField != "" {
				var recErr *RecordError
				if !errors.As(err, &recErr) {
					t.Fatalf("ValidateRecord() error is not a *RecordError")
				}
				if recErr.Field != tt.wantField || recErr.Line != tt.record.Line {
					t.Errorf("RecordError = line %d field %q, want line %d field %q",
						recErr.Line, recErr.Field, tt.record.Line, tt.wantField)
				}
			}
		})
	}
}

func TestValidateProfile(t *testing.T) {
	tests := []struct {
		name    string
		profile *Profile
		wantErr error
	}{
		{name: "valid", profile: &Profile{Email: "a@example.com", Cohorts: []Cohort{CohortSports, CohortUnknown}}},
		{name: "missing identity", profile: &Profile{Interests: []string{"golf"}}, wantErr: ErrMissingIdentity},
		{name: "bad cohort", profile: &Profile{Cookie: "c", Cohorts: []Cohort{"Gardening"}}, wantErr: ErrInvalidCohort},
		{name: "nil", profile: nil, wantErr: ErrInvalidProfile},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateProfile(tt.profile)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateProfile() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) || !errors.Is(err, ErrInvalidProfile) {
				t.Errorf("ValidateProfile() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateSimilarityQuery(t *testing.T) {
	tests := []struct {
		name      string
		query     SimilarityQuery
		wantField string
		wantLimit int
	}{
		{name: "defaults limit", query: SimilarityQuery{Email: "a@example.com"}, wantLimit: DefaultSimilarityLimit},
		{name: "max bounds", query: SimilarityQuery{Cookie: "c", Limit: 15, Offset: 5}, wantLimit: 15},
		{name: "known cohort", query: SimilarityQuery{Email: "a@example.com", Cohort: "sports", Limit: 2}, wantLimit: 2},
		{name: "unknown cohort label", query: SimilarityQuery{Email: "a@example.com", Cohort: "unknown"}, wantLimit: DefaultSimilarityLimit},
		{name: "unrecognized cohort", query: SimilarityQuery{Email: "a@example.com", Cohort: "Gardening"}, wantLimit: DefaultSimilarityLimit},
		{name: "missing identity", query: SimilarityQuery{Limit: 2}, wantField: "email|cookie"},
		{name: "offset too large", query: SimilarityQuery{Email: "a@example.com", Offset: 6}, wantField: "offset"},
		{name: "negative offset", query: SimilarityQuery{Email: "a@example.com", Offset: -1}, wantField: "offset"},
		{name: "limit too large", query: SimilarityQuery{Email: "a@example.com", Limit: 16}, wantField: "limit"},
		{name: "negative limit", query: SimilarityQuery{Email: "a@example.com", Limit: -3}, wantField: "limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := tt.query
			err := ValidateSimilarityQuery(&q)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("ValidateSimilarityQuery() error = %v", err)
				}
				if q.Limit != tt.wantLimit {
					t.Errorf("Limit = %d, want %d", q.Limit, tt.wantLimit)
				}
				return
			}
			if !errors.Is(err, ErrInvalidQuery) {
				t.Fatalf("ValidateSimilarityQuery() error = %v, want ErrInvalidQuery", err)
			}
			var qErr *QueryError
			if !errors.As(err, &qErr) || qErr.Field != tt.wantField {
				t.Errorf("QueryError field = %v, want %q", qErr, tt.wantField)
			}
		})
	}
}
