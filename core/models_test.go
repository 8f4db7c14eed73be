package core

import (
	"testing"
	"time"
)

func TestIDFromContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "email identity", content: "email:ada@example.com"},
		{name: "cookie identity", content: "cookie:c-123"},
		{name: "empty string", content: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id1 := IDFromContent(tt.content)
			id2 := IDFromContent(tt.content)

			if id1 != id2 {
				t.Errorf("IDFromContent() produced different IDs for same content: %d vs %d", id1, id2)
			}
		})
	}
}

func TestIDFromContent_Different(t *testing.T) {
	id1 := IDFromContent("email:a@example.com")
	id2 := IDFromContent("email:b@example.com")

	if id1 == id2 {
		t.Errorf("IDFromContent() produced same ID for different content")
	}
}

func TestIdentityKey(t *testing.T) {
	tests := []struct {
		name   string
		email  string
		cookie string
		want   string
	}{
		{name: "email wins", email: "a@example.com", cookie: "c1", want: "email:a@example.com"},
		{name: "cookie only", cookie: "c1", want: "cookie:c1"},
		{name: "neither", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IdentityKey(tt.email, tt.cookie); got != tt.want {
				t.Errorf("IdentityKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestProfile_Clone(t *testing.T) {
	original := &Profile{
		Id:         7,
		Email:      "a@example.com",
		Interests:  []string{"golf"},
		Cohorts:    []Cohort{CohortSports},
		Embeddings: []float32{0.1, 0.2},
		CreatedAt:  time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		Fields:     map[string]Value{"city": String("Oslo")},
	}

	clone := original.Clone()
	clone.Interests[0] = "chess"
	clone.Cohorts[0] = CohortFood
	clone.Embeddings[0] = 9
	clone.Fields["city"] = String("Bergen")

	if original.Interests[0] != "golf" {
		t.Errorf("Clone() shares Interests with original")
	}
	if original.Cohorts[0] != CohortSports {
		t.Errorf("Clone() shares Cohorts with original")
	}
	if original.Embeddings[0] != 0.1 {
		t.Errorf("Clone() shares Embeddings with original")
	}
	if original.Fields["city"].Str != "Oslo" {
		t.Errorf("Clone() shares Fields with original")
	}
}

func TestProfile_Clone_PreservesEmptyLists(t *testing.T) {
	original := &Profile{Email: "a@example.com", Interests: []string{}}

	clone := original.Clone()

	if clone.Interests == nil {
		t.Errorf("Clone() turned a known-empty list into nil")
	}
	if clone.Cohorts != nil {
		t.Errorf("Clone() materialized an absent list")
	}
}

func TestParseCohort(t *testing.T) {
	tests := []struct {
		in   string
		want Cohort
	}{
		{in: "Sports", want: CohortSports},
		{in: "technology", want: CohortTechnology},
		{in: "  Finance.\n", want: CohortFinance},
		{in: "\"Food\"", want: CohortFood},
		{in: "Gardening", want: CohortUnknown},
		{in: "", want: CohortUnknown},
		{in: "unknown", want: CohortUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseCohort(tt.in); got != tt.want {
				t.Errorf("ParseCohort(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseCohortFilter(t *testing.T) {
	tests := []struct {
		in   string
		want Cohort
	}{
		{in: "sports", want: CohortSports},
		{in: " Food. ", want: CohortFood},
		{in: "UNKNOWN", want: CohortUnknown},
		{in: " Gardening ", want: Cohort("Gardening")},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseCohortFilter(tt.in); got != tt.want {
				t.Errorf("ParseCohortFilter(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCohort_IsValid(t *testing.T) {
	for _, c := range Cohorts {
		if !c.IsValid() {
			t.Errorf("%q should be valid", c)
		}
	}
	if !CohortUnknown.IsValid() {
		t.Errorf("unknown should be valid")
	}
	if Cohort("sports").IsValid() {
		t.Errorf("labels are case sensitive once parsed")
	}
}

func TestInferValue(t *testing.T) {
	tests := []struct {
		raw  string
		want Value
	}{
		{raw: "", want: Null()},
		{raw: "   ", want: Null()},
		{raw: "42", want: Number(42)},
		{raw: "3.5", want: Number(3.5)},
		{raw: "TRUE", want: Bool(true)},
		{raw: "false", want: Bool(false)},
		{raw: "Oslo", want: String("Oslo")},
		{raw: "Nan", want: String("Nan")},
		{raw: "NaN", want: String("NaN")},
		{raw: "Inf", want: String("Inf")},
		{raw: "-Infinity", want: String("-Infinity")},
		{raw: "1e400", want: String("1e400")},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			if got := InferValue(tt.raw); !got.Equal(tt.want) {
				t.Errorf("InferValue(%q) = %+v, want %+v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)

	tests := []struct {
		name   string
		value  Value
		wantOk bool
	}{
		{name: "rfc3339", value: String("2024-03-01T12:30:00Z"), wantOk: true},
		{name: "space separated", value: String("2024-03-01 12:30:00"), wantOk: true},
		{name: "unix seconds", value: Number(float64(want.Unix())), wantOk: true},
		{name: "time value", value: Time(want), wantOk: true},
		{name: "garbage", value: String("yesterday"), wantOk: false},
		{name: "null", value: Null(), wantOk: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseTimestamp(tt.value)
			if ok != tt.wantOk {
				t.Fatalf("ParseTimestamp() ok = %v, want %v", ok, tt.wantOk)
			}
			if ok && !got.Equal(want) {
				t.Errorf("ParseTimestamp() = %v, want %v", got, want)
			}
		})
	}
}
