package core

import (
	"cmp"
	"encoding/binary"
	"maps"
	"slices"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for stored profiles.
// It is derived from the profile's identity key when the profile is first inserted.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// IdentityKey returns the key used to address a profile or record.
// Email wins when present; cookie-only identities are prefixed so they can
// never collide with an email address.
func IdentityKey(email, cookie string) string {
	if email != "" {
		return "email:" + email
	}
	if cookie != "" {
		return "cookie:" + cookie
	}
	return ""
}

// Record is one row of an uploaded batch before enrichment.
type Record struct {
	Line      int    // 1-based position in the source file, used in error reports
	Email     string // Optional identity key
	Cookie    string // Optional identity key
	Interests Value  // Raw pipe-delimited interest text; may be null
	CreatedAt Value  // Raw creation timestamp; may be null
	Fields    map[string]Value
}

// IdentityKey returns the record's identity key.
func (r *Record) IdentityKey() string {
	return IdentityKey(r.Email, r.Cookie)
}

// Profile is the canonical stored user entity.
//
// List fields distinguish nil (absent) from empty (known to be empty).
// Scalars outside the identity/interest/cohort set live in Fields.
type Profile struct {
	Id         ID
	Email      string
	Cookie     string
	Interests  []string
	Cohorts    []Cohort
	Embeddings []float32
	CreatedAt  time.Time // Zero when unknown
	InsertedAt time.Time // When the profile was first stored
	UpdatedAt  time.Time // When the profile was last written
	Fields     map[string]Value
}

// IdentityKey returns the profile's identity key.
func (p *Profile) IdentityKey() string {
	return IdentityKey(p.Email, p.Cookie)
}

// Clone returns a deep copy of the profile.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	c := *p
	if p.Interests != nil {
		c.Interests = slices.Clone(p.Interests)
	}
	if p.Cohorts != nil {
		c.Cohorts = slices.Clone(p.Cohorts)
	}
	if p.Embeddings != nil {
		c.Embeddings = slices.Clone(p.Embeddings)
	}
	if p.Fields != nil {
		c.Fields = maps.Clone(p.Fields)
	}
	return &c
}

// HasCohort reports whether the cohort is a member of the profile's cohort set.
func (p *Profile) HasCohort(cohort Cohort) bool {
	return slices.Contains(p.Cohorts, cohort)
}

// ProfileUpdate is a targeted update of a stored profile.
// Only fields present in Patch are written; everything else is left untouched.
type ProfileUpdate struct {
	Id    ID
	Patch *Profile
}

// SearchResult is a profile matched by vector similarity.
type SearchResult struct {
	Profile *Profile
	Score   float32
}

// SimilarityQuery describes a similar-users request.
type SimilarityQuery struct {
	Email  string
	Cookie string
	Cohort string // Optional cohort filter
	Limit  int    // 0 means DefaultSimilarityLimit
	Offset int
}

// SimilarUser is one entry of a similarity result.
type SimilarUser struct {
	Email string  `json:"email,omitempty"`
	Score float32 `json:"score"`
}

// SimilarityResult is the windowed answer to a SimilarityQuery.
type SimilarityResult struct {
	Cohort string        `json:"cohort,omitempty"`
	Users  []SimilarUser `json:"data"`
}

// RunRecord summarizes a finished reconciliation run for a batch source.
type RunRecord struct {
	Source     string
	RunID      string
	Received   int
	Suppressed int
	Inserted   int
	Updated    int
	Failed     int
	FinishedAt time.Time
}

// SameContent reports whether two profiles hold the same identity, lists and fields.
// Bookkeeping timestamps (InsertedAt, UpdatedAt) are ignored; lists compare as sets
// but nil and empty stay distinct.
func (p *Profile) SameContent(o *Profile) bool {
	if p.Id != o.Id || p.Email != o.Email || p.Cookie != o.Cookie {
		return false
	}
	if !p.CreatedAt.Equal(o.CreatedAt) {
		return false
	}
	if !sameSet(p.Interests, o.Interests) || !sameSet(p.Cohorts, o.Cohorts) {
		return false
	}
	if !slices.Equal(p.Embeddings, o.Embeddings) || (p.Embeddings == nil) != (o.Embeddings == nil) {
		return false
	}
	return maps.EqualFunc(p.Fields, o.Fields, Value.Equal)
}

func sameSet[T cmp.Ordered](a, b []T) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	x, y := slices.Clone(a), slices.Clone(b)
	slices.Sort(x)
	slices.Sort(y)
	return slices.Equal(slices.Compact(x), slices.Compact(y))
}
