package badger

import (
	"encoding/binary"

	"github.com/poiesic/cohorts/core"
)

// Key prefixes for different data types
const (
	profilePrefix       = "prof:"
	profileEmailPrefix  = "profe:"
	profileCookiePrefix = "profc:"
	cohortCachePrefix   = "cohort:"
	runPrefix           = "run:"
)

// makeProfileKey generates a key for a profile by ID.
// Format: prefix + big-endian ID so profiles iterate in ID order
func makeProfileKey(id core.ID) []byte {
	buf := make([]byte, len(profilePrefix)+8)
	offset := copy(buf, profilePrefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}

// makeEmailKey generates a key for the email index.
func makeEmailKey(email string) []byte {
	return []byte(profileEmailPrefix + email)
}

// makeCookieKey generates a key for the cookie index.
func makeCookieKey(cookie string) []byte {
	return []byte(profileCookiePrefix + cookie)
}

// makeCohortCacheKey generates a key for a cached interest classification.
func makeCohortCacheKey(interest string) []byte {
	return []byte(cohortCachePrefix + interest)
}

// makeRunKey generates a key for the latest run of a source.
func makeRunKey(source string) []byte {
	return []byte(runPrefix + source)
}
