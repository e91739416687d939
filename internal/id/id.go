package id

import "github.com/google/uuid"

// NewUUIDv7 returns a time-ordered UUID string. Used for request
// correlation ids and session token ids, never for registry row identity
// (registry rows use database-assigned numeric ids).
func NewUUIDv7() string {
	v7, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails when the random source does; fall back to v4
		// rather than returning an empty id.
		return uuid.NewString()
	}
	return v7.String()
}
