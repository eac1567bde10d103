package domain

import "errors"

// ErrNotFound is returned when no durable record exists for the given id.
var ErrNotFound = errors.New("attempt not found")

// ErrConflict is returned on a version mismatch during a conditional update,
// or a duplicate id on insert.
var ErrConflict = errors.New("attempt version conflict")

// ErrInvalidState is returned when a mutation is attempted on a terminal attempt.
var ErrInvalidState = errors.New("attempt is in a terminal state")

// ErrStoreUnavailable wraps I/O failures talking to the durable store or cache.
var ErrStoreUnavailable = errors.New("store unavailable")

// ErrCacheMiss is returned by a cache when the key is absent or expired.
var ErrCacheMiss = errors.New("cache miss")

// ErrIdentifierCollision is returned when a freshly generated id already
// exists in the durable store. With random UUIDs this indicates a broken
// id scheme, not a retryable condition.
var ErrIdentifierCollision = errors.New("identifier collision on insert")

// ErrCreationFailed wraps insert failures other than an id collision.
var ErrCreationFailed = errors.New("attempt creation failed")
