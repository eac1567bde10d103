package ports

import (
	"context"
	"time"
)

// Cache is a key-expiring accelerator in front of the durable store.
//
// It offers no ordering or atomicity beyond single-key operations, and
// entries silently vanish when their TTL elapses. The Manager must remain
// correct if every call is a no-op or a miss.
type Cache interface {
	// Put stores the value under key for at most ttl.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get returns the cached value, or domain.ErrCacheMiss.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes the key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}
