package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Get when a key is absent or expired.
var ErrMiss = errors.New("cache: miss")

// Cache is a TTL key-value store used to memoize resolved user contexts
// and access decisions. Writes always replace the whole value under a key.
type Cache interface {
	// Get returns the raw value stored under key, or ErrMiss.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key for the given TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a single key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// DeleteByPattern removes every key matching a glob-style pattern.
	// Used to invalidate derived entries when role or permission
	// assignments change.
	DeleteByPattern(ctx context.Context, pattern string) error
}
