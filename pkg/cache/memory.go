package cache

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryCache is an in-process Cache used when no Redis is configured,
// and in tests. Entries past their TTL are treated as absent on lookup.
type MemoryCache struct {
	lru *expirable.LRU[string, memoryEntry]
	now func() time.Time
}

// NewMemoryCache creates a bounded in-memory cache. maxEntries caps the
// number of live entries; maxTTL bounds how long any entry may be kept
// regardless of the per-call TTL.
func NewMemoryCache(maxEntries int, maxTTL time.Duration) *MemoryCache {
	return &MemoryCache{
		lru: expirable.NewLRU[string, memoryEntry](maxEntries, nil, maxTTL),
		now: time.Now,
	}
}

// Get returns the value stored under key, or ErrMiss.
func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	entry, ok := c.lru.Get(key)
	if !ok {
		return nil, ErrMiss
	}
	if c.now().After(entry.expiresAt) {
		c.lru.Remove(key)
		return nil, ErrMiss
	}
	return entry.value, nil
}

// Set stores value under key with the given TTL.
func (c *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.lru.Add(key, memoryEntry{value: value, expiresAt: c.now().Add(ttl)})
	return nil
}

// Delete removes a single key.
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.lru.Remove(key)
	return nil
}

// DeleteByPattern removes all keys matching a glob-style pattern.
func (c *MemoryCache) DeleteByPattern(ctx context.Context, pattern string) error {
	for _, key := range c.lru.Keys() {
		matched, err := path.Match(pattern, key)
		if err != nil {
			return fmt.Errorf("invalid pattern %s: %w", pattern, err)
		}
		if matched {
			c.lru.Remove(key)
		}
	}
	return nil
}
