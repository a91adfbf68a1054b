package connection

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/coreplane/coreplane/pkg/cache"
)

// StateStore maps opaque OAuth state strings to their expiry. A state
// token binds an authorization redirect to its originating request and
// is consumed exactly once: the first ConsumeIfValid removes it, so a
// replay fails regardless of validity.
type StateStore interface {
	// Set registers a state token for the store's TTL window.
	Set(ctx context.Context, state string) error

	// ConsumeIfValid atomically checks and removes a state token.
	// It returns true only for a known, unexpired, not-yet-consumed token.
	ConsumeIfValid(ctx context.Context, state string) (bool, error)
}

const stateKeyPrefix = "core:oauthstate:"

// RedisStateStore keeps state tokens in Redis. Expiry is enforced by the
// key TTL; consumption is a single GETDEL, which makes the
// check-then-delete atomic across replicas.
type RedisStateStore struct {
	redis *cache.RedisCache
	ttl   time.Duration
}

// NewRedisStateStore creates a state store over the shared Redis client.
func NewRedisStateStore(redis *cache.RedisCache, ttl time.Duration) *RedisStateStore {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisStateStore{redis: redis, ttl: ttl}
}

// Set registers a state token.
func (s *RedisStateStore) Set(ctx context.Context, state string) error {
	return s.redis.Set(ctx, stateKeyPrefix+state, []byte("1"), s.ttl)
}

// ConsumeIfValid atomically checks and removes a state token.
func (s *RedisStateStore) ConsumeIfValid(ctx context.Context, state string) (bool, error) {
	_, err := s.redis.GetDel(ctx, stateKeyPrefix+state)
	if errors.Is(err, cache.ErrMiss) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// MemoryStateStore is the single-process state store: a mutex-guarded
// map from state to expiry. Expired entries are not swept; they are
// treated as invalid on lookup and removed then.
type MemoryStateStore struct {
	mu      sync.Mutex
	entries map[string]time.Time
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryStateStore creates an in-memory state store.
func NewMemoryStateStore(ttl time.Duration) *MemoryStateStore {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &MemoryStateStore{
		entries: make(map[string]time.Time),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Set registers a state token.
func (s *MemoryStateStore) Set(ctx context.Context, state string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[state] = s.now().Add(s.ttl)
	return nil
}

// ConsumeIfValid atomically checks and removes a state token. The lock
// makes check-then-delete one step, so two concurrent consumers of the
// same state cannot both succeed.
func (s *MemoryStateStore) ConsumeIfValid(ctx context.Context, state string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiresAt, ok := s.entries[state]
	if !ok {
		return false, nil
	}
	delete(s.entries, state)

	if s.now().After(expiresAt) {
		return false, nil
	}
	return true, nil
}
