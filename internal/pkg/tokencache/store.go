package tokencache

import (
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fitstack/mindbridge/internal/pkg/cache"
)

// ErrCacheMiss is returned when a key is absent or expired.
var ErrCacheMiss = errors.New("tokencache: cache miss")

// Store is the pluggable backing for cached token payloads. Implementations
// must expire entries after the TTL passed to Set.
type Store interface {
	Get(key string) (string, error)
	Set(key, value string, ttl time.Duration) error
	Delete(key string) error
}

type redisStore struct{}

// NewRedisStore returns a Store backed by the shared Redis client.
func NewRedisStore() Store {
	return redisStore{}
}

func (redisStore) Get(key string) (string, error) {
	val, err := cache.Get(key)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrCacheMiss
		}
		return "", err
	}
	return val, nil
}

func (redisStore) Set(key, value string, ttl time.Duration) error {
	return cache.Set(key, value, ttl)
}

func (redisStore) Delete(key string) error {
	return cache.Delete(key)
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryStore is an in-process Store with TTL expiry, used in tests and
// single-node deployments without Redis.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (s *MemoryStore) Get(key string) (string, error) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return "", ErrCacheMiss
	}
	if s.now().After(entry.expiresAt) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return "", ErrCacheMiss
	}
	return entry.value, nil
}

func (s *MemoryStore) Set(key, value string, ttl time.Duration) error {
	s.mu.Lock()
	s.entries[key] = memoryEntry{value: value, expiresAt: s.now().Add(ttl)}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}
