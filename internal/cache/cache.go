package cache

import (
	"fmt"
	"sort"
	"sync"

	"ilp-go/internal/config"
	"ilp-go/internal/ilp"
)

// DefaultRedisKey is the Redis set holding dirty context paths.
const DefaultRedisKey = "ilp:dirty_contexts"

// Cache collects dirty context paths for the platform's hierarchy caches.
type Cache interface {
	ilp.ContextCache

	// Dirty returns the dirty paths, sorted.
	Dirty() ([]string, error)

	// Clear forgets a path once its cache has been rebuilt.
	Clear(path string) error

	Close() error
}

// MemoryCache keeps dirty paths in process memory.
// This implementation is safe for concurrent use.
type MemoryCache struct {
	mu    sync.Mutex
	dirty map[string]struct{}
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{dirty: make(map[string]struct{})}
}

func (m *MemoryCache) MarkDirty(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dirty[path] = struct{}{}
	return nil
}

func (m *MemoryCache) Dirty() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	paths := make([]string, 0, len(m.dirty))
	for p := range m.dirty {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths, nil
}

func (m *MemoryCache) Clear(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.dirty, path)
	return nil
}

func (m *MemoryCache) Close() error { return nil }

// NewCacheFromConfig creates a Cache based on the config type.
func NewCacheFromConfig(cfg config.CacheConfig) (Cache, error) {
	switch cfg.Type {
	case "", "memory":
		return NewMemoryCache(), nil
	case "redis":
		if cfg.RedisAddr == "" {
			return nil, fmt.Errorf("redis cache requires redis_addr to be set")
		}
		key := cfg.RedisKey
		if key == "" {
			key = DefaultRedisKey
		}
		return NewRedisCache(cfg.RedisAddr, key)
	default:
		return nil, fmt.Errorf("unknown cache type: %s", cfg.Type)
	}
}

var (
	_ Cache = (*MemoryCache)(nil)
	_ Cache = (*RedisCache)(nil)
)
