package embed

import (
	"sync"
	"time"
)

// Cache stores embedding vectors keyed by content hash. Implementations
// must be safe for concurrent use; writes are last-writer-wins, which is
// safe because embeddings are deterministic for a given input.
type Cache interface {
	Get(key string) ([]float32, bool)
	Set(key string, vec []float32)
	Invalidate(key string)
}

type memoryEntry struct {
	vec       []float32
	expiresAt time.Time
}

// MemoryCache is an in-process Cache with per-entry TTL and lazy expiry.
type MemoryCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]memoryEntry
}

// NewMemoryCache creates a MemoryCache. A non-positive ttl defaults to
// 24 hours.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &MemoryCache{
		ttl:     ttl,
		entries: make(map[string]memoryEntry),
	}
}

// Get returns the cached vector for key if present and unexpired.
func (c *MemoryCache) Get(key string) ([]float32, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		c.Invalidate(key)
		return nil, false
	}
	out := make([]float32, len(entry.vec))
	copy(out, entry.vec)
	return out, true
}

// Set stores vec under key with the cache TTL.
func (c *MemoryCache) Set(key string, vec []float32) {
	stored := make([]float32, len(vec))
	copy(stored, vec)
	c.mu.Lock()
	c.entries[key] = memoryEntry{vec: stored, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()
}

// Invalidate removes key from the cache.
func (c *MemoryCache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Len returns the number of entries, including any not yet lazily
// expired.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
