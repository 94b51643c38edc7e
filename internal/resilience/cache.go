// Package resilience wraps upstream calls with rate-limit-aware retries,
// jittered backoff, and a shared response cache with stale fallback.
package resilience

import (
	"sync"
	"time"

	"github.com/citescout/citescout/internal/scholar"
)

const defaultMaxStale = 24 * time.Hour

type cacheEntry struct {
	payload   []byte
	storedAt  time.Time
	expiresAt time.Time
}

// Cache is a concurrency-safe TTL cache keyed by fully-qualified request.
// Expired entries are kept up to a max-stale window so they remain available
// as a fallback after retry exhaustion; entries past that window are evicted
// lazily on access.
type Cache struct {
	mu       sync.RWMutex
	ttl      time.Duration
	maxStale time.Duration
	clock    scholar.Clock
	entries  map[string]cacheEntry
}

// NewCache builds a Cache. A non-positive maxStale falls back to 24h; the
// max-stale window is never shorter than the TTL.
func NewCache(ttl, maxStale time.Duration, clock scholar.Clock) *Cache {
	if maxStale <= 0 {
		maxStale = defaultMaxStale
	}
	if maxStale < ttl {
		maxStale = ttl
	}
	return &Cache{
		ttl:      ttl,
		maxStale: maxStale,
		clock:    clock,
		entries:  make(map[string]cacheEntry),
	}
}

// Get returns the payload for key if a fresh entry exists.
func (c *Cache) Get(key string) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	now := c.clock.Now()
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if now.After(entry.expiresAt) {
		c.evictIfTooStale(key, entry, now)
		return nil, false
	}
	return entry.payload, true
}

// GetStale returns the payload for key if any entry exists inside the
// max-stale window, along with whether it had already expired.
func (c *Cache) GetStale(key string) ([]byte, bool, bool) {
	if c == nil {
		return nil, false, false
	}
	now := c.clock.Now()
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false, false
	}
	if now.Sub(entry.storedAt) > c.maxStale {
		c.evictIfTooStale(key, entry, now)
		return nil, false, false
	}
	return entry.payload, now.After(entry.expiresAt), true
}

// Put stores payload under key with the configured TTL.
func (c *Cache) Put(key string, payload []byte) {
	if c == nil {
		return
	}
	now := c.clock.Now()
	c.mu.Lock()
	c.entries[key] = cacheEntry{
		payload:   append([]byte(nil), payload...),
		storedAt:  now,
		expiresAt: now.Add(c.ttl),
	}
	c.mu.Unlock()
}

// Len reports the number of resident entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) evictIfTooStale(key string, entry cacheEntry, now time.Time) {
	if now.Sub(entry.storedAt) <= c.maxStale {
		return
	}
	c.mu.Lock()
	// Re-check under the write lock; the entry may have been replaced.
	if current, ok := c.entries[key]; ok && current.storedAt.Equal(entry.storedAt) {
		delete(c.entries, key)
	}
	c.mu.Unlock()
}
