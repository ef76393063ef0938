package token

import (
	"sync"
	"time"
)

// Cache stores issued join tokens keyed by (meeting, role) until expiry.
//
// The in-memory implementation is sufficient for a single instance: the key
// space is bounded by concurrently active meetings, and stale entries are
// overwritten on the next issue. A distributed deployment can inject a shared
// implementation instead.
type Cache interface {
	Get(key string) (token string, expiry time.Time, ok bool)
	Set(key string, token string, expiry time.Time)
}

type memoryCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	token  string
	expiry time.Time
}

// NewMemoryCache returns a process-wide in-memory token cache.
func NewMemoryCache() Cache {
	return &memoryCache{entries: map[string]cacheEntry{}}
}

func (c *memoryCache) Get(key string) (string, time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return "", time.Time{}, false
	}
	return e.token, e.expiry, true
}

func (c *memoryCache) Set(key string, token string, expiry time.Time) {
	c.mu.Lock()
	c.entries[key] = cacheEntry{token: token, expiry: expiry}
	c.mu.Unlock()
}
