/*
cache.go - TTL view cache for read endpoints

PURPOSE:
  The collection view reconciles every active shop on each request. Route
  staff poll that view all day, so computed views are cached for a short
  TTL and invalidated explicitly after any mutation.

KEYING:
  Entries are keyed by request signature, e.g. "collection:2025-06-10" or
  "ledger:shop-1:2025-06-10". The shop id is embedded so a per-shop
  mutation can drop just that shop's entries plus the shared views.

INVALIDATION:
  Caching is never a source of truth: every mutation path calls back into
  the cache before returning, and entries expire on their own regardless.

CAPACITY:
  Bounded; when full, the entry closest to expiry is evicted.
*/
package route

import (
	"strings"
	"sync"
	"time"
)

// viewCache is a TTL + capacity bounded cache for computed views.
type viewCache struct {
	mu       sync.Mutex
	entries  map[string]cacheEntry
	ttl      time.Duration
	capacity int
	now      func() time.Time
}

type cacheEntry struct {
	value     interface{}
	expiresAt time.Time
}

func newViewCache(ttl time.Duration, capacity int) *viewCache {
	return &viewCache{
		entries:  make(map[string]cacheEntry),
		ttl:      ttl,
		capacity: capacity,
		now:      time.Now,
	}
}

// get returns the cached value for key, or nil if absent or expired.
func (c *viewCache) get(key string) interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil
	}
	if c.now().After(e.expiresAt) {
		delete(c.entries, key)
		return nil
	}
	return e.value
}

// set stores value under key, evicting the closest-to-expiry entry when
// the cache is full.
func (c *viewCache) set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.capacity {
		if _, exists := c.entries[key]; !exists {
			c.evictOldest()
		}
	}
	c.entries[key] = cacheEntry{value: value, expiresAt: c.now().Add(c.ttl)}
}

// invalidateShop drops every entry mentioning the shop plus all shared
// (non-shop-scoped) views.
func (c *viewCache) invalidateShop(shopID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.entries {
		if !strings.HasPrefix(key, "ledger:") || strings.Contains(key, ":"+shopID+":") {
			delete(c.entries, key)
		}
	}
}

// invalidateAll empties the cache.
func (c *viewCache) invalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}

func (c *viewCache) evictOldest() {
	var oldestKey string
	var oldestExpiry time.Time
	for key, e := range c.entries {
		if oldestKey == "" || e.expiresAt.Before(oldestExpiry) {
			oldestKey = key
			oldestExpiry = e.expiresAt
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}
