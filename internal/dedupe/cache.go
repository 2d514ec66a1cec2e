// ABOUTME: Thread-safe TTL cache for absorbing repeated inbound message deliveries.
// ABOUTME: Sits in front of the store's uniqueness constraint to short-circuit retries cheaply.

package dedupe

import (
	"sync"
	"time"
)

// Cache tracks recently seen message keys so connectors delivering the
// same platform event twice are absorbed before the pipeline runs. It
// is a process-local fast path; the store's uniqueness constraint
// remains the durable guarantee.
type Cache struct {
	mu      sync.Mutex
	seen    map[string]time.Time
	ttl     time.Duration
	maxSize int
}

// New creates a cache. Entries older than ttl are treated as unseen and
// pruned opportunistically; the cache never holds more than maxSize keys.
func New(ttl time.Duration, maxSize int) *Cache {
	return &Cache{
		seen:    make(map[string]time.Time),
		ttl:     ttl,
		maxSize: maxSize,
	}
}

// Seen atomically reports whether key was marked within the TTL, and
// marks it if not. Returns true for a duplicate, false for a first
// sighting (which is now marked).
func (c *Cache) Seen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if ts, ok := c.seen[key]; ok && now.Sub(ts) < c.ttl {
		return true
	}

	if len(c.seen) >= c.maxSize {
		c.pruneLocked(now)
	}
	c.seen[key] = now
	return false
}

// Len returns the number of tracked keys, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

// pruneLocked drops expired entries; if nothing has expired it drops
// the oldest entry so an insert always has room. Must hold mu.
func (c *Cache) pruneLocked(now time.Time) {
	var oldestKey string
	var oldestTS time.Time
	for key, ts := range c.seen {
		if now.Sub(ts) >= c.ttl {
			delete(c.seen, key)
			continue
		}
		if oldestKey == "" || ts.Before(oldestTS) {
			oldestKey, oldestTS = key, ts
		}
	}
	if len(c.seen) >= c.maxSize && oldestKey != "" {
		delete(c.seen, oldestKey)
	}
}
