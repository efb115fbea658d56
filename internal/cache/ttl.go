package cache

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Clock returns the current time.
type Clock func() time.Time

type entry struct {
	value   any
	written time.Time
	ttl     time.Duration
}

// TTLCache is an in-memory Cache. An entry is valid while
// now - written < ttl; stale entries are removed when read.
type TTLCache struct {
	mu      sync.Mutex
	entries map[string]entry
	now     Clock

	hits   int64
	misses int64
}

// Option configures a TTLCache.
type Option func(*TTLCache)

// WithClock overrides the time source.
func WithClock(c Clock) Option {
	return func(t *TTLCache) {
		if c != nil {
			t.now = c
		}
	}
}

// NewTTL creates an empty TTLCache.
func NewTTL(opts ...Option) *TTLCache {
	c := &TTLCache{
		entries: make(map[string]entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the value for key if present and not stale.
func (c *TTLCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}
	if c.now().Sub(e.written) >= e.ttl {
		delete(c.entries, key)
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}
	atomic.AddInt64(&c.hits, 1)
	return e.value, true
}

// Set stores value under key. A non-positive ttl uses DefaultTTL.
func (c *TTLCache) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c.mu.Lock()
	c.entries[key] = entry{value: value, written: c.now(), ttl: ttl}
	c.mu.Unlock()
}

// Delete removes key.
func (c *TTLCache) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Purge removes every entry whose key starts with prefix. An empty prefix
// clears the cache. It returns the number of entries removed.
func (c *TTLCache) Purge(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var n int
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Len reports the number of stored entries, stale ones included.
func (c *TTLCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns hit and miss counts.
func (c *TTLCache) Stats() (hits, misses int64) {
	return atomic.LoadInt64(&c.hits), atomic.LoadInt64(&c.misses)
}
