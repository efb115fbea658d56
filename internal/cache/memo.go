package cache

import (
	"time"

	"golang.org/x/sync/singleflight"
)

// Memo wraps computations with a Cache. Concurrent misses for the same key
// share a single computation.
type Memo struct {
	cache  Cache
	ttl    time.Duration
	flight singleflight.Group
}

// NewMemo returns a Memo backed by c. A nil c disables caching.
func NewMemo(c Cache, ttl time.Duration) *Memo {
	if c == nil {
		c = Nop{}
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memo{cache: c, ttl: ttl}
}

// Do returns the cached value for Key(name, args...) or runs compute and
// stores its result. hit reports whether the value came from the cache.
// Errors are not cached.
func (m *Memo) Do(name string, compute func() (any, error), args ...any) (value any, hit bool, err error) {
	key := Key(name, args...)
	if v, ok := m.cache.Get(key); ok {
		return v, true, nil
	}

	v, err, _ := m.flight.Do(key, func() (any, error) {
		if v, ok := m.cache.Get(key); ok {
			return v, nil
		}
		v, err := compute()
		if err != nil {
			return nil, err
		}
		m.cache.Set(key, v, m.ttl)
		return v, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v, false, nil
}

// Call is a typed wrapper around Memo.Do.
func Call[T any](m *Memo, name string, compute func() (T, error), args ...any) (T, bool, error) {
	v, hit, err := m.Do(name, func() (any, error) { return compute() }, args...)
	if err != nil {
		var zero T
		return zero, false, err
	}
	return v.(T), hit, nil
}
