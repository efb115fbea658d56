// Package cache holds computed analytics results keyed by the function that
// produced them and its arguments.
package cache

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultTTL is how long results stay valid when no TTL is configured.
const DefaultTTL = 300 * time.Second

// Cache stores values with a time-to-live. Implementations must be safe for
// concurrent use.
type Cache interface {
	Get(key string) (any, bool)
	Set(key string, value any, ttl time.Duration)
}

// Nop is a Cache that stores nothing.
type Nop struct{}

// Get always misses.
func (Nop) Get(string) (any, bool) { return nil, false }

// Set discards the value.
func (Nop) Set(string, any, time.Duration) {}

// Key builds a cache key from a function name and its arguments. Arguments
// are quoted so distinct argument lists never share a key.
func Key(name string, args ...any) string {
	var b strings.Builder
	b.WriteString(name)
	for _, a := range args {
		b.WriteByte(':')
		b.WriteString(strconv.Quote(fmt.Sprint(a)))
	}
	return b.String()
}
