// Package cooldown suppresses repeated actions for the same payload within a
// fixed window.
package cooldown

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	// DefaultPeriod is the minimum spacing between two triggers of one payload.
	DefaultPeriod = 5 * time.Second
	// DefaultCapacity bounds the number of payloads remembered at once.
	DefaultCapacity = 1024
)

// Cache remembers when each payload last fired. The least recently used
// payload is evicted once capacity is reached.
type Cache struct {
	mu      sync.Mutex
	period  time.Duration
	entries *lru.Cache[string, time.Time]
	now     func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the clock used by Allow.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates a cache. Non-positive arguments fall back to the defaults.
func New(period time.Duration, capacity int, opts ...Option) *Cache {
	if period <= 0 {
		period = DefaultPeriod
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	entries, err := lru.New[string, time.Time](capacity)
	if err != nil {
		// only returned for a non-positive size
		panic(fmt.Sprintf("cooldown: %v", err))
	}
	c := &Cache{period: period, entries: entries, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Period returns the cooldown window.
func (c *Cache) Period() time.Duration { return c.period }

// ShouldTrigger reports whether payload may fire at now. When it may, now is
// recorded as its last trigger time; otherwise the entry is left untouched.
func (c *Cache) ShouldTrigger(payload string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if last, ok := c.entries.Peek(payload); ok && now.Sub(last) <= c.period {
		return false
	}
	c.entries.Add(payload, now)
	return true
}

// Allow is ShouldTrigger at the cache's current time.
func (c *Cache) Allow(payload string) bool {
	return c.ShouldTrigger(payload, c.now())
}

// Remaining returns how long payload stays suppressed at now, or zero.
func (c *Cache) Remaining(payload string, now time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	last, ok := c.entries.Peek(payload)
	if !ok {
		return 0
	}
	if left := c.period - now.Sub(last); left > 0 {
		return left
	}
	return 0
}

// Sweep drops entries whose window has passed and returns how many were removed.
func (c *Cache) Sweep(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for _, key := range c.entries.Keys() {
		last, ok := c.entries.Peek(key)
		if ok && now.Sub(last) > c.period {
			c.entries.Remove(key)
			removed++
		}
	}
	return removed
}

// Len returns the number of remembered payloads, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// Reset forgets every payload.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Purge()
}
