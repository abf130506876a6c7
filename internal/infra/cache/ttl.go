// Package cache holds the in-process TTL cache used in front of the store.
package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value    V
	storedAt time.Time
}

// TTLCache maps keys to values with a freshness window. Reads take the
// shared lock; Set, Delete and EvictExpired take the exclusive lock.
// Values are stored as given; callers that hand out mutable values must clone.
type TTLCache[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]entry[V]
	ttl     time.Duration
	now     func() time.Time
}

type Option[K comparable, V any] func(*TTLCache[K, V])

// WithClock overrides time.Now.
func WithClock[K comparable, V any](now func() time.Time) Option[K, V] {
	return func(c *TTLCache[K, V]) { c.now = now }
}

func NewTTLCache[K comparable, V any](ttl time.Duration, opts ...Option[K, V]) *TTLCache[K, V] {
	c := &TTLCache[K, V]{
		entries: make(map[K]entry[V]),
		ttl:     ttl,
		now:     time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *TTLCache[K, V]) TTL() time.Duration { return c.ttl }

// Get returns the value only while its age is below the TTL.
func (c *TTLCache[K, V]) Get(k K) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[k]
	c.mu.RUnlock()

	if !ok || c.now().Sub(e.storedAt) >= c.ttl {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores v stamped with the current time.
func (c *TTLCache[K, V]) Set(k K, v V) {
	c.mu.Lock()
	c.entries[k] = entry[V]{value: v, storedAt: c.now()}
	c.mu.Unlock()
}

func (c *TTLCache[K, V]) Delete(k K) {
	c.mu.Lock()
	delete(c.entries, k)
	c.mu.Unlock()
}

// Len counts stored entries, including stale ones not yet evicted.
func (c *TTLCache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// EvictExpired drops every entry whose age reached the TTL and returns how
// many were removed.
func (c *TTLCache[K, V]) EvictExpired() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for k, e := range c.entries {
		if now.Sub(e.storedAt) >= c.ttl {
			delete(c.entries, k)
			n++
		}
	}
	return n
}
