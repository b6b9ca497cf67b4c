// Package cache provides an age-bounded keyed store for slowly changing
// Azure entities. Stale entries are treated as misses on lookup but stay
// resident so a caller that tolerates old data can still read them.
package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/twinscape/twinscape/telemetry"
)

// Common max-ages. Twin property values churn constantly; models and the
// tenant's instance inventory change rarely.
const (
	TwinMaxAge     = 9 * time.Second
	ModelMaxAge    = 30 * time.Minute
	InstanceMaxAge = 30 * time.Minute
)

type entry[T any] struct {
	value     T
	fetchedAt time.Time
}

// Cache is a keyed store with a single max-age for all entries.
type Cache[T any] struct {
	mu      sync.RWMutex
	entries map[string]entry[T]
	maxAge  time.Duration
	group   singleflight.Group
	now     func() time.Time
}

// New creates a cache whose entries are fresh for maxAge.
func New[T any](maxAge time.Duration) *Cache[T] {
	return &Cache[T]{
		entries: make(map[string]entry[T]),
		maxAge:  maxAge,
		now:     time.Now,
	}
}

// Get returns the value for key if present and fresh.
func (c *Cache[T]) Get(key string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || c.now().Sub(e.fetchedAt) >= c.maxAge {
		var zero T
		return zero, false
	}
	return e.value, true
}

// GetStale returns the value and its age regardless of freshness.
func (c *Cache[T]) GetStale(key string) (T, time.Duration, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok {
		var zero T
		return zero, 0, false
	}
	return e.value, c.now().Sub(e.fetchedAt), true
}

// Set stores value under key with the current timestamp.
func (c *Cache[T]) Set(key string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry[T]{value: value, fetchedAt: c.now()}
}

// Invalidate drops the entry for key.
func (c *Cache[T]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Fetch returns the fresh cached value for key, or runs fn to produce
// one. Concurrent Fetch calls for the same key share a single fn
// invocation. fn errors are returned as-is and nothing is stored.
func (c *Cache[T]) Fetch(ctx context.Context, key string, fn func(ctx context.Context) (T, error)) (T, error) {
	if v, ok := c.Get(key); ok {
		telemetry.RecordCacheLookup(ctx, true)
		return v, nil
	}
	telemetry.RecordCacheLookup(ctx, false)
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		fetched, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		c.Set(key, fetched)
		return fetched, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}
