package service

import (
	"context"
	"sync"
	"time"
)

// Cache holds one value fetched from a slow source. It is owned by whoever
// constructs it; there is no package-level state.
type Cache[T any] struct {
	mu        sync.Mutex
	value     T
	fetchedAt time.Time
	loaded    bool

	ttl   time.Duration
	now   func() time.Time
	fetch func(ctx context.Context) (T, error)
}

func NewCache[T any](ttl time.Duration, now func() time.Time, fetch func(ctx context.Context) (T, error)) *Cache[T] {
	if now == nil {
		now = time.Now
	}
	return &Cache[T]{ttl: ttl, now: now, fetch: fetch}
}

type Snapshot[T any] struct {
	Value     T
	FetchedAt time.Time
	// Cached: served without calling the source.
	Cached bool
	// Stale: the refresh failed and an older value was served instead.
	Stale bool
}

// Get returns the cached value while it is fresh; force skips the freshness check.
// When a refresh fails the previous value is served if there is one.
func (c *Cache[T]) Get(ctx context.Context, force bool) (Snapshot[T], error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loaded && !force && c.now().Sub(c.fetchedAt) < c.ttl {
		return Snapshot[T]{Value: c.value, FetchedAt: c.fetchedAt, Cached: true}, nil
	}

	v, err := c.fetch(ctx)
	if err != nil {
		if c.loaded {
			return Snapshot[T]{Value: c.value, FetchedAt: c.fetchedAt, Cached: true, Stale: true}, nil
		}
		var zero T
		return Snapshot[T]{Value: zero}, err
	}
	c.value = v
	c.fetchedAt = c.now()
	c.loaded = true
	return Snapshot[T]{Value: v, FetchedAt: c.fetchedAt}, nil
}
