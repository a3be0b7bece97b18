package cache

import (
	"sync"
	"time"
)

type expiringEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// ExpiringCache is a thread-safe map whose entries carry their own TTL.
// Expired entries are invisible to readers and removed by Sweep, which
// runs periodically when the cache is created with a sweep interval.
type ExpiringCache[K comparable, V any] struct {
	mu      sync.Mutex
	items   map[K]*expiringEntry[V]
	now     func() time.Time
	done    chan struct{}
	closeMu sync.Once
}

// ExpiringOption configures an ExpiringCache.
type ExpiringOption func(*expiringConfig)

type expiringConfig struct {
	sweepInterval time.Duration
	now           func() time.Time
}

// WithSweepInterval starts a background sweep on the given interval.
// Non-positive values disable the background sweep.
func WithSweepInterval(d time.Duration) ExpiringOption {
	return func(c *expiringConfig) {
		c.sweepInterval = d
	}
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) ExpiringOption {
	return func(c *expiringConfig) {
		if now != nil {
			c.now = now
		}
	}
}

// NewExpiringCache creates an empty cache. Call Close to stop the sweeper.
func NewExpiringCache[K comparable, V any](opts ...ExpiringOption) *ExpiringCache[K, V] {
	cfg := &expiringConfig{now: time.Now}
	for _, opt := range opts {
		opt(cfg)
	}

	c := &ExpiringCache[K, V]{
		items: make(map[K]*expiringEntry[V]),
		now:   cfg.now,
		done:  make(chan struct{}),
	}

	if cfg.sweepInterval > 0 {
		go c.sweepLoop(cfg.sweepInterval)
	}

	return c
}

// Get returns the value and its remaining TTL when present and not expired.
func (c *ExpiringCache[K, V]) Get(key K) (V, time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.items[key]
	if !ok {
		return zero, 0, false
	}

	now := c.now()
	if !now.Before(e.expiresAt) {
		delete(c.items, key)
		return zero, 0, false
	}

	return e.value, e.expiresAt.Sub(now), true
}

// Set stores value under key for ttl. A non-positive ttl deletes the key.
func (c *ExpiringCache[K, V]) Set(key K, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ttl <= 0 {
		delete(c.items, key)
		return
	}

	c.items[key] = &expiringEntry[V]{value: value, expiresAt: c.now().Add(ttl)}
}

// Update applies fn to the current value atomically. When the key is absent or
// expired, fn receives the zero value with exists=false and the entry is
// created with ttl. An existing entry keeps its original deadline.
func (c *ExpiringCache[K, V]) Update(key K, ttl time.Duration, fn func(current V, exists bool) V) (V, time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	e, ok := c.items[key]
	if ok && !now.Before(e.expiresAt) {
		ok = false
	}

	if !ok {
		var zero V
		e = &expiringEntry[V]{value: fn(zero, false), expiresAt: now.Add(ttl)}
		c.items[key] = e
		return e.value, ttl
	}

	e.value = fn(e.value, true)
	return e.value, e.expiresAt.Sub(now)
}

// Compute replaces the entry of key atomically with the value and TTL
// returned by fn. fn receives the current value and remaining TTL, or the
// zero value with exists=false. A non-positive returned TTL deletes the key.
func (c *ExpiringCache[K, V]) Compute(key K, fn func(current V, ttl time.Duration, exists bool) (V, time.Duration)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var cur V
	var remaining time.Duration
	e, ok := c.items[key]
	if ok && now.Before(e.expiresAt) {
		cur, remaining = e.value, e.expiresAt.Sub(now)
	} else {
		ok = false
	}

	next, ttl := fn(cur, remaining, ok)
	if ttl <= 0 {
		delete(c.items, key)
		return
	}
	c.items[key] = &expiringEntry[V]{value: next, expiresAt: now.Add(ttl)}
}

// Delete removes key.
func (c *ExpiringCache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// Range calls fn for every live entry until fn returns false.
// fn must not call back into the cache.
func (c *ExpiringCache[K, V]) Range(fn func(key K, value V) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, e := range c.items {
		if !now.Before(e.expiresAt) {
			continue
		}
		if !fn(k, e.value) {
			return
		}
	}
}

// Sweep removes expired entries and reports how many were dropped.
func (c *ExpiringCache[K, V]) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for k, e := range c.items {
		if !now.Before(e.expiresAt) {
			delete(c.items, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries, including ones not yet swept.
func (c *ExpiringCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Close stops the background sweeper. Safe to call more than once.
func (c *ExpiringCache[K, V]) Close() error {
	c.closeMu.Do(func() {
		close(c.done)
	})
	return nil
}

func (c *ExpiringCache[K, V]) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Sweep()
		case <-c.done:
			return
		}
	}
}
