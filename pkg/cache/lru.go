package cache

import (
	"container/list"
	"sync"
)

type lruEntry[K comparable, V any] struct {
	key   K
	value V
}

// LRUCache is a bounded, thread-safe least-recently-used cache.
//
// The evict callback runs for every entry that leaves the cache (capacity
// eviction, Remove, Clear) after the internal lock is released, so it may
// block or close resources.
type LRUCache[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	items    map[K]*list.Element
	order    *list.List
	onEvict  func(key K, value V)
}

// NewLRUCache creates a cache holding at most capacity entries. It panics
// on a non-positive capacity.
func NewLRUCache[K comparable, V any](capacity int) *LRUCache[K, V] {
	if capacity <= 0 {
		panic("cache: LRU capacity must be positive")
	}
	return &LRUCache[K, V]{
		capacity: capacity,
		items:    make(map[K]*list.Element),
		order:    list.New(),
	}
}

// SetEvictCallback sets the function called for entries leaving the cache.
func (c *LRUCache[K, V]) SetEvictCallback(fn func(key K, value V)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onEvict = fn
}

// Get returns the value of key and marks it recently used.
func (c *LRUCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.order.MoveToFront(elem)
		return elem.Value.(*lruEntry[K, V]).value, true
	}
	var zero V
	return zero, false
}

// Put stores value under key and returns the previous value, if any.
// Replacing a value does not call the evict callback.
func (c *LRUCache[K, V]) Put(key K, value V) (V, bool) {
	c.mu.Lock()

	if elem, ok := c.items[key]; ok {
		c.order.MoveToFront(elem)
		entry := elem.Value.(*lruEntry[K, V])
		old := entry.value
		entry.value = value
		c.mu.Unlock()
		return old, true
	}

	c.items[key] = c.order.PushFront(&lruEntry[K, V]{key: key, value: value})
	evicted, fn := c.trimLocked(), c.onEvict
	c.mu.Unlock()

	notify(fn, evicted)
	var zero V
	return zero, false
}

// GetOrCreate returns the value of key, creating it with create when
// absent. created reports whether create ran. create runs under the lock
// and must not call back into the cache.
func (c *LRUCache[K, V]) GetOrCreate(key K, create func() V) (value V, created bool) {
	c.mu.Lock()

	if elem, ok := c.items[key]; ok {
		c.order.MoveToFront(elem)
		value = elem.Value.(*lruEntry[K, V]).value
		c.mu.Unlock()
		return value, false
	}

	value = create()
	c.items[key] = c.order.PushFront(&lruEntry[K, V]{key: key, value: value})
	evicted, fn := c.trimLocked(), c.onEvict
	c.mu.Unlock()

	notify(fn, evicted)
	return value, true
}

// Remove deletes key and returns its value.
func (c *LRUCache[K, V]) Remove(key K) (V, bool) {
	c.mu.Lock()

	elem, ok := c.items[key]
	if !ok {
		c.mu.Unlock()
		var zero V
		return zero, false
	}

	entry := c.unlinkLocked(elem)
	fn := c.onEvict
	c.mu.Unlock()

	notify(fn, []*lruEntry[K, V]{entry})
	return entry.value, true
}

// RemoveIf deletes key only while pred holds for its current value.
func (c *LRUCache[K, V]) RemoveIf(key K, pred func(V) bool) bool {
	c.mu.Lock()

	elem, ok := c.items[key]
	if !ok || !pred(elem.Value.(*lruEntry[K, V]).value) {
		c.mu.Unlock()
		return false
	}

	entry := c.unlinkLocked(elem)
	fn := c.onEvict
	c.mu.Unlock()

	notify(fn, []*lruEntry[K, V]{entry})
	return true
}

func (c *LRUCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Clear removes every entry.
func (c *LRUCache[K, V]) Clear() {
	c.mu.Lock()
	evicted := make([]*lruEntry[K, V], 0, c.order.Len())
	for elem := c.order.Back(); elem != nil; elem = elem.Prev() {
		evicted = append(evicted, elem.Value.(*lruEntry[K, V]))
	}
	c.items = make(map[K]*list.Element)
	c.order.Init()
	fn := c.onEvict
	c.mu.Unlock()

	notify(fn, evicted)
}

// must be called with c.mu held
func (c *LRUCache[K, V]) trimLocked() []*lruEntry[K, V] {
	var evicted []*lruEntry[K, V]
	for c.order.Len() > c.capacity {
		evicted = append(evicted, c.unlinkLocked(c.order.Back()))
	}
	return evicted
}

// must be called with c.mu held
func (c *LRUCache[K, V]) unlinkLocked(elem *list.Element) *lruEntry[K, V] {
	c.order.Remove(elem)
	entry := elem.Value.(*lruEntry[K, V])
	delete(c.items, entry.key)
	return entry
}

func notify[K comparable, V any](fn func(K, V), entries []*lruEntry[K, V]) {
	if fn == nil {
		return
	}
	for _, e := range entries {
		fn(e.key, e.value)
	}
}
