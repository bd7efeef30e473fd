package cache

import (
	"container/list"
	"sync"
	"time"
)

// EvictReason says why an entry left the cache without being taken.
type EvictReason int

const (
	EvictExpired EvictReason = iota
	EvictCapacity
	EvictPurge
)

func (r EvictReason) String() string {
	switch r {
	case EvictExpired:
		return "expired"
	case EvictCapacity:
		return "capacity"
	default:
		return "purge"
	}
}

// LRUCache is a size-bounded cache whose entries expire ttl after their last
// Set or Touch. OnEvict, when set, runs outside the lock for every entry the
// cache drops on its own.
type LRUCache[T any] struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	items   map[string]*list.Element
	lru     *list.List
	onEvict func(key string, value T, reason EvictReason)
	now     func() time.Time
}

type cacheItem[T any] struct {
	key       string
	data      T
	expiresAt time.Time
}

type evicted[T any] struct {
	key    string
	data   T
	reason EvictReason
}

// NewLRUCache creates a new LRU cache with TTL
func NewLRUCache[T any](maxSize int, ttl time.Duration) *LRUCache[T] {
	return &LRUCache[T]{
		maxSize: maxSize,
		ttl:     ttl,
		items:   make(map[string]*list.Element),
		lru:     list.New(),
		now:     time.Now,
	}
}

// OnEvict registers the eviction callback. Call it before the cache is shared.
func (c *LRUCache[T]) OnEvict(fn func(key string, value T, reason EvictReason)) {
	c.onEvict = fn
}

// Get retrieves a value and marks it most recently used. It does not extend
// the expiry; use Touch for that.
func (c *LRUCache[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	var zero T
	elem, exists := c.items[key]
	if !exists {
		c.mu.Unlock()
		return zero, false
	}
	item := elem.Value.(*cacheItem[T])
	if c.now().After(item.expiresAt) {
		c.removeElement(elem)
		c.mu.Unlock()
		c.notify([]evicted[T]{{item.key, item.data, EvictExpired}})
		return zero, false
	}
	c.lru.MoveToFront(elem)
	c.mu.Unlock()
	return item.data, true
}

// Touch pushes the expiry of a live entry ttl into the future.
func (c *LRUCache[T]) Touch(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.items[key]
	if !ok {
		return false
	}
	item := elem.Value.(*cacheItem[T])
	if c.now().After(item.expiresAt) {
		return false
	}
	item.expiresAt = c.now().Add(c.ttl)
	c.lru.MoveToFront(elem)
	return true
}

// Set stores a value in the cache, evicting the least recently used entry if
// the cache is full.
func (c *LRUCache[T]) Set(key string, data T) {
	c.mu.Lock()
	item := &cacheItem[T]{
		key:       key,
		data:      data,
		expiresAt: c.now().Add(c.ttl),
	}

	if elem, exists := c.items[key]; exists {
		elem.Value = item
		c.lru.MoveToFront(elem)
		c.mu.Unlock()
		return
	}

	elem := c.lru.PushFront(item)
	c.items[key] = elem

	var out []evicted[T]
	if c.maxSize > 0 && c.lru.Len() > c.maxSize {
		if oldest := c.lru.Back(); oldest != nil {
			old := oldest.Value.(*cacheItem[T])
			c.removeElement(oldest)
			out = append(out, evicted[T]{old.key, old.data, EvictCapacity})
		}
	}
	c.mu.Unlock()
	c.notify(out)
}

// Take removes key and hands its value to the caller. No callback runs.
func (c *LRUCache[T]) Take(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero T
	elem, exists := c.items[key]
	if !exists {
		return zero, false
	}
	item := elem.Value.(*cacheItem[T])
	c.removeElement(elem)
	return item.data, true
}

// Delete removes a key from the cache without running the callback.
func (c *LRUCache[T]) Delete(key string) {
	c.Take(key)
}

func (c *LRUCache[T]) removeElement(elem *list.Element) {
	item := elem.Value.(*cacheItem[T])
	delete(c.items, item.key)
	c.lru.Remove(elem)
}

// CleanExpired removes all expired entries and returns count of removed items
func (c *LRUCache[T]) CleanExpired() int {
	c.mu.Lock()
	now := c.now()
	var out []evicted[T]
	for elem := c.lru.Front(); elem != nil; {
		next := elem.Next()
		item := elem.Value.(*cacheItem[T])
		if now.After(item.expiresAt) {
			c.removeElement(elem)
			out = append(out, evicted[T]{item.key, item.data, EvictExpired})
		}
		elem = next
	}
	c.mu.Unlock()
	c.notify(out)
	return len(out)
}

// Purge drops every entry, running the callback for each.
func (c *LRUCache[T]) Purge() int {
	c.mu.Lock()
	out := make([]evicted[T], 0, len(c.items))
	for elem := c.lru.Front(); elem != nil; elem = elem.Next() {
		item := elem.Value.(*cacheItem[T])
		out = append(out, evicted[T]{item.key, item.data, EvictPurge})
	}
	c.items = make(map[string]*list.Element)
	c.lru.Init()
	c.mu.Unlock()
	c.notify(out)
	return len(out)
}

func (c *LRUCache[T]) notify(out []evicted[T]) {
	if c.onEvict == nil {
		return
	}
	for _, e := range out {
		c.onEvict(e.key, e.data, e.reason)
	}
}

// Size returns the current number of items in the cache
func (c *LRUCache[T]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
