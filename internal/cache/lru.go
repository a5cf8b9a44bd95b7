// Package cache holds short-lived read caches in front of the ledger. Entries
// are never written by mutation paths; writers invalidate and readers refetch.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// LRU is a bounded cache whose entries expire ttl after they were stored.
type LRU[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	items    map[K]*list.Element
	order    *list.List
	nowFn    func() time.Time
	onLookup func(hit bool)
}

type entry[K comparable, V any] struct {
	key       K
	value     V
	expiresAt time.Time
}

type Option func(*options)

type options struct {
	onLookup func(hit bool)
}

// WithLookupObserver is called after every Get with whether it hit.
func WithLookupObserver(fn func(hit bool)) Option {
	return func(o *options) { o.onLookup = fn }
}

// NewLRU creates a cache holding at most capacity entries. A non-positive
// capacity is treated as one.
func NewLRU[K comparable, V any](capacity int, ttl time.Duration, opts ...Option) *LRU[K, V] {
	if capacity <= 0 {
		capacity = 1
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return &LRU[K, V]{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[K]*list.Element, capacity),
		order:    list.New(),
		nowFn:    time.Now,
		onLookup: o.onLookup,
	}
}

// Get returns the live value for key. Expired entries are removed.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	v, ok := c.get(key)
	if c.onLookup != nil {
		c.onLookup(ok)
	}
	return v, ok
}

func (c *LRU[K, V]) get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	elem, ok := c.items[key]
	if !ok {
		return zero, false
	}
	e := elem.Value.(*entry[K, V])
	if c.nowFn().After(e.expiresAt) {
		c.removeElement(elem)
		return zero, false
	}
	c.order.MoveToFront(elem)
	return e.value, true
}

// Put stores value under key, refreshing its TTL.
func (c *LRU[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.nowFn().Add(c.ttl)
	if elem, ok := c.items[key]; ok {
		e := elem.Value.(*entry[K, V])
		e.value = value
		e.expiresAt = expiresAt
		c.order.MoveToFront(elem)
		return
	}
	if c.order.Len() >= c.capacity {
		if oldest := c.order.Back(); oldest != nil {
			c.removeElement(oldest)
		}
	}
	c.items[key] = c.order.PushFront(&entry[K, V]{key: key, value: value, expiresAt: expiresAt})
}

// Invalidate drops key. It reports whether an entry was present.
func (c *LRU[K, V]) Invalidate(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if ok {
		c.removeElement(elem)
	}
	return ok
}

// Purge drops every entry.
func (c *LRU[K, V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	clear(c.items)
	c.order.Init()
}

// Len counts stored entries, including expired ones not yet evicted.
func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *LRU[K, V]) removeElement(elem *list.Element) {
	c.order.Remove(elem)
	delete(c.items, elem.Value.(*entry[K, V]).key)
}
