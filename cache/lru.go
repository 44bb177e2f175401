// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package cache provides a small generic LRU used by framegraph to
// memoize compiled execution plans across enable-predicate toggles.
//
// Compilation is not a hot path, so unlike high-concurrency texture
// caches this one uses a single lock and an intrusive doubly linked list.
package cache

import (
	"sync"
	"sync/atomic"
)

// DefaultCapacity is the default maximum number of entries.
const DefaultCapacity = 16

// lruNode is a node in the intrusive LRU list.
type lruNode[K comparable, V any] struct {
	key        K
	value      V
	prev, next *lruNode[K, V]
}

// LRU is a thread-safe fixed-capacity cache with least-recently-used
// eviction and atomic hit/miss/eviction statistics.
type LRU[K comparable, V any] struct {
	mu       sync.Mutex
	entries  map[K]*lruNode[K, V]
	head     *lruNode[K, V] // most recently used
	tail     *lruNode[K, V] // least recently used
	capacity int

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// New creates an LRU with the given capacity.
// If capacity <= 0, DefaultCapacity is used.
func New[K comparable, V any](capacity int) *LRU[K, V] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &LRU[K, V]{
		entries:  make(map[K]*lruNode[K, V], capacity),
		capacity: capacity,
	}
}

// Get retrieves a cached value by key.
// Returns (value, true) if found, (zero, false) otherwise.
// On hit, the entry becomes the most recently used.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	node, ok := c.entries[key]
	if !ok {
		c.misses.Add(1)
		var zero V
		return zero, false
	}
	c.moveToFront(node)
	c.hits.Add(1)
	return node.value, true
}

// Set stores a value, evicting the least recently used entry if the cache
// is at capacity. The value is stored as-is (not copied).
func (c *LRU[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if node, ok := c.entries[key]; ok {
		node.value = value
		c.moveToFront(node)
		return
	}

	for len(c.entries) >= c.capacity {
		c.evictOldest()
	}

	node := &lruNode[K, V]{key: key, value: value}
	c.pushFront(node)
	c.entries[key] = node
}

// Delete removes an entry. Returns true if it was present.
func (c *LRU[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	node, ok := c.entries[key]
	if !ok {
		return false
	}
	c.unlink(node)
	delete(c.entries, key)
	return true
}

// Clear removes all entries.
func (c *LRU[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[K]*lruNode[K, V], c.capacity)
	c.head = nil
	c.tail = nil
}

// Len returns the number of entries.
func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Capacity returns the maximum number of entries.
func (c *LRU[K, V]) Capacity() int {
	return c.capacity
}

// Stats holds cache statistics.
type Stats struct {
	Len       int
	Capacity  int
	Hits      uint64
	Misses    uint64
	HitRate   float64
	Evictions uint64
}

// Stats returns current cache statistics.
func (c *LRU[K, V]) Stats() Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return Stats{
		Len:       c.Len(),
		Capacity:  c.capacity,
		Hits:      hits,
		Misses:    misses,
		HitRate:   hitRate,
		Evictions: c.evictions.Load(),
	}
}

// ResetStats resets all statistics counters to zero.
func (c *LRU[K, V]) ResetStats() {
	c.hits.Store(0)
	c.misses.Store(0)
	c.evictions.Store(0)
}

// pushFront links a new node as most recently used. Caller holds mu.
func (c *LRU[K, V]) pushFront(node *lruNode[K, V]) {
	node.prev = nil
	node.next = c.head
	if c.head != nil {
		c.head.prev = node
	}
	c.head = node
	if c.tail == nil {
		c.tail = node
	}
}

// unlink removes a node from the list. Caller holds mu.
func (c *LRU[K, V]) unlink(node *lruNode[K, V]) {
	if node.prev != nil {
		node.prev.next = node.next
	} else {
		c.head = node.next
	}
	if node.next != nil {
		node.next.prev = node.prev
	} else {
		c.tail = node.prev
	}
	node.prev = nil
	node.next = nil
}

// moveToFront marks a node most recently used. Caller holds mu.
func (c *LRU[K, V]) moveToFront(node *lruNode[K, V]) {
	if c.head == node {
		return
	}
	c.unlink(node)
	c.pushFront(node)
}

// evictOldest removes the least recently used entry. Caller holds mu.
func (c *LRU[K, V]) evictOldest() {
	oldest := c.tail
	if oldest == nil {
		return
	}
	c.unlink(oldest)
	delete(c.entries, oldest.key)
	c.evictions.Add(1)
}
