// Package lru provides the bounded least-recently-used map backing the hash cache.
package lru

import (
	"fmt"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// EvictFunc is called with every entry pushed out of the map
type EvictFunc[K comparable, V any] func(key K, value V)

// Map is a fixed-capacity map with least-recently-used eviction.
// Only Get and Insert count as uses; Contains and Peek leave recency untouched.
// Map is not safe for concurrent use.
type Map[K comparable, V any] struct {
	lru      *simplelru.LRU[K, V]
	capacity int
}

// New creates a map holding at most capacity entries
func New[K comparable, V any](capacity int, onEvict EvictFunc[K, V]) (*Map[K, V], error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("lru capacity must be positive, got %d", capacity)
	}

	var cb simplelru.EvictCallback[K, V]
	if onEvict != nil {
		cb = simplelru.EvictCallback[K, V](onEvict)
	}

	l, err := simplelru.NewLRU[K, V](capacity, cb)
	if err != nil {
		return nil, fmt.Errorf("failed to create lru: %w", err)
	}
	return &Map[K, V]{lru: l, capacity: capacity}, nil
}

// Contains reports whether key is present without touching its recency
func (m *Map[K, V]) Contains(key K) bool {
	return m.lru.Contains(key)
}

// Get returns the value for key and marks it most recently used
func (m *Map[K, V]) Get(key K) (V, bool) {
	return m.lru.Get(key)
}

// Peek returns the value for key without touching its recency
func (m *Map[K, V]) Peek(key K) (V, bool) {
	return m.lru.Peek(key)
}

// Insert stores value under key and marks it most recently used.
// At capacity the least recently used entry is evicted; the return value reports it.
func (m *Map[K, V]) Insert(key K, value V) bool {
	return m.lru.Add(key, value)
}

// Len returns the number of entries
func (m *Map[K, V]) Len() int {
	return m.lru.Len()
}

// Cap returns the capacity fixed at construction
func (m *Map[K, V]) Cap() int {
	return m.capacity
}

// Keys returns the keys from least to most recently used
func (m *Map[K, V]) Keys() []K {
	return m.lru.Keys()
}
