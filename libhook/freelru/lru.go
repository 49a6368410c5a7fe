// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package freelru wraps go-freelru's synced LRU with hit/miss statistics.
// Resolution entry points can be called from any host thread once hooks are
// live, so only the synced variant is exposed.
package freelru // import "github.com/modhook/modhook/libhook/freelru"

import (
	"sync/atomic"

	lru "github.com/elastic/go-freelru"
)

// LRU is a go-freelru.SyncedLRU with statistics embedded.
type LRU[K comparable, V any] struct {
	lru *lru.SyncedLRU[K, V]

	hit     atomic.Uint64
	miss    atomic.Uint64
	added   atomic.Uint64
	deleted atomic.Uint64
}

type Statistics struct {
	// Number of times for a hit of a cache entry.
	Hit uint64
	// Number of times for a miss of a cache entry.
	Miss uint64
	// Number of elements that were added to the cache.
	Added uint64
	// Number of elements that were deleted from the cache.
	Deleted uint64
}

func New[K comparable, V any](capacity uint32, hash lru.HashKeyCallback[K]) (*LRU[K, V], error) {
	cache, err := lru.NewSynced[K, V](capacity, hash)
	if err != nil {
		return nil, err
	}
	return &LRU[K, V]{lru: cache}, nil
}

func (c *LRU[K, V]) Add(key K, value V) (evicted bool) {
	evicted = c.lru.Add(key, value)
	if evicted {
		c.deleted.Add(1)
	}
	c.added.Add(1)
	return evicted
}

func (c *LRU[K, V]) Get(key K) (value V, ok bool) {
	value, ok = c.lru.Get(key)
	if ok {
		c.hit.Add(1)
	} else {
		c.miss.Add(1)
	}
	return value, ok
}

// GetOrCompute returns the cached value for key, or calls compute and caches
// its result when ok is true. Negative results are not cached.
func (c *LRU[K, V]) GetOrCompute(key K, compute func() (V, bool)) (V, bool) {
	if v, ok := c.Get(key); ok {
		return v, true
	}
	v, ok := compute()
	if ok {
		c.Add(key, v)
	}
	return v, ok
}

func (c *LRU[K, V]) Len() int {
	return c.lru.Len()
}

func (c *LRU[K, V]) Purge() {
	c.deleted.Add(uint64(c.lru.Len()))
	c.lru.Purge()
}

// GetAndResetStatistics returns the internal statistics for this LRU and resets all values to 0.
func (c *LRU[K, V]) GetAndResetStatistics() Statistics {
	return Statistics{
		Hit:     c.hit.Swap(0),
		Miss:    c.miss.Swap(0),
		Added:   c.added.Swap(0),
		Deleted: c.deleted.Swap(0),
	}
}
