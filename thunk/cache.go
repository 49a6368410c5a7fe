// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package thunk // import "github.com/modhook/modhook/thunk"

import (
	log "github.com/sirupsen/logrus"

	"github.com/modhook/modhook/libhook"
	"github.com/modhook/modhook/libhook/freelru"
	"github.com/modhook/modhook/libhook/hash"
)

// cacheKind distinguishes the memoized entry points sharing one LRU.
type cacheKind uint8

const (
	kindMayThunk cacheKind = iota
	kindFromScan
	kindIndirect
)

type cacheKey struct {
	kind  cacheKind
	width Width
	ofs   uint64
}

// hash32 folds both halves of the combined key into the bucket hash.
func (k cacheKey) hash32() uint32 {
	h := hash.Combine(hash.Uint64(k.ofs), uint64(k.kind)<<8|uint64(k.width))
	return hash.Uint32(uint32(h) ^ uint32(h>>32))
}

// CachingResolver memoizes successful offset resolutions. Several hook
// branches and shared-scan listeners commonly resolve the same offsets, and
// each resolution reads target memory.
type CachingResolver struct {
	*Resolver
	cache *freelru.LRU[cacheKey, libhook.Address]
}

// NewCaching wraps r with an LRU of the given capacity.
func NewCaching(r *Resolver, capacity uint32) (*CachingResolver, error) {
	cache, err := freelru.New[cacheKey, libhook.Address](capacity, cacheKey.hash32)
	if err != nil {
		return nil, err
	}
	return &CachingResolver{Resolver: r, cache: cache}, nil
}

func (c *CachingResolver) MayThunk(ofs uint64) (libhook.Address, bool) {
	return c.cache.GetOrCompute(cacheKey{kind: kindMayThunk, ofs: ofs}, func() (libhook.Address, bool) {
		return c.Resolver.MayThunk(ofs)
	})
}

func (c *CachingResolver) FromScan(ofs uint64) (libhook.Address, bool) {
	return c.cache.GetOrCompute(cacheKey{kind: kindFromScan, ofs: ofs}, func() (libhook.Address, bool) {
		return c.Resolver.FromScan(ofs)
	})
}

func (c *CachingResolver) Indirect(ofs uint64, width Width) (libhook.Address, bool) {
	key := cacheKey{kind: kindIndirect, width: width, ofs: ofs}
	return c.cache.GetOrCompute(key, func() (libhook.Address, bool) {
		return c.Resolver.Indirect(ofs, width)
	})
}

// LogStatistics reports and resets the cache statistics.
func (c *CachingResolver) LogStatistics() {
	stats := c.cache.GetAndResetStatistics()
	log.Debugf("resolver cache: %d hits, %d misses, %d added, %d evicted",
		stats.Hit, stats.Miss, stats.Added, stats.Deleted)
}
