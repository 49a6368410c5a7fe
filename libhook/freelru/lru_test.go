// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package freelru

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modhook/modhook/libhook/hash"
)

func hashUint64(k uint64) uint32 {
	return uint32(hash.Uint64(k))
}

func TestGetOrCompute(t *testing.T) {
	cache, err := New[uint64, uint64](64, hashUint64)
	require.NoError(t, err)

	calls := 0
	compute := func() (uint64, bool) {
		calls++
		return 42, true
	}

	v, ok := cache.GetOrCompute(1, compute)
	assert.True(t, ok)
	assert.Equal(t, uint64(42), v)
	v, ok = cache.GetOrCompute(1, compute)
	assert.True(t, ok)
	assert.Equal(t, uint64(42), v)
	assert.Equal(t, 1, calls)

	_, ok = cache.GetOrCompute(2, func() (uint64, bool) { return 0, false })
	assert.False(t, ok)
	assert.Equal(t, 1, cache.Len())

	stats := cache.GetAndResetStatistics()
	assert.Equal(t, Statistics{Hit: 1, Miss: 2, Added: 1}, stats)
	assert.Equal(t, Statistics{}, cache.GetAndResetStatistics())
}

func TestPurge(t *testing.T) {
	cache, err := New[uint64, string](64, hashUint64)
	require.NoError(t, err)

	cache.Add(1, "a")
	cache.Add(2, "b")
	cache.Purge()

	_, ok := cache.Get(1)
	assert.False(t, ok)
	stats := cache.GetAndResetStatistics()
	assert.Equal(t, uint64(2), stats.Added)
	assert.Equal(t, uint64(2), stats.Deleted)
}
