// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package xsync_test

import (
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modhook/modhook/libhook/xsync"
)

func TestSlotSetOnce(t *testing.T) {
	var slot xsync.Slot[uintptr]

	_, ok := slot.Get()
	assert.False(t, ok)
	assert.False(t, slot.IsSet())
	assert.Panics(t, func() { slot.MustGet() })

	require.NoError(t, slot.Set(0x1400))
	assert.ErrorIs(t, slot.Set(0x2800), xsync.ErrAlreadySet)

	v, ok := slot.Get()
	assert.True(t, ok)
	assert.Equal(t, uintptr(0x1400), v)
	assert.Equal(t, uintptr(0x1400), slot.MustGet())
}

func TestSlotConcurrentSet(t *testing.T) {
	var slot xsync.Slot[int]
	var winners atomic.Uint32
	wg := sync.WaitGroup{}

	for i := range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if slot.Set(i) == nil {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, uint32(1), winners.Load())
	assert.True(t, slot.IsSet())
}

func TestSlotGetOrInit(t *testing.T) {
	attempt := 0 // intentionally not atomic
	slot := xsync.Slot[string]{}
	someError := errors.New("oh no")
	numOk := atomic.Uint32{}
	wg := sync.WaitGroup{}

	for range 32 {
		wg.Add(1)

		go func() {
			val, err := slot.GetOrInit(func() (string, error) {
				if attempt == 3 {
					time.Sleep(25 * time.Millisecond)
					return strconv.Itoa(attempt), nil
				}

				attempt++
				return "", someError
			})

			switch err {
			case someError:
				assert.Empty(t, val)
			case nil:
				numOk.Add(1)
				assert.Equal(t, "3", val)
			default:
				assert.Fail(t, "unreachable")
			}

			wg.Done()
		}()
	}

	wg.Wait()
	assert.Equal(t, "3", slot.MustGet())
	assert.Equal(t, uint32(32-3), numOk.Load())
	assert.ErrorIs(t, slot.Set("4"), xsync.ErrAlreadySet)
}
