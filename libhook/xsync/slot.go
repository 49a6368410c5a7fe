// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package xsync // import "github.com/modhook/modhook/libhook/xsync"

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrAlreadySet is returned when a value is published into a Slot twice.
var ErrAlreadySet = errors.New("slot already set")

// Slot is a single-assignment cell. Exactly one Set succeeds; the value is
// then readable from any goroutine without locking.
//
// The zero value is an empty slot.
type Slot[T any] struct {
	done atomic.Bool
	mu   sync.Mutex
	data T
}

// Set publishes v. Any call after the first successful one returns
// ErrAlreadySet and leaves the stored value untouched.
func (s *Slot[T]) Set(v T) error {
	if s.done.Load() {
		return ErrAlreadySet
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done.Load() {
		return ErrAlreadySet
	}
	s.data = v
	s.done.Store(true)
	return nil
}

// Get returns the published value and whether one exists.
func (s *Slot[T]) Get() (T, bool) {
	if !s.done.Load() {
		var zero T
		return zero, false
	}
	return s.data, true
}

// MustGet returns the published value and panics if nothing was published.
// Hook bodies use it: they can only run after the host installed the hook,
// which happens after the setter ran.
func (s *Slot[T]) MustGet() T {
	v, ok := s.Get()
	if !ok {
		panic("xsync: read of unset slot")
	}
	return v
}

// GetOrInit returns the published value, running init to produce it when the
// slot is still empty. A failing init leaves the slot empty so a later call
// can retry; only one init runs at a time.
func (s *Slot[T]) GetOrInit(init func() (T, error)) (T, error) {
	if s.done.Load() {
		return s.data, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Contending call might have initialized while we waited for the lock.
	if s.done.Load() {
		return s.data, nil
	}

	v, err := init()
	if err != nil {
		var zero T
		return zero, err
	}
	s.data = v
	s.done.Store(true)
	return v, nil
}

// IsSet reports whether a value was published.
func (s *Slot[T]) IsSet() bool {
	return s.done.Load()
}
