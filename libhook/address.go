// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package libhook holds small value types shared by the resolver, the
// dispatch table extractor and the runtime entry points.
package libhook // import "github.com/modhook/modhook/libhook"

import (
	"fmt"

	"github.com/modhook/modhook/libhook/hash"
)

// Address represents an address, or offset within a process
type Address uintptr

// Hash32 returns a 32 bits hash of the input.
// It's main purpose is to be used as key for caching.
func (adr Address) Hash32() uint32 {
	return uint32(adr.Hash())
}

// Hash returns a 64 bits hash of the input.
func (adr Address) Hash() uint64 {
	return hash.Uint64(uint64(adr))
}

// Add returns the address displaced by a signed offset.
func (adr Address) Add(disp int64) Address {
	return Address(int64(adr) + disp)
}

func (adr Address) String() string {
	return fmt.Sprintf("0x%x", uintptr(adr))
}

// Range is a half-open address interval [Start, End).
type Range struct {
	Start Address
	End   Address
}

// Contains reports whether addr lies within the range.
func (r Range) Contains(addr Address) bool {
	return addr >= r.Start && addr < r.End
}

// Size returns the number of bytes covered by the range.
func (r Range) Size() uint64 {
	if r.End <= r.Start {
		return 0
	}
	return uint64(r.End - r.Start)
}

// PID represents a Unix Process ID (pid_t).
type PID uint32
