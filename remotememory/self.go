// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package remotememory // import "github.com/modhook/modhook/remotememory"

import (
	"errors"
	"unsafe"
)

var errNullRead = errors.New("read from null address")

// SelfMemory reads the address space of the current process directly. It is
// what the native module uses once loaded into the hooked executable; callers
// must only pass addresses inside mapped image ranges.
type SelfMemory struct{}

func (SelfMemory) ReadAt(p []byte, off int64) (int, error) {
	if off == 0 {
		return 0, errNullRead
	}
	if len(p) == 0 {
		return 0, nil
	}
	//nolint:govet
	src := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(off))), len(p))
	return copy(p, src), nil
}

// NewSelfMemory returns a RemoteMemory reading the current process.
func NewSelfMemory() RemoteMemory {
	return RemoteMemory{ReaderAt: SelfMemory{}}
}
