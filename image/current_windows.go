//go:build windows

// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package image // import "github.com/modhook/modhook/image"

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/modhook/modhook/libhook"
	"github.com/modhook/modhook/remotememory"
)

// Current returns the geometry of the main executable of this process.
func Current() (*Module, error) {
	var h windows.Handle
	if err := windows.GetModuleHandleEx(0, nil, &h); err != nil {
		return nil, fmt.Errorf("GetModuleHandleEx: %w", err)
	}
	var mi windows.ModuleInfo
	if err := windows.GetModuleInformation(windows.CurrentProcess(), h, &mi,
		uint32(unsafe.Sizeof(mi))); err != nil {
		return nil, fmt.Errorf("GetModuleInformation: %w", err)
	}

	mod, err := ParseHeaders(remotememory.NewSelfMemory(), libhook.Address(mi.BaseOfDll))
	if err != nil {
		return nil, err
	}
	mod.Size = uint64(mi.SizeOfImage)
	if mod.Path, err = os.Executable(); err != nil {
		return nil, err
	}
	return mod, nil
}
