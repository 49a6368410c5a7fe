//go:build windows

// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package hostrt // import "github.com/modhook/modhook/hostrt"

import (
	"runtime"
	"syscall"
	"unsafe"
)

// CallOriginal calls the native function fn with integer arguments and
// returns the integer result register.
func CallOriginal(fn uintptr, args ...uintptr) uintptr {
	r, _, _ := syscall.SyscallN(fn, args...)
	return r
}

// InvokeCallback hands addr to a host callback taking one pointer sized
// argument.
func InvokeCallback(cb, addr uintptr) {
	_, _, _ = syscall.SyscallN(cb, addr)
}

// callLogger passes msg to the host logger callback.
func callLogger(fn uintptr, msg string, color uint32) {
	if msg == "" {
		return
	}
	_, _, _ = syscall.SyscallN(fn, uintptr(unsafe.Pointer(unsafe.StringData(msg))),
		uintptr(len(msg)), uintptr(color))
	runtime.KeepAlive(msg)
}
