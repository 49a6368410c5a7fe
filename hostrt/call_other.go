//go:build !windows

// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package hostrt // import "github.com/modhook/modhook/hostrt"

import "errors"

var errUnsupported = errors.New("hostrt: native calls are only supported on windows")

// CallOriginal calls the native function fn with integer arguments and
// returns the integer result register.
func CallOriginal(_ uintptr, _ ...uintptr) uintptr {
	panic(errUnsupported)
}

// InvokeCallback hands addr to a host callback taking one pointer sized
// argument.
func InvokeCallback(_, _ uintptr) {
	panic(errUnsupported)
}

func callLogger(_ uintptr, _ string, _ uint32) {
	panic(errUnsupported)
}
