//go:build !linux

// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package remotememory // import "github.com/modhook/modhook/remotememory"

import (
	"fmt"
	"runtime"
)

// ReadAt always fails: attaching to another process is only supported on
// Linux, where the targets run under Wine. The native module reads its own
// process through SelfMemory instead.
func (vm ProcessVirtualMemory) ReadAt(_ []byte, off int64) (int, error) {
	return 0, fmt.Errorf("failed to read PID %d at 0x%x: unsupported os %s",
		vm.pid, off, runtime.GOOS)
}
