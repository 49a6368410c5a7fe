//go:build linux

// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package remotememory // import "github.com/modhook/modhook/remotememory"

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// ReadAt reads with process_vm_readv. Kernels or sandboxes refusing the
// syscall are served from /proc/PID/mem instead.
func (vm ProcessVirtualMemory) ReadAt(p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	localIov := []unix.Iovec{{Base: &p[0], Len: uint64(len(p))}}
	remoteIov := []unix.RemoteIovec{{Base: uintptr(off), Len: len(p)}}
	n, err := unix.ProcessVMReadv(int(vm.pid), localIov, remoteIov, 0)
	if errors.Is(err, unix.ENOSYS) || errors.Is(err, unix.EPERM) {
		return vm.readProcMem(p, off)
	}
	if err != nil {
		return n, fmt.Errorf("failed to read PID %v at 0x%x: %w", vm.pid, off, err)
	}
	if n != len(p) {
		return n, fmt.Errorf("failed to read PID %v at 0x%x: got only %d of %d",
			vm.pid, off, n, len(p))
	}
	return n, nil
}

func (vm ProcessVirtualMemory) readProcMem(p []byte, off int64) (int, error) {
	f, err := os.Open(fmt.Sprintf("/proc/%d/mem", vm.pid))
	if err != nil {
		return 0, fmt.Errorf("failed to read PID %v at 0x%x: %w", vm.pid, off, err)
	}
	defer f.Close()
	n, err := f.ReadAt(p, off)
	if err != nil {
		return n, fmt.Errorf("failed to read PID %v at 0x%x: %w", vm.pid, off, err)
	}
	return n, nil
}
