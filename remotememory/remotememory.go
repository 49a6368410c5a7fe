// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// remotememory provides access to the memory space of the hooked executable.
// The ReaderAt interface is used for the basic access, and various convenience
// functions are provided to help reading specific data types. Backends exist
// for the current process, for another process and for a file-backed image
// laid out at its virtual addresses.
package remotememory // import "github.com/modhook/modhook/remotememory"

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/modhook/modhook/libhook"
)

// RemoteMemory implements a set of convenience functions to access the remote memory
type RemoteMemory struct {
	io.ReaderAt
	// Bias is subtracted from pointers read out of memory, so images loaded
	// at a different base can be read with their preferred addresses.
	Bias libhook.Address
}

// Valid determines if this RemoteMemory instance contains a valid reference to target memory
func (rm RemoteMemory) Valid() bool {
	return rm.ReaderAt != nil
}

// Read fills slice p[] with data from remote memory at address addr
func (rm RemoteMemory) Read(addr libhook.Address, p []byte) error {
	_, err := rm.ReadAt(p, int64(addr))
	return err
}

// Bytes reads n bytes at addr into a new slice.
func (rm RemoteMemory) Bytes(addr libhook.Address, n int) ([]byte, error) {
	buf := make([]byte, n)
	if err := rm.Read(addr, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Ptr reads a native pointer from remote memory
func (rm RemoteMemory) Ptr(addr libhook.Address) libhook.Address {
	v, err := rm.PtrChecked(addr)
	if err != nil {
		return 0
	}
	return v
}

// PtrChecked reads a native pointer from remote memory, reporting read failures.
func (rm RemoteMemory) PtrChecked(addr libhook.Address) (libhook.Address, error) {
	var buf [8]byte
	if err := rm.Read(addr, buf[:]); err != nil {
		return 0, err
	}
	return libhook.Address(binary.LittleEndian.Uint64(buf[:])) - rm.Bias, nil
}

// Uint8 reads an 8-bit unsigned integer from remote memory
func (rm RemoteMemory) Uint8(addr libhook.Address) uint8 {
	var buf [1]byte
	if rm.Read(addr, buf[:]) != nil {
		return 0
	}
	return buf[0]
}

// Uint8Checked reads an 8-bit unsigned integer from remote memory
func (rm RemoteMemory) Uint8Checked(addr libhook.Address) (uint8, error) {
	var buf [1]byte
	if err := rm.Read(addr, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// Uint16Checked reads a 16-bit unsigned integer from remote memory
func (rm RemoteMemory) Uint16Checked(addr libhook.Address) (uint16, error) {
	var buf [2]byte
	if err := rm.Read(addr, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(buf[:]), nil
}

// Uint32 reads a 32-bit unsigned integer from remote memory
func (rm RemoteMemory) Uint32(addr libhook.Address) uint32 {
	v, err := rm.Uint32Checked(addr)
	if err != nil {
		return 0
	}
	return v
}

// Uint32Checked reads a 32-bit unsigned integer from remote memory
func (rm RemoteMemory) Uint32Checked(addr libhook.Address) (uint32, error) {
	var buf [4]byte
	if err := rm.Read(addr, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

// Int32Checked reads a 32-bit signed integer from remote memory
func (rm RemoteMemory) Int32Checked(addr libhook.Address) (int32, error) {
	v, err := rm.Uint32Checked(addr)
	return int32(v), err
}

// Uint64 reads a 64-bit unsigned integer from remote memory
func (rm RemoteMemory) Uint64(addr libhook.Address) uint64 {
	var buf [8]byte
	if rm.Read(addr, buf[:]) != nil {
		return 0
	}
	return binary.LittleEndian.Uint64(buf[:])
}

// String reads a zero terminated string from remote memory
func (rm RemoteMemory) String(addr libhook.Address) string {
	buf := make([]byte, 1024)
	n, err := rm.ReadAt(buf, int64(addr))
	if n == 0 || (err != nil && err != io.EOF) {
		return ""
	}
	buf = buf[:n]
	if zeroIdx := bytes.IndexByte(buf, 0); zeroIdx >= 0 {
		return string(buf[:zeroIdx])
	}
	// Not a zero terminated string within the first KiB. Decorated type
	// names are far shorter than that.
	return ""
}

// ImageMemory serves reads from a byte slice that holds an image laid out
// at its virtual addresses, starting at Base.
type ImageMemory struct {
	Base libhook.Address
	Data []byte
}

// ReadAt copies image bytes at virtual address off into p. Reads crossing
// the end of the image are short and return io.EOF.
func (im ImageMemory) ReadAt(p []byte, off int64) (int, error) {
	if off < int64(im.Base) || off >= int64(im.Base)+int64(len(im.Data)) {
		return 0, fmt.Errorf("address 0x%x outside image [0x%x, 0x%x)",
			off, im.Base, int64(im.Base)+int64(len(im.Data)))
	}
	n := copy(p, im.Data[off-int64(im.Base):])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// NewImageMemory returns a RemoteMemory reading from an in-memory image.
func NewImageMemory(base libhook.Address, data []byte) RemoteMemory {
	return RemoteMemory{ReaderAt: ImageMemory{Base: base, Data: data}}
}

// ProcessVirtualMemory implements RemoteMemory by using process_vm_readv syscalls
// to read the remote memory.
type ProcessVirtualMemory struct {
	pid libhook.PID
}

// NewProcessVirtualMemory returns ProcessVirtualMemory implementation of RemoteMemory.
func NewProcessVirtualMemory(pid libhook.PID) RemoteMemory {
	return RemoteMemory{ReaderAt: ProcessVirtualMemory{pid}}
}

// Compile-time interface checks
var (
	_ io.ReaderAt = ImageMemory{}
	_ io.ReaderAt = ProcessVirtualMemory{}
	_ io.ReaderAt = SelfMemory{}
)
