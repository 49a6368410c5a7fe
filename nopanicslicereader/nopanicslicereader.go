// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// nopanicslicereader reads little-endian values out of an executable image
// held in a byte slice. Zeroes are returned on out of bounds access instead
// of panic, so scanners can probe arbitrary candidate offsets.
package nopanicslicereader // import "github.com/modhook/modhook/nopanicslicereader"

import (
	"bytes"
	"encoding/binary"

	"github.com/modhook/modhook/libhook"
)

// Uint8 reads one 8-bit unsigned integer from given byte slice offset
func Uint8(b []byte, offs uint) uint8 {
	if offs+1 > uint(len(b)) {
		return 0
	}
	return b[offs]
}

// Int8 reads one 8-bit signed integer from given byte slice offset
func Int8(b []byte, offs uint) int8 {
	return int8(Uint8(b, offs))
}

// Uint32 reads one 32-bit unsigned integer from given byte slice offset
func Uint32(b []byte, offs uint) uint32 {
	if offs+4 > uint(len(b)) {
		return 0
	}
	return binary.LittleEndian.Uint32(b[offs:])
}

// Int32 reads one 32-bit signed integer from given byte slice offset
func Int32(b []byte, offs uint) int32 {
	return int32(Uint32(b, offs))
}

// Uint64 reads one 64-bit unsigned integer from given byte slice offset
func Uint64(b []byte, offs uint) uint64 {
	if offs+8 > uint(len(b)) {
		return 0
	}
	return binary.LittleEndian.Uint64(b[offs:])
}

// Ptr reads one 64-bit pointer from given byte slice offset
func Ptr(b []byte, offs uint) libhook.Address {
	return libhook.Address(Uint64(b, offs))
}

// HasPrefix reports whether the bytes at offs start with prefix.
func HasPrefix(b []byte, offs uint, prefix []byte) bool {
	if offs+uint(len(prefix)) > uint(len(b)) {
		return false
	}
	return bytes.Equal(b[offs:offs+uint(len(prefix))], prefix)
}

// CString returns the NUL-terminated string at offs, reading at most maxLen
// bytes. The empty string is returned when no terminator is found in range.
func CString(b []byte, offs uint, maxLen int) string {
	if offs >= uint(len(b)) {
		return ""
	}
	window := b[offs:]
	if len(window) > maxLen {
		window = window[:maxLen]
	}
	end := bytes.IndexByte(window, 0)
	if end < 0 {
		return ""
	}
	return string(window[:end])
}
