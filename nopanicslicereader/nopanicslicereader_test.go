// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package nopanicslicereader

import (
	"testing"

	"github.com/modhook/modhook/libhook"

	"github.com/stretchr/testify/assert"
)

func TestSliceReader(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0xf8}
	assert.Equal(t, uint8(0xf8), Uint8(data, 7))
	assert.Equal(t, int8(-8), Int8(data, 7))
	assert.Equal(t, int8(0), Int8(data, 8))
	assert.Equal(t, uint32(0x04030201), Uint32(data, 0))
	assert.Equal(t, uint32(0), Uint32(data, 100))
	assert.Equal(t, int32(-133757435), Int32(data, 4))
	assert.Equal(t, uint64(0xf807060504030201), Uint64(data, 0))
	assert.Equal(t, uint64(0), Uint64(data, 1))
	assert.Equal(t, libhook.Address(0xf807060504030201), Ptr(data, 0))
}

func TestHasPrefix(t *testing.T) {
	data := []byte("xx.?AVFoo@@\x00")
	assert.True(t, HasPrefix(data, 2, []byte(".?AV")))
	assert.False(t, HasPrefix(data, 0, []byte(".?AV")))
	assert.False(t, HasPrefix(data, 10, []byte(".?AV")))
}

func TestCString(t *testing.T) {
	data := []byte("abc\x00def")
	assert.Equal(t, "abc", CString(data, 0, 64))
	assert.Equal(t, "bc", CString(data, 1, 64))
	assert.Equal(t, "", CString(data, 4, 64))
	assert.Equal(t, "", CString(data, 0, 2))
	assert.Equal(t, "", CString(data, 100, 64))
}
