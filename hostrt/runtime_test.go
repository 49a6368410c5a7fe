// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package hostrt

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modhook/modhook/identity"
	"github.com/modhook/modhook/image"
	"github.com/modhook/modhook/libhook"
	"github.com/modhook/modhook/remotememory"
	"github.com/modhook/modhook/rtti"
	"github.com/modhook/modhook/thunk"
)

const testBase libhook.Address = 0x140000000

// testImage holds a class Foo dispatch table at 0x308, a near jump thunk at
// 0x800, a RIP-relative load at 0xa00 and a jump at 0xc00 to readable memory
// past the image end.
func testImage(t *testing.T) ([]byte, *image.Module) {
	data := make([]byte, 0x1000)
	binary.LittleEndian.PutUint32(data[0x200:], 1)
	binary.LittleEndian.PutUint32(data[0x204:], 0x10)
	binary.LittleEndian.PutUint32(data[0x20c:], 0x400)
	copy(data[0x410:], ".?AVFoo@@\x00")
	binary.LittleEndian.PutUint64(data[0x300:], uint64(testBase+0x200))

	data[0x800] = 0xe9
	binary.LittleEndian.PutUint32(data[0x801:], 0x900-0x805)
	data[0x900] = 0x90

	copy(data[0xa00:], []byte{0x48, 0x8b, 0x05})
	binary.LittleEndian.PutUint32(data[0xa03:], 0xb00-0xa07)

	data[0xc00] = 0xe9
	binary.LittleEndian.PutUint32(data[0xc01:], 0xf00-0xc05)

	exe := filepath.Join(t.TempDir(), "game.exe")
	require.NoError(t, os.WriteFile(exe, []byte("MZ game executable"), 0o644))
	return data, &image.Module{
		Path: exe,
		Base: testBase,
		Size: 0xe00,
		Sections: []image.Section{
			{Name: ".text", VirtualAddress: 0x100, VirtualSize: 0xd00},
		},
	}
}

func newTestRuntime(t *testing.T, data []byte, mod *image.Module, dir string) *Runtime {
	t.Helper()
	rt, err := New(Options{
		Module:  mod,
		Memory:  remotememory.NewImageMemory(testBase, data),
		DataDir: dir,
	})
	require.NoError(t, err)
	return rt
}

func TestRuntimeEntryPoints(t *testing.T) {
	data, mod := testImage(t)
	dir := t.TempDir()
	rt := newTestRuntime(t, data, mod, dir)

	hash, err := identity.HashFile(mod.Path)
	require.NoError(t, err)
	assert.Equal(t, hash, rt.ExecutableHash())
	assert.Same(t, mod, rt.Module())

	assert.Equal(t, uintptr(testBase+0x10), rt.Address(0x10))
	assert.Equal(t, uintptr(testBase+0x900), rt.AddressMayThunk(0x800))
	assert.Equal(t, uintptr(testBase+0x900), rt.AddressMayThunkAbsolute(uintptr(testBase+0x800)))
	assert.Equal(t, uintptr(testBase+0xb00), rt.IndirectAddress(0xa00, thunk.Long))
	assert.Equal(t, uintptr(testBase+0xb00), rt.IndirectAddressAbsolute(uintptr(testBase+0xa00), thunk.Long))
	assert.Zero(t, rt.IndirectAddress(0xa00, thunk.Width(9)))
	assert.Zero(t, rt.AddressMayThunkAbsolute(0))

	// Scanner hits must not leave the executable.
	assert.Equal(t, uintptr(testBase+0x900), rt.AddressFromScan(0x800))
	assert.Equal(t, uintptr(testBase+0xf00), rt.AddressMayThunk(0xc00))
	assert.Zero(t, rt.AddressFromScan(0xc00))
	assert.Zero(t, rt.AddressFromScan(0xe00))

	assert.Equal(t, uintptr(testBase+0x308), rt.VtableRTTI("?AVFoo@@", 0x10))
	assert.Zero(t, rt.VtableRTTI("?AVFoo@@", 0))
	assert.Zero(t, rt.VtableRTTI("?AVBar@@", 0x10))

	assert.FileExists(t, filepath.Join(dir, identity.CacheFileName))
	assert.FileExists(t, filepath.Join(dir, rtti.CacheFileName))
	rt.LogStatistics()
}

func TestRuntimeUsesCachedTables(t *testing.T) {
	data, mod := testImage(t)
	dir := t.TempDir()
	newTestRuntime(t, data, mod, dir)

	// The tables of an unchanged executable come from the cache, not from
	// scanning memory again.
	clear(data[0x200:0x420])
	rt := newTestRuntime(t, data, mod, dir)
	assert.Equal(t, uintptr(testBase+0x308), rt.VtableRTTI("?AVFoo@@", 0x10))
}

func TestRuntimeMissingExecutable(t *testing.T) {
	data, mod := testImage(t)
	mod.Path = filepath.Join(t.TempDir(), "missing.exe")
	_, err := New(Options{
		Module:  mod,
		Memory:  remotememory.NewImageMemory(testBase, data),
		DataDir: t.TempDir(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to identify")
}

func TestDataDir(t *testing.T) {
	t.Setenv(DataDirEnv, "/tmp/modhook-test")
	dir, err := DataDir()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/modhook-test", dir)
}
