// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package rtti

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modhook/modhook/image"
	"github.com/modhook/modhook/libhook"
	"github.com/modhook/modhook/remotememory"
)

const testBase libhook.Address = 0x140000000

// syntheticImage lays out one complete object locator at 0x200 whose type
// descriptor at 0x400 names class Foo, with the sub-object offset 0x10.
func syntheticImage() ([]byte, *image.Module) {
	data := make([]byte, 0x1000)
	binary.LittleEndian.PutUint32(data[0x200:], 1)
	binary.LittleEndian.PutUint32(data[0x204:], 0x10)
	binary.LittleEndian.PutUint32(data[0x20c:], 0x400)
	copy(data[0x410:], ".?AVFoo@@\x00")

	// A descriptor for a struct, which is not a class.
	binary.LittleEndian.PutUint32(data[0x500:], 1)
	binary.LittleEndian.PutUint32(data[0x50c:], 0x600)
	copy(data[0x610:], ".?AUBar@@\x00")

	module := &image.Module{
		Path: "synthetic.exe",
		Base: testBase,
		Size: uint64(len(data)),
		Sections: []image.Section{
			{Name: ".text", VirtualAddress: 0x100, VirtualSize: 0xf00},
		},
	}
	return data, module
}

func putPtr(data []byte, off int, addr libhook.Address) {
	binary.LittleEndian.PutUint64(data[off:], uint64(addr))
}

func TestExtract(t *testing.T) {
	data, module := syntheticImage()
	putPtr(data, 0x300, testBase+0x200)
	putPtr(data, 0x700, testBase+0x500)
	// Pointers before the first section are ignored.
	putPtr(data, 0x40, testBase+0x200)

	table, err := Extract(remotememory.NewImageMemory(testBase, data), module)
	require.NoError(t, err)
	assert.Equal(t, Table{{Name: "?AVFoo@@", Offset: 0x10}: 0x308}, table)

	v := NewVtables(testBase, table)
	assert.Equal(t, testBase+0x308, v.Lookup("?AVFoo@@", 0x10))
	assert.Zero(t, v.Lookup("?AVFoo@@", 0))
	assert.Zero(t, v.Lookup("?AVMissing@@", 0x10))
	assert.Equal(t, 1, v.Len())
}

func TestExtractDuplicateLastWins(t *testing.T) {
	data, module := syntheticImage()
	putPtr(data, 0x300, testBase+0x200)
	putPtr(data, 0x310, testBase+0x200)

	table, err := Extract(remotememory.NewImageMemory(testBase, data), module)
	require.NoError(t, err)
	assert.Equal(t, Table{{Name: "?AVFoo@@", Offset: 0x10}: 0x318}, table)
}

func TestExtractTypeDescriptorOutsideImage(t *testing.T) {
	data, module := syntheticImage()
	binary.LittleEndian.PutUint32(data[0x20c:], 0x10000)
	putPtr(data, 0x300, testBase+0x200)

	table, err := Extract(remotememory.NewImageMemory(testBase, data), module)
	require.NoError(t, err)
	assert.Empty(t, table)
}

func TestTableKeys(t *testing.T) {
	table := Table{
		{Name: "?AVB@@", Offset: 0}: 1,
		{Name: "?AVA@@", Offset: 8}: 2,
		{Name: "?AVA@@", Offset: 0}: 3,
	}
	assert.Equal(t, []Key{
		{Name: "?AVA@@", Offset: 0},
		{Name: "?AVA@@", Offset: 8},
		{Name: "?AVB@@", Offset: 0},
	}, table.Keys())
}

func TestStore(t *testing.T) {
	cachePath := filepath.Join(t.TempDir(), CacheFileName)
	scans := 0
	want := Table{{Name: "?AVFoo@@", Offset: 0}: 0x1234}
	scan := func() (Table, error) {
		scans++
		return want, nil
	}

	got, err := NewStore(cachePath).Tables(0xabc, scan)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, 1, scans)

	got, err = NewStore(cachePath).Tables(0xabc, scan)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, 1, scans)

	// Another build of the executable gets its own entry.
	_, err = NewStore(cachePath).Tables(0xdef, scan)
	require.NoError(t, err)
	assert.Equal(t, 2, scans)
	_, err = NewStore(cachePath).Tables(0xabc, scan)
	require.NoError(t, err)
	assert.Equal(t, 2, scans)
}

func TestStoreCorruptCacheRescans(t *testing.T) {
	cachePath := filepath.Join(t.TempDir(), CacheFileName)
	require.NoError(t, os.WriteFile(cachePath, []byte("MHKA garbage"), 0o644))

	scans := 0
	scan := func() (Table, error) {
		scans++
		return Table{}, nil
	}
	_, err := NewStore(cachePath).Tables(1, scan)
	require.NoError(t, err)
	_, err = NewStore(cachePath).Tables(1, scan)
	require.NoError(t, err)
	assert.Equal(t, 1, scans)
}

func TestStoreScanError(t *testing.T) {
	cachePath := filepath.Join(t.TempDir(), CacheFileName)
	_, err := NewStore(cachePath).Tables(1, func() (Table, error) {
		return nil, os.ErrPermission
	})
	require.ErrorIs(t, err, os.ErrPermission)
	_, err = os.Stat(cachePath)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
