// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package image

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modhook/modhook/libhook"
	"github.com/modhook/modhook/remotememory"
)

// syntheticHeaders builds the header page of a PE32+ image with the given
// sections.
func syntheticHeaders(sizeOfImage uint32, sections []Section) []byte {
	const lfanew = 0x80
	const optionalSize = 0xf0
	buf := make([]byte, 0x400)
	buf[0], buf[1] = 'M', 'Z'
	binary.LittleEndian.PutUint32(buf[dosLfanewOffset:], lfanew)
	binary.LittleEndian.PutUint32(buf[lfanew:], peSignature)
	binary.LittleEndian.PutUint16(buf[lfanew+numberOfSectionsOff:], uint16(len(sections)))
	binary.LittleEndian.PutUint16(buf[lfanew+sizeOfOptionalHdrOff:], optionalSize)
	opt := lfanew + optionalHeaderOffset
	binary.LittleEndian.PutUint16(buf[opt:], optionalMagicPE32Plus)
	binary.LittleEndian.PutUint32(buf[opt+sizeOfImageOff:], sizeOfImage)
	table := opt + optionalSize
	for i, s := range sections {
		hdr := buf[table+i*sectionHeaderSize:]
		copy(hdr[:8], s.Name)
		binary.LittleEndian.PutUint32(hdr[8:], s.VirtualSize)
		binary.LittleEndian.PutUint32(hdr[12:], s.VirtualAddress)
	}
	return buf
}

func TestParseHeaders(t *testing.T) {
	sections := []Section{
		{Name: ".text", VirtualAddress: 0x1000, VirtualSize: 0x2345},
		{Name: ".rdata", VirtualAddress: 0x4000, VirtualSize: 0x800},
	}
	rm := remotememory.NewImageMemory(0x140000000, syntheticHeaders(0x5000, sections))

	mod, err := ParseHeaders(rm, 0x140000000)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x5000), mod.Size)
	assert.Equal(t, sections, mod.Sections)
	assert.Equal(t, libhook.Address(0x140001000), mod.FirstSection())
	assert.True(t, mod.Contains(0x140004fff))
	assert.False(t, mod.Contains(0x140005000))
}

func TestParseHeadersRejectsGarbage(t *testing.T) {
	rm := remotememory.NewImageMemory(0x1000, make([]byte, 0x400))
	_, err := ParseHeaders(rm, 0x1000)
	assert.ErrorIs(t, err, errNotPE)
}

func TestFirstSectionWithoutTable(t *testing.T) {
	mod := &Module{Base: 0x400000, Size: 0x1000}
	assert.Equal(t, libhook.Address(0x400000), mod.FirstSection())
}

func TestModuleFromMappings(t *testing.T) {
	maps := `55d7b8a00000-55d7b8a02000 r--p 00000000 fd:01 1068432 /opt/game/bin/game.exe
55d7b8a02000-55d7b8a10000 r-xp 00002000 fd:01 1068432 /opt/game/bin/game.exe
55d7b8a10000-55d7b8a12000 rw-p 00010000 fd:01 1068432 /opt/game/bin/game.exe
7f0c5a000000-7f0c5a021000 rw-p 00000000 00:00 0
7f0c5a200000-7f0c5a228000 r--p 00000000 fd:01 2 /usr/lib/libc.so.6
garbage line
7ffd1b1c2000-7ffd1b1c4000 r-xp 00000000 00:00 0 [vdso]
`
	mappings, numParseErrors, err := parseMappings(strings.NewReader(maps))
	require.NoError(t, err)
	assert.Equal(t, uint32(1), numParseErrors)
	assert.Len(t, mappings, 6)

	mod, err := moduleFromMappings(mappings, "/opt/game/bin/game.exe")
	require.NoError(t, err)
	assert.Equal(t, libhook.Address(0x55d7b8a00000), mod.Base)
	assert.Equal(t, uint64(0x12000), mod.Size)

	_, err = moduleFromMappings(mappings, "/nope")
	assert.Error(t, err)
}

func TestLayoutSection(t *testing.T) {
	raw := []byte{0, 0, 0, 0, 0xaa, 0xbb, 0xcc, 0xdd}
	dst := make([]byte, 16)

	require.NoError(t, layoutSection(dst, raw, 8, 2, 4, 4))
	assert.Equal(t, []byte{0xaa, 0xbb, 0, 0}, dst[8:12])

	// Truncated raw data maps what is available.
	dst = make([]byte, 16)
	require.NoError(t, layoutSection(dst, raw, 0, 0, 6, 8))
	assert.Equal(t, []byte{0xcc, 0xdd, 0}, dst[:3])

	assert.Error(t, layoutSection(dst, raw, 14, 0, 0, 8))
}

func TestSectionName(t *testing.T) {
	assert.Equal(t, ".text", sectionName([8]uint8{'.', 't', 'e', 'x', 't'}))
	assert.Equal(t, ".textbss", sectionName([8]uint8{'.', 't', 'e', 'x', 't', 'b', 's', 's'}))
}

func TestOpenPERejectsNonPE(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not.exe")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\necho hello world\n"), 0o644))
	_, err := OpenPE(path)
	assert.Error(t, err)
}
