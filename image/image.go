// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package image describes the mapped executable image that hooks target:
// where it starts, how large it is and where its first section begins.
package image // import "github.com/modhook/modhook/image"

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/modhook/modhook/libhook"
	"github.com/modhook/modhook/remotememory"
)

// Section is one mapped section of the image, relative to the image base.
type Section struct {
	Name           string
	VirtualAddress uint32
	VirtualSize    uint32
}

// Module is the geometry of a loaded executable image.
type Module struct {
	// Path of the backing executable file.
	Path string
	// Base is the address the image is mapped at.
	Base libhook.Address
	// Size is the number of bytes the image spans in memory.
	Size uint64
	// Sections in header order.
	Sections []Section
}

// Range returns [Base, Base+Size).
func (m *Module) Range() libhook.Range {
	return libhook.Range{Start: m.Base, End: m.Base + libhook.Address(m.Size)}
}

// Contains reports whether addr lies within the image.
func (m *Module) Contains(addr libhook.Address) bool {
	return m.Range().Contains(addr)
}

// FirstSection returns the address of the first mapped section, or the image
// base when the section table is unknown.
func (m *Module) FirstSection() libhook.Address {
	if len(m.Sections) == 0 {
		return m.Base
	}
	return m.Base + libhook.Address(m.Sections[0].VirtualAddress)
}

func (m *Module) String() string {
	return fmt.Sprintf("%s [%v, %v)", m.Path, m.Base, m.Base+libhook.Address(m.Size))
}

var errNotPE = errors.New("not a PE image")

// Offsets into the PE headers.
const (
	dosLfanewOffset       = 0x3c
	peSignature           = 0x00004550
	fileHeaderOffset      = 4
	numberOfSectionsOff   = fileHeaderOffset + 2
	sizeOfOptionalHdrOff  = fileHeaderOffset + 16
	optionalHeaderOffset  = fileHeaderOffset + 20
	optionalMagicPE32Plus = 0x20b
	sizeOfImageOff        = 56
	sectionHeaderSize     = 40
	maxSections           = 96
)

// ParseHeaders reads the PE headers of an image mapped at base and returns
// its geometry. It is used for images already loaded into memory, where the
// loader has laid out the headers at the image base.
func ParseHeaders(rm remotememory.RemoteMemory, base libhook.Address) (*Module, error) {
	if rm.Uint8(base) != 'M' || rm.Uint8(base+1) != 'Z' {
		return nil, errNotPE
	}
	lfanew, err := rm.Uint32Checked(base + dosLfanewOffset)
	if err != nil {
		return nil, fmt.Errorf("failed to read e_lfanew: %w", err)
	}
	nt := base + libhook.Address(lfanew)
	if rm.Uint32(nt) != peSignature {
		return nil, errNotPE
	}

	numSections, err := rm.Uint16Checked(nt + numberOfSectionsOff)
	if err != nil {
		return nil, fmt.Errorf("failed to read file header: %w", err)
	}
	if numSections > maxSections {
		return nil, fmt.Errorf("implausible section count %d", numSections)
	}
	sizeOfOptional, err := rm.Uint16Checked(nt + sizeOfOptionalHdrOff)
	if err != nil {
		return nil, fmt.Errorf("failed to read file header: %w", err)
	}

	optional := nt + optionalHeaderOffset
	magic, err := rm.Uint16Checked(optional)
	if err != nil {
		return nil, fmt.Errorf("failed to read optional header: %w", err)
	}
	if magic != optionalMagicPE32Plus {
		return nil, fmt.Errorf("unsupported optional header magic 0x%x", magic)
	}
	sizeOfImage, err := rm.Uint32Checked(optional + sizeOfImageOff)
	if err != nil {
		return nil, fmt.Errorf("failed to read SizeOfImage: %w", err)
	}

	mod := &Module{Base: base, Size: uint64(sizeOfImage)}
	sectionTable := optional + libhook.Address(sizeOfOptional)
	for i := range int(numSections) {
		raw, err := rm.Bytes(sectionTable+libhook.Address(i*sectionHeaderSize), sectionHeaderSize)
		if err != nil {
			return nil, fmt.Errorf("failed to read section header %d: %w", i, err)
		}
		mod.Sections = append(mod.Sections, parseSectionHeader(raw))
	}
	return mod, nil
}

func parseSectionHeader(raw []byte) Section {
	var name [8]uint8
	copy(name[:], raw)
	return Section{
		Name:           sectionName(name),
		VirtualSize:    binary.LittleEndian.Uint32(raw[8:]),
		VirtualAddress: binary.LittleEndian.Uint32(raw[12:]),
	}
}
