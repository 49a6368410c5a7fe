// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package rtti locates virtual dispatch tables in an MSVC x64 image by
// walking the run-time type information the compiler emits next to them.
package rtti // import "github.com/modhook/modhook/rtti"

import (
	"cmp"
	"fmt"
	"slices"

	log "github.com/sirupsen/logrus"

	"github.com/modhook/modhook/image"
	"github.com/modhook/modhook/libhook"
	npsr "github.com/modhook/modhook/nopanicslicereader"
	"github.com/modhook/modhook/remotememory"
)

const (
	// Offsets inside an RTTICompleteObjectLocator.
	locatorOffsetOff      = 4
	locatorTypeDescRVAOff = 12
	// The decorated name follows the vftable pointer and spare word of a
	// TypeDescriptor.
	typeDescNameOff = 16
	maxNameLen      = 1024
)

// classPrefix starts the decorated name of every class type descriptor.
var classPrefix = []byte(".?AV")

// Key identifies one dispatch table: the decorated class name (starting
// with "?AV") and the offset of the sub-object it belongs to.
type Key struct {
	Name   string
	Offset uint32
}

func (k Key) String() string {
	return fmt.Sprintf("%s+0x%x", k.Name, k.Offset)
}

// Table maps dispatch tables to their address relative to the image base.
type Table map[Key]uint64

// Keys returns the keys of t ordered by name and offset.
func (t Table) Keys() []Key {
	keys := make([]Key, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b Key) int {
		if c := cmp.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.Offset, b.Offset)
	})
	return keys
}

// Extract scans module for complete object locator pointers. Every 8-byte
// slot from the first section to the end of the image that points at a
// locator whose type descriptor carries a class name yields one entry: the
// slot after the pointer is the start of the dispatch table.
func Extract(mem remotememory.RemoteMemory, module *image.Module) (Table, error) {
	data, err := mem.Bytes(module.Base, int(module.Size))
	if err != nil {
		return nil, fmt.Errorf("failed to read image %v: %w", module, err)
	}
	start := uint(module.FirstSection() - module.Base)
	start = (start + 7) &^ 7

	table := make(Table)
	for slot := start; slot+8 <= uint(len(data)); slot += 8 {
		locator := npsr.Ptr(data, slot)
		if !module.Contains(locator) {
			continue
		}
		rel := uint(locator - module.Base)
		td := module.Base + libhook.Address(npsr.Uint32(data, rel+locatorTypeDescRVAOff))
		if !module.Contains(td) {
			continue
		}
		nameOff := uint(td-module.Base) + typeDescNameOff
		if !npsr.HasPrefix(data, nameOff, classPrefix) {
			continue
		}
		name := npsr.CString(data, nameOff+1, maxNameLen)
		if name == "" {
			continue
		}
		key := Key{Name: name, Offset: npsr.Uint32(data, rel+locatorOffsetOff)}
		if prev, ok := table[key]; ok {
			log.Debugf("WARNING: The vtable %v was already located at 0x%x!", key, prev)
		}
		table[key] = uint64(slot + 8)
	}
	log.Debugf("Located %d vtables in %v", len(table), module)
	return table, nil
}

// Vtables answers dispatch table lookups for one loaded image.
type Vtables struct {
	base  libhook.Address
	table Table
}

// NewVtables binds table to the image loaded at base.
func NewVtables(base libhook.Address, table Table) *Vtables {
	return &Vtables{base: base, table: table}
}

// Lookup returns the absolute address of the dispatch table, or 0 if it is
// unknown.
func (v *Vtables) Lookup(name string, offset uint32) libhook.Address {
	rel, ok := v.table[Key{Name: name, Offset: offset}]
	if !ok {
		return 0
	}
	return v.base + libhook.Address(rel)
}

// Len returns the number of known dispatch tables.
func (v *Vtables) Len() int {
	return len(v.table)
}
