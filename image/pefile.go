// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package image // import "github.com/modhook/modhook/image"

import (
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"
	pe "github.com/saferwall/pe"

	"github.com/modhook/modhook/libhook"
	"github.com/modhook/modhook/remotememory"
)

// maxImageSize bounds the in-memory layout of an image read from disk.
const maxImageSize = 1 << 31

// File is an executable read from disk and laid out at its preferred base
// the same way the loader maps it, so offline tools can run the resolver and
// the dispatch table scan without a running process.
type File struct {
	Module
	// Memory serves reads at virtual addresses inside the laid out image.
	Memory remotememory.RemoteMemory
	data   []byte
}

// Bytes returns the laid out image.
func (f *File) Bytes() []byte {
	return f.data
}

// OpenPE parses the PE32+ executable at path and lays out its sections.
func OpenPE(path string) (*File, error) {
	pf, err := pe.New(path, &pe.Options{Fast: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer pf.Close()
	if err = pf.Parse(); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	opt, ok := pf.NtHeader.OptionalHeader.(pe.ImageOptionalHeader64)
	if !ok {
		return nil, fmt.Errorf("%s: only PE32+ images are supported", path)
	}
	if opt.SizeOfImage == 0 || opt.SizeOfImage > maxImageSize {
		return nil, fmt.Errorf("%s: implausible SizeOfImage 0x%x", path, opt.SizeOfImage)
	}

	raw, err := mapFile(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = raw.Unmap() }()

	data := make([]byte, opt.SizeOfImage)
	copy(data, raw[:min(int(opt.SizeOfHeaders), len(raw), len(data))])

	f := &File{
		Module: Module{
			Path: path,
			Base: libhook.Address(opt.ImageBase),
			Size: uint64(opt.SizeOfImage),
		},
		data: data,
	}
	for _, sec := range pf.Sections {
		hdr := sec.Header
		f.Sections = append(f.Sections, Section{
			Name:           sectionName(hdr.Name),
			VirtualAddress: hdr.VirtualAddress,
			VirtualSize:    hdr.VirtualSize,
		})
		if err := layoutSection(data, raw, hdr.VirtualAddress, hdr.VirtualSize,
			hdr.PointerToRawData, hdr.SizeOfRawData); err != nil {
			return nil, fmt.Errorf("%s: section %s: %w", path, sectionName(hdr.Name), err)
		}
	}
	f.Memory = remotememory.NewImageMemory(f.Base, data)
	return f, nil
}

func mapFile(path string) (mmap.MMap, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	m, err := mmap.Map(file, mmap.RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to map %s: %w", path, err)
	}
	return m, nil
}

// layoutSection copies the raw section bytes to their virtual address. The
// part of the section beyond its raw size stays zero, as for .bss data.
func layoutSection(dst, raw []byte, va, vsize, rawOff, rawSize uint32) error {
	n := uint64(rawSize)
	if vsize != 0 && uint64(vsize) < n {
		n = uint64(vsize)
	}
	if n == 0 {
		return nil
	}
	if uint64(va)+n > uint64(len(dst)) {
		return fmt.Errorf("virtual range 0x%x+0x%x exceeds image", va, n)
	}
	if uint64(rawOff)+n > uint64(len(raw)) {
		// Truncated files still get their available bytes mapped.
		if uint64(rawOff) >= uint64(len(raw)) {
			return nil
		}
		n = uint64(len(raw)) - uint64(rawOff)
	}
	copy(dst[va:uint64(va)+n], raw[rawOff:uint64(rawOff)+n])
	return nil
}

func sectionName(name [8]uint8) string {
	n := 0
	for n < len(name) && name[n] != 0 {
		n++
	}
	return string(name[:n])
}
