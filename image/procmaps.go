// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package image // import "github.com/modhook/modhook/image"

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/modhook/modhook/libhook"
	"github.com/modhook/modhook/remotememory"
)

// mapping is one line of /proc/PID/maps.
type mapping struct {
	vaddr, vend uint64
	fileOffset  uint64
	path        string
}

// parseMappings reads the mappings file of a process. Lines that fail to
// parse are counted and skipped.
func parseMappings(mapsFile io.Reader) ([]mapping, uint32, error) {
	numParseErrors := uint32(0)
	mappings := make([]mapping, 0, 32)
	scanner := bufio.NewScanner(mapsFile)
	scanner.Buffer(make([]byte, 256), 8192)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 5 {
			numParseErrors++
			continue
		}
		addrs := strings.SplitN(fields[0], "-", 2)
		if len(addrs) < 2 {
			numParseErrors++
			continue
		}
		vaddr, err := strconv.ParseUint(addrs[0], 16, 64)
		if err != nil {
			log.Debugf("vaddr: failed to convert %s to uint64: %v", addrs[0], err)
			numParseErrors++
			continue
		}
		vend, err := strconv.ParseUint(addrs[1], 16, 64)
		if err != nil {
			log.Debugf("vend: failed to convert %s to uint64: %v", addrs[1], err)
			numParseErrors++
			continue
		}
		fileOffset, err := strconv.ParseUint(fields[2], 16, 64)
		if err != nil {
			log.Debugf("fileOffset: failed to convert %s to uint64: %v", fields[2], err)
			numParseErrors++
			continue
		}
		var path string
		if len(fields) >= 6 {
			// Paths may contain spaces; the remainder of the line is the path.
			path = strings.TrimSuffix(strings.Join(fields[5:], " "), " (deleted)")
		}
		mappings = append(mappings, mapping{
			vaddr:      vaddr,
			vend:       vend,
			fileOffset: fileOffset,
			path:       path,
		})
	}
	return mappings, numParseErrors, scanner.Err()
}

// moduleFromMappings returns the span of all mappings backed by exePath. The
// base is the mapping of file offset zero.
func moduleFromMappings(mappings []mapping, exePath string) (*Module, error) {
	var base, end uint64
	found := false
	for _, m := range mappings {
		if m.path != exePath {
			continue
		}
		if !found || m.vaddr < base {
			base = m.vaddr
		}
		if m.vend > end {
			end = m.vend
		}
		found = true
	}
	if !found {
		return nil, fmt.Errorf("no mappings for %s", exePath)
	}
	return &Module{
		Path: exePath,
		Base: libhook.Address(base),
		Size: end - base,
	}, nil
}

// FromProcess locates the main executable image of process pid through its
// mappings file.
func FromProcess(pid libhook.PID) (*Module, error) {
	exePath, err := os.Readlink(fmt.Sprintf("/proc/%d/exe", pid))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve executable of PID %d: %w", pid, err)
	}
	return mappedModule(pid, exePath)
}

// FromProcessImage locates the image mapped from exePath in process pid and
// reads its section table through rm. Processes running under a PE loader
// such as Wine report the loader as their executable, so the image path is
// given explicitly.
func FromProcessImage(pid libhook.PID, exePath string,
	rm remotememory.RemoteMemory) (*Module, error) {
	mapped, err := mappedModule(pid, exePath)
	if err != nil {
		return nil, err
	}
	mod, err := ParseHeaders(rm, mapped.Base)
	if err != nil {
		return nil, fmt.Errorf("PID %d: %s at %v: %w", pid, exePath, mapped.Base, err)
	}
	mod.Path = exePath
	if mapped.Size > mod.Size {
		log.Debugf("PID %d: %s maps 0x%x bytes, image declares 0x%x",
			pid, exePath, mapped.Size, mod.Size)
	}
	return mod, nil
}

func mappedModule(pid libhook.PID, exePath string) (*Module, error) {
	mapsFile, err := os.Open(fmt.Sprintf("/proc/%d/maps", pid))
	if err != nil {
		return nil, err
	}
	defer mapsFile.Close()

	mappings, numParseErrors, err := parseMappings(mapsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to parse mappings of PID %d: %w", pid, err)
	}
	if numParseErrors > 0 {
		log.Debugf("PID %d: %d unparsable mapping lines", pid, numParseErrors)
	}
	return moduleFromMappings(mappings, exePath)
}
