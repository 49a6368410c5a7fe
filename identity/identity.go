// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package identity computes and caches the content hash that identifies a
// build of the hooked executable. Hook descriptors select branches by this
// hash, and the dispatch table cache is keyed by it.
package identity // import "github.com/modhook/modhook/identity"

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/edsrzf/mmap-go"
	log "github.com/sirupsen/logrus"
	"github.com/zeebo/xxh3"

	"github.com/modhook/modhook/archive"
)

// CacheFileName is the name of the identity cache inside the module's data
// directory.
const CacheFileName = "exe_info"

// Entry is the identity of one executable.
type Entry struct {
	Path string
	// WriteTime is the modification time in nanoseconds since the epoch.
	WriteTime int64
	Hash      uint64
}

// Service resolves executable identities through a cache file. It is owned
// by the runtime initializer and not safe for concurrent use.
type Service struct {
	cachePath string
	entries   []Entry
	loaded    bool

	// hashFile is replaceable so tests can count content reads.
	hashFile func(path string) (uint64, error)
}

// NewService returns a Service persisting to cachePath.
func NewService(cachePath string) *Service {
	return &Service{
		cachePath: cachePath,
		hashFile:  HashFile,
	}
}

// Entries returns a copy of the cached identities.
func (s *Service) Entries() []Entry {
	s.load()
	return append([]Entry(nil), s.entries...)
}

func (s *Service) load() {
	if s.loaded {
		return
	}
	s.loaded = true

	var entries []Entry
	err := archive.ReadFile(s.cachePath, archive.KindIdentity, &entries)
	switch {
	case err == nil:
		s.entries = entries
	case errors.Is(err, fs.ErrNotExist):
		log.Infof("New executable info cache created at %s", s.cachePath)
	default:
		log.Warnf("Executable info cache %s is unreadable, regenerating: %v", s.cachePath, err)
	}
}

// Resolve returns the identity of the executable at path. The content is
// only read when the cache has no entry for path or the entry's write time
// differs from the file's.
func (s *Service) Resolve(path string) (Entry, error) {
	s.load()

	info, err := os.Stat(path)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	writeTime := info.ModTime().UnixNano()

	idx := -1
	for i := range s.entries {
		if s.entries[i].Path == path {
			idx = i
			break
		}
	}
	if idx >= 0 && s.entries[idx].WriteTime == writeTime {
		log.Debugf("Use cached hash 0x%x for %s", s.entries[idx].Hash, path)
		return s.entries[idx], nil
	}

	hash, err := s.hashFile(path)
	if err != nil {
		return Entry{}, err
	}
	entry := Entry{Path: path, WriteTime: writeTime, Hash: hash}
	if idx >= 0 {
		log.Infof("%s has been modified, updated hash entry to 0x%x", path, hash)
		s.entries[idx] = entry
	} else {
		log.Infof("%s is not in the executable info cache, added with hash 0x%x", path, hash)
		s.entries = append(s.entries, entry)
	}

	if err = archive.WriteFile(s.cachePath, archive.KindIdentity, s.entries); err != nil {
		// The hash is still valid for this launch.
		log.Warnf("Failed to persist executable info cache %s: %v", s.cachePath, err)
	}
	return entry, nil
}

// HashFile returns the xxh3 64-bit hash of the file's full content.
func HashFile(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	if info.Size() == 0 {
		return xxh3.Hash(nil), nil
	}

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return 0, fmt.Errorf("failed to map %s: %w", path, err)
	}
	defer func() { _ = m.Unmap() }()
	return xxh3.Hash(m), nil
}
