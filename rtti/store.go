// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package rtti // import "github.com/modhook/modhook/rtti"

import (
	"errors"
	"io/fs"

	log "github.com/sirupsen/logrus"

	"github.com/modhook/modhook/archive"
)

// CacheFileName is the name of the dispatch table cache inside the module's
// data directory.
const CacheFileName = "vtable_rtti_msvc"

// Store persists one Table per executable hash.
type Store struct {
	cachePath string
}

// NewStore returns a Store backed by cachePath.
func NewStore(cachePath string) *Store {
	return &Store{cachePath: cachePath}
}

func (s *Store) load() (map[uint64]Table, bool) {
	var tables map[uint64]Table
	err := archive.ReadFile(s.cachePath, archive.KindDispatchTables, &tables)
	switch {
	case err == nil:
		return tables, true
	case errors.Is(err, fs.ErrNotExist):
		log.Debugf("No vtable cache at %s", s.cachePath)
	default:
		log.Warnf("Vtable cache %s is unreadable, regenerating: %v", s.cachePath, err)
	}
	return make(map[uint64]Table), false
}

// Tables returns the table for the executable with the given hash. On a
// cache miss, or when the cache cannot be decoded, scan is invoked and the
// result is persisted.
func (s *Store) Tables(hash uint64, scan func() (Table, error)) (Table, error) {
	tables, valid := s.load()
	if table, ok := tables[hash]; ok {
		log.Debugf("Using cached entry for 0x%x from %s", hash, CacheFileName)
		return table, nil
	}

	table, err := scan()
	if err != nil {
		return nil, err
	}
	tables[hash] = table
	if err = archive.WriteFile(s.cachePath, archive.KindDispatchTables, tables); err != nil {
		log.Warnf("Failed to persist vtable cache %s: %v", s.cachePath, err)
		return table, nil
	}
	if valid {
		log.Debugf("Added new entry for executable 0x%x into %s", hash, CacheFileName)
	} else {
		log.Debugf("Regenerated %s", CacheFileName)
	}
	return table, nil
}
