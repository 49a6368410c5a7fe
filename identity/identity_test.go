// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeebo/xxh3"

	"github.com/modhook/modhook/archive"
)

// countingService returns a Service over a temp cache whose content reads
// are counted.
func countingService(t *testing.T, cachePath string) (*Service, *int) {
	t.Helper()
	reads := 0
	s := NewService(cachePath)
	s.hashFile = func(path string) (uint64, error) {
		reads++
		return HashFile(path)
	}
	return s, &reads
}

func writeExe(t *testing.T, path string, content string, mtime time.Time) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o755))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func TestResolveIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	exe := filepath.Join(dir, "game.exe")
	writeExe(t, exe, "MZ version one", time.Unix(1700000000, 0))

	s, reads := countingService(t, filepath.Join(dir, CacheFileName))
	first, err := s.Resolve(exe)
	require.NoError(t, err)
	second, err := s.Resolve(exe)
	require.NoError(t, err)

	assert.Equal(t, 1, *reads)
	assert.Equal(t, first, second)
	assert.Equal(t, xxh3.HashString("MZ version one"), first.Hash)

	// A fresh service over the persisted cache does not read either.
	s2, reads2 := countingService(t, filepath.Join(dir, CacheFileName))
	third, err := s2.Resolve(exe)
	require.NoError(t, err)
	assert.Equal(t, 0, *reads2)
	assert.Equal(t, first, third)
}

func TestResolveInvalidatesOnWriteTime(t *testing.T) {
	dir := t.TempDir()
	exe := filepath.Join(dir, "game.exe")
	cachePath := filepath.Join(dir, CacheFileName)
	writeExe(t, exe, "MZ version one", time.Unix(1700000000, 0))

	s, reads := countingService(t, cachePath)
	before, err := s.Resolve(exe)
	require.NoError(t, err)

	writeExe(t, exe, "MZ version two", time.Unix(1700000100, 0))
	after, err := s.Resolve(exe)
	require.NoError(t, err)

	assert.Equal(t, 2, *reads)
	assert.NotEqual(t, before.Hash, after.Hash)

	var persisted []Entry
	require.NoError(t, archive.ReadFile(cachePath, archive.KindIdentity, &persisted))
	require.Len(t, persisted, 1)
	assert.Equal(t, after, persisted[0])
}

func TestResolveAppendsNewExecutables(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.exe")
	b := filepath.Join(dir, "b.exe")
	writeExe(t, a, "A", time.Unix(1, 0))
	writeExe(t, b, "B", time.Unix(2, 0))

	s := NewService(filepath.Join(dir, CacheFileName))
	_, err := s.Resolve(a)
	require.NoError(t, err)
	_, err = s.Resolve(b)
	require.NoError(t, err)

	entries := NewService(filepath.Join(dir, CacheFileName)).Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, a, entries[0].Path)
	assert.Equal(t, b, entries[1].Path)
}

func TestCorruptCacheIsRegenerated(t *testing.T) {
	dir := t.TempDir()
	exe := filepath.Join(dir, "game.exe")
	cachePath := filepath.Join(dir, CacheFileName)
	writeExe(t, exe, "MZ", time.Unix(1700000000, 0))
	require.NoError(t, os.WriteFile(cachePath, []byte("definitely not an archive"), 0o644))

	s, reads := countingService(t, cachePath)
	entry, err := s.Resolve(exe)
	require.NoError(t, err)
	assert.Equal(t, 1, *reads)

	var persisted []Entry
	require.NoError(t, archive.ReadFile(cachePath, archive.KindIdentity, &persisted))
	assert.Equal(t, []Entry{entry}, persisted)
}

func TestResolveMissingExecutable(t *testing.T) {
	s := NewService(filepath.Join(t.TempDir(), CacheFileName))
	_, err := s.Resolve("/does/not/exist.exe")
	assert.Error(t, err)
}

func TestHashFileEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty")
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	h, err := HashFile(path)
	require.NoError(t, err)
	assert.Equal(t, xxh3.Hash(nil), h)
}
