// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// archive implements the binary encoding shared by the on-disk caches.
//
// # File format
//
// >>> magic: [4]char                 # "MHKA"
// >>> version: u16 LE
// >>> kind: u16 LE                   # distinguishes cache families
// >>> checksum: [32]byte             # sha256 of the compressed payload
// >>> payload_size: u64 LE           # compressed size
// >>> <zstd compressed gob payload>
//
// Any mismatch while decoding is reported as ErrCorrupt: the caches treat a
// corrupt file the same as a missing one and regenerate it.
package archive // import "github.com/modhook/modhook/archive"

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/minio/sha256-simd"
)

// magic defines the file magic that uniquely identifies cache archives.
const magic = "MHKA"

// Version of the archive layout.
const Version = 1

const headerSize = 4 + 2 + 2 + sha256.Size + 8

// maxPayloadSize bounds the compressed payload read back from disk.
const maxPayloadSize = 256 << 20

// Kind tags the cache family stored in an archive.
type Kind uint16

const (
	KindIdentity Kind = iota + 1
	KindDispatchTables
)

// ErrCorrupt is returned for archives that fail any integrity check.
var ErrCorrupt = errors.New("corrupt cache archive")

var (
	encoder = sync.OnceValues(func() (*zstd.Encoder, error) {
		return zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	})
	decoder = sync.OnceValues(func() (*zstd.Decoder, error) {
		return zstd.NewReader(nil, zstd.WithDecoderMaxMemory(4*maxPayloadSize))
	})
)

// Encode writes v as an archive of the given kind.
func Encode(w io.Writer, kind Kind, v any) error {
	var plain bytes.Buffer
	if err := gob.NewEncoder(&plain).Encode(v); err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}
	enc, err := encoder()
	if err != nil {
		return fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	payload := enc.EncodeAll(plain.Bytes(), nil)

	var hdr [headerSize]byte
	copy(hdr[:4], magic)
	binary.LittleEndian.PutUint16(hdr[4:], Version)
	binary.LittleEndian.PutUint16(hdr[6:], uint16(kind))
	sum := sha256.Sum256(payload)
	copy(hdr[8:], sum[:])
	binary.LittleEndian.PutUint64(hdr[8+sha256.Size:], uint64(len(payload)))

	if _, err = w.Write(hdr[:]); err != nil {
		return err
	}
	_, err = w.Write(payload)
	return err
}

// Decode reads an archive of the given kind into v. All integrity failures
// wrap ErrCorrupt.
func Decode(r io.Reader, kind Kind, v any) error {
	var hdr [headerSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return fmt.Errorf("%w: short header: %v", ErrCorrupt, err)
	}
	if string(hdr[:4]) != magic {
		return fmt.Errorf("%w: bad magic", ErrCorrupt)
	}
	if ver := binary.LittleEndian.Uint16(hdr[4:]); ver != Version {
		return fmt.Errorf("%w: unsupported version %d", ErrCorrupt, ver)
	}
	if k := Kind(binary.LittleEndian.Uint16(hdr[6:])); k != kind {
		return fmt.Errorf("%w: archive kind %d, expected %d", ErrCorrupt, k, kind)
	}
	size := binary.LittleEndian.Uint64(hdr[8+sha256.Size:])
	if size > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d too large", ErrCorrupt, size)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return fmt.Errorf("%w: short payload: %v", ErrCorrupt, err)
	}
	if sum := sha256.Sum256(payload); !bytes.Equal(sum[:], hdr[8:8+sha256.Size]) {
		return fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}

	dec, err := decoder()
	if err != nil {
		return fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	plain, err := dec.DecodeAll(payload, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if err = gob.NewDecoder(bytes.NewReader(plain)).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return nil
}

// ReadFile decodes the archive at path into v. A missing file is reported
// with an error satisfying errors.Is(err, fs.ErrNotExist).
func ReadFile(path string, kind Kind, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return Decode(f, kind, v)
}

// WriteFile encodes v and replaces the file at path. The archive is written
// to a temporary sibling first so a crash never leaves a truncated cache.
func WriteFile(path string, kind Kind, v any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if tmp != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err = Encode(tmp, kind, v); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	name := tmp.Name()
	tmp = nil
	if err = os.Rename(name, path); err != nil {
		os.Remove(name)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
