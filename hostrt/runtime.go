// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package hostrt is the process side runtime of a hook module. It identifies
// the running executable, locates its virtual dispatch tables once and
// serves the address resolution entry points called by the host bindings.
package hostrt // import "github.com/modhook/modhook/hostrt"

import (
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"github.com/modhook/modhook/identity"
	"github.com/modhook/modhook/image"
	"github.com/modhook/modhook/libhook"
	"github.com/modhook/modhook/libhook/xsync"
	"github.com/modhook/modhook/remotememory"
	"github.com/modhook/modhook/rtti"
	"github.com/modhook/modhook/thunk"
)

const (
	// DataDirEnv overrides the directory holding the cache files.
	DataDirEnv = "MODHOOK_DATA_DIR"

	resolverCacheSize = 1024
)

// Options describes the executable a Runtime serves.
type Options struct {
	Module *image.Module
	Memory remotememory.RemoteMemory
	// DataDir holds the identity and dispatch table caches.
	DataDir string
}

// Runtime holds everything resolved once per process.
type Runtime struct {
	module   *image.Module
	resolver *thunk.CachingResolver
	exe      identity.Entry
	vtables  *rtti.Vtables
}

// New identifies the executable and loads or extracts its dispatch tables.
func New(opts Options) (*Runtime, error) {
	if err := os.MkdirAll(opts.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %v", err)
	}
	resolver, err := thunk.NewCaching(thunk.New(opts.Memory, opts.Module), resolverCacheSize)
	if err != nil {
		return nil, err
	}

	ids := identity.NewService(filepath.Join(opts.DataDir, identity.CacheFileName))
	exe, err := ids.Resolve(opts.Module.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to identify %s: %w", opts.Module.Path, err)
	}

	store := rtti.NewStore(filepath.Join(opts.DataDir, rtti.CacheFileName))
	table, err := store.Tables(exe.Hash, func() (rtti.Table, error) {
		return rtti.Extract(opts.Memory, opts.Module)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to extract dispatch tables: %w", err)
	}

	rt := &Runtime{
		module:   opts.Module,
		resolver: resolver,
		exe:      exe,
		vtables:  rtti.NewVtables(opts.Module.Base, table),
	}
	log.Infof("Runtime ready for %s (hash 0x%x, %d dispatch tables)",
		opts.Module, exe.Hash, rt.vtables.Len())
	return rt, nil
}

var current xsync.Slot[*Runtime]

// DataDir returns the cache directory of the hook module.
func DataDir() (string, error) {
	if dir := os.Getenv(DataDirEnv); dir != "" {
		return dir, nil
	}
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "modhook"), nil
}

// Init initializes the process wide Runtime for the main executable. Later
// calls return the same Runtime; a failed attempt is retried.
func Init() (*Runtime, error) {
	return current.GetOrInit(func() (*Runtime, error) {
		mod, err := image.Current()
		if err != nil {
			return nil, fmt.Errorf("failed to locate the main executable: %w", err)
		}
		dir, err := DataDir()
		if err != nil {
			return nil, err
		}
		return New(Options{
			Module:  mod,
			Memory:  remotememory.NewSelfMemory(),
			DataDir: dir,
		})
	})
}

// Module is the executable the runtime serves.
func (rt *Runtime) Module() *image.Module {
	return rt.module
}

// ExecutableHash is the xxh3 hash of the executable contents.
func (rt *Runtime) ExecutableHash() uint64 {
	return rt.exe.Hash
}

// result reports a rejected resolution as the null address.
func result(entry string, arg uint64, addr libhook.Address, ok bool) uintptr {
	if !ok {
		log.Debugf("%s(0x%x) rejected", entry, arg)
		return 0
	}
	return uintptr(addr)
}

// Address returns base + ofs.
func (rt *Runtime) Address(ofs uint64) uintptr {
	return uintptr(rt.resolver.Offset(ofs))
}

// AddressMayThunk follows any jump thunk at base + ofs.
func (rt *Runtime) AddressMayThunk(ofs uint64) uintptr {
	addr, ok := rt.resolver.MayThunk(ofs)
	return result("get_address_may_thunk", ofs, addr, ok)
}

// AddressFromScan follows any jump thunk at base + ofs, where ofs was
// returned by the pattern scanner. Every hop must stay inside the image.
func (rt *Runtime) AddressFromScan(ofs uint64) uintptr {
	addr, ok := rt.resolver.FromScan(ofs)
	return result("get_address_from_scan", ofs, addr, ok)
}

// AddressMayThunkAbsolute follows any jump thunk at addr.
func (rt *Runtime) AddressMayThunkAbsolute(addr uintptr) uintptr {
	target, ok := rt.resolver.MayThunkAbsolute(libhook.Address(addr))
	return result("get_address_may_thunk_absolute", uint64(addr), target, ok)
}

// IndirectAddress decodes the RIP-relative operand of the instruction at
// base + ofs.
func (rt *Runtime) IndirectAddress(ofs uint64, width thunk.Width) uintptr {
	addr, ok := rt.resolver.Indirect(ofs, width)
	return result(fmt.Sprintf("get_indirect_address[%d]", width), ofs, addr, ok)
}

// IndirectAddressAbsolute is IndirectAddress for an absolute address.
func (rt *Runtime) IndirectAddressAbsolute(addr uintptr, width thunk.Width) uintptr {
	target, ok := rt.resolver.IndirectAbsolute(libhook.Address(addr), width)
	return result(fmt.Sprintf("get_indirect_address_abs[%d]", width), uint64(addr), target, ok)
}

// VtableRTTI returns the dispatch table of the class with the decorated
// name at the sub-object offset, or 0.
func (rt *Runtime) VtableRTTI(name string, offset uint32) uintptr {
	addr := rt.vtables.Lookup(name, offset)
	if addr == 0 {
		log.Debugf("No dispatch table for %s at offset 0x%x", name, offset)
	}
	return uintptr(addr)
}

// LogStatistics logs the resolver cache statistics.
func (rt *Runtime) LogStatistics() {
	rt.resolver.LogStatistics()
}
