// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package cexport exports the runtime entry points to the host. A hook
// module built with -buildmode=c-shared links it with a blank import.
package cexport // import "github.com/modhook/modhook/hostrt/cexport"

import "C"

import (
	log "github.com/sirupsen/logrus"

	"github.com/modhook/modhook/hostrt"
	"github.com/modhook/modhook/thunk"
)

// runtime returns the initialized runtime, or nil after logging why it is
// unavailable.
func runtime(entry string) *hostrt.Runtime {
	rt, err := hostrt.Init()
	if err != nil {
		log.Errorf("%s: %v", entry, err)
		return nil
	}
	return rt
}

//export get_address
func get_address(ofs uintptr) uintptr {
	if rt := runtime("get_address"); rt != nil {
		return rt.Address(uint64(ofs))
	}
	return 0
}

//export get_address_may_thunk
func get_address_may_thunk(ofs uintptr) uintptr {
	if rt := runtime("get_address_may_thunk"); rt != nil {
		return rt.AddressMayThunk(uint64(ofs))
	}
	return 0
}

//export get_address_from_scan
func get_address_from_scan(ofs uintptr) uintptr {
	if rt := runtime("get_address_from_scan"); rt != nil {
		return rt.AddressFromScan(uint64(ofs))
	}
	return 0
}

//export get_address_may_thunk_absolute
func get_address_may_thunk_absolute(addr uintptr) uintptr {
	if rt := runtime("get_address_may_thunk_absolute"); rt != nil {
		return rt.AddressMayThunkAbsolute(addr)
	}
	return 0
}

func indirect(entry string, ofs uintptr, width thunk.Width) uintptr {
	if rt := runtime(entry); rt != nil {
		return rt.IndirectAddress(uint64(ofs), width)
	}
	return 0
}

func indirectAbs(entry string, addr uintptr, width thunk.Width) uintptr {
	if rt := runtime(entry); rt != nil {
		return rt.IndirectAddressAbsolute(addr, width)
	}
	return 0
}

//export get_indirect_address_short
func get_indirect_address_short(ofs uintptr) uintptr {
	return indirect("get_indirect_address_short", ofs, thunk.Short)
}

//export get_indirect_address_short2
func get_indirect_address_short2(ofs uintptr) uintptr {
	return indirect("get_indirect_address_short2", ofs, thunk.Short2)
}

//export get_indirect_address_long
func get_indirect_address_long(ofs uintptr) uintptr {
	return indirect("get_indirect_address_long", ofs, thunk.Long)
}

//export get_indirect_address_long4
func get_indirect_address_long4(ofs uintptr) uintptr {
	return indirect("get_indirect_address_long4", ofs, thunk.Long4)
}

//export get_indirect_address_short_abs
func get_indirect_address_short_abs(addr uintptr) uintptr {
	return indirectAbs("get_indirect_address_short_abs", addr, thunk.Short)
}

//export get_indirect_address_short2_abs
func get_indirect_address_short2_abs(addr uintptr) uintptr {
	return indirectAbs("get_indirect_address_short2_abs", addr, thunk.Short2)
}

//export get_indirect_address_long_abs
func get_indirect_address_long_abs(addr uintptr) uintptr {
	return indirectAbs("get_indirect_address_long_abs", addr, thunk.Long)
}

//export get_indirect_address_long4_abs
func get_indirect_address_long4_abs(addr uintptr) uintptr {
	return indirectAbs("get_indirect_address_long4_abs", addr, thunk.Long4)
}

//export get_executable_hash
func get_executable_hash() uint64 {
	if rt := runtime("get_executable_hash"); rt != nil {
		return rt.ExecutableHash()
	}
	return 0
}

//export get_vtable_rtti
func get_vtable_rtti(name *C.char, offset uint32) uintptr {
	if name == nil {
		return 0
	}
	if rt := runtime("get_vtable_rtti"); rt != nil {
		return rt.VtableRTTI(C.GoString(name), offset)
	}
	return 0
}

// set_current_process initializes the runtime eagerly, before the host
// registers any hook.
//
//export set_current_process
func set_current_process() {
	if rt := runtime("set_current_process"); rt != nil {
		log.Debugf("Serving %s", rt.Module())
	}
}

//export set_reloaded_logger
func set_reloaded_logger(fn uintptr) {
	if fn == 0 {
		return
	}
	log.AddHook(hostrt.NewNativeLogHook(fn))
	log.Infof("Forwarding log output to the host logger")
}
