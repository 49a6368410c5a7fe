// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package thunk turns offsets reported by the host's pattern scanner, or
// hand-supplied addresses, into true function entry points. Incremental
// linking and hot-patch layouts put a jump thunk at a function's nominal
// address; hooks installed on the thunk instead of the body crash the host
// hooking library, so every candidate is walked through its jump chain first.
package thunk // import "github.com/modhook/modhook/thunk"

import (
	"errors"
	"fmt"

	"github.com/modhook/modhook/image"
	"github.com/modhook/modhook/libhook"
	"github.com/modhook/modhook/remotememory"
)

// BoundsPolicy selects which addresses a resolution may visit.
type BoundsPolicy uint8

const (
	// ExecutableBound rejects any hop outside the executable image. Used for
	// offsets coming straight from the pattern scanner.
	ExecutableBound BoundsPolicy = iota
	// Unbounded only rejects null. Used for hand-supplied addresses that may
	// legitimately point into other modules.
	Unbounded
)

func (p BoundsPolicy) String() string {
	switch p {
	case ExecutableBound:
		return "executable-bound"
	case Unbounded:
		return "unbounded"
	default:
		return fmt.Sprintf("BoundsPolicy(%d)", uint8(p))
	}
}

// State is one state of the thunk chasing state machine.
type State uint8

const (
	Direct State = iota
	ShortJump
	NearJump
	IndirectJumpNear
	// IndirectJumpFar is recognized but not followed; resolution stops at
	// the jump itself.
	IndirectJumpFar
	Resolved
	Rejected
)

var stateNames = [...]string{
	Direct:           "direct",
	ShortJump:        "short-jump",
	NearJump:         "near-jump",
	IndirectJumpNear: "indirect-jump-near",
	IndirectJumpFar:  "indirect-jump-far",
	Resolved:         "resolved",
	Rejected:         "rejected",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// Opcodes recognized at a candidate address.
const (
	opJmpRel8  = 0xeb
	opJmpRel32 = 0xe9
	opGroup5   = 0xff
)

// maxHops bounds the walk so that cyclic thunks are rejected instead of
// looping forever.
const maxHops = 64

// ErrRejected is returned by the checked entry points when no address was
// produced.
var ErrRejected = errors.New("address rejected")

// Hop is one visited address during resolution.
type Hop struct {
	Address libhook.Address
	State   State
}

// Resolver resolves candidates against one executable image.
type Resolver struct {
	mem    remotememory.RemoteMemory
	module *image.Module
}

// New returns a Resolver reading code through mem, bounded by module.
func New(mem remotememory.RemoteMemory, module *image.Module) *Resolver {
	return &Resolver{mem: mem, module: module}
}

// Module returns the image the resolver is bound to.
func (r *Resolver) Module() *image.Module {
	return r.module
}

func (r *Resolver) inBounds(addr libhook.Address, policy BoundsPolicy) bool {
	if policy == Unbounded {
		return addr != 0
	}
	return r.module.Contains(addr)
}

// Resolve walks the jump chain starting at addr and returns the first
// non-jump address. ok is false when any hop violates the bounds policy,
// memory cannot be read, or the chain does not terminate.
func (r *Resolver) Resolve(addr libhook.Address, policy BoundsPolicy) (libhook.Address, bool) {
	res, _, ok := r.walk(addr, policy, nil)
	return res, ok
}

// Trace is Resolve that also reports every visited hop.
func (r *Resolver) Trace(addr libhook.Address, policy BoundsPolicy) ([]Hop, libhook.Address, bool) {
	hops := make([]Hop, 0, 4)
	res, hops, ok := r.walk(addr, policy, hops)
	return hops, res, ok
}

func (r *Resolver) walk(addr libhook.Address, policy BoundsPolicy,
	hops []Hop) (libhook.Address, []Hop, bool) {
	record := func(a libhook.Address, s State) {
		if hops != nil {
			hops = append(hops, Hop{Address: a, State: s})
		}
	}

	for range maxHops {
		if !r.inBounds(addr, policy) {
			record(addr, Rejected)
			return 0, hops, false
		}
		op, err := r.mem.Uint8Checked(addr)
		if err != nil {
			record(addr, Rejected)
			return 0, hops, false
		}

		switch op {
		case opJmpRel8:
			disp, err := r.mem.Uint8Checked(addr + 1)
			if err != nil {
				record(addr, Rejected)
				return 0, hops, false
			}
			record(addr, ShortJump)
			addr = addr.Add(int64(int8(disp)) + 2)
		case opJmpRel32:
			disp, err := r.mem.Int32Checked(addr + 1)
			if err != nil {
				record(addr, Rejected)
				return 0, hops, false
			}
			record(addr, NearJump)
			addr = addr.Add(1 + int64(disp) + 4)
		case opGroup5:
			modrm, err := r.mem.Uint8Checked(addr + 1)
			if err != nil {
				record(addr, Rejected)
				return 0, hops, false
			}
			if modrm&0x0f != 5 {
				// jmp far m16:64 and other group 5 forms are not followed.
				if modrm&0x38 == 0x28 {
					record(addr, IndirectJumpFar)
				}
				record(addr, Resolved)
				return addr, hops, true
			}
			// jmp [rip+0] followed by the absolute target.
			target, err := r.mem.PtrChecked(addr + 6)
			if err != nil {
				record(addr, Rejected)
				return 0, hops, false
			}
			record(addr, IndirectJumpNear)
			addr = target
		default:
			record(addr, Resolved)
			return addr, hops, true
		}
	}
	record(addr, Rejected)
	return 0, hops, false
}

// Offset returns base + ofs, for candidates known not to be jumps.
func (r *Resolver) Offset(ofs uint64) libhook.Address {
	return r.module.Base + libhook.Address(ofs)
}

// MayThunk resolves base + ofs following thunks, without bounds checks.
func (r *Resolver) MayThunk(ofs uint64) (libhook.Address, bool) {
	return r.Resolve(r.Offset(ofs), Unbounded)
}

// MayThunkAbsolute resolves an absolute address following thunks, without
// bounds checks.
func (r *Resolver) MayThunkAbsolute(addr libhook.Address) (libhook.Address, bool) {
	return r.Resolve(addr, Unbounded)
}

// FromScan resolves an offset returned by the pattern scanner, which is
// trusted to lie in the executable, keeping every hop inside the image.
func (r *Resolver) FromScan(ofs uint64) (libhook.Address, bool) {
	return r.Resolve(r.Offset(ofs), ExecutableBound)
}

// Width is the number of instruction bytes that precede a 32-bit
// displacement operand.
type Width uint8

const (
	// Short covers one opcode byte, e.g. call rel32.
	Short Width = 1
	// Short2 covers two bytes, e.g. a REX-prefixed or two-byte opcode.
	Short2 Width = 2
	// Long covers three bytes, e.g. lea r64, [rip+disp32].
	Long Width = 3
	// Long4 covers four bytes, e.g. SSE loads with a mandatory prefix.
	Long4 Width = 4
)

// Indirect dereferences the RIP-relative displacement of the instruction at
// base + ofs: target = p + disp32(p) + 4 where p = base + ofs + width.
func (r *Resolver) Indirect(ofs uint64, width Width) (libhook.Address, bool) {
	return r.IndirectAbsolute(r.Offset(ofs), width)
}

// IndirectAbsolute is Indirect for an absolute instruction address.
func (r *Resolver) IndirectAbsolute(addr libhook.Address, width Width) (libhook.Address, bool) {
	if width < Short || width > Long4 {
		return 0, false
	}
	p := addr + libhook.Address(width)
	disp, err := r.mem.Int32Checked(p)
	if err != nil {
		return 0, false
	}
	target := p.Add(int64(disp) + 4)
	if !r.inBounds(target, Unbounded) {
		return 0, false
	}
	return target, true
}

// Check converts an (address, ok) pair into an error return.
func Check(addr libhook.Address, ok bool) (libhook.Address, error) {
	if !ok {
		return 0, ErrRejected
	}
	return addr, nil
}
