// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package hookdesc parses hook descriptors into an intermediate
// representation. A descriptor tells the code generator how the host runtime
// locates a function, global or class in the target executable, optionally
// selecting a different strategy per executable build.
package hookdesc // import "github.com/modhook/modhook/hookdesc"

import (
	"fmt"
	"strconv"
)

// Declaration is one way of locating a hooked item: StaticOffset,
// DynamicOffset or Deferred.
type Declaration interface {
	isDeclaration()
	String() string
}

// StaticOffset locates the item at a fixed offset from the image base.
type StaticOffset struct {
	Offset uint64
}

// CallingConvention of a dynamically located function.
type CallingConvention uint8

const (
	Microsoft CallingConvention = iota
	UnknownConvention
)

func (c CallingConvention) String() string {
	switch c {
	case Microsoft:
		return "microsoft"
	case UnknownConvention:
		return "unknown"
	}
	return fmt.Sprintf("CallingConvention(%d)", uint8(c))
}

// SharedScan is the role an item plays when one pattern scan result is
// broadcast to several listeners.
type SharedScan uint8

const (
	NoSharedScan SharedScan = iota
	Producer
	Consumer
)

func (s SharedScan) String() string {
	switch s {
	case NoSharedScan:
		return "none"
	case Producer:
		return "producer"
	case Consumer:
		return "consumer"
	}
	return fmt.Sprintf("SharedScan(%d)", uint8(s))
}

// DynamicOffset locates the item by scanning for a byte pattern.
type DynamicOffset struct {
	Pattern string
	// Resolver names the function turning a scan result into the final
	// address. Empty selects the thunk-chasing default.
	Resolver          string
	CallingConvention CallingConvention
	SharedScan        SharedScan
}

// Deferred items are located by hand-written code during initialization.
type Deferred struct{}

func (StaticOffset) isDeclaration()  {}
func (DynamicOffset) isDeclaration() {}
func (Deferred) isDeclaration()      {}

func (d StaticOffset) String() string {
	return fmt.Sprintf("static_offset(0x%x)", d.Offset)
}

func (d DynamicOffset) String() string {
	s := fmt.Sprintf("dynamic_offset(signature = %q", d.Pattern)
	if d.Resolver != "" {
		s += ", resolve_type = " + d.Resolver
	}
	if d.CallingConvention != Microsoft {
		s += fmt.Sprintf(", calling_convention = %q", d.CallingConvention)
	}
	if d.SharedScan != NoSharedScan {
		s += fmt.Sprintf(", shared_scan = %q", d.SharedScan)
	}
	return s + ")"
}

func (Deferred) String() string {
	return "user_defined"
}

// ConditionKind selects how a Condition matches the executable hash.
type ConditionKind uint8

const (
	// CondNone is the condition of a single entry set.
	CondNone ConditionKind = iota
	// CondNamed matches a named hash constant defined by the mod.
	CondNamed
	// CondNumeric matches a literal hash.
	CondNumeric
	// CondDefault matches when no other entry did.
	CondDefault
)

// Condition guards one entry of a HookSet.
type Condition struct {
	Kind  ConditionKind
	Name  string
	Value uint64
}

// Named returns a condition matching the hash constant name.
func Named(name string) Condition {
	return Condition{Kind: CondNamed, Name: name}
}

// Numeric returns a condition matching the literal hash v.
func Numeric(v uint64) Condition {
	return Condition{Kind: CondNumeric, Value: v}
}

// Default returns the fallback condition.
func Default() Condition {
	return Condition{Kind: CondDefault}
}

func (c Condition) String() string {
	switch c.Kind {
	case CondNone:
		return "<none>"
	case CondNamed:
		return c.Name
	case CondNumeric:
		return strconv.FormatUint(c.Value, 10)
	case CondDefault:
		return "_"
	}
	return fmt.Sprintf("Condition(%d)", uint8(c.Kind))
}

// Suffix is appended to per-branch generated identifiers.
func (c Condition) Suffix() string {
	switch c.Kind {
	case CondNamed:
		return "_" + c.Name
	case CondNumeric:
		return "_" + strconv.FormatUint(c.Value, 10)
	case CondDefault:
		return "_Default"
	}
	return ""
}

// Entry is one branch of a HookSet.
type Entry struct {
	Cond Condition
	Decl Declaration
	// Offset is the byte offset of the entry in the descriptor text.
	Offset int
}

// HookSet is an ordered list of conditional declarations.
type HookSet struct {
	Entries []Entry
}

// Single returns a set with one unconditional entry.
func Single(decl Declaration) *HookSet {
	return &HookSet{Entries: []Entry{{Cond: Condition{Kind: CondNone}, Decl: decl}}}
}

// Validate checks that a None condition only appears alone, that Default
// is the last entry, that all other conditions are distinct and that every
// dynamic declaration that performs its own scan has a pattern.
func (s *HookSet) Validate() error {
	if len(s.Entries) == 0 {
		return &SyntaxError{Msg: "hook set has no entries"}
	}
	seen := make(map[Condition]struct{}, len(s.Entries))
	for i, e := range s.Entries {
		if e.Decl == nil {
			return &SyntaxError{Offset: e.Offset, Msg: "entry has no declaration"}
		}
		switch e.Cond.Kind {
		case CondNone:
			if len(s.Entries) > 1 {
				return &SyntaxError{Offset: e.Offset,
					Msg: "an unconditional entry cannot be combined with other entries"}
			}
		case CondDefault:
			if i != len(s.Entries)-1 {
				return &SyntaxError{Offset: e.Offset, Token: "_",
					Msg: "Default arm must be the last arm"}
			}
		default:
			if _, dup := seen[e.Cond]; dup {
				return &SyntaxError{Offset: e.Offset, Token: e.Cond.String(),
					Msg: "duplicate condition " + e.Cond.String()}
			}
			seen[e.Cond] = struct{}{}
		}
		if d, ok := e.Decl.(DynamicOffset); ok && d.Pattern == "" && d.SharedScan != Consumer {
			return &SyntaxError{Offset: e.Offset, Msg: "Signature field is required"}
		}
	}
	return nil
}

// HasDeferred reports whether any entry is Deferred.
func (s *HookSet) HasDeferred() bool {
	for _, e := range s.Entries {
		if _, ok := e.Decl.(Deferred); ok {
			return true
		}
	}
	return false
}

// Resolvers returns the distinct custom resolver names in entry order.
func (s *HookSet) Resolvers() []string {
	var names []string
	seen := make(map[string]struct{})
	for _, e := range s.Entries {
		d, ok := e.Decl.(DynamicOffset)
		if !ok || d.Resolver == "" {
			continue
		}
		if _, dup := seen[d.Resolver]; dup {
			continue
		}
		seen[d.Resolver] = struct{}{}
		names = append(names, d.Resolver)
	}
	return names
}

// SyntaxError is a descriptor diagnostic at a byte offset of the
// descriptor text.
type SyntaxError struct {
	Offset int
	// Token is the offending token, if any.
	Token string
	Msg   string
}

func (e *SyntaxError) Error() string {
	if e.Token == "" {
		return fmt.Sprintf("offset %d: %s", e.Offset, e.Msg)
	}
	return fmt.Sprintf("offset %d: %s (at %q)", e.Offset, e.Msg, e.Token)
}
