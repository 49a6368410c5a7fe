// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package hookdesc // import "github.com/modhook/modhook/hookdesc"

import "fmt"

// ExecuteMode orders injected code relative to the replaced instructions.
type ExecuteMode uint8

const (
	ExecuteFirst ExecuteMode = iota
	ExecuteAfter
	// DoNotExecuteOriginal drops the replaced instructions entirely.
	DoNotExecuteOriginal
)

var executeModeNames = [...]string{
	ExecuteFirst:         "ExecuteFirst",
	ExecuteAfter:         "ExecuteAfter",
	DoNotExecuteOriginal: "DoNotExecuteOriginal",
}

func (m ExecuteMode) String() string {
	if int(m) < len(executeModeNames) {
		return executeModeNames[m]
	}
	return fmt.Sprintf("ExecuteMode(%d)", uint8(m))
}

func parseExecuteMode(s string) (ExecuteMode, bool) {
	for i, name := range executeModeNames {
		if name == s {
			return ExecuteMode(i), true
		}
	}
	return 0, false
}

// Register is an x86-64 general purpose register.
type Register uint8

const (
	RAX Register = iota
	RBX
	RCX
	RDX
	RSI
	RDI
	RBP
	RSP
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
)

var registerNames = [...]string{
	"rax", "rbx", "rcx", "rdx", "rsi", "rdi", "rbp", "rsp",
	"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
}

func (r Register) String() string {
	if int(r) < len(registerNames) {
		return registerNames[r]
	}
	return fmt.Sprintf("Register(%d)", uint8(r))
}

// ParseRegister maps a lower case register name to its Register.
func ParseRegister(s string) (Register, bool) {
	for i, name := range registerNames {
		if name == s {
			return Register(i), true
		}
	}
	return 0, false
}

// AsmHook describes the glue around one mid-function hook branch.
type AsmHook struct {
	Mode ExecuteMode
	// Params are the registers holding the hook's arguments, in order.
	Params      []Register
	Return      Register
	CalleeSaved []Register
	ShadowSpace bool
	// Before and After are raw instruction text placed around the call
	// into the hook. Empty means none.
	Before string
	After  string
}
