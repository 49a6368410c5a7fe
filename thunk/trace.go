// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package thunk // import "github.com/modhook/modhook/thunk"

import (
	"fmt"
	"strings"

	"golang.org/x/arch/x86/x86asm"

	"github.com/modhook/modhook/libhook"
)

// maxInstructionLen is the architectural limit of an x86 instruction.
const maxInstructionLen = 15

// Disassemble returns the Intel syntax text of the instruction at addr, or
// an empty string when it cannot be read or decoded. It is only used to make
// resolver diagnostics readable.
func (r *Resolver) Disassemble(addr libhook.Address) string {
	var code []byte
	for n := maxInstructionLen; n > 0; n-- {
		buf, err := r.mem.Bytes(addr, n)
		if err == nil {
			code = buf
			break
		}
	}
	if len(code) == 0 {
		return ""
	}
	inst, err := x86asm.Decode(code, 64)
	if err != nil {
		return ""
	}
	return x86asm.IntelSyntax(inst, uint64(addr), nil)
}

// FormatTrace renders hops one per line, with the decoded instruction for
// every jump that was followed.
func (r *Resolver) FormatTrace(hops []Hop) string {
	var sb strings.Builder
	for i, hop := range hops {
		fmt.Fprintf(&sb, "%2d  %v  %-18s", i, hop.Address, hop.State)
		if hop.State != Rejected {
			if text := r.Disassemble(hop.Address); text != "" {
				fmt.Fprintf(&sb, "  %s", text)
			}
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
