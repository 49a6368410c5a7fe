// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"strconv"

	"github.com/peterbourgon/ff/v3/ffcli"

	"github.com/modhook/modhook/thunk"
)

type resolveCmd struct {
	target
	width   uint
	bounded bool
}

func newResolveCmd() *ffcli.Command {
	cmd := resolveCmd{}

	set := flag.NewFlagSet("resolve", flag.ContinueOnError)
	set.UintVar(&cmd.width, "indirect", 0, widthHelp)
	set.BoolVar(&cmd.bounded, "bounded", false, boundHelp)
	cmd.register(set)

	return &ffcli.Command{
		Name:       "resolve",
		ShortUsage: "modhook resolve [flags] <exe> <offset>",
		ShortHelp:  "Resolve an image offset the way the hook runtime does",
		FlagSet:    set,
		Exec:       cmd.exec,
	}
}

func (cmd *resolveCmd) exec(_ context.Context, args []string) error {
	if len(args) != 2 {
		return flag.ErrHelp
	}
	ofs, err := strconv.ParseUint(args[1], 0, 64)
	if err != nil {
		return fmt.Errorf("invalid offset %q: %w", args[1], err)
	}

	mem, mod, err := cmd.open(args[0])
	if err != nil {
		return err
	}
	r := thunk.New(mem, mod)

	if cmd.width != 0 {
		addr, err := thunk.Check(r.Indirect(ofs, thunk.Width(cmd.width)))
		if err != nil {
			return err
		}
		fmt.Printf("%v\t%s\n", addr, r.Disassemble(r.Offset(ofs)))
		return nil
	}

	policy := thunk.Unbounded
	if cmd.bounded {
		policy = thunk.ExecutableBound
	}
	hops, addr, ok := r.Trace(r.Offset(ofs), policy)
	fmt.Print(r.FormatTrace(hops))
	if !ok {
		return fmt.Errorf("offset 0x%x does not resolve (%v)", ofs, policy)
	}
	fmt.Printf("=> %v\n", addr)
	return nil
}
