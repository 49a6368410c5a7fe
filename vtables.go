// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/peterbourgon/ff/v3/ffcli"

	"github.com/modhook/modhook/rtti"
)

type vtablesCmd struct {
	target
	filter string
}

func newVtablesCmd() *ffcli.Command {
	cmd := vtablesCmd{}

	set := flag.NewFlagSet("vtables", flag.ContinueOnError)
	set.StringVar(&cmd.filter, "filter", "", filterHelp)
	cmd.register(set)

	return &ffcli.Command{
		Name:       "vtables",
		ShortUsage: "modhook vtables [-filter <s>] [-pid <pid>] <exe>",
		ShortHelp:  "List the RTTI described vtables of an executable",
		FlagSet:    set,
		Exec:       cmd.exec,
	}
}

func (cmd *vtablesCmd) exec(_ context.Context, args []string) error {
	if len(args) != 1 {
		return flag.ErrHelp
	}

	mem, mod, err := cmd.open(args[0])
	if err != nil {
		return err
	}
	table, err := rtti.Extract(mem, mod)
	if err != nil {
		return err
	}

	for _, key := range table.Keys() {
		if cmd.filter != "" && !strings.Contains(key.Name, cmd.filter) {
			continue
		}
		fmt.Printf("%v  0x%08x\n", key, table[key])
	}
	return nil
}
