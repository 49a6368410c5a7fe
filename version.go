// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/peterbourgon/ff/v3/ffcli"

	"github.com/modhook/modhook/vc"
)

func newVersionCmd() *ffcli.Command {
	return &ffcli.Command{
		Name:       "version",
		ShortUsage: "modhook version",
		ShortHelp:  "Print build information",
		FlagSet:    flag.NewFlagSet("version", flag.ContinueOnError),
		Exec: func(context.Context, []string) error {
			fmt.Println(vc.String())
			return nil
		},
	}
}
