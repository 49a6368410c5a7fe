// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// modhook compiles hook sources into a native Go package and C# host
// bindings, and inspects executables the hooks target.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"

	"github.com/peterbourgon/ff/v3/ffcli"
	log "github.com/sirupsen/logrus"
)

type exitCode int

const (
	exitSuccess exitCode = 0
	exitFailure exitCode = 1

	// Go 'flag' package calls os.Exit(2) on flag parse errors, if ExitOnError is set
	exitParseError exitCode = 2
)

func newRootCmd(args *rootArgs) *ffcli.Command {
	return &ffcli.Command{
		Name:       "modhook",
		ShortUsage: "modhook [-v] <subcommand> [flags] [args]",
		ShortHelp:  "Hook code generator and executable inspection tool",
		FlagSet:    newRootFlagSet(args),
		Options:    ffOptions(),
		Subcommands: []*ffcli.Command{
			newGenerateCmd(),
			newIdentityCmd(),
			newVtablesCmd(),
			newResolveCmd(),
			newVersionCmd(),
		},
		Exec: func(context.Context, []string) error {
			return flag.ErrHelp
		},
	}
}

func main() {
	os.Exit(int(mainWithExitCode()))
}

func mainWithExitCode() exitCode {
	log.SetReportCaller(false)
	log.SetFormatter(&log.TextFormatter{})

	var args rootArgs
	root := newRootCmd(&args)
	if err := root.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitSuccess
		}
		return parseError("Failure to parse arguments: %v", err)
	}
	if args.verbose {
		log.SetLevel(log.DebugLevel)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := root.Run(ctx); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitParseError
		}
		return failure("%v", err)
	}
	return exitSuccess
}

func parseError(msg string, args ...any) exitCode {
	log.Errorf(msg, args...)
	return exitParseError
}

func failure(msg string, args ...any) exitCode {
	log.Errorf(msg, args...)
	return exitFailure
}
