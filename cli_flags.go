// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"flag"

	"github.com/peterbourgon/ff/v3"
)

const envVarPrefix = "MODHOOK"

// Help strings for command line arguments
var (
	verboseModeHelp = "Enable verbose logging."
	configFileHelp  = "Path to a plain configuration file (one 'flag value' per line)."
	sourceDirHelp   = "Directory holding the hook sources."
	nativeOutHelp   = "Directory receiving the rewritten Go package."
	hostOutHelp     = "Directory receiving the generated C# bindings."
	modIDHelp       = "Root namespace of the host mod. Derived from go.mod when empty."
	dllNameHelp     = "Name of the native library. Derived from go.mod when empty."
	goModHelp       = "go.mod used to derive defaults. Defaults to <src>/go.mod."
	parallelismHelp = "Number of source files parsed concurrently. Zero uses all CPUs."
	cacheHelp       = "Identity cache file. Empty hashes without a cache."
	filterHelp      = "Only list classes whose decorated name contains this string."
	widthHelp       = "Instruction bytes before a RIP-relative displacement (1-4). " +
		"Zero follows jump thunks instead."
	boundHelp = "Reject hops leaving the executable image."
)

type rootArgs struct {
	verbose bool
}

func newRootFlagSet(args *rootArgs) *flag.FlagSet {
	fs := flag.NewFlagSet("modhook", flag.ContinueOnError)
	fs.BoolVar(&args.verbose, "v", false, "Shorthand for -verbose.")
	fs.BoolVar(&args.verbose, "verbose", false, verboseModeHelp)
	fs.String("config", "", configFileHelp)
	return fs
}

// ffOptions makes every flag settable from MODHOOK_ environment variables
// and the configuration file.
func ffOptions() []ff.Option {
	return []ff.Option{
		ff.WithEnvVarPrefix(envVarPrefix),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
		// Options of other subcommands may share the configuration file.
		ff.WithIgnoreUndefined(true),
		ff.WithAllowMissingConfigFile(true),
	}
}
