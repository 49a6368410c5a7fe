// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"

	"github.com/peterbourgon/ff/v3/ffcli"
	log "github.com/sirupsen/logrus"

	"github.com/modhook/modhook/config"
	"github.com/modhook/modhook/hookgen"
)

type generateCmd struct {
	cfg config.Generator
}

func newGenerateCmd() *ffcli.Command {
	cmd := generateCmd{}

	set := flag.NewFlagSet("generate", flag.ContinueOnError)
	set.StringVar(&cmd.cfg.SourceDir, "src", ".", sourceDirHelp)
	set.StringVar(&cmd.cfg.NativeOut, "native-out", "", nativeOutHelp)
	set.StringVar(&cmd.cfg.HostOut, "host-out", "", hostOutHelp)
	set.StringVar(&cmd.cfg.ModID, "mod-id", "", modIDHelp)
	set.StringVar(&cmd.cfg.DllName, "dll", "", dllNameHelp)
	set.StringVar(&cmd.cfg.GoMod, "go-mod", "", goModHelp)
	set.IntVar(&cmd.cfg.Parallelism, "j", 0, parallelismHelp)
	set.String("config", "", configFileHelp)

	return &ffcli.Command{
		Name:       "generate",
		ShortUsage: "modhook generate -native-out <dir> -host-out <dir> [flags]",
		ShortHelp:  "Compile hook sources into Go and C# units",
		FlagSet:    set,
		Options:    ffOptions(),
		Exec:       cmd.exec,
	}
}

func (cmd *generateCmd) exec(ctx context.Context, _ []string) error {
	if err := cmd.cfg.ApplyDefaults(); err != nil {
		return err
	}
	if err := cmd.cfg.Validate(); err != nil {
		return err
	}

	res, err := hookgen.New(cmd.cfg.Options()).Run(ctx)
	if err != nil {
		return err
	}
	if len(res.Removed) > 0 {
		log.Infof("Removed %d stale host files from %s", len(res.Removed), cmd.cfg.HostOut)
	}
	return nil
}
