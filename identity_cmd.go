// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"runtime"

	"github.com/peterbourgon/ff/v3/ffcli"
	"golang.org/x/sync/errgroup"

	"github.com/modhook/modhook/identity"
)

type identityCmd struct {
	cachePath string
}

func newIdentityCmd() *ffcli.Command {
	cmd := identityCmd{}

	set := flag.NewFlagSet("identity", flag.ContinueOnError)
	set.StringVar(&cmd.cachePath, "cache", "", cacheHelp)
	set.String("config", "", configFileHelp)

	return &ffcli.Command{
		Name:       "identity",
		ShortUsage: "modhook identity [-cache <file>] <exe>...",
		ShortHelp:  "Print the content hash of executables",
		FlagSet:    set,
		Options:    ffOptions(),
		Exec:       cmd.exec,
	}
}

func (cmd *identityCmd) exec(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return flag.ErrHelp
	}

	hashes := make([]uint64, len(args))
	if cmd.cachePath != "" {
		// The cache file is rewritten on every miss, so lookups stay sequential.
		svc := identity.NewService(cmd.cachePath)
		for i, path := range args {
			entry, err := svc.Resolve(path)
			if err != nil {
				return err
			}
			hashes[i] = entry.Hash
		}
	} else {
		g, _ := errgroup.WithContext(ctx)
		g.SetLimit(runtime.NumCPU())
		for i, path := range args {
			g.Go(func() error {
				hash, err := identity.HashFile(path)
				if err != nil {
					return fmt.Errorf("failed to hash %s: %w", path, err)
				}
				hashes[i] = hash
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}

	for i, path := range args {
		fmt.Printf("%016X  %s\n", hashes[i], path)
	}
	return nil
}
