// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"flag"
	"fmt"

	"github.com/modhook/modhook/image"
	"github.com/modhook/modhook/libhook"
	"github.com/modhook/modhook/remotememory"
)

const pidHelp = "Read the image mapped in this running process instead of the file."

// target is the image a subcommand inspects: either an executable laid out
// from disk or the same executable mapped in a live process.
type target struct {
	pid uint
}

func (t *target) register(set *flag.FlagSet) {
	set.UintVar(&t.pid, "pid", 0, pidHelp)
}

func (t *target) open(exePath string) (remotememory.RemoteMemory, *image.Module, error) {
	if t.pid == 0 {
		f, err := image.OpenPE(exePath)
		if err != nil {
			return remotememory.RemoteMemory{}, nil, err
		}
		return f.Memory, &f.Module, nil
	}

	pid := libhook.PID(t.pid)
	mem := remotememory.NewProcessVirtualMemory(pid)
	mod, err := image.FromProcessImage(pid, exePath, mem)
	if err != nil {
		return remotememory.RemoteMemory{}, nil, fmt.Errorf("failed to attach: %w", err)
	}
	return mem, mod, nil
}
