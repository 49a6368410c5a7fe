//go:build !windows

// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package image // import "github.com/modhook/modhook/image"

import (
	"os"

	"github.com/modhook/modhook/libhook"
)

// Current returns the geometry of the main executable of this process.
func Current() (*Module, error) {
	return FromProcess(libhook.PID(os.Getpid()))
}
