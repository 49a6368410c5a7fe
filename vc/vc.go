// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package vc provides buildtime information.
package vc // import "github.com/modhook/modhook/vc"

import (
	"fmt"
	"runtime/debug"
)

var (
	// The following variables are going to be set at link time using ldflags
	// and can be referenced later in the program.

	// revision of the generator
	revision = ""
	// buildTimestamp, timestamp of the build
	buildTimestamp = ""
	// version in vX.Y.Z{-N-abbrev} format (via git-describe --tags)
	version = ""
)

// buildSetting returns a VCS setting recorded by the go command, used when
// the binary was built without ldflags.
func buildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == key {
			return s.Value
		}
	}
	return ""
}

// Revision of the generator.
func Revision() string {
	if revision == "" {
		return buildSetting("vcs.revision")
	}
	return revision
}

// BuildTimestamp returns the timestamp of the build.
func BuildTimestamp() string {
	if buildTimestamp == "" {
		return buildSetting("vcs.time")
	}
	return buildTimestamp
}

// Version in vX.Y.Z{-N-abbrev} format.
func Version() string {
	if version == "" {
		if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
			return info.Main.Version
		}
		return "(devel)"
	}
	return version
}

// String summarizes the build for version output and log lines.
func String() string {
	return fmt.Sprintf("%s (revision %s, build timestamp %s)", Version(), Revision(), BuildTimestamp())
}
