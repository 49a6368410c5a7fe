// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package config holds the validated configuration of the hook generator.
package config // import "github.com/modhook/modhook/config"

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"unicode"

	"golang.org/x/mod/modfile"

	"github.com/modhook/modhook/hookgen"
)

// Generator is the configuration of one generator run.
type Generator struct {
	// SourceDir holds the hook sources.
	SourceDir string
	// NativeOut receives the rewritten Go package.
	NativeOut string
	// HostOut receives the C# bindings.
	HostOut string
	// ModID is the root namespace of the host mod. Derived from go.mod when
	// empty.
	ModID string
	// DllName is the native library name. Derived from go.mod when empty.
	DllName string
	// GoMod locates the module file used for defaults.
	GoMod       string
	Parallelism int
}

// ModulePath reads the module path declared by the go.mod file at path.
func ModulePath(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	mp := modfile.ModulePath(data)
	if mp == "" {
		return "", fmt.Errorf("%s declares no module path", path)
	}
	return mp, nil
}

// identifier turns s into a C# identifier.
func identifier(s string) string {
	var b strings.Builder
	for i, r := range s {
		switch {
		case unicode.IsLetter(r) || r == '_':
			b.WriteRune(r)
		case unicode.IsDigit(r):
			if i == 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

func validIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if !(unicode.IsLetter(r) || r == '_' || (i > 0 && unicode.IsDigit(r))) {
			return false
		}
	}
	return true
}

// ApplyDefaults fills ModID and DllName from the module path and the
// parallelism from the number of CPUs.
func (c *Generator) ApplyDefaults() error {
	if c.Parallelism <= 0 {
		c.Parallelism = runtime.NumCPU()
	}
	if c.ModID != "" && c.DllName != "" {
		return nil
	}
	goMod := c.GoMod
	if goMod == "" {
		goMod = filepath.Join(c.SourceDir, "go.mod")
	}
	mp, err := ModulePath(goMod)
	if err != nil {
		return fmt.Errorf("failed to derive defaults from go.mod: %v", err)
	}
	name := path.Base(mp)
	if c.ModID == "" {
		c.ModID = identifier(name)
	}
	if c.DllName == "" {
		c.DllName = name
	}
	return nil
}

// Validate returns an error describing the first invalid value.
func (c *Generator) Validate() error {
	if c.SourceDir == "" {
		return errors.New("source directory is required")
	}
	if c.NativeOut == "" || c.HostOut == "" {
		return errors.New("native and host output directories are required")
	}
	if sameDir(c.SourceDir, c.NativeOut) {
		return errors.New("native output directory must differ from the source directory")
	}
	for _, part := range strings.Split(c.ModID, ".") {
		if !validIdentifier(part) {
			return fmt.Errorf("mod id %q is not a valid namespace", c.ModID)
		}
	}
	if c.DllName == "" || strings.ContainsAny(c.DllName, `"\/`) {
		return fmt.Errorf("invalid library name %q", c.DllName)
	}
	if c.Parallelism < 1 {
		return fmt.Errorf("parallelism %d must be positive", c.Parallelism)
	}
	return nil
}

func sameDir(a, b string) bool {
	aa, err1 := filepath.Abs(a)
	bb, err2 := filepath.Abs(b)
	return err1 == nil && err2 == nil && aa == bb
}

// Options converts the configuration into generator options.
func (c *Generator) Options() hookgen.Options {
	return hookgen.Options{
		SourceDir:   c.SourceDir,
		NativeOut:   c.NativeOut,
		HostOut:     c.HostOut,
		ModID:       c.ModID,
		DllName:     c.DllName,
		Parallelism: c.Parallelism,
	}
}
