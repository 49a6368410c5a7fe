// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package hookgen compiles Go source files carrying hook directives into a
// native unit, the rewritten Go file exported to the host through cgo, and
// a host unit, the C# bindings that locate and install every hook.
package hookgen // import "github.com/modhook/modhook/hookgen"

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/zeebo/xxh3"
	"golang.org/x/sync/errgroup"
)

// Options configures a Generator.
type Options struct {
	// SourceDir is walked for .go files carrying hook directives.
	SourceDir string
	// NativeOut receives the rewritten Go files at their relative paths.
	NativeOut string
	// HostOut receives the generated C# files.
	HostOut string
	ModID   string
	// DllName is the native library the host binds to.
	DllName string
	// Parallelism bounds concurrent parsing, zero selects GOMAXPROCS.
	Parallelism int
}

// Result summarizes one generator run.
type Result struct {
	Units []Unit
	// Hooked counts the units declaring at least one hook.
	Hooked  int
	Removed []string
}

// Generator turns a source tree into native and host units.
type Generator struct {
	opts Options
	hash func(string) uint64
}

// New returns a Generator for opts.
func New(opts Options) *Generator {
	return &Generator{opts: opts, hash: xxh3.HashString}
}

// sources lists the slash separated paths of the .go files below the
// source directory in lexical order.
func (g *Generator) sources() ([]string, error) {
	var paths []string
	err := filepath.WalkDir(g.opts.SourceDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != g.opts.SourceDir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		rel, err := filepath.Rel(g.opts.SourceDir, path)
		if err != nil {
			return err
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %v", g.opts.SourceDir, err)
	}
	slices.Sort(paths)
	return paths, nil
}

// Run compiles every source file. Files are compiled concurrently, outputs
// are written sequentially in path order.
func (g *Generator) Run(ctx context.Context) (*Result, error) {
	paths, err := g.sources()
	if err != nil {
		return nil, err
	}
	units := make([]Unit, len(paths))
	byHash := make(map[uint64]string, len(paths))
	for i, rel := range paths {
		units[i] = newUnit(g.opts.ModID, rel, g.hash(rel))
		if other, ok := byHash[units[i].Hash]; ok {
			return nil, fmt.Errorf("%s and %s both hash to %X, rename one of them",
				other, rel, units[i].Hash)
		}
		byHash[units[i].Hash] = rel
	}

	parallelism := g.opts.Parallelism
	if parallelism <= 0 {
		parallelism = runtime.GOMAXPROCS(0)
	}
	results := make([]*compiled, len(units))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(parallelism)
	for i := range units {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			src, err := os.ReadFile(filepath.Join(g.opts.SourceDir, filepath.FromSlash(units[i].RelPath)))
			if err != nil {
				return err
			}
			results[i], err = compileFile(units[i], src, g.opts.DllName)
			return err
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	res := &Result{Units: units}
	keep := map[string]struct{}{ModHooksFile: {}}
	var registerHooks, loaderInit []string
	for _, out := range results {
		if err := g.writeNative(out); err != nil {
			return nil, err
		}
		if out.host == nil {
			continue
		}
		res.Hooked++
		keep[out.unit.HostFile] = struct{}{}
		if err := writeFile(filepath.Join(g.opts.HostOut, out.unit.HostFile), out.host); err != nil {
			return nil, err
		}
		registerHooks = append(registerHooks, out.unit.RegisterHooks)
		loaderInit = append(loaderInit, out.unit.ModLoaderInit)
		log.Debugf("Generated %s from %s", out.unit.HostFile, out.unit.RelPath)
	}

	slices.Sort(registerHooks)
	slices.Sort(loaderInit)
	modHooks, err := renderModHooks(g.opts.ModID, slices.Compact(registerHooks), slices.Compact(loaderInit))
	if err != nil {
		return nil, err
	}
	if err := writeFile(filepath.Join(g.opts.HostOut, ModHooksFile), modHooks); err != nil {
		return nil, err
	}
	if res.Removed, err = g.removeOrphans(keep); err != nil {
		return nil, err
	}
	log.Infof("Generated %d hook units from %d source files", res.Hooked, len(units))
	return res, nil
}

func (g *Generator) writeNative(out *compiled) error {
	return writeFile(filepath.Join(g.opts.NativeOut, filepath.FromSlash(out.unit.RelPath)), out.native)
}

// writeFile writes data unless the file already holds it.
func writeFile(path string, data []byte) error {
	if old, err := os.ReadFile(path); err == nil && string(old) == string(data) {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// isHostFile reports whether name looks like a generated per-file host
// unit.
func isHostFile(name string) bool {
	hash, ok := strings.CutSuffix(name, ".g.cs")
	if !ok || hash == "" {
		return false
	}
	_, err := strconv.ParseUint(hash, 16, 64)
	return err == nil
}

// removeOrphans deletes generated host files whose source is gone.
func (g *Generator) removeOrphans(keep map[string]struct{}) ([]string, error) {
	entries, err := os.ReadDir(g.opts.HostOut)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var removed []string
	for _, e := range entries {
		if e.IsDir() || !isHostFile(e.Name()) {
			continue
		}
		if _, ok := keep[e.Name()]; ok {
			continue
		}
		if err := os.Remove(filepath.Join(g.opts.HostOut, e.Name())); err != nil {
			return removed, err
		}
		log.Infof("Removed stale %s", e.Name())
		removed = append(removed, e.Name())
	}
	return removed, nil
}
