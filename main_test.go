// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modhook/modhook/hookgen"
	"github.com/modhook/modhook/identity"
)

const hookSource = "package hooks\n\n//hook:fn static_offset(0x10)\nfunc update() {}\n"

func run(t *testing.T, args ...string) error {
	t.Helper()
	var rootArgs rootArgs
	return newRootCmd(&rootArgs).ParseAndRun(context.Background(), args)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func hookProject(t *testing.T) (src, native, host string) {
	t.Helper()
	root := t.TempDir()
	src = filepath.Join(root, "src")
	writeFile(t, filepath.Join(src, "go.mod"), "module example.com/arena-hooks\n\ngo 1.25.0\n")
	writeFile(t, filepath.Join(src, "player.go"), hookSource)
	return src, filepath.Join(root, "native"), filepath.Join(root, "host")
}

func TestGenerateCommand(t *testing.T) {
	src, native, host := hookProject(t)

	require.NoError(t, run(t, "-v", "generate",
		"-src", src, "-native-out", native, "-host-out", host, "-j", "1"))

	unit := hookgen.NewUnit("arena_hooks", "player.go")
	out, err := os.ReadFile(filepath.Join(host, unit.HostFile))
	require.NoError(t, err)
	assert.Contains(t, string(out), "namespace arena_hooks\n")
	assert.Contains(t, string(out), `const string __DllName = "arena-hooks";`)
	assert.FileExists(t, filepath.Join(host, hookgen.ModHooksFile))
	assert.FileExists(t, filepath.Join(native, "player.go"))
}

func TestGenerateFromConfigFileAndEnv(t *testing.T) {
	src, native, host := hookProject(t)
	cfg := filepath.Join(t.TempDir(), "modhook.conf")
	writeFile(t, cfg, "src "+src+"\nnative-out "+native+"\nmod-id Arena.Hooks\n")
	t.Setenv("MODHOOK_HOST_OUT", host)

	require.NoError(t, run(t, "generate", "-config", cfg))

	unit := hookgen.NewUnit("Arena.Hooks", "player.go")
	assert.FileExists(t, filepath.Join(host, unit.HostFile))
}

func TestGenerateRequiresOutputs(t *testing.T) {
	src, _, _ := hookProject(t)
	require.Error(t, run(t, "generate", "-src", src))
}

func TestIdentityCommand(t *testing.T) {
	dir := t.TempDir()
	exe := filepath.Join(dir, "game.exe")
	writeFile(t, exe, "MZ not really")
	cache := filepath.Join(dir, identity.CacheFileName)

	require.NoError(t, run(t, "identity", exe))
	assert.NoFileExists(t, cache)

	require.NoError(t, run(t, "identity", "-cache", cache, exe))
	assert.FileExists(t, cache)

	require.Error(t, run(t, "identity", filepath.Join(dir, "missing.exe")))
	assert.ErrorIs(t, run(t, "identity"), flag.ErrHelp)
}

func TestInspectionCommandsRejectBadInput(t *testing.T) {
	dir := t.TempDir()
	notPE := filepath.Join(dir, "game.exe")
	writeFile(t, notPE, "definitely not an executable")

	require.Error(t, run(t, "vtables", notPE))
	require.Error(t, run(t, "resolve", notPE, "0x1000"))
	require.Error(t, run(t, "resolve", notPE, "twelve"))
	assert.ErrorIs(t, run(t, "resolve", notPE), flag.ErrHelp)
}

func TestRootWithoutSubcommand(t *testing.T) {
	assert.ErrorIs(t, run(t), flag.ErrHelp)
	require.NoError(t, run(t, "version"))
}
