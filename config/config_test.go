// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeGoMod(t *testing.T, dir, module string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.mod"),
		[]byte("module "+module+"\n\ngo 1.25.0\n"), 0o644))
}

func TestApplyDefaults(t *testing.T) {
	dir := t.TempDir()
	writeGoMod(t, dir, "github.com/someone/my-game-mod")

	cfg := Generator{SourceDir: dir, NativeOut: "native", HostOut: "host"}
	require.NoError(t, cfg.ApplyDefaults())
	assert.Equal(t, "my_game_mod", cfg.ModID)
	assert.Equal(t, "my-game-mod", cfg.DllName)
	assert.Positive(t, cfg.Parallelism)
	require.NoError(t, cfg.Validate())

	opts := cfg.Options()
	assert.Equal(t, "my_game_mod", opts.ModID)
	assert.Equal(t, dir, opts.SourceDir)
}

func TestApplyDefaultsKeepsExplicitValues(t *testing.T) {
	cfg := Generator{SourceDir: t.TempDir(), ModID: "Game.Mod", DllName: "game", Parallelism: 3}
	require.NoError(t, cfg.ApplyDefaults())
	assert.Equal(t, "Game.Mod", cfg.ModID)
	assert.Equal(t, 3, cfg.Parallelism)
}

func TestApplyDefaultsMissingGoMod(t *testing.T) {
	cfg := Generator{SourceDir: t.TempDir()}
	require.Error(t, cfg.ApplyDefaults())
}

func TestModulePath(t *testing.T) {
	dir := t.TempDir()
	writeGoMod(t, dir, "example.com/hooks")
	mp, err := ModulePath(filepath.Join(dir, "go.mod"))
	require.NoError(t, err)
	assert.Equal(t, "example.com/hooks", mp)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.mod"), []byte("go 1.25.0\n"), 0o644))
	_, err = ModulePath(filepath.Join(dir, "go.mod"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := Generator{
		SourceDir:   "src",
		NativeOut:   "native",
		HostOut:     "host",
		ModID:       "Game.Mod",
		DllName:     "game",
		Parallelism: 1,
	}
	require.NoError(t, valid.Validate())

	tests := map[string]func(*Generator){
		"no source":         func(c *Generator) { c.SourceDir = "" },
		"no host output":    func(c *Generator) { c.HostOut = "" },
		"native over src":   func(c *Generator) { c.NativeOut = "src" },
		"bad namespace":     func(c *Generator) { c.ModID = "Game..Mod" },
		"digit namespace":   func(c *Generator) { c.ModID = "1Game" },
		"quoted dll":        func(c *Generator) { c.DllName = `ga"me` },
		"zero parallelism":  func(c *Generator) { c.Parallelism = 0 },
		"empty library":     func(c *Generator) { c.DllName = "" },
		"dashed identifier": func(c *Generator) { c.ModID = "my-mod" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := valid
			mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestIdentifier(t *testing.T) {
	assert.Equal(t, "my_mod", identifier("my-mod"))
	assert.Equal(t, "_2d", identifier("2d"))
	assert.Equal(t, "Hooks", identifier("Hooks"))
}
