// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// exports-codegen generates the C# declarations of the runtime exports.
package main

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/template"
)

type JSONParam struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

type JSONExport struct {
	Name        string      `json:"name"`
	Return      string      `json:"return"`
	Params      []JSONParam `json:"params"`
	Description string      `json:"description"`
}

//go:embed exports.json
var exportsJSON []byte

//go:embed utilities.cs.template
var utilitiesTemplate string

func formatParams(params []JSONParam) string {
	parts := make([]string, 0, len(params))
	for _, p := range params {
		parts = append(parts, p.Type+" "+p.Name)
	}
	return strings.Join(parts, ", ")
}

// Generate writes the Utilities class binding every export.
func Generate(out io.Writer, modID, dllName string, exports []JSONExport) error {
	tmpl := template.New("utilities-template")

	tmpl.Funcs(map[string]any{
		"quote":  strconv.Quote,
		"params": formatParams,
	})

	var err error
	tmpl, err = tmpl.Parse(utilitiesTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse C# utilities template: %v", err)
	}

	return tmpl.Execute(out, &struct {
		ModID   string
		DllName string
		Exports []JSONExport
	}{
		ModID:   modID,
		DllName: dllName,
		Exports: exports,
	})
}

func checkUnique(exports []JSONExport) error {
	names := make(map[string]JSONExport, len(exports))

	for _, item := range exports {
		if item.Name == "" {
			return fmt.Errorf("export without name: %#v", item)
		}
		if existing, exists := names[item.Name]; exists {
			return fmt.Errorf("duplicate name: %#v and %#v", existing, item)
		}
		names[item.Name] = item
	}

	return nil
}

func loadExports() ([]JSONExport, error) {
	var entries []JSONExport
	if err := json.Unmarshal(exportsJSON, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse `exports.json`: %v", err)
	}
	if err := checkUnique(entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func generate(modID, dllName, outputPath string) error {
	entries, err := loadExports()
	if err != nil {
		return err
	}

	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %v", outputPath, err)
	}
	defer file.Close()

	if err = Generate(file, modID, dllName, entries); err != nil {
		return fmt.Errorf("failed to do C# code-gen: %v", err)
	}

	return nil
}

func main() {
	if len(os.Args) != 4 {
		_, _ = fmt.Fprintf(os.Stderr, "Usage: %s <mod id> <dll name> <output path>\n", os.Args[0])
		os.Exit(1)
	}

	if err := generate(os.Args[1], os.Args[2], os.Args[3]); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
