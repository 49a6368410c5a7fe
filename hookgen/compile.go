// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package hookgen // import "github.com/modhook/modhook/hookgen"

import (
	"go/ast"
	"go/parser"
	"go/token"
)

// fileCompiler compiles one source file into its native and host units.
type fileCompiler struct {
	unit Unit
	fset *token.FileSet
	tf   *token.File
	file *ast.File
	src  []byte

	items  []*item
	byName map[string]*item
}

// compiled holds the units generated from one source file.
type compiled struct {
	unit   Unit
	native []byte
	// host is nil when the file declares no hooks.
	host []byte
}

func compileFile(unit Unit, src []byte, dllName string) (*compiled, error) {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, unit.RelPath, src, parser.ParseComments|parser.SkipObjectResolution)
	if err != nil {
		return nil, err
	}
	c := &fileCompiler{
		unit:   unit,
		fset:   fset,
		tf:     fset.File(f.Pos()),
		file:   f,
		src:    src,
		byName: make(map[string]*item),
	}
	if err := c.collect(); err != nil {
		return nil, err
	}
	out := &compiled{unit: unit}
	if len(c.items) == 0 {
		out.native = src
		return out, nil
	}
	if out.native, err = c.native(); err != nil {
		return nil, err
	}
	if out.host, err = c.host(dllName); err != nil {
		return nil, err
	}
	return out, nil
}

// CompileFile compiles the source file at relPath, returning its native
// and host units. The host unit is nil when the file declares no hooks.
func CompileFile(modID, dllName, relPath string, src []byte) (native, host []byte, err error) {
	out, err := compileFile(NewUnit(modID, relPath), src, dllName)
	if err != nil {
		return nil, nil, err
	}
	return out.native, out.host, nil
}
