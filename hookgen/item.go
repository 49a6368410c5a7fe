// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package hookgen // import "github.com/modhook/modhook/hookgen"

import (
	"errors"
	"fmt"
	"go/ast"
	"go/token"

	"github.com/modhook/modhook/hookdesc"
)

// DeclError is a diagnostic attached to a declaration of a source file.
type DeclError struct {
	Pos  token.Position
	Item string
	Err  error
}

func (e *DeclError) Error() string {
	if e.Item == "" {
		return fmt.Sprintf("%s: %v", e.Pos, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Pos, e.Item, e.Err)
}

func (e *DeclError) Unwrap() error { return e.Err }

type itemKind uint8

const (
	itemFunc itemKind = iota
	itemInline
	itemStatic
	itemClass
	itemInit
	itemModsLoaded
)

// item is one hooked declaration.
type item struct {
	kind  itemKind
	names Names
	pos   token.Pos

	// main is the directive selecting the kind, dirs all directives of the
	// declaration.
	main *directive
	dirs []*directive

	set *hookdesc.HookSet
	asm []*hookdesc.AsmHook

	fn  *ast.FuncDecl
	sig signature
	// originals are the identifiers of original(...) calls in the body.
	originals []*ast.Ident

	static     *ast.ValueSpec
	staticType cType

	class *ast.StructType
}

// exports reports whether the declaration itself becomes a cgo export.
func (it *item) exports() bool {
	switch it.kind {
	case itemFunc, itemInline, itemInit, itemModsLoaded:
		return true
	}
	return false
}

// shimmed reports whether the function is exported through a shim taking
// unsafe.Pointer in place of every typed pointer. cgo cannot export Go
// struct types, so the body is renamed and called by the shim.
func (it *item) shimmed() bool {
	if it.kind != itemFunc && it.kind != itemInline {
		return false
	}
	return it.sig.hasPointer()
}

func (c *fileCompiler) declError(pos token.Pos, name string, err error) error {
	var pe *posError
	if errors.As(err, &pe) {
		pos = pe.pos
		err = pe.err
	}
	return &DeclError{Pos: c.fset.Position(pos), Item: name, Err: err}
}

// descError places a descriptor error at its position in the source file.
func (c *fileCompiler) descError(d *directive, name string, err error) error {
	pos := d.pos
	var se *hookdesc.SyntaxError
	if errors.As(err, &se) {
		pos = d.posOf(se.Offset)
	}
	return &DeclError{Pos: c.fset.Position(pos), Item: name, Err: err}
}

func (c *fileCompiler) parseSet(d *directive, name string) (*hookdesc.HookSet, error) {
	set, err := hookdesc.ParseHookSet(d.args)
	if err != nil {
		return nil, c.descError(d, name, err)
	}
	return set, nil
}

// collect finds every hooked declaration of the file in source order.
func (c *fileCompiler) collect() error {
	for _, decl := range c.file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			dirs, err := directives(d.Doc)
			if err != nil {
				return c.declError(d.Pos(), d.Name.Name, err)
			}
			if err := c.collectFunc(d, dirs); err != nil {
				return err
			}
		case *ast.GenDecl:
			if err := c.collectGen(d); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *fileCompiler) add(it *item) {
	c.items = append(c.items, it)
	c.byName[it.names.Item] = it
}

func (c *fileCompiler) collectFunc(fn *ast.FuncDecl, dirs []*directive) error {
	name := fn.Name.Name
	var main *directive
	var asm []*directive
	for _, d := range dirs {
		switch d.kind {
		case dirAsm:
			asm = append(asm, d)
		case dirFn, dirInline, dirInit, dirModsLoaded:
			if main != nil {
				return c.declError(d.pos, name,
					errors.New("hook:fn, hook:inline, hook:init and hook:modsloaded are mutually exclusive"))
			}
			main = d
		default:
			return c.declError(d.pos, name, fmt.Errorf("%s does not apply to functions", d.kind))
		}
	}
	if main == nil {
		if len(asm) > 0 {
			return c.declError(asm[0].pos, name, errors.New("hook:asm requires hook:inline"))
		}
		return nil
	}
	if len(asm) > 0 && main.kind != dirInline {
		return c.declError(asm[0].pos, name, errors.New("hook:asm requires hook:inline"))
	}

	it := &item{
		names: newNames(c.unit, name),
		pos:   fn.Pos(),
		main:  main,
		dirs:  dirs,
		fn:    fn,
	}
	switch main.kind {
	case dirInit, dirModsLoaded:
		it.kind = itemInit
		if main.kind == dirModsLoaded {
			it.kind = itemModsLoaded
		}
		if main.args != "" {
			return c.declError(main.pos, name, fmt.Errorf("%s takes no arguments", main.kind))
		}
		if fn.Recv != nil || fn.Type.TypeParams.NumFields() > 0 ||
			fn.Type.Params.NumFields() > 0 || fn.Type.Results.NumFields() > 0 {
			return c.declError(fn.Pos(), name, fmt.Errorf("%s functions must be declared as func()", main.kind))
		}
		c.add(it)
		return nil
	case dirFn:
		it.kind = itemFunc
	case dirInline:
		it.kind = itemInline
	}

	sig, err := parseSignature(fn)
	if err != nil {
		return c.declError(fn.Pos(), name, err)
	}
	it.sig = sig
	if it.set, err = c.parseSet(main, name); err != nil {
		return err
	}

	if it.kind == itemFunc {
		if fn.Body != nil {
			ast.Inspect(fn.Body, func(n ast.Node) bool {
				if call, ok := n.(*ast.CallExpr); ok {
					if id, ok := call.Fun.(*ast.Ident); ok && id.Name == "original" {
						it.originals = append(it.originals, id)
					}
				}
				return true
			})
		}
		if len(it.originals) > 0 && sig.hasFloat() {
			return c.declError(it.originals[0].Pos(), name,
				errors.New("original() cannot forward floating point values"))
		}
		c.add(it)
		return nil
	}

	if it.set.HasDeferred() {
		return c.declError(main.pos, name, errors.New("user_defined is not supported for inline hooks"))
	}
	if sig.hasFloat() {
		return c.declError(fn.Pos(), name,
			errors.New("inline hooks receive arguments in general purpose registers, floating point is not supported"))
	}
	if len(asm) != len(it.set.Entries) {
		return c.declError(main.pos, name,
			errors.New("Assembly entry data array count should match signature array length"))
	}
	for i, d := range asm {
		h, err := hookdesc.ParseAsmHook(d.args)
		if err != nil {
			return c.descError(d, name, err)
		}
		if len(h.Params) != len(sig.params) {
			return c.declError(d.pos, name, fmt.Errorf(
				"branch %s lists %d parameter registers for %d parameters",
				it.set.Entries[i].Cond, len(h.Params), len(sig.params)))
		}
		it.asm = append(it.asm, h)
	}
	c.add(it)
	return nil
}

func (c *fileCompiler) collectGen(gd *ast.GenDecl) error {
	if gd.Lparen.IsValid() {
		dirs, err := directives(gd.Doc)
		if err != nil {
			return c.declError(gd.Pos(), "", err)
		}
		if len(dirs) > 0 {
			return c.declError(dirs[0].pos, "",
				errors.New("hook directives of a grouped declaration belong on the individual spec"))
		}
	}
	for _, spec := range gd.Specs {
		doc := gd.Doc
		var name string
		switch s := spec.(type) {
		case *ast.ValueSpec:
			if gd.Lparen.IsValid() {
				doc = s.Doc
			}
			name = s.Names[0].Name
		case *ast.TypeSpec:
			if gd.Lparen.IsValid() {
				doc = s.Doc
			}
			name = s.Name.Name
		default:
			doc = nil
		}
		dirs, err := directives(doc)
		if err != nil {
			return c.declError(spec.Pos(), name, err)
		}
		if len(dirs) == 0 {
			continue
		}
		if len(dirs) > 1 {
			return c.declError(dirs[1].pos, name, errors.New("only one hook directive may be used"))
		}
		d := dirs[0]
		switch s := spec.(type) {
		case *ast.ValueSpec:
			if gd.Tok != token.VAR || d.kind != dirStatic {
				return c.declError(d.pos, name, fmt.Errorf("%s does not apply to %s declarations", d.kind, gd.Tok))
			}
			err = c.collectStatic(s, d)
		case *ast.TypeSpec:
			if d.kind != dirClass {
				return c.declError(d.pos, name, fmt.Errorf("%s does not apply to type declarations", d.kind))
			}
			err = c.collectClass(s, d)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *fileCompiler) collectStatic(s *ast.ValueSpec, d *directive) error {
	name := s.Names[0].Name
	switch {
	case len(s.Names) != 1:
		return c.declError(s.Pos(), name, errors.New("hook:static requires exactly one name"))
	case s.Type == nil:
		return c.declError(s.Pos(), name, errors.New("hook:static requires an explicit type"))
	case len(s.Values) > 0:
		return c.declError(s.Pos(), name, errors.New("hook:static variables cannot be initialized"))
	}
	t, err := classify(s.Type)
	if err != nil || (t.kind != kindPointer && t.kind != kindUnsafePointer && t.kind != kindUintptr) {
		return c.declError(s.Type.Pos(), name,
			errors.New("hook:static type must be a pointer, unsafe.Pointer or uintptr"))
	}
	set, err := c.parseSet(d, name)
	if err != nil {
		return err
	}
	if set.HasDeferred() {
		return c.declError(d.pos, name, errors.New("user_defined is not supported for statics"))
	}
	c.add(&item{
		kind:       itemStatic,
		names:      newNames(c.unit, name),
		pos:        s.Pos(),
		main:       d,
		dirs:       []*directive{d},
		set:        set,
		static:     s,
		staticType: t,
	})
	return nil
}

func (c *fileCompiler) collectClass(s *ast.TypeSpec, d *directive) error {
	name := s.Name.Name
	if s.TypeParams.NumFields() > 0 {
		return c.declError(s.Pos(), name, errors.New("generic classes cannot be hooked"))
	}
	if s.Assign.IsValid() {
		return c.declError(s.Pos(), name, errors.New("hook:class does not apply to aliases"))
	}
	st, ok := s.Type.(*ast.StructType)
	if !ok {
		return c.declError(s.Type.Pos(), name, errors.New("hook:class requires a struct type"))
	}
	set, err := c.parseSet(d, name)
	if err != nil {
		return err
	}
	if set.HasDeferred() {
		return c.declError(d.pos, name, errors.New("user_defined is not supported for classes"))
	}
	c.add(&item{
		kind:  itemClass,
		names: newNames(c.unit, name),
		pos:   s.Pos(),
		main:  d,
		dirs:  []*directive{d},
		set:   set,
		class: st,
	})
	return nil
}
