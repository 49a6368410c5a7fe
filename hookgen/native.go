// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package hookgen // import "github.com/modhook/modhook/hookgen"

import (
	"bytes"
	"errors"
	"fmt"
	"go/ast"
	"go/format"
	"go/parser"
	"go/token"
	"go/types"
	"slices"
	"strings"

	"golang.org/x/tools/go/ast/astutil"
)

const (
	generatedHeader = "// Code generated by modhook. DO NOT EDIT.\n\n"

	xsyncImport  = "github.com/modhook/modhook/libhook/xsync"
	hostrtImport = "github.com/modhook/modhook/hostrt"
)

// edit replaces src[start:end] with text.
type edit struct {
	start, end int
	text       string
}

func applyEdits(src []byte, edits []edit) []byte {
	slices.SortStableFunc(edits, func(a, b edit) int {
		if a.start != b.start {
			return b.start - a.start
		}
		return b.end - a.end
	})
	out := slices.Clone(src)
	for _, e := range edits {
		out = slices.Concat(out[:e.start], []byte(e.text), out[e.end:])
	}
	return out
}

func (c *fileCompiler) offset(p token.Pos) int {
	return c.tf.Offset(p)
}

// lineEdit removes a full line comment including its line break, or
// replaces it with text.
func (c *fileCompiler) lineEdit(cm *ast.Comment, text string) edit {
	start, end := c.offset(cm.Slash), c.offset(cm.End())
	if text != "" {
		return edit{start: start, end: end, text: text}
	}
	s := start
	for s > 0 && (c.src[s-1] == ' ' || c.src[s-1] == '\t') {
		s--
	}
	if s > 0 && c.src[s-1] != '\n' {
		return edit{start: start, end: end}
	}
	switch {
	case bytes.HasPrefix(c.src[end:], []byte("\r\n")):
		end += 2
	case bytes.HasPrefix(c.src[end:], []byte("\n")):
		end++
	}
	return edit{start: s, end: end}
}

// native rewrites the source file into its native unit.
func (c *fileCompiler) native() ([]byte, error) {
	var edits []edit
	for _, it := range c.items {
		for _, d := range it.dirs {
			for i, cm := range d.comments {
				if d == it.main && i == 0 && it.exports() && !it.shimmed() {
					edits = append(edits, c.lineEdit(cm, "//export "+it.names.Item))
					continue
				}
				edits = append(edits, c.lineEdit(cm, ""))
			}
		}
		if it.shimmed() {
			edits = append(edits, edit{
				start: c.offset(it.fn.Name.Pos()),
				end:   c.offset(it.fn.Name.End()),
				text:  it.names.Body,
			})
		}
		for _, id := range it.originals {
			edits = append(edits, edit{
				start: c.offset(id.Pos()),
				end:   c.offset(id.End()),
				text:  it.names.CallWrapper,
			})
		}
		switch it.kind {
		case itemStatic:
			edits = append(edits, edit{
				start: c.offset(it.static.Type.Pos()),
				end:   c.offset(it.static.Type.End()),
				text:  "xsync.Slot[" + it.staticType.goExpr + "]",
			})
		case itemClass:
			at := c.offset(it.class.Fields.Opening) + 1
			edits = append(edits, edit{start: at, end: at, text: "\n\t__cpp_vtbl uintptr"})
		}
	}
	creates, err := c.createHookEdits()
	if err != nil {
		return nil, err
	}
	edits = append(edits, creates...)

	gen := &nativeGen{}
	for _, it := range c.items {
		gen.item(it)
	}
	if len(c.items) > 0 && !c.importsC() {
		at := c.offset(c.file.Name.End())
		edits = append(edits, edit{start: at, end: at, text: "\n\nimport \"C\""})
	}
	edits = append(edits,
		edit{start: 0, end: 0, text: generatedHeader},
		edit{start: len(c.src), end: len(c.src), text: gen.String()})

	out := applyEdits(c.src, edits)

	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, c.unit.RelPath, out, parser.ParseComments|parser.SkipObjectResolution)
	if err != nil {
		return nil, fmt.Errorf("rewritten %s does not parse: %w", c.unit.RelPath, err)
	}
	if gen.xsync {
		astutil.AddImport(fset, f, xsyncImport)
	}
	if gen.hostrt {
		astutil.AddImport(fset, f, hostrtImport)
	}
	if gen.unsafe {
		astutil.AddImport(fset, f, "unsafe")
	}
	var buf bytes.Buffer
	if err := format.Node(&buf, fset, f); err != nil {
		return nil, fmt.Errorf("formatting %s: %w", c.unit.RelPath, err)
	}
	return buf.Bytes(), nil
}

func (c *fileCompiler) importsC() bool {
	for _, imp := range c.file.Imports {
		if imp.Path.Value == `"C"` {
			return true
		}
	}
	return false
}

// createHookEdits rewrites createHook(Name, addr) into the generated
// creation wrapper of the user_defined hook Name.
func (c *fileCompiler) createHookEdits() ([]edit, error) {
	var edits []edit
	var err error
	ast.Inspect(c.file, func(n ast.Node) bool {
		if err != nil {
			return false
		}
		call, ok := n.(*ast.CallExpr)
		if !ok {
			return true
		}
		fun, ok := call.Fun.(*ast.Ident)
		if !ok || fun.Name != "createHook" {
			return true
		}
		if len(call.Args) != 2 {
			err = c.declError(call.Pos(), "", errors.New("createHook expects a hook and an address"))
			return false
		}
		target, ok := call.Args[0].(*ast.Ident)
		it := c.byName[identName(target)]
		if !ok || it == nil || it.kind != itemFunc || !it.set.HasDeferred() {
			err = c.declError(call.Args[0].Pos(), "",
				fmt.Errorf("createHook target %s is not a user_defined hook of this file",
					types.ExprString(call.Args[0])))
			return false
		}
		edits = append(edits, edit{
			start: c.offset(fun.Pos()),
			end:   c.offset(call.Args[1].Pos()),
			text:  it.names.CreateWrapper + "(",
		})
		return true
	})
	return edits, err
}

func identName(id *ast.Ident) string {
	if id == nil {
		return ""
	}
	return id.Name
}

// nativeGen renders the declarations appended to a native unit.
type nativeGen struct {
	strings.Builder
	xsync, hostrt, unsafe bool
}

func (g *nativeGen) printf(format string, args ...any) {
	fmt.Fprintf(g, format, args...)
}

// slot declares a once-published uintptr together with its exported setter.
func (g *nativeGen) slot(slot, setter, param string) {
	g.xsync = true
	g.printf("\nvar %s xsync.Slot[uintptr]\n", slot)
	g.publish(slot, setter, param, param)
}

func (g *nativeGen) publish(slot, setter, param, value string) {
	g.hostrt = true
	g.printf("\n//export %s\nfunc %s(%s uintptr) {\n\thostrt.Publish(&%s, %s, %q)\n}\n",
		setter, setter, param, slot, value, slot)
}

func (g *nativeGen) item(it *item) {
	n := it.names
	if it.shimmed() {
		g.exportShim(it)
	}
	switch it.kind {
	case itemFunc:
		g.slot(n.Slot, n.Setter, "p")
		if !it.sig.hasFloat() {
			g.callWrapper(it)
		}
		if it.set.HasDeferred() {
			g.slot(n.UserCallback, n.UserSetter, "cb")
			g.printf("\nfunc %s(addr uintptr) {\n\thostrt.InvokeCallback(%s.MustGet(), addr)\n}\n",
				n.CreateWrapper, n.UserCallback)
		}
	case itemStatic:
		value := "p"
		switch it.staticType.kind {
		case kindPointer:
			g.unsafe = true
			value = "(" + it.staticType.goExpr + ")(unsafe.Pointer(p))"
		case kindUnsafePointer:
			g.unsafe = true
			value = "unsafe.Pointer(p)"
		}
		// The rewritten declaration is the slot.
		g.xsync = true
		g.publish(n.Item, n.Setter, "p", value)
	case itemClass:
		g.slot(n.VtableSlot, n.VtableSetter, "p")
	}
}

// exportShim exports the item name with typed pointers passed as
// unsafe.Pointer and forwards to the renamed body.
func (g *nativeGen) exportShim(it *item) {
	n := it.names
	g.unsafe = true
	params := make([]string, 0, len(it.sig.params))
	args := make([]string, 0, len(it.sig.params))
	for i, p := range it.sig.params {
		name := fmt.Sprintf("a%d", i)
		if p.typ.kind == kindPointer {
			params = append(params, name+" unsafe.Pointer")
			args = append(args, "("+p.typ.goExpr+")("+name+")")
			continue
		}
		params = append(params, name+" "+p.typ.goExpr)
		args = append(args, name)
	}
	call := n.Body + "(" + strings.Join(args, ", ") + ")"
	g.printf("\n//export %s\nfunc %s(%s)", n.Item, n.Item, strings.Join(params, ", "))
	switch {
	case it.sig.result == nil:
		g.printf(" {\n\t%s\n}\n", call)
	case it.sig.result.kind == kindPointer:
		g.printf(" unsafe.Pointer {\n\treturn unsafe.Pointer(%s)\n}\n", call)
	default:
		g.printf(" %s {\n\treturn %s\n}\n", it.sig.result.goExpr, call)
	}
}

// callWrapper forwards original(...) calls to the published original.
func (g *nativeGen) callWrapper(it *item) {
	n := it.names
	params := make([]string, 0, len(it.sig.params))
	args := []string{n.Slot + ".MustGet()"}
	for i, p := range it.sig.params {
		name := fmt.Sprintf("a%d", i)
		params = append(params, name+" "+p.typ.goExpr)
		args = append(args, g.toUintptr(name, p.typ))
	}
	g.hostrt = true
	g.printf("\nfunc %s(%s)", n.CallWrapper, strings.Join(params, ", "))
	if it.sig.result == nil {
		g.printf(" {\n\thostrt.CallOriginal(%s)\n}\n", strings.Join(args, ", "))
		return
	}
	g.printf(" %s {\n\tr := hostrt.CallOriginal(%s)\n\treturn %s\n}\n",
		it.sig.result.goExpr, strings.Join(args, ", "), g.fromUintptr("r", *it.sig.result))
}

func (g *nativeGen) toUintptr(v string, t cType) string {
	switch t.kind {
	case kindBool:
		return "hostrt.BoolArg(" + v + ")"
	case kindPointer:
		g.unsafe = true
		return "uintptr(unsafe.Pointer(" + v + "))"
	case kindUintptr:
		return v
	}
	return "uintptr(" + v + ")"
}

func (g *nativeGen) fromUintptr(v string, t cType) string {
	switch t.kind {
	case kindBool:
		return v + " != 0"
	case kindPointer:
		g.unsafe = true
		return "(" + t.goExpr + ")(unsafe.Pointer(" + v + "))"
	case kindUnsafePointer:
		g.unsafe = true
		return "unsafe.Pointer(" + v + ")"
	case kindUintptr:
		return v
	}
	return t.goExpr + "(" + v + ")"
}
