// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package hookgen // import "github.com/modhook/modhook/hookgen"

import (
	"bytes"
	_ "embed"
	"fmt"
	"strconv"
	"strings"
	"text/template"

	"github.com/modhook/modhook/hookdesc"
)

//go:embed host.cs.template
var hostTemplateText string

//go:embed modhooks.cs.template
var modHooksTemplateText string

// ModHooksFile is the host file listing every per-file entry point.
const ModHooksFile = "ModHooks.g.cs"

func indent(depth int, line string) string {
	if line == "" {
		return ""
	}
	return strings.Repeat("    ", depth) + line
}

var (
	hostTemplate = template.Must(template.New("host").
			Funcs(template.FuncMap{"indent": indent}).
			Parse(hostTemplateText))
	modHooksTemplate = template.Must(template.New("modhooks").Parse(modHooksTemplateText))
)

// builtinResolvers are provided by the native utilities class.
var builtinResolvers = map[string]struct{}{
	"get_address":                 {},
	"get_address_from_scan":       {},
	"get_address_may_thunk":       {},
	"get_indirect_address_short":  {},
	"get_indirect_address_short2": {},
	"get_indirect_address_long":   {},
	"get_indirect_address_long4":  {},
}

// Functions default to following thunks, bounded to the image for scanner
// hits. Data is never thunk chased.
const (
	defaultCodeResolver = "get_address_may_thunk"
	defaultScanResolver = "get_address_from_scan"
	defaultDataResolver = "get_address"
)

type csDelegate struct {
	Attribute string
	Return    string
	Name      string
	Params    string
}

type csExtern struct {
	Visibility string
	Return     string
	Name       string
	Params     string
}

type csMethod struct {
	Name string
	Body []string
}

type hostModel struct {
	Unit    Unit
	DllName string

	Delegates  []csDelegate
	Externs    []csExtern
	Fields     []string
	Register   []string
	Methods    []csMethod
	LoaderInit []string
}

// csBlock collects indented host statements.
type csBlock struct {
	lines []string
	depth int
}

func (b *csBlock) add(format string, args ...any) {
	b.lines = append(b.lines, indent(b.depth, fmt.Sprintf(format, args...)))
}

func (b *csBlock) open() {
	b.add("{")
	b.depth++
}

func (b *csBlock) close(suffix string) {
	b.depth--
	b.add("}%s", suffix)
}

func csString(s string) string {
	return strconv.Quote(s)
}

type hostGen struct {
	model     hostModel
	resolvers map[string]struct{}
}

func (g *hostGen) resolverCall(name, def, arg string) string {
	if name == "" {
		name = def
	}
	if _, ok := builtinResolvers[name]; ok {
		return g.model.Unit.Utilities + "." + name + "(" + arg + ")"
	}
	if _, ok := g.resolvers[name]; !ok {
		g.resolvers[name] = struct{}{}
		g.extern("internal", "nuint", name, "nuint offset")
	}
	return g.model.Unit.ClassPath + "." + name + "(" + arg + ")"
}

func (g *hostGen) extern(visibility, ret, name, params string) {
	g.model.Externs = append(g.model.Externs, csExtern{
		Visibility: visibility, Return: ret, Name: name, Params: params,
	})
}

// chain emits the executable hash dispatch around the branches of set.
func (g *hostGen) chain(b *csBlock, set *hookdesc.HookSet,
	branch func(b *csBlock, i int, e hookdesc.Entry) error) error {
	if len(set.Entries) == 1 && set.Entries[0].Cond.Kind != hookdesc.CondNamed &&
		set.Entries[0].Cond.Kind != hookdesc.CondNumeric {
		return branch(b, 0, set.Entries[0])
	}
	u := g.model.Unit
	for i, e := range set.Entries {
		var cond string
		switch e.Cond.Kind {
		case hookdesc.CondNamed:
			cond = fmt.Sprintf("%s.get_executable_hash() == %s.Mod.%s", u.Utilities, u.ModID, e.Cond.Name)
		case hookdesc.CondNumeric:
			cond = fmt.Sprintf("%s.get_executable_hash() == %dUL", u.Utilities, e.Cond.Value)
		case hookdesc.CondDefault:
		default:
			return fmt.Errorf("unconditional entry %s inside a conditional hook set", e.Decl)
		}
		switch {
		case i == 0:
			b.add("if (%s)", cond)
		case cond == "":
			b.add("else")
		default:
			b.add("else if (%s)", cond)
		}
		b.open()
		if err := branch(b, i, e); err != nil {
			return err
		}
		b.close("")
	}
	return nil
}

// locator describes how one item kind binds addresses.
type locator struct {
	// resolver and scanResolver are used for static and scanned offsets
	// when the declaration names none.
	resolver     string
	scanResolver string
	// key opens the shared scan calls, either a generic delegate argument
	// or a leading name argument.
	key string
}

// locate emits the statements binding addr for one branch and calls body
// with the expression of the resolved address.
func (g *hostGen) locate(b *csBlock, n Names, decl hookdesc.Declaration, l locator,
	body func(b *csBlock, addr string)) {
	switch d := decl.(type) {
	case hookdesc.StaticOffset:
		b.add("var addr_%s = %s;", n.Item, g.resolverCall("", l.resolver, fmt.Sprintf("0x%x", d.Offset)))
		body(b, "addr_"+n.Item)
	case hookdesc.DynamicOffset:
		if d.SharedScan == hookdesc.NoSharedScan {
			b.add("SigScan(%s, %s, x =>", csString(d.Pattern), csString(n.ScanName))
			b.open()
			b.add("var addr = %s;", g.resolverCall(d.Resolver, l.scanResolver, "x"))
			body(b, "addr")
			b.close(");")
			return
		}
		if d.SharedScan == hookdesc.Producer {
			b.add("_sharedScans!.AddScan%s%s);", l.key, csString(d.Pattern))
		}
		b.add("_sharedScans!.CreateListener%sx =>", l.key)
		b.open()
		b.add("var addr_relative = x - _baseAddress;")
		b.add("var addr = %s;", g.resolverCall(d.Resolver, l.scanResolver, "(nuint)addr_relative"))
		body(b, "addr")
		b.close(");")
	}
}

func (g *hostGen) item(it *item) error {
	switch it.kind {
	case itemFunc:
		return g.function(it)
	case itemInline:
		return g.inline(it)
	case itemStatic:
		return g.static(it, it.names.Setter)
	case itemClass:
		return g.static(it, it.names.VtableSetter)
	case itemInit:
		g.extern("public", "void", it.names.Item, "")
		g.model.Register = append(g.model.Register, it.names.FunctionPath+"();")
	case itemModsLoaded:
		g.extern("public", "void", it.names.Item, "")
		g.model.LoaderInit = append(g.model.LoaderInit, it.names.FunctionPath+"();")
	}
	return nil
}

func (g *hostGen) function(it *item) error {
	n, sig := it.names, it.sig
	attr := "[X64.Function(X64.CallingConventions.Microsoft)]"
	for _, e := range it.set.Entries {
		if d, ok := e.Decl.(hookdesc.DynamicOffset); ok && d.CallingConvention == hookdesc.UnknownConvention {
			attr = ""
		}
	}
	g.model.Delegates = append(g.model.Delegates, csDelegate{
		Attribute: attr, Return: sig.csResult(), Name: n.Delegate, Params: sig.csParams(),
	})
	g.extern("public", sig.csResult(), n.Item, sig.csParams())
	fnptr := sig.csFunctionPointer()
	g.extern("internal", "void", n.Setter, fnptr+" p")
	if it.set.HasDeferred() {
		g.extern("internal", "void", n.UserSetter, "nuint cb")
	}
	g.model.Fields = append(g.model.Fields,
		fmt.Sprintf("private Reloaded.Hooks.Definitions.IHook<%s>? %s;", n.DelegatePath, n.HookField))

	create := func(b *csBlock, addr string) {
		b.add("%s = _hooks!.CreateHook<%s>(%s, (long)%s).Activate();",
			n.HookField, n.DelegatePath, n.FunctionPath, addr)
		b.add("%s((%s)%s.OriginalFunctionWrapperAddress);", n.SetterPath, fnptr, n.HookField)
	}
	b := &csBlock{}
	err := g.chain(b, it.set, func(b *csBlock, _ int, e hookdesc.Entry) error {
		if _, ok := e.Decl.(hookdesc.Deferred); ok {
			b.add("%s.%s((nuint)(delegate* unmanaged[Stdcall]<nuint, void>)&%s);",
				g.model.Unit.ClassPath, n.UserSetter, n.UserDefined)
			return nil
		}
		g.locate(b, n, e.Decl, locator{defaultCodeResolver, defaultScanResolver, "<" + n.DelegatePath + ">("}, create)
		return nil
	})
	if err != nil {
		return err
	}
	g.model.Register = append(g.model.Register, b.lines...)

	if it.set.HasDeferred() {
		g.model.Methods = append(g.model.Methods, csMethod{
			Name: n.UserDefined,
			Body: []string{
				fmt.Sprintf("_instance!.%s = _hooks!.CreateHook<%s>(%s, (long)addr).Activate();",
					n.HookField, n.DelegatePath, n.FunctionPath),
				fmt.Sprintf("%s((%s)_instance!.%s.OriginalFunctionWrapperAddress);",
					n.SetterPath, fnptr, n.HookField),
			},
		})
	}
	return nil
}

func registerList(regs []hookdesc.Register) string {
	parts := make([]string, 0, len(regs))
	for _, r := range regs {
		parts = append(parts, "X64.FunctionAttribute.Register."+r.String())
	}
	return "new X64.FunctionAttribute.Register[] { " + strings.Join(parts, ", ") + " }"
}

func (g *hostGen) inline(it *item) error {
	n, sig := it.names, it.sig
	g.extern("public", sig.csResult(), n.Item, sig.csParams())
	g.model.Fields = append(g.model.Fields,
		fmt.Sprintf("private Reloaded.Hooks.Definitions.IAsmHook? %s;", n.AsmField))
	for i, e := range it.set.Entries {
		h := it.asm[i]
		sfx := e.Cond.Suffix()
		g.model.Delegates = append(g.model.Delegates, csDelegate{
			Attribute: fmt.Sprintf("[X64.Function(%s, X64.FunctionAttribute.Register.%s, %t, %s)]",
				registerList(h.Params), h.Return, h.ShadowSpace, registerList(h.CalleeSaved)),
			Return: sig.csResult(),
			Name:   n.BranchDelegate(sfx),
			Params: sig.csParams(),
		})
		g.model.Fields = append(g.model.Fields,
			fmt.Sprintf("private Reloaded.Hooks.Definitions.IReverseWrapper<%s>? %s;",
				n.BranchDelegatePath(sfx), n.WrapField(sfx)))
	}

	b := &csBlock{}
	err := g.chain(b, it.set, func(b *csBlock, i int, e hookdesc.Entry) error {
		h := it.asm[i]
		sfx := e.Cond.Suffix()
		l := locator{defaultCodeResolver, defaultScanResolver, "<" + n.BranchDelegatePath(sfx) + ">("}
		g.locate(b, n, e.Decl, l, func(b *csBlock, addr string) {
			if h.Mode == hookdesc.DoNotExecuteOriginal {
				b.add("// WARNING: DoNotExecuteOriginal never runs the replaced instructions.")
			}
			b.add("string[] function_%s =", n.Item)
			b.open()
			b.add(`"use64",`)
			for _, line := range asmLines(h.Before) {
				b.add("%s,", csString(line))
			}
			b.add(`$"{_hooks!.Utilities.GetAbsoluteCallMnemonics(%s, out %s)}",`,
				n.FunctionPath, n.WrapField(sfx))
			for _, line := range asmLines(h.After) {
				b.add("%s,", csString(line))
			}
			b.close(";")
			b.add("%s = _hooks!.CreateAsmHook(function_%s, (long)%s, "+
				"Reloaded.Hooks.Definitions.Enums.AsmHookBehaviour.%s).Activate();",
				n.AsmField, n.Item, addr, h.Mode)
		})
		return nil
	})
	if err != nil {
		return err
	}
	g.model.Register = append(g.model.Register, b.lines...)
	return nil
}

// asmLines splits instruction text into trimmed non-empty lines.
func asmLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// static binds a resolved address to a static or class vtable setter.
func (g *hostGen) static(it *item, setter string) error {
	n := it.names
	g.extern("internal", "void", setter, "nuint p")
	path := g.model.Unit.ClassPath + "." + setter
	b := &csBlock{}
	err := g.chain(b, it.set, func(b *csBlock, _ int, e hookdesc.Entry) error {
		l := locator{defaultDataResolver, defaultDataResolver, "(" + csString(n.ScanName) + ", "}
		g.locate(b, n, e.Decl, l, func(b *csBlock, addr string) {
			b.add("%s((nuint)%s);", path, addr)
		})
		return nil
	})
	if err != nil {
		return err
	}
	g.model.Register = append(g.model.Register, b.lines...)
	return nil
}

// host renders the host unit of the file.
func (c *fileCompiler) host(dllName string) ([]byte, error) {
	g := &hostGen{
		model:     hostModel{Unit: c.unit, DllName: dllName},
		resolvers: make(map[string]struct{}),
	}
	for _, it := range c.items {
		if err := g.item(it); err != nil {
			return nil, c.declError(it.pos, it.names.Item, err)
		}
	}
	var buf bytes.Buffer
	if err := hostTemplate.Execute(&buf, &g.model); err != nil {
		return nil, fmt.Errorf("failed to render %s: %v", c.unit.HostFile, err)
	}
	return buf.Bytes(), nil
}

// renderModHooks renders the list of per-file entry points.
func renderModHooks(modID string, registerHooks, loaderInit []string) ([]byte, error) {
	var buf bytes.Buffer
	err := modHooksTemplate.Execute(&buf, &struct {
		ModID         string
		RegisterHooks []string
		LoaderInit    []string
	}{modID, registerHooks, loaderInit})
	if err != nil {
		return nil, fmt.Errorf("failed to render %s: %v", ModHooksFile, err)
	}
	return buf.Bytes(), nil
}
