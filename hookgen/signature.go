// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package hookgen // import "github.com/modhook/modhook/hookgen"

import (
	"errors"
	"fmt"
	"go/ast"
	"go/types"
	"strconv"
	"strings"
)

// typeKind groups C compatible Go types by how values cross the native
// boundary.
type typeKind uint8

const (
	kindInt typeKind = iota
	kindFloat
	kindBool
	kindPointer
	kindUnsafePointer
	kindUintptr
)

// cType is a C compatible Go type and its host side spelling.
type cType struct {
	kind typeKind
	// goExpr is the Go type as written.
	goExpr string
	cs     string
}

var basicTypes = map[string]cType{
	"int8":    {kind: kindInt, cs: "sbyte"},
	"uint8":   {kind: kindInt, cs: "byte"},
	"byte":    {kind: kindInt, cs: "byte"},
	"int16":   {kind: kindInt, cs: "short"},
	"uint16":  {kind: kindInt, cs: "ushort"},
	"int32":   {kind: kindInt, cs: "int"},
	"rune":    {kind: kindInt, cs: "int"},
	"uint32":  {kind: kindInt, cs: "uint"},
	"int64":   {kind: kindInt, cs: "long"},
	"uint64":  {kind: kindInt, cs: "ulong"},
	"int":     {kind: kindInt, cs: "nint"},
	"uint":    {kind: kindInt, cs: "nuint"},
	"uintptr": {kind: kindUintptr, cs: "nuint"},
	"float32": {kind: kindFloat, cs: "float"},
	"float64": {kind: kindFloat, cs: "double"},
	// cgo passes bool as a one byte GoUint8; C# bool marshals as a
	// four byte BOOL.
	"bool": {kind: kindBool, cs: "byte"},
}

// cgoTypes maps cgo's C.<name> types for the Windows x64 data model.
var cgoTypes = map[string]cType{
	"char":      {kind: kindInt, cs: "sbyte"},
	"schar":     {kind: kindInt, cs: "sbyte"},
	"uchar":     {kind: kindInt, cs: "byte"},
	"short":     {kind: kindInt, cs: "short"},
	"ushort":    {kind: kindInt, cs: "ushort"},
	"int":       {kind: kindInt, cs: "int"},
	"uint":      {kind: kindInt, cs: "uint"},
	"long":      {kind: kindInt, cs: "int"},
	"ulong":     {kind: kindInt, cs: "uint"},
	"longlong":  {kind: kindInt, cs: "long"},
	"ulonglong": {kind: kindInt, cs: "ulong"},
	"size_t":    {kind: kindUintptr, cs: "nuint"},
	"float":     {kind: kindFloat, cs: "float"},
	"double":    {kind: kindFloat, cs: "double"},
}

func classify(expr ast.Expr) (cType, error) {
	t, err := classifyInner(expr)
	if err != nil {
		return cType{}, err
	}
	t.goExpr = types.ExprString(expr)
	return t, nil
}

func classifyInner(expr ast.Expr) (cType, error) {
	switch e := expr.(type) {
	case *ast.ParenExpr:
		return classifyInner(e.X)
	case *ast.Ident:
		if t, ok := basicTypes[e.Name]; ok {
			return t, nil
		}
		if e.Name == "string" || e.Name == "any" || e.Name == "error" {
			return cType{}, fmt.Errorf("%s is not C compatible", e.Name)
		}
		return cType{}, fmt.Errorf("%s cannot be passed by value, use a pointer", e.Name)
	case *ast.SelectorExpr:
		pkg, ok := e.X.(*ast.Ident)
		if !ok {
			break
		}
		if pkg.Name == "unsafe" && e.Sel.Name == "Pointer" {
			return cType{kind: kindUnsafePointer, cs: "void*"}, nil
		}
		if pkg.Name == "C" {
			if t, ok := cgoTypes[e.Sel.Name]; ok {
				return t, nil
			}
		}
	case *ast.StarExpr:
		elem, err := pointee(e.X)
		if err != nil {
			return cType{}, err
		}
		return cType{kind: kindPointer, cs: elem + "*"}, nil
	case *ast.Ellipsis:
		return cType{}, errors.New("variadic parameters are not C compatible")
	case *ast.ArrayType:
		if e.Len == nil {
			return cType{}, errors.New("slices are not C compatible")
		}
		return cType{}, errors.New("arrays cannot be passed by value")
	case *ast.MapType:
		return cType{}, errors.New("maps are not C compatible")
	case *ast.ChanType:
		return cType{}, errors.New("channels are not C compatible")
	case *ast.FuncType:
		return cType{}, errors.New("func values are not C compatible, use uintptr")
	case *ast.InterfaceType:
		return cType{}, errors.New("interfaces are not C compatible")
	case *ast.StructType:
		return cType{}, errors.New("structs cannot be passed by value")
	}
	return cType{}, fmt.Errorf("%s is not C compatible", types.ExprString(expr))
}

// pointee returns the host spelling of the type a pointer points to. Named
// types keep their name, the host side is expected to declare a matching
// layout.
func pointee(expr ast.Expr) (string, error) {
	switch e := expr.(type) {
	case *ast.ParenExpr:
		return pointee(e.X)
	case *ast.Ident:
		if t, ok := basicTypes[e.Name]; ok {
			return t.cs, nil
		}
		if e.Name == "string" || e.Name == "any" || e.Name == "error" {
			return "", fmt.Errorf("*%s is not C compatible", e.Name)
		}
		return e.Name, nil
	case *ast.StarExpr:
		inner, err := pointee(e.X)
		if err != nil {
			return "", err
		}
		return inner + "*", nil
	case *ast.SelectorExpr:
		t, err := classifyInner(e)
		if err == nil {
			return t.cs, nil
		}
		return e.Sel.Name, nil
	}
	return "", fmt.Errorf("*%s is not C compatible", types.ExprString(expr))
}

type param struct {
	// name is the Go parameter name, empty or _ when unnamed.
	name string
	typ  cType
}

type signature struct {
	params []param
	result *cType
}

func parseSignature(fn *ast.FuncDecl) (signature, error) {
	var sig signature
	if fn.Recv != nil {
		return sig, errors.New("methods cannot be hooked, the receiver is not C compatible")
	}
	if fn.Type.TypeParams != nil && fn.Type.TypeParams.NumFields() > 0 {
		return sig, errors.New("generic functions cannot be hooked")
	}
	for _, field := range fn.Type.Params.List {
		if _, ok := field.Type.(*ast.Ellipsis); ok {
			return sig, errors.New("variadic functions cannot be hooked")
		}
		t, err := classify(field.Type)
		if err != nil {
			return sig, fmt.Errorf("parameter type %s: %w", types.ExprString(field.Type), err)
		}
		if len(field.Names) == 0 {
			sig.params = append(sig.params, param{typ: t})
			continue
		}
		for _, name := range field.Names {
			sig.params = append(sig.params, param{name: name.Name, typ: t})
		}
	}
	if fn.Type.Results != nil {
		if fn.Type.Results.NumFields() > 1 {
			return sig, errors.New("hooked functions return at most one value")
		}
		if fn.Type.Results.NumFields() == 1 {
			t, err := classify(fn.Type.Results.List[0].Type)
			if err != nil {
				return sig, fmt.Errorf("result type %s: %w",
					types.ExprString(fn.Type.Results.List[0].Type), err)
			}
			sig.result = &t
		}
	}
	return sig, nil
}

// hasFloat reports whether any parameter or the result is floating point.
// Those cannot be forwarded through the integer register call path.
func (s signature) hasFloat() bool {
	for _, p := range s.params {
		if p.typ.kind == kindFloat {
			return true
		}
	}
	return s.result != nil && s.result.kind == kindFloat
}

// hasPointer reports whether any parameter or the result is a typed pointer.
func (s signature) hasPointer() bool {
	for _, p := range s.params {
		if p.typ.kind == kindPointer {
			return true
		}
	}
	return s.result != nil && s.result.kind == kindPointer
}

func (s signature) csResult() string {
	if s.result == nil {
		return "void"
	}
	return s.result.cs
}

// csParams renders the host parameter list.
func (s signature) csParams() string {
	parts := make([]string, 0, len(s.params))
	for i, p := range s.params {
		parts = append(parts, p.typ.cs+" "+csParamName(p.name, i))
	}
	return strings.Join(parts, ", ")
}

// csFunctionPointer renders the unmanaged function pointer type.
func (s signature) csFunctionPointer() string {
	parts := make([]string, 0, len(s.params)+1)
	for _, p := range s.params {
		parts = append(parts, p.typ.cs)
	}
	parts = append(parts, s.csResult())
	return "delegate* unmanaged[Stdcall]<" + strings.Join(parts, ", ") + ">"
}

var csKeywords = map[string]struct{}{}

func init() {
	for _, kw := range strings.Fields(`abstract as base bool break byte case catch
		char checked class const continue decimal default delegate do double else
		enum event explicit extern false finally fixed float for foreach goto if
		implicit in int interface internal is lock long namespace new null object
		operator out override params private protected public readonly ref return
		sbyte sealed short sizeof stackalloc static string struct switch this throw
		true try typeof uint ulong unchecked unsafe ushort using virtual void
		volatile while`) {
		csKeywords[kw] = struct{}{}
	}
}

func csParamName(name string, i int) string {
	if name == "" || name == "_" {
		return "p" + strconv.Itoa(i)
	}
	if _, ok := csKeywords[name]; ok {
		return "@" + name
	}
	return name
}
