// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package hookdesc // import "github.com/modhook/modhook/hookdesc"

import (
	"fmt"
	"go/scanner"
	"go/token"
	"strconv"
)

// parser is a recursive descent parser over Go tokens. Descriptors share
// Go's literal syntax, so integers accept 0x, 0o and 0b prefixes with _
// separators and strings accept Go escapes.
type parser struct {
	file    *token.File
	scanner scanner.Scanner
	scanErr *SyntaxError

	offset int
	tok    token.Token
	lit    string
}

func newParser(src string) *parser {
	fset := token.NewFileSet()
	p := &parser{file: fset.AddFile("", fset.Base(), len(src))}
	p.scanner.Init(p.file, []byte(src), func(pos token.Position, msg string) {
		if p.scanErr == nil {
			p.scanErr = &SyntaxError{Offset: pos.Offset, Msg: msg}
		}
	}, 0)
	p.next()
	return p
}

func (p *parser) next() {
	for {
		pos, tok, lit := p.scanner.Scan()
		// Skip semicolons inserted at the end of the text.
		if tok == token.SEMICOLON && lit == "\n" {
			continue
		}
		p.offset, p.tok, p.lit = p.file.Offset(pos), tok, lit
		return
	}
}

// text returns the current token as written.
func (p *parser) text() string {
	if p.lit != "" {
		return p.lit
	}
	if p.tok == token.EOF {
		return "end of descriptor"
	}
	return p.tok.String()
}

func (p *parser) errorf(format string, args ...any) *SyntaxError {
	if p.scanErr != nil {
		return p.scanErr
	}
	return &SyntaxError{Offset: p.offset, Token: p.text(), Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) expect(tok token.Token) *SyntaxError {
	if p.tok != tok {
		return p.errorf("expected %s, found %s", tok, p.text())
	}
	p.next()
	return nil
}

// arrow consumes "=>", which Go scans as two tokens.
func (p *parser) arrow() *SyntaxError {
	if p.tok != token.ASSIGN {
		return p.errorf("expected =>, found %s", p.text())
	}
	start := p.offset
	p.next()
	if p.tok != token.GTR || p.offset != start+1 {
		return p.errorf("expected =>, found %s", p.text())
	}
	p.next()
	return nil
}

func (p *parser) ident() (string, *SyntaxError) {
	if p.tok != token.IDENT {
		return "", p.errorf("expected identifier, found %s", p.text())
	}
	name := p.lit
	p.next()
	return name, nil
}

func (p *parser) integer() (uint64, *SyntaxError) {
	if p.tok != token.INT {
		return 0, p.errorf("expected integer, found %s", p.text())
	}
	v, err := strconv.ParseUint(p.lit, 0, 64)
	if err != nil {
		return 0, p.errorf("integer %s does not fit in 64 bits", p.lit)
	}
	p.next()
	return v, nil
}

func (p *parser) str() (string, *SyntaxError) {
	if p.tok != token.STRING {
		return "", p.errorf("expected string, found %s", p.text())
	}
	v, err := strconv.Unquote(p.lit)
	if err != nil {
		return "", p.errorf("invalid string %s", p.lit)
	}
	p.next()
	return v, nil
}

func (p *parser) end() *SyntaxError {
	if p.tok != token.EOF {
		return p.errorf("unexpected %s after descriptor", p.text())
	}
	return p.scanErr
}

// ParseHookSet parses either a single entry or a brace enclosed list of
// match arms:
//
//	static_offset(0x1234)
//	{ STEAM_102 | STEAM_103 => static_offset(0x10), _ => dynamic_offset(signature = "48 8B ??") }
func ParseHookSet(src string) (*HookSet, error) {
	p := newParser(src)
	set := &HookSet{}
	switch p.tok {
	case token.IDENT:
		offset := p.offset
		decl, err := p.entry()
		if err != nil {
			return nil, err
		}
		set.Entries = append(set.Entries, Entry{Cond: Condition{Kind: CondNone}, Decl: decl, Offset: offset})
	case token.LBRACE:
		p.next()
		if err := p.arms(set); err != nil {
			return nil, err
		}
	default:
		return nil, p.errorf("invalid hook descriptor (should be an entry or match arms)")
	}
	if err := p.end(); err != nil {
		return nil, err
	}
	if err := set.Validate(); err != nil {
		return nil, err
	}
	return set, nil
}

func (p *parser) arms(set *HookSet) *SyntaxError {
	seen := make(map[Condition]struct{})
	sawDefault := false
	for p.tok != token.RBRACE {
		type pending struct {
			cond   Condition
			offset int
		}
		var conds []pending
		for {
			if sawDefault {
				return p.errorf("Default arm must be the last arm")
			}
			c, err := p.condition()
			if err != nil {
				return err
			}
			if c.Kind == CondDefault {
				sawDefault = true
			} else {
				if _, dup := seen[c]; dup {
					return p.errorf("duplicate condition %s", c)
				}
				seen[c] = struct{}{}
			}
			conds = append(conds, pending{cond: c, offset: p.offset})
			p.next()
			if p.tok != token.OR {
				break
			}
			p.next()
		}
		if err := p.arrow(); err != nil {
			return err
		}
		decl, err := p.entry()
		if err != nil {
			return err
		}
		for _, c := range conds {
			set.Entries = append(set.Entries, Entry{Cond: c.cond, Decl: decl, Offset: c.offset})
		}
		if p.tok != token.COMMA {
			break
		}
		p.next()
	}
	if err := p.expect(token.RBRACE); err != nil {
		return err
	}
	if len(set.Entries) == 0 {
		return p.errorf("hook set has no entries")
	}
	return nil
}

// condition parses the current token as a condition without consuming it.
func (p *parser) condition() (Condition, *SyntaxError) {
	switch p.tok {
	case token.IDENT:
		if p.lit == "_" {
			return Default(), nil
		}
		return Named(p.lit), nil
	case token.INT:
		v, err := strconv.ParseUint(p.lit, 0, 64)
		if err != nil {
			return Condition{}, p.errorf("integer %s does not fit in 64 bits", p.lit)
		}
		return Numeric(v), nil
	}
	return Condition{}, p.errorf("only names, integer literals and _ are allowed as conditions")
}

func (p *parser) entry() (Declaration, *SyntaxError) {
	name := p.text()
	if p.tok != token.IDENT {
		return nil, p.errorf("expected hook entry, found %s", name)
	}
	switch name {
	case "static_offset":
		p.next()
		return p.staticOffset()
	case "dynamic_offset":
		p.next()
		return p.dynamicOffset()
	case "user_defined":
		p.next()
		if p.tok == token.LPAREN {
			p.next()
			if err := p.expect(token.RPAREN); err != nil {
				return nil, err
			}
		}
		return Deferred{}, nil
	}
	return nil, p.errorf("Unknown entry name %s (should be static_offset, dynamic_offset or user_defined)", name)
}

func (p *parser) staticOffset() (Declaration, *SyntaxError) {
	start := p.offset
	if err := p.expect(token.LPAREN); err != nil {
		return nil, err
	}
	if p.tok == token.RPAREN {
		return nil, &SyntaxError{Offset: start, Msg: "Incorrect argument count for static offset"}
	}
	v, err := p.integer()
	if err != nil {
		return nil, err
	}
	if p.tok != token.RPAREN {
		return nil, &SyntaxError{Offset: start, Token: p.text(),
			Msg: "Incorrect argument count for static offset"}
	}
	p.next()
	return StaticOffset{Offset: v}, nil
}

func (p *parser) dynamicOffset() (Declaration, *SyntaxError) {
	start := p.offset
	if err := p.expect(token.LPAREN); err != nil {
		return nil, err
	}
	var d DynamicOffset
	defined := make(map[string]bool)
	for p.tok != token.RPAREN {
		keyOffset := p.offset
		key, err := p.ident()
		if err != nil {
			return nil, err
		}
		if defined[key] {
			return nil, &SyntaxError{Offset: keyOffset, Token: key, Msg: key + " was already defined"}
		}
		defined[key] = true
		if err = p.expect(token.ASSIGN); err != nil {
			return nil, err
		}
		switch key {
		case "signature":
			if d.Pattern, err = p.str(); err != nil {
				return nil, err
			}
		case "resolve_type":
			if d.Resolver, err = p.resolver(); err != nil {
				return nil, err
			}
		case "calling_convention":
			if d.CallingConvention, err = p.callingConvention(); err != nil {
				return nil, err
			}
		case "shared_scan":
			if d.SharedScan, err = p.sharedScan(); err != nil {
				return nil, err
			}
		default:
			return nil, &SyntaxError{Offset: keyOffset, Token: key, Msg: "Unsupported argument name " + key}
		}
		if p.tok != token.COMMA {
			break
		}
		p.next()
	}
	if err := p.expect(token.RPAREN); err != nil {
		return nil, err
	}
	if d.Pattern == "" && d.SharedScan != Consumer {
		return nil, &SyntaxError{Offset: start, Msg: "Signature field is required"}
	}
	return d, nil
}

func (p *parser) resolver() (string, *SyntaxError) {
	name, err := p.ident()
	if err != nil {
		return "", err
	}
	if p.tok == token.PERIOD || p.tok == token.COLON {
		return "", p.errorf("Only single segment paths are supported")
	}
	return name, nil
}

func (p *parser) callingConvention() (CallingConvention, *SyntaxError) {
	offset := p.offset
	v, err := p.str()
	if err != nil {
		return 0, err
	}
	switch v {
	case "microsoft":
		return Microsoft, nil
	case "unknown":
		return UnknownConvention, nil
	}
	return 0, &SyntaxError{Offset: offset, Token: v, Msg: "Unimplemented calling convention " + v}
}

func (p *parser) sharedScan() (SharedScan, *SyntaxError) {
	offset := p.offset
	v, err := p.str()
	if err != nil {
		return 0, err
	}
	switch v {
	case "producer":
		return Producer, nil
	case "consumer":
		return Consumer, nil
	}
	return 0, &SyntaxError{Offset: offset, Token: v, Msg: "Unimplemented shared scan " + v}
}

// ParseAsmHook parses one assembly data block:
//
//	{ ExecuteFirst, [rcx, rdx], rax, [rbx], false, "sub rsp, 0x40", None }
//
// The mode, parameter registers and return register are required. The
// callee saved registers, shadow space flag and the instruction text placed
// before and after the call are optional.
func ParseAsmHook(src string) (*AsmHook, error) {
	p := newParser(src)
	start := p.offset
	if err := p.expect(token.LBRACE); err != nil {
		return nil, err
	}
	h := &AsmHook{}
	field := 0
	for p.tok != token.RBRACE && p.tok != token.EOF {
		var err *SyntaxError
		switch field {
		case 0:
			err = p.asmMode(h)
		case 1:
			h.Params, err = p.registerList(false)
		case 2:
			h.Return, err = p.register()
		case 3:
			h.CalleeSaved, err = p.registerList(true)
		case 4:
			err = p.shadowSpace(h)
		case 5:
			h.Before, err = p.inlineAsm()
		case 6:
			h.After, err = p.inlineAsm()
		default:
			err = p.errorf("Too many assembly parameters")
		}
		if err != nil {
			return nil, err
		}
		field++
		if p.tok != token.COMMA {
			break
		}
		p.next()
	}
	if field < 3 {
		return nil, &SyntaxError{Offset: start, Msg: "Missing required parameters: execute mode and registers"}
	}
	if err := p.expect(token.RBRACE); err != nil {
		return nil, err
	}
	if err := p.end(); err != nil {
		return nil, err
	}
	return h, nil
}

func (p *parser) asmMode(h *AsmHook) *SyntaxError {
	offset := p.offset
	name, err := p.ident()
	if err != nil {
		return err
	}
	mode, ok := parseExecuteMode(name)
	if !ok {
		return &SyntaxError{Offset: offset, Token: name, Msg: "Unknown assembly execute method " + name}
	}
	h.Mode = mode
	return nil
}

func (p *parser) register() (Register, *SyntaxError) {
	offset := p.offset
	name, err := p.ident()
	if err != nil {
		return 0, err
	}
	r, ok := ParseRegister(name)
	if !ok {
		return 0, &SyntaxError{Offset: offset, Token: name, Msg: "Unknown register " + name}
	}
	return r, nil
}

func (p *parser) registerList(set bool) ([]Register, *SyntaxError) {
	if err := p.expect(token.LBRACK); err != nil {
		return nil, err
	}
	var regs []Register
	for p.tok != token.RBRACK {
		offset := p.offset
		r, err := p.register()
		if err != nil {
			return nil, err
		}
		if set {
			for _, have := range regs {
				if have == r {
					return nil, &SyntaxError{Offset: offset, Token: r.String(),
						Msg: "duplicate register " + r.String()}
				}
			}
		}
		regs = append(regs, r)
		if p.tok != token.COMMA {
			break
		}
		p.next()
	}
	if err := p.expect(token.RBRACK); err != nil {
		return nil, err
	}
	return regs, nil
}

func (p *parser) shadowSpace(h *AsmHook) *SyntaxError {
	if p.tok == token.IDENT {
		switch p.lit {
		case "true":
			h.ShadowSpace = true
			p.next()
			return nil
		case "false":
			p.next()
			return nil
		}
	}
	return p.errorf("Boolean value must be used to toggle shadow space")
}

func (p *parser) inlineAsm() (string, *SyntaxError) {
	switch p.tok {
	case token.IDENT:
		if p.lit != "None" {
			return "", p.errorf("Inline assembly must be \"None\" or a string")
		}
		p.next()
		return "", nil
	case token.STRING:
		return p.str()
	}
	return "", p.errorf("String value must be used to define inline assembly")
}
