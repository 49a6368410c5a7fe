// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package hookgen // import "github.com/modhook/modhook/hookgen"

import (
	"fmt"
	"go/ast"
	"go/token"
	"strings"
)

type directiveKind uint8

const (
	dirFn directiveKind = iota
	dirInline
	dirAsm
	dirStatic
	dirClass
	dirInit
	dirModsLoaded
)

const directivePrefix = "//hook:"

var directiveNames = map[string]directiveKind{
	"fn":         dirFn,
	"inline":     dirInline,
	"asm":        dirAsm,
	"static":     dirStatic,
	"class":      dirClass,
	"init":       dirInit,
	"modsloaded": dirModsLoaded,
}

func (k directiveKind) String() string {
	for name, kind := range directiveNames {
		if kind == k {
			return "hook:" + name
		}
	}
	return fmt.Sprintf("directiveKind(%d)", uint8(k))
}

// segment maps a run of directive argument text back to the file.
type segment struct {
	start int
	pos   token.Pos
}

// directive is one //hook: comment together with its continuation lines.
type directive struct {
	kind     directiveKind
	args     string
	pos      token.Pos
	comments []*ast.Comment
	segments []segment
}

// posOf maps a byte offset of args to a file position.
func (d *directive) posOf(offset int) token.Pos {
	seg := d.segments[0]
	for _, s := range d.segments[1:] {
		if s.start > offset {
			break
		}
		seg = s
	}
	return seg.pos + token.Pos(offset-seg.start)
}

// directives extracts the hook directives of a doc comment. Plain line
// comments directly following a directive continue its argument text.
func directives(doc *ast.CommentGroup) ([]*directive, error) {
	if doc == nil {
		return nil, nil
	}
	var out []*directive
	var cur *directive
	for _, c := range doc.List {
		if !strings.HasPrefix(c.Text, "//") {
			cur = nil
			continue
		}
		if rest, ok := strings.CutPrefix(c.Text, directivePrefix); ok {
			name, args, _ := strings.Cut(rest, " ")
			kind, known := directiveNames[name]
			if !known {
				return nil, &posError{pos: c.Slash, err: fmt.Errorf("unknown directive hook:%s", name)}
			}
			trimmed := strings.TrimLeft(args, " \t")
			argPos := c.End() - token.Pos(len(trimmed))
			cur = &directive{
				kind:     kind,
				args:     trimmed,
				pos:      c.Slash,
				comments: []*ast.Comment{c},
				segments: []segment{{start: 0, pos: argPos}},
			}
			out = append(out, cur)
			continue
		}
		if cur == nil {
			continue
		}
		line := strings.TrimLeft(c.Text[2:], " \t")
		if line == "" {
			cur = nil
			continue
		}
		cur.args += " "
		cur.segments = append(cur.segments, segment{
			start: len(cur.args),
			pos:   c.End() - token.Pos(len(line)),
		})
		cur.args += line
		cur.comments = append(cur.comments, c)
	}
	for _, d := range out {
		d.args = strings.TrimRight(d.args, " \t")
	}
	return out, nil
}

// posError carries a file position until the item name is known.
type posError struct {
	pos token.Pos
	err error
}

func (e *posError) Error() string { return e.err.Error() }
func (e *posError) Unwrap() error { return e.err }
