// SPDX-License-Identifier: MPL-2.0

// Package pyimport extracts import declarations from Python source text and
// produces the source body with those declarations removed.
//
// It is a purpose-built tokenizer for the import grammar only: string
// literals (including triple-quoted docstrings) and comments are skipped, so
// import-looking text inside them is never reported.
package pyimport

import (
	"fmt"
	"strings"
)

// Kind identifies the syntactic form of an import declaration.
type Kind int

const (
	// KindPlain is `import a.b [as x]`.
	KindPlain Kind = iota + 1
	// KindFrom is `from a.b import x [as y], ...`.
	KindFrom
	// KindRelative is `from .a import x` with one or more leading dots.
	KindRelative
)

type (
	// Name is one imported name of a from-import.
	Name struct {
		Name  string
		Alias string
	}

	// Decl is a single import declaration.
	Decl struct {
		Kind Kind
		// Module is the dotted module path. Empty for `from . import x`.
		Module string
		// Alias is the `as` name of a plain import.
		Alias string
		// Names are the imported names of a from or relative import.
		// A star import is a single Name{Name: "*"}.
		Names []Name
		// Level is the number of leading dots of a relative import.
		Level int
		// Line is the 1-based line the statement starts on.
		Line int
		// Nested is set for statements on an indented line.
		Nested bool
	}
)

func (k Kind) String() string {
	switch k {
	case KindPlain:
		return "plain"
	case KindFrom:
		return "from"
	case KindRelative:
		return "relative"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// TopLevel returns the first segment of the dotted module path.
func (d Decl) TopLevel() string {
	top, _, _ := strings.Cut(d.Module, ".")
	return top
}

// IsFuture reports whether d is a `from __future__ import ...` statement.
func (d Decl) IsFuture() bool {
	return d.Kind == KindFrom && d.Module == "__future__"
}

// String renders the declaration as a canonical single-line statement.
func (d Decl) String() string {
	var b strings.Builder
	switch d.Kind {
	case KindPlain:
		b.WriteString("import ")
		b.WriteString(d.Module)
		if d.Alias != "" {
			b.WriteString(" as ")
			b.WriteString(d.Alias)
		}
		return b.String()
	case KindRelative:
		b.WriteString("from ")
		b.WriteString(strings.Repeat(".", d.Level))
		b.WriteString(d.Module)
	default:
		b.WriteString("from ")
		b.WriteString(d.Module)
	}
	b.WriteString(" import ")
	for i, n := range d.Names {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(n.Name)
		if n.Alias != "" {
			b.WriteString(" as ")
			b.WriteString(n.Alias)
		}
	}
	return b.String()
}

// SyntaxError reports source text the tokenizer could not make sense of.
type SyntaxError struct {
	Line int
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}
