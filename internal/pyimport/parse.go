// SPDX-License-Identifier: MPL-2.0

package pyimport

import (
	"bytes"
	"fmt"
	"os"
	"strings"
)

type (
	// File is a parsed Python source file.
	File struct {
		// Decls lists every import declaration in source order.
		Decls []Decl

		src   []byte
		stmts []stmt
	}

	// Statement is one import statement, which may carry several
	// declarations (`import a, b`).
	Statement struct {
		Decls []Decl
		// First is the index of Decls[0] in File.Decls.
		First int
		// Nested is set when the statement sits on an indented line or
		// follows a colon on the same line (`if TYPE_CHECKING: import x`).
		Nested bool
		Line   int
	}

	stmt struct {
		Statement
		start, end int // byte offsets into src, end exclusive
		leading    bool
		// compound marks a statement on a line that opens a block inline.
		compound bool
	}

	tokKind int

	token struct {
		kind tokKind
		text string
		line int
	}

	scanner struct {
		src   []byte
		pos   int
		line  int
		depth int
	}
)

const (
	tokEOF tokKind = iota
	tokEnd
	tokName
	tokDot
	tokComma
	tokLParen
	tokRParen
	tokStar
	tokOther
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ParseFile reads and parses the file at path.
func ParseFile(path string) (*File, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(src)
}

// Parse scans src for import statements. It returns a *SyntaxError for a
// malformed import statement, an unterminated string or an unclosed bracket.
func Parse(src []byte) (*File, error) {
	s := &scanner{src: normalize(src), line: 1}
	f := &File{src: s.src}

	leading, compound := true, false
	for {
		s.skipBlank()
		if s.pos >= len(s.src) {
			break
		}
		c := s.src[s.pos]
		switch {
		case c == '\n':
			s.pos++
			s.line++
			leading, compound = true, false
			continue
		case c == '#':
			s.skipComment()
			continue
		case c == '\\' && s.at(1) == '\n':
			s.pos += 2
			s.line++
			continue
		case isIdentStart(c):
			if w := s.peekWord(); w == "import" || w == "from" {
				if err := s.statement(f, leading, compound); err != nil {
					return nil, err
				}
				leading = false
				continue
			}
		}

		nl, block, err := s.skipStatement()
		if err != nil {
			return nil, err
		}
		leading = nl
		if nl {
			compound = false
		} else if block {
			compound = true
		}
	}

	if s.depth > 0 {
		return nil, &SyntaxError{Line: s.line, Msg: "unexpected end of file inside brackets"}
	}
	return f, nil
}

// Statements returns the import statements in source order.
func (f *File) Statements() []Statement {
	out := make([]Statement, len(f.stmts))
	for i := range f.stmts {
		out[i] = f.stmts[i].Statement
	}
	return out
}

// Source returns the normalized source text.
func (f *File) Source() string {
	return string(f.src)
}

// Body returns the source with every import statement removed.
func (f *File) Body() string {
	return f.Strip(nil)
}

// Strip returns the source with import statements removed. Statements for
// which keep returns true stay in place. Lines left empty by a removal are
// dropped, except that an indented statement that started its line is
// replaced by `pass` so the enclosing block stays valid. The same holds for
// an import that was the whole body of an inline block (`if x: import a`).
// All other lines are kept verbatim.
func (f *File) Strip(keep func(Statement) bool) string {
	removed := make([]bool, len(f.src)+1)
	passAt := make(map[int]bool)
	inlineBlock := make(map[int]bool)
	stripped := false
	for i := range f.stmts {
		st := &f.stmts[i]
		if keep != nil && keep(st.Statement) {
			continue
		}
		stripped = true
		for p := st.start; p < st.end; p++ {
			removed[p] = true
		}
		if st.leading && st.Nested {
			passAt[st.Line] = true
		}
		if st.compound {
			inlineBlock[st.Line] = true
		}
	}
	if !stripped {
		return string(f.src)
	}

	var b strings.Builder
	b.Grow(len(f.src))
	rest := make([]byte, 0, 128)
	for off, lineNo := 0, 1; off <= len(f.src); lineNo++ {
		end, hasNL := len(f.src), false
		if i := bytes.IndexByte(f.src[off:], '\n'); i >= 0 {
			end, hasNL = off+i, true
		}
		line := f.src[off:end]

		touched := hasNL && removed[end]
		rest = rest[:0]
		for p := off; p < end; p++ {
			if removed[p] {
				touched = true
				continue
			}
			rest = append(rest, f.src[p])
		}

		switch {
		case !touched:
			b.Write(line)
			if hasNL {
				b.WriteByte('\n')
			}
		case isBlankOrComment(rest):
			if passAt[lineNo] {
				b.WriteString(indentOf(line))
				b.WriteString("pass")
				if hasNL {
					b.WriteByte('\n')
				}
			}
		default:
			kept := strings.TrimRight(string(rest), " \t;")
			// `if x: import a` keeps a body.
			if inlineBlock[lineNo] && strings.HasSuffix(kept, ":") {
				kept += " pass"
			}
			b.WriteString(kept)
			if hasNL {
				b.WriteByte('\n')
			}
		}

		if !hasNL {
			break
		}
		off = end + 1
	}
	return b.String()
}

func (s *scanner) statement(f *File, leading, compound bool) error {
	start, line := s.pos, s.line
	indent := indentBefore(s.src, start)

	var (
		decls []Decl
		err   error
	)
	if s.word() == "import" {
		decls, err = s.plainImport(line)
	} else {
		decls, err = s.fromImport(line)
	}
	if err != nil {
		return err
	}

	t := s.lex(false)
	if t.kind != tokEnd && t.kind != tokEOF {
		return s.unexpected(t, "end of import statement")
	}
	end := s.pos
	if end < len(s.src) && s.src[end] == ';' {
		end++
		for end < len(s.src) && (s.src[end] == ' ' || s.src[end] == '\t') {
			end++
		}
		s.pos = end
	}
	if compound && end < len(s.src) && s.src[end] == '#' {
		s.skipComment()
		end = s.pos
	}

	nested := indent != "" || compound
	for i := range decls {
		decls[i].Nested = nested
	}
	first := len(f.Decls)
	f.Decls = append(f.Decls, decls...)
	f.stmts = append(f.stmts, stmt{
		Statement: Statement{Decls: decls, First: first, Nested: nested, Line: line},
		start:     start,
		end:       end,
		leading:   leading,
		compound:  compound,
	})
	return nil
}

func (s *scanner) plainImport(line int) ([]Decl, error) {
	var decls []Decl
	for {
		mod, err := s.dotted()
		if err != nil {
			return nil, err
		}
		d := Decl{Kind: KindPlain, Module: mod, Line: line}
		if alias, ok, err := s.alias(false); err != nil {
			return nil, err
		} else if ok {
			d.Alias = alias
		}
		decls = append(decls, d)

		if s.peek(false).kind != tokComma {
			return decls, nil
		}
		s.lex(false)
	}
}

func (s *scanner) fromImport(line int) ([]Decl, error) {
	d := Decl{Kind: KindFrom, Line: line}
	for s.peek(false).kind == tokDot {
		s.lex(false)
		d.Level++
	}
	if t := s.peek(false); t.kind == tokName && t.text != "import" {
		mod, err := s.dotted()
		if err != nil {
			return nil, err
		}
		d.Module = mod
	}
	switch {
	case d.Level > 0:
		d.Kind = KindRelative
	case d.Module == "":
		return nil, s.unexpected(s.lex(false), "module name")
	}

	if t := s.lex(false); t.kind != tokName || t.text != "import" {
		return nil, s.unexpected(t, "'import'")
	}

	switch s.peek(false).kind {
	case tokStar:
		s.lex(false)
		d.Names = []Name{{Name: "*"}}
	case tokLParen:
		s.lex(false)
		names, err := s.names(true)
		if err != nil {
			return nil, err
		}
		if t := s.lex(true); t.kind != tokRParen {
			return nil, s.unexpected(t, "')'")
		}
		d.Names = names
	default:
		names, err := s.names(false)
		if err != nil {
			return nil, err
		}
		d.Names = names
	}
	return []Decl{d}, nil
}

func (s *scanner) names(grouped bool) ([]Name, error) {
	var out []Name
	for {
		t := s.lex(grouped)
		if t.kind != tokName {
			return nil, s.unexpected(t, "imported name")
		}
		n := Name{Name: t.text}
		alias, ok, err := s.alias(grouped)
		if err != nil {
			return nil, err
		}
		if ok {
			n.Alias = alias
		}
		out = append(out, n)

		if s.peek(grouped).kind != tokComma {
			return out, nil
		}
		s.lex(grouped)
		if grouped && s.peek(grouped).kind == tokRParen {
			return out, nil
		}
	}
}

func (s *scanner) alias(grouped bool) (string, bool, error) {
	if t := s.peek(grouped); t.kind != tokName || t.text != "as" {
		return "", false, nil
	}
	s.lex(grouped)
	t := s.lex(grouped)
	if t.kind != tokName {
		return "", false, s.unexpected(t, "name after 'as'")
	}
	return t.text, true, nil
}

func (s *scanner) dotted() (string, error) {
	t := s.lex(false)
	if t.kind != tokName {
		return "", s.unexpected(t, "module name")
	}
	parts := []string{t.text}
	for s.peek(false).kind == tokDot {
		s.lex(false)
		t = s.lex(false)
		if t.kind != tokName {
			return "", s.unexpected(t, "name after '.'")
		}
		parts = append(parts, t.text)
	}
	return strings.Join(parts, "."), nil
}

// lex returns the next token of an import statement. Inside parentheses
// (grouped) newlines and comments are insignificant. A statement terminator
// is reported as tokEnd without being consumed.
func (s *scanner) lex(grouped bool) token {
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		switch {
		case c == ' ' || c == '\t' || c == '\f':
			s.pos++
		case c == '\\' && s.at(1) == '\n':
			s.pos += 2
			s.line++
		case c == '\n' && grouped:
			s.pos++
			s.line++
		case c == '#' && grouped:
			s.skipComment()
		case c == '\n' || c == '#' || c == ';':
			return token{kind: tokEnd, text: string(c), line: s.line}
		case isIdentStart(c):
			return token{kind: tokName, text: s.word(), line: s.line}
		default:
			s.pos++
			t := token{kind: tokOther, text: string(c), line: s.line}
			switch c {
			case '.':
				t.kind = tokDot
			case ',':
				t.kind = tokComma
			case '(':
				t.kind = tokLParen
			case ')':
				t.kind = tokRParen
			case '*':
				t.kind = tokStar
			}
			return t
		}
	}
	return token{kind: tokEOF, line: s.line}
}

func (s *scanner) peek(grouped bool) token {
	pos, line := s.pos, s.line
	t := s.lex(grouped)
	s.pos, s.line = pos, line
	return t
}

// blockKeywords open a compound statement whose body may follow the colon
// on the same line.
var blockKeywords = map[string]bool{
	"if": true, "elif": true, "else": true, "for": true, "while": true,
	"try": true, "except": true, "finally": true, "with": true, "def": true,
	"class": true, "async": true, "match": true, "case": true,
}

// skipStatement advances past the current simple statement. It reports
// whether the statement ended at a newline (as opposed to a `;`), and
// whether the rest of the line is the inline body of a block, as in
// `def f(): import os` or `if x: y = 1; import a`.
func (s *scanner) skipStatement() (nl, block bool, err error) {
	header := blockKeywords[s.peekWord()]
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		switch {
		case c == '\'' || c == '"':
			if err := s.skipString(); err != nil {
				return false, false, err
			}
		case c == '#':
			s.skipComment()
		case c == '\\' && s.at(1) == '\n':
			s.pos += 2
			s.line++
		case c == '\n':
			s.pos++
			s.line++
			if s.depth == 0 {
				return true, false, nil
			}
		case c == ';' && s.depth == 0:
			s.pos++
			return false, block, nil
		case c == ':' && s.depth == 0:
			s.pos++
			if !header || block {
				continue
			}
			block = true
			for s.pos < len(s.src) && (s.src[s.pos] == ' ' || s.src[s.pos] == '\t') {
				s.pos++
			}
			if w := s.peekWord(); w == "import" || w == "from" {
				return false, true, nil
			}
		case c == '(' || c == '[' || c == '{':
			s.depth++
			s.pos++
		case c == ')' || c == ']' || c == '}':
			if s.depth > 0 {
				s.depth--
			}
			s.pos++
		default:
			s.pos++
		}
	}
	return true, false, nil
}

func (s *scanner) skipString() error {
	q, line := s.src[s.pos], s.line
	if s.at(1) == q && s.at(2) == q {
		s.pos += 3
		for s.pos < len(s.src) {
			switch c := s.src[s.pos]; {
			case c == '\\':
				s.escape()
			case c == '\n':
				s.pos++
				s.line++
			case c == q && s.at(1) == q && s.at(2) == q:
				s.pos += 3
				return nil
			default:
				s.pos++
			}
		}
		return &SyntaxError{Line: line, Msg: "unterminated triple-quoted string"}
	}

	s.pos++
	for s.pos < len(s.src) {
		switch c := s.src[s.pos]; c {
		case '\\':
			s.escape()
		case '\n':
			return &SyntaxError{Line: line, Msg: "unterminated string literal"}
		case q:
			s.pos++
			return nil
		default:
			s.pos++
		}
	}
	return &SyntaxError{Line: line, Msg: "unterminated string literal"}
}

func (s *scanner) escape() {
	if s.at(1) == '\n' {
		s.line++
	}
	s.pos += 2
}

func (s *scanner) skipBlank() {
	for s.pos < len(s.src) {
		switch s.src[s.pos] {
		case ' ', '\t', '\f':
			s.pos++
		default:
			return
		}
	}
}

func (s *scanner) skipComment() {
	for s.pos < len(s.src) && s.src[s.pos] != '\n' {
		s.pos++
	}
}

func (s *scanner) word() string {
	start := s.pos
	for s.pos < len(s.src) && isIdentChar(s.src[s.pos]) {
		s.pos++
	}
	return string(s.src[start:s.pos])
}

func (s *scanner) peekWord() string {
	pos := s.pos
	w := s.word()
	s.pos = pos
	return w
}

func (s *scanner) at(offset int) byte {
	if p := s.pos + offset; p < len(s.src) {
		return s.src[p]
	}
	return 0
}

func (s *scanner) unexpected(t token, want string) error {
	got := fmt.Sprintf("%q", t.text)
	switch t.kind {
	case tokEOF:
		got = "end of file"
	case tokEnd:
		got = "end of statement"
	}
	return &SyntaxError{Line: t.line, Msg: fmt.Sprintf("expected %s, found %s", want, got)}
}

func normalize(src []byte) []byte {
	src = bytes.TrimPrefix(src, utf8BOM)
	if bytes.IndexByte(src, '\r') < 0 {
		return src
	}
	src = bytes.ReplaceAll(src, []byte("\r\n"), []byte("\n"))
	return bytes.ReplaceAll(src, []byte("\r"), []byte("\n"))
}

func indentBefore(src []byte, pos int) string {
	start := bytes.LastIndexByte(src[:pos], '\n') + 1
	return indentOf(src[start:pos])
}

func indentOf(line []byte) string {
	i := 0
	for i < len(line) && (line[i] == ' ' || line[i] == '\t' || line[i] == '\f') {
		i++
	}
	return string(line[:i])
}

func isBlankOrComment(b []byte) bool {
	t := bytes.TrimSpace(b)
	return len(t) == 0 || t[0] == '#'
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= 0x80
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}
