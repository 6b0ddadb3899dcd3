// SPDX-License-Identifier: MPL-2.0

package chunk

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// GlobPrefix marks an include pattern as a doublestar glob instead of a
// regular expression.
const GlobPrefix = "glob:"

// ErrInvalidPattern is returned for an include pattern that does not compile.
var ErrInvalidPattern = errors.New("invalid include pattern")

type (
	// Matcher tests project-relative module paths (forward slashes).
	Matcher interface {
		Match(rel string) bool
		String() string
	}

	regexMatcher struct {
		src string
		re  *regexp.Regexp
	}

	globMatcher struct {
		src     string
		pattern string
	}
)

// CompilePattern compiles an include pattern. Plain patterns are regular
// expressions matched at the start of the path; a "glob:" prefix selects a
// doublestar glob matched against the whole path.
func CompilePattern(p string) (Matcher, error) {
	if g, ok := strings.CutPrefix(p, GlobPrefix); ok {
		if !doublestar.ValidatePattern(g) {
			return nil, fmt.Errorf("%w %q: malformed glob", ErrInvalidPattern, p)
		}
		return globMatcher{src: p, pattern: g}, nil
	}
	re, err := regexp.Compile(`^(?:` + p + `)`)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidPattern, p, err)
	}
	return regexMatcher{src: p, re: re}, nil
}

func (m regexMatcher) Match(rel string) bool { return m.re.MatchString(rel) }
func (m regexMatcher) String() string        { return m.src }

func (m globMatcher) Match(rel string) bool {
	ok, err := doublestar.Match(m.pattern, rel)
	return err == nil && ok
}

func (m globMatcher) String() string { return m.src }

func compileAll(patterns []string) ([]Matcher, error) {
	out := make([]Matcher, 0, len(patterns))
	for _, p := range patterns {
		m, err := CompilePattern(p)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func matchAny(ms []Matcher, rel string) bool {
	for _, m := range ms {
		if m.Match(rel) {
			return true
		}
	}
	return false
}
