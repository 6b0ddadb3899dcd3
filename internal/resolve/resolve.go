// SPDX-License-Identifier: MPL-2.0

// Package resolve classifies import declarations and maps project-internal
// ones to source files.
package resolve

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pychunk/pychunk/internal/pyimport"
)

// Kind classifies a resolved import.
type Kind int

const (
	// Standard is a standard library or builtin module.
	Standard Kind = iota + 1
	// Internal is a module backed by a file inside the project root.
	Internal
	// External is anything else: third-party packages and imports that
	// could not be located.
	External
)

// DefaultExtension is the source file extension used when none is configured.
const DefaultExtension = "py"

type (
	// Resolution is the outcome of resolving one declaration.
	Resolution struct {
		Kind Kind
		// Path is the primary target file of an internal import: the module
		// file or the package's __init__ file. It may be empty when only
		// Submodules matched.
		Path string
		// Submodules are extra files named by a from-import of a package
		// (`from pkg import mod` where pkg/mod.py exists).
		Submodules []string
	}

	// Resolver maps declarations to files under a project root.
	Resolver struct {
		root       string
		ext        string
		isStandard func(string) bool
	}

	// Option configures a Resolver.
	Option func(*Resolver)
)

func (k Kind) String() string {
	switch k {
	case Standard:
		return "standard"
	case Internal:
		return "internal"
	case External:
		return "external"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Targets returns every file an internal resolution points at.
func (r Resolution) Targets() []string {
	if r.Kind != Internal {
		return nil
	}
	out := make([]string, 0, 1+len(r.Submodules))
	if r.Path != "" {
		out = append(out, r.Path)
	}
	return append(out, r.Submodules...)
}

// WithExtension sets the source file extension (without the dot).
func WithExtension(ext string) Option {
	return func(r *Resolver) {
		if ext = strings.TrimPrefix(ext, "."); ext != "" {
			r.ext = ext
		}
	}
}

// WithStandard replaces the standard-module predicate.
func WithStandard(pred func(string) bool) Option {
	return func(r *Resolver) {
		if pred != nil {
			r.isStandard = pred
		}
	}
}

// New creates a Resolver for the project rooted at root.
func New(root string, opts ...Option) (*Resolver, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve project root %q: %w", root, err)
	}
	r := &Resolver{
		root:       filepath.Clean(abs),
		ext:        DefaultExtension,
		isStandard: IsStdlib,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Root returns the absolute project root.
func (r *Resolver) Root() string {
	return r.root
}

// Extension returns the source file extension without the dot.
func (r *Resolver) Extension() string {
	return r.ext
}

// Rel returns path relative to the project root using forward slashes.
func (r *Resolver) Rel(path string) string {
	rel, err := filepath.Rel(r.root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// Within reports whether path lies inside the project root.
func (r *Resolver) Within(path string) bool {
	rel, err := filepath.Rel(r.root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Resolve classifies d as imported from the file at from.
//
// The standard check runs first, on the top-level name. Internal lookups
// try the importing file's directory, then its parent, then the project
// root; at each base `a/b/c.py` is tried before `a/b/c/__init__.py`.
func (r *Resolver) Resolve(d pyimport.Decl, from string) Resolution {
	if d.Kind == pyimport.KindRelative {
		return r.relative(d, from)
	}
	if r.isStandard(d.Module) {
		return Resolution{Kind: Standard}
	}

	dir := filepath.Dir(from)
	for _, base := range r.bases(dir) {
		if res, ok := r.lookup(base, d); ok {
			return res
		}
	}
	return Resolution{Kind: External}
}

func (r *Resolver) relative(d pyimport.Decl, from string) Resolution {
	dir := filepath.Dir(from)
	for i := 1; i < d.Level; i++ {
		dir = filepath.Dir(dir)
	}
	if !r.Within(dir) {
		return Resolution{Kind: External}
	}

	if d.Module != "" {
		if res, ok := r.lookup(dir, d); ok {
			return res
		}
		return Resolution{Kind: External}
	}

	// `from . import a, b`: each name may be a sibling module; names that
	// are not come from the package's __init__ file.
	res := Resolution{Kind: Internal}
	needInit := false
	for _, n := range d.Names {
		if p, _ := r.module(dir, n.Name); p != "" {
			res.Submodules = append(res.Submodules, p)
			continue
		}
		needInit = true
	}
	if needInit {
		res.Path = r.file(filepath.Join(dir, "__init__."+r.ext))
	}
	if res.Path == "" && len(res.Submodules) == 0 {
		return Resolution{Kind: External}
	}
	return res
}

func (r *Resolver) lookup(base string, d pyimport.Decl) (Resolution, bool) {
	path, isPkg := r.module(base, d.Module)

	var subs []string
	if d.Kind != pyimport.KindPlain && (path == "" || isPkg) {
		pkgDir := filepath.Join(base, filepath.FromSlash(strings.ReplaceAll(d.Module, ".", "/")))
		for _, n := range d.Names {
			if n.Name == "*" {
				continue
			}
			if p, _ := r.module(pkgDir, n.Name); p != "" {
				subs = append(subs, p)
			}
		}
	}
	if path == "" && len(subs) == 0 {
		return Resolution{}, false
	}
	return Resolution{Kind: Internal, Path: path, Submodules: subs}, true
}

// module maps a dotted name under base to a file. It reports whether the
// match is a package __init__ file.
func (r *Resolver) module(base, dotted string) (string, bool) {
	rel := filepath.FromSlash(strings.ReplaceAll(dotted, ".", "/"))
	if p := r.file(filepath.Join(base, rel+"."+r.ext)); p != "" {
		return p, false
	}
	if p := r.file(filepath.Join(base, rel, "__init__."+r.ext)); p != "" {
		return p, true
	}
	return "", false
}

func (r *Resolver) file(path string) string {
	if !r.Within(path) {
		return ""
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return ""
	}
	return filepath.Clean(path)
}

func (r *Resolver) bases(dir string) []string {
	out := make([]string, 0, 3)
	for _, b := range []string{dir, filepath.Dir(dir), r.root} {
		if r.Within(b) && !slices.Contains(out, b) {
			out = append(out, b)
		}
	}
	return out
}
