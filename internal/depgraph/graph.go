// SPDX-License-Identifier: MPL-2.0

// Package depgraph discovers the project modules reachable from an entry
// file and records the internal import edges between them.
package depgraph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"

	"github.com/pychunk/pychunk/internal/pyimport"
	"github.com/pychunk/pychunk/internal/resolve"
)

var (
	// ErrEntryNotFound is returned when the entry file cannot be read.
	ErrEntryNotFound = errors.New("entry module not found")

	// ErrEntryOutsideRoot is returned when the entry file is not under the project root.
	ErrEntryOutsideRoot = errors.New("entry module is outside the project root")
)

type (
	// Module is one discovered source file.
	Module struct {
		// Path is the absolute, cleaned file path. It identifies the module.
		Path string
		// Rel is Path relative to the project root, with forward slashes.
		Rel string
		// Decls are the module's import declarations in source order.
		Decls []pyimport.Decl
		// Resolutions holds the resolution of each entry of Decls.
		Resolutions []resolve.Resolution
		// Deps are the internal modules this module imports, in first-import order.
		Deps []string
		// ParseErr is set when the source could not be tokenized. Such a
		// module has no dependencies and is emitted verbatim.
		ParseErr error
		// Dynamic lists runtime import calls found by the diagnostic scan.
		Dynamic []pyimport.DynamicImport
	}

	// Graph is the discovered module graph.
	Graph struct {
		Root  string
		Entry string
		// Order lists module paths in discovery order, entry first.
		Order   []string
		Modules map[string]*Module
	}

	// Builder discovers a Graph.
	Builder struct {
		Resolver *resolve.Resolver
		Reader   Reader
		// DynamicImports enables the dynamic import diagnostic scan.
		DynamicImports bool
	}

	walker struct {
		*Builder
		ctx    context.Context
		graph  *Graph
		failed map[string]bool
	}
)

// Build discovers every internal module transitively imported by entry.
// Each file is read and parsed once. Unreadable dependencies and sources
// that fail to parse are logged and skipped; an unreadable entry fails the build.
func (b *Builder) Build(ctx context.Context, entry string) (*Graph, error) {
	abs, err := filepath.Abs(entry)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrEntryNotFound, entry, err)
	}
	abs = filepath.Clean(abs)
	if !b.Resolver.Within(abs) {
		return nil, fmt.Errorf("%w: %s is not under %s", ErrEntryOutsideRoot, entry, b.Resolver.Root())
	}

	w := &walker{
		Builder: b,
		ctx:     ctx,
		graph: &Graph{
			Root:    b.Resolver.Root(),
			Entry:   abs,
			Modules: make(map[string]*Module),
		},
		failed: make(map[string]bool),
	}
	if _, err := w.visit(abs); err != nil {
		return nil, err
	}
	return w.graph, nil
}

func (w *walker) visit(path string) (bool, error) {
	if _, ok := w.graph.Modules[path]; ok {
		return true, nil
	}
	if w.failed[path] {
		return false, nil
	}
	if err := w.ctx.Err(); err != nil {
		return false, err
	}

	rel := w.Resolver.Rel(path)
	src, err := w.Reader.Read(path)
	if err != nil {
		if path == w.graph.Entry {
			return false, fmt.Errorf("%w: %s: %w", ErrEntryNotFound, rel, err)
		}
		w.failed[path] = true
		slog.Warn("skipping unreadable module", "module", rel, "error", err)
		return false, nil
	}

	m := &Module{Path: path, Rel: rel}
	w.graph.Modules[path] = m
	w.graph.Order = append(w.graph.Order, path)

	f, err := pyimport.Parse(src)
	if err != nil {
		m.ParseErr = err
		slog.Warn("cannot parse module, emitting it verbatim", "module", rel, "error", err)
		return true, nil
	}

	m.Decls = f.Decls
	m.Resolutions = make([]resolve.Resolution, len(f.Decls))
	for i, d := range f.Decls {
		res := w.Resolver.Resolve(d, path)
		m.Resolutions[i] = res
		for _, target := range res.Targets() {
			if target == path {
				continue
			}
			ok, err := w.visit(target)
			if err != nil {
				return false, err
			}
			if ok && !slices.Contains(m.Deps, target) {
				m.Deps = append(m.Deps, target)
			}
		}
	}

	if w.DynamicImports {
		w.scanDynamic(m, src)
	}
	return true, nil
}

func (w *walker) scanDynamic(m *Module, src []byte) {
	found, err := pyimport.ScanDynamic(w.ctx, src)
	if err != nil {
		slog.Debug("dynamic import scan failed", "module", m.Rel, "error", err)
		return
	}
	m.Dynamic = found
	for _, d := range found {
		slog.Warn("dynamic import is not bundled", "module", m.Rel, "line", d.Line, "call", d.Via, "target", d.Module)
	}
}

// Module returns the module at path, or nil.
func (g *Graph) Module(path string) *Module {
	return g.Modules[path]
}

// DepsOf returns the internal dependencies of path, or nil for an unknown path.
func (g *Graph) DepsOf(path string) []string {
	if m := g.Modules[path]; m != nil {
		return m.Deps
	}
	return nil
}

// Rel returns the project-relative path of a module, or path itself when
// the module is unknown.
func (g *Graph) Rel(path string) string {
	if m := g.Modules[path]; m != nil {
		return m.Rel
	}
	return path
}

// Len returns the number of discovered modules.
func (g *Graph) Len() int {
	return len(g.Order)
}

// Dependents maps every module to the modules importing it, in discovery order.
func (g *Graph) Dependents() map[string][]string {
	out := make(map[string][]string, len(g.Order))
	for _, p := range g.Order {
		for _, dep := range g.Modules[p].Deps {
			out[dep] = append(out[dep], p)
		}
	}
	return out
}
