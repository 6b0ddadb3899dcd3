// SPDX-License-Identifier: MPL-2.0

// Package chunk partitions sorted modules into named chunks.
package chunk

import (
	"fmt"
	"log/slog"
	"slices"
	"sort"
)

const (
	// DefaultName is the name of the chunk that holds the entry module
	// and the runtime loader.
	DefaultName = "main"
	// DefaultMinSize is the smallest group automatic chunking will create.
	DefaultMinSize = 2
	// DefaultThreshold is the Jaccard similarity two modules must exceed to
	// share an automatic chunk.
	DefaultThreshold = 0.5
)

type (
	// Spec describes one configured chunk.
	Spec struct {
		Name string
		// EntryPoints are module paths forced into the chunk.
		EntryPoints []string
		// Includes are patterns matched against project-relative module paths.
		Includes []string
	}

	// AutoOptions tune automatic chunking.
	AutoOptions struct {
		MinSize   int
		Threshold float64
	}

	// Input is everything the assigner needs to know about the build.
	Input struct {
		// Modules lists module paths in sorted order, dependencies first.
		Modules []string
		// Deps returns the direct internal dependencies of a module.
		Deps func(string) []string
		// Rel maps a module path to its project-relative slash path.
		Rel     func(string) string
		Entry   string
		Default string
		// Specs are the configured chunks. Automatic chunking applies when empty.
		Specs []Spec
		Auto  AutoOptions
	}

	// Assignment maps every module to exactly one chunk.
	Assignment struct {
		Default string
		// Names lists non-empty chunks in registration order, default first.
		Names []string
		// Members lists each chunk's modules in sorted order.
		Members map[string][]string
		Owner   map[string]string
		// Auto is set when the chunks were generated automatically.
		Auto bool
	}
)

func (in Input) withDefaults() Input {
	if in.Default == "" {
		in.Default = DefaultName
	}
	if in.Auto.MinSize <= 0 {
		in.Auto.MinSize = DefaultMinSize
	}
	if in.Auto.Threshold <= 0 {
		in.Auto.Threshold = DefaultThreshold
	}
	if in.Rel == nil {
		in.Rel = func(p string) string { return p }
	}
	if in.Deps == nil {
		in.Deps = func(string) []string { return nil }
	}
	return in
}

// Assign distributes in.Modules over chunks.
//
// Configured chunks claim modules through entry points and include
// patterns; a later chunk's claim replaces an earlier one, except that the
// default chunk's claims (the entry module, or a chunk configured under the
// default name) always win. Unclaimed modules join the chunk owning most of
// their direct dependencies, ties going to the dependency imported first,
// and otherwise the default chunk. Without configured chunks, directory and
// similarity groups are generated and the first group to claim a module
// keeps it.
func Assign(in Input) (*Assignment, error) {
	in = in.withDefaults()

	specs, auto := in.Specs, false
	if len(specs) == 0 {
		specs, auto = AutoSpecs(in), true
	}

	known := make(map[string]bool, len(in.Modules))
	for _, m := range in.Modules {
		known[m] = true
	}

	owner := make(map[string]string, len(in.Modules))
	sticky := map[string]bool{in.Entry: true}
	names := []string{in.Default}

	for _, s := range specs {
		if !slices.Contains(names, s.Name) {
			names = append(names, s.Name)
		}
		matchers, err := compileAll(s.Includes)
		if err != nil {
			return nil, fmt.Errorf("chunk %q: %w", s.Name, err)
		}

		claim := func(m string) {
			switch {
			case s.Name == in.Default:
				sticky[m] = true
			case auto && owner[m] != "":
				// generated groups keep their first claim
			default:
				owner[m] = s.Name
			}
		}
		for _, ep := range s.EntryPoints {
			if !known[ep] {
				slog.Warn("chunk entry point was not discovered", "chunk", s.Name, "module", in.Rel(ep))
				continue
			}
			claim(ep)
		}
		if len(matchers) > 0 {
			for _, m := range in.Modules {
				if matchAny(matchers, in.Rel(m)) {
					claim(m)
				}
			}
		}
	}
	for m := range sticky {
		if known[m] {
			owner[m] = in.Default
		}
	}

	for _, m := range in.Modules {
		if owner[m] == "" {
			owner[m] = plurality(in, owner, m)
		}
	}

	a := &Assignment{
		Default: in.Default,
		Members: make(map[string][]string),
		Owner:   owner,
		Auto:    auto,
	}
	for _, m := range in.Modules {
		a.Members[owner[m]] = append(a.Members[owner[m]], m)
	}
	for _, n := range names {
		if n == in.Default || len(a.Members[n]) > 0 {
			a.Names = append(a.Names, n)
		} else {
			slog.Info("chunk has no modules", "chunk", n)
		}
	}
	return a, nil
}

func plurality(in Input, owner map[string]string, m string) string {
	counts := make(map[string]int)
	best, bestCount := "", 0
	for _, d := range in.Deps(m) {
		c := owner[d]
		if c == "" {
			continue
		}
		counts[c]++
		if counts[c] > bestCount {
			best, bestCount = c, counts[c]
		}
	}
	if best == "" {
		return in.Default
	}
	return best
}

// Drop removes an empty chunk from the assignment. Members of a dropped
// chunk are not reassigned: they lose their owner and are left out of the
// manifest's module map. Callers only drop chunks whose modules have no
// emitted content.
func (a *Assignment) Drop(name string) {
	if name == a.Default {
		return
	}
	a.Names = slices.DeleteFunc(a.Names, func(n string) bool { return n == name })
	for _, m := range a.Members[name] {
		delete(a.Owner, m)
	}
	delete(a.Members, name)
}

// Has reports whether name is a live chunk.
func (a *Assignment) Has(name string) bool {
	return slices.Contains(a.Names, name)
}

// Dependencies returns, per chunk, the sorted names of the other live chunks
// owning a direct dependency of one of its members.
func (a *Assignment) Dependencies(deps func(string) []string) map[string][]string {
	out := make(map[string][]string, len(a.Names))
	for _, name := range a.Names {
		list := []string{}
		for _, m := range a.Members[name] {
			for _, d := range deps(m) {
				if c := a.Owner[d]; c != "" && c != name && a.Has(c) && !slices.Contains(list, c) {
					list = append(list, c)
				}
			}
		}
		sort.Strings(list)
		out[name] = list
	}
	return out
}
