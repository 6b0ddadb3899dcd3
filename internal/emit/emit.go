// SPDX-License-Identifier: MPL-2.0

// Package emit assembles and writes chunk files.
package emit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/pychunk/pychunk/internal/chunk"
	"github.com/pychunk/pychunk/internal/dag"
	"github.com/pychunk/pychunk/internal/depgraph"
	"github.com/pychunk/pychunk/internal/minify"
	"github.com/pychunk/pychunk/internal/pyimport"
	"github.com/pychunk/pychunk/internal/resolve"
)

// HashLen is the number of hex digits of the content hash used in file names.
const HashLen = 8

// ErrNoPlan is returned when EmitAll is called without a graph or assignment.
var ErrNoPlan = errors.New("emit plan is incomplete")

type (
	// Plan is the fixed input of the emission phase.
	Plan struct {
		Graph *depgraph.Graph
		// Assignment is updated in place: chunks without content are dropped.
		Assignment *chunk.Assignment
		OutDir     string
		// Ext is the output extension without the dot.
		Ext string
	}

	// Chunk is the assembled, unminified text of one chunk.
	Chunk struct {
		Name string
		Text string
		// Empty is set when no member contributed body content.
		Empty bool
		// Loads lists the chunk references passed to the loader, in call order.
		Loads []string
	}

	// Output describes a written chunk file.
	Output struct {
		Chunk string
		Hash  string
		// File is the base name, {chunk}.{hash}.{ext}.
		File string
		Path string
		Size int
		// Minified reports whether the minifier output was written.
		Minified bool
		Modules  []string
	}

	// Emitter builds chunk files. Non-default chunks are built concurrently.
	Emitter struct {
		Reader   depgraph.Reader
		Minifier minify.Minifier
		// Workers bounds concurrent chunk builds. Zero or less means one per CPU.
		Workers int
	}

	importGroups struct {
		future, std, ext, rel map[string]bool
	}
)

// Hash returns the short content hash of a chunk text.
func Hash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])[:HashLen]
}

// FileName returns the output file name of a chunk.
func FileName(name, hash, ext string) string {
	return name + "." + hash + "." + ext
}

func (e *Emitter) workers() int {
	if e.Workers > 0 {
		return e.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// EmitAll assembles and writes every chunk of the plan. Chunks with no body
// content are skipped and dropped from the assignment; the default chunk is
// built last so its load calls can use the final hashes. Outputs follow the
// assignment's chunk order, default first.
func (e *Emitter) EmitAll(ctx context.Context, p *Plan) ([]Output, error) {
	if p == nil || p.Graph == nil || p.Assignment == nil {
		return nil, ErrNoPlan
	}
	if p.Ext == "" {
		p.Ext = resolve.DefaultExtension
	}
	if err := os.MkdirAll(p.OutDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	a := p.Assignment
	var (
		mu      sync.Mutex
		hashes  = make(map[string]string)
		outputs = make(map[string]Output)
		empty   = make(map[string]bool)
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers())
	for _, name := range a.Names {
		if name == a.Default {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			c, err := e.Assemble(p, name, nil)
			if err != nil {
				return err
			}
			if c.Empty {
				slog.Info("skipping empty chunk", "chunk", name)
				mu.Lock()
				empty[name] = true
				mu.Unlock()
				return nil
			}
			out, err := e.write(gctx, p, c)
			if err != nil {
				return err
			}
			mu.Lock()
			hashes[name] = out.Hash
			outputs[name] = out
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, name := range append([]string(nil), a.Names...) {
		if empty[name] {
			a.Drop(name)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mainChunk, err := e.Assemble(p, a.Default, hashes)
	if err != nil {
		return nil, err
	}
	out, err := e.write(ctx, p, mainChunk)
	if err != nil {
		return nil, err
	}
	outputs[a.Default] = out

	result := make([]Output, 0, len(outputs))
	for _, name := range a.Names {
		if o, ok := outputs[name]; ok {
			result = append(result, o)
		}
	}
	return result, nil
}

func (e *Emitter) write(ctx context.Context, p *Plan, c *Chunk) (Output, error) {
	hash := Hash(c.Text)
	text, minified := minify.Apply(ctx, e.Minifier, c.Name, c.Text)
	text = strings.ReplaceAll(text, "\r\n", "\n")

	file := FileName(c.Name, hash, p.Ext)
	path := filepath.Join(p.OutDir, file)
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return Output{}, fmt.Errorf("failed to write chunk %q: %w", c.Name, err)
	}
	slog.Debug("wrote chunk", "chunk", c.Name, "file", file, "bytes", len(text))
	return Output{
		Chunk:    c.Name,
		Hash:     hash,
		File:     file,
		Path:     path,
		Size:     len(text),
		Minified: minified,
		Modules:  p.Assignment.Members[c.Name],
	}, nil
}

// Assemble builds the text of one chunk. hashes maps chunk names to known
// content hashes; it is only consulted for the default chunk's load calls.
func (e *Emitter) Assemble(p *Plan, name string, hashes map[string]string) (*Chunk, error) {
	a := p.Assignment
	ext := p.Ext
	if ext == "" {
		ext = resolve.DefaultExtension
	}
	groups := importGroups{
		future: make(map[string]bool),
		std:    make(map[string]bool),
		ext:    make(map[string]bool),
		rel:    make(map[string]bool),
	}

	var bodies []string
	empty := true
	for _, path := range a.Members[name] {
		body, err := e.moduleBody(p, name, path, &groups)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(body) != "" {
			empty = false
		}
		bodies = append(bodies, "# Module: "+p.Graph.Rel(path)+"\n"+strings.TrimRight(body, "\n"))
	}

	c := &Chunk{Name: name, Empty: empty}
	blocks := []string{"# Chunk: " + name}
	blocks = appendGroup(blocks, groups.future)
	if name == a.Default {
		c.Empty = false
		blocks = append(blocks, LoaderPreamble(ext))
	}
	blocks = appendGroup(blocks, groups.std)
	blocks = appendGroup(blocks, groups.ext)
	blocks = appendGroup(blocks, groups.rel)
	if name == a.Default {
		var calls []string
		for _, dep := range loadOrder(p) {
			ref := dep
			if h := hashes[dep]; h != "" {
				ref = dep + "." + h
			}
			c.Loads = append(c.Loads, ref)
			calls = append(calls, loadCall(ref))
		}
		if len(calls) > 0 {
			blocks = append(blocks, strings.Join(calls, "\n"))
		}
	}
	blocks = append(blocks, bodies...)
	c.Text = strings.Join(blocks, "\n\n") + "\n"
	return c, nil
}

// moduleBody returns the module source with bundled imports removed and
// records the imports that must be re-emitted at the top of the chunk.
func (e *Emitter) moduleBody(p *Plan, name, path string, groups *importGroups) (string, error) {
	src, err := e.Reader.Read(path)
	if err != nil {
		return "", fmt.Errorf("failed to read module %s: %w", p.Graph.Rel(path), err)
	}
	mod := p.Graph.Module(path)
	if mod == nil || mod.ParseErr != nil {
		return normalize(string(src)), nil
	}
	f, err := pyimport.Parse(src)
	if err != nil {
		return normalize(string(src)), nil
	}

	owner := p.Assignment.Owner
	keep := func(st pyimport.Statement) bool {
		res := resolutions(mod, st)
		if st.Nested {
			internal := false
			for _, r := range res {
				internal = internal || r.Kind == resolve.Internal
			}
			if !internal {
				return true
			}
		}
		for i, d := range st.Decls {
			line := d.String()
			switch {
			case d.IsFuture():
				groups.future[line] = true
			case d.Kind == pyimport.KindRelative:
				targets := res[i].Targets()
				local := len(targets) > 0
				for _, t := range targets {
					local = local && owner[t] == name
				}
				if !local {
					groups.rel[line] = true
				}
			case res[i].Kind == resolve.Standard:
				groups.std[line] = true
			case res[i].Kind == resolve.Internal:
			default:
				groups.ext[line] = true
			}
		}
		return false
	}
	return f.Strip(keep), nil
}

// resolutions returns the graph's resolution of each declaration of st.
func resolutions(mod *depgraph.Module, st pyimport.Statement) []resolve.Resolution {
	out := make([]resolve.Resolution, len(st.Decls))
	for i := range st.Decls {
		if j := st.First + i; j < len(mod.Resolutions) {
			out[i] = mod.Resolutions[j]
		} else {
			out[i] = resolve.Resolution{Kind: resolve.External}
		}
	}
	return out
}

// loadOrder returns the non-default chunks the default chunk depends on,
// directly or through other chunks, dependencies first.
func loadOrder(p *Plan) []string {
	a := p.Assignment
	deps := a.Dependencies(p.Graph.DepsOf)

	seen := map[string]bool{a.Default: true}
	queue := []string{a.Default}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, d := range deps[cur] {
			if !seen[d] {
				seen[d] = true
				queue = append(queue, d)
			}
		}
	}

	g := dag.New()
	var names []string
	for _, n := range a.Names {
		if n != a.Default && seen[n] {
			names = append(names, n)
			g.AddNode(n)
		}
	}
	for _, n := range names {
		for _, d := range deps[n] {
			if d != a.Default && seen[d] {
				g.AddEdge(d, n)
			}
		}
	}
	order, err := g.TopologicalSort()
	if err != nil {
		slog.Warn("chunks depend on each other, loading in registration order", "error", err)
		return names
	}
	return order
}

func appendGroup(blocks []string, set map[string]bool) []string {
	if len(set) == 0 {
		return blocks
	}
	lines := make([]string, 0, len(set))
	for l := range set {
		lines = append(lines, l)
	}
	sort.Strings(lines)
	return append(blocks, strings.Join(lines, "\n"))
}

func normalize(s string) string {
	s = strings.TrimPrefix(s, "\ufeff")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// PruneStale removes hashed chunk files in dir that are not among outputs.
// Only names of the form {chunk}.{hash}.{ext} are considered.
func PruneStale(dir, ext string, outputs []Output) ([]string, error) {
	current := make(map[string]bool, len(outputs))
	for _, o := range outputs {
		current[o.File] = true
	}
	matches, err := filepath.Glob(filepath.Join(dir, "*."+ext))
	if err != nil {
		return nil, err
	}
	var removed []string
	for _, m := range matches {
		base := filepath.Base(m)
		if current[base] || !isHashedName(base, ext) {
			continue
		}
		if err := os.Remove(m); err != nil {
			return removed, fmt.Errorf("failed to remove stale chunk %s: %w", base, err)
		}
		removed = append(removed, base)
	}
	return removed, nil
}

func isHashedName(base, ext string) bool {
	stem, ok := strings.CutSuffix(base, "."+ext)
	if !ok {
		return false
	}
	i := strings.LastIndexByte(stem, '.')
	if i <= 0 || len(stem)-i-1 != HashLen {
		return false
	}
	for _, r := range stem[i+1:] {
		if !strings.ContainsRune("0123456789abcdef", r) {
			return false
		}
	}
	return true
}
