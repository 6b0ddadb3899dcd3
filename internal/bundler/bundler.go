// SPDX-License-Identifier: MPL-2.0

package bundler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"time"

	"github.com/pychunk/pychunk/internal/chunk"
	"github.com/pychunk/pychunk/internal/dag"
	"github.com/pychunk/pychunk/internal/depgraph"
	"github.com/pychunk/pychunk/internal/emit"
	"github.com/pychunk/pychunk/internal/issue"
	"github.com/pychunk/pychunk/internal/manifest"
	"github.com/pychunk/pychunk/internal/minify"
	"github.com/pychunk/pychunk/internal/resolve"
)

// ErrNoEntry is returned when Options has no entry module.
var ErrNoEntry = errors.New("no entry module given")

type (
	// Options configures one build. Relative paths are taken relative to
	// the working directory.
	Options struct {
		Entry string
		// Root is the project root. Empty means the entry file's directory.
		Root string
		// OutDir receives the chunk files and the manifest. Empty means
		// "dist" under Root.
		OutDir string
		// Ext is the source and output extension without the dot.
		Ext          string
		DefaultChunk string
		// Chunks are the configured chunks. Their entry points are
		// relative to Root.
		Chunks   []chunk.Spec
		Auto     chunk.AutoOptions
		Standard []string
		Workers  int
		Minifier minify.Minifier
		// DynamicImports enables the dynamic import diagnostic scan.
		DynamicImports bool
		CacheEntries   int
		// Prune removes chunk files of earlier builds once the manifest is written.
		Prune bool
		// Reader overrides the per-build source cache, e.g. to share one
		// across watch-mode rebuilds.
		Reader depgraph.Reader
		Now    func() time.Time
	}

	// State is threaded through the build phases. Each phase fills in its
	// result; a failed build returns the partial State.
	State struct {
		Options      Options
		Graph        *depgraph.Graph
		Sorted       []string
		Assignment   *chunk.Assignment
		Outputs      []emit.Output
		Manifest     *manifest.Manifest
		ManifestPath string
		Pruned       []string
		Started      time.Time
		Duration     time.Duration

		resolver *resolve.Resolver
		reader   depgraph.Reader
	}

	phase struct {
		name string
		run  func(context.Context, *State) error
	}
)

var (
	planPhases = []phase{
		{"discover", discover},
		{"sort", sortModules},
		{"assign", assign},
	}
	buildPhases = append(slices.Clone(planPhases),
		phase{"emit", emitChunks},
		phase{"publish", publish},
	)
)

// Build runs discovery, sorting, assignment, emission and publication in
// sequence. A cancelled context fails the build and no manifest is written.
func Build(ctx context.Context, opts Options) (*State, error) {
	return run(ctx, opts, buildPhases)
}

// Plan runs discovery, sorting and assignment without writing anything.
func Plan(ctx context.Context, opts Options) (*State, error) {
	return run(ctx, opts, planPhases)
}

func run(ctx context.Context, opts Options, phases []phase) (*State, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}

	st := &State{Options: opts, Started: opts.Now()}
	for _, ph := range phases {
		if err := ctx.Err(); err != nil {
			return st, fmt.Errorf("build canceled before %s: %w", ph.name, err)
		}
		start := time.Now()
		if err := ph.run(ctx, st); err != nil {
			return st, err
		}
		slog.Debug("build phase complete", "phase", ph.name, "duration", time.Since(start))
	}
	st.Duration = opts.Now().Sub(st.Started)
	return st, nil
}

func (o Options) withDefaults() (Options, error) {
	if o.Entry == "" {
		return o, ErrNoEntry
	}
	entry, err := filepath.Abs(o.Entry)
	if err != nil {
		return o, fmt.Errorf("resolve entry %q: %w", o.Entry, err)
	}
	o.Entry = entry
	if o.Root == "" {
		o.Root = filepath.Dir(entry)
	}
	if o.Root, err = filepath.Abs(o.Root); err != nil {
		return o, fmt.Errorf("resolve root: %w", err)
	}
	if o.OutDir == "" {
		o.OutDir = filepath.Join(o.Root, "dist")
	}
	if o.OutDir, err = filepath.Abs(o.OutDir); err != nil {
		return o, fmt.Errorf("resolve output directory: %w", err)
	}
	if o.Ext == "" {
		o.Ext = resolve.DefaultExtension
	}
	if o.DefaultChunk == "" {
		o.DefaultChunk = chunk.DefaultName
	}
	if o.Minifier == nil {
		o.Minifier = minify.Nop{}
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o, nil
}

func discover(ctx context.Context, st *State) error {
	o := st.Options
	r, err := resolve.New(o.Root, resolve.WithExtension(o.Ext), resolve.WithStandard(resolve.StandardPredicate(o.Standard...)))
	if err != nil {
		return err
	}
	st.resolver = r

	st.reader = o.Reader
	if st.reader == nil {
		cache, err := depgraph.NewSourceCache(o.CacheEntries)
		if err != nil {
			return err
		}
		st.reader = cache
	}

	b := &depgraph.Builder{Resolver: r, Reader: st.reader, DynamicImports: o.DynamicImports}
	g, err := b.Build(ctx, o.Entry)
	if err != nil {
		if errors.Is(err, depgraph.ErrEntryNotFound) || errors.Is(err, depgraph.ErrEntryOutsideRoot) {
			return issue.NewErrorContext().
				WithOperation("discover modules").
				WithResource(o.Entry).
				WithSuggestion("Check the entry file path").
				WithSuggestion("The entry file must be inside the project root ('--root')").
				WithIssue(issue.EntryNotFoundId).
				Wrap(err).
				BuildError()
		}
		return err
	}
	st.Graph = g
	slog.Info("discovered modules", "count", g.Len(), "root", g.Root)
	return nil
}

func sortModules(_ context.Context, st *State) error {
	g := st.Graph
	d := dag.New()
	for _, m := range g.Order {
		d.AddNode(m)
		for _, dep := range g.DepsOf(m) {
			d.AddEdge(dep, m)
		}
	}

	sorted, err := d.TopologicalSort()
	if err != nil {
		var cycleErr *dag.CycleError
		if errors.As(err, &cycleErr) {
			rel := make([]string, len(cycleErr.Cycle))
			for i, p := range cycleErr.Cycle {
				rel[i] = g.Rel(p)
			}
			err = &dag.CycleError{Cycle: rel}
		}
		return issue.NewErrorContext().
			WithOperation("sort modules").
			WithSuggestion("Break the circular import, e.g. by moving shared code into a new module").
			WithSuggestion("Run 'pychunk graph' to inspect the import graph").
			WithIssue(issue.DependencyCycleId).
			Wrap(err).
			BuildError()
	}
	st.Sorted = sorted
	return nil
}

func assign(_ context.Context, st *State) error {
	o := st.Options
	specs := make([]chunk.Spec, 0, len(o.Chunks))
	for _, s := range o.Chunks {
		anchored := chunk.Spec{Name: s.Name, Includes: s.Includes}
		for _, ep := range s.EntryPoints {
			anchored.EntryPoints = append(anchored.EntryPoints, anchor(o.Root, ep))
		}
		specs = append(specs, anchored)
	}

	a, err := chunk.Assign(chunk.Input{
		Modules: st.Sorted,
		Deps:    st.Graph.DepsOf,
		Rel:     st.Graph.Rel,
		Entry:   st.Graph.Entry,
		Default: o.DefaultChunk,
		Specs:   specs,
		Auto:    o.Auto,
	})
	if err != nil {
		if errors.Is(err, chunk.ErrInvalidPattern) {
			return issue.NewErrorContext().
				WithOperation("assign chunks").
				WithSuggestion("Fix the include pattern, or use a 'glob:' pattern").
				WithIssue(issue.InvalidChunkPatternId).
				Wrap(err).
				BuildError()
		}
		return err
	}
	if a.Auto {
		slog.Info("generated chunks automatically", "chunks", a.Names)
	}
	st.Assignment = a
	return nil
}

func emitChunks(ctx context.Context, st *State) error {
	o := st.Options
	e := &emit.Emitter{Reader: st.reader, Minifier: o.Minifier, Workers: o.Workers}
	outputs, err := e.EmitAll(ctx, &emit.Plan{
		Graph:      st.Graph,
		Assignment: st.Assignment,
		OutDir:     o.OutDir,
		Ext:        o.Ext,
	})
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("build canceled: %w", err)
		}
		return issue.NewErrorContext().
			WithOperation("emit chunks").
			WithResource(o.OutDir).
			WithSuggestion("Check that the output directory is writable").
			WithIssue(issue.OutputWriteFailedId).
			Wrap(err).
			BuildError()
	}
	st.Outputs = outputs
	return nil
}

func publish(_ context.Context, st *State) error {
	o := st.Options
	st.Manifest = manifest.Generate(manifest.Input{
		Version:    st.Started.Unix(),
		Assignment: st.Assignment,
		Outputs:    st.Outputs,
		Deps:       st.Graph.DepsOf,
		Rel:        st.Graph.Rel,
		Ext:        o.Ext,
	})
	path, err := manifest.Write(o.OutDir, st.Manifest)
	if err != nil {
		return issue.NewErrorContext().
			WithOperation("write manifest").
			WithResource(o.OutDir).
			WithIssue(issue.OutputWriteFailedId).
			Wrap(err).
			BuildError()
	}
	st.ManifestPath = path

	if o.Prune {
		pruned, err := emit.PruneStale(o.OutDir, o.Ext, st.Outputs)
		if err != nil {
			slog.Warn("failed to prune stale chunk files", "dir", o.OutDir, "error", err)
		}
		st.Pruned = pruned
		if len(pruned) > 0 {
			slog.Info("pruned stale chunk files", "count", len(pruned))
		}
	}
	return nil
}

// TotalSize returns the summed size of the written chunk files.
func (st *State) TotalSize() int {
	total := 0
	for _, o := range st.Outputs {
		total += o.Size
	}
	return total
}

// ModuleCount returns the number of discovered modules.
func (st *State) ModuleCount() int {
	if st.Graph == nil {
		return 0
	}
	return st.Graph.Len()
}

func anchor(base, p string) string {
	p = filepath.FromSlash(p)
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(base, p)
}
