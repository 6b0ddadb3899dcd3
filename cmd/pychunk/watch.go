// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pychunk/pychunk/internal/bundler"
	"github.com/pychunk/pychunk/internal/config"
	"github.com/pychunk/pychunk/internal/depgraph"
	"github.com/pychunk/pychunk/internal/watch"
)

// runWatchMode builds once, then rebuilds whenever a source under the
// project root or the project config changes. Rebuilds share a source
// cache; changed files are forgotten before each rebuild. It blocks until
// the context is cancelled (e.g., Ctrl+C).
func runWatchMode(cmd *cobra.Command, app *App, rootFlags *rootFlagValues, flags *buildFlagValues, args []string) error {
	opts, err := app.buildOptions(cmd, rootFlags, flags, args)
	if err != nil {
		return err
	}
	cache, err := depgraph.NewSourceCache(opts.CacheEntries)
	if err != nil {
		return err
	}

	root := opts.Root
	if root == "" {
		root = filepath.Dir(opts.Entry)
	}
	if root, err = filepath.Abs(root); err != nil {
		return err
	}

	rebuild := func(ctx context.Context) {
		o := opts
		o.Reader = cache
		st, err := bundler.Build(ctx, o)
		if err != nil {
			issueID, msg := classifyBuildError(err, app.verbose())
			// Keep watching; the next save may fix it.
			renderServiceError(app.stderr, newServiceError(err, issueID, msg), app.style)
			return
		}
		app.renderReport(app.stdout, st)
	}

	fmt.Fprintf(app.stdout, "%s Watch mode: initial build of %s\n", VerboseStyle.Render("→"), displayPath(opts.Entry))
	rebuild(cmd.Context())
	fmt.Fprintf(app.stdout, "\n%s Watching %s for changes (Ctrl+C to stop)...\n\n", VerboseStyle.Render("→"), displayPath(root))

	w, err := watch.New(watch.Config{
		Root:        root,
		Extension:   opts.Ext,
		ConfigFiles: watchedConfigFiles(root, rootFlags),
		OutDir:      opts.OutDir,
		Stdout:      app.stdout,
		OnChange: func(ctx context.Context, batch watch.Batch) error {
			fmt.Fprintf(app.stdout, "%s Detected %d change(s). Rebuilding...\n", VerboseStyle.Render("→"), batch.Len())
			if batch.ConfigChanged() {
				next, err := app.buildOptions(cmd, rootFlags, flags, args)
				if err != nil {
					// Already rendered; keep building with the previous config.
					return nil
				}
				opts = next
				cache.Purge()
			} else {
				for _, rel := range batch.Sources {
					cache.Forget(filepath.Join(root, filepath.FromSlash(rel)))
				}
			}
			rebuild(ctx)
			fmt.Fprintf(app.stdout, "\n%s Watching for changes...\n\n", VerboseStyle.Render("→"))
			return nil
		},
	})
	if err != nil {
		return app.fail(ExitUsage, newServiceError(fmt.Errorf("failed to start watcher: %w", err), 0, styledError(err, app.verbose())))
	}
	return w.Run(cmd.Context())
}

// watchedConfigFiles lists the config files inside root whose changes
// reload the configuration.
func watchedConfigFiles(root string, flags *rootFlagValues) []string {
	dir := flags.dir
	if dir == "" {
		dir = "."
	}
	candidates := []string{config.EnvFileName}
	for _, format := range config.Formats() {
		candidates = append(candidates, config.ConfigFileName+"."+format)
	}
	paths := make([]string, 0, len(candidates)+1)
	for _, name := range candidates {
		paths = append(paths, filepath.Join(dir, name))
	}
	if flags.configPath != "" {
		p := flags.configPath
		if !filepath.IsAbs(p) {
			p = filepath.Join(dir, p)
		}
		paths = append(paths, p)
	}

	var out []string
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			continue
		}
		rel, err := filepath.Rel(root, abs)
		if err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		out = append(out, filepath.ToSlash(rel))
	}
	return out
}
