// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pychunk/pychunk/internal/bundler"
	"github.com/pychunk/pychunk/internal/issue"
	"github.com/pychunk/pychunk/internal/minify"
)

type buildFlagValues struct {
	outDir         string
	root           string
	workers        int
	minify         bool
	minifyCmd      string
	prune          bool
	watch          bool
	dynamicImports bool
}

func newBuildCommand(app *App, rootFlags *rootFlagValues) *cobra.Command {
	flags := &buildFlagValues{}

	buildCmd := &cobra.Command{
		Use:   "build [entry]",
		Short: "Bundle an entry module and its local imports",
		Long: `Bundle an entry module and every project module it imports.

The entry defaults to the 'entry' setting of the project config. Chunk
files and manifest.json are written to the output directory ('dist' under
the project root unless configured).`,
		Args: maxArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.watch {
				return runWatchMode(cmd, app, rootFlags, flags, args)
			}
			opts, err := app.buildOptions(cmd, rootFlags, flags, args)
			if err != nil {
				return err
			}
			return app.runBuild(cmd, opts)
		},
	}

	f := buildCmd.Flags()
	f.StringVarP(&flags.outDir, "out-dir", "o", "", "output directory (default is dist under the project root)")
	f.StringVar(&flags.root, "root", "", "project root used to resolve imports (default is the entry file's directory)")
	f.IntVarP(&flags.workers, "workers", "j", 0, "chunks emitted in parallel (default is the number of CPUs)")
	f.BoolVar(&flags.minify, "minify", false, "pipe every chunk through the configured minifier command")
	f.StringVar(&flags.minifyCmd, "minify-cmd", "", "minifier shell command reading stdin and writing stdout (implies --minify)")
	f.BoolVar(&flags.prune, "prune", false, "remove chunk files left over from earlier builds")
	f.BoolVarP(&flags.watch, "watch", "w", false, "rebuild when sources or the config change")
	f.BoolVar(&flags.dynamicImports, "dynamic-imports", false, "report importlib.import_module and __import__ calls")

	return buildCmd
}

// buildOptions merges the project config with the command-line flags.
// Flag paths are relative to --dir, config paths to the config file.
func (app *App) buildOptions(cmd *cobra.Command, rootFlags *rootFlagValues, flags *buildFlagValues, args []string) (bundler.Options, error) {
	cfg, err := app.loadConfig(cmd, rootFlags)
	if err != nil {
		return bundler.Options{}, err
	}
	opts, err := bundler.OptionsFromConfig(cfg)
	if err != nil {
		issueID, msg := classifyConfigError(err, app.verbose())
		return opts, app.fail(ExitUsage, newServiceError(err, issueID, msg))
	}

	if len(args) == 1 {
		opts.Entry = app.path(rootFlags, args[0])
	}
	changed := cmd.Flags().Changed
	if changed("out-dir") {
		opts.OutDir = app.path(rootFlags, flags.outDir)
	}
	if changed("root") {
		opts.Root = app.path(rootFlags, flags.root)
	}
	if changed("workers") {
		opts.Workers = flags.workers
	}
	if changed("prune") {
		opts.Prune = flags.prune
	}
	if changed("dynamic-imports") {
		opts.DynamicImports = flags.dynamicImports
	}

	minifyCmd, minifyDir := flags.minifyCmd, rootFlags.dir
	if minifyCmd == "" && flags.minify && opts.Minifier == nil {
		minifyCmd, minifyDir = cfg.Minify.Command, cfg.BaseDir
	}
	switch {
	case minifyCmd != "":
		sh, err := minify.NewShell(minifyCmd)
		if err != nil {
			return opts, app.usageError("--minify-cmd: %w", err)
		}
		sh.Dir = minifyDir
		opts.Minifier = sh
	case changed("minify") && !flags.minify:
		opts.Minifier = nil
	case flags.minify && opts.Minifier == nil:
		return opts, app.usageError("--minify needs a command: pass --minify-cmd or set minify.command")
	}

	if opts.Entry == "" {
		return opts, app.usageError("no entry module: pass one, e.g. 'pychunk build app.py', or set 'entry' in the project config")
	}
	return opts, nil
}

func (app *App) runBuild(cmd *cobra.Command, opts bundler.Options) error {
	st, err := bundler.Build(cmd.Context(), opts)
	if err != nil {
		issueID, msg := classifyBuildError(err, app.verbose())
		return app.fail(ExitBuildFailed, newServiceError(err, issueID, msg))
	}
	app.renderReport(app.stdout, st)
	return nil
}

// renderReport prints one row per chunk followed by warnings and a summary.
func (app *App) renderReport(w io.Writer, st *bundler.State) {
	fmt.Fprintln(w, TitleStyle.Render("Chunks"))
	for _, o := range st.Outputs {
		fmt.Fprintln(w, "  "+
			reportNameStyle.Render(o.Chunk)+
			reportFileStyle.Render(o.File)+
			reportSizeStyle.Render(formatSize(o.Size)))
	}
	fmt.Fprintf(w, "  %s%s\n", reportNameStyle.Render("manifest"), VerboseStyle.Render(displayPath(st.ManifestPath)))
	for _, name := range st.Pruned {
		fmt.Fprintf(w, "  %s%s\n", reportNameStyle.Render("pruned"), SubtitleStyle.Render(name))
	}

	app.renderWarnings(w, st)

	fmt.Fprintf(w, "\n%s Bundled %d modules into %d chunks (%s) in %s\n",
		SuccessStyle.Render("✓"),
		st.ModuleCount(), len(st.Outputs), formatSize(st.TotalSize()),
		st.Duration.Round(time.Millisecond))
}

// renderWarnings lists modules that could not be parsed, dynamic imports
// and chunks the minifier failed on. Issue help follows in verbose mode.
func (app *App) renderWarnings(w io.Writer, st *bundler.State) {
	var seen []issue.Id
	warn := func(id issue.Id, format string, args ...any) {
		if len(seen) == 0 {
			fmt.Fprintln(w, "\n"+TitleStyle.Render("Warnings"))
		}
		fmt.Fprintf(w, "  %s %s\n", WarningStyle.Render("!"), fmt.Sprintf(format, args...))
		if !slices.Contains(seen, id) {
			seen = append(seen, id)
		}
	}

	if st.Graph != nil {
		for _, p := range st.Graph.Order {
			m := st.Graph.Module(p)
			if m.ParseErr != nil {
				warn(issue.UnparseableModuleId, "%s: %v", CmdStyle.Render(m.Rel), m.ParseErr)
			}
			for _, d := range m.Dynamic {
				warn(issue.DynamicImportId, "%s: %s", CmdStyle.Render(m.Rel), d)
			}
		}
	}
	if _, ok := st.Options.Minifier.(*minify.Shell); ok {
		for _, o := range st.Outputs {
			if !o.Minified {
				warn(issue.MinifierFailedId, "chunk %s was written unminified", CmdStyle.Render(o.Chunk))
			}
		}
	}

	if !app.verbose() {
		if len(seen) > 0 {
			fmt.Fprintln(w, "  "+SubtitleStyle.Render("run with --verbose for help on these warnings"))
		}
		return
	}
	for _, id := range seen {
		if rendered, err := issue.Get(id).Render(app.style); err == nil {
			fmt.Fprint(w, rendered)
		}
	}
}

func formatSize(n int) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

// displayPath shortens p relative to the working directory when it is inside it.
func displayPath(p string) string {
	wd, err := filepath.Abs(".")
	if err != nil {
		return p
	}
	if rel, err := filepath.Rel(wd, p); err == nil && !strings.HasPrefix(rel, "..") {
		return rel
	}
	return p
}
