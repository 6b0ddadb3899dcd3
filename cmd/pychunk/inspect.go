// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/pychunk/pychunk/internal/bundler"
	"github.com/pychunk/pychunk/internal/config"
	"github.com/pychunk/pychunk/internal/issue"
	"github.com/pychunk/pychunk/internal/manifest"
)

// ErrMissingChunkFile is returned by inspect when a manifest names a chunk
// file that is not on disk.
var ErrMissingChunkFile = errors.New("chunk file missing")

func newInspectCommand(app *App, rootFlags *rootFlagValues) *cobra.Command {
	var raw bool

	inspectCmd := &cobra.Command{
		Use:   "inspect [manifest]",
		Short: "Summarize a built bundle",
		Long: `Summarize the manifest of a built bundle: its chunks, their files, the
chunks they import and the modules they contain. The argument may be a
manifest file or the output directory holding it; it defaults to the
configured output directory.

Every chunk file named by the manifest must exist next to it.`,
		Args: maxArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := app.manifestPath(cmd, rootFlags, args)
			if err != nil {
				return err
			}
			m, err := manifest.Read(path)
			if err != nil {
				ierr := issue.NewErrorContext().
					WithOperation("read manifest").
					WithResource(path).
					WithSuggestion("Run 'pychunk build' to create the bundle").
					WithIssue(issue.ManifestInvalidId).
					Wrap(err).
					BuildError()
				return app.fail(ExitBuildFailed, newServiceError(ierr, issue.ManifestInvalidId, styledError(ierr, app.verbose())))
			}

			md, missing := manifestMarkdown(m, filepath.Dir(path))
			out := md
			if !raw {
				r, err := glamour.NewTermRenderer(glamour.WithStylePath(app.style), glamour.WithWordWrap(100))
				if err == nil {
					out, err = r.Render(md)
				}
				if err != nil {
					return fmt.Errorf("render manifest summary: %w", err)
				}
			}
			fmt.Fprint(app.stdout, out)

			if len(missing) > 0 {
				err := fmt.Errorf("%w: %s", ErrMissingChunkFile, strings.Join(missing, ", "))
				return app.fail(ExitBuildFailed, newServiceError(err, issue.ManifestInvalidId, styledError(err, false)))
			}
			return nil
		},
	}
	inspectCmd.Flags().BoolVar(&raw, "raw", false, "print the markdown summary without rendering it")

	return inspectCmd
}

// manifestPath resolves the inspect argument to a manifest file.
func (app *App) manifestPath(cmd *cobra.Command, rootFlags *rootFlagValues, args []string) (string, error) {
	var target string
	if len(args) == 1 {
		target = app.path(rootFlags, args[0])
	} else {
		cfg, err := app.loadConfig(cmd, rootFlags)
		if err != nil {
			return "", err
		}
		opts, err := bundler.OptionsFromConfig(cfg)
		if err != nil {
			issueID, msg := classifyConfigError(err, app.verbose())
			return "", app.fail(ExitUsage, newServiceError(err, issueID, msg))
		}
		target = opts.OutDir
		if target == "" {
			target = app.path(rootFlags, config.DefaultOutDir)
		}
	}
	if info, err := os.Stat(target); err == nil && info.IsDir() {
		target = filepath.Join(target, manifest.FileName)
	}
	return target, nil
}

// manifestMarkdown renders m as markdown and lists the chunk files missing
// from dir.
func manifestMarkdown(m *manifest.Manifest, dir string) (md string, missing []string) {
	var b strings.Builder
	names := m.Names()

	b.WriteString("# Bundle manifest\n\n")
	fmt.Fprintf(&b, "Built `%s`, %d chunks, %d modules.\n\n",
		time.Unix(m.Version, 0).UTC().Format(time.RFC3339), len(names), len(m.ModuleToChunk))

	b.WriteString("| Chunk | File | Modules | Imports |\n|---|---|---:|---|\n")
	for _, name := range names {
		e := m.Chunks[name]
		file := e.File
		if _, err := os.Stat(filepath.Join(dir, e.File)); err != nil {
			missing = append(missing, e.File)
			file += " (missing)"
		}
		imports := strings.Join(e.Imports, ", ")
		if imports == "" {
			imports = "-"
		}
		fmt.Fprintf(&b, "| %s | %s | %d | %s |\n", name, file, len(e.Modules), imports)
	}

	for _, name := range names {
		fmt.Fprintf(&b, "\n## %s\n\n", name)
		for _, mod := range m.Chunks[name].Modules {
			fmt.Fprintf(&b, "- `%s`\n", mod)
		}
	}
	return b.String(), missing
}
