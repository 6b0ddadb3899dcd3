// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pychunk/pychunk/internal/bundler"
)

func newGraphCommand(app *App, rootFlags *rootFlagValues) *cobra.Command {
	flags := &buildFlagValues{}
	var showChunks bool

	graphCmd := &cobra.Command{
		Use:   "graph [entry]",
		Short: "Show the module dependency order",
		Long: `Show the modules reachable from the entry in dependency order, each
with the project modules it imports. Nothing is written.

With --chunks, also show which chunk every module is assigned to. When no
chunks are configured this is the automatically generated grouping.`,
		Args: maxArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := app.buildOptions(cmd, rootFlags, flags, args)
			if err != nil {
				return err
			}
			st, err := bundler.Plan(cmd.Context(), opts)
			if err != nil {
				issueID, msg := classifyBuildError(err, app.verbose())
				return app.fail(ExitBuildFailed, newServiceError(err, issueID, msg))
			}
			renderGraph(app.stdout, st)
			if showChunks {
				renderAssignment(app.stdout, st)
			}
			app.renderWarnings(app.stdout, st)
			return nil
		},
	}

	graphCmd.Flags().StringVar(&flags.root, "root", "", "project root used to resolve imports (default is the entry file's directory)")
	graphCmd.Flags().BoolVar(&flags.dynamicImports, "dynamic-imports", false, "report importlib.import_module and __import__ calls")
	graphCmd.Flags().BoolVar(&showChunks, "chunks", false, "show the chunk assignment")

	return graphCmd
}

func renderGraph(w io.Writer, st *bundler.State) {
	g := st.Graph
	fmt.Fprintln(w, TitleStyle.Render("Modules")+SubtitleStyle.Render(" (dependency order)"))
	for i, p := range st.Sorted {
		deps := g.DepsOf(p)
		line := fmt.Sprintf("  %3d. %s", i+1, CmdStyle.Render(g.Rel(p)))
		if len(deps) > 0 {
			rel := make([]string, len(deps))
			for j, d := range deps {
				rel[j] = g.Rel(d)
			}
			line += SubtitleStyle.Render(" <- " + strings.Join(rel, ", "))
		}
		fmt.Fprintln(w, line)
	}
}

func renderAssignment(w io.Writer, st *bundler.State) {
	a := st.Assignment
	origin := "configured"
	if a.Auto {
		origin = "generated"
	}
	fmt.Fprintln(w, "\n"+TitleStyle.Render("Chunks")+SubtitleStyle.Render(" ("+origin+")"))

	imports := a.Dependencies(st.Graph.DepsOf)
	for _, name := range a.Names {
		header := "  " + reportNameStyle.Render(name)
		if deps := imports[name]; len(deps) > 0 {
			header += SubtitleStyle.Render("imports " + strings.Join(deps, ", "))
		}
		fmt.Fprintln(w, header)
		for _, m := range a.Members[name] {
			fmt.Fprintf(w, "      %s\n", st.Graph.Rel(m))
		}
	}
}
