// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pychunk/pychunk/internal/config"
	"github.com/pychunk/pychunk/internal/issue"
)

// newConfigCommand creates the `pychunk config` command tree.
func newConfigCommand(app *App, rootFlags *rootFlagValues) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage pychunk configuration",
		Long: `Manage pychunk configuration.

Configuration is read from pychunk.cue or pychunk.toml in the project
directory, then from a .env file there, then from PYCHUNK_* environment
variables (e.g. PYCHUNK_OUT_DIR, PYCHUNK_AUTO_MIN_CHUNK_SIZE). Later
sources win.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	var showFormat string
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(app, showFormat); err != nil {
				return err
			}
			cfg, err := app.loadConfig(cmd, rootFlags)
			if err != nil {
				return err
			}
			source := cfg.Source
			if source == "" {
				source = "(using defaults)"
			}
			fmt.Fprintf(app.stderr, "%s: %s\n\n", CmdStyle.Render("Config file"), SubtitleStyle.Render(source))

			out, err := generate(cfg, showFormat)
			if err != nil {
				return err
			}
			fmt.Fprint(app.stdout, out)
			return nil
		},
	}
	showCmd.Flags().StringVar(&showFormat, "format", config.FormatCUE, "output format: "+strings.Join(config.Formats(), " or "))

	var (
		initFormat string
		force      bool
	)
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create a default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(app, initFormat); err != nil {
				return err
			}
			dir := rootFlags.dir
			if dir == "" {
				dir = "."
			}
			path, err := config.WriteDefault(dir, initFormat, config.DefaultConfig(), force)
			if err != nil {
				if errors.Is(err, config.ErrConfigExists) {
					return app.usageError("%s already exists (use --force to overwrite)", path)
				}
				wrapped := issue.NewErrorContext().
					WithOperation("create configuration").
					WithResource(dir).
					WithIssue(issue.ConfigLoadFailedId).
					Wrap(err).
					BuildError()
				return app.fail(ExitBuildFailed, newServiceError(wrapped, issue.ConfigLoadFailedId, styledError(wrapped, app.verbose())))
			}
			fmt.Fprintf(app.stdout, "%s Created %s\n", SuccessStyle.Render("✓"), path)
			return nil
		},
	}
	initCmd.Flags().StringVar(&initFormat, "format", config.FormatCUE, "file format: "+strings.Join(config.Formats(), " or "))
	initCmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing config file")

	cfgCmd.AddCommand(showCmd, initCmd)
	return cfgCmd
}

func checkFormat(app *App, format string) error {
	if !slices.Contains(config.Formats(), format) {
		return app.usageError("unknown format %q (want %s)", format, strings.Join(config.Formats(), " or "))
	}
	return nil
}

func generate(cfg *config.Config, format string) (string, error) {
	if format == config.FormatTOML {
		out, err := config.GenerateTOML(cfg)
		return string(out), err
	}
	return config.GenerateCUE(cfg), nil
}
