// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/pychunk/pychunk/internal/config"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

type (
	// App wires CLI services and shared dependencies. All command handlers
	// receive an App and load configuration through its provider.
	App struct {
		Config config.Provider
		stdout io.Writer
		stderr io.Writer
		logger *log.Logger
		// style is the glamour style for issue help text.
		style string
	}

	// Dependencies defines the injection points for building an App. Nil
	// fields are replaced with production defaults by NewApp.
	Dependencies struct {
		Config config.Provider
		Stdout io.Writer
		Stderr io.Writer
	}

	rootFlagValues struct {
		verbose    bool
		configPath string
		dir        string
	}
)

// NewApp creates an App, filling unset dependencies with defaults.
func NewApp(deps Dependencies) *App {
	if deps.Config == nil {
		deps.Config = config.NewProvider()
	}
	if deps.Stdout == nil {
		deps.Stdout = os.Stdout
	}
	if deps.Stderr == nil {
		deps.Stderr = os.Stderr
	}
	return &App{
		Config: deps.Config,
		stdout: deps.Stdout,
		stderr: deps.Stderr,
		logger: log.NewWithOptions(deps.Stderr, log.Options{
			Prefix: config.AppName,
			Level:  log.WarnLevel,
		}),
		style: string(config.ColorSchemeAuto),
	}
}

// NewRootCommand builds the full command tree for app.
func NewRootCommand(app *App) *cobra.Command {
	flags := &rootFlagValues{}

	rootCmd := &cobra.Command{
		Use:   "pychunk",
		Short: "A dependency-aware Python module bundler",
		Long: TitleStyle.Render("pychunk") + SubtitleStyle.Render(" - A dependency-aware Python module bundler") + `

pychunk follows the imports of an entry module through your project,
orders the modules so that every module comes after its dependencies,
and concatenates them into one or more chunk files with content-hashed
names. Chunks load each other on demand through a small loader, and a
manifest.json describes the result.

` + SubtitleStyle.Render("Examples:") + `
  pychunk build app.py            Bundle app.py into ./dist
  pychunk build --watch           Rebuild whenever a source file changes
  pychunk graph app.py --chunks   Show module order and chunk assignment
  pychunk inspect dist            Summarize an existing bundle
  pychunk config init             Create a pychunk.cue config file`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			app.setVerbose(flags.verbose)
			slog.SetDefault(slog.New(app.logger))
		},
	}
	rootCmd.SetOut(app.stdout)
	rootCmd.SetErr(app.stderr)
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &ExitError{Code: ExitUsage, Err: err}
	})

	rootCmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file (default is pychunk.cue or pychunk.toml in the project directory)")
	rootCmd.PersistentFlags().StringVarP(&flags.dir, "dir", "C", "", "run as if pychunk was started in this directory")

	rootCmd.AddCommand(newBuildCommand(app, flags))
	rootCmd.AddCommand(newGraphCommand(app, flags))
	rootCmd.AddCommand(newInspectCommand(app, flags))
	rootCmd.AddCommand(newConfigCommand(app, flags))

	return rootCmd
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version != "dev" {
		return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev (built from source)"
}

// Execute builds the production App and runs the command tree.
// This is called by main.main().
func Execute() {
	app := NewApp(Dependencies{})
	if err := fang.Execute(
		context.Background(),
		NewRootCommand(app),
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
		fang.WithErrorHandler(errorHandler),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}

// errorHandler prints errors fang receives, except those a command already
// rendered with its issue help text.
func errorHandler(w io.Writer, styles fang.Styles, err error) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.rendered {
		return
	}
	fang.DefaultErrorHandler(w, styles, err)
}

func (app *App) setVerbose(verbose bool) {
	if verbose {
		app.logger.SetLevel(log.DebugLevel)
	}
}

func (app *App) verbose() bool {
	return app.logger.GetLevel() <= log.DebugLevel
}

// loadConfig loads the project configuration. Failures are rendered with
// their issue help text and returned as a usage ExitError.
func (app *App) loadConfig(cmd *cobra.Command, flags *rootFlagValues) (*config.Config, error) {
	cfg, err := app.Config.Load(cmd.Context(), config.LoadOptions{
		ConfigFilePath: app.path(flags, flags.configPath),
		ProjectDir:     flags.dir,
	})
	if err != nil {
		issueID, msg := classifyConfigError(err, app.verbose())
		return nil, app.fail(ExitUsage, newServiceError(err, issueID, msg))
	}
	app.setVerbose(cfg.UI.Verbose)
	app.style = string(cfg.UI.ColorScheme)
	return cfg, nil
}

// fail renders svcErr to stderr and returns an ExitError that fang will not
// print again.
func (app *App) fail(code int, svcErr *ServiceError) error {
	renderServiceError(app.stderr, svcErr, app.style)
	return &ExitError{Code: code, Err: svcErr, rendered: true}
}

// usageError reports a command-line mistake with exit code 2.
func (app *App) usageError(format string, args ...any) error {
	err := fmt.Errorf(format, args...)
	return app.fail(ExitUsage, newServiceError(err, 0, styledError(err, false)))
}

// path resolves a command-line path against --dir. Empty stays empty.
func (app *App) path(flags *rootFlagValues, p string) string {
	if p == "" || filepath.IsAbs(p) || flags.dir == "" {
		return p
	}
	return filepath.Join(flags.dir, p)
}

// maxArgs is cobra.MaximumNArgs with a usage exit code.
func maxArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.MaximumNArgs(n)(cmd, args); err != nil {
			return &ExitError{Code: ExitUsage, Err: err}
		}
		return nil
	}
}
