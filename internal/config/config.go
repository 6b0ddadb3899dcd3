// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pychunk/pychunk/internal/issue"
	"github.com/pychunk/pychunk/pkg/cueutil"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

const (
	// AppName is the application name.
	AppName = "pychunk"
	// ConfigFileName is the name of the project config file (without extension).
	ConfigFileName = "pychunk"
	// EnvPrefix prefixes every environment variable override.
	EnvPrefix = "PYCHUNK"
	// EnvFileName is the dotenv file read from the project directory.
	EnvFileName = ".env"

	// FormatCUE selects pychunk.cue.
	FormatCUE = "cue"
	// FormatTOML selects pychunk.toml.
	FormatTOML = "toml"
)

// ErrConfigExists is returned by WriteDefault when the target file exists.
var ErrConfigExists = errors.New("config file already exists")

//go:embed config_schema.cue
var configSchema []byte

// Formats lists the supported config file formats in lookup order.
func Formats() []string {
	return []string{FormatCUE, FormatTOML}
}

// FindConfigFile returns the first pychunk.<format> file in dir, or "".
func FindConfigFile(dir string) string {
	for _, format := range Formats() {
		path := filepath.Join(dir, ConfigFileName+"."+format)
		if fileExists(path) {
			return path
		}
	}
	return ""
}

// EnvName returns the environment variable overriding a config key, e.g.
// "auto.min_chunk_size" becomes PYCHUNK_AUTO_MIN_CHUNK_SIZE.
func EnvName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// defaultValues returns every leaf config key with its default value.
func defaultValues() map[string]any {
	d := DefaultConfig()
	return map[string]any{
		"entry":                     d.Entry,
		"root":                      d.Root,
		"out_dir":                   d.OutDir,
		"extension":                 string(d.Extension),
		"default_chunk":             string(d.DefaultChunk),
		"chunks":                    []any{},
		"auto.min_chunk_size":       d.Auto.MinChunkSize,
		"auto.similarity_threshold": d.Auto.SimilarityThreshold,
		"standard_modules":          []string{},
		"minify.enabled":            d.Minify.Enabled,
		"minify.command":            d.Minify.Command,
		"workers":                   d.Workers,
		"dynamic_imports":           d.DynamicImports,
		"cache_entries":             d.CacheEntries,
		"prune":                     d.Prune,
		"ui.color_scheme":           string(d.UI.ColorScheme),
		"ui.verbose":                d.UI.Verbose,
	}
}

// loadWithOptions performs option-driven config loading. Precedence from
// lowest to highest: defaults, the config file, the project .env file and
// the process environment.
func loadWithOptions(ctx context.Context, opts LoadOptions) (*Config, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	v := viper.New()
	defaults := defaultValues()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	projectDir := opts.ProjectDir
	if projectDir == "" {
		projectDir = "."
	}

	resolvedPath := opts.ConfigFilePath
	if resolvedPath != "" {
		if !fileExists(resolvedPath) {
			return nil, issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(resolvedPath).
				WithSuggestion("Verify the file path is correct").
				WithSuggestion("Run 'pychunk config init' to create a config file").
				WithIssue(issue.ConfigLoadFailedId).
				Wrap(fmt.Errorf("config file not found: %s", resolvedPath)).
				BuildError()
		}
	} else {
		resolvedPath = FindConfigFile(projectDir)
	}

	if resolvedPath != "" {
		if err := loadFileIntoViper(v, resolvedPath); err != nil {
			return nil, issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(resolvedPath).
				WithSuggestion("Check the file syntax").
				WithSuggestion("Verify the configuration values match the expected schema").
				WithSuggestion("Run 'pychunk config show' to see the effective configuration").
				WithIssue(issue.ConfigLoadFailedId).
				Wrap(err).
				BuildError()
		}
	}

	envFile := opts.EnvFile
	if envFile == "" {
		envFile = filepath.Join(projectDir, EnvFileName)
	}
	if fileExists(envFile) {
		if err := loadEnvFileIntoViper(v, envFile, defaults); err != nil {
			return nil, issue.NewErrorContext().
				WithOperation("load environment file").
				WithResource(envFile).
				WithSuggestion("Use KEY=value lines, one per line").
				WithIssue(issue.ConfigLoadFailedId).
				Wrap(err).
				BuildError()
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.Source = resolvedPath
	if resolvedPath != "" {
		cfg.BaseDir = filepath.Dir(resolvedPath)
	} else {
		cfg.BaseDir = projectDir
	}

	if valid, errs := cfg.IsValid(); !valid {
		return nil, issue.NewErrorContext().
			WithOperation("validate configuration").
			WithResource(resolvedPath).
			WithSuggestion("Chunk names may only contain letters, digits, '_' and '-'").
			WithSuggestion("Include patterns are regular expressions, or globs prefixed with 'glob:'").
			WithIssue(issue.InvalidConfigId).
			Wrap(errors.Join(errs...)).
			BuildError()
	}

	return &cfg, nil
}

// loadFileIntoViper validates a CUE or TOML config file against the #Config
// schema and merges its contents into Viper.
func loadFileIntoViper(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var result *cueutil.ParseResult[map[string]any]
	switch strings.ToLower(filepath.Ext(path)) {
	case "." + FormatTOML:
		if err := cueutil.CheckFileSize(data, cueutil.DefaultMaxFileSize, path); err != nil {
			return err
		}
		var raw map[string]any
		if err := toml.Unmarshal(data, &raw); err != nil {
			var decodeErr *toml.DecodeError
			if errors.As(err, &decodeErr) {
				row, col := decodeErr.Position()
				return fmt.Errorf("%s:%d:%d: %w", path, row, col, err)
			}
			return fmt.Errorf("%s: %w", path, err)
		}
		result, err = cueutil.DecodeValue[map[string]any](configSchema, raw, "#Config",
			cueutil.WithFilename(path), cueutil.WithConcrete(false))
	default:
		result, err = cueutil.ParseAndDecode[map[string]any](configSchema, data, "#Config",
			cueutil.WithFilename(path), cueutil.WithConcrete(false))
	}
	if err != nil {
		return err
	}

	// Merge into Viper (preserves defaults, allows env overrides)
	if err := v.MergeConfigMap(*result.Value); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}
	return nil
}

// loadEnvFileIntoViper applies PYCHUNK_* assignments from a dotenv file.
// Non-empty variables in the process environment win; like viper, an
// empty variable counts as unset.
func loadEnvFileIntoViper(v *viper.Viper, path string, defaults map[string]any) error {
	values, err := godotenv.Read(path)
	if err != nil {
		return err
	}
	for key := range defaults {
		name := EnvName(key)
		value, ok := values[name]
		if !ok {
			continue
		}
		if os.Getenv(name) != "" {
			continue
		}
		v.Set(key, value)
	}
	return nil
}

// fileExists checks if a file exists and is not a directory
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}

// WriteDefault writes a config file in the given format into dir and
// returns its path. An existing file is only replaced when force is set.
func WriteDefault(dir, format string, cfg *Config, force bool) (string, error) {
	var (
		content []byte
		err     error
	)
	switch format {
	case FormatCUE:
		content = []byte(GenerateCUE(cfg))
	case FormatTOML:
		content, err = GenerateTOML(cfg)
		if err != nil {
			return "", err
		}
	default:
		return "", fmt.Errorf("unknown config format %q (want %s)", format, strings.Join(Formats(), " or "))
	}

	path := filepath.Join(dir, ConfigFileName+"."+format)
	if !force {
		if existing := FindConfigFile(dir); existing != "" {
			return existing, fmt.Errorf("%w: %s", ErrConfigExists, existing)
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", fmt.Errorf("failed to write config file: %w", err)
	}
	return path, nil
}

// GenerateTOML renders the configuration as TOML.
func GenerateTOML(cfg *Config) ([]byte, error) {
	out, err := toml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return append([]byte("# pychunk configuration\n\n"), out...), nil
}

// GenerateCUE generates a CUE representation of the configuration
func GenerateCUE(cfg *Config) string {
	var sb strings.Builder

	sb.WriteString("// pychunk configuration\n\n")

	if cfg.Entry != "" {
		fmt.Fprintf(&sb, "entry: %q\n", cfg.Entry)
	}
	if cfg.Root != "" {
		fmt.Fprintf(&sb, "root: %q\n", cfg.Root)
	}
	fmt.Fprintf(&sb, "out_dir: %q\n", cfg.OutDir)
	fmt.Fprintf(&sb, "extension: %q\n", cfg.Extension)
	fmt.Fprintf(&sb, "default_chunk: %q\n", cfg.DefaultChunk)

	if len(cfg.Chunks) > 0 {
		sb.WriteString("\nchunks: [\n")
		for _, cc := range cfg.Chunks {
			fmt.Fprintf(&sb, "\t{\n\t\tname: %q\n", cc.Name)
			if len(cc.EntryPoints) > 0 {
				fmt.Fprintf(&sb, "\t\tentry_points: %s\n", cueList(cc.EntryPoints))
			}
			if len(cc.Includes) > 0 {
				patterns := make([]string, 0, len(cc.Includes))
				for _, p := range cc.Includes {
					patterns = append(patterns, string(p))
				}
				fmt.Fprintf(&sb, "\t\tincludes: %s\n", cueList(patterns))
			}
			sb.WriteString("\t},\n")
		}
		sb.WriteString("]\n")
	}

	sb.WriteString("\nauto: {\n")
	fmt.Fprintf(&sb, "\tmin_chunk_size: %d\n", cfg.Auto.MinChunkSize)
	fmt.Fprintf(&sb, "\tsimilarity_threshold: %s\n", strconv.FormatFloat(cfg.Auto.SimilarityThreshold, 'f', -1, 64))
	sb.WriteString("}\n")

	if len(cfg.StandardModules) > 0 {
		fmt.Fprintf(&sb, "\nstandard_modules: %s\n", cueList(cfg.StandardModules))
	}

	sb.WriteString("\nminify: {\n")
	fmt.Fprintf(&sb, "\tenabled: %v\n", cfg.Minify.Enabled)
	if cfg.Minify.Command != "" {
		fmt.Fprintf(&sb, "\tcommand: %q\n", cfg.Minify.Command)
	}
	sb.WriteString("}\n\n")

	fmt.Fprintf(&sb, "workers: %d\n", cfg.Workers)
	fmt.Fprintf(&sb, "dynamic_imports: %v\n", cfg.DynamicImports)
	fmt.Fprintf(&sb, "cache_entries: %d\n", cfg.CacheEntries)
	fmt.Fprintf(&sb, "prune: %v\n", cfg.Prune)

	sb.WriteString("\nui: {\n")
	fmt.Fprintf(&sb, "\tcolor_scheme: %q\n", cfg.UI.ColorScheme)
	fmt.Fprintf(&sb, "\tverbose: %v\n", cfg.UI.Verbose)
	sb.WriteString("}\n")

	return sb.String()
}

func cueList(items []string) string {
	quoted := make([]string, 0, len(items))
	for _, item := range items {
		quoted = append(quoted, strconv.Quote(item))
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
