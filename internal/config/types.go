// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/pychunk/pychunk/internal/chunk"
	"github.com/pychunk/pychunk/internal/minify"
	"github.com/pychunk/pychunk/internal/platform"
)

const (
	// ColorSchemeAuto detects the terminal color scheme automatically.
	ColorSchemeAuto ColorScheme = "auto"
	// ColorSchemeDark forces dark color scheme.
	ColorSchemeDark ColorScheme = "dark"
	// ColorSchemeLight forces light color scheme.
	ColorSchemeLight ColorScheme = "light"

	// DefaultOutDir is the output directory used when none is configured.
	DefaultOutDir = "dist"
	// DefaultExtension is the source and output file extension.
	DefaultExtension Extension = "py"
	// DefaultCacheEntries bounds the per-run source cache.
	DefaultCacheEntries = 1024
)

var (
	// ErrInvalidColorScheme is returned when a ColorScheme value is not recognized.
	ErrInvalidColorScheme = errors.New("invalid color scheme")
	// ErrInvalidChunkName is the sentinel error wrapped by InvalidChunkNameError.
	ErrInvalidChunkName = errors.New("invalid chunk name")
	// ErrInvalidIncludePattern is the sentinel error wrapped by InvalidIncludePatternError.
	ErrInvalidIncludePattern = errors.New("invalid include pattern")
	// ErrInvalidExtension is the sentinel error wrapped by InvalidExtensionError.
	ErrInvalidExtension = errors.New("invalid extension")
	// ErrDuplicateChunkName is returned when two chunk configs share a name.
	ErrDuplicateChunkName = errors.New("duplicate chunk name")
	// ErrInvalidChunkConfig is the sentinel error wrapped by InvalidChunkConfigError.
	ErrInvalidChunkConfig = errors.New("invalid chunk config")
	// ErrInvalidAutoConfig is the sentinel error wrapped by InvalidAutoConfigError.
	ErrInvalidAutoConfig = errors.New("invalid auto chunking config")
	// ErrInvalidMinifyConfig is the sentinel error wrapped by InvalidMinifyConfigError.
	ErrInvalidMinifyConfig = errors.New("invalid minify config")
	// ErrInvalidUIConfig is the sentinel error wrapped by InvalidUIConfigError.
	ErrInvalidUIConfig = errors.New("invalid UI config")
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
)

var chunkNamePattern = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_-]*$`)

type (
	// ColorScheme specifies the terminal color scheme preference.
	ColorScheme string

	// InvalidColorSchemeError is returned when a ColorScheme value is not recognized.
	// It wraps ErrInvalidColorScheme for errors.Is() compatibility.
	InvalidColorSchemeError struct {
		Value ColorScheme
	}

	// ChunkName names a chunk. It becomes part of the output file name and
	// of the loader call, so it is restricted to letters, digits, '_' and '-'.
	ChunkName string

	// InvalidChunkNameError is returned when a ChunkName is empty, contains
	// characters outside the allowed set or is a reserved device name.
	InvalidChunkNameError struct {
		Value    ChunkName
		Reserved bool
	}

	// IncludePattern is a regular expression, or a glob with the "glob:"
	// prefix, matched against project-relative module paths.
	IncludePattern string

	// InvalidIncludePatternError is returned when an IncludePattern does not compile.
	InvalidIncludePatternError struct {
		Value IncludePattern
		Err   error
	}

	// Extension is a file extension without the leading dot.
	Extension string

	// InvalidExtensionError is returned for an empty extension or one that
	// contains a dot or a path separator.
	InvalidExtensionError struct {
		Value Extension
	}

	// DuplicateChunkNameError is returned when two chunk configs share a name.
	DuplicateChunkNameError struct {
		Name  ChunkName
		First int
		Index int
	}

	// InvalidChunkConfigError collects the field errors of one chunk config.
	InvalidChunkConfigError struct {
		Index       int
		FieldErrors []error
	}

	// InvalidAutoConfigError collects the field errors of the auto section.
	InvalidAutoConfigError struct {
		FieldErrors []error
	}

	// InvalidMinifyConfigError collects the field errors of the minify section.
	InvalidMinifyConfigError struct {
		FieldErrors []error
	}

	// InvalidUIConfigError collects the field errors of the UI section.
	InvalidUIConfigError struct {
		FieldErrors []error
	}

	// InvalidConfigError is returned when a Config has invalid fields.
	// It wraps ErrInvalidConfig for errors.Is() compatibility and collects
	// field-level validation errors from all sub-components.
	InvalidConfigError struct {
		FieldErrors []error
	}

	// ChunkConfig is one configured chunk.
	ChunkConfig struct {
		Name ChunkName `json:"name" mapstructure:"name" toml:"name"`
		// EntryPoints are module files, relative to the project root, forced into the chunk.
		EntryPoints []string `json:"entry_points" mapstructure:"entry_points" toml:"entry_points,omitempty"`
		// Includes claim every module whose relative path matches.
		Includes []IncludePattern `json:"includes" mapstructure:"includes" toml:"includes,omitempty"`
	}

	// AutoConfig tunes automatic chunking, used when no chunk is configured.
	AutoConfig struct {
		MinChunkSize        int     `json:"min_chunk_size" mapstructure:"min_chunk_size" toml:"min_chunk_size"`
		SimilarityThreshold float64 `json:"similarity_threshold" mapstructure:"similarity_threshold" toml:"similarity_threshold"`
	}

	// MinifyConfig configures the external minifier.
	MinifyConfig struct {
		Enabled bool `json:"enabled" mapstructure:"enabled" toml:"enabled"`
		// Command is a shell command line that reads a chunk on stdin and
		// writes the minified chunk to stdout.
		Command string `json:"command" mapstructure:"command" toml:"command,omitempty"`
	}

	// UIConfig configures the user interface.
	UIConfig struct {
		// ColorScheme sets the color scheme
		ColorScheme ColorScheme `json:"color_scheme" mapstructure:"color_scheme" toml:"color_scheme"`
		// Verbose enables debug logging and detailed error output
		Verbose bool `json:"verbose" mapstructure:"verbose" toml:"verbose"`
	}

	// Config holds the build configuration.
	Config struct {
		// Entry is the entry module file.
		Entry string `json:"entry" mapstructure:"entry" toml:"entry,omitempty"`
		// Root is the project root. Empty means the entry file's directory.
		Root string `json:"root" mapstructure:"root" toml:"root,omitempty"`
		// OutDir receives the chunk files and the manifest.
		OutDir    string    `json:"out_dir" mapstructure:"out_dir" toml:"out_dir"`
		Extension Extension `json:"extension" mapstructure:"extension" toml:"extension"`
		// DefaultChunk names the chunk holding the entry module and the loader.
		DefaultChunk ChunkName     `json:"default_chunk" mapstructure:"default_chunk" toml:"default_chunk"`
		Chunks       []ChunkConfig `json:"chunks" mapstructure:"chunks" toml:"chunks"`
		Auto         AutoConfig    `json:"auto" mapstructure:"auto" toml:"auto"`
		// StandardModules are extra top-level names treated as standard modules.
		StandardModules []string     `json:"standard_modules" mapstructure:"standard_modules" toml:"standard_modules"`
		Minify          MinifyConfig `json:"minify" mapstructure:"minify" toml:"minify"`
		// Workers bounds concurrent chunk emission. Zero means one per CPU.
		Workers int `json:"workers" mapstructure:"workers" toml:"workers"`
		// DynamicImports enables the dynamic import diagnostic scan.
		DynamicImports bool `json:"dynamic_imports" mapstructure:"dynamic_imports" toml:"dynamic_imports"`
		CacheEntries   int  `json:"cache_entries" mapstructure:"cache_entries" toml:"cache_entries"`
		// Prune removes chunk files of earlier builds from OutDir.
		Prune bool     `json:"prune" mapstructure:"prune" toml:"prune"`
		UI    UIConfig `json:"ui" mapstructure:"ui" toml:"ui"`

		// Source is the config file the values were read from, if any.
		Source string `json:"-" mapstructure:"-" toml:"-"`
		// BaseDir anchors the relative paths above: the config file's
		// directory, or the project directory when no file was found.
		BaseDir string `json:"-" mapstructure:"-" toml:"-"`
	}
)

// Error implements the error interface for InvalidColorSchemeError.
func (e *InvalidColorSchemeError) Error() string {
	return fmt.Sprintf("invalid color scheme %q (valid: auto, dark, light)", e.Value)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *InvalidColorSchemeError) Unwrap() error {
	return ErrInvalidColorScheme
}

// String returns the string representation of the ColorScheme.
func (cs ColorScheme) String() string { return string(cs) }

// IsValid returns whether the ColorScheme is one of the defined color schemes,
// and a list of validation errors if it is not.
func (cs ColorScheme) IsValid() (bool, []error) {
	switch cs {
	case ColorSchemeAuto, ColorSchemeDark, ColorSchemeLight:
		return true, nil
	default:
		return false, []error{&InvalidColorSchemeError{Value: cs}}
	}
}

// String returns the string representation of the ChunkName.
func (n ChunkName) String() string { return string(n) }

// IsValid returns whether the ChunkName is usable in a file name.
func (n ChunkName) IsValid() (bool, []error) {
	if !chunkNamePattern.MatchString(string(n)) {
		return false, []error{&InvalidChunkNameError{Value: n}}
	}
	if platform.IsWindowsReservedName(string(n)) {
		return false, []error{&InvalidChunkNameError{Value: n, Reserved: true}}
	}
	return true, nil
}

// Error implements the error interface for InvalidChunkNameError.
func (e *InvalidChunkNameError) Error() string {
	if e.Reserved {
		return fmt.Sprintf("invalid chunk name %q: reserved file name on Windows", e.Value)
	}
	return fmt.Sprintf("invalid chunk name %q: use letters, digits, '_' and '-'", e.Value)
}

// Unwrap returns ErrInvalidChunkName for errors.Is() compatibility.
func (e *InvalidChunkNameError) Unwrap() error { return ErrInvalidChunkName }

// IsValid returns whether the IncludePattern compiles.
func (p IncludePattern) IsValid() (bool, []error) {
	if _, err := chunk.CompilePattern(string(p)); err != nil {
		return false, []error{&InvalidIncludePatternError{Value: p, Err: err}}
	}
	return true, nil
}

// Error implements the error interface for InvalidIncludePatternError.
func (e *InvalidIncludePatternError) Error() string {
	return fmt.Sprintf("invalid include pattern %q: %v", e.Value, e.Err)
}

// Unwrap returns ErrInvalidIncludePattern for errors.Is() compatibility.
func (e *InvalidIncludePatternError) Unwrap() error { return ErrInvalidIncludePattern }

// String returns the string representation of the Extension.
func (x Extension) String() string { return string(x) }

// IsValid returns whether the Extension is a bare extension.
func (x Extension) IsValid() (bool, []error) {
	if strings.TrimSpace(string(x)) == "" || strings.ContainsAny(string(x), `./\ `) {
		return false, []error{&InvalidExtensionError{Value: x}}
	}
	return true, nil
}

// Error implements the error interface for InvalidExtensionError.
func (e *InvalidExtensionError) Error() string {
	return fmt.Sprintf("invalid extension %q: expected a bare extension such as \"py\"", e.Value)
}

// Unwrap returns ErrInvalidExtension for errors.Is() compatibility.
func (e *InvalidExtensionError) Unwrap() error { return ErrInvalidExtension }

// Error implements the error interface for DuplicateChunkNameError.
func (e *DuplicateChunkNameError) Error() string {
	return fmt.Sprintf("chunks[%d]: duplicate chunk name %q (same as chunks[%d])", e.Index, e.Name, e.First)
}

// Unwrap returns ErrDuplicateChunkName for errors.Is() compatibility.
func (e *DuplicateChunkNameError) Unwrap() error { return ErrDuplicateChunkName }

// IsValid returns whether the ChunkConfig has a valid name and compilable
// include patterns. index is only used in error messages.
func (c ChunkConfig) IsValid(index int) (bool, []error) {
	var errs []error
	if valid, fieldErrs := c.Name.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	for _, ep := range c.EntryPoints {
		if strings.TrimSpace(ep) == "" {
			errs = append(errs, fmt.Errorf("empty entry point in chunk %q", c.Name))
		}
	}
	for _, p := range c.Includes {
		if valid, fieldErrs := p.IsValid(); !valid {
			errs = append(errs, fieldErrs...)
		}
	}
	if len(errs) > 0 {
		return false, []error{&InvalidChunkConfigError{Index: index, FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface for InvalidChunkConfigError.
func (e *InvalidChunkConfigError) Error() string {
	return fmt.Sprintf("chunks[%d]: %s", e.Index, errors.Join(e.FieldErrors...))
}

// Unwrap returns ErrInvalidChunkConfig for errors.Is() compatibility.
func (e *InvalidChunkConfigError) Unwrap() error { return ErrInvalidChunkConfig }

// IsValid returns whether the AutoConfig values are in range. Zero values
// select the defaults.
func (c AutoConfig) IsValid() (bool, []error) {
	var errs []error
	if c.MinChunkSize < 0 {
		errs = append(errs, fmt.Errorf("min_chunk_size %d must not be negative", c.MinChunkSize))
	}
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		errs = append(errs, fmt.Errorf("similarity_threshold %v must be within [0, 1]", c.SimilarityThreshold))
	}
	if len(errs) > 0 {
		return false, []error{&InvalidAutoConfigError{FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface for InvalidAutoConfigError.
func (e *InvalidAutoConfigError) Error() string {
	return fmt.Sprintf("invalid auto chunking config: %s", errors.Join(e.FieldErrors...))
}

// Unwrap returns ErrInvalidAutoConfig for errors.Is() compatibility.
func (e *InvalidAutoConfigError) Unwrap() error { return ErrInvalidAutoConfig }

// IsValid returns whether an enabled minifier has a parsable command.
func (c MinifyConfig) IsValid() (bool, []error) {
	if !c.Enabled {
		return true, nil
	}
	if _, err := minify.NewShell(c.Command); err != nil {
		return false, []error{&InvalidMinifyConfigError{FieldErrors: []error{err}}}
	}
	return true, nil
}

// Error implements the error interface for InvalidMinifyConfigError.
func (e *InvalidMinifyConfigError) Error() string {
	return fmt.Sprintf("invalid minify config: %s", errors.Join(e.FieldErrors...))
}

// Unwrap returns ErrInvalidMinifyConfig for errors.Is() compatibility.
func (e *InvalidMinifyConfigError) Unwrap() error { return ErrInvalidMinifyConfig }

// IsValid returns whether the UIConfig has valid fields.
// It delegates to ColorScheme.IsValid(); bool fields need no validation.
func (c UIConfig) IsValid() (bool, []error) {
	var errs []error
	if valid, fieldErrs := c.ColorScheme.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if len(errs) > 0 {
		return false, []error{&InvalidUIConfigError{FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface for InvalidUIConfigError.
func (e *InvalidUIConfigError) Error() string {
	return fmt.Sprintf("invalid UI config: %d field error(s)", len(e.FieldErrors))
}

// Unwrap returns ErrInvalidUIConfig for errors.Is() compatibility.
func (e *InvalidUIConfigError) Unwrap() error { return ErrInvalidUIConfig }

// IsValid returns whether the Config has valid fields: a valid extension and
// default chunk name, uniquely named valid chunk configs, and valid auto,
// minify and UI sections.
func (c Config) IsValid() (bool, []error) {
	var errs []error
	if valid, fieldErrs := c.Extension.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if valid, fieldErrs := c.DefaultChunk.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	seen := make(map[ChunkName]int, len(c.Chunks))
	for i, cc := range c.Chunks {
		if valid, fieldErrs := cc.IsValid(i); !valid {
			errs = append(errs, fieldErrs...)
		}
		if first, dup := seen[cc.Name]; dup {
			errs = append(errs, &DuplicateChunkNameError{Name: cc.Name, First: first, Index: i})
			continue
		}
		seen[cc.Name] = i
	}
	if valid, fieldErrs := c.Auto.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if valid, fieldErrs := c.Minify.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if valid, fieldErrs := c.UI.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers %d must not be negative", c.Workers))
	}
	if len(errs) > 0 {
		return false, []error{&InvalidConfigError{FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface for InvalidConfigError.
func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid config: %s", errors.Join(e.FieldErrors...))
}

// Unwrap returns ErrInvalidConfig for errors.Is() compatibility.
func (e *InvalidConfigError) Unwrap() error { return ErrInvalidConfig }

// ChunkSpecs converts the configured chunks for the assigner. Entry points
// are left relative; the caller anchors them at the project root.
func (c Config) ChunkSpecs() []chunk.Spec {
	out := make([]chunk.Spec, 0, len(c.Chunks))
	for _, cc := range c.Chunks {
		s := chunk.Spec{Name: string(cc.Name), EntryPoints: append([]string(nil), cc.EntryPoints...)}
		for _, p := range cc.Includes {
			s.Includes = append(s.Includes, string(p))
		}
		out = append(out, s)
	}
	return out
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		OutDir:       DefaultOutDir,
		Extension:    DefaultExtension,
		DefaultChunk: chunk.DefaultName,
		Chunks:       []ChunkConfig{},
		Auto: AutoConfig{
			MinChunkSize:        chunk.DefaultMinSize,
			SimilarityThreshold: chunk.DefaultThreshold,
		},
		StandardModules: []string{},
		CacheEntries:    DefaultCacheEntries,
		UI: UIConfig{
			ColorScheme: ColorSchemeAuto,
		},
	}
}
