// SPDX-License-Identifier: MPL-2.0

// Package watch rebuilds a project when its sources change.
//
// The Watcher monitors every non-ignored directory under the project root
// and invokes a callback after a debounce period. Events within the debounce
// window are coalesced so the callback fires once per burst of edits, with
// the changed source files and config files reported separately.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// defaultDebounce is the delay before firing the onChange callback after the
// last filesystem event, so that an editor writing then renaming a temp file
// produces a single rebuild.
const defaultDebounce = 300 * time.Millisecond

// defaultExtension is the watched source extension.
const defaultExtension = "py"

// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
var ErrInvalidConfig = errors.New("invalid watch config")

// defaultIgnores lists path patterns that never trigger a rebuild: VCS
// metadata, interpreter caches, virtual environments and editor files.
var defaultIgnores = []string{
	"**/.git/**",
	"**/__pycache__/**",
	"**/*.pyc",
	"**/.venv/**",
	"**/venv/**",
	"**/.mypy_cache/**",
	"**/.pytest_cache/**",
	"**/.tox/**",
	"**/*.swp",
	"**/*.swo",
	"**/*~",
	"**/.DS_Store",
}

type (
	// Config holds the parameters for a Watcher.
	Config struct {
		// Root is the project directory to watch. Empty means the working directory.
		Root string

		// Extension selects source files (without the dot). Empty means "py".
		Extension string

		// ConfigFiles are file names, relative to Root, whose changes are
		// reported in Batch.Config, e.g. "pychunk.cue" or ".env".
		ConfigFiles []string

		// OutDir is never watched, so writing the bundle does not trigger
		// another build. Relative paths are relative to Root.
		OutDir string

		// Ignore are additional doublestar glob patterns, relative to Root,
		// merged with the built-in default ignores.
		Ignore []string

		// Debounce is the quiet period after the last event before the callback
		// fires. Zero falls back to defaultDebounce.
		Debounce time.Duration

		// ClearScreen writes the ANSI clear sequence to Stdout before each rebuild.
		ClearScreen bool
		Stdout      io.Writer

		// OnChange is called once per debounced batch. A nil callback is a no-op.
		OnChange func(ctx context.Context, batch Batch) error
	}

	// Batch lists the files changed since the previous callback, relative
	// to Root with forward slashes, in sorted order.
	Batch struct {
		Sources []string
		Config  []string
	}

	// InvalidConfigError collects the field errors of a Config.
	InvalidConfigError struct {
		FieldErrors []error
	}

	// Watcher monitors a project and fires a debounced callback when
	// sources or config files change. Run must be called exactly once.
	Watcher struct {
		cfg         Config
		fsw         *fsnotify.Watcher
		ignores     []string
		sourceGlob  string
		configFiles []string
		stdout      io.Writer
		debounce    time.Duration
		root        string
		started     atomic.Bool
	}
)

func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid watch config: %s", errors.Join(e.FieldErrors...))
}

// Unwrap returns ErrInvalidConfig for errors.Is() compatibility.
func (e *InvalidConfigError) Unwrap() error { return ErrInvalidConfig }

// Validate checks the ignore patterns, the extension and the debounce period.
func (c Config) Validate() error {
	var errs []error
	if strings.ContainsAny(c.Extension, `./\ `) {
		errs = append(errs, fmt.Errorf("extension %q must be a bare suffix such as \"py\"", c.Extension))
	}
	if c.Debounce < 0 {
		errs = append(errs, fmt.Errorf("debounce %s must not be negative", c.Debounce))
	}
	for _, pat := range c.Ignore {
		if pat == "" {
			errs = append(errs, errors.New("empty ignore pattern"))
			continue
		}
		if !doublestar.ValidatePattern(pat) {
			errs = append(errs, fmt.Errorf("invalid ignore pattern %q", pat))
		}
	}
	for _, name := range c.ConfigFiles {
		if name == "" || filepath.IsAbs(name) {
			errs = append(errs, fmt.Errorf("config file %q must be a relative path", name))
		}
	}
	if len(errs) > 0 {
		return &InvalidConfigError{FieldErrors: errs}
	}
	return nil
}

// ConfigChanged reports whether any config file changed.
func (b Batch) ConfigChanged() bool {
	return len(b.Config) > 0
}

// Len returns the number of changed files.
func (b Batch) Len() int {
	return len(b.Sources) + len(b.Config)
}

// New creates a Watcher and registers every non-ignored directory under
// Root with the underlying fsnotify watcher.
func New(cfg Config) (*Watcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	root := cfg.Root
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("watch: determine working directory: %w", err)
		}
		root = wd
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("watch: resolve project root: %w", err)
	}

	ext := cfg.Extension
	if ext == "" {
		ext = defaultExtension
	}
	debounce := cfg.Debounce
	if debounce == 0 {
		debounce = defaultDebounce
	}
	stdout := cfg.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}

	ignores := slices.Clone(defaultIgnores)
	ignores = append(ignores, cfg.Ignore...)
	if cfg.OutDir != "" {
		out := cfg.OutDir
		if !filepath.IsAbs(out) {
			out = filepath.Join(absRoot, out)
		}
		if rel, err := filepath.Rel(absRoot, out); err == nil && rel != "." && !strings.HasPrefix(rel, "..") {
			rel = doublestar.EscapeMeta(filepath.ToSlash(rel))
			ignores = append(ignores, rel, rel+"/**")
		}
	}

	configFiles := make([]string, 0, len(cfg.ConfigFiles))
	for _, name := range cfg.ConfigFiles {
		configFiles = append(configFiles, filepath.ToSlash(filepath.Clean(name)))
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		cfg:         cfg,
		fsw:         fsw,
		ignores:     ignores,
		sourceGlob:  "**/*." + doublestar.EscapeMeta(ext),
		configFiles: configFiles,
		stdout:      stdout,
		debounce:    debounce,
		root:        absRoot,
	}

	if err := w.addDirectories(); err != nil {
		if closeErr := fsw.Close(); closeErr != nil {
			slog.Warn("watch: close after init failure", "error", closeErr)
		}
		return nil, err
	}

	return w, nil
}

// Root returns the absolute watched directory.
func (w *Watcher) Root() string {
	return w.root
}

// Run blocks until ctx is cancelled, processing filesystem events and
// dispatching debounced callbacks. It returns nil on cancellation and
// propagates fatal watcher errors. A second call returns an error.
func (w *Watcher) Run(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return errors.New("watch: Run called more than once")
	}

	var (
		mu      sync.Mutex
		pending = make(map[string]bool) // rel path -> is config file
		timer   *time.Timer
		running atomic.Bool
	)

	// fire drains the pending set and invokes OnChange. Only one callback
	// runs at a time; a batch arriving during a rebuild is retried after
	// another debounce period.
	fire := func() {
		if ctx.Err() != nil {
			return
		}
		if !running.CompareAndSwap(false, true) {
			slog.Debug("watch: rebuild in progress, deferring batch")
			mu.Lock()
			if timer != nil {
				timer.Reset(w.debounce)
			}
			mu.Unlock()
			return
		}
		defer running.Store(false)

		mu.Lock()
		if len(pending) == 0 {
			mu.Unlock()
			return
		}
		var batch Batch
		for rel, isConfig := range pending {
			if isConfig {
				batch.Config = append(batch.Config, rel)
			} else {
				batch.Sources = append(batch.Sources, rel)
			}
		}
		clear(pending)
		mu.Unlock()

		slices.Sort(batch.Sources)
		slices.Sort(batch.Config)

		if w.cfg.ClearScreen {
			// ANSI escape: clear screen and move cursor to top-left.
			fmt.Fprint(w.stdout, "\033[2J\033[H")
		}

		if w.cfg.OnChange != nil {
			if err := w.cfg.OnChange(ctx, batch); err != nil {
				slog.Error("watch: rebuild failed", "error", err)
			}
		}
	}

	defer func() {
		mu.Lock()
		localTimer := timer
		mu.Unlock()
		if localTimer != nil {
			localTimer.Stop()
		}
		if closeErr := w.fsw.Close(); closeErr != nil {
			slog.Warn("watch: close fsnotify", "error", closeErr)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case evt, ok := <-w.fsw.Events:
			if !ok {
				return errors.New("watch: fsnotify event channel closed unexpectedly")
			}

			// Newly created directories may hold sources later on.
			if evt.Has(fsnotify.Create) {
				w.maybeAddDir(evt.Name)
			}

			rel, isConfig, ok := w.classify(evt.Name)
			if !ok {
				continue
			}
			slog.Debug("watch: change detected", "path", rel, "op", evt.Op.String())

			mu.Lock()
			pending[rel] = isConfig
			if timer == nil {
				timer = time.AfterFunc(w.debounce, fire)
			} else {
				timer.Reset(w.debounce)
			}
			mu.Unlock()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return errors.New("watch: fsnotify error channel closed unexpectedly")
			}
			// isFatalFsnotifyError is platform-specific (see watcher_fatal_*.go).
			if isFatalFsnotifyError(err) {
				return fmt.Errorf("watch: fatal fsnotify error: %w", err)
			}
			slog.Warn("watch: fsnotify error", "error", err)
		}
	}
}

// classify maps an event path to its slash-separated path relative to the
// root and reports whether it is a config file. ok is false for paths
// that should not trigger a rebuild.
func (w *Watcher) classify(path string) (rel string, isConfig, ok bool) {
	r, err := filepath.Rel(w.root, path)
	if err != nil || strings.HasPrefix(r, "..") {
		return "", false, false
	}
	rel = filepath.ToSlash(r)
	if slices.Contains(w.configFiles, rel) {
		return rel, true, true
	}
	if w.isIgnored(rel) {
		return "", false, false
	}
	if matched, _ := doublestar.Match(w.sourceGlob, rel); !matched {
		return "", false, false
	}
	return rel, false, true
}

// addDirectories walks the root and adds every non-ignored directory to
// the fsnotify watcher.
func (w *Watcher) addDirectories() error {
	walkErr := filepath.WalkDir(w.root, func(path string, d os.DirEntry, walkDirErr error) error {
		if walkDirErr != nil {
			// Skip directories we cannot access rather than aborting the walk.
			slog.Warn("watch: skipping inaccessible path", "path", path, "error", walkDirErr)
			return nil //nolint:nilerr // intentional skip of inaccessible paths
		}
		if !d.IsDir() {
			return nil
		}
		if w.ignoredDir(path) {
			return filepath.SkipDir
		}
		if addErr := w.fsw.Add(path); addErr != nil {
			return fmt.Errorf("watch: add directory %q: %w", path, addErr)
		}
		return nil
	})
	if walkErr != nil {
		return fmt.Errorf("watch: walk directory tree: %w", walkErr)
	}
	return nil
}

// maybeAddDir adds path to the fsnotify watcher if it is a directory that
// is not ignored.
func (w *Watcher) maybeAddDir(path string) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() || w.ignoredDir(path) {
		return
	}
	if addErr := w.fsw.Add(path); addErr != nil {
		slog.Warn("watch: add new directory", "path", path, "error", addErr)
	}
}

func (w *Watcher) ignoredDir(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return true
	}
	if rel == "." {
		return false
	}
	rel = filepath.ToSlash(rel)
	return w.isIgnored(rel) || w.isIgnored(rel+"/")
}

// isIgnored returns true if rel matches any ignore pattern.
func (w *Watcher) isIgnored(rel string) bool {
	for _, pat := range w.ignores {
		if matched, matchErr := doublestar.Match(pat, rel); matchErr == nil && matched {
			return true
		}
	}
	return false
}

// DefaultIgnores returns a copy of the built-in ignore patterns.
func DefaultIgnores() []string {
	return slices.Clone(defaultIgnores)
}
