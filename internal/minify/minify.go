// SPDX-License-Identifier: MPL-2.0

// Package minify defines the boundary to an external source minifier.
package minify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// ErrEmptyOutput is returned when a minifier produces no text for non-empty input.
var ErrEmptyOutput = errors.New("minifier produced no output")

type (
	// Minifier rewrites chunk text. It may fail; callers fall back to the
	// original text.
	Minifier interface {
		Minify(ctx context.Context, src string) (string, error)
	}

	// Nop returns its input unchanged.
	Nop struct{}

	// Shell pipes chunk text through a shell command line run by an embedded
	// POSIX shell interpreter. The chunk is written to the command's stdin and
	// its stdout becomes the minified text.
	Shell struct {
		script string
		prog   *syntax.File
		// Dir is the working directory. Empty means the current directory.
		Dir string
		// Env is the environment in KEY=VALUE form. Nil inherits the process
		// environment.
		Env []string
	}
)

// Minify implements Minifier.
func (Nop) Minify(_ context.Context, src string) (string, error) {
	return src, nil
}

// NewShell parses a shell command line such as `pyminify -`.
func NewShell(script string) (*Shell, error) {
	script = strings.TrimSpace(script)
	if script == "" {
		return nil, errors.New("empty minifier command")
	}
	prog, err := syntax.NewParser().Parse(strings.NewReader(script), "minify")
	if err != nil {
		return nil, fmt.Errorf("minifier command syntax error: %w", err)
	}
	return &Shell{script: script, prog: prog}, nil
}

func (s *Shell) String() string {
	return s.script
}

// Minify implements Minifier.
func (s *Shell) Minify(ctx context.Context, src string) (string, error) {
	env := s.Env
	if env == nil {
		env = os.Environ()
	}
	var stdout, stderr bytes.Buffer
	runner, err := interp.New(
		interp.Dir(s.Dir),
		interp.Env(expand.ListEnviron(env...)),
		interp.StdIO(strings.NewReader(src), &stdout, &stderr),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create interpreter: %w", err)
	}

	if err := runner.Run(ctx, s.prog); err != nil {
		var exitStatus interp.ExitStatus
		if errors.As(err, &exitStatus) {
			return "", fmt.Errorf("minifier %q exited with status %d: %s", s.script, int(exitStatus), strings.TrimSpace(stderr.String()))
		}
		return "", fmt.Errorf("minifier %q failed: %w", s.script, err)
	}

	out := strings.ReplaceAll(stdout.String(), "\r\n", "\n")
	if strings.TrimSpace(out) == "" && strings.TrimSpace(src) != "" {
		return "", ErrEmptyOutput
	}
	return out, nil
}

// Apply runs m over src and returns the original text if m is nil or fails.
// The boolean reports whether the minified text was used.
func Apply(ctx context.Context, m Minifier, chunk, src string) (string, bool) {
	if m == nil {
		return src, false
	}
	if _, ok := m.(Nop); ok {
		return src, false
	}
	out, err := m.Minify(ctx, src)
	if err != nil {
		slog.Warn("minification failed, writing unminified chunk", "chunk", chunk, "error", err)
		return src, false
	}
	return out, true
}
