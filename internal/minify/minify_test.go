// SPDX-License-Identifier: MPL-2.0

package minify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failing struct{}

func (failing) Minify(context.Context, string) (string, error) {
	return "", errors.New("boom")
}

type upper struct{}

func (upper) Minify(_ context.Context, src string) (string, error) {
	return "MIN:" + src, nil
}

func TestNewShell(t *testing.T) {
	t.Parallel()

	_, err := NewShell("   ")
	require.Error(t, err)

	_, err = NewShell("echo 'unterminated")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "syntax error")

	s, err := NewShell("  pyminify -  ")
	require.NoError(t, err)
	assert.Equal(t, "pyminify -", s.String())
}

func TestShell_ReadsChunkFromStdin(t *testing.T) {
	t.Parallel()

	s, err := NewShell(`while IFS= read -r line; do [ -n "$line" ] && echo "$line"; done; true`)
	require.NoError(t, err)
	s.Env = []string{}

	out, err := s.Minify(context.Background(), "x = 1\n\n\ny = 2\n")
	require.NoError(t, err)
	assert.Equal(t, "x = 1\ny = 2\n", out)
}

func TestShell_ExitStatus(t *testing.T) {
	t.Parallel()

	s, err := NewShell("echo broken >&2; exit 3")
	require.NoError(t, err)
	s.Env = []string{}

	_, err = s.Minify(context.Background(), "x = 1\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 3")
	assert.Contains(t, err.Error(), "broken")
}

func TestShell_EmptyOutput(t *testing.T) {
	t.Parallel()

	s, err := NewShell("true")
	require.NoError(t, err)
	s.Env = []string{}

	_, err = s.Minify(context.Background(), "x = 1\n")
	require.ErrorIs(t, err, ErrEmptyOutput)
}

func TestApply(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tests := []struct {
		name     string
		m        Minifier
		want     string
		minified bool
	}{
		{"nil", nil, "src", false},
		{"nop", Nop{}, "src", false},
		{"failing falls back", failing{}, "src", false},
		{"success", upper{}, "MIN:src", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := Apply(ctx, tt.m, "main", "src")
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.minified, ok)
		})
	}
}
