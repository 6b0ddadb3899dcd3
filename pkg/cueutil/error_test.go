// SPDX-License-Identifier: MPL-2.0

package cueutil

import (
	"errors"
	"strings"
	"testing"

	"cuelang.org/go/cue/cuecontext"
)

func TestFormatError(t *testing.T) {
	t.Parallel()

	if FormatError(nil, "pychunk.cue") != nil {
		t.Error("FormatError(nil) should be nil")
	}

	plain := errors.New("disk on fire")
	err := FormatError(plain, "pychunk.cue")
	if !errors.Is(err, plain) || !strings.HasPrefix(err.Error(), "pychunk.cue: ") {
		t.Errorf("non-CUE error should be wrapped with the file name, got %v", err)
	}

	v := cuecontext.New().CompileString(`a: int & "x"`)
	err = FormatError(v.Validate(), "pychunk.cue")
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected *ValidationError, got %T: %v", err, err)
	}
	if len(vErr.Fields) == 0 || vErr.Fields[0].Path != "a" {
		t.Errorf("expected a violation at path a, got %+v", vErr.Fields)
	}
}

func TestValidationError_Error(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  *ValidationError
		want string
	}{
		{
			name: "single field",
			err:  &ValidationError{FilePath: "pychunk.cue", Fields: []FieldError{{Path: "chunks[0].name", Message: "invalid value"}}},
			want: "pychunk.cue: chunks[0].name: invalid value",
		},
		{
			name: "no path",
			err:  &ValidationError{FilePath: "pychunk.cue", Fields: []FieldError{{Message: "expected '}'"}}},
			want: "pychunk.cue: expected '}'",
		},
		{
			name: "several fields",
			err: &ValidationError{FilePath: "pychunk.toml", Fields: []FieldError{
				{Path: "workers", Message: "out of bound"},
				{Path: "auto.min_chunk_size", Message: "conflicting values"},
			}},
			want: "pychunk.toml: validation failed:\n  workers: out of bound\n  auto.min_chunk_size: conflicting values",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path []string
		want string
	}{
		{nil, ""},
		{[]string{"entry"}, "entry"},
		{[]string{"auto", "similarity_threshold"}, "auto.similarity_threshold"},
		{[]string{"chunks", "0", "name"}, "chunks[0].name"},
		{[]string{"chunks", "1", "includes", "12"}, "chunks[1].includes[12]"},
		// A leading number is a field name, not an index.
		{[]string{"0", "name"}, "0.name"},
	}

	for _, tt := range tests {
		if got := formatPath(tt.path); got != tt.want {
			t.Errorf("formatPath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestCheckFileSize(t *testing.T) {
	t.Parallel()

	data := make([]byte, 100)
	if err := CheckFileSize(data, 100, "pychunk.cue"); err != nil {
		t.Errorf("exactly at the limit should pass, got %v", err)
	}
	if err := CheckFileSize(nil, 100, "pychunk.cue"); err != nil {
		t.Errorf("empty input should pass, got %v", err)
	}

	err := CheckFileSize(append(data, 'x'), 100, "pychunk.cue")
	if !errors.Is(err, ErrFileTooLarge) {
		t.Fatalf("expected ErrFileTooLarge, got %v", err)
	}
	var sizeErr *FileTooLargeError
	if !errors.As(err, &sizeErr) || sizeErr.Size != 101 || sizeErr.Max != 100 {
		t.Errorf("unexpected error details: %+v", sizeErr)
	}
	if !strings.Contains(err.Error(), "exceeds maximum") {
		t.Errorf("unexpected message: %v", err)
	}
}
