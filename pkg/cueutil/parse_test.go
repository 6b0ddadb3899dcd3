// SPDX-License-Identifier: MPL-2.0

package cueutil

import (
	"errors"
	"strings"
	"testing"
)

const testSchema = `
#Chunk: close({
	name:      =~"^[a-z_]+$"
	includes?: [...string]
	weight?:   int & >=0
})
`

type testChunk struct {
	Name     string   `json:"name"`
	Includes []string `json:"includes,omitempty"`
	Weight   int      `json:"weight,omitempty"`
}

func TestParseAndDecode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		data    string
		want    testChunk
		wantErr string
	}{
		{
			name: "valid",
			data: `name: "models", includes: ["models/.*"], weight: 2`,
			want: testChunk{Name: "models", Includes: []string{"models/.*"}, Weight: 2},
		},
		{
			name: "optional fields omitted",
			data: `name: "core"`,
			want: testChunk{Name: "core"},
		},
		{name: "pattern violation", data: `name: "Bad Name"`, wantErr: "name"},
		{name: "type mismatch", data: `name: "core", weight: "heavy"`, wantErr: "weight"},
		{name: "closed struct", data: `name: "core", colour: "red"`, wantErr: "colour"},
		{name: "missing required field", data: `weight: 1`, wantErr: "name"},
		{name: "syntax error", data: `name: "core`, wantErr: "chunk.cue"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			result, err := ParseAndDecode[testChunk]([]byte(testSchema), []byte(tt.data), "#Chunk", WithFilename("chunk.cue"))
			if tt.wantErr != "" {
				if err == nil {
					t.Fatalf("expected error containing %q", tt.wantErr)
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("error %q should contain %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAndDecode failed: %v", err)
			}
			got := *result.Value
			if got.Name != tt.want.Name || got.Weight != tt.want.Weight || strings.Join(got.Includes, ",") != strings.Join(tt.want.Includes, ",") {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
			if result.Unified.Err() != nil {
				t.Errorf("unified value has error: %v", result.Unified.Err())
			}
		})
	}
}

func TestParseAndDecode_ValidationErrorPath(t *testing.T) {
	t.Parallel()

	_, err := ParseAndDecode[testChunk]([]byte(testSchema), []byte(`name: "core", weight: -1`), "#Chunk", WithFilename("chunk.cue"))
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected *ValidationError, got %T: %v", err, err)
	}
	if vErr.FilePath != "chunk.cue" || len(vErr.Fields) != 1 || vErr.Fields[0].Path != "weight" {
		t.Errorf("got file %q fields %+v", vErr.FilePath, vErr.Fields)
	}
}

func TestParseAndDecode_NonConcrete(t *testing.T) {
	t.Parallel()

	schema := `#Config: close({out_dir?: string, workers?: int})`
	result, err := ParseAndDecode[map[string]any]([]byte(schema), []byte(`{}`), "#Config", WithConcrete(false))
	if err != nil {
		t.Fatalf("ParseAndDecode failed: %v", err)
	}
	if len(*result.Value) != 0 {
		t.Errorf("expected no fields, got %v", *result.Value)
	}
}

func TestParseAndDecode_FileSizeLimit(t *testing.T) {
	t.Parallel()

	data := []byte(`name: "` + strings.Repeat("a", 200) + `"`)
	_, err := ParseAndDecode[testChunk]([]byte(testSchema), data, "#Chunk", WithMaxFileSize(100))
	if !errors.Is(err, ErrFileTooLarge) {
		t.Errorf("expected ErrFileTooLarge, got %v", err)
	}

	if _, err := ParseAndDecode[testChunk]([]byte(testSchema), data, "#Chunk"); err != nil {
		t.Errorf("default limit should accept %d bytes: %v", len(data), err)
	}
}

func TestParseAndDecode_UnknownDefinition(t *testing.T) {
	t.Parallel()

	_, err := ParseAndDecode[testChunk]([]byte(testSchema), []byte(`name: "core"`), "#Missing")
	if err == nil || !strings.Contains(err.Error(), "#Missing") {
		t.Errorf("expected missing definition error, got %v", err)
	}
}

func TestDecodeValue(t *testing.T) {
	t.Parallel()

	value := map[string]any{"name": "models", "includes": []any{"models/"}, "weight": int64(3)}
	result, err := DecodeValue[testChunk]([]byte(testSchema), value, "#Chunk", WithFilename("pychunk.toml"))
	if err != nil {
		t.Fatalf("DecodeValue failed: %v", err)
	}
	if result.Value.Name != "models" || result.Value.Weight != 3 || len(result.Value.Includes) != 1 {
		t.Errorf("unexpected value %+v", result.Value)
	}

	_, err = DecodeValue[testChunk]([]byte(testSchema), map[string]any{"name": "models", "weight": int64(-4)}, "#Chunk", WithFilename("pychunk.toml"))
	if err == nil || !strings.Contains(err.Error(), "pychunk.toml") {
		t.Errorf("expected error naming the file, got %v", err)
	}
}
