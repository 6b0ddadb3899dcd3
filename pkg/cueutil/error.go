// SPDX-License-Identifier: MPL-2.0

package cueutil

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	cueerrors "cuelang.org/go/cue/errors"
)

// ErrFileTooLarge is the sentinel error wrapped by FileTooLargeError.
var ErrFileTooLarge = errors.New("file too large")

type (
	// FieldError is one schema violation.
	FieldError struct {
		// Path locates the value in JSON-path notation, e.g. "chunks[0].name".
		// It is empty for errors not tied to a field, such as syntax errors.
		Path    string
		Message string
	}

	// ValidationError lists every schema violation found in one file.
	ValidationError struct {
		FilePath string
		Fields   []FieldError
	}

	// FileTooLargeError is returned before parsing when the input exceeds
	// the configured size limit.
	FileTooLargeError struct {
		FilePath string
		Size     int64
		Max      int64
	}
)

// String returns "path: message", or the message alone.
func (f FieldError) String() string {
	if f.Path == "" {
		return f.Message
	}
	return f.Path + ": " + f.Message
}

// Error reports a single violation on one line and several as an indented list.
func (e *ValidationError) Error() string {
	if len(e.Fields) == 1 {
		return e.FilePath + ": " + e.Fields[0].String()
	}
	lines := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		lines[i] = f.String()
	}
	return fmt.Sprintf("%s: validation failed:\n  %s", e.FilePath, strings.Join(lines, "\n  "))
}

func (e *FileTooLargeError) Error() string {
	return fmt.Sprintf("%s: file size %d bytes exceeds maximum %d bytes", e.FilePath, e.Size, e.Max)
}

// Unwrap returns ErrFileTooLarge for errors.Is() compatibility.
func (e *FileTooLargeError) Unwrap() error {
	return ErrFileTooLarge
}

// FormatError converts a CUE error into a *ValidationError naming filePath.
// Errors that do not come from CUE are wrapped with the file name only.
//
//   - pychunk.cue: chunks[1].name: invalid value "my chunk"
//   - pychunk.toml: auto.similarity_threshold: invalid value 2 (out of bound <=1)
func FormatError(err error, filePath string) error {
	if err == nil {
		return nil
	}
	list := cueerrors.Errors(err)
	if len(list) == 0 {
		return fmt.Errorf("%s: %w", filePath, err)
	}
	vErr := &ValidationError{FilePath: filePath, Fields: make([]FieldError, 0, len(list))}
	for _, e := range list {
		vErr.Fields = append(vErr.Fields, fieldError(e))
	}
	return vErr
}

// fieldError drops the path prefix CUE sometimes repeats in the message.
func fieldError(e cueerrors.Error) FieldError {
	path := formatPath(cueerrors.Path(e))
	msg := e.Error()
	if path != "" {
		if rest, ok := strings.CutPrefix(msg, path); ok {
			msg = strings.TrimSpace(strings.TrimPrefix(rest, ":"))
		}
	}
	return FieldError{Path: path, Message: msg}
}

// formatPath renders ["chunks", "0", "includes", "2"] as chunks[0].includes[2].
func formatPath(path []string) string {
	var b strings.Builder
	for i, part := range path {
		if _, err := strconv.Atoi(part); err == nil && i > 0 {
			b.WriteString("[" + part + "]")
			continue
		}
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(part)
	}
	return b.String()
}

// CheckFileSize returns a *FileTooLargeError when data exceeds maxSize bytes.
func CheckFileSize(data []byte, maxSize int64, filename string) error {
	if size := int64(len(data)); size > maxSize {
		return &FileTooLargeError{FilePath: filename, Size: size, Max: maxSize}
	}
	return nil
}
