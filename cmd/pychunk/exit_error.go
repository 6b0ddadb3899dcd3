// SPDX-License-Identifier: MPL-2.0

package cmd

import "fmt"

const (
	// ExitBuildFailed is returned when a build or an inspected manifest fails.
	ExitBuildFailed = 1
	// ExitUsage is returned for invalid arguments and configuration errors.
	ExitUsage = 2
)

// ExitError signals a non-zero exit code without forcing os.Exit in RunE handlers.
type ExitError struct {
	Code int
	Err  error

	// rendered is set when the error was already printed to stderr.
	rendered bool
}

// Error returns the error message for ExitError.
func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

// Unwrap returns the underlying error, if any.
func (e *ExitError) Unwrap() error {
	return e.Err
}
