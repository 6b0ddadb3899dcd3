// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/pychunk/pychunk/internal/bundler"
	"github.com/pychunk/pychunk/internal/config"
	"github.com/pychunk/pychunk/internal/dag"
	"github.com/pychunk/pychunk/internal/depgraph"
	"github.com/pychunk/pychunk/internal/issue"
)

// ServiceError is an error that carries optional rendering information for
// the CLI layer. When the CLI layer receives a ServiceError, it renders the
// styled error message (if present) before the issue help text.
// Always create via newServiceError to enforce the Err-must-be-non-nil invariant.
type ServiceError struct {
	// Err is the underlying error (must not be nil).
	Err error
	// IssueID is the optional issue catalog ID for rendering help text.
	IssueID issue.Id
	// StyledMessage is the optional pre-rendered styled error text.
	StyledMessage string
}

// newServiceError creates a ServiceError with a nil-Err panic guard.
func newServiceError(err error, issueID issue.Id, styledMessage string) *ServiceError {
	if err == nil {
		panic("ServiceError: Err must not be nil")
	}
	return &ServiceError{
		Err:           err,
		IssueID:       issueID,
		StyledMessage: styledMessage,
	}
}

// Error implements the error interface.
func (e *ServiceError) Error() string { return e.Err.Error() }

// Unwrap returns the underlying error for errors.Is/As chains.
func (e *ServiceError) Unwrap() error { return e.Err }

// renderServiceError prints any styled message first, then the optional
// issue help section rendered with the given glamour style.
func renderServiceError(stderr io.Writer, svcErr *ServiceError, style string) {
	if svcErr == nil {
		return
	}

	if svcErr.StyledMessage != "" {
		fmt.Fprint(stderr, svcErr.StyledMessage)
	}

	if svcErr.IssueID == 0 {
		return
	}

	if catalogEntry := issue.Get(svcErr.IssueID); catalogEntry != nil {
		rendered, renderErr := catalogEntry.Render(style)
		if renderErr != nil {
			slog.Warn("failed to render issue catalog entry", "issueID", svcErr.IssueID, "error", renderErr)
		} else {
			fmt.Fprint(stderr, rendered)
		}
	}
}

// classifyBuildError maps build failures to issue catalog IDs and returns a
// styled message for CLI rendering. Actionable errors carry their own ID.
func classifyBuildError(err error, verbose bool) (issueID issue.Id, styledMsg string) {
	issueID = issue.IssueOf(err)
	if issueID == 0 {
		var cycleErr *dag.CycleError
		switch {
		case errors.Is(err, context.Canceled):
		case errors.Is(err, bundler.ErrNoEntry),
			errors.Is(err, depgraph.ErrEntryNotFound),
			errors.Is(err, depgraph.ErrEntryOutsideRoot):
			issueID = issue.EntryNotFoundId
		case errors.As(err, &cycleErr):
			issueID = issue.DependencyCycleId
		case errors.Is(err, os.ErrPermission):
			issueID = issue.OutputWriteFailedId
		}
	}
	return issueID, styledError(err, verbose)
}

// classifyConfigError maps configuration failures to issue catalog IDs.
func classifyConfigError(err error, verbose bool) (issueID issue.Id, styledMsg string) {
	issueID = issue.IssueOf(err)
	if issueID == 0 {
		issueID = issue.ConfigLoadFailedId
		if errors.Is(err, config.ErrInvalidConfig) {
			issueID = issue.InvalidConfigId
		}
	}
	return issueID, styledError(err, verbose)
}

func styledError(err error, verbose bool) string {
	return fmt.Sprintf("\n%s %s\n", ErrorStyle.Render("Error:"), formatErrorForDisplay(err, verbose))
}

// formatErrorForDisplay formats an error for user display.
// If the error is an ActionableError, it uses the Format method.
// In verbose mode, shows the full error chain.
func formatErrorForDisplay(err error, verboseMode bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verboseMode)
	}
	return err.Error()
}
