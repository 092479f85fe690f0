package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/arthur-debert/nanotree/nanotree"
)

// CLIError represents a user-friendly CLI error with context and suggestions
type CLIError struct {
	Operation   string   // The operation that failed (e.g., "move", "delete")
	Cause       string   // The underlying cause (e.g., "node not found")
	Details     string   // Additional technical details
	Suggestions []string // Helpful suggestions for the user
	Underlying  error    // Original error for debugging
}

// Error implements the error interface
func (e *CLIError) Error() string {
	var msg strings.Builder

	if e.Operation != "" {
		msg.WriteString(fmt.Sprintf("Failed to %s", e.Operation))
	} else {
		msg.WriteString("Operation failed")
	}
	if e.Cause != "" {
		msg.WriteString(fmt.Sprintf(": %s", e.Cause))
	}
	if e.Details != "" {
		msg.WriteString(fmt.Sprintf(" (%s)", e.Details))
	}
	if len(e.Suggestions) > 0 {
		msg.WriteString("\n\nSuggestions:")
		for i, suggestion := range e.Suggestions {
			msg.WriteString(fmt.Sprintf("\n  %d. %s", i+1, suggestion))
		}
	}
	return msg.String()
}

// Unwrap returns the underlying error for error chain compatibility
func (e *CLIError) Unwrap() error {
	return e.Underlying
}

// NewValidationError creates an error for invalid flag or argument values
func NewValidationError(operation, field, value string, suggestions ...string) *CLIError {
	return &CLIError{
		Operation:   operation,
		Cause:       fmt.Sprintf("invalid %s: %q", field, value),
		Suggestions: suggestions,
	}
}

// NewNotFoundError creates an error for missing nodes
func NewNotFoundError(operation, id string, underlying error, suggestions ...string) *CLIError {
	return &CLIError{
		Operation:   operation,
		Cause:       fmt.Sprintf("node %q not found", id),
		Suggestions: suggestions,
		Underlying:  underlying,
	}
}

// NewConfigError creates an error for configuration issues
func NewConfigError(operation, issue string, suggestions ...string) *CLIError {
	return &CLIError{
		Operation:   operation,
		Cause:       fmt.Sprintf("configuration error: %s", issue),
		Suggestions: suggestions,
	}
}

// WrapError turns a tree or collection error into a CLIError, choosing the
// cause and suggestions from the error kind
func WrapError(operation string, err error, suggestions ...string) error {
	if err == nil {
		return nil
	}

	var cliErr *CLIError
	if errors.As(err, &cliErr) {
		if cliErr.Operation == "" {
			cliErr.Operation = operation
		}
		return cliErr
	}

	out := &CLIError{Operation: operation, Details: err.Error(), Underlying: err, Suggestions: suggestions}
	switch {
	case errors.Is(err, nanotree.ErrNotFound):
		out.Cause = "node not found"
		out.Suggestions = append([]string{CommonSuggestions.CheckID}, suggestions...)
	case errors.Is(err, nanotree.ErrConfiguration):
		out.Cause = "not allowed by the tree configuration"
		out.Suggestions = append([]string{"Enable sibling ordering with --ordering or --position-field"}, suggestions...)
	case errors.Is(err, nanotree.ErrPartialCascade):
		out.Cause = "the change was only partially applied"
		out.Suggestions = append([]string{
			"Some descendants may still carry old paths",
			"Re-run the move or delete once the collection is reachable",
		}, suggestions...)
	case errors.Is(err, nanotree.ErrCycle):
		out.Cause = "a node cannot be moved below itself"
	case errors.Is(err, nanotree.ErrInvalidID):
		out.Cause = "invalid node id"
		out.Suggestions = append([]string{"Ids cannot contain the path separator"}, suggestions...)
	default:
		lower := strings.ToLower(err.Error())
		switch {
		case strings.Contains(lower, "permission denied"):
			out.Cause = "insufficient permissions to access the database"
		case strings.Contains(lower, "database is locked"), strings.Contains(lower, "lock"):
			out.Cause = "the database is locked by another process"
		default:
			out.Cause = "store operation failed"
		}
	}
	return out
}

// CommonSuggestions are reused across commands
var CommonSuggestions = struct {
	CheckDB     string
	CheckID     string
	CheckConfig string
	CheckPerms  string
	RunHelp     string
}{
	CheckDB:     "Verify --db (or --mongo-uri) points at the collection",
	CheckID:     "Verify the node id exists (try 'children' or 'tree' first)",
	CheckConfig: "Check your configuration file or NANOTREE_* environment variables",
	CheckPerms:  "Check file permissions and directory access",
	RunHelp:     "Run command with --help for usage information",
}
