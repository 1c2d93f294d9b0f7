// Package fault defines the error taxonomy shared by the evaluation engine and
// its collaborators.
//
// Every error surfaced by the core carries a Kind so callers can tell a bad
// configuration apart from a degenerate domain input or malformed ingestion data
// without string matching.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies an error.
type Kind string

const (
	// Config covers undersized capacities, non-positive durations, unknown
	// dataset types or modes. Fatal to the current evaluation, never retried.
	Config Kind = "E_CONFIG"
	// Domain covers inputs the metric functions are not defined for
	// (no failures, empty subset, out-of-range index).
	Domain Kind = "E_DOMAIN"
	// Input covers malformed records found during ingestion.
	Input Kind = "E_INPUT"
)

// Error is the standard error type of this module.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

// Error returns "KIND: message[: cause]".
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates an Error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf is New with a format string.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error of the given kind around cause. Wrapping a package
// sentinel keeps errors.Is(err, sentinel) true while adding context.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

// KindOf returns the kind of the outermost *Error in err's chain, or "".
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// ExitCode maps an error to a process exit code: 0 for nil, 2 for
// configuration errors, 1 otherwise.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if IsKind(err, Config) {
		return 2
	}
	return 1
}
