// Package errors defines the closed error taxonomy shared by every
// subsystem in the agentic execution core (spec §7).
//
// Low-level failures are captured inside the component that detects them
// and surfaced as a *Error through a normal return value — they are never
// thrown across a subsystem boundary as a panic.
package errors

import (
	"errors"
	"fmt"
)

// Kind is one of the closed set of error kinds from spec §7.
type Kind string

const (
	KindParseError        Kind = "parse_error"
	KindSchemaError       Kind = "schema_error"
	KindValidationError   Kind = "validation_error"
	KindSafetyViolation   Kind = "safety_violation"
	KindSHAMismatch       Kind = "sha_mismatch"
	KindTruncation        Kind = "truncation"
	KindSplitFailed       Kind = "split_failed"
	KindBudgetExhausted   Kind = "budget_exhausted"
	KindModeViolation     Kind = "mode_violation"
	KindLLMError          Kind = "llm_error"
	KindCheckpointMissing Kind = "checkpoint_not_found"
	KindPersistenceError  Kind = "persistence_error"
)

// Error is the structured error type returned across subsystem
// boundaries. It always carries a Kind from the closed taxonomy so
// callers can branch on it without string matching.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an *Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an *Error wrapping an existing error.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
