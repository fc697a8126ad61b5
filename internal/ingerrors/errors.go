// Package ingerrors defines the error taxonomy shared across the ingestor
// core. Every component surfaces errors through Error so that batch and job
// orchestration can make retry/propagation decisions on Kind alone instead of
// sniffing error strings.
package ingerrors

import (
	"errors"
	"fmt"
)

// Kind classifies an error for retry and propagation purposes.
type Kind int

const (
	// Validation indicates bad input. Never retried.
	Validation Kind = iota
	// NotFound indicates a missing row or resource. Non-fatal at batch level.
	NotFound
	// Conflict indicates a unique-constraint violation resolved by the caller.
	Conflict
	// Transient indicates a network/timeout/DB-busy condition. Retried.
	Transient
	// Upstream indicates an AI backend error. Triggers rule fallback.
	Upstream
	// Corruption indicates malformed AI JSON or bad chunk math. Fatal for the item.
	Corruption
	// Fatal indicates storage corruption or schema-init failure. Terminates the batch.
	Fatal
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case NotFound:
		return "not_found"
	case Conflict:
		return "conflict"
	case Transient:
		return "transient"
	case Upstream:
		return "upstream"
	case Corruption:
		return "corruption"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Context carries the identifiers an error occurred against, for logging and
// batch/job item attribution.
type Context struct {
	ItemID    string
	ContentID string
}

// Error is the error type surfaced by every ingestor component.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
	Context Context
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error of the given kind around a cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithContext attaches item/content attribution and returns the same error.
func (e *Error) WithContext(ctx Context) *Error {
	e.Context = ctx
	return e
}

// ErrNotFound is the sentinel used for simple not-found checks via errors.Is.
var ErrNotFound = New(NotFound, "not found")

// ErrConflict is the sentinel used for simple conflict checks via errors.Is.
var ErrConflict = New(Conflict, "conflict")

// Is allows errors.Is(err, ingerrors.ErrNotFound) to match any *Error of the
// same Kind, not just the exact sentinel value, since callers construct their
// own wrapped instances with additional context.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// KindOf extracts the Kind of err, defaulting to Fatal for errors that are
// not *Error (an unclassified error is treated as the most severe case).
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Fatal
}

// Retryable reports whether err's kind is one the batch engine or AI client
// should retry.
func Retryable(err error) bool {
	return KindOf(err) == Transient
}
