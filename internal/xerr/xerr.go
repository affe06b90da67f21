// Package xerr defines the error taxonomy shared across Xantippe's
// subsystems (spec §7). Each error carries a Kind that callers can match
// with Of, or with errors.Is against an *Error of the same Kind, plus an
// optional wrapped cause for diagnostics.
package xerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error into one of the outcomes named in §7.
type Kind int

const (
	_ Kind = iota
	NotRunning
	NotFound
	NameInUse
	InvalidArgument
	InvalidState
	Io
	LockStateError
	ValidationFailed
	QueryFailed
	Timeout

	// StoreUnavailable and StoreIo are FileStore-specific outcomes (§4.1)
	// distinct from the general Io kind: StoreUnavailable means the store
	// could not be started at all (filesystem errors during Start);
	// StoreIo means an established store hit an I/O error mid-operation.
	StoreUnavailable
	StoreIo
)

func (k Kind) String() string {
	switch k {
	case NotRunning:
		return "NotRunning"
	case NotFound:
		return "NotFound"
	case NameInUse:
		return "NameInUse"
	case InvalidArgument:
		return "InvalidArgument"
	case InvalidState:
		return "InvalidState"
	case Io:
		return "Io"
	case LockStateError:
		return "LockStateError"
	case ValidationFailed:
		return "ValidationFailed"
	case QueryFailed:
		return "QueryFailed"
	case Timeout:
		return "Timeout"
	case StoreUnavailable:
		return "StoreUnavailable"
	case StoreIo:
		return "StoreIo"
	default:
		return "Unknown"
	}
}

// Error is the concrete error type returned across package boundaries.
type Error struct {
	Kind    Kind
	Message string
	Cause   error

	// Diagnostics carries structured validator output for ValidationFailed
	// errors (§7: "carries diagnostics"). Nil for all other kinds.
	Diagnostics []string
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error with the same Kind, so callers can
// write errors.Is(err, xerr.New(xerr.NotFound, "")).
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return other.Kind == e.Kind
	}
	return false
}

// New constructs an *Error of the given kind with no cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an *Error of the given kind wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithDiagnostics attaches diagnostic strings (e.g. from a validator) and
// returns the same *Error for chaining.
func (e *Error) WithDiagnostics(diags []string) *Error {
	e.Diagnostics = diags
	return e
}

// Of reports whether err (or any error it wraps) has the given Kind.
func Of(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
