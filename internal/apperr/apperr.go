package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the purpose of choosing an HTTP status
// code at the API boundary.
type Kind int

const (
	// KindInternal is an unclassified failure; maps to 500.
	KindInternal Kind = iota
	// KindValidation is a caller input error; maps to 400.
	KindValidation
	// KindNotFound is a missing resource lookup; maps to 404.
	KindNotFound
	// KindConflict is a uniqueness or state conflict; maps to 409.
	KindConflict
	// KindOracle is a failure from the embedding/LLM boundary; maps to 502.
	KindOracle
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation_error"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindOracle:
		return "oracle_error"
	default:
		return "internal_error"
	}
}

// Error is the typed error the API layer inspects with errors.As to
// pick a status code and a response message, while internal callers
// still get a normal error/Unwrap chain.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation wraps err (if any) as a validation-kind Error.
func Validation(message string, err error) *Error {
	return &Error{Kind: KindValidation, Message: message, Err: err}
}

// NotFound builds a not-found-kind Error.
func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

// Conflict builds a conflict-kind Error.
func Conflict(message string, err error) *Error {
	return &Error{Kind: KindConflict, Message: message, Err: err}
}

// Oracle wraps err as an oracle-kind Error.
func Oracle(message string, err error) *Error {
	return &Error{Kind: KindOracle, Message: message, Err: err}
}

// Internal wraps err as an internal-kind Error.
func Internal(message string, err error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// KindOf returns the Kind of err if it is (or wraps) an *Error, and
// KindInternal otherwise.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}
