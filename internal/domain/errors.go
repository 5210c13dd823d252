package domain

import (
	"errors"
	"fmt"
)

// ErrorCode is a machine-readable error classification.
type ErrorCode string

const (
	CodeInvalidState ErrorCode = "INVALID_STATE"
	CodeForbidden    ErrorCode = "FORBIDDEN"
	CodeNotFound     ErrorCode = "NOT_FOUND"
	CodeConflict     ErrorCode = "CONFLICT"
	CodeNoCandidates ErrorCode = "NO_CANDIDATES"
	CodeInvalidInput ErrorCode = "INVALID_INPUT"
)

// Error is a domain error carrying a code. Two errors match under errors.Is when their codes match,
// so callers can test against the sentinels below regardless of the detail message.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a domain error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Sentinel errors. Use errors.Is(err, domain.ErrNotFound) and friends.
var (
	ErrInvalidState = &Error{Code: CodeInvalidState, Message: "operation not allowed in current state"}
	ErrForbidden    = &Error{Code: CodeForbidden, Message: "forbidden"}
	ErrNotFound     = &Error{Code: CodeNotFound, Message: "not found"}
	ErrConflict     = &Error{Code: CodeConflict, Message: "concurrent update"}
	ErrNoCandidates = &Error{Code: CodeNoCandidates, Message: "no venue option received any vote"}
	ErrInvalidInput = &Error{Code: CodeInvalidInput, Message: "invalid input"}
)

// InvalidStatef returns an INVALID_STATE error with a formatted message.
func InvalidStatef(format string, args ...any) error {
	return &Error{Code: CodeInvalidState, Message: fmt.Sprintf(format, args...)}
}

// Forbiddenf returns a FORBIDDEN error with a formatted message.
func Forbiddenf(format string, args ...any) error {
	return &Error{Code: CodeForbidden, Message: fmt.Sprintf(format, args...)}
}

// NotFoundf returns a NOT_FOUND error with a formatted message.
func NotFoundf(format string, args ...any) error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// InvalidInputf returns an INVALID_INPUT error with a formatted message.
func InvalidInputf(format string, args ...any) error {
	return &Error{Code: CodeInvalidInput, Message: fmt.Sprintf(format, args...)}
}

// CodeOf returns the domain code carried by err, or "" when err is not a domain error.
func CodeOf(err error) ErrorCode {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}
