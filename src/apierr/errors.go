// Package apierr carries the typed errors returned by every group operation.
package apierr

import "errors"

// Error is a domain error with a stable code.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// Sentinels for errors.Is checks by code.
var (
	ErrNotFound     = &Error{Code: CodeNotFound}
	ErrBadRequest   = &Error{Code: CodeBadRequest}
	ErrDuplicate    = &Error{Code: CodeDuplicate}
	ErrUnauthorized = &Error{Code: CodeUnauthorized}
	ErrUnsupported  = &Error{Code: CodeUnsupported}
)

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func NotFound(message string) *Error { return New(CodeNotFound, message) }
func BadRequest(message string) *Error { return New(CodeBadRequest, message) }
func Duplicate(message string) *Error { return New(CodeDuplicate, message) }
func Unauthorized(message string) *Error { return New(CodeUnauthorized, message) }
func Unsupported(message string) *Error { return New(CodeUnsupported, message) }

// CodeOf returns the code carried by err, or "" for infrastructure errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
