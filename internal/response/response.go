// Package response defines the outcome envelope shared by the dispatch
// engine and the HTTP layer: a success payload or a typed error drawn from a
// closed taxonomy. The numeric status for each error kind is a presentation
// concern, but the mapping is fixed and lives here so every surface agrees.
package response

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind tags an error with its taxonomy entry.
type Kind string

const (
	KindBadOperation         Kind = "BadOperation"
	KindIllegalArgument      Kind = "IllegalArgument"
	KindUnauthorized         Kind = "Unauthorized"
	KindForbiddenOperation   Kind = "ForbiddenOperation"
	KindNotFound             Kind = "NotFound"
	KindMethodNotAllowed     Kind = "MethodNotAllowed"
	KindContentTooLarge      Kind = "ContentTooLarge"
	KindUnsupportedMediaType Kind = "UnsupportedMediaType"
	KindUnprocessableEntity  Kind = "UnprocessableEntity"
	KindTooManyRequests      Kind = "TooManyRequests"
	KindInternalError        Kind = "InternalError"
)

// StatusOf maps an error kind to its HTTP status. Unrecognized kinds are
// internal errors.
func StatusOf(kind Kind) int {
	switch kind {
	case KindBadOperation, KindIllegalArgument:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbiddenOperation:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case KindContentTooLarge:
		return http.StatusRequestEntityTooLarge
	case KindUnsupportedMediaType:
		return http.StatusUnsupportedMediaType
	case KindUnprocessableEntity:
		return http.StatusUnprocessableEntity
	case KindTooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Error is a typed failure. Cause is optional detail safe to show callers.
type Error struct {
	Kind    Kind   `json:"error"`
	Message string `json:"message"`
	Cause   string `json:"cause,omitempty"`
}

func (e *Error) Error() string {
	if e.Cause != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func BadOperation(message string) *Error { return NewError(KindBadOperation, message) }
func Forbidden(message string) *Error    { return NewError(KindForbiddenOperation, message) }
func NotFound(message string) *Error     { return NewError(KindNotFound, message) }
func Internal(message string) *Error     { return NewError(KindInternalError, message) }

// KindOf extracts the taxonomy kind from any error; non-typed errors are
// internal errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternalError
}

// AsError returns the typed error inside err, wrapping unknown errors as a
// generic internal error without leaking their detail.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal("internal error")
}

// Success wraps a payload with an HTTP-style status. Code 204 means the
// rendered response carries no body.
type Success struct {
	Data any
	Code int
}

func OK(data any) Success { return Success{Data: data, Code: http.StatusOK} }
