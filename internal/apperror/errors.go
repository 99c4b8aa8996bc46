// Package apperror defines the error taxonomy shared by the auth flows.
// Every failure crossing the service boundary is one of these kinds, so the
// HTTP layer can map it to a status class without string matching.
package apperror

import (
	"errors"
	"net/http"
)

type Kind string

const (
	KindValidation Kind = "validation"
	KindAuth       Kind = "auth"
	KindForbidden  Kind = "forbidden"
	KindNotFound   Kind = "not_found"
	KindRateLimit  Kind = "rate_limit"
	KindDatabase   Kind = "database"
)

// Error is a typed failure carrying a user-facing message and an optional
// wrapped cause. The message is safe to return to callers verbatim.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation reports malformed input or a business-rule violation.
func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

// Auth reports invalid credentials or an invalid token.
func Auth(message string) *Error {
	return &Error{Kind: KindAuth, Message: message}
}

// Forbidden reports a request that is authenticated but not entitled,
// including tokens that decode to a non-existent account.
func Forbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Message: message}
}

// NotFound reports an absent resource.
func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

// RateLimit reports a cooldown, spam lock, or account lock.
func RateLimit(message string) *Error {
	return &Error{Kind: KindRateLimit, Message: message}
}

// Database reports a fatal store or delivery failure. The core never retries
// these; the caller decides on retry policy.
func Database(message string, err error) *Error {
	return &Error{Kind: KindDatabase, Message: message, Err: err}
}

// KindOf extracts the taxonomy kind from err, or KindDatabase for untyped
// failures (anything unclassified is treated as fatal).
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindDatabase
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Message returns the user-facing message of err without the wrapped cause.
func Message(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "Internal server error."
}

// StatusCode maps err to the HTTP status class of its kind.
func StatusCode(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
