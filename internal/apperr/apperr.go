// Package apperr defines the error taxonomy shared by upstream adapters,
// the cache layer and the HTTP boundary. Every error carries a kind, a
// human-readable message and the HTTP status it maps to.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for status mapping and retry decisions.
type Kind int

const (
	// KindUnknown is the fallback for unclassified errors.
	KindUnknown Kind = iota
	// KindValidation is missing or malformed caller input. Never retried.
	KindValidation
	// KindAuth is a rejected upstream credential exchange.
	KindAuth
	// KindRateLimited is an upstream 429. Callers are expected to back off.
	KindRateLimited
	// KindUpstream is a non-2xx upstream response other than 429.
	KindUpstream
	// KindUnreachable is a transport-level upstream failure. This is the
	// only kind that is plausibly retryable.
	KindUnreachable
	// KindNotInitialized is an adapter used before its configuration loaded.
	KindNotInitialized
	// KindPersistence is a cache store read or write failure.
	KindPersistence
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "authentication"
	case KindRateLimited:
		return "rate_limited"
	case KindUpstream:
		return "upstream"
	case KindUnreachable:
		return "unreachable"
	case KindNotInitialized:
		return "not_initialized"
	case KindPersistence:
		return "persistence"
	default:
		return "unknown"
	}
}

// Error is a classified application error.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error of the given kind with the default status for that kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Status: defaultStatus(kind), Message: message}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return New(kind, fmt.Sprintf(format, args...))
}

// Wrap creates an error of the given kind wrapping a cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Status: defaultStatus(kind), Message: message, Err: err}
}

// WithStatus overrides the HTTP status, used when an upstream status should
// influence the surfaced one.
func (e *Error) WithStatus(status int) *Error {
	e.Status = status
	return e
}

func defaultStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindUnreachable:
		return http.StatusServiceUnavailable
	case KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// KindOf returns the kind of err, or KindUnknown if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HTTPStatus returns the status an error should surface with. Unclassified
// errors map to 500.
func HTTPStatus(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return http.StatusInternalServerError
}

// MessageOf returns the human-readable message for err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal server error"
}

// Retryable reports whether a retry of the same call could plausibly
// succeed. Only transport-level failures qualify; validation, auth and
// upstream rejections will fail the same way again.
func Retryable(err error) bool {
	return KindOf(err) == KindUnreachable
}
