// Package apperr defines the control plane's single tagged error type and
// its mapping to HTTP status codes and response codes at the boundary.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the taxonomy of error categories the control plane distinguishes.
type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindBadRequest   Kind = "bad_request"
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindConflict     Kind = "conflict"
	KindTimeout      Kind = "timeout"
	KindInternal     Kind = "internal"
	KindBadGateway   Kind = "bad_gateway"
	KindUnavailable  Kind = "unavailable"
)

// Error is the control plane's single error variant. Persistence and
// external-call errors are wrapped in an Error as soon as their kind is
// known; handlers convert to HTTP once, at the boundary.
type Error struct {
	Kind    Kind
	Message string
	Code    string // optional machine-readable code, e.g. "NO_AVAILABLE_PORT"
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// StatusCode maps the error's Kind to an HTTP status code.
func (e *Error) StatusCode() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindBadRequest:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindBadGateway:
		return http.StatusBadGateway
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func new(kind Kind, code, message string, cause error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Cause: cause}
}

func NotFound(message string) *Error     { return new(KindNotFound, "", message, nil) }
func BadRequest(message string) *Error   { return new(KindBadRequest, "", message, nil) }
func Unauthorized(message string) *Error { return new(KindUnauthorized, "", message, nil) }
func Forbidden(message string) *Error    { return new(KindForbidden, "", message, nil) }
func Conflict(message string) *Error     { return new(KindConflict, "", message, nil) }
func Timeout(message string) *Error      { return new(KindTimeout, "", message, nil) }
func BadGateway(message string) *Error   { return new(KindBadGateway, "", message, nil) }
func Unavailable(message string) *Error  { return new(KindUnavailable, "", message, nil) }

// Internal wraps an unexpected error (DB, filesystem, crypto) as a 500.
func Internal(message string, cause error) *Error {
	return new(KindInternal, "", message, cause)
}

// WithCode attaches a machine-readable code to an error, e.g. for clients
// that branch on specific failure reasons (NO_AVAILABLE_PORT, NO_INSTANCE).
func WithCode(err *Error, code string) *Error {
	cp := *err
	cp.Code = code
	return &cp
}

// NoAvailablePort is a distinct Conflict error for port-range exhaustion.
func NoAvailablePort() *Error {
	return WithCode(Conflict("no available port in configured range"), "NO_AVAILABLE_PORT")
}

// As extracts an *Error from err, if present.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind of err if it is (or wraps) an *Error, else KindInternal.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}
