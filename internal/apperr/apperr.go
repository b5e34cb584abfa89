// Package apperr defines the gateway's structured error type and the error
// taxonomy used by the request orchestrator: validation, auth, upstream,
// translation, and cancellation failures each carry an HTTP status and a
// sanitized, client-safe message.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for metrics and status mapping.
type Kind string

const (
	// KindValidation marks a malformed or unsupported client request.
	// These never reach the network.
	KindValidation Kind = "validation"
	// KindAuth marks a failure to obtain or refresh the upstream credential.
	KindAuth Kind = "auth"
	// KindUpstream marks a non-2xx or transport failure from the provider.
	KindUpstream Kind = "upstream"
	// KindTranslation marks an upstream payload the codec cannot map.
	KindTranslation Kind = "translation"
	// KindCanceled marks a client disconnect or deadline expiry.
	KindCanceled Kind = "canceled"
)

// Error is a structured application error.
type Error struct {
	// Status is the HTTP status code to return to the client.
	Status int
	// Kind classifies the error.
	Kind Kind
	// Message is the user-facing, sanitized error message.
	Message string
	// Err is the underlying error, never exposed to clients.
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error { return e.Err }

// Validation creates a client-input error (HTTP 400).
func Validation(format string, args ...any) *Error {
	return &Error{Status: http.StatusBadRequest, Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Auth wraps an upstream credential failure. The upstream error body is kept
// internal; clients only see the generic message.
func Auth(err error) *Error {
	return &Error{Status: http.StatusUnauthorized, Kind: KindAuth, Message: "upstream authentication failed", Err: err}
}

// Upstream maps a provider failure. 4xx statuses pass through so SDK retry
// logic keeps working; 5xx and transport errors collapse to 502.
func Upstream(status int, message string, err error) *Error {
	if status < 400 || status >= 500 {
		status = http.StatusBadGateway
	}
	if message == "" {
		message = "upstream request failed"
	}
	return &Error{Status: status, Kind: KindUpstream, Message: message, Err: err}
}

// Translation marks an upstream payload the codec could not convert.
func Translation(message string, err error) *Error {
	return &Error{Status: http.StatusBadGateway, Kind: KindTranslation, Message: message, Err: err}
}

// Canceled marks a request terminated by client disconnect or deadline.
func Canceled(err error) *Error {
	return &Error{Status: 499, Kind: KindCanceled, Message: "request canceled", Err: err}
}

// From normalizes any error into an *Error. Context cancellations become
// KindCanceled; everything else defaults to an upstream failure.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Canceled(err)
	}
	return Upstream(http.StatusBadGateway, "upstream request failed", err)
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind == kind
	}
	return false
}
