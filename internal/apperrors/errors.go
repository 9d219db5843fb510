// Package apperrors provides structured client errors classified by sentinel.
package apperrors

import (
	"errors"
	"fmt"
)

// Sentinel errors for classification via errors.Is().
var (
	ErrTransport       = errors.New("transport error")
	ErrDecode          = errors.New("decode error")
	ErrVersionMismatch = errors.New("version mismatch")
	ErrNotFound        = errors.New("not found")
	ErrServer          = errors.New("server error")
)

// Error provides a structured error with request context.
type Error struct {
	Sentinel   error  // Wrapped sentinel for errors.Is() classification
	Message    string // Human-readable message
	Endpoint   string // Request path that failed (e.g., "/jobs/j1")
	StatusCode int    // HTTP status, 0 when the request never completed
	Cause      error  // Underlying error
}

// Error returns the human-readable error message.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the sentinel error for errors.Is() classification.
func (e *Error) Unwrap() error {
	return e.Sentinel
}

// Transport creates an error for a request that failed before a response
// could be read (connection refused, timeout, interrupted body).
func Transport(endpoint string, cause error) error {
	return &Error{
		Sentinel: ErrTransport,
		Message:  fmt.Sprintf("request to %s failed: %v", endpoint, cause),
		Endpoint: endpoint,
		Cause:    cause,
	}
}

// Decode creates an error for a response body that could not be decoded
// into the expected shape.
func Decode(endpoint string, cause error) error {
	return &Error{
		Sentinel: ErrDecode,
		Message:  fmt.Sprintf("malformed response from %s: %v", endpoint, cause),
		Endpoint: endpoint,
		Cause:    cause,
	}
}

// VersionMismatch creates the error returned both when the gate blocks a
// call locally and when the server rejects one with a 409 mismatch body.
func VersionMismatch(remote, local string) error {
	return &Error{
		Sentinel: ErrVersionMismatch,
		Message:  fmt.Sprintf("client version %s is incompatible with server version %s", local, remote),
	}
}

// NotFound creates an error for a 404 on a specific resource.
func NotFound(endpoint string) error {
	return &Error{
		Sentinel:   ErrNotFound,
		Message:    fmt.Sprintf("%s not found", endpoint),
		Endpoint:   endpoint,
		StatusCode: 404,
	}
}

// Server creates an error for a non-2xx response that is not a recognized
// mismatch or not-found response.
func Server(endpoint string, status int, body string) error {
	msg := fmt.Sprintf("%s returned HTTP %d", endpoint, status)
	if body != "" {
		msg = fmt.Sprintf("%s: %s", msg, body)
	}
	return &Error{
		Sentinel:   ErrServer,
		Message:    msg,
		Endpoint:   endpoint,
		StatusCode: status,
	}
}
