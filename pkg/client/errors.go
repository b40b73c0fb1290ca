package client

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")
)

// ErrorClass represents a classification of request failures.
type ErrorClass string

const (
	// ErrorClassHTTP represents non-2xx responses.
	ErrorClassHTTP ErrorClass = "http"

	// ErrorClassConnection represents dial and transport failures.
	ErrorClassConnection ErrorClass = "connection"

	// ErrorClassTimeout represents client timeouts and exceeded deadlines.
	ErrorClassTimeout ErrorClass = "timeout"

	// ErrorClassGeneric represents everything else (body read, JSON decode).
	ErrorClassGeneric ErrorClass = "generic"
)

// HTTPStatusError is returned for a response outside the 2xx range.
type HTTPStatusError struct {
	StatusCode int
	Status     string
	Body       string
}

// Error implements the error interface.
func (e *HTTPStatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("http status %d: %s: %s", e.StatusCode, e.Status, e.Body)
	}
	return fmt.Sprintf("http status %d: %s", e.StatusCode, e.Status)
}

// TransportError wraps a failure that happened before a status code was
// available, or while reading and decoding the body.
type TransportError struct {
	Class ErrorClass
	Err   error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("%s error: %v", e.Class, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// classify maps an attempt error onto an ErrorClass.
func classify(err error) ErrorClass {
	if err == nil {
		return ""
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return ErrorClassHTTP
	}

	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return transportErr.Class
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorClassTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorClassTimeout
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrorClassConnection
	}

	return ErrorClassGeneric
}

// classifyTransport classifies an error returned by http.Client.Do.
// Anything that is not a timeout is a connection failure.
func classifyTransport(err error) ErrorClass {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorClassTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorClassTimeout
	}
	return ErrorClassConnection
}
