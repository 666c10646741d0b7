package apperr

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ValidationError reports a malformed or unsafe request. Requests failing
// validation are never dispatched to a backend.
type ValidationError struct {
	Problems []string
	Cause    error
}

func NewValidationError(problems ...string) *ValidationError {
	return &ValidationError{Problems: problems}
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 0 && e.Cause != nil {
		return "validation failed: " + e.Cause.Error()
	}
	return "validation failed: " + strings.Join(e.Problems, "; ")
}

func (e *ValidationError) Unwrap() error {
	return e.Cause
}

// NotFoundError reports an unknown backend or capability.
type NotFoundError struct {
	Kind string
	Name string
}

func NewNotFoundError(kind, name string) *NotFoundError {
	return &NotFoundError{Kind: kind, Name: name}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.Name)
}

// CircuitOpenError is returned instead of invoking an operation while the
// backend's breaker is open.
type CircuitOpenError struct {
	Name       string
	RetryAfter time.Duration
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit open for %s, retry after %s", e.Name, e.RetryAfter.Round(time.Millisecond))
}

// RPCError carries the error object of a JSON-RPC response.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// TransportError reports an HTTP or network failure. StatusCode is zero when
// no response was received.
type TransportError struct {
	Endpoint   string
	StatusCode int
	Reason     string
	Cause      error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transport error from %s: %d %s", e.Endpoint, e.StatusCode, e.Reason)
	}
	if e.Cause != nil {
		return fmt.Sprintf("transport error from %s: %v", e.Endpoint, e.Cause)
	}
	return fmt.Sprintf("transport error from %s: %s", e.Endpoint, e.Reason)
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// ProtocolError reports a response that could not be interpreted as a
// JSON-RPC envelope carrying a result.
type ProtocolError struct {
	Endpoint string
	Reason   string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error from %s: %s", e.Endpoint, e.Reason)
}
