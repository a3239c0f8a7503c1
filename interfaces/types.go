// Package interfaces defines the core interfaces and types for the data
// exchange registry. It provides the contract between components without
// implementation details.
package interfaces

import (
	"errors"
	"fmt"
)

// Identity names a caller (an account identifier). The registry treats it
// as an opaque string.
type Identity string

// String returns the identity as a string.
func (id Identity) String() string {
	return string(id)
}

// RequestID is the caller-chosen key of a request/response pair.
type RequestID = string

// Request describes a resource a provider should fetch.
type Request struct {
	// RequestID mirrors the key the request is stored under.
	RequestID RequestID `json:"request_id"`

	// JSONPath is an extraction path into the fetched resource.
	JSONPath string `json:"json_path"`

	// URI is the resource to fetch.
	URI string `json:"uri"`

	// Period is an optional refresh interval in seconds. The registry stores
	// it and never acts on it.
	Period *uint64 `json:"period,omitempty"`
}

// Response is the latest result submitted by a provider for a request.
type Response struct {
	Result string `json:"result"`

	// Timestamp is the host-supplied time of submission in Unix nanoseconds.
	Timestamp uint64 `json:"timestamp"`
}

// Env carries the values the hosting runtime supplies for a single call.
// Caller is trusted and never taken from the request payload.
type Env struct {
	Caller    Identity
	Timestamp uint64
}

// Membership is a read-only view of the registry's role assignments.
type Membership struct {
	Owner      Identity   `json:"owner"`
	Requesters []Identity `json:"requesters"`
	Providers  []Identity `json:"providers"`
}

// NewPeriod returns a pointer to seconds, for use in Request literals.
func NewPeriod(seconds uint64) *uint64 {
	return &seconds
}

var (
	// ErrAlreadyInitialized is returned when construction is attempted on a
	// registry that already has state.
	ErrAlreadyInitialized = errors.New("already initialized")

	// ErrNotInitialized is returned by every operation invoked before the
	// registry has been constructed.
	ErrNotInitialized = errors.New("registry is not initialized")

	// ErrUnauthorized is returned when the caller lacks the role required
	// for a mutation. The concrete error carries a human-readable reason.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidRequestID is returned for empty request ids.
	ErrInvalidRequestID = errors.New("invalid request id")
)

// UnauthorizedError wraps ErrUnauthorized with the reason a call was rejected.
type UnauthorizedError struct {
	Caller Identity
	Reason string
}

// Error returns the rejection reason.
func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("%s: %s", ErrUnauthorized.Error(), e.Reason)
}

// Unwrap allows errors.Is(err, ErrUnauthorized).
func (e *UnauthorizedError) Unwrap() error {
	return ErrUnauthorized
}
