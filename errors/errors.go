// Package errors provides error handling for sift.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - User-facing hints and details
//
// Usage:
//
//	// Create new error
//	err := errors.New("something went wrong")
//
//	// Wrap with context
//	if err := doSomething(); err != nil {
//	    return errors.Wrap(err, "failed to do something")
//	}
//
//	// Check errors
//	if errors.Is(err, errors.ErrNotFound) {
//	    // handle not found
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// User-facing messages and details
var (
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf
)

// Error inspection
var (
	Is     = crdb.Is
	IsAny  = crdb.IsAny
	As     = crdb.As
	Unwrap = crdb.Unwrap
)

// Sentinel errors for the sift error taxonomy.
// Use these with errors.Is() for type-safe error checking.
// Wrap these with errors.Wrap() to add context while preserving the type.
var (
	// ErrNotFound indicates a referenced Subset, Method, Document, or Dataset is absent
	ErrNotFound = New("not found")

	// ErrInvalidParent indicates a node references a parent outside its dataset
	ErrInvalidParent = New("invalid parent")

	// ErrInvariantViolation indicates a graph-structural violation,
	// e.g. deleting the root subset
	ErrInvariantViolation = New("invariant violation")

	// ErrTransport indicates a network failure talking to the analysis engine
	ErrTransport = New("transport failure")

	// ErrJobFailed indicates the engine reported a computation failure
	ErrJobFailed = New("job failed")

	// ErrTimeout indicates polling exceeded its configured bound;
	// the engine-side job may still be running (no cancel endpoint exists)
	ErrTimeout = New("operation timed out")

	// ErrConflict indicates a mutation carried a stale node version
	ErrConflict = New("resource conflict")

	// ErrUpdateInFlight indicates a label was submitted while the previous
	// statistics update had not yet resolved
	ErrUpdateInFlight = New("update in flight")

	// ErrSessionClosed indicates the active-learning session already finished
	ErrSessionClosed = New("session closed")

	// ErrInvalidRequest indicates the request was malformed or invalid
	ErrInvalidRequest = New("invalid request")
)

// IsNotFound checks if an error is or wraps ErrNotFound
func IsNotFound(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsConflict checks if an error is or wraps ErrConflict
func IsConflict(err error) bool {
	return err != nil && Is(err, ErrConflict)
}

// IsTransport checks if an error is or wraps ErrTransport
func IsTransport(err error) bool {
	return err != nil && Is(err, ErrTransport)
}

// IsInvalidRequest checks if an error is or wraps ErrInvalidRequest
func IsInvalidRequest(err error) bool {
	return err != nil && Is(err, ErrInvalidRequest)
}

// NewNotFound creates a not-found error with a formatted message
func NewNotFound(format string, args ...interface{}) error {
	return Wrap(ErrNotFound, Newf(format, args...).Error())
}

// NewInvalidRequest creates an invalid-request error with a formatted message
func NewInvalidRequest(format string, args ...interface{}) error {
	return Wrap(ErrInvalidRequest, Newf(format, args...).Error())
}
