// Package errors provides error handling for hspbot.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - PII-safe error formatting
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
//	if errors.Is(err, errors.ErrDuplicateJob) {
//	    // handle duplicate
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
	Is            = crdb.Is
	IsAny         = crdb.IsAny
	As            = crdb.As
	Unwrap        = crdb.Unwrap
	UnwrapAll     = crdb.UnwrapAll
	GetAllHints   = crdb.GetAllHints
	GetAllDetails = crdb.GetAllDetails
)

// Sentinel errors for the booking race subsystem.
// Use these with errors.Is() for type-safe error checking.
// Wrap these with errors.Wrap() to add context while preserving the type.
var (
	// ErrNotFound indicates the requested job or resource does not exist
	ErrNotFound = New("not found")

	// ErrDuplicateJob indicates a pending job already exists for the booking
	ErrDuplicateJob = New("duplicate job")

	// ErrWindowExpired indicates the polling window has already closed
	ErrWindowExpired = New("booking window expired")

	// ErrAuth indicates no usable credential is available (missing, undecodable,
	// or the refresh exchange failed)
	ErrAuth = New("authentication failed")

	// ErrNoCredential indicates no token has been imported yet
	ErrNoCredential = New("no credential stored")

	// ErrRateLimited indicates the upstream signalled throttling (HTTP 429)
	ErrRateLimited = New("rate limited")

	// ErrAlreadyRegistered indicates the member already holds this booking (HTTP 403)
	ErrAlreadyRegistered = New("already registered")

	// ErrInvalidRequest indicates the request was malformed or invalid
	ErrInvalidRequest = New("invalid request")
)

// IsNotFoundError checks if an error is or wraps ErrNotFound
func IsNotFoundError(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsAuthError checks if an error is or wraps ErrAuth or ErrNoCredential
func IsAuthError(err error) bool {
	return err != nil && IsAny(err, ErrAuth, ErrNoCredential)
}

// IsDuplicateJobError checks if an error is or wraps ErrDuplicateJob
func IsDuplicateJobError(err error) bool {
	return err != nil && Is(err, ErrDuplicateJob)
}

// IsWindowExpiredError checks if an error is or wraps ErrWindowExpired
func IsWindowExpiredError(err error) bool {
	return err != nil && Is(err, ErrWindowExpired)
}

// NewNotFoundError creates a not-found error with a formatted message
func NewNotFoundError(format string, args ...interface{}) error {
	return Wrap(ErrNotFound, Newf(format, args...).Error())
}

// NewInvalidRequestError creates an invalid-request error with a formatted message
func NewInvalidRequestError(format string, args ...interface{}) error {
	return Wrap(ErrInvalidRequest, Newf(format, args...).Error())
}
