// Package errs defines the user-visible failure kinds shared by every
// subsystem.
//
// Each operation fails with exactly one kind. Callers classify with
// errors.Is against the sentinels below; the concrete message is carried by
// the wrapping error. ErrInternal is reserved for defects and unreachable
// collaborators and is never produced by input validation.
package errs

import (
	"errors"
	"fmt"
)

// ErrAuthentication is returned when no valid session exists or credentials
// are wrong.
var ErrAuthentication = errors.New("authentication failed")

// ErrAccessDenied is returned when an authenticated user lacks the required
// capability.
var ErrAccessDenied = errors.New("access denied")

// ErrNotFound is returned when an addressed entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrValidation is returned when input or state violates an invariant.
var ErrValidation = errors.New("validation failed")

// ErrImageProcessing is returned when a derived image is not ready yet.
var ErrImageProcessing = errors.New("image is still processing")

// ErrInternal covers everything else: bugs, unreachable providers.
var ErrInternal = errors.New("internal error")

// NotFound wraps ErrNotFound with a formatted message.
func NotFound(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, prepend(ErrNotFound, args)...)
}

// Validation wraps ErrValidation with a formatted message.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, prepend(ErrValidation, args)...)
}

// Authentication wraps ErrAuthentication with a formatted message.
func Authentication(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, prepend(ErrAuthentication, args)...)
}

// AccessDenied wraps ErrAccessDenied with a formatted message.
func AccessDenied(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, prepend(ErrAccessDenied, args)...)
}

// Internal wraps ErrInternal with a formatted message.
func Internal(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, prepend(ErrInternal, args)...)
}

func prepend(err error, args []any) []any {
	out := make([]any, 0, len(args)+1)
	out = append(out, err)
	return append(out, args...)
}
