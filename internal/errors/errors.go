// Package errors defines the calculation error taxonomy.
//
// Three kinds of failure flow out of a calculation: validation errors
// (caller sent bad input), break errors (an expected business-rule
// resolution miss that yields a priceless response), and fatal errors
// (an invariant violation that aborts the calculation). A fourth kind,
// the masked error, wraps a failure that crossed the remote-dispatch
// boundary and must not leak internal detail to the caller.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError reports missing or malformed required inputs.
// Equivalent to a bad-request outcome at the API boundary.
type ValidationError struct {
	// Missing lists the required parameter names that were absent or blank.
	Missing []string

	// Message is the diagnostic text when the failure is not a
	// missing-field failure (for example a value of the wrong type).
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if len(e.Missing) > 0 {
		return "missing required inputs: " + strings.Join(e.Missing, ", ")
	}
	return e.Message
}

// MissingInputs creates a ValidationError naming the absent required fields.
func MissingInputs(names []string) *ValidationError {
	return &ValidationError{Missing: names}
}

// Invalidf creates a ValidationError with a formatted message.
func Invalidf(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// AsValidation extracts a ValidationError from an error chain.
func AsValidation(err error) (*ValidationError, bool) {
	var v *ValidationError
	if errors.As(err, &v) {
		return v, true
	}
	return nil, false
}

// BreakError is an expected, recoverable failure to resolve a pricing
// input. It halts the pipeline and yields a response carrying an
// error-message field instead of a price.
type BreakError struct {
	Message string
}

// Error implements the error interface.
func (e *BreakError) Error() string { return e.Message }

// Breakf creates a BreakError with a formatted message.
func Breakf(format string, args ...any) *BreakError {
	return &BreakError{Message: fmt.Sprintf(format, args...)}
}

// AsBreak extracts a BreakError from an error chain.
func AsBreak(err error) (*BreakError, bool) {
	var brk *BreakError
	if errors.As(err, &brk) {
		return brk, true
	}
	return nil, false
}

// FatalError is an invariant violation: an unresolved mandatory
// reference, a division by a verified-zero divisor, a nil where a
// value was required. It aborts the calculation and propagates.
type FatalError struct {
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *FatalError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *FatalError) Unwrap() error { return e.Cause }

// Fatalf creates a FatalError with a formatted message.
func Fatalf(format string, args ...any) *FatalError {
	return &FatalError{Message: fmt.Sprintf(format, args...)}
}

// FatalWrap wraps a cause as a FatalError.
func FatalWrap(message string, cause error) *FatalError {
	return &FatalError{Message: message, Cause: cause}
}

// IsFatal reports whether the error chain contains a FatalError.
func IsFatal(err error) bool {
	var f *FatalError
	return errors.As(err, &f)
}

// MaskedError carries a caller-safe description of a failure that
// crossed the remote-dispatch boundary, alongside the internal
// diagnostic kept for logs only.
type MaskedError struct {
	// Internal is the full diagnostic. Never serialized to callers.
	Internal string

	// UserMessage is the caller-safe description.
	UserMessage string
}

// Error returns the internal diagnostic.
func (e *MaskedError) Error() string { return e.Internal }

// Masked creates a MaskedError.
func Masked(internal, userMessage string) *MaskedError {
	return &MaskedError{Internal: internal, UserMessage: userMessage}
}

// AsMasked extracts a MaskedError from an error chain.
func AsMasked(err error) (*MaskedError, bool) {
	var m *MaskedError
	if errors.As(err, &m) {
		return m, true
	}
	return nil, false
}
