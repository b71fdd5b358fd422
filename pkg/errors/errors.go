// Package errors provides structured error types for queryview.
//
// Errors carry a machine-readable [Code] so that callers can decide how a
// failure propagates:
//   - SHAPE_MISMATCH and INVALID_INPUT are user-script mistakes and are
//     returned to the script unchanged
//   - INVALID_REGISTRATION is logged and skipped by registries
//   - RENDER_FAILURE is converted into an inline error fragment
//   - RESTORE_FAILURE degrades a single state key to its initial value
//
// # Usage
//
//	err := errors.New(errors.ErrCodeShapeMismatch, "column %q has %d values, want %d", name, got, want)
//	if errors.Is(err, errors.ErrCodeShapeMismatch) {
//	    // user script error
//	}
//
//	err = errors.Wrap(errors.ErrCodeRenderFailure, cause, "view %q", name)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// User-script errors
	ErrCodeShapeMismatch Code = "SHAPE_MISMATCH"
	ErrCodeInvalidInput  Code = "INVALID_INPUT"

	// Registry and rendering errors
	ErrCodeInvalidRegistration Code = "INVALID_REGISTRATION"
	ErrCodeRenderFailure       Code = "RENDER_FAILURE"
	ErrCodeViewNotFound        Code = "VIEW_NOT_FOUND"

	// State errors
	ErrCodeRestoreFailure Code = "RESTORE_FAILURE"
	ErrCodeFlushFailure   Code = "FLUSH_FAILURE"

	// Lifecycle errors
	ErrCodeDisposed Code = "DISPOSED"

	// Resource and transport errors
	ErrCodeNotFound Code = "NOT_FOUND"
	ErrCodeNetwork  Code = "NETWORK_ERROR"

	// Internal errors
	ErrCodeInternal    Code = "INTERNAL_ERROR"
	ErrCodeUnsupported Code = "UNSUPPORTED"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// As is [errors.As] from the standard library, re-exported so callers need
// only one errors import.
func As(err error, target any) bool { return errors.As(err, target) }

// Join is [errors.Join] from the standard library.
func Join(errs ...error) error { return errors.Join(errs...) }

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
func Is(err error, code Code) bool {
	var e *Error
	for err != nil {
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Cause
	}
	return false
}

// GetCode extracts the outermost error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Cause != nil {
			return e.Message + ": " + UserMessage(e.Cause)
		}
		return e.Message
	}
	return err.Error()
}

// ShapeMismatch reports a positional argument whose length disagrees with
// the collection it is applied to.
func ShapeMismatch(what string, got, want int) *Error {
	return New(ErrCodeShapeMismatch, "%s has length %d, collection has length %d", what, got, want)
}
