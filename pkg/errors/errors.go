// Package errors provides structured error types for the asyfig pipeline.
//
// This package defines error codes and types that enable:
//   - Consistent error handling across the CLI and the render library
//   - Machine-readable error codes for programmatic handling
//   - User-friendly error messages
//   - Error wrapping with context preservation
//
// # Error Codes
//
// The codes mirror the pipeline's failure taxonomy:
//   - WORKSPACE: the scratch directory could not be created or removed
//   - TOOL_NOT_FOUND / TOOL_TIMEOUT: external-compiler system faults
//   - COMPILER_FAILURE / ARTIFACT_MISSING: expected render outcomes, folded
//     into the render result rather than raised as faults
//   - INVALID_*: input validation failures
//
// # Usage
//
//	err := errors.New(errors.ErrCodeInvalidFormat, "invalid format: %s", f)
//	if errors.Is(err, errors.ErrCodeInvalidFormat) {
//	    // Handle validation error
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeWorkspace, origErr, "remove %s", dir)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Input validation errors
	ErrCodeInvalidInput  Code = "INVALID_INPUT"
	ErrCodeInvalidFormat Code = "INVALID_FORMAT"

	// Workspace (scratch directory) lifecycle errors. Non-retryable.
	ErrCodeWorkspace Code = "WORKSPACE"

	// External compiler faults. These abort the request; a non-zero exit
	// from a runnable compiler is NOT a fault and never carries these codes.
	ErrCodeToolNotFound Code = "TOOL_NOT_FOUND"
	ErrCodeToolTimeout  Code = "TOOL_TIMEOUT"

	// Expected render outcomes, reported through the result payload.
	ErrCodeCompilerFailure Code = "COMPILER_FAILURE"
	ErrCodeArtifactMissing Code = "ARTIFACT_MISSING"

	// Internal errors
	ErrCodeInternal Code = "INTERNAL_ERROR"
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

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error, if available.
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
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// IsFault reports whether err is an infrastructure fault that aborts the
// request (workspace, tool lookup, or timeout errors), as opposed to an
// expected render outcome.
func IsFault(err error) bool {
	switch GetCode(err) {
	case ErrCodeWorkspace, ErrCodeToolNotFound, ErrCodeToolTimeout:
		return true
	}
	return false
}
