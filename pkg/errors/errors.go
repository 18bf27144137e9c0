// Package errors provides structured error types for sweeptower.
//
// This package defines error codes and types that enable:
//   - Consistent error handling across the library and the CLI
//   - Machine-readable error codes for programmatic handling
//   - A single notion of which failures are fatal to a sweep
//   - Error wrapping with context preservation
//
// # Error Codes
//
// Codes fall into two groups. Fatal codes describe a mesh, direction or
// configuration inconsistency that no amount of polling can repair:
//   - INVALID_CONFIG, EMPTY_ANGLE_SET, CELL_OUT_OF_RANGE
//   - FACE_MATCH_FAILED, CYCLIC_GRAPH, LOCKBOX_MISS
//
// Everything else (COMMUNICATION, INTERNAL_ERROR, UNSUPPORTED) is reported
// to the caller, who decides whether to keep going.
//
// # Usage
//
//	err := errors.New(errors.ErrCodeCellOutOfRange, "cell %d out of range [0,%d)", i, n)
//	if errors.IsFatal(err) {
//	    // print diagnostic and terminate
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeCommunication, origErr, "all-gather dependencies")
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Fatal configuration errors
	ErrCodeInvalidConfig   Code = "INVALID_CONFIG"
	ErrCodeEmptyAngleSet   Code = "EMPTY_ANGLE_SET"
	ErrCodeCellOutOfRange  Code = "CELL_OUT_OF_RANGE"
	ErrCodeFaceMatchFailed Code = "FACE_MATCH_FAILED"
	ErrCodeCyclicGraph     Code = "CYCLIC_GRAPH"
	ErrCodeLockboxMiss     Code = "LOCKBOX_MISS"

	// Transport errors
	ErrCodeCommunication Code = "COMMUNICATION"

	// Internal errors
	ErrCodeInternal    Code = "INTERNAL_ERROR"
	ErrCodeUnsupported Code = "UNSUPPORTED"
)

var fatalCodes = map[Code]bool{
	ErrCodeInvalidConfig:   true,
	ErrCodeEmptyAngleSet:   true,
	ErrCodeCellOutOfRange:  true,
	ErrCodeFaceMatchFailed: true,
	ErrCodeCyclicGraph:     true,
	ErrCodeLockboxMiss:     true,
}

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

// IsFatal reports whether err carries one of the fatal configuration codes.
// Fatal errors mean the mesh, the direction or the configuration is
// inconsistent; the process is expected to print a diagnostic and exit.
func IsFatal(err error) bool {
	return fatalCodes[GetCode(err)]
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
