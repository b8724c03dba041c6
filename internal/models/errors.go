package models

import (
	"fmt"
	"net/http"
)

// ErrorCode classifies failures surfaced to callers.
type ErrorCode string

const (
	// ErrorCodeValidationFailed is returned when input data fails validation.
	ErrorCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	// ErrorCodeInvalidFormat is returned when an import archive is malformed.
	ErrorCodeInvalidFormat ErrorCode = "INVALID_FORMAT"
	// ErrorCodeNotFound is returned when a node does not resolve.
	ErrorCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrorCodeInvalidParent is returned when a child is inserted under a leaf
	// or a missing parent.
	ErrorCodeInvalidParent ErrorCode = "INVALID_PARENT"
	// ErrorCodeConflict is returned when a node id already exists in the tree.
	ErrorCodeConflict ErrorCode = "CONFLICT"
	// ErrorCodeStorageError is returned when a storage operation fails in a
	// way that cannot be absorbed by the fallback tiers.
	ErrorCodeStorageError ErrorCode = "STORAGE_ERROR"
	// ErrorCodeInternal is returned when an unexpected error occurs.
	ErrorCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// Error is the structured error type used across the tree and storage layers.
type Error struct {
	statusCode int
	code       ErrorCode
	message    string
	wrappedErr error
}

// NewError creates an Error with the given status code, code and message.
func NewError(statusCode int, code ErrorCode, message string) *Error {
	return &Error{statusCode: statusCode, code: code, message: message}
}

// Wrap attaches an underlying cause.
func (e *Error) Wrap(err error) *Error {
	e.wrappedErr = err
	return e
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.wrappedErr != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrappedErr)
	}
	return e.message
}

// StatusCode returns the HTTP status code the error maps to.
func (e *Error) StatusCode() int {
	return e.statusCode
}

// Code returns the error code.
func (e *Error) Code() ErrorCode {
	return e.code
}

// Unwrap returns the wrapped cause if any.
func (e *Error) Unwrap() error {
	return e.wrappedErr
}

// NotFound creates a 404 error for a node that does not resolve.
func NotFound(resource string) *Error {
	return NewError(http.StatusNotFound, ErrorCodeNotFound, fmt.Sprintf("%s not found", resource))
}

// InvalidParent creates a 400 error for an insertion precondition violation.
func InvalidParent(message string) *Error {
	return NewError(http.StatusBadRequest, ErrorCodeInvalidParent, message)
}

// InvalidFormat creates a 400 error for a malformed import archive.
func InvalidFormat(message string) *Error {
	return NewError(http.StatusBadRequest, ErrorCodeInvalidFormat, message)
}

// BadRequest creates a 400 validation error.
func BadRequest(message string) *Error {
	return NewError(http.StatusBadRequest, ErrorCodeValidationFailed, message)
}

// Conflict creates a 409 error for a duplicate node id.
func Conflict(message string) *Error {
	return NewError(http.StatusConflict, ErrorCodeConflict, message)
}

// Internal creates a 500 error.
func Internal(message string) *Error {
	return NewError(http.StatusInternalServerError, ErrorCodeInternal, message)
}

// InternalWithError creates a 500 error wrapping an underlying cause.
func InternalWithError(message string, err error) *Error {
	return Internal(message).Wrap(err)
}
