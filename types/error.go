package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the service.
type ErrorCode string

// Core error codes
const (
	ErrValidationFailed     ErrorCode = "VALIDATION_FAILED"
	ErrDuplicateKey         ErrorCode = "DUPLICATE_KEY"
	ErrNotFound             ErrorCode = "NOT_FOUND"
	ErrSchemaError          ErrorCode = "SCHEMA_ERROR"
	ErrStoreUnavailable     ErrorCode = "STORE_UNAVAILABLE"
	ErrNotificationDelivery ErrorCode = "NOTIFICATION_DELIVERY_FAILED"
)

// Transport error codes
const (
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST"
	ErrUnauthorized   ErrorCode = "UNAUTHORIZED"
	ErrRateLimited    ErrorCode = "RATE_LIMITED"
	ErrInternalError  ErrorCode = "INTERNAL_ERROR"
)

// FieldError describes one failing leaf of a validated value. Path is the
// dotted path from the value root to the failing element.
type FieldError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode    `json:"code"`
	Message    string       `json:"message"`
	HTTPStatus int          `json:"http_status,omitempty"`
	Retryable  bool         `json:"retryable"`
	Fields     []FieldError `json:"fields,omitempty"`
	Cause      error        `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithFields attaches per-field validation details.
func (e *Error) WithFields(fields ...FieldError) *Error {
	e.Fields = append(e.Fields, fields...)
	return e
}

// NewValidationFailed creates a VALIDATION_FAILED error carrying per-field
// messages.
func NewValidationFailed(fields []FieldError) *Error {
	return &Error{
		Code:    ErrValidationFailed,
		Message: "value does not satisfy the validation schema",
		Fields:  fields,
	}
}

// NewDuplicateKey creates a DUPLICATE_KEY error for key.
func NewDuplicateKey(key string) *Error {
	return NewError(ErrDuplicateKey, fmt.Sprintf("configuration key %q already exists", key))
}

// NewNotFound creates a NOT_FOUND error for key.
func NewNotFound(key string) *Error {
	return NewError(ErrNotFound, fmt.Sprintf("no active configuration entry for key %q", key))
}

// NewSchemaError creates a SCHEMA_ERROR describing a malformed validation
// schema.
func NewSchemaError(message string) *Error {
	return NewError(ErrSchemaError, message)
}

// NewStoreUnavailable creates a retryable STORE_UNAVAILABLE error wrapping
// the underlying I/O failure.
func NewStoreUnavailable(cause error) *Error {
	return NewError(ErrStoreUnavailable, "configuration store unavailable").
		WithCause(cause).
		WithRetryable(true)
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error, unwrapping as needed.
// Returns an empty code for non-structured errors.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given error code.
func IsCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}
