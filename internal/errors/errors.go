// Package errors defines structured error kinds shared by the store, the
// delivery channels and the admin API.
package errors

import (
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode defines specific error kinds.
type ErrorCode string

const (
	// ErrMissingKeyCode is returned when deleting a key that is not present.
	ErrMissingKeyCode ErrorCode = "MISSING_KEY"
	// ErrKeyNotFoundCode is returned by strict lookups of an absent key.
	ErrKeyNotFoundCode ErrorCode = "KEY_NOT_FOUND"
	// ErrNotAnObjectCode is returned when a path walks through a non-object value.
	ErrNotAnObjectCode ErrorCode = "NOT_AN_OBJECT"
	// ErrInvalidValueCode is returned when a value cannot be stored as JSON.
	ErrInvalidValueCode ErrorCode = "INVALID_VALUE"

	// ErrStorageCode is returned when the backing file cannot be written.
	ErrStorageCode ErrorCode = "STORAGE_ERROR"

	// ErrDestinationUnavailableCode is returned when a message cannot be
	// delivered to a configured destination.
	ErrDestinationUnavailableCode ErrorCode = "DESTINATION_UNAVAILABLE"
	// ErrRateLimitedCode is returned when a manual operation is throttled.
	ErrRateLimitedCode ErrorCode = "RATE_LIMITED"

	// ErrValidationFailedCode is returned when input data fails validation
	ErrValidationFailedCode ErrorCode = "VALIDATION_FAILED"
	// ErrUnauthorizedCode is returned when authentication is missing or invalid
	ErrUnauthorizedCode ErrorCode = "UNAUTHORIZED"
	// ErrInternalCode is returned when an unexpected error occurs
	ErrInternalCode ErrorCode = "INTERNAL_ERROR"
)

// Sentinels for errors.Is. They match any *Error carrying the same code.
var (
	ErrMissingKey             = &Error{code: ErrMissingKeyCode, message: "missing key"}
	ErrKeyNotFound            = &Error{code: ErrKeyNotFoundCode, message: "key not found"}
	ErrNotAnObject            = &Error{code: ErrNotAnObjectCode, message: "not an object"}
	ErrInvalidValue           = &Error{code: ErrInvalidValueCode, message: "invalid value"}
	ErrStorage                = &Error{code: ErrStorageCode, message: "storage error"}
	ErrDestinationUnavailable = &Error{code: ErrDestinationUnavailableCode, message: "destination unavailable"}
	ErrRateLimited            = &Error{code: ErrRateLimitedCode, message: "rate limited"}
)

// ErrorWithStatus is an error that includes an HTTP status code and error code.
type ErrorWithStatus interface {
	Error() string
	StatusCode() int
	Code() ErrorCode
	Details() map[string]any
}

// Error is a concrete error type with a code, message and optional details.
type Error struct {
	code       ErrorCode
	message    string
	details    map[string]any
	wrappedErr error
}

// New creates a new Error with the given code and message.
func New(code ErrorCode, message string) *Error {
	return &Error{
		code:    code,
		message: message,
		details: make(map[string]any),
	}
}

// WithDetail adds a single detail to the error.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.details == nil {
		e.details = make(map[string]any)
	}
	e.details[key] = value
	return e
}

// Wrap wraps an underlying error.
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

// StatusCode returns the HTTP status code matching the error code.
func (e *Error) StatusCode() int {
	switch e.code {
	case ErrMissingKeyCode, ErrKeyNotFoundCode:
		return http.StatusNotFound
	case ErrNotAnObjectCode:
		return http.StatusConflict
	case ErrInvalidValueCode, ErrValidationFailedCode:
		return http.StatusBadRequest
	case ErrDestinationUnavailableCode:
		return http.StatusBadGateway
	case ErrRateLimitedCode:
		return http.StatusTooManyRequests
	case ErrUnauthorizedCode:
		return http.StatusUnauthorized
	case ErrStorageCode, ErrInternalCode:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// Code returns the error code.
func (e *Error) Code() ErrorCode {
	return e.code
}

// Details returns additional error details.
func (e *Error) Details() map[string]any {
	return e.details
}

// Unwrap returns the wrapped error if any.
func (e *Error) Unwrap() error {
	return e.wrappedErr
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.code == e.code
}

// Predefined error constructors for common cases

// MissingKey creates an error for deleting an absent key.
func MissingKey(key string) *Error {
	return New(ErrMissingKeyCode, fmt.Sprintf("missing key %q", key)).WithDetail("key", key)
}

// KeyNotFound creates an error for a strict lookup of an absent key.
func KeyNotFound(key string) *Error {
	return New(ErrKeyNotFoundCode, fmt.Sprintf("key %q not found", key)).WithDetail("key", key)
}

// NotAnObject creates an error for a path segment that does not hold an object.
func NotAnObject(path []string) *Error {
	return New(ErrNotAnObjectCode, fmt.Sprintf("value at %q is not an object", joinPath(path))).WithDetail("path", joinPath(path))
}

// InvalidValue creates an error for a value that cannot be represented as JSON.
func InvalidValue(err error) *Error {
	return New(ErrInvalidValueCode, "value is not representable as JSON").Wrap(err)
}

// Storage creates an error for a failed write of the backing file.
func Storage(op string, err error) *Error {
	return New(ErrStorageCode, fmt.Sprintf("failed to %s", op)).Wrap(err)
}

// DestinationUnavailable creates an error for a destination that cannot
// receive messages.
func DestinationUnavailable(id, reason string) *Error {
	return New(ErrDestinationUnavailableCode, fmt.Sprintf("unable to send message to destination %s: %s", id, reason)).WithDetail("destination", id)
}

// RateLimited creates an error for a throttled operation.
func RateLimited(op string) *Error {
	return New(ErrRateLimitedCode, fmt.Sprintf("%s is rate limited, try again later", op))
}

// BadRequest creates a validation error.
func BadRequest(message string) *Error {
	return New(ErrValidationFailedCode, message)
}

// Unauthorized returns an authentication error.
func Unauthorized() *Error {
	return New(ErrUnauthorizedCode, "Unauthorized")
}

// Internal returns an unexpected error.
func Internal(message string) *Error {
	return New(ErrInternalCode, message)
}

// InternalWithError creates an unexpected error wrapping an underlying error.
func InternalWithError(message string, err error) *Error {
	return Internal(message).Wrap(err)
}

func joinPath(path []string) string {
	return strings.Join(path, ".")
}
