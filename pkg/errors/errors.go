package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// Storage errors
	ErrorTypeNotFound           ErrorType = "NOT_FOUND"
	ErrorTypeAlreadyExists      ErrorType = "ALREADY_EXISTS"
	ErrorTypeInvalidKey         ErrorType = "INVALID_KEY"
	ErrorTypeStorageUnavailable ErrorType = "STORAGE_UNAVAILABLE"
	ErrorTypeCounterGuardFailed ErrorType = "COUNTER_GUARD_FAILED"

	// Application errors
	ErrorTypeValidation ErrorType = "VALIDATION"
	ErrorTypeInternal   ErrorType = "INTERNAL"
)

// AppError represents an application-specific error
type AppError struct {
	Type    ErrorType              `json:"type"`
	Message string                 `json:"message"`
	Code    string                 `json:"code,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Retryable reports whether the caller may retry the failed operation.
// Only transport failures qualify; conflicts and guard failures never do.
func (e *AppError) Retryable() bool {
	return e.Type == ErrorTypeStorageUnavailable
}

// WithCode adds an error code
func (e *AppError) WithCode(code string) *AppError {
	e.Code = code
	return e
}

// WithDetails adds error details
func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	e.Details = details
	return e
}

// WithDetail adds a single detail entry
func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithCause wraps an underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Cause = err
	return e
}

// Constructor functions

// NewNotFoundError creates a not found error for a primary key pair
func NewNotFoundError(resource, pk, sk string) *AppError {
	return &AppError{
		Type:    ErrorTypeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Details: map[string]interface{}{"pk": pk, "sk": sk},
	}
}

// NewAlreadyExistsError creates a duplicate-key error
func NewAlreadyExistsError(pk, sk string) *AppError {
	return &AppError{
		Type:    ErrorTypeAlreadyExists,
		Message: fmt.Sprintf("record %s/%s already exists", pk, sk),
		Details: map[string]interface{}{"pk": pk, "sk": sk},
	}
}

// NewInvalidKeyError creates an error for malformed key derivation input
func NewInvalidKeyError(entityType, field string) *AppError {
	return &AppError{
		Type:    ErrorTypeInvalidKey,
		Message: fmt.Sprintf("%s key requires %s", entityType, field),
		Details: map[string]interface{}{"entityType": entityType, "field": field},
	}
}

// NewStorageUnavailableError creates a transport failure error
func NewStorageUnavailableError(operation string, attempts int, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeStorageUnavailable,
		Message: fmt.Sprintf("storage operation '%s' failed after %d attempts", operation, attempts),
		Cause:   err,
		Details: map[string]interface{}{"operation": operation, "attempts": attempts},
	}
}

// NewCounterGuardFailedError creates an error for a rejected decrement
func NewCounterGuardFailedError(counter string) *AppError {
	return &AppError{
		Type:    ErrorTypeCounterGuardFailed,
		Message: fmt.Sprintf("counter %s cannot be decremented below zero", counter),
		Details: map[string]interface{}{"counter": counter},
	}
}

// NewValidationError creates a validation error
func NewValidationError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeValidation,
		Message: message,
	}
}

// NewInternalError creates an internal error
func NewInternalError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeInternal,
		Message: message,
	}
}

// Helper functions

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// GetAppError extracts AppError from an error chain
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// IsType checks if an error is of a specific type
func IsType(err error, errType ErrorType) bool {
	appErr := GetAppError(err)
	return appErr != nil && appErr.Type == errType
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return IsType(err, ErrorTypeNotFound)
}

// IsAlreadyExists checks if an error is a duplicate-key error
func IsAlreadyExists(err error) bool {
	return IsType(err, ErrorTypeAlreadyExists)
}

// IsInvalidKey checks if an error is a key derivation error
func IsInvalidKey(err error) bool {
	return IsType(err, ErrorTypeInvalidKey)
}

// IsStorageUnavailable checks if an error is a transport failure
func IsStorageUnavailable(err error) bool {
	return IsType(err, ErrorTypeStorageUnavailable)
}

// IsCounterGuardFailed checks if an error is a rejected decrement
func IsCounterGuardFailed(err error) bool {
	return IsType(err, ErrorTypeCounterGuardFailed)
}

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool {
	return IsType(err, ErrorTypeValidation)
}

// Wrap wraps an error with additional context while keeping its type
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	if IsAppError(err) {
		return fmt.Errorf("%s: %w", message, err)
	}
	return NewInternalError(message).WithCause(err)
}

// Wrapf wraps an error with formatted message
func Wrapf(err error, format string, args ...interface{}) error {
	return Wrap(err, fmt.Sprintf(format, args...))
}
