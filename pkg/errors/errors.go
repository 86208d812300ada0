// Package errors defines the common error types of the graph store.
package errors

import (
	"errors"
	"fmt"
)

// Error codes.
const (
	CodeUnknown            = "UNKNOWN_ERROR"
	CodeInvalidInput       = "INVALID_INPUT"
	CodeLevelOverflow      = "LEVEL_OVERFLOW"
	CodeFrozenLevel        = "FROZEN_LEVEL"
	CodeUnsupportedFeature = "UNSUPPORTED_FEATURE"
	CodeParseError         = "PARSE_ERROR"
	CodeConfigError        = "CONFIG_ERROR"
	CodeNotFound           = "NOT_FOUND"
	CodeStorageError       = "STORAGE_ERROR"
	CodeDatabaseError      = "DATABASE_ERROR"
)

// AppError is an error with a stable code and an optional cause.
type AppError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches errors by code.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new AppError.
func New(code string, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap wraps an existing error with an AppError.
func Wrap(code string, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// Common error instances.
var (
	ErrInvalidInput       = New(CodeInvalidInput, "invalid input")
	ErrLevelOverflow      = New(CodeLevelOverflow, "level space exhausted")
	ErrFrozenLevel        = New(CodeFrozenLevel, "write to a frozen level")
	ErrUnsupportedFeature = New(CodeUnsupportedFeature, "unsupported feature combination")
	ErrParseError         = New(CodeParseError, "parse error")
	ErrConfigError        = New(CodeConfigError, "configuration error")
	ErrNotFound           = New(CodeNotFound, "resource not found")
	ErrStorageError       = New(CodeStorageError, "storage error")
	ErrDatabaseError      = New(CodeDatabaseError, "database error")
)

// IsInvalidInput checks if the error is an invalid-input error.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsUnsupportedFeature checks if the error is an unsupported-feature error.
func IsUnsupportedFeature(err error) bool {
	return errors.Is(err, ErrUnsupportedFeature)
}

// IsParseError checks if the error is a parse error.
func IsParseError(err error) bool {
	return errors.Is(err, ErrParseError)
}

// IsNotFound checks if the error is a not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

// GetErrorMessage extracts the error message from an error.
func GetErrorMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	if err != nil {
		return err.Error()
	}
	return ""
}
