package models

import (
	"errors"
	"fmt"
)

// Common error types
var (
	ErrNotFound    = errors.New("resource not found")
	ErrConflict    = errors.New("operation conflicts with current state")
	ErrUnavailable = errors.New("resource temporarily unavailable")
)

// Error codes carried by AppError
const (
	CodeInvalidInput = "INVALID_INPUT"
	CodeNotFound     = "NOT_FOUND"
	CodeConflict     = "CONFLICT"
	CodeUnavailable  = "UNAVAILABLE"
)

// AppError represents an application-level error with context
type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// ErrInvalidInput creates a validation error
func ErrInvalidInput(message string) error {
	return &AppError{
		Code:    CodeInvalidInput,
		Message: message,
	}
}

// ErrInvalidInputWrap creates a validation error that keeps the underlying cause
func ErrInvalidInputWrap(message string, err error) error {
	return &AppError{
		Code:    CodeInvalidInput,
		Message: message,
		Err:     err,
	}
}

// ErrNotFoundWithMsg creates a not found error with custom message
func ErrNotFoundWithMsg(message string) error {
	return &AppError{
		Code:    CodeNotFound,
		Message: message,
		Err:     ErrNotFound,
	}
}

// ErrConflictWithMsg creates a conflict error with custom message
func ErrConflictWithMsg(message string) error {
	return &AppError{
		Code:    CodeConflict,
		Message: message,
		Err:     ErrConflict,
	}
}

// ErrUnavailableWithMsg creates an error for back-pressure conditions the caller may retry
func ErrUnavailableWithMsg(message string) error {
	return &AppError{
		Code:    CodeUnavailable,
		Message: message,
		Err:     ErrUnavailable,
	}
}
