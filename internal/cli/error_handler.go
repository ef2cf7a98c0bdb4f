package cli

import (
	"fmt"

	"chronotask/internal/errors"
	"chronotask/internal/validation"
)

// ErrorHandler provides centralized error handling for command handlers
type ErrorHandler struct{}

// NewErrorHandler creates a new error handler
func NewErrorHandler() *ErrorHandler {
	return &ErrorHandler{}
}

// Handle provides user-friendly error messages for validation and other errors
func (eh *ErrorHandler) Handle(operation string, err error) error {
	if validationErr, ok := err.(*validation.ValidationError); ok {
		return fmt.Errorf("failed to %s: %s", operation, validationErr.GetUserFriendlyMessage())
	}

	if _, ok := errors.AsAppError(err); ok {
		return &commandError{operation: operation, message: errors.GetUserMessage(err), cause: err}
	}

	// Fallback for unknown errors
	return fmt.Errorf("failed to %s: %w", operation, err)
}

// HandleSimple provides user-friendly error messages without operation context
func (eh *ErrorHandler) HandleSimple(err error) error {
	if validationErr, ok := err.(*validation.ValidationError); ok {
		return fmt.Errorf("%s", validationErr.GetUserFriendlyMessage())
	}

	if _, ok := errors.AsAppError(err); ok {
		return fmt.Errorf("%s", errors.GetUserMessage(err))
	}

	return err
}

// IsValidationError checks if an error is a validation error
func (eh *ErrorHandler) IsValidationError(err error) bool {
	if validation.IsValidationError(err) {
		return true
	}
	return errors.IsErrorType(err, errors.ErrorTypeValidation)
}

// IsNotFoundError checks if an error is a not found error
func (eh *ErrorHandler) IsNotFoundError(err error) bool {
	return errors.IsErrorType(err, errors.ErrorTypeNotFound)
}

// IsStoreError checks if a change was rolled back after the store refused it
func (eh *ErrorHandler) IsStoreError(err error) bool {
	return errors.IsErrorType(err, errors.ErrorTypeStore) ||
		errors.IsErrorType(err, errors.ErrorTypeTimeout) ||
		errors.IsErrorType(err, errors.ErrorTypePartialBatch)
}

// GetErrorCode returns the error code for structured errors
func (eh *ErrorHandler) GetErrorCode(err error) string {
	return errors.GetErrorCode(err)
}

// commandError carries the user message while keeping the cause reachable
// through errors.Is and errors.As.
type commandError struct {
	operation string
	message   string
	cause     error
}

func (e *commandError) Error() string {
	return fmt.Sprintf("failed to %s: %s", e.operation, e.message)
}

func (e *commandError) Unwrap() error {
	return e.cause
}
