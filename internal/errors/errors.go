// Package errors provides error code definitions shared across the sync core.
package errors

import "fmt"

// ErrorCode represents a unique error code that can be surfaced to callers
// and bridged across the foreground/background boundary.
type ErrorCode string

const (
	// General errors
	ErrInternal   ErrorCode = "INTERNAL_ERROR"
	ErrInvalid    ErrorCode = "INVALID_INPUT"
	ErrNotFound   ErrorCode = "NOT_FOUND"
	ErrTimeout    ErrorCode = "TIMEOUT"
	ErrValidation ErrorCode = "VALIDATION_ERROR"

	// Database errors
	ErrDatabase  ErrorCode = "DATABASE_ERROR"
	ErrMigration ErrorCode = "MIGRATION_FAILED"

	// Connection lifecycle errors
	ErrConnectionFailure  ErrorCode = "CONNECTION_FAILURE"
	ErrAuthFailure        ErrorCode = "AUTH_FAILURE"
	ErrHealthCheckTimeout ErrorCode = "HEALTH_CHECK_TIMEOUT"
	ErrNotConnected       ErrorCode = "NOT_CONNECTED"

	// Transport errors
	ErrTransportCorrelation ErrorCode = "TRANSPORT_CORRELATION"
	ErrTransportClosed      ErrorCode = "TRANSPORT_CLOSED"
	ErrRemote               ErrorCode = "REMOTE_ERROR"

	// Consistency errors
	ErrIntegrityValidation ErrorCode = "INTEGRITY_VALIDATION"
	ErrConflictDetected    ErrorCode = "CONFLICT_DETECTED"
	ErrTransactionRollback ErrorCode = "TRANSACTION_ROLLBACK"
	ErrTransactionState    ErrorCode = "TRANSACTION_STATE"
)

// AppError represents an application error with code and message.
type AppError struct {
	Code    ErrorCode
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

// New creates a new AppError.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an error code.
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Is checks if an error is of a specific code.
func Is(err error, code ErrorCode) bool {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code == code
	}
	return false
}

// CodeOf extracts the error code from an error, or ErrInternal if the error
// carries no code.
func CodeOf(err error) ErrorCode {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}
	return ErrInternal
}
