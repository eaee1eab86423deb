package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a category of application error.
type ErrorCode string

const (
	// ErrCodeInvalidCredentials indicates the backend refused a login attempt.
	ErrCodeInvalidCredentials ErrorCode = "invalid_credentials"
	// ErrCodeRemoteRejected indicates the backend refused a mutation (create, update, delete, secret change).
	ErrCodeRemoteRejected ErrorCode = "remote_rejected"
	// ErrCodeNotFound indicates a key could not be resolved or a resource was not found.
	ErrCodeNotFound ErrorCode = "not_found"
	// ErrCodeNoMatch indicates a captured frame did not identify anyone in the directory.
	ErrCodeNoMatch ErrorCode = "no_match"
	// ErrCodeTransportUnavailable indicates the backend could not be reached at all.
	ErrCodeTransportUnavailable ErrorCode = "transport_unavailable"
	// ErrCodeConflict indicates a versioned update lost a race against another writer.
	ErrCodeConflict ErrorCode = "conflict"
	// ErrCodeBusy indicates an operation of the same kind is already in flight.
	ErrCodeBusy ErrorCode = "busy"
	// ErrCodeInvalidState indicates an operation was attempted from a state that does not allow it.
	ErrCodeInvalidState ErrorCode = "invalid_state"
	// ErrCodeValidation indicates invalid input data.
	ErrCodeValidation ErrorCode = "validation"
	// ErrCodeInternal indicates an unexpected local failure.
	ErrCodeInternal ErrorCode = "internal"
	// ErrCodeTimeout indicates a timeout occurred.
	ErrCodeTimeout ErrorCode = "timeout"
	// ErrCodeCanceled indicates the operation was canceled.
	ErrCodeCanceled ErrorCode = "canceled"
)

// AppError represents a structured application error with a code, message, and optional cause.
// It supports error wrapping and unwrapping for use with errors.Is and errors.As.
type AppError struct {
	// Code categorizes the error type
	Code ErrorCode
	// Message is a human-readable error message
	Message string
	// Cause is the underlying error that caused this error (optional)
	Cause error
	// Field is the specific field that caused the error (optional, for validation errors)
	Field string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause, enabling errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an AppError carrying the same code.
// A bare &AppError{Code: X} therefore works as a sentinel with errors.Is.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !errors.As(target, &t) {
		return false
	}
	return t.Message == "" && t.Cause == nil && t.Code == e.Code
}

func newf(code ErrorCode, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// InvalidCredentials creates a new InvalidCredentials error.
func InvalidCredentials(message string) *AppError {
	return &AppError{Code: ErrCodeInvalidCredentials, Message: message}
}

// RemoteRejected creates a new RemoteRejected error.
func RemoteRejected(message string) *AppError {
	return &AppError{Code: ErrCodeRemoteRejected, Message: message}
}

// RemoteRejectedf creates a new RemoteRejected error with formatted message.
func RemoteRejectedf(format string, args ...any) *AppError {
	return newf(ErrCodeRemoteRejected, format, args...)
}

// NotFound creates a new NotFound error.
func NotFound(message string) *AppError {
	return &AppError{Code: ErrCodeNotFound, Message: message}
}

// NotFoundf creates a new NotFound error with formatted message.
func NotFoundf(format string, args ...any) *AppError {
	return newf(ErrCodeNotFound, format, args...)
}

// NoMatch creates a new NoMatch error.
func NoMatch(message string) *AppError {
	return &AppError{Code: ErrCodeNoMatch, Message: message}
}

// NoMatchf creates a new NoMatch error with formatted message.
func NoMatchf(format string, args ...any) *AppError {
	return newf(ErrCodeNoMatch, format, args...)
}

// TransportUnavailable wraps a transport failure.
func TransportUnavailable(err error, message string) *AppError {
	return &AppError{Code: ErrCodeTransportUnavailable, Message: message, Cause: err}
}

// Conflict creates a new Conflict error.
func Conflict(message string) *AppError {
	return &AppError{Code: ErrCodeConflict, Message: message}
}

// Conflictf creates a new Conflict error with formatted message.
func Conflictf(format string, args ...any) *AppError {
	return newf(ErrCodeConflict, format, args...)
}

// Busy creates a new Busy error.
func Busy(message string) *AppError {
	return &AppError{Code: ErrCodeBusy, Message: message}
}

// InvalidStatef creates a new InvalidState error with formatted message.
func InvalidStatef(format string, args ...any) *AppError {
	return newf(ErrCodeInvalidState, format, args...)
}

// Canceled creates a new Canceled error.
func Canceled(message string) *AppError {
	return &AppError{Code: ErrCodeCanceled, Message: message}
}

// Validation creates a new Validation error.
func Validation(message string) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: message}
}

// ValidationField creates a new Validation error for a specific field.
func ValidationField(field, message string) *AppError {
	return &AppError{
		Code:    ErrCodeValidation,
		Message: message,
		Field:   field,
	}
}

// Internalf creates a new Internal error with formatted message.
func Internalf(format string, args ...any) *AppError {
	return newf(ErrCodeInternal, format, args...)
}

// Wrap wraps an existing error with an AppError, preserving the cause.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an existing error with an AppError and formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...any) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   err,
	}
}

// HasCode reports whether any AppError in err's chain carries code.
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		var appErr *AppError
		if !errors.As(err, &appErr) {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Cause
	}
	return false
}

// IsInvalidCredentials checks if an error is an InvalidCredentials error.
func IsInvalidCredentials(err error) bool { return HasCode(err, ErrCodeInvalidCredentials) }

// IsRemoteRejected checks if an error is a RemoteRejected error.
func IsRemoteRejected(err error) bool { return HasCode(err, ErrCodeRemoteRejected) }

// IsNotFound checks if an error is a NotFound error.
func IsNotFound(err error) bool { return HasCode(err, ErrCodeNotFound) }

// IsNoMatch checks if an error is a NoMatch error.
func IsNoMatch(err error) bool { return HasCode(err, ErrCodeNoMatch) }

// IsTransportUnavailable checks if an error is a TransportUnavailable error.
func IsTransportUnavailable(err error) bool { return HasCode(err, ErrCodeTransportUnavailable) }

// IsConflict checks if an error is a Conflict error.
func IsConflict(err error) bool { return HasCode(err, ErrCodeConflict) }

// IsBusy checks if an error is a Busy error.
func IsBusy(err error) bool { return HasCode(err, ErrCodeBusy) }

// IsValidation checks if an error is a Validation error.
func IsValidation(err error) bool { return HasCode(err, ErrCodeValidation) }

// IsCanceled checks if an error is a Canceled error.
func IsCanceled(err error) bool { return HasCode(err, ErrCodeCanceled) }

// IsTimeout checks if an error is a Timeout error.
func IsTimeout(err error) bool { return HasCode(err, ErrCodeTimeout) }

// GetCode returns the outermost ErrorCode from an error, or empty string if not an AppError.
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// GetField returns the Field from an error, or empty string if not an AppError or no field set.
func GetField(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Field
	}
	return ""
}
