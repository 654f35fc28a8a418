package command

import (
	"errors"
	"fmt"
)

// UsageError is a programmer error reported at the call site.
//
// Usage errors are never captured into an Outcome. Builder methods that
// cannot return an error panic with a *UsageError instead.
type UsageError struct {
	// Code identifies the misuse.
	Code UsageErrorCode

	// Message is a human-readable description.
	Message string

	// CommandID identifies the command involved, if any.
	CommandID string
}

// UsageErrorCode categorizes usage errors.
type UsageErrorCode string

const (
	// ErrCodeCallbackAlreadySet indicates a second completion callback assignment.
	ErrCodeCallbackAlreadySet UsageErrorCode = "CALLBACK_ALREADY_SET"

	// ErrCodeProgressAlreadySet indicates a second progress callback assignment.
	ErrCodeProgressAlreadySet UsageErrorCode = "PROGRESS_ALREADY_SET"

	// ErrCodeNotCancelable indicates Cancel on a command without a cancellation token.
	ErrCodeNotCancelable UsageErrorCode = "NOT_CANCELABLE"

	// ErrCodeUnboundedTransactionOpen indicates a bare submission while an
	// unbounded transaction is being built.
	ErrCodeUnboundedTransactionOpen UsageErrorCode = "UNBOUNDED_TRANSACTION_OPEN"

	// ErrCodeNilCommand indicates a nil command or configuration.
	ErrCodeNilCommand UsageErrorCode = "NIL_COMMAND"
)

// Error implements the error interface.
func (e *UsageError) Error() string {
	if e.CommandID != "" {
		return fmt.Sprintf("%s: %s (command=%s)", e.Code, e.Message, e.CommandID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewUsageError creates a UsageError with a formatted message.
func NewUsageError(code UsageErrorCode, format string, args ...any) *UsageError {
	return &UsageError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// IsUsageError returns true if err is or wraps a *UsageError.
func IsUsageError(err error) bool {
	var ue *UsageError
	return errors.As(err, &ue)
}

// HasUsageCode returns true if err is or wraps a *UsageError with the given code.
func HasUsageCode(err error, code UsageErrorCode) bool {
	var ue *UsageError
	if errors.As(err, &ue) {
		return ue.Code == code
	}
	return false
}

// PanicError is the fault recorded when an effect panics.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("effect panicked: %v", e.Value)
}

// Unwrap exposes the panic value when it was an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
