package mqttbridge

import (
	"errors"
	"fmt"
)

// Error represents a bridge library error with categorization.
type Error struct {
	// Code is a machine-readable error code
	Code string

	// Message is a human-readable error message
	Message string

	// Err is the underlying error (if any)
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Error codes for bridge operations.
const (
	// ErrCodeConfiguration indicates invalid configuration.
	ErrCodeConfiguration = "CONFIGURATION_ERROR"

	// ErrCodeDelivery indicates a sink delivery failed.
	ErrCodeDelivery = "DELIVERY_ERROR"

	// ErrCodeQueueFull indicates the bounded queue rejected a push.
	ErrCodeQueueFull = "QUEUE_FULL"

	// ErrCodeShutdown indicates the pipeline is no longer accepting messages.
	ErrCodeShutdown = "SHUTDOWN"

	// ErrCodeStorage indicates a dead-letter store operation failed.
	ErrCodeStorage = "STORAGE_ERROR"
)

// Common errors.
var (
	// ErrQueueClosed is returned by queue operations after Close.
	ErrQueueClosed = &Error{
		Code:    ErrCodeShutdown,
		Message: "queue is closed",
	}

	// ErrPipelineClosed is returned by Handle once shutdown has begun.
	ErrPipelineClosed = &Error{
		Code:    ErrCodeShutdown,
		Message: "pipeline is shutting down",
	}
)

// NewError creates a new Error with the given code and message.
func NewError(code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// NewErrorWithCause creates a new Error wrapping an underlying error.
func NewErrorWithCause(code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     cause,
	}
}

// IsShutdown checks if an error indicates the pipeline or queue is closed.
func IsShutdown(err error) bool {
	var bridgeErr *Error
	if errors.As(err, &bridgeErr) {
		return bridgeErr.Code == ErrCodeShutdown
	}
	return false
}
