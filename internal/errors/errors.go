// Package errors provides domain-specific error types and sentinel errors
// shared by the command pipeline, the delivery layer and the backend client.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common scenarios.
// Use errors.Is() to check these errors in your code.
var (
	// ErrNotFound indicates a requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrUnknownCommand indicates the command token matched no registered name or alias.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrCooldown indicates the principal invoked a command before its cooldown expired.
	ErrCooldown = errors.New("command on cooldown")

	// ErrRateLimitExceeded indicates the per-principal message ceiling was hit.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrNotAuthorized indicates the role gate denied the command.
	ErrNotAuthorized = errors.New("not authorized")

	// ErrInvalidInput indicates user provided invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrBackendUnavailable indicates the backend could not be reached after all retries.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrTransportRejected indicates the chat transport refused an outbound message.
	ErrTransportRejected = errors.New("transport rejected message")

	// ErrNotConnected indicates the chat transport has no live session.
	ErrNotConnected = errors.New("transport not connected")

	// ErrQueueUnavailable indicates the retry queue is closed or full.
	ErrQueueUnavailable = errors.New("retry queue unavailable")
)

// ValidationError represents input validation failures.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// BackendError represents a failed backend API call with its endpoint context.
type BackendError struct {
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *BackendError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("backend error (endpoint=%s, status=%d): %v", e.Endpoint, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("backend error (endpoint=%s): %v", e.Endpoint, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// NewBackendError creates a new backend error.
func NewBackendError(endpoint string, statusCode int, err error) *BackendError {
	return &BackendError{
		Endpoint:   endpoint,
		StatusCode: statusCode,
		Err:        err,
	}
}

// IsNotFound reports whether err is or wraps ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsRateLimitExceeded reports whether err is or wraps ErrRateLimitExceeded.
func IsRateLimitExceeded(err error) bool { return errors.Is(err, ErrRateLimitExceeded) }

// IsInvalidInput reports whether err is or wraps ErrInvalidInput.
func IsInvalidInput(err error) bool { return errors.Is(err, ErrInvalidInput) }

// IsBackendUnavailable reports whether err is or wraps ErrBackendUnavailable.
func IsBackendUnavailable(err error) bool { return errors.Is(err, ErrBackendUnavailable) }
