package errors

import (
	"errors"
	"fmt"
	"time"
)

// Base error types
var (
	ErrUnreachable     = errors.New("gateway unreachable")
	ErrMalformedConfig = errors.New("malformed config")
	ErrNotFound        = errors.New("not found")
	ErrInvalidInput    = errors.New("invalid input")
	ErrTimeout         = errors.New("timeout")
)

// ErrorType represents the category of error
type ErrorType string

const (
	ErrorTypeUnreachable ErrorType = "unreachable"
	ErrorTypeMalformed   ErrorType = "malformed"
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeValidation  ErrorType = "validation"
	ErrorTypeInternal    ErrorType = "internal"
)

// SyncError is a structured error for config synchronization operations
type SyncError struct {
	Type       ErrorType
	Op         string // Operation that failed (e.g., "fetch_config", "decode_config")
	Endpoint   string // Admin API endpoint if applicable
	Err        error  // Underlying error
	StatusCode int    // HTTP status code if applicable
	Timestamp  time.Time
	Retryable  bool
}

func (e *SyncError) Error() string {
	if e.Endpoint != "" {
		return fmt.Sprintf("%s failed on %s: %v", e.Op, e.Endpoint, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is interface
func (e *SyncError) Is(target error) bool {
	if target == nil {
		return false
	}

	switch target {
	case ErrUnreachable:
		return e.Type == ErrorTypeUnreachable
	case ErrMalformedConfig:
		return e.Type == ErrorTypeMalformed
	case ErrNotFound:
		return e.Type == ErrorTypeNotFound
	case ErrInvalidInput:
		return e.Type == ErrorTypeValidation
	}

	return errors.Is(e.Err, target)
}

// NewSyncError creates a new SyncError
func NewSyncError(errorType ErrorType, op, endpoint string, err error) *SyncError {
	return &SyncError{
		Type:      errorType,
		Op:        op,
		Endpoint:  endpoint,
		Err:       err,
		Timestamp: time.Now(),
		Retryable: isRetryable(errorType),
	}
}

// WithStatusCode adds HTTP status code to the error
func (e *SyncError) WithStatusCode(code int) *SyncError {
	e.StatusCode = code
	if code >= 500 || code == 429 || code == 408 {
		e.Retryable = true
	} else if code >= 400 && code < 500 {
		e.Retryable = false
	}
	return e
}

// Malformed payloads are retried too: the next poll may carry a fixed config.
func isRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeUnreachable, ErrorTypeMalformed:
		return true
	default:
		return false
	}
}

// WrapUnreachable wraps a transport or status failure with context
func WrapUnreachable(op, endpoint string, err error) *SyncError {
	return NewSyncError(ErrorTypeUnreachable, op, endpoint, err)
}

// WrapMalformed wraps a decode failure with context
func WrapMalformed(op, endpoint string, err error) *SyncError {
	return NewSyncError(ErrorTypeMalformed, op, endpoint, err)
}

// IsUnreachable reports whether err is a transport-level failure.
func IsUnreachable(err error) bool {
	return err != nil && errors.Is(err, ErrUnreachable)
}

// IsMalformed reports whether err is a payload decode failure.
func IsMalformed(err error) bool {
	return err != nil && errors.Is(err, ErrMalformedConfig)
}

// IsRetryableError checks if an error should be retried
func IsRetryableError(err error) bool {
	var syncErr *SyncError
	if errors.As(err, &syncErr) {
		return syncErr.Retryable
	}
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrUnreachable)
}

// TypeOf returns the error category, or ErrorTypeInternal for foreign errors.
func TypeOf(err error) ErrorType {
	var syncErr *SyncError
	if errors.As(err, &syncErr) {
		return syncErr.Type
	}
	return ErrorTypeInternal
}
