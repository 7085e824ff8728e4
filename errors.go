package accel

import (
	"errors"
	"fmt"

	"github.com/LynnColeArt/accel/backend"
)

// ErrorType represents categories of errors
type ErrorType int

const (
	// An asynchronous operation has not completed yet. Never escalated.
	ErrTypeNotReady ErrorType = iota
	// A launch failed while a tuning probe was active; the configuration
	// can be discarded.
	ErrTypeProbeFailure
	// Any other backend failure. Device state is undefined afterwards.
	ErrTypeFatal
	// Argument payload too large, invalid copy kind or fill value.
	ErrTypeConfiguration
	// Memory errors
	ErrTypeMemory
	// Invalid argument errors
	ErrTypeInvalidArg
)

// String returns the error type as a string
func (t ErrorType) String() string {
	switch t {
	case ErrTypeNotReady:
		return "NotReady"
	case ErrTypeProbeFailure:
		return "ProbeFailure"
	case ErrTypeFatal:
		return "Fatal"
	case ErrTypeConfiguration:
		return "Configuration"
	case ErrTypeMemory:
		return "Memory"
	case ErrTypeInvalidArg:
		return "InvalidArgument"
	default:
		return "Unknown"
	}
}

// Error represents a structured error with context
type Error struct {
	Type    ErrorType
	Op      string       // Operation that failed
	Code    backend.Code // Backend status, Success for errors raised by this layer
	Message string       // Human-readable message
	Site    CallSite     // Call site the operation was issued from
	Err     error        // Underlying error if any
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := fmt.Sprintf("accel %s error in %s: %s", e.Type, e.Op, e.Message)
	if e.Code != backend.Success {
		msg += fmt.Sprintf(" [%s]", e.Code)
	}
	if !e.Site.IsZero() {
		msg += fmt.Sprintf(" (%s)", e.Site)
	}
	if e.Err != nil {
		msg += fmt.Sprintf(" (caused by: %v)", e.Err)
	}
	return msg
}

// Unwrap allows error chain inspection
func (e *Error) Unwrap() error {
	return e.Err
}

// NewConfigurationError creates a configuration error
func NewConfigurationError(op string, message string) *Error {
	return &Error{
		Type:    ErrTypeConfiguration,
		Op:      op,
		Message: message,
	}
}

// NewInvalidArgError creates an invalid argument error
func NewInvalidArgError(op string, message string) *Error {
	return &Error{
		Type:    ErrTypeInvalidArg,
		Op:      op,
		Message: message,
	}
}

// NewMemoryError creates a memory-related error
func NewMemoryError(op string, message string, err error) *Error {
	return &Error{
		Type:    ErrTypeMemory,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

var (
	// ErrNoValidConfig is returned when every tuning candidate failed.
	ErrNoValidConfig = errors.New("accel: no valid launch configuration")

	// ErrPointerReduceType is returned when a reduction type contains pointers
	// and cannot live in shared memory.
	ErrPointerReduceType = errors.New("accel: reduction type must be pointer free")
)

func errorType(err error) (ErrorType, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Type, true
	}
	return 0, false
}

// IsRecoverable reports whether err is a discardable tuning probe failure.
func IsRecoverable(err error) bool {
	t, ok := errorType(err)
	return ok && t == ErrTypeProbeFailure
}

// IsFatal reports whether err is an unrecoverable backend failure.
func IsFatal(err error) bool {
	t, ok := errorType(err)
	return ok && t == ErrTypeFatal
}

// IsConfigurationError reports whether err is a configuration error.
func IsConfigurationError(err error) bool {
	t, ok := errorType(err)
	return ok && t == ErrTypeConfiguration
}

// IsMemoryError checks if an error is a memory error
func IsMemoryError(err error) bool {
	t, ok := errorType(err)
	return ok && t == ErrTypeMemory
}

// IsInvalidArgError checks if an error is an invalid argument error
func IsInvalidArgError(err error) bool {
	t, ok := errorType(err)
	return ok && t == ErrTypeInvalidArg
}

// CodeOf returns the backend code carried by err, if any.
func CodeOf(err error) backend.Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return backend.Success
}
