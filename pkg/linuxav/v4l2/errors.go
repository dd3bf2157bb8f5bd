//go:build linux

package v4l2

import (
	"errors"
	"fmt"
)

// Error codes.
const (
	ErrCodeOpenFailure         = "OPEN_FAILURE"
	ErrCodeUnsupportedDevice   = "UNSUPPORTED_DEVICE"
	ErrCodeInsufficientBuffers = "INSUFFICIENT_BUFFERS"
	ErrCodeMappingFailure      = "MAPPING_FAILURE"
	ErrCodeIoctlFailure        = "IOCTL_FAILURE"
	ErrCodeProtocolViolation   = "PROTOCOL_VIOLATION"
	ErrCodeInvalidArgument     = "INVALID_ARGUMENT"
)

// Error is returned by every fallible operation in this package.
// Cause carries the underlying errno when the kernel rejected a request.
type Error struct {
	Code    string
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	msg := e.Code
	if e.Op != "" {
		msg += ": " + e.Op
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error with the same code, so errors.Is(err, ErrIoctlFailure)
// holds for every ioctl failure regardless of operation.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is.
var (
	ErrOpenFailure         = &Error{Code: ErrCodeOpenFailure}
	ErrUnsupportedDevice   = &Error{Code: ErrCodeUnsupportedDevice}
	ErrInsufficientBuffers = &Error{Code: ErrCodeInsufficientBuffers}
	ErrMappingFailure      = &Error{Code: ErrCodeMappingFailure}
	ErrIoctlFailure        = &Error{Code: ErrCodeIoctlFailure}
	ErrProtocolViolation   = &Error{Code: ErrCodeProtocolViolation}
	ErrInvalidArgument     = &Error{Code: ErrCodeInvalidArgument}
)

// ErrPlaneUnmapped is returned when plane memory is accessed after release.
var ErrPlaneUnmapped = errors.New("v4l2: plane memory is no longer mapped")

// GrantError is the cause of an INSUFFICIENT_BUFFERS error.
type GrantError struct {
	Requested int
	Granted   int
}

func (e *GrantError) Error() string {
	return fmt.Sprintf("requested %d buffers, device granted %d", e.Requested, e.Granted)
}

// ErrorCode extracts the code of a package error, or "" for foreign errors.
func ErrorCode(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func newError(code, op, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Op:      op,
		Message: message,
		Cause:   cause,
	}
}

func ioctlError(op string, cause error) *Error {
	return newError(ErrCodeIoctlFailure, op, "", cause)
}
