// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error types and error handling utilities for hioload-wire.

package api

import (
	"errors"
	"fmt"
)

// Common errors used across the library.
var (
	ErrMalformed        = errors.New("malformed protocol input")
	ErrConnClosed       = errors.New("connection is closed")
	ErrConnClosing      = errors.New("connection is closing")
	ErrKeepaliveTimeout = errors.New("keepalive timeout")
	ErrHandshakeTimeout = errors.New("websocket handshake timeout")
	ErrTooLarge         = errors.New("message too large")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrWrongState       = errors.New("operation not valid in current protocol state")
)

// ErrorCode represents specific error conditions in the library.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	ErrCodeInvalidArgument
	ErrCodeMalformed
	ErrCodeTooLarge
	ErrCodeTimeout
	ErrCodeInternal
)

// Error represents a structured error with code and context.
type Error struct {
	Code    ErrorCode
	Message string
	Context map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if len(e.Context) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (context: %+v)", e.Message, e.Context)
}

// Is matches the sentinel errors that correspond to the error code.
func (e *Error) Is(target error) bool {
	switch e.Code {
	case ErrCodeMalformed:
		return target == ErrMalformed
	case ErrCodeTooLarge:
		return target == ErrTooLarge || target == ErrMalformed
	case ErrCodeInvalidArgument:
		return target == ErrInvalidArgument
	case ErrCodeTimeout:
		return target == ErrKeepaliveTimeout
	}
	return false
}

// NewError creates a new structured error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: make(map[string]any),
	}
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// Malformed builds the error returned for protocol violations.
func Malformed(reason string) *Error {
	return NewError(ErrCodeMalformed, "malformed protocol input").WithContext("reason", reason)
}

// Reason extracts the "reason" context of a structured error, if any.
func Reason(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if r, ok := e.Context["reason"].(string); ok {
			return r
		}
	}
	return ""
}
