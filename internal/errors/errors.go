// Package errors provides unified error handling with a small set of session error codes.
// Codes drive both retry decisions and the user-facing message surfaced through onError.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Code classifies an AppError.
type Code int

const (
	CodeUnknown Code = iota
	CodeInternal
	CodePermissionDenied
	CodeConnectionFailed
	CodeDecodeFailed
	CodeTokenFailed
	CodeConfigInvalid
	CodeUnavailable
	CodeTimeout
	CodeCancelled
	CodeCaptureFailed
)

var codeNames = map[Code]string{
	CodeUnknown:          "UNKNOWN",
	CodeInternal:         "INTERNAL",
	CodePermissionDenied: "PERMISSION_DENIED",
	CodeConnectionFailed: "CONNECTION_FAILED",
	CodeDecodeFailed:     "DECODE_FAILED",
	CodeTokenFailed:      "TOKEN_FAILED",
	CodeConfigInvalid:    "CONFIG_INVALID",
	CodeUnavailable:      "UNAVAILABLE",
	CodeTimeout:          "TIMEOUT",
	CodeCancelled:        "CANCELLED",
	CodeCaptureFailed:    "CAPTURE_FAILED",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return codeNames[CodeUnknown]
}

// userMessages are shown to the person at the microphone, so they stay short.
var userMessages = map[Code]string{
	CodePermissionDenied: "Microphone permission denied",
	CodeConnectionFailed: "Connection to the voice service failed",
	CodeDecodeFailed:     "Received unreadable audio",
	CodeTokenFailed:      "Failed to generate token",
	CodeConfigInvalid:    "Invalid session configuration",
	CodeTimeout:          "Timed out connecting to the voice service",
	CodeCaptureFailed:    "Microphone stopped",
}

// AppError is the base error type with structured error code and metadata.
type AppError struct {
	Code     Code
	Message  string
	Metadata map[string]string
	Cause    error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	s := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if len(e.Metadata) > 0 {
		s += fmt.Sprintf(" %v", e.Metadata)
	}
	if e.Cause != nil {
		s += fmt.Sprintf(" caused by: %v", e.Cause)
	}
	return s
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *AppError) Unwrap() error { return e.Cause }

// New creates a new AppError with the given code and message.
func New(code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg}
}

// Newf creates a new AppError with formatted message.
func Newf(code Code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with an AppError.
func Wrap(err error, code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg, Cause: err}
}

// WithMetadata adds metadata to an AppError.
func (e *AppError) WithMetadata(key, value string) *AppError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// Permission reports a denied or unavailable capture device.
func Permission(err error) *AppError {
	return Wrap(err, CodePermissionDenied, "capture device unavailable")
}

// Connection reports a remote open or send failure.
func Connection(err error, msg string) *AppError {
	return Wrap(err, CodeConnectionFailed, msg)
}

// Decode reports a malformed inbound audio payload.
func Decode(format string, args ...any) *AppError {
	return Newf(CodeDecodeFailed, format, args...)
}

// Capture reports a microphone stream that ended while a session used it.
func Capture(err error) *AppError {
	return Wrap(err, CodeCaptureFailed, "capture stopped")
}

// Token reports a failed credential fetch.
func Token(err error) *AppError {
	return Wrap(err, CodeTokenFailed, "credential fetch failed")
}

// CodeOf returns the code of the first AppError in err's chain.
func CodeOf(err error) Code {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// IsRetryable returns true if the error is potentially retryable.
func IsRetryable(err error) bool {
	switch CodeOf(err) {
	case CodeUnavailable, CodeTimeout:
		return true
	default:
		return false
	}
}

// UserMessage translates err into the single message shown next to the connection state.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if msg, ok := userMessages[CodeOf(err)]; ok {
		return msg
	}
	return "Something went wrong: " + err.Error()
}
