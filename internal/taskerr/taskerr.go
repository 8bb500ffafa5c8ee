// Package taskerr defines the structured error taxonomy carried on failed
// tasks and returned from intake validation.
package taskerr

import (
	"errors"
	"fmt"
)

// Code identifies a failure site in the error taxonomy.
type Code string

// Failure codes. Codes are stable API surface; user messages are localized
// separately and technical messages are never localized.
const (
	CodeBadRequest           Code = "BadRequest"
	CodeUnsupportedMedia     Code = "UnsupportedMedia"
	CodeProbeFailed          Code = "ProbeFailed"
	CodePayloadTooLarge      Code = "PayloadTooLarge"
	CodeRateLimited          Code = "RateLimited"
	CodeDownloadFailed       Code = "DownloadFailed"
	CodeAudioExtractionError Code = "AudioExtractionError"
	CodeTranscriptionError   Code = "TranscriptionError"
	CodeTranslationError     Code = "TranslationError"
	CodeSubtitleEmitError    Code = "SubtitleEmitError"
	CodeRenderError          Code = "RenderError"
	CodeFormatError          Code = "FormatError"
	CodeTimeoutExceeded      Code = "TimeoutExceeded"
	CodeInfrastructure       Code = "Infrastructure"
)

// Error is a structured task error. It wraps an underlying cause and carries
// the code used to derive HTTP status and the localized user message.
type Error struct {
	Code        Code
	Message     string
	Recoverable bool
	cause       error
}

// New creates a structured error with a technical message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a structured error with a formatted technical message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a structured error around a cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// WithRecoverable marks the error as recoverable (retriable later).
func (e *Error) WithRecoverable() *Error {
	e.Recoverable = true
	return e
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.cause
}

// From extracts a structured error from err, or classifies it as
// Infrastructure when it carries no code.
func From(err error) *Error {
	var te *Error
	if errors.As(err, &te) {
		return te
	}
	return Wrap(CodeInfrastructure, "internal error", err)
}

// CodeOf returns the code of err, or CodeInfrastructure for plain errors.
func CodeOf(err error) Code {
	return From(err).Code
}
