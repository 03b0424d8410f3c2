// Package domainerrors defines the coded error taxonomy shared by services,
// transports and the command line.
//
// Stores return sentinel errors (see pkg/platform/sentinel) or raw driver
// errors. Services translate them into coded errors with New or Wrap so that
// HTTP handlers and CLI commands can map a failure to a status or exit code
// without inspecting messages.
package domainerrors

import (
	"context"
	"errors"
	"fmt"
)

// Code classifies a failure. Codes are stable strings: they appear in HTTP
// error bodies and are mapped to CLI exit codes.
type Code string

const (
	CodeNotFound             Code = "not_found"
	CodeAlreadyRegistered    Code = "already_registered"
	CodeInvalidTransition    Code = "invalid_transition"
	CodeUnknownReferenceKind Code = "unknown_reference_kind"
	CodeCircularReference    Code = "circular_reference"
	CodeResolverFailure      Code = "resolver_failure"
	CodeStorageIO            Code = "storage_io"
	CodeContentIO            Code = "content_io"

	CodeValidation          Code = "validation"
	CodeSelfReference       Code = "self_reference"
	CodeUnknownDocument     Code = "unknown_document"
	CodeConflict            Code = "conflict"
	CodeUnresolvedReference Code = "unresolved_reference"
	CodeTimeout             Code = "timeout"
	CodeInternal            Code = "internal"
)

// Error is a coded error with an optional cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a coded error without a cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to err. Wrapping nil returns nil.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf returns the code of the outermost coded error in err's chain, or
// CodeInternal when err carries no code. A nil error has no code.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return CodeTimeout
	}
	return CodeInternal
}

// HasCode reports whether the outermost coded error in err's chain has code.
func HasCode(err error, code Code) bool {
	var coded *Error
	if !errors.As(err, &coded) {
		return false
	}
	return coded.Code == code
}

// Is is an alias of HasCode kept for call sites that read better with it.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// IsTransient reports whether err is an I/O failure that an idempotent
// caller may retry. Everything else propagates verbatim.
func IsTransient(err error) bool {
	code := CodeOf(err)
	return code == CodeStorageIO || code == CodeContentIO
}
