package chat

import (
	"errors"
	"fmt"

	"github.com/Youssefbenarbiya/booki-relay/pkg/protocol"
)

// Code classifies relay failures. Values double as protocol error codes.
type Code string

const (
	CodeInvalidHandshake    Code = protocol.ErrCodeInvalidHandshake
	CodeEmptyContent        Code = protocol.ErrCodeEmptyContent
	CodeContentTooLong      Code = protocol.ErrCodeContentTooLong
	CodeRecipientUnresolved Code = protocol.ErrCodeRecipientUnresolved
	CodePersistence         Code = protocol.ErrCodePersistence
	CodeListingLookup       Code = protocol.ErrCodeListingLookup
	CodeSocket              Code = protocol.ErrCodeSocket
	CodeRateLimited         Code = protocol.ErrCodeRateLimited
	CodeUnknownEvent        Code = protocol.ErrCodeUnknownEvent
	CodeInternal            Code = protocol.ErrCodeInternal
)

// Error is a classified relay failure. Reason is safe to show to clients;
// Err carries the underlying cause for logs.
type Error struct {
	Code   Code
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same code, so errors.Is(err, ErrRecipientUnresolved)
// works regardless of reason or cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Sentinels for errors.Is.
var (
	ErrInvalidHandshake    = &Error{Code: CodeInvalidHandshake}
	ErrEmptyContent        = &Error{Code: CodeEmptyContent}
	ErrContentTooLong      = &Error{Code: CodeContentTooLong}
	ErrRecipientUnresolved = &Error{Code: CodeRecipientUnresolved}
	ErrPersistence         = &Error{Code: CodePersistence}
	ErrListingLookup       = &Error{Code: CodeListingLookup}
	ErrSocket              = &Error{Code: CodeSocket}
	ErrRateLimited         = &Error{Code: CodeRateLimited}
	ErrUnknownEvent        = &Error{Code: CodeUnknownEvent}
)

// Errorf builds a classified error with a client-facing reason.
func Errorf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Reason: fmt.Sprintf(format, args...)}
}

// Wrap classifies cause under code.
func Wrap(code Code, reason string, cause error) *Error {
	return &Error{Code: code, Reason: reason, Err: cause}
}

// CodeOf extracts the classification of err; unclassified errors are Internal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// ReasonOf returns the client-facing reason of err. Unclassified errors
// never leak their text to clients.
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Reason != "" {
		return e.Reason
	}
	return "internal error"
}
