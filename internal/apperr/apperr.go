// Package apperr tags pipeline failures with the kind that decides their
// externally visible status and message.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	KindBadRequest
	KindUnauthorized
	KindExtractionFailed
	KindProviderUnavailable
	KindResponseInvalid
	KindRateLimited
)

func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "bad_request"
	case KindUnauthorized:
		return "unauthorized"
	case KindExtractionFailed:
		return "extraction_failed"
	case KindProviderUnavailable:
		return "provider_unavailable"
	case KindResponseInvalid:
		return "response_invalid"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "internal"
	}
}

// Status is the HTTP status surfaced for the kind.
func (k Kind) Status() int {
	switch k {
	case KindBadRequest, KindExtractionFailed:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindProviderUnavailable:
		return http.StatusServiceUnavailable
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

const (
	MsgGenerateFailed      = "Failed to generate flashcards"
	MsgProviderUnavailable = "AI service temporarily unavailable. Please try again later."
	MsgInternal            = "Internal server error"
)

// Error carries a caller-safe Message; Err holds the detail that is only logged.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func BadRequest(message string) *Error {
	return &Error{Kind: KindBadRequest, Message: message}
}

func Unauthorized(message string) *Error {
	return &Error{Kind: KindUnauthorized, Message: message}
}

func ExtractionFailed(format string, err error) *Error {
	return &Error{
		Kind:    KindExtractionFailed,
		Message: fmt.Sprintf("Failed to parse %s file", format),
		Err:     err,
	}
}

func ProviderUnavailable(err error) *Error {
	return &Error{Kind: KindProviderUnavailable, Message: MsgProviderUnavailable, Err: err}
}

func ResponseInvalid(err error) *Error {
	return &Error{Kind: KindResponseInvalid, Message: MsgGenerateFailed, Err: err}
}

func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: MsgInternal, Err: err}
}

func RateLimited() *Error {
	return &Error{Kind: KindRateLimited, Message: "Too many requests from this IP, please try again later."}
}

// KindOf returns the kind of the first *Error in the chain, or KindInternal.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

func Status(err error) int {
	return KindOf(err).Status()
}

// PublicMessage never exposes the wrapped cause.
func PublicMessage(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return MsgInternal
}
