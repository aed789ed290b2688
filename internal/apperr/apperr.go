// Package apperr defines the closed set of error kinds the API can return.
// Errors are classified where they happen; handlers only translate a Kind
// into an HTTP status.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindInvalidTransition
	KindGatewayUnavailable
	KindSignatureMismatch
	KindGateway
	KindRateLimited
	KindChannelFailure
)

var kindNames = map[Kind]string{
	KindInternal:           "internal",
	KindValidation:         "validation",
	KindUnauthorized:       "unauthorized",
	KindForbidden:          "forbidden",
	KindNotFound:           "not_found",
	KindConflict:           "conflict",
	KindInvalidTransition:  "invalid_transition",
	KindGatewayUnavailable: "gateway_unavailable",
	KindSignatureMismatch:  "signature_mismatch",
	KindGateway:            "gateway_error",
	KindRateLimited:        "rate_limited",
	KindChannelFailure:     "channel_failure",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// HTTPStatus maps a kind to its response status. ChannelFailure is never
// meant to reach a client and falls back to 500 like any unclassified error.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation, KindGatewayUnavailable, KindSignatureMismatch:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict, KindInvalidTransition:
		return http.StatusConflict
	case KindGateway:
		return http.StatusBadGateway
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

type Error struct {
	Kind    Kind
	Message string
	Fields  []string
	Err     error
	Stack   []byte
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind so callers can write errors.Is(err, apperr.ErrNotFound).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons.
var (
	ErrValidation         = &Error{Kind: KindValidation}
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrInvalidTransition  = &Error{Kind: KindInvalidTransition}
	ErrGatewayUnavailable = &Error{Kind: KindGatewayUnavailable}
	ErrSignatureMismatch  = &Error{Kind: KindSignatureMismatch}
)

func Validation(message string, fields ...string) *Error {
	return &Error{Kind: KindValidation, Message: message, Fields: fields}
}

func Unauthorized(message string) *Error {
	return &Error{Kind: KindUnauthorized, Message: message}
}

func Forbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Message: message}
}

func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

func Conflict(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

func InvalidTransition(from, to string) *Error {
	return &Error{
		Kind:    KindInvalidTransition,
		Message: fmt.Sprintf("cannot transition from %s to %s", from, to),
	}
}

func GatewayUnavailable(message string) *Error {
	return &Error{Kind: KindGatewayUnavailable, Message: message}
}

func SignatureMismatch(message string) *Error {
	return &Error{Kind: KindSignatureMismatch, Message: message}
}

func Gateway(message string, err error) *Error {
	return &Error{Kind: KindGateway, Message: message, Err: err}
}

func RateLimited(message string) *Error {
	return &Error{Kind: KindRateLimited, Message: message}
}

func ChannelFailure(channel string, err error) *Error {
	return &Error{Kind: KindChannelFailure, Message: channel + " delivery failed", Err: err}
}

// Internal wraps an unexpected error and records the stack at the point of
// failure. An error that is already classified is returned unchanged.
func Internal(message string, err error) *Error {
	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}
	return &Error{Kind: KindInternal, Message: message, Err: err, Stack: debug.Stack()}
}

// KindOf reports the kind of err; unclassified errors are internal.
func KindOf(err error) Kind {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	return KindInternal
}

// As returns the classified form of err, wrapping unclassified errors as
// internal.
func As(err error) *Error {
	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}
	return Internal("unexpected error", err)
}
