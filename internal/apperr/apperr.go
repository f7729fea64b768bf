package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindNotFound       Kind = "not_found"
	KindValidation     Kind = "validation"
	KindConflict       Kind = "conflict"
	KindRetryExhausted Kind = "retry_exhausted"
	KindInvalidCode    Kind = "invalid_code"
	KindDependency     Kind = "dependency"
	KindUnauthorized   Kind = "unauthorized"
	KindForbidden      Kind = "forbidden"
	KindRateLimited    Kind = "rate_limited"
	KindInternal       Kind = "internal"
)

// InvalidCodeMessage is the only message a caller ever sees for a QR payload that fails to decrypt.
const InvalidCodeMessage = "invalid or tampered code"

// Error is the typed error every service returns to the HTTP layer.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func NotFound(message string) *Error {
	return New(KindNotFound, message, nil)
}

func Validation(message string) *Error {
	return New(KindValidation, message, nil)
}

// ValidationWrap keeps a sentinel reachable through errors.Is.
func ValidationWrap(message string, err error) *Error {
	return New(KindValidation, message, err)
}

func Conflict(message string, err error) *Error {
	return New(KindConflict, message, err)
}

func RetryExhausted(message string, err error) *Error {
	return New(KindRetryExhausted, message, err)
}

func InvalidCode(err error) *Error {
	return New(KindInvalidCode, InvalidCodeMessage, err)
}

func Dependency(message string, err error) *Error {
	return New(KindDependency, message, err)
}

func Unauthorized(message string) *Error {
	return New(KindUnauthorized, message, nil)
}

func Forbidden(message string) *Error {
	return New(KindForbidden, message, nil)
}

func RateLimited(message string) *Error {
	return New(KindRateLimited, message, nil)
}

func Internal(message string, err error) *Error {
	return New(KindInternal, message, err)
}

// KindOf returns the kind of the first *Error in the chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation, KindInvalidCode:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindRetryExhausted:
		return http.StatusServiceUnavailable
	case KindDependency:
		return http.StatusBadGateway
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is safe to send to a client. Internal causes are never exposed.
func PublicMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) || e.Kind == KindInternal {
		return "internal server error"
	}
	if e.Kind == KindInvalidCode {
		return InvalidCodeMessage
	}
	return e.Message
}
