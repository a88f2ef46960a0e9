package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is the single error shape that crosses the handler boundary. Lower
// layers return sentinel errors; handlers wrap them into an Error carrying the
// HTTP status and a client-safe code and message. Anything that is not an
// Error surfaces as a generic 500 with the cause logged server-side only.
type Error struct {
	Status  int
	Code    string
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

func Validation(message string) *Error {
	return &Error{Status: http.StatusBadRequest, Code: "VALIDATION_ERROR", Message: message}
}

func Unauthorized(message string) *Error {
	return &Error{Status: http.StatusUnauthorized, Code: "UNAUTHORIZED", Message: message}
}

func Conflict(message string) *Error {
	return &Error{Status: http.StatusConflict, Code: "CONFLICT", Message: message}
}

func NotFound(message string) *Error {
	return &Error{Status: http.StatusNotFound, Code: "NOT_FOUND", Message: message}
}

func Upstream(message string) *Error {
	return &Error{Status: http.StatusBadGateway, Code: "UPSTREAM_ERROR", Message: message}
}

func Internal(cause error) *Error {
	return &Error{Status: http.StatusInternalServerError, Code: "INTERNAL_ERROR", Message: "internal error", cause: cause}
}

// From returns err as an *Error, wrapping unknown errors as Internal.
func From(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return Internal(err)
}
