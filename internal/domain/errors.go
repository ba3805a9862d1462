package domain

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrSecretNotFound signals a missing vault secret.
	ErrSecretNotFound = errors.New("vault: secret not found")
	// ErrStateNotFound signals a missing or expired authorization state.
	ErrStateNotFound = errors.New("oauth: authorization state not found")
)

// Error is the domain failure taxonomy mapped at the handler boundary. Code
// is a stable machine-readable tag; Message is for humans.
type Error struct {
	Code    string
	Message string
	Status  int
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// AsError extracts a *Error from an error chain.
func AsError(err error) (*Error, bool) {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr, true
	}
	return nil, false
}

func NotFound(format string, args ...any) *Error {
	return &Error{Code: "not_found", Message: fmt.Sprintf(format, args...), Status: http.StatusNotFound}
}

func Conflict(format string, args ...any) *Error {
	return &Error{Code: "conflict", Message: fmt.Sprintf(format, args...), Status: http.StatusConflict}
}

func Validation(format string, args ...any) *Error {
	return &Error{Code: "validation_error", Message: fmt.Sprintf(format, args...), Status: http.StatusBadRequest}
}

func BadRequest(format string, args ...any) *Error {
	return &Error{Code: "bad_request", Message: fmt.Sprintf(format, args...), Status: http.StatusBadRequest}
}

func ServiceUnavailable(message string, err error) *Error {
	return &Error{Code: "service_unavailable", Message: message, Status: http.StatusServiceUnavailable, Err: err}
}

func TokenRefreshFailed(message string, err error) *Error {
	return &Error{Code: "token_refresh_failed", Message: message, Status: http.StatusBadGateway, Err: err}
}

func Internal(message string, err error) *Error {
	return &Error{Code: "internal_error", Message: message, Status: http.StatusInternalServerError, Err: err}
}
