package apperr

import (
	"context"
	"errors"
	"net/http"
)

// Code is a stable, client-facing error classification.
type Code string

const (
	NotFound     Code = "not_found"
	InvalidState Code = "invalid_state"
	Validation   Code = "validation_error"
	Forbidden    Code = "forbidden"
	Conflict     Code = "conflict"
	Transient    Code = "transient_failure"
	Internal     Code = "internal"
)

// Kind sentinels match any *Error carrying the same code.
var (
	ErrNotFound     = &Error{Code: NotFound}
	ErrInvalidState = &Error{Code: InvalidState}
	ErrValidation   = &Error{Code: Validation}
	ErrForbidden    = &Error{Code: Forbidden}
	ErrConflict     = &Error{Code: Conflict}
	ErrTransient    = &Error{Code: Transient}
)

// Error is a classified application error.
type Error struct {
	Code    Code
	Message string
	Err     error
}

// New builds a classified error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap classifies err under code, keeping it in the chain.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports a match against kind sentinels by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	if t.Message == "" && t.Err == nil {
		return t.Code == e.Code
	}
	return t == e
}

// CodeOf returns the classification of err.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Transient
	}
	return Internal
}

// MessageOf returns the client-safe message for err.
func MessageOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Code != Internal && appErr.Message != "" {
		return appErr.Message
	}
	switch CodeOf(err) {
	case Transient:
		return "temporary failure, retry later"
	default:
		return "internal error"
	}
}

// HTTPStatus maps a code to a response status.
func HTTPStatus(code Code) int {
	switch code {
	case NotFound:
		return http.StatusNotFound
	case InvalidState, Conflict:
		return http.StatusConflict
	case Validation:
		return http.StatusBadRequest
	case Forbidden:
		return http.StatusForbidden
	case Transient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
