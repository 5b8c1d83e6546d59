// Package apperr defines the error kinds shared by the portal services and
// their mapping onto HTTP status codes.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Kind classifies an error by how the caller is expected to react to it.
type Kind string

const (
	KindValidation  Kind = "validation"
	KindAuth        Kind = "auth"
	KindWrite       Kind = "write"
	KindDispatch    Kind = "dispatch"
	KindNotFound    Kind = "not_found"
	KindUnavailable Kind = "unavailable"
)

// Error is a classified error. Op names the operation that failed
// (e.g. "visit.finalize") and Err carries the collaborator's cause.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Validation reports bad caller input. No state was changed.
func Validation(op, format string, args ...interface{}) error {
	return &Error{Kind: KindValidation, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Auth reports rejected credentials or an invalid session.
func Auth(op, msg string) error {
	return &Error{Kind: KindAuth, Op: op, Msg: msg}
}

// Write wraps a failed write to a store.
func Write(op, msg string, err error) error {
	return &Error{Kind: KindWrite, Op: op, Msg: msg, Err: err}
}

// Dispatch wraps a failed notification delivery.
func Dispatch(op, msg string, err error) error {
	return &Error{Kind: KindDispatch, Op: op, Msg: msg, Err: err}
}

// NotFound reports an absent profile or record.
func NotFound(op, msg string) error {
	return &Error{Kind: KindNotFound, Op: op, Msg: msg}
}

// Unavailable wraps a failed read that is not a "not found".
func Unavailable(op, msg string, err error) error {
	return &Error{Kind: KindUnavailable, Op: op, Msg: msg, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "" when
// err carries no classification.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsTimeout reports whether err was caused by an exceeded deadline.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}

// Status maps a kind onto an HTTP status code.
func Status(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindWrite, KindDispatch:
		return http.StatusBadGateway
	case KindUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// HTTPError converts err into an echo.HTTPError carrying the kind so clients
// can tell a failed archive from a failed email.
func HTTPError(err error) *echo.HTTPError {
	kind := KindOf(err)
	if kind == "" {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}
	var ae *Error
	errors.As(err, &ae)
	msg := ae.Msg
	if IsTimeout(err) {
		msg += " (timed out)"
	}
	return echo.NewHTTPError(Status(kind), map[string]string{
		"kind":    string(kind),
		"message": msg,
	})
}
