// Package apperror defines the error kinds surfaced by the API and how they map to HTTP status codes.
package apperror

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
)

// Kind classifies an application error.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuth
	KindForbidden
	KindNotFound
	KindConflict
	KindIntegrity
	KindDownstream
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindIntegrity:
		return "integrity"
	case KindDownstream:
		return "downstream"
	default:
		return "internal"
	}
}

// Error is an application error with a short client-safe message.
// Err carries the underlying cause for logs and is never sent to clients.
type Error struct {
	Kind    Kind
	Message string
	Status  int // overrides the kind's default status when non-zero
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

// HTTPStatus returns the status code for the error.
func (e *Error) HTTPStatus() int {
	if e.Status != 0 {
		return e.Status
	}
	switch e.Kind {
	case KindValidation, KindConflict, KindIntegrity:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func Validation(message string) error {
	return &Error{Kind: KindValidation, Message: message}
}

func Auth(message string) error {
	return &Error{Kind: KindAuth, Message: message}
}

func Forbidden(message string) error {
	return &Error{Kind: KindForbidden, Message: message}
}

func NotFound(message string) error {
	return &Error{Kind: KindNotFound, Message: message}
}

// Conflict is a state conflict (duplicate, capacity, already issued). status 0 means 400.
func Conflict(message string, status int) error {
	return &Error{Kind: KindConflict, Message: message, Status: status}
}

// Integrity is a failed payment proof or amount check.
func Integrity(message string) error {
	return &Error{Kind: KindIntegrity, Message: message}
}

// Downstream wraps a failure of an external collaborator (gateway, renderer, storage).
func Downstream(message string, err error) error {
	return &Error{Kind: KindDownstream, Message: message, Err: err}
}

// Internal wraps an unexpected failure.
func Internal(message string, err error) error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// From converts any error into an *Error. pgx.ErrNoRows becomes NotFound.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return &Error{Kind: KindNotFound, Message: "not found", Err: err}
	}
	return &Error{Kind: KindInternal, Message: "internal server error", Err: err}
}

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	if e := From(err); e != nil {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Kind == kind
}
