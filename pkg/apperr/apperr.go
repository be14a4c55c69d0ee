// Package apperr defines the error kinds returned by the enrollment services.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers.
type Kind string

const (
	KindInvalidArgument    Kind = "invalid_argument"
	KindNotFound           Kind = "not_found"
	KindConflict           Kind = "conflict"
	KindPolicyViolation    Kind = "policy_violation"
	KindPersistenceFailure Kind = "persistence_failure"
)

// Details attached to capacity rejections.
const (
	DetailDuplicate      = "duplicate_registration"
	DetailEventFull      = "event_full"
	DetailWaitlistClosed = "waitlist_closed"
)

// Kind sentinels, usable with errors.Is.
var (
	ErrInvalidArgument    = &Error{Kind: KindInvalidArgument}
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrConflict           = &Error{Kind: KindConflict}
	ErrPolicyViolation    = &Error{Kind: KindPolicyViolation}
	ErrPersistenceFailure = &Error{Kind: KindPersistenceFailure}
)

// Error is a typed error with a human-readable message.
type Error struct {
	Kind    Kind
	Message string
	Detail  string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, and the detail when the target sets one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Detail == "" || t.Detail == e.Detail
}

// WithDetail returns a copy of e carrying detail.
func (e *Error) WithDetail(detail string) *Error {
	c := *e
	c.Detail = detail
	return &c
}

// KindOf returns the kind of err, or "" when err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// DetailOf returns the detail of err, or "".
func DetailOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Detail
	}
	return ""
}

func InvalidArgument(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidArgument, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func PolicyViolation(format string, args ...any) *Error {
	return &Error{Kind: KindPolicyViolation, Message: fmt.Sprintf(format, args...)}
}

// Persistence wraps a storage error. Errors that already carry a kind pass through unchanged.
func Persistence(msg string, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != "" {
		return err
	}
	return &Error{Kind: KindPersistenceFailure, Message: msg, Err: err}
}
