// Package errs defines the client-visible error kinds shared by the
// services and mapped to JSON-RPC codes by the API layer.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the caller.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalid
	KindNotFound
	KindForbidden
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "invalid"
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// Error is a client-visible failure.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func newf(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Invalid reports malformed input.
func Invalid(format string, args ...interface{}) error {
	return newf(KindInvalid, format, args...)
}

// NotFound reports a missing entity.
func NotFound(format string, args ...interface{}) error {
	return newf(KindNotFound, format, args...)
}

// Forbidden reports a caller without the required identity or role.
func Forbidden(format string, args ...interface{}) error {
	return newf(KindForbidden, format, args...)
}

// Conflict reports a write that lost too many concurrent races.
func Conflict(format string, args ...interface{}) error {
	return newf(KindConflict, format, args...)
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}
