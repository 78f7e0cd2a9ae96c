package api

import (
	"errors"
	"fmt"

	"github.com/agora-forum/agora/internal/errs"
)

// Standard JSON-RPC error codes
const (
	ErrParseError     = -32700
	ErrInvalidRequest = -32600
	ErrMethodNotFound = -32601
	ErrInvalidParams  = -32602
	ErrInternalError  = -32603
	ErrServerError    = -32000
	ErrForbidden      = -32003
	ErrNotFound       = -32004
	ErrConflict       = -32009
)

// Error represents an API error
type Error struct {
	Code    int
	Message string
}

// NewError creates a new API error
func NewError(code int, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Code, e.Message)
}

// classify maps a handler error onto a JSON-RPC code, message and the
// detail safe to show the caller.
func classify(err error) (code int, message, detail string) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Code, apiErr.Message, apiErr.Message
	}

	var e *errs.Error
	if errors.As(err, &e) {
		switch e.Kind {
		case errs.KindInvalid:
			return ErrInvalidParams, "Invalid params", e.Message
		case errs.KindNotFound:
			return ErrNotFound, "Not found", e.Message
		case errs.KindForbidden:
			return ErrForbidden, "Forbidden", e.Message
		case errs.KindConflict:
			return ErrConflict, "Conflict", e.Message
		}
	}
	return ErrServerError, "Server error", "internal error"
}
