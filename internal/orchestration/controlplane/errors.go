package controlplane

import (
	"errors"
	"fmt"
)

// ErrorCode classifies an operation failure for the transport layer.
type ErrorCode string

const (
	CodeBadRequest ErrorCode = "bad_request"
	CodeNotFound   ErrorCode = "not_found"
	CodeInternal   ErrorCode = "internal"
)

// Error is an operation failure carrying a code the API layer maps onto
// an HTTP status. The message is returned to callers verbatim.
type Error struct {
	Code    ErrorCode
	Message string
}

func (e *Error) Error() string { return e.Message }

// BadRequest builds a validation failure.
func BadRequest(format string, args ...any) error {
	return &Error{Code: CodeBadRequest, Message: fmt.Sprintf(format, args...)}
}

// NotFound builds a missing-entity failure.
func NotFound(format string, args ...any) error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// Internal builds a server-side failure.
func Internal(format string, args ...any) error {
	return &Error{Code: CodeInternal, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the code from an operation error. Errors that carry no
// code are treated as internal.
func CodeOf(err error) ErrorCode {
	var opErr *Error
	if errors.As(err, &opErr) {
		return opErr.Code
	}
	return CodeInternal
}
