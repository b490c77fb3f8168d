// FilePath: internal/errors/errors.go
package errors

import (
	"fmt"
	"net/http"

	"github.com/itsatony/relayhub/internal/protocol"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// Error types
	ErrorTypeProtocol    ErrorType = "protocol"
	ErrorTypeValidation  ErrorType = "validation"
	ErrorTypeAuth        ErrorType = "authentication"
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeNotAllowed  ErrorType = "not_allowed"
	ErrorTypeStorage     ErrorType = "storage"
	ErrorTypeInternal    ErrorType = "internal"
	ErrorTypeUnavailable ErrorType = "service_unavailable"
)

// Error is a structured error carried through both the admin API (HTTP
// code) and the framed protocol (wire status).
type Error struct {
	Type      ErrorType `json:"type"`
	Message   string    `json:"message"`
	Code      int       `json:"code"`
	RequestID string    `json:"request_id,omitempty"`
	Details   any       `json:"details,omitempty"`
	err       error     // Internal error for logging
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s (internal: %v)", e.Type, e.Message, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap exposes the wrapped cause.
func (e *Error) Unwrap() error { return e.err }

// WithRequestID adds a request ID to the error
func (e *Error) WithRequestID(id string) *Error {
	e.RequestID = id
	return e
}

// WithDetails adds additional details to the error
func (e *Error) WithDetails(details any) *Error {
	e.Details = details
	return e
}

// NewProtocolError creates an error for a malformed or unparseable
// command body.
func NewProtocolError(msg string, err error) *Error {
	return &Error{
		Type:    ErrorTypeProtocol,
		Message: msg,
		Code:    http.StatusBadRequest,
		err:     err,
	}
}

// NewValidationError creates a new validation error
func NewValidationError(msg string, err error) *Error {
	return &Error{
		Type:    ErrorTypeValidation,
		Message: msg,
		Code:    http.StatusBadRequest,
		err:     err,
	}
}

// NewAuthError creates a new authentication error
func NewAuthError(msg string, err error) *Error {
	return &Error{
		Type:    ErrorTypeAuth,
		Message: msg,
		Code:    http.StatusUnauthorized,
		err:     err,
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(msg string, err error) *Error {
	return &Error{
		Type:    ErrorTypeNotFound,
		Message: msg,
		Code:    http.StatusNotFound,
		err:     err,
	}
}

// NewNotAllowedError creates an error for an operation the peer may not
// perform in its current state.
func NewNotAllowedError(msg string, err error) *Error {
	return &Error{
		Type:    ErrorTypeNotAllowed,
		Message: msg,
		Code:    http.StatusForbidden,
		err:     err,
	}
}

// NewStorageError creates an error for a failed repository operation.
func NewStorageError(msg string, err error) *Error {
	return &Error{
		Type:    ErrorTypeStorage,
		Message: msg,
		Code:    http.StatusInternalServerError,
		err:     err,
	}
}

// NewInternalError creates a new internal server error
func NewInternalError(msg string, err error) *Error {
	return &Error{
		Type:    ErrorTypeInternal,
		Message: msg,
		Code:    http.StatusInternalServerError,
		err:     err,
	}
}

// NewUnavailableError creates an error for a temporarily unreachable
// collaborator (mail, push, database).
func NewUnavailableError(msg string, err error) *Error {
	return &Error{
		Type:    ErrorTypeUnavailable,
		Message: msg,
		Code:    http.StatusServiceUnavailable,
		err:     err,
	}
}

// IsNotFound checks if an error is a NotFound error
func IsNotFound(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Type == ErrorTypeNotFound
	}
	return false
}

// IsProtocol checks if an error is a protocol error
func IsProtocol(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Type == ErrorTypeProtocol
	}
	return false
}

// WireStatus maps an error to the negative acknowledgement status of the
// framed protocol.
func WireStatus(err error) uint16 {
	e, ok := err.(*Error)
	if !ok {
		return protocol.StatusServerError
	}
	switch e.Type {
	case ErrorTypeProtocol:
		return protocol.StatusIllegalCommandBody
	case ErrorTypeValidation, ErrorTypeNotFound:
		return protocol.StatusIllegalCommand
	case ErrorTypeAuth:
		return protocol.StatusInvalidToken
	case ErrorTypeNotAllowed, ErrorTypeUnavailable:
		return protocol.StatusNotAllowed
	default:
		return protocol.StatusServerError
	}
}
