// Package apperror defines the single application error contract shared across
// the toolkit: a stable code, an HTTP status hint, structured details, and an
// optional wrapped cause. The error kinds surfaced by the CRUD layer (not found,
// unauthorized, validation, conflict, backend) are all AppError values so hosts
// can map them without type switches per layer.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Stable error codes. Hosts may localize on these; the code never changes
// even if the fallback message does.
const (
	CodeNotFound     = "resource.not_found"
	CodeUnauthorized = "auth.unauthorized"
	CodeForbidden    = "auth.forbidden"
	CodeValidation   = "validation.failed"
	CodeConflict     = "resource.conflict"
	CodeBackend      = "backend.failure"
	CodeInternal     = "internal.error"
)

// AppError is the error contract: stable code + optional details + wrapped cause.
type AppError struct {
	Code            string
	FallbackMessage string
	Details         map[string]interface{}
	HTTPStatus      int
	Cause           error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	label := e.Code
	if e.FallbackMessage != "" {
		label = e.FallbackMessage
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", label, e.Cause)
	}
	return label
}

// Unwrap exposes the wrapped cause for errors.Is / errors.As.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// WithMessage sets a non-localized fallback message.
func (e *AppError) WithMessage(message string) *AppError {
	if e == nil {
		return nil
	}
	e.FallbackMessage = message
	return e
}

// WithDetails sets structured error details.
func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	if e == nil {
		return nil
	}
	e.Details = details
	return e
}

// WithCause wraps an underlying error.
func (e *AppError) WithCause(cause error) *AppError {
	if e == nil {
		return nil
	}
	e.Cause = cause
	return e
}

func newError(code, message string, status int) *AppError {
	return &AppError{
		Code:            code,
		FallbackMessage: message,
		HTTPStatus:      status,
	}
}

// NewNotFound creates a not-found error. Used by get/update/delete when the
// target record does not exist; never downgraded to a nil result.
func NewNotFound(message string) *AppError {
	return newError(CodeNotFound, message, http.StatusNotFound)
}

// NewUnauthorized creates an unauthorized error for restriction violations
// and insufficient-role failures.
func NewUnauthorized(message string) *AppError {
	return newError(CodeUnauthorized, message, http.StatusUnauthorized)
}

// NewForbidden creates a forbidden error.
func NewForbidden(message string) *AppError {
	return newError(CodeForbidden, message, http.StatusForbidden)
}

// NewValidation creates a validation error carrying the full field -> constraint
// map. Callers aggregate every violation before constructing it rather than
// failing on the first field.
func NewValidation(message string, fields map[string]interface{}) *AppError {
	return newError(CodeValidation, message, http.StatusBadRequest).WithDetails(fields)
}

// NewConflict creates a conflict error, typically from a duplicate-key write.
func NewConflict(message string, cause error) *AppError {
	return newError(CodeConflict, message, http.StatusConflict).WithCause(cause)
}

// NewBackend wraps a backend failure. Retry policy belongs to the adapter,
// so the cause is propagated untouched.
func NewBackend(message string, cause error) *AppError {
	return newError(CodeBackend, message, http.StatusInternalServerError).WithCause(cause)
}

// NewInternal creates an internal error with optional cause.
func NewInternal(message string, cause error) *AppError {
	return newError(CodeInternal, message, http.StatusInternalServerError).WithCause(cause)
}

// CodeOf returns the AppError code of err, or empty when err is not an AppError.
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// IsNotFound reports whether err is a not-found AppError.
func IsNotFound(err error) bool {
	return CodeOf(err) == CodeNotFound
}

// IsUnauthorized reports whether err is an unauthorized AppError.
func IsUnauthorized(err error) bool {
	return CodeOf(err) == CodeUnauthorized
}

// IsValidation reports whether err is a validation AppError.
func IsValidation(err error) bool {
	return CodeOf(err) == CodeValidation
}

// IsConflict reports whether err is a conflict AppError.
func IsConflict(err error) bool {
	return CodeOf(err) == CodeConflict
}
