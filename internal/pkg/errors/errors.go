// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2025-2026 timegrid contributors
// https://github.com/veliq/timegrid

// Package errors provides the application error taxonomy: structured
// AppError values with machine-readable codes and HTTP status mapping,
// sentinel errors for quick comparisons, and typed errors for errors.As.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Machine-readable error codes.
const (
	CodeInternal         = "INTERNAL"
	CodeNotFound         = "NOT_FOUND"
	CodeBadRequest       = "BAD_REQUEST"
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeForbidden        = "FORBIDDEN"
	CodeConflict         = "CONFLICT"
	CodeTimeout          = "TIMEOUT"
	CodeUnavailable      = "SERVICE_UNAVAILABLE"
	CodeRateLimited      = "RATE_LIMITED"
	CodeDatabaseError    = "DATABASE_ERROR"
)

// Sentinel errors for errors.Is comparisons across layers.
var (
	ErrNotFound           = errors.New("not found")
	ErrAlreadyExists      = errors.New("already exists")
	ErrInvalidInput       = errors.New("invalid input")
	ErrValidation         = errors.New("validation failed")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrInternal           = errors.New("internal error")
	ErrTimeout            = errors.New("timeout")
	ErrConflict           = errors.New("conflict")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrRateLimited        = errors.New("rate limited")
)

// AppError is a structured application error carrying a code, a
// human-readable message, an HTTP status, optional details, and an optional
// wrapped cause.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]interface{}
	Err        error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the wrapped cause, if any.
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetails sets the details map and returns the error for chaining.
func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	e.Details = details
	return e
}

// WithDetail sets a single detail key and returns the error for chaining.
func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithHTTPStatus overrides the HTTP status and returns the error for chaining.
func (e *AppError) WithHTTPStatus(status int) *AppError {
	e.HTTPStatus = status
	return e
}

// New creates an AppError with the default 500 status.
func New(code, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
	}
}

// Newf creates an AppError with a formatted message.
func Newf(code, format string, args ...interface{}) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

// NewWithStatus creates an AppError with an explicit HTTP status.
func NewWithStatus(code, message string, status int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: status,
	}
}

// Wrap creates an AppError around an existing error.
func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// WrapWithStatus creates a wrapping AppError with an explicit HTTP status.
func WrapWithStatus(err error, code, message string, status int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: status,
		Err:        err,
	}
}

// ============================================================================
// Convenience constructors
// ============================================================================

// NotFound returns a 404 AppError for the named resource.
func NotFound(resource string) *AppError {
	return NewWithStatus(CodeNotFound, resource+" not found", http.StatusNotFound)
}

// AlreadyExists returns a 409 AppError for the named resource.
func AlreadyExists(resource string) *AppError {
	return NewWithStatus(CodeConflict, resource+" already exists", http.StatusConflict)
}

// InvalidInput returns a 400 AppError.
func InvalidInput(message string) *AppError {
	return NewWithStatus(CodeBadRequest, message, http.StatusBadRequest)
}

// Unauthorized returns a 401 AppError.
func Unauthorized(message string) *AppError {
	return NewWithStatus(CodeUnauthorized, message, http.StatusUnauthorized)
}

// Forbidden returns a 403 AppError.
func Forbidden(message string) *AppError {
	return NewWithStatus(CodeForbidden, message, http.StatusForbidden)
}

// Internal returns a 500 AppError.
func Internal(message string) *AppError {
	return NewWithStatus(CodeInternal, message, http.StatusInternalServerError)
}

// ValidationFailed returns a 400 AppError carrying per-field messages.
func ValidationFailed(fields map[string]string) *AppError {
	ae := NewWithStatus(CodeValidationFailed, "validation failed", http.StatusBadRequest)
	for field, msg := range fields {
		ae.WithDetail(field, msg)
	}
	return ae
}

// ============================================================================
// Typed errors
// ============================================================================

// NotFoundError indicates a missing resource.
type NotFoundError struct{ *AppError }

// AlreadyExistsError indicates a uniqueness conflict.
type AlreadyExistsError struct{ *AppError }

// ValidationError indicates invalid caller-supplied input.
type ValidationError struct{ *AppError }

// UnauthorizedError indicates missing or invalid credentials.
type UnauthorizedError struct{ *AppError }

// ForbiddenError indicates insufficient permissions.
type ForbiddenError struct{ *AppError }

// ConflictError indicates a state conflict.
type ConflictError struct{ *AppError }

// InternalError indicates an unexpected server-side failure.
type InternalError struct{ *AppError }

// Unwrap exposes the embedded AppError so errors.As finds it in the chain.
func (e *NotFoundError) Unwrap() error      { return e.AppError }
func (e *AlreadyExistsError) Unwrap() error { return e.AppError }
func (e *ValidationError) Unwrap() error    { return e.AppError }
func (e *UnauthorizedError) Unwrap() error  { return e.AppError }
func (e *ForbiddenError) Unwrap() error     { return e.AppError }
func (e *ConflictError) Unwrap() error      { return e.AppError }
func (e *InternalError) Unwrap() error      { return e.AppError }

// NewNotFoundError creates a typed not-found error for the named resource.
func NewNotFoundError(resource string) *NotFoundError {
	return &NotFoundError{NotFound(resource)}
}

// NewAlreadyExistsError creates a typed conflict error for the named resource.
func NewAlreadyExistsError(resource string) *AlreadyExistsError {
	return &AlreadyExistsError{AlreadyExists(resource)}
}

// NewValidationError creates a typed validation error.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{NewWithStatus(CodeValidationFailed, message, http.StatusBadRequest)}
}

// NewUnauthorizedError creates a typed unauthorized error.
func NewUnauthorizedError(message string) *UnauthorizedError {
	return &UnauthorizedError{Unauthorized(message)}
}

// NewForbiddenError creates a typed forbidden error.
func NewForbiddenError(message string) *ForbiddenError {
	return &ForbiddenError{Forbidden(message)}
}

// NewConflictError creates a typed conflict error.
func NewConflictError(message string) *ConflictError {
	return &ConflictError{NewWithStatus(CodeConflict, message, http.StatusConflict)}
}

// NewInternalError creates a typed internal error.
func NewInternalError(message string) *InternalError {
	return &InternalError{Internal(message)}
}

// ============================================================================
// Inspection helpers
// ============================================================================

// GetAppError extracts an *AppError from anywhere in the error chain.
func GetAppError(err error) (*AppError, bool) {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// IsNotFoundError reports whether err represents a missing resource.
func IsNotFoundError(err error) bool {
	var nfe *NotFoundError
	if errors.As(err, &nfe) {
		return true
	}
	if ae, ok := GetAppError(err); ok && ae.Code == CodeNotFound {
		return true
	}
	return errors.Is(err, ErrNotFound)
}

// IsConflictError reports whether err represents a conflict.
func IsConflictError(err error) bool {
	var aee *AlreadyExistsError
	var ce *ConflictError
	if errors.As(err, &aee) || errors.As(err, &ce) {
		return true
	}
	if ae, ok := GetAppError(err); ok && ae.Code == CodeConflict {
		return true
	}
	return errors.Is(err, ErrAlreadyExists) || errors.Is(err, ErrConflict)
}

// IsValidationError reports whether err represents invalid input.
func IsValidationError(err error) bool {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return true
	}
	if ae, ok := GetAppError(err); ok && (ae.Code == CodeBadRequest || ae.Code == CodeValidationFailed) {
		return true
	}
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrInvalidInput)
}

// IsUnauthorizedError reports whether err represents missing credentials.
func IsUnauthorizedError(err error) bool {
	var ue *UnauthorizedError
	if errors.As(err, &ue) {
		return true
	}
	if ae, ok := GetAppError(err); ok && ae.Code == CodeUnauthorized {
		return true
	}
	return errors.Is(err, ErrUnauthorized)
}

// IsForbiddenError reports whether err represents an access denial.
func IsForbiddenError(err error) bool {
	var fe *ForbiddenError
	if errors.As(err, &fe) {
		return true
	}
	if ae, ok := GetAppError(err); ok && ae.Code == CodeForbidden {
		return true
	}
	return errors.Is(err, ErrForbidden)
}

// HTTPStatusCode maps an error to an HTTP status code. AppError statuses win;
// sentinel errors map to their conventional statuses; anything else is a 500.
func HTTPStatusCode(err error) int {
	if ae, ok := GetAppError(err); ok && ae.HTTPStatus != 0 {
		return ae.HTTPStatus
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAlreadyExists), errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Is delegates to errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As delegates to errors.As.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
