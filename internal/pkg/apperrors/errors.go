package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorType string

const (
	ErrRateLimited    ErrorType = "RATE_LIMITED"
	ErrUnauthorized   ErrorType = "UNAUTHORIZED"
	ErrForbidden      ErrorType = "FORBIDDEN"
	ErrReadOnly       ErrorType = "READ_ONLY"
	ErrAuditDisabled  ErrorType = "AUDIT_DISABLED"
	ErrArchiveFailed  ErrorType = "ARCHIVE_FAILED"
	ErrInvalidRequest ErrorType = "INVALID_REQUEST"
	ErrInternal       ErrorType = "INTERNAL_ERROR"
	ErrNotFound       ErrorType = "NOT_FOUND"
	ErrUpstream       ErrorType = "UPSTREAM_ERROR"
)

// AppError is the standard error struct for the application
type AppError struct {
	Type       ErrorType `json:"code"`
	Message    string    `json:"message"`
	Suggestion string    `json:"suggestion,omitempty"`
	HTTPStatus int       `json:"-"`
	Cause      error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(errType ErrorType, msg string, cause error) *AppError {
	return &AppError{
		Type:       errType,
		Message:    msg,
		Cause:      cause,
		HTTPStatus: mapTypeToStatus(errType),
		Suggestion: mapTypeToSuggestion(errType),
	}
}

func NewInvalidRequest(msg string) *AppError {
	return New(ErrInvalidRequest, msg, nil)
}

func NewForbidden(msg string) *AppError {
	return New(ErrForbidden, msg, nil)
}

func NewUnauthorized(msg string) *AppError {
	return New(ErrUnauthorized, msg, nil)
}

func NewNotFound(msg string) *AppError {
	return New(ErrNotFound, msg, nil)
}

func Wrap(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return New(ErrInternal, err.Error(), err)
}

// StatusOf returns the HTTP status an error renders with.
func StatusOf(err error) int {
	if err == nil {
		return http.StatusOK
	}
	return Wrap(err).HTTPStatus
}

func mapTypeToStatus(t ErrorType) int {
	switch t {
	case ErrInvalidRequest:
		return http.StatusBadRequest
	case ErrUnauthorized:
		return http.StatusUnauthorized
	case ErrForbidden, ErrReadOnly:
		return http.StatusForbidden
	case ErrRateLimited:
		return http.StatusTooManyRequests
	case ErrAuditDisabled:
		return http.StatusConflict
	case ErrNotFound:
		return http.StatusNotFound
	case ErrArchiveFailed, ErrUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func mapTypeToSuggestion(t ErrorType) string {
	switch t {
	case ErrRateLimited:
		return "Slow down and retry in the next minute."
	case ErrForbidden:
		return "Check the roles assigned to the calling user."
	case ErrReadOnly:
		return "Unset admin.read_only to change audit settings."
	case ErrAuditDisabled:
		return "Enable API audit in the settings first."
	case ErrArchiveFailed:
		return "Check blob storage credentials, nothing was deleted."
	default:
		return ""
	}
}

// IsType reports whether err wraps an AppError of type t.
func IsType(err error, t ErrorType) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Type == t
}
