// Package apperror defines the error kinds returned by the reservation engine
// and their HTTP mapping. Business-rule failures carry a human readable
// message that is returned to the caller verbatim; StoreError hides its cause.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	CodeValidation        = "VALIDATION_ERROR"
	CodeCapacityExceeded  = "CAPACITY_EXCEEDED"
	CodePlanIneligible    = "PLAN_INELIGIBLE"
	CodeInsufficientFunds = "INSUFFICIENT_FUNDS"
	CodeNotFound          = "NOT_FOUND"
	CodeForbidden         = "FORBIDDEN"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeStore             = "STORE_ERROR"
	CodeConflict          = "CONFLICT"
)

type AppError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	HTTPStatus int            `json:"-"`
	Details    map[string]any `json:"details,omitempty"`
	Err        error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) StatusCode() int {
	return e.HTTPStatus
}

// WithDetails returns a copy of e carrying the given details.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

func New(code, message string, httpStatus int) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: httpStatus}
}

func Validation(message string) *AppError {
	return New(CodeValidation, message, http.StatusBadRequest)
}

func Validationf(format string, args ...any) *AppError {
	return Validation(fmt.Sprintf(format, args...))
}

func CapacityExceeded(message string) *AppError {
	return New(CodeCapacityExceeded, message, http.StatusBadRequest)
}

func PlanIneligible(message string) *AppError {
	return New(CodePlanIneligible, message, http.StatusBadRequest)
}

func InsufficientFunds(message string) *AppError {
	return New(CodeInsufficientFunds, message, http.StatusBadRequest)
}

func NotFound(resource string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

func NotFoundWithID(resource string, id uint64) *AppError {
	return NotFound(resource).WithDetails(map[string]any{"resource": resource, "id": id})
}

func Forbidden(message string) *AppError {
	return New(CodeForbidden, message, http.StatusForbidden)
}

func Unauthorized(message string) *AppError {
	return New(CodeUnauthorized, message, http.StatusUnauthorized)
}

func Conflict(message string) *AppError {
	return New(CodeConflict, message, http.StatusConflict)
}

// Store wraps a persistence or infrastructure failure. The cause is kept for
// logging and never rendered.
func Store(op string, err error) *AppError {
	return &AppError{
		Code:       CodeStore,
		Message:    op,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// As returns err as an *AppError. Errors of any other type become StoreError.
func As(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Store("unexpected error", err)
}

// IsKind reports whether err is an AppError with the given code.
func IsKind(err error, code string) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}
