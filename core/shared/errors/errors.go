package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a standardized error code
type ErrorCode string

const (
	// Lookup errors
	ErrCodeNotFound        ErrorCode = "NOT_FOUND"
	ErrCodeSessionNotFound ErrorCode = "SESSION_NOT_FOUND"
	ErrCodeStepNotFound    ErrorCode = "STEP_NOT_FOUND"
	ErrCodeLayerNotFound   ErrorCode = "LAYER_NOT_FOUND"

	// Input errors
	ErrCodeInvalidInput    ErrorCode = "INVALID_INPUT"
	ErrCodeValidationError ErrorCode = "VALIDATION_ERROR"

	// State machine errors
	ErrCodeStepNotPending         ErrorCode = "STEP_NOT_PENDING"
	ErrCodeStepNotEditable        ErrorCode = "STEP_NOT_EDITABLE"
	ErrCodeSessionCompleted       ErrorCode = "SESSION_COMPLETED"
	ErrCodeWorkflowAlreadyRunning ErrorCode = "WORKFLOW_ALREADY_RUNNING"
	ErrCodeEmptyWorkflow          ErrorCode = "EMPTY_WORKFLOW"

	// Infrastructure errors
	ErrCodeStoreFailed   ErrorCode = "STORE_FAILED"
	ErrCodeUnavailable   ErrorCode = "UNAVAILABLE"
	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// AppError represents an application error with code and context
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
	Status  int // HTTP status code
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new application error
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Status:  getHTTPStatus(code),
	}
}

// Newf creates an application error with a formatted message
func Newf(code ErrorCode, format string, args ...any) *AppError {
	return NewAppError(code, fmt.Sprintf(format, args...), nil)
}

// WrapError wraps an existing error with an error code and message
func WrapError(code ErrorCode, message string, err error) *AppError {
	return NewAppError(code, message, err)
}

// getHTTPStatus maps error codes to HTTP status codes
func getHTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeNotFound, ErrCodeSessionNotFound, ErrCodeStepNotFound, ErrCodeLayerNotFound:
		return http.StatusNotFound
	case ErrCodeInvalidInput, ErrCodeValidationError:
		return http.StatusBadRequest
	case ErrCodeStepNotPending, ErrCodeStepNotEditable, ErrCodeSessionCompleted,
		ErrCodeWorkflowAlreadyRunning, ErrCodeEmptyWorkflow:
		return http.StatusConflict
	case ErrCodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// CodeOf returns the code of the first AppError in err's chain, or ""
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool {
	switch CodeOf(err) {
	case ErrCodeNotFound, ErrCodeSessionNotFound, ErrCodeStepNotFound, ErrCodeLayerNotFound:
		return true
	}
	return false
}

// IsValidationError checks if the error is a validation error
func IsValidationError(err error) bool {
	code := CodeOf(err)
	return code == ErrCodeValidationError || code == ErrCodeInvalidInput
}

// IsConflict checks if the error rejects an operation for the current state
func IsConflict(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr) && appErr.Status == http.StatusConflict
}
