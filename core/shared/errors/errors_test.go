package errors_test

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/geoflow/geoflow/core/shared/errors"
)

func TestNewAppError_Status(t *testing.T) {
	tests := []struct {
		name           string
		code           errors.ErrorCode
		expectedStatus int
	}{
		{name: "session not found", code: errors.ErrCodeSessionNotFound, expectedStatus: http.StatusNotFound},
		{name: "step not found", code: errors.ErrCodeStepNotFound, expectedStatus: http.StatusNotFound},
		{name: "layer not found", code: errors.ErrCodeLayerNotFound, expectedStatus: http.StatusNotFound},
		{name: "validation error", code: errors.ErrCodeValidationError, expectedStatus: http.StatusBadRequest},
		{name: "invalid input", code: errors.ErrCodeInvalidInput, expectedStatus: http.StatusBadRequest},
		{name: "step not pending", code: errors.ErrCodeStepNotPending, expectedStatus: http.StatusConflict},
		{name: "session completed", code: errors.ErrCodeSessionCompleted, expectedStatus: http.StatusConflict},
		{name: "workflow running", code: errors.ErrCodeWorkflowAlreadyRunning, expectedStatus: http.StatusConflict},
		{name: "empty workflow", code: errors.ErrCodeEmptyWorkflow, expectedStatus: http.StatusConflict},
		{name: "unavailable", code: errors.ErrCodeUnavailable, expectedStatus: http.StatusServiceUnavailable},
		{name: "store failed", code: errors.ErrCodeStoreFailed, expectedStatus: http.StatusInternalServerError},
		{name: "unknown code", code: errors.ErrorCode("SOMETHING_ELSE"), expectedStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appErr := errors.NewAppError(tt.code, "message", nil)
			assert.Equal(t, tt.code, appErr.Code)
			assert.Equal(t, "message", appErr.Message)
			assert.Equal(t, tt.expectedStatus, appErr.Status)
		})
	}
}

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appErr   *errors.AppError
		expected string
	}{
		{
			name: "error with underlying error",
			appErr: &errors.AppError{
				Code:    errors.ErrCodeStoreFailed,
				Message: "save session",
				Err:     stderrors.New("connection refused"),
			},
			expected: "STORE_FAILED: save session (connection refused)",
		},
		{
			name: "error without underlying error",
			appErr: &errors.AppError{
				Code:    errors.ErrCodeValidationError,
				Message: "validation failed",
			},
			expected: "VALIDATION_ERROR: validation failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.appErr.Error())
		})
	}
}

func TestPredicates_FollowWrappedChain(t *testing.T) {
	notFound := fmt.Errorf("lookup: %w", errors.Newf(errors.ErrCodeSessionNotFound, "session '%s' not found", "abc"))
	conflict := fmt.Errorf("execute: %w", errors.Newf(errors.ErrCodeStepNotPending, "step is executing"))
	invalid := errors.NewAppError(errors.ErrCodeInvalidInput, "query is required", nil)
	plain := stderrors.New("regular error")

	assert.True(t, errors.IsNotFound(notFound))
	assert.False(t, errors.IsNotFound(conflict))
	assert.False(t, errors.IsNotFound(plain))

	assert.True(t, errors.IsConflict(conflict))
	assert.False(t, errors.IsConflict(invalid))

	assert.True(t, errors.IsValidationError(invalid))
	assert.False(t, errors.IsValidationError(plain))

	assert.Equal(t, errors.ErrCodeSessionNotFound, errors.CodeOf(notFound))
	assert.Equal(t, errors.ErrorCode(""), errors.CodeOf(plain))
}

func TestWrapError(t *testing.T) {
	original := stderrors.New("original error")
	appErr := errors.WrapError(errors.ErrCodeStoreFailed, "wrapped", original)

	assert.Equal(t, errors.ErrCodeStoreFailed, appErr.Code)
	assert.Equal(t, original, appErr.Unwrap())
	assert.True(t, stderrors.Is(appErr, original))
}
