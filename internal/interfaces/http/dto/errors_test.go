package dto

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetHTTPStatus(t *testing.T) {
	tests := []struct {
		code     string
		expected int
	}{
		{ErrCodeValidation, http.StatusBadRequest},
		{ErrCodeBadRequest, http.StatusBadRequest},
		{ErrCodeUnauthorized, http.StatusUnauthorized},
		{ErrCodeForbidden, http.StatusForbidden},
		{ErrCodeNotFound, http.StatusNotFound},
		{ErrCodeAlreadyExists, http.StatusConflict},
		{ErrCodeConcurrencyConflict, http.StatusConflict},
		{ErrCodeInvalidState, http.StatusUnprocessableEntity},
		{ErrCodeExceedsRemaining, http.StatusUnprocessableEntity},
		{ErrCodeBelowThreshold, http.StatusUnprocessableEntity},
		{ErrCodeInternal, http.StatusInternalServerError},
		{"ERR_SOMETHING_UNMAPPED", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.expected, GetHTTPStatus(tt.code))
		})
	}
}

func TestNormalizeErrorCode(t *testing.T) {
	tests := []struct {
		name     string
		domain   string
		expected string
	}{
		{"not found", "NOT_FOUND", ErrCodeNotFound},
		{"forbidden", "FORBIDDEN", ErrCodeForbidden},
		{"optimistic lock", "OPTIMISTIC_LOCK_ERROR", ErrCodeConcurrencyConflict},
		{"duplicate receipt", "DUPLICATE_RECEIPT", ErrCodeAlreadyExists},
		{"validation", "VALIDATION_ERROR", ErrCodeValidation},
		{"invalid state", "INVALID_STATE", ErrCodeInvalidState},
		{"exceeds remaining", "EXCEEDS_REMAINING", ErrCodeExceedsRemaining},
		{"below threshold", "BELOW_THRESHOLD", ErrCodeBelowThreshold},
		{"invalid amount prefix", "INVALID_AMOUNT", ErrCodeValidation},
		{"already wire format", ErrCodeNotFound, ErrCodeNotFound},
		{"unknown passes through", "SOMETHING_ELSE", "SOMETHING_ELSE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeErrorCode(tt.domain))
		})
	}
}

func TestResponseEnvelopes(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		resp := NewSuccessResponse(map[string]string{"k": "v"})
		assert.True(t, resp.Success)
		assert.Nil(t, resp.Error)
		assert.NotNil(t, resp.Data)
	})

	t.Run("success with meta", func(t *testing.T) {
		resp := NewSuccessResponseWithMeta([]int{1, 2, 3}, 42, 2, 20)
		assert.True(t, resp.Success)
		assert.NotNil(t, resp.Meta)
		assert.Equal(t, int64(42), resp.Meta.Total)
		assert.Equal(t, 2, resp.Meta.Page)
	})

	t.Run("error", func(t *testing.T) {
		resp := NewErrorResponseWithRequestID(ErrCodeNotFound, "Open item not found", "req-123")
		assert.False(t, resp.Success)
		assert.Equal(t, ErrCodeNotFound, resp.Error.Code)
		assert.Equal(t, "req-123", resp.Error.RequestID)
	})

	t.Run("validation error", func(t *testing.T) {
		resp := NewValidationErrorResponse("Request validation failed", "req-456", []ValidationDetail{
			{Field: "partner_type", Message: "must be CUSTOMER or VENDOR"},
		})
		assert.False(t, resp.Success)
		assert.Equal(t, ErrCodeValidation, resp.Error.Code)
		assert.Len(t, resp.Error.Details, 1)
	})
}
