package models

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategorize(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCategory
	}{
		{"nil", nil, ""},
		{"compliance violation", ErrComplianceViolation, ErrorCategoryCompliance},
		{"rate limit exceeded", ErrRateLimitExceeded, ErrorCategoryCompliance},
		{"auth failure", ErrAuthFailure, ErrorCategoryAuth},
		{"captcha", ErrCaptchaBlocked, ErrorCategoryAuth},
		{"login form missing", ErrLoginFormNotFound, ErrorCategoryAuth},
		{"auth timeout", ErrAuthTimeout, ErrorCategoryAuth},
		{"extraction failed", ErrExtractionFailed, ErrorCategoryStructural},
		{"vault key missing", ErrKeyMissing, ErrorCategoryFatal},
		{"tampered ciphertext", ErrTampered, ErrorCategoryFatal},
		{"invalid transition", ErrInvalidTransition, ErrorCategoryFatal},
		{"cancellation is not a failure", ErrJobCancelled, ""},
		{"unknown defaults to transient", errors.New("connection reset by peer"), ErrorCategoryTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Categorize(tt.err))
		})
	}
}

func TestCategorize_UnwrapsWrappedErrors(t *testing.T) {
	wrapped := fmt.Errorf("site site_1 rejected credentials: %w", ErrAuthFailure)
	assert.Equal(t, ErrorCategoryAuth, Categorize(wrapped))

	deep := fmt.Errorf("run aborted: %w", fmt.Errorf("domain blocked: %w", ErrComplianceViolation))
	assert.Equal(t, ErrorCategoryCompliance, Categorize(deep))
}

func TestErrorCategory_Retryable(t *testing.T) {
	assert.True(t, ErrorCategoryTransient.Retryable())
	assert.True(t, ErrorCategoryAuth.Retryable())
	assert.False(t, ErrorCategoryStructural.Retryable())
	assert.False(t, ErrorCategoryCompliance.Retryable())
	assert.False(t, ErrorCategoryFatal.Retryable())
}
