package services

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"google.golang.org/genai"
)

func TestNormalizeGenerationErrorKinds(t *testing.T) {
	cases := []struct {
		raw  string
		kind ErrorKind
	}{
		{"API key not valid. Please pass a valid API key.", ErrConfiguration},
		{"Requested entity was not found.", ErrCredential},
		{"Quota exceeded for quota metric 'GenerateContent requests'", ErrQuota},
		{"rpc error: code = Unavailable desc = 503 service overloaded", ErrServiceUnavailable},
		{"the model is currently unavailable", ErrServiceUnavailable},
		{"Invalid argument: image too large", ErrValidation},
		{"The request was blocked for safety reasons", ErrValidation},
		{"something else entirely", ErrUnknown},
	}

	for _, tc := range cases {
		normalized := NormalizeGenerationError(fmt.Errorf("%s", tc.raw))
		require.NotNil(t, normalized, tc.raw)
		assert.Equal(t, tc.kind, normalized.Kind, tc.raw)
		assert.NotEmpty(t, normalized.Message, tc.raw)
	}
}

func TestNormalizeGenerationErrorQuotaBeatsUnavailable(t *testing.T) {
	// "quota" and "503" in one message: rule order decides.
	normalized := NormalizeGenerationError(fmt.Errorf("503: quota exceeded, service unavailable"))
	assert.Equal(t, ErrQuota, normalized.Kind)
}

func TestNormalizeGenerationErrorPassthrough(t *testing.T) {
	original := NewValidationError("select at least one item to try on")

	normalized := NormalizeGenerationError(original)

	assert.Same(t, original, normalized)
}

func TestNormalizeGenerationErrorWrappedPassthrough(t *testing.T) {
	original := &GenerationError{Kind: ErrQuota, Message: "slow down"}
	wrapped := fmt.Errorf("task failed: %w", original)

	normalized := NormalizeGenerationError(wrapped)

	assert.Equal(t, ErrQuota, normalized.Kind)
	assert.Equal(t, "slow down", normalized.Message)
}

func TestNormalizeGenerationErrorAPIErrorCodeFallback(t *testing.T) {
	normalized := NormalizeGenerationError(genai.APIError{Code: 429, Message: "resource exhausted"})
	assert.Equal(t, ErrQuota, normalized.Kind)

	normalized = NormalizeGenerationError(genai.APIError{Code: 503, Message: "overloaded"})
	assert.Equal(t, ErrServiceUnavailable, normalized.Kind)
}

func TestNormalizeGenerationErrorNil(t *testing.T) {
	assert.Nil(t, NormalizeGenerationError(nil))
}

func TestGenerationErrorMessageIsUserSafe(t *testing.T) {
	normalized := NormalizeGenerationError(fmt.Errorf("Quota exceeded for project 1234567 at internal endpoint"))

	assert.NotContains(t, normalized.Message, "1234567")
	assert.Contains(t, normalized.Error(), "1234567") // full detail stays on Error() for logs
}
