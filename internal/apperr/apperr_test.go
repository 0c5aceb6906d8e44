package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusAndMessage(t *testing.T) {
	providerErr := errors.New("googleapi: Error 429: quota exceeded for file type")

	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"bad request", BadRequest("No file or text provided"), http.StatusBadRequest, "No file or text provided"},
		{"unauthorized", Unauthorized("Invalid Telegram data"), http.StatusUnauthorized, "Invalid Telegram data"},
		{"extraction", ExtractionFailed("PDF", errors.New("malformed xref")), http.StatusBadRequest, "Failed to parse PDF file"},
		{"provider", ProviderUnavailable(providerErr), http.StatusServiceUnavailable, MsgProviderUnavailable},
		{"response", ResponseInvalid(errors.New("no json")), http.StatusInternalServerError, MsgGenerateFailed},
		{"internal", Internal(errors.New("boom")), http.StatusInternalServerError, MsgInternal},
		{"untagged", errors.New("file type mismatch"), http.StatusInternalServerError, MsgInternal},
		{"wrapped", fmt.Errorf("stage: %w", BadRequest("Content too long")), http.StatusBadRequest, "Content too long"},
		{"rate limited", RateLimited(), http.StatusTooManyRequests, "Too many requests from this IP, please try again later."},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.status, Status(tc.err))
			assert.Equal(t, tc.message, PublicMessage(tc.err))
		})
	}
}

func TestProviderDetailIsNotPublic(t *testing.T) {
	err := ProviderUnavailable(errors.New("api key AIza-secret rejected"))

	assert.NotContains(t, PublicMessage(err), "AIza")
	assert.Contains(t, err.Error(), "AIza")
	assert.True(t, errors.Is(err, err.Err))
}
