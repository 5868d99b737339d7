package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchids/video-gallery/internal/domain"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", domain.NewValidationError("bad"), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"too large", fmt.Errorf("validate: %w", domain.ErrFileTooLarge), http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE"},
		{"not found", domain.ErrGalleryNotFound, http.StatusNotFound, "NOT_FOUND"},
		{"remote", &domain.RemoteServiceError{Op: "create collection", StatusCode: 500}, http.StatusBadGateway, "REMOTE_SERVICE_ERROR"},
		{"expired", &domain.TransferError{Err: domain.ErrExpiredSignature}, http.StatusGatewayTimeout, "SIGNATURE_EXPIRED"},
		{"transfer", &domain.TransferError{Err: errors.New("reset")}, http.StatusBadGateway, "TRANSFER_FAILED"},
		{"config", domain.NewConfigurationError("missing"), http.StatusInternalServerError, "CONFIGURATION_ERROR"},
		{"other", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code := Classify(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
		})
	}
}

func TestFromError_HidesInternalDetails(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	FromError(c, errors.New("pq: connection refused"), "Failed to load gallery")

	var body Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.False(t, body.Success)
	assert.Equal(t, "Failed to load gallery", body.Error.Message)
}

func TestNewPaginationMeta(t *testing.T) {
	meta := NewPaginationMeta(45, 2, 20)
	assert.Equal(t, 3, meta.TotalPages)
	assert.True(t, meta.HasNext)
	assert.True(t, meta.HasPrevious)

	meta = NewPaginationMeta(0, 1, 20)
	assert.Equal(t, 0, meta.TotalPages)
	assert.False(t, meta.HasNext)
}
