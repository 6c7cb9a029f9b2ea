package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Is(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
		want     bool
	}{
		{"invalid parameter", InvalidParameter("bad strategy %q", "foo"), ErrInvalidParameter, true},
		{"wrapped shape mismatch", fmt.Errorf("predict: %w", ShapeMismatch("3 != 4")), ErrShapeMismatch, true},
		{"missing input vs invalid", MissingInput("no file"), ErrInvalidParameter, false},
		{"plain error", errors.New("boom"), ErrUnavailable, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errors.Is(tt.err, tt.sentinel))
		})
	}
}

func TestAppError_ErrorAndUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := NewStorageError("save model", cause)

	assert.Equal(t, "[STORAGE] save model: disk full", err.Error())
	assert.ErrorIs(t, err, cause)

	err.WithContext("path", "/tmp/x")
	assert.Equal(t, "/tmp/x", err.Context["path"])
}

func TestErrorHandler_HandleError(t *testing.T) {
	handler := NewErrorHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), false)

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
	}{
		{"invalid parameter", InvalidParameter("unknown method"), http.StatusBadRequest, TypeValidation},
		{"missing input", MissingInput("model not loaded"), http.StatusNotFound, TypeDataNotFound},
		{"shape mismatch", ShapeMismatch("missing feature price"), http.StatusUnprocessableEntity, TypeShape},
		{"unavailable", Unavailable("gradient boosting disabled"), http.StatusServiceUnavailable, TypeServiceDown},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, TypeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/predict", nil)
			rec := httptest.NewRecorder()

			handler.HandleError(rec, req, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantType, body["type"])
			assert.Equal(t, "/api/predict", body["instance"])
		})
	}
}
