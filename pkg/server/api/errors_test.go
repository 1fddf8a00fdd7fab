package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vulntor/attackq/pkg/job"
	"github.com/vulntor/attackq/pkg/scheduler"
	"github.com/vulntor/attackq/pkg/storage"
)

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	require.Equal(t, "application/json", w.Header().Get("Content-Type"))
	var response ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	return response
}

func TestWriteError_NotFound(t *testing.T) {
	notFoundErr := &storage.NotFoundError{
		ResourceType: "job",
		ResourceID:   "job-123",
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/job-123", nil)
	w := httptest.NewRecorder()

	WriteError(w, req, notFoundErr)

	require.Equal(t, http.StatusNotFound, w.Code)
	response := decodeError(t, w)
	require.Equal(t, "Not Found", response.Error)
	require.Contains(t, response.Message, "job-123")
}

func TestWriteError_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"scheduler not found", scheduler.NewNotFoundError("abc"), http.StatusNotFound, "JOB_NOT_FOUND"},
		{"validation", &job.ValidationError{Field: "target", Reason: "required"}, http.StatusBadRequest, "JOB_VALIDATION_FAILED"},
		{"terminal", fmt.Errorf("cancel: %w", job.ErrTerminal), http.StatusConflict, "JOB_TERMINAL"},
		{"stopped", scheduler.ErrStopped, http.StatusServiceUnavailable, "SCHEDULER_STOPPED"},
		{"invalid input", storage.NewInvalidInputError("cursor", "malformed"), http.StatusBadRequest, "INVALID_INPUT"},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout, "TIMEOUT"},
		{"generic", errors.New("database connection failed"), http.StatusInternalServerError, "SCHEDULER_INTERNAL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil)
			w := httptest.NewRecorder()

			WriteError(w, req, tt.err)

			require.Equal(t, tt.status, w.Code)
			response := decodeError(t, w)
			require.Equal(t, http.StatusText(tt.status), response.Error)
			require.Equal(t, tt.code, response.Code)
			require.Equal(t, tt.err.Error(), response.Message)
		})
	}
}

func TestWriteJSONError(t *testing.T) {
	w := httptest.NewRecorder()

	WriteJSONError(w, http.StatusBadRequest, "Invalid Input", "target is required")

	require.Equal(t, http.StatusBadRequest, w.Code)
	response := decodeError(t, w)
	require.Equal(t, "Invalid Input", response.Error)
	require.Equal(t, "target is required", response.Message)
	require.Empty(t, response.Code)
}

func TestWriteJSON_Success(t *testing.T) {
	w := httptest.NewRecorder()

	WriteJSON(w, http.StatusAccepted, job.Handle{ID: "job-1", Lane: job.LanePriority})

	require.Equal(t, http.StatusAccepted, w.Code)
	require.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var response map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	require.Equal(t, "job-1", response["id"])
	require.Equal(t, "priority", response["lane"])
}
