package shared

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRespondWithJSON(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)

	RespondWithJSON(rec, req, http.StatusCreated, map[string]string{"state": "ready"})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ready", body["state"])
}

func TestRespondWithError(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req = req.WithContext(SetTraceID(req.Context()))

	RespondWithError(rec, req, http.StatusBadRequest, "Invalid request body")

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Invalid request body", body.Error)
	assert.NotEmpty(t, body.TraceID, "trace ID from the request context is echoed")
}

func TestRespondWithErrorAndLog_HidesInternalError(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)

	RespondWithErrorAndLog(rec, req, http.StatusInternalServerError,
		"An unexpected error occurred", errors.New("pool admission broke: secret detail"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret detail",
		"raw error text must never reach the client")
	assert.Contains(t, rec.Body.String(), "An unexpected error occurred")
}

func TestValidateRequest(t *testing.T) {
	t.Parallel()

	type demo struct {
		Name string `validate:"required"`
	}

	assert.Error(t, ValidateRequest(&demo{}))
	assert.NoError(t, ValidateRequest(&demo{Name: "ok"}))
}
