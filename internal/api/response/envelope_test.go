package response_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamup/teamup/internal/api/response"
)

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var env map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func TestNewMeta(t *testing.T) {
	before := time.Now().UTC().Add(-time.Second)

	meta := response.NewMeta("")
	_, err := uuid.Parse(meta.RequestID)
	assert.NoError(t, err, "requestId should be a generated UUID")

	parsed, err := time.Parse(time.RFC3339, meta.Timestamp)
	require.NoError(t, err)
	assert.False(t, parsed.Before(before))

	assert.Equal(t, "req-7", response.NewMeta("req-7").RequestID)
}

func TestSuccess_WritesEnvelope(t *testing.T) {
	w := httptest.NewRecorder()

	response.Success(w, http.StatusCreated, map[string]string{"name": "robotics"}, "req-1")

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	env := decode(t, w)
	assert.Equal(t, true, env["success"])
	assert.Nil(t, env["error"])
	assert.NotContains(t, env, "message")
	assert.Equal(t, "robotics", env["data"].(map[string]any)["name"])
	assert.Equal(t, "req-1", env["meta"].(map[string]any)["requestId"])
}

func TestSuccessMessage_IncludesMessage(t *testing.T) {
	w := httptest.NewRecorder()

	response.SuccessMessage(w, http.StatusOK, "Invitation accepted", nil, "")

	env := decode(t, w)
	assert.Equal(t, "Invitation accepted", env["message"])
	assert.Nil(t, env["data"])
}

func TestSuccessList_IncludesPagination(t *testing.T) {
	w := httptest.NewRecorder()

	response.SuccessList(w, http.StatusOK, []string{"a", "b"}, 12, 2, 2, "req-list")

	env := decode(t, w)
	meta := env["meta"].(map[string]any)
	assert.Equal(t, float64(12), meta["total"])
	assert.Equal(t, float64(2), meta["page"])
	assert.Equal(t, float64(2), meta["limit"])
	assert.Equal(t, "req-list", meta["requestId"])
	assert.Len(t, env["data"], 2)
}

func TestErr_WritesErrorEnvelope(t *testing.T) {
	w := httptest.NewRecorder()

	response.Err(w, http.StatusConflict, "TEAM_FULL", "Team has reached its maximum number of members", "err-req")

	assert.Equal(t, http.StatusConflict, w.Code)
	env := decode(t, w)
	assert.Equal(t, false, env["success"])
	assert.Nil(t, env["data"])

	apiErr := env["error"].(map[string]any)
	assert.Equal(t, "TEAM_FULL", apiErr["code"])
	assert.Equal(t, env["message"], apiErr["message"])
	assert.NotContains(t, apiErr, "details")
}

func TestErrWithDetails_IncludesDetails(t *testing.T) {
	w := httptest.NewRecorder()
	details := []map[string]string{{"field": "name", "message": "is required"}}

	response.ErrWithDetails(w, http.StatusBadRequest, "VALIDATION_ERROR", "Request validation failed", details, "")

	apiErr := decode(t, w)["error"].(map[string]any)
	det := apiErr["details"].([]any)
	require.Len(t, det, 1)
	assert.Equal(t, "name", det[0].(map[string]any)["field"])
}

func TestNoContent(t *testing.T) {
	w := httptest.NewRecorder()

	response.NoContent(w)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.Bytes())
}
