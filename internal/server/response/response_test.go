package response

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netfabric/fabsync/pkg/errors"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestSuccessEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	OK(rec, map[string]string{"status": "healthy"})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	resp := decode(t, rec)
	assert.Nil(t, resp.Error)
	assert.NotNil(t, resp.Data)
}

func TestAccepted(t *testing.T) {
	rec := httptest.NewRecorder()
	Accepted(rec, map[string]string{"operation_id": "op-1"})
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestFailEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	BadRequest(rec, "bad input", "field kind is required")

	resp := decode(t, rec)
	assert.Nil(t, resp.Data)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "BAD_REQUEST", resp.Error.Code)
	assert.Equal(t, "field kind is required", resp.Error.Details)
}

func TestFromErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{
			name:   "not found",
			err:    errors.NewNotFoundError("fabric", "fab-9"),
			status: http.StatusNotFound,
			code:   "NOT_FOUND",
		},
		{
			name:   "validation",
			err:    errors.NewValidationError("kind", "", "kind is required"),
			status: http.StatusBadRequest,
			code:   "BAD_REQUEST",
		},
		{
			name:   "sync in progress",
			err:    errors.ErrSyncInProgress,
			status: http.StatusConflict,
			code:   "CONFLICT",
		},
		{
			name:   "rate limited",
			err:    errors.NewClusterError("fetch", "", 429, "slow down", true),
			status: http.StatusTooManyRequests,
			code:   "RATE_LIMITED",
		},
		{
			name:   "repository unavailable",
			err:    errors.NewRepositoryError("clone", "git.example.com", "", stderrors.New("connection refused")),
			status: http.StatusBadGateway,
			code:   "UPSTREAM_ERROR",
		},
		{
			name:   "cluster rejection",
			err:    errors.NewClusterError("apply", "VPC/prod", 422, "cidr out of range", false),
			status: http.StatusBadGateway,
			code:   "UPSTREAM_ERROR",
		},
		{
			name:   "illegal transition",
			err:    &errors.TransitionError{Resource: "VPC/prod", From: "draft", To: "synced"},
			status: http.StatusConflict,
			code:   "CONFLICT",
		},
		{
			name:   "unknown",
			err:    stderrors.New("boom"),
			status: http.StatusInternalServerError,
			code:   "INTERNAL_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			FromError(rec, tt.err)
			assert.Equal(t, tt.status, rec.Code)
			resp := decode(t, rec)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}
}
