package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestWriteJSON(t *testing.T) {
	t.Run("encodes body", func(t *testing.T) {
		w := httptest.NewRecorder()
		require.NoError(t, WriteJSON(w, http.StatusTeapot, map[string]int{"sheep": 3}))

		assert.Equal(t, http.StatusTeapot, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
		assert.JSONEq(t, `{"sheep":3}`, w.Body.String())
	})

	t.Run("nil body writes headers only", func(t *testing.T) {
		w := httptest.NewRecorder()
		require.NoError(t, WriteJSON(w, http.StatusOK, nil))
		assert.Empty(t, w.Body.String())
	})
}

func TestWriteSuccess(t *testing.T) {
	tests := []struct {
		name   string
		write  func(http.ResponseWriter, interface{}) error
		status int
	}{
		{"ok", WriteOK, http.StatusOK},
		{"created", WriteCreated, http.StatusCreated},
		{"accepted", WriteAccepted, http.StatusAccepted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			require.NoError(t, tt.write(w, map[string]string{"token": "SHEEP"}))

			assert.Equal(t, tt.status, w.Code)
			assert.JSONEq(t, `{"data":{"token":"SHEEP"}}`, w.Body.String())
		})
	}
}

func TestWriteErrorHelpers(t *testing.T) {
	details := map[string]interface{}{"guard_id": "g-1"}

	tests := []struct {
		name        string
		write       func(http.ResponseWriter) error
		status      int
		code        string
		message     string
		wantDetails bool
	}{
		{"bad request", func(w http.ResponseWriter) error { return WriteBadRequest(w, "bad vote", details) }, http.StatusBadRequest, "bad_request", "bad vote", true},
		{"unauthorized default", func(w http.ResponseWriter) error { return WriteUnauthorized(w, "") }, http.StatusUnauthorized, "unauthorized", "Authentication required", false},
		{"unauthorized custom", func(w http.ResponseWriter) error { return WriteUnauthorized(w, "Invalid token") }, http.StatusUnauthorized, "unauthorized", "Invalid token", false},
		{"forbidden default", func(w http.ResponseWriter) error { return WriteForbidden(w, "") }, http.StatusForbidden, "forbidden", "Access forbidden", false},
		{"not found default", func(w http.ResponseWriter) error { return WriteNotFound(w, "") }, http.StatusNotFound, "not_found", "Resource not found", false},
		{"conflict", func(w http.ResponseWriter) error { return WriteConflict(w, "cycle running", details) }, http.StatusConflict, "conflict", "cycle running", true},
		{"too many requests default", func(w http.ResponseWriter) error { return WriteTooManyRequests(w, "", nil) }, http.StatusTooManyRequests, "rate_limit_exceeded", "Rate limit exceeded", false},
		{"too many requests custom", func(w http.ResponseWriter) error { return WriteTooManyRequests(w, "Daily cost limit exceeded", details) }, http.StatusTooManyRequests, "rate_limit_exceeded", "Daily cost limit exceeded", true},
		{"internal default", func(w http.ResponseWriter) error { return WriteInternalServerError(w, "") }, http.StatusInternalServerError, "internal_error", "Internal server error", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			require.NoError(t, tt.write(w))

			assert.Equal(t, tt.status, w.Code)
			resp := decodeError(t, w)
			assert.Equal(t, tt.code, resp.Error)
			assert.Equal(t, tt.message, resp.Message)
			if tt.wantDetails {
				assert.Equal(t, "g-1", resp.Details["guard_id"])
			} else {
				assert.Empty(t, resp.Details)
			}
		})
	}
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		status int
		code   string
	}{
		{http.StatusBadRequest, "bad_request"},
		{http.StatusUnauthorized, "unauthorized"},
		{http.StatusForbidden, "forbidden"},
		{http.StatusNotFound, "not_found"},
		{http.StatusConflict, "conflict"},
		{http.StatusTooManyRequests, "rate_limit_exceeded"},
		{http.StatusBadGateway, "bad_gateway"},
		{http.StatusServiceUnavailable, "service_unavailable"},
		{http.StatusGatewayTimeout, "gateway_timeout"},
		{http.StatusInternalServerError, "internal_error"},
		{http.StatusNotImplemented, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			w := httptest.NewRecorder()
			require.NoError(t, WriteError(w, tt.status, "msg", nil))

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, decodeError(t, w).Error)
			assert.Equal(t, tt.code, ErrorCode(tt.status))
		})
	}
}
