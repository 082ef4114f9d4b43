package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/upb/governance-ledger/models"
	"go.uber.org/zap"
)

func TestIngressLimiter(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	limiter := NewIngressLimiter(1, 2, zap.NewNop())
	limiter.now = func() time.Time { return now }
	handler := limiter.Middleware(statusHandler(http.StatusOK))

	send := func(remoteAddr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = remoteAddr
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusOK, send("10.0.0.1:5000").Code)
	assert.Equal(t, http.StatusOK, send("10.0.0.1:5001").Code)

	limited := send("10.0.0.1:5002")
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, "1", limited.Header().Get("Retry-After"))

	// Other clients have their own bucket
	assert.Equal(t, http.StatusOK, send("10.0.0.2:5000").Code)

	// The bucket refills at one token per second
	now = now.Add(time.Second)
	assert.Equal(t, http.StatusOK, send("10.0.0.1:5003").Code)
}

func TestIngressLimiter_KeysAuthenticatedCallersByActor(t *testing.T) {
	limiter := NewIngressLimiter(1, 1, zap.NewNop())
	handler := limiter.Middleware(statusHandler(http.StatusOK))

	send := func(remoteAddr, subject string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = remoteAddr
		if subject != "" {
			req = req.WithContext(WithClaims(req.Context(), testClaims(subject, models.ActorTypeAgent)))
		}
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, send("10.0.0.1:1", "agent-1"))
	assert.Equal(t, http.StatusTooManyRequests, send("10.0.0.9:1", "agent-1"), "same actor from another address")
	assert.Equal(t, http.StatusOK, send("10.0.0.1:1", "agent-2"))
	assert.Equal(t, http.StatusOK, send("10.0.0.1:1", ""), "anonymous callers are keyed by address")
}

func TestIngressLimiter_EvictsIdleClients(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	limiter := NewIngressLimiter(1, 1, zap.NewNop())
	limiter.now = func() time.Time { return now }

	limiter.limiterFor("ip:10.0.0.1")
	now = now.Add(time.Minute)
	limiter.limiterFor("ip:10.0.0.2")

	now = now.Add(150 * time.Second)
	assert.Equal(t, 1, limiter.evictIdle())
	assert.Len(t, limiter.visitors, 1)
	assert.Contains(t, limiter.visitors, "ip:10.0.0.2")
}
