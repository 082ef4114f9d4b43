package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"github.com/upb/governance-ledger/auth"
	"github.com/upb/governance-ledger/middleware"
	"github.com/upb/governance-ledger/models"
	"github.com/upb/governance-ledger/repositories"
	"github.com/upb/governance-ledger/repositories/memory"
	"github.com/upb/governance-ledger/services/emission"
	"github.com/upb/governance-ledger/services/policy"
	"github.com/upb/governance-ledger/services/quorum"
	"github.com/upb/governance-ledger/services/railguard"
	"go.uber.org/zap"
)

// testEnv wires every service over the in-memory store
type testEnv struct {
	repos     *repositories.Repositories
	enforcer  *policy.Enforcer
	quorum    *quorum.Engine
	guards    *railguard.Service
	engine    *emission.Engine
	scheduler *emission.Scheduler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zap.NewNop()
	repos := memory.NewRepositories()
	tx := memory.NewTransactionManager()

	quorumEngine := quorum.NewEngine(repos.Quorum, tx, logger)
	enforcer := policy.NewEnforcer(policy.NewTable(time.Minute, logger), quorumEngine, policy.EnforcerConfig{SelfApprove: true}, logger)
	guards := railguard.NewService(repos.RailGuards, repos.RequestLog, logger)
	engine := emission.NewEngine(repos, emission.NewLedger(repos.Balances, logger), tx, logger)
	scheduler := emission.NewScheduler(engine, guards, emission.SchedulerConfig{
		Interval:     time.Minute,
		CycleTimeout: 5 * time.Second,
		SampleSize:   5,
	}, logger)

	return &testEnv{
		repos:     repos,
		enforcer:  enforcer,
		quorum:    quorumEngine,
		guards:    guards,
		engine:    engine,
		scheduler: scheduler,
	}
}

func claimsFor(subject string, actorType models.ActorType, roles ...string) *auth.Claims {
	return &auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: subject},
		ActorType:        actorType,
		TrustScore:       0.9,
		StakedTokens:     250,
		Badges:           []string{"verified"},
		Roles:            roles,
	}
}

// do sends a request through router as the caller described by claims (nil for anonymous)
func do(t *testing.T, router http.Handler, method, target string, body interface{}, claims *auth.Claims) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	if claims != nil {
		ctx := middleware.WithClaims(req.Context(), claims)
		ctx = middleware.WithActor(ctx, claims.ToActorContext())
		req = req.WithContext(ctx)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// decodeSuccess unwraps the data field of a success response into dst
func decodeSuccess(t *testing.T, w *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, dst))
}

func newRouter(register func(r chi.Router)) http.Handler {
	r := chi.NewRouter()
	register(r)
	return r
}
