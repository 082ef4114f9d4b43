package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/governance-ledger/models"
	"github.com/upb/governance-ledger/services/emission"
	"go.uber.org/zap"
)

func emissionRouter(env *testEnv) http.Handler {
	h := NewEmissionHandler(env.scheduler, zap.NewNop())
	return newRouter(func(r chi.Router) {
		r.Get("/emission/status", h.HandleStatus)
		r.Post("/emission/run", h.HandleRun)
	})
}

func TestEmissionHandler_RunAndStatus(t *testing.T) {
	env := newTestEnv(t)
	router := emissionRouter(env)
	admin := claimsFor("ops", models.ActorTypeAdmin, "admin")

	for _, req := range []emission.RecordRewardRequest{
		{IdentityID: "user-1", Source: "dream-network", Kind: "dream_created", BaseValue: 4},
		{IdentityID: "user-2", Source: "zen-garden", Kind: "streak", BaseValue: 1},
		{IdentityID: "user-3", Source: "unknown", Kind: "nothing", BaseValue: 1},
	} {
		_, err := env.engine.RecordRawReward(context.Background(), req)
		require.NoError(t, err)
	}

	w := do(t, router, http.MethodGet, "/emission/status", nil, admin)
	require.Equal(t, http.StatusOK, w.Code)
	var before emission.Status
	decodeSuccess(t, w, &before)
	assert.Equal(t, 3, before.PendingRewardCount)
	assert.Nil(t, before.LastRunAt)

	w = do(t, router, http.MethodPost, "/emission/run", nil, admin)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var cycle CycleResponse
	decodeSuccess(t, w, &cycle)
	require.NotNil(t, cycle.Report)
	require.NotNil(t, cycle.Status)
	assert.Equal(t, 3, cycle.Report.EventsApplied)
	assert.Equal(t, 3, cycle.Report.RewardsCreated)
	assert.False(t, cycle.Report.Aborted)
	assert.Equal(t, 0, cycle.Status.PendingRewardCount)
	assert.Equal(t, 2, cycle.Status.TokenCount)
	assert.Equal(t, 5, cycle.Status.EmissionRuleCount)
	assert.Equal(t, 3, cycle.Status.AppliedRewardCount)
	assert.NotNil(t, cycle.Status.LastRunAt)
	assert.LessOrEqual(t, len(cycle.Status.SampleBalances), 5)

	// A second run finds nothing new
	w = do(t, router, http.MethodPost, "/emission/run", nil, admin)
	require.Equal(t, http.StatusOK, w.Code)
	decodeSuccess(t, w, &cycle)
	assert.Equal(t, 0, cycle.Report.EventsApplied)
	assert.Equal(t, 3, cycle.Status.AppliedRewardCount)
}
