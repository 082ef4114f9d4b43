package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/governance-ledger/models"
	"github.com/upb/governance-ledger/services/emission"
	"go.uber.org/zap"
)

func rewardRouter(env *testEnv) http.Handler {
	h := NewRewardHandler(env.engine, zap.NewNop())
	return newRouter(func(r chi.Router) {
		r.Post("/rewards", h.HandleRecord)
		r.Get("/rewards/{id}", h.HandleGet)
		r.Get("/balances/{identityId}", h.HandleBalances)
		r.Post("/balances/adjust", h.HandleAdjust)
	})
}

func TestRewardHandler_RecordAndGet(t *testing.T) {
	env := newTestEnv(t)
	router := rewardRouter(env)
	caller := claimsFor("zen-garden", models.ActorTypeSystem)

	w := do(t, router, http.MethodPost, "/rewards", emission.RecordRewardRequest{
		IdentityID: "user-1",
		Source:     "zen-garden",
		Kind:       "daily",
		BaseValue:  10,
	}, caller)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var ev models.RawRewardEvent
	decodeSuccess(t, w, &ev)
	assert.NotEqual(t, uuid.Nil, ev.ID)
	assert.False(t, ev.Processed)

	// Unprocessed events have no payouts yet
	w = do(t, router, http.MethodGet, "/rewards/"+ev.ID.String(), nil, caller)
	require.Equal(t, http.StatusOK, w.Code)
	var got RewardEventResponse
	decodeSuccess(t, w, &got)
	assert.Equal(t, ev.ID, got.ID)
	assert.Empty(t, got.Applied)

	_, err := env.scheduler.RunCycle(context.Background())
	require.NoError(t, err)

	w = do(t, router, http.MethodGet, "/rewards/"+ev.ID.String(), nil, caller)
	require.Equal(t, http.StatusOK, w.Code)
	got = RewardEventResponse{}
	decodeSuccess(t, w, &got)
	assert.True(t, got.Processed)
	require.Len(t, got.Applied, 1)
	assert.Equal(t, "SHEEP", got.Applied[0].Token)
	assert.InDelta(t, 20, got.Applied[0].Amount, 1e-9)

	w = do(t, router, http.MethodGet, "/balances/user-1", nil, caller)
	require.Equal(t, http.StatusOK, w.Code)
	var balances BalancesResponse
	decodeSuccess(t, w, &balances)
	require.Len(t, balances.Balances, 1)
	assert.InDelta(t, 20, balances.Balances[0].Amount, 1e-9)
}

func TestRewardHandler_Record_Validation(t *testing.T) {
	router := rewardRouter(newTestEnv(t))
	caller := claimsFor("zen-garden", models.ActorTypeSystem)

	tests := []struct {
		name string
		body interface{}
	}{
		{"missing identity", map[string]interface{}{"source": "zen-garden", "kind": "daily", "baseValue": 1}},
		{"negative base value", emission.RecordRewardRequest{IdentityID: "u", Source: "s", Kind: "k", BaseValue: -1}},
		{"unknown field", map[string]interface{}{"identityId": "u", "source": "s", "kind": "k", "bonus": 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, http.MethodPost, "/rewards", tt.body, caller)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestRewardHandler_Get_Errors(t *testing.T) {
	router := rewardRouter(newTestEnv(t))
	caller := claimsFor("ops", models.ActorTypeAdmin)

	w := do(t, router, http.MethodGet, "/rewards/not-a-uuid", nil, caller)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodGet, "/rewards/"+uuid.NewString(), nil, caller)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRewardHandler_Balances_Empty(t *testing.T) {
	router := rewardRouter(newTestEnv(t))

	w := do(t, router, http.MethodGet, "/balances/nobody", nil, claimsFor("ops", models.ActorTypeAdmin))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"balances":[]`)
}

func TestRewardHandler_Adjust(t *testing.T) {
	env := newTestEnv(t)
	router := rewardRouter(env)
	admin := claimsFor("ops", models.ActorTypeAdmin, "admin")

	w := do(t, router, http.MethodPost, "/balances/adjust", emission.AdjustRequest{
		IdentityID: "user-1",
		Token:      "DREAM",
		Delta:      -3,
		Reason:     "chargeback",
	}, admin)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var balance models.BalanceRecord
	decodeSuccess(t, w, &balance)
	assert.InDelta(t, -3, balance.Amount, 1e-9, "balances may go negative")

	stored, err := env.engine.Ledger().GetBalance(context.Background(), "user-1", "DREAM")
	require.NoError(t, err)
	assert.InDelta(t, -3, stored.Amount, 1e-9)

	w = do(t, router, http.MethodPost, "/balances/adjust", emission.AdjustRequest{IdentityID: "user-1", Token: "DREAM"}, admin)
	assert.Equal(t, http.StatusBadRequest, w.Code, "zero delta is rejected")

	w = do(t, router, http.MethodPost, "/balances/adjust", emission.AdjustRequest{IdentityID: "user-1", Token: "DREAM", Delta: 1}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
