package handlers

import (
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/governance-ledger/middleware"
	"github.com/upb/governance-ledger/models"
	"github.com/upb/governance-ledger/services/policy"
	"go.uber.org/zap"
)

func policyRouter(env *testEnv) http.Handler {
	h := NewPolicyHandler(env.enforcer, zap.NewNop())
	enforce := middleware.NewPolicyEnforcementMiddleware(env.enforcer, zap.NewNop())
	return newRouter(func(r chi.Router) {
		r.Post("/policy/check", h.HandleCheck)
		r.Get("/policy/rules", h.HandleRules)
		r.With(enforce.RequireRouteCapability).Post("/authorize/{capability}/{scope}", h.HandleAuthorized)
	})
}

func TestHandleCheck(t *testing.T) {
	router := policyRouter(newTestEnv(t))

	t.Run("allowed for the caller", func(t *testing.T) {
		w := do(t, router, http.MethodPost, "/policy/check", CheckPolicyRequest{
			Capability: models.CapabilityPublish,
			Scope:      models.ScopeDream,
		}, claimsFor("agent-1", models.ActorTypeAgent))

		require.Equal(t, http.StatusOK, w.Code)
		var decision models.PolicyDecision
		decodeSuccess(t, w, &decision)
		assert.True(t, decision.Allowed)
		assert.False(t, decision.RequiresQuorum)
		assert.NotEmpty(t, decision.PolicyID)
	})

	t.Run("quorum rules never allow directly", func(t *testing.T) {
		w := do(t, router, http.MethodPost, "/policy/check", CheckPolicyRequest{
			Capability: models.CapabilityMonetize,
			Scope:      models.ScopeToken,
		}, claimsFor("wallet-1", models.ActorTypeWallet))

		require.Equal(t, http.StatusOK, w.Code)
		var decision models.PolicyDecision
		decodeSuccess(t, w, &decision)
		assert.False(t, decision.Allowed)
		assert.True(t, decision.RequiresQuorum)
		assert.ElementsMatch(t, []models.ReviewerType{models.ReviewerFinance, models.ReviewerSafety}, decision.QuorumTypes)
	})

	t.Run("unmatched triple is denied", func(t *testing.T) {
		w := do(t, router, http.MethodPost, "/policy/check", CheckPolicyRequest{
			Capability: models.CapabilityDeploy,
			Scope:      models.ScopeInfrastructure,
		}, claimsFor("agent-1", models.ActorTypeAgent))

		require.Equal(t, http.StatusOK, w.Code)
		var decision models.PolicyDecision
		decodeSuccess(t, w, &decision)
		assert.False(t, decision.Allowed)
		assert.Equal(t, policy.ReasonNoRule, decision.Reason)
	})

	t.Run("anonymous caller is rejected", func(t *testing.T) {
		w := do(t, router, http.MethodPost, "/policy/check", CheckPolicyRequest{
			Capability: models.CapabilityPublish,
			Scope:      models.ScopeDream,
		}, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("missing capability fails validation", func(t *testing.T) {
		w := do(t, router, http.MethodPost, "/policy/check", map[string]string{"scope": "dream"},
			claimsFor("agent-1", models.ActorTypeAgent))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	other := &models.ActorContext{ActorID: "agent-2", ActorType: models.ActorTypeAgent, TrustScore: 0.2}

	t.Run("non-admin cannot evaluate for another actor", func(t *testing.T) {
		w := do(t, router, http.MethodPost, "/policy/check", CheckPolicyRequest{
			Capability: models.CapabilityPublish,
			Scope:      models.ScopeDream,
			Actor:      other,
		}, claimsFor("agent-1", models.ActorTypeAgent))
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("admin evaluates for another actor", func(t *testing.T) {
		w := do(t, router, http.MethodPost, "/policy/check", CheckPolicyRequest{
			Capability: models.CapabilityPublish,
			Scope:      models.ScopeDream,
			Actor:      other,
		}, claimsFor("ops", models.ActorTypeAdmin, "admin"))

		require.Equal(t, http.StatusOK, w.Code)
		var decision models.PolicyDecision
		decodeSuccess(t, w, &decision)
		assert.False(t, decision.Allowed)
		assert.Equal(t, policy.ReasonConditionsNotMet, decision.Reason)
	})
}

func TestHandleRules(t *testing.T) {
	router := policyRouter(newTestEnv(t))

	w := do(t, router, http.MethodGet, "/policy/rules", nil, claimsFor("agent-1", models.ActorTypeAgent))

	require.Equal(t, http.StatusOK, w.Code)
	var rules RulesResponse
	decodeSuccess(t, w, &rules)
	assert.Equal(t, "builtin-1", rules.Version)
	assert.Equal(t, policy.BuiltinSource, rules.Source)
	require.Len(t, rules.Rules, 9)

	byKey := make(map[string]RuleResponse, len(rules.Rules))
	for _, rule := range rules.Rules {
		assert.NotEmpty(t, rule.PolicyID)
		byKey[rule.Key()] = rule
	}
	assert.Equal(t, 2, byKey["admin:modify_schema:global"].MinApprovals)
	assert.Equal(t, 1, byKey["system:payout:token"].MinApprovals)
	assert.Equal(t, 0, byKey["agent:publish:dream"].MinApprovals)
}

func TestHandleAuthorized(t *testing.T) {
	router := policyRouter(newTestEnv(t))

	t.Run("allowed action reaches the handler", func(t *testing.T) {
		w := do(t, router, http.MethodPost, "/authorize/remix/dream", nil, claimsFor("agent-1", models.ActorTypeAgent))

		require.Equal(t, http.StatusOK, w.Code)
		var resp AuthorizedResponse
		decodeSuccess(t, w, &resp)
		assert.Equal(t, "allowed", resp.Status)
		require.NotNil(t, resp.Decision)
		assert.True(t, resp.Decision.Allowed)
	})

	t.Run("quorum action is held", func(t *testing.T) {
		w := do(t, router, http.MethodPost, "/authorize/deploy/infrastructure", nil, claimsFor("ops", models.ActorTypeAdmin, "admin"))
		assert.Equal(t, http.StatusAccepted, w.Code)
		assert.Contains(t, w.Body.String(), middleware.StatusPendingQuorum)
	})

	t.Run("denied action is forbidden", func(t *testing.T) {
		w := do(t, router, http.MethodPost, "/authorize/deploy/infrastructure", nil, claimsFor("agent-1", models.ActorTypeAgent))
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("decision missing without middleware", func(t *testing.T) {
		h := NewPolicyHandler(newTestEnv(t).enforcer, zap.NewNop())
		bare := newRouter(func(r chi.Router) { r.Post("/authorize/{capability}/{scope}", h.HandleAuthorized) })
		w := do(t, bare, http.MethodPost, "/authorize/remix/dream", nil, claimsFor("agent-1", models.ActorTypeAgent))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}
