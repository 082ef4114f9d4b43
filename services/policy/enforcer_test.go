package policy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/governance-ledger/models"
	"github.com/upb/governance-ledger/repositories/memory"
	"github.com/upb/governance-ledger/services"
	"github.com/upb/governance-ledger/services/quorum"
	"go.uber.org/zap"
)

type mockRecorder struct {
	mock.Mock
}

func (m *mockRecorder) LogPolicyDecision(actor *models.ActorContext, capability models.Capability, scope models.Scope, decision *models.PolicyDecision) error {
	return m.Called(actor, capability, scope, decision).Error(0)
}

func (m *mockRecorder) LogQuorumRequested(actor *models.ActorContext, status *models.QuorumRequestStatus) error {
	return m.Called(actor, status).Error(0)
}

func newTestEnforcer(selfApprove bool) (*Enforcer, *quorum.Engine) {
	engine := quorum.NewEngine(memory.NewQuorumRepository(), memory.NewTransactionManager(), zap.NewNop())
	table := NewTable(time.Minute, zap.NewNop())
	return NewEnforcer(table, engine, EnforcerConfig{SelfApprove: selfApprove}, zap.NewNop()), engine
}

func trustedAgent() *models.ActorContext {
	return &models.ActorContext{ActorID: "agent-1", ActorType: models.ActorTypeAgent, TrustScore: 0.9}
}

func TestCheckPolicy(t *testing.T) {
	enforcer, _ := newTestEnforcer(true)

	tests := []struct {
		name           string
		actor          *models.ActorContext
		capability     models.Capability
		scope          models.Scope
		wantAllowed    bool
		wantQuorum     bool
		wantReversible bool
		wantReason     string
	}{
		{
			name:  "agent publish allowed",
			actor: trustedAgent(), capability: models.CapabilityPublish, scope: models.ScopeDream,
			wantAllowed: true, wantReversible: true,
		},
		{
			name:  "agent publish low trust",
			actor: &models.ActorContext{ActorID: "a", ActorType: models.ActorTypeAgent, TrustScore: 0.2}, capability: models.CapabilityPublish, scope: models.ScopeDream,
			wantReversible: true, wantReason: ReasonConditionsNotMet,
		},
		{
			name:  "no rule",
			actor: trustedAgent(), capability: models.CapabilityDeploy, scope: models.ScopeDream,
			wantReason: ReasonNoRule,
		},
		{
			name:  "wallet monetize needs quorum",
			actor: &models.ActorContext{ActorID: "w", ActorType: models.ActorTypeWallet, StakedTokens: 150}, capability: models.CapabilityMonetize, scope: models.ScopeToken,
			wantQuorum: true, wantReason: ReasonQuorumRequired,
		},
		{
			name:  "wallet payout missing badge",
			actor: &models.ActorContext{ActorID: "w", ActorType: models.ActorTypeWallet, TrustScore: 0.95}, capability: models.CapabilityPayout, scope: models.ScopeToken,
			wantReason: ReasonConditionsNotMet,
		},
		{
			name:  "agent payout via system wildcard",
			actor: trustedAgent(), capability: models.CapabilityPayout, scope: models.ScopeToken,
			wantQuorum: true, wantReason: ReasonQuorumRequired,
		},
		{
			name:  "nil actor",
			actor: nil, capability: models.CapabilityPublish, scope: models.ScopeDream,
			wantReason: ReasonNoActor,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision := enforcer.CheckPolicy(tt.actor, tt.capability, tt.scope)
			assert.Equal(t, tt.wantAllowed, decision.Allowed)
			assert.Equal(t, tt.wantQuorum, decision.RequiresQuorum)
			assert.Equal(t, tt.wantReversible, decision.Reversible)
			assert.Equal(t, tt.wantReason, decision.Reason)
			assert.NotEmpty(t, decision.PolicyID)
			assert.NotNil(t, decision.QuorumTypes)
		})
	}
}

func TestCheckPolicy_QuorumTypesAndPolicyID(t *testing.T) {
	enforcer, _ := newTestEnforcer(true)
	admin := &models.ActorContext{ActorID: "root", ActorType: models.ActorTypeAdmin}

	decision := enforcer.CheckPolicy(admin, models.CapabilityDeploy, models.ScopeInfrastructure)
	assert.Equal(t, []models.ReviewerType{models.ReviewerTech, models.ReviewerSafety}, decision.QuorumTypes)

	rule := FindMatchingRule(Builtin(), models.ActorTypeAdmin, models.CapabilityDeploy, models.ScopeInfrastructure)
	assert.Equal(t, PolicyID(rule), decision.PolicyID)
}

func TestCheckPolicy_RecordsDecision(t *testing.T) {
	enforcer, _ := newTestEnforcer(true)
	recorder := new(mockRecorder)
	enforcer.SetRecorder(recorder)

	recorder.On("LogPolicyDecision", mock.Anything, models.CapabilityRemix, models.ScopeDream, mock.MatchedBy(func(d *models.PolicyDecision) bool {
		return d.Allowed
	})).Return(errors.New("buffer full"))

	decision := enforcer.CheckPolicy(trustedAgent(), models.CapabilityRemix, models.ScopeDream)
	assert.True(t, decision.Allowed, "recorder failure must not change the decision")
	recorder.AssertExpectations(t)
}

func TestRequestQuorumApproval_SelfApprove(t *testing.T) {
	ctx := context.Background()
	enforcer, engine := newTestEnforcer(true)
	wallet := &models.ActorContext{ActorID: "w1", ActorType: models.ActorTypeWallet, StakedTokens: 500}

	decision := enforcer.CheckPolicy(wallet, models.CapabilityMonetize, models.ScopeToken)
	require.True(t, decision.RequiresQuorum)

	status, err := enforcer.RequestQuorumApproval(ctx, decision.PolicyID, wallet, models.CapabilityMonetize, models.ScopeToken, nil)
	require.NoError(t, err)
	assert.Equal(t, decision.PolicyID, status.PolicyID)
	assert.Equal(t, models.QuorumPending, status.Status)

	state, err := engine.GetDecision(ctx, decision.PolicyID)
	require.NoError(t, err)
	require.Len(t, state.Votes, 1)
	assert.Equal(t, "w1", state.Votes[0].VoterID)
	assert.Equal(t, models.VoteApprove, state.Votes[0].Vote)
	assert.Equal(t, 2, state.Threshold)
	assert.Equal(t, []models.ReviewerType{models.ReviewerFinance, models.ReviewerSafety}, state.QuorumTypes)
}

func TestRequestQuorumApproval_WithoutSelfApprove(t *testing.T) {
	ctx := context.Background()
	enforcer, engine := newTestEnforcer(false)
	admin := &models.ActorContext{ActorID: "root", ActorType: models.ActorTypeAdmin}

	status, err := enforcer.RequestQuorumApproval(ctx, "", admin, models.CapabilityManageKeys, models.ScopeInfrastructure, nil)
	require.NoError(t, err)
	assert.Equal(t, models.QuorumPending, status.Status)

	state, err := engine.GetDecision(ctx, status.PolicyID)
	require.NoError(t, err)
	assert.Empty(t, state.Votes)
	assert.Equal(t, 1, state.Threshold)
}

func TestRequestQuorumApproval_TerminalIsIdempotent(t *testing.T) {
	ctx := context.Background()
	enforcer, engine := newTestEnforcer(true)
	admin := &models.ActorContext{ActorID: "root", ActorType: models.ActorTypeAdmin}

	status, err := enforcer.RequestQuorumApproval(ctx, "", admin, models.CapabilityDeploy, models.ScopeInfrastructure, nil)
	require.NoError(t, err)

	for _, voter := range []string{"tech-1", "safety-1"} {
		_, err := engine.Vote(ctx, quorum.VoteRequest{PolicyID: status.PolicyID, VoterID: voter, Vote: models.VoteReject, Threshold: 2})
		require.NoError(t, err)
	}

	again, err := enforcer.RequestQuorumApproval(ctx, status.PolicyID, admin, models.CapabilityDeploy, models.ScopeInfrastructure, nil)
	require.NoError(t, err)
	assert.Equal(t, models.QuorumRejected, again.Status)

	state, err := engine.GetDecision(ctx, status.PolicyID)
	require.NoError(t, err)
	assert.Len(t, state.Votes, 3, "no vote is added to a terminal decision")
}

func TestRequestQuorumApproval_QuorumTypesMustBelongToRule(t *testing.T) {
	ctx := context.Background()
	wallet := &models.ActorContext{ActorID: "w1", ActorType: models.ActorTypeWallet, StakedTokens: 500}

	t.Run("foreign reviewer type is rejected", func(t *testing.T) {
		enforcer, engine := newTestEnforcer(true)

		_, err := enforcer.RequestQuorumApproval(ctx, "", wallet, models.CapabilityMonetize, models.ScopeToken,
			[]models.ReviewerType{models.ReviewerFinance, models.ReviewerCommunity})
		require.Error(t, err)
		assert.True(t, services.IsValidationError(err))

		pending, err := engine.ListPending(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, pending, "no decision is opened")
	})

	t.Run("subset of the rule's reviewers is kept", func(t *testing.T) {
		enforcer, engine := newTestEnforcer(true)

		status, err := enforcer.RequestQuorumApproval(ctx, "", wallet, models.CapabilityMonetize, models.ScopeToken,
			[]models.ReviewerType{models.ReviewerSafety})
		require.NoError(t, err)

		state, err := engine.GetDecision(ctx, status.PolicyID)
		require.NoError(t, err)
		assert.Equal(t, []models.ReviewerType{models.ReviewerSafety}, state.QuorumTypes)
	})
}

func TestRequestQuorumApproval_Errors(t *testing.T) {
	ctx := context.Background()
	enforcer, _ := newTestEnforcer(true)
	agent := trustedAgent()

	_, err := enforcer.RequestQuorumApproval(ctx, "", agent, models.CapabilityDeploy, models.ScopeGlobal, nil)
	assert.True(t, errors.Is(err, services.ErrPolicyRuleNotFound))

	_, err = enforcer.RequestQuorumApproval(ctx, "", agent, models.CapabilityPublish, models.ScopeDream, nil)
	assert.True(t, services.IsValidationError(err), "rule without quorum")

	_, err = enforcer.RequestQuorumApproval(ctx, "not-the-id", agent, models.CapabilityPayout, models.ScopeToken, nil)
	assert.True(t, services.IsValidationError(err), "mismatched policy id")

	_, err = enforcer.RequestQuorumApproval(ctx, "", nil, models.CapabilityPayout, models.ScopeToken, nil)
	assert.True(t, services.IsValidationError(err), "missing actor")
}

var (
	genActorType  = gen.IntRange(0, len(models.AllActorTypes)-1).Map(func(i int) models.ActorType { return models.AllActorTypes[i] })
	genCapability = gen.IntRange(0, len(models.AllCapabilities)-1).Map(func(i int) models.Capability { return models.AllCapabilities[i] })
	genScope      = gen.IntRange(0, len(models.AllScopes)-1).Map(func(i int) models.Scope { return models.AllScopes[i] })
)

func TestCheckPolicy_Properties(t *testing.T) {
	enforcer, _ := newTestEnforcer(true)
	doc := Builtin()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	properties.Property("unmatched requests are denied without quorum", prop.ForAll(
		func(actorType models.ActorType, capability models.Capability, scope models.Scope) bool {
			if FindMatchingRule(doc, actorType, capability, scope) != nil {
				return true
			}
			actor := &models.ActorContext{ActorID: "x", ActorType: actorType, TrustScore: 1, StakedTokens: 1e6, CompletedDreams: 1000, Badges: []string{"verified"}}
			d := enforcer.CheckPolicy(actor, capability, scope)
			return !d.Allowed && !d.RequiresQuorum
		},
		genActorType, genCapability, genScope,
	))

	properties.Property("quorum rules never allow directly", prop.ForAll(
		func(actorType models.ActorType, capability models.Capability, scope models.Scope, trust float64, staked float64, verified bool) bool {
			rule := FindMatchingRule(doc, actorType, capability, scope)
			if rule == nil || !rule.RequiresQuorum() {
				return true
			}
			actor := &models.ActorContext{ActorID: "x", ActorType: actorType, TrustScore: trust, StakedTokens: staked}
			if verified {
				actor.Badges = []string{"verified"}
			}
			return !enforcer.CheckPolicy(actor, capability, scope).Allowed
		},
		genActorType, genCapability, genScope,
		gen.Float64Range(0, 1), gen.Float64Range(0, 1000), gen.Bool(),
	))

	properties.TestingRun(t)
}

func TestCheckPolicy_NoQuorumSatisfiedAllowsProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("rules without quorum and satisfied conditions allow", prop.ForAll(
		func(actorType models.ActorType, capability models.Capability, scope models.Scope, minTrust float64, reversible bool) bool {
			doc := &models.PolicyDocument{Rules: []models.PolicyRule{{
				Actor:        actorType,
				Capability:   capability,
				Scope:        scope,
				Reversible:   reversible,
				ReviewQuorum: []models.ReviewerType{},
				Conditions:   map[string]interface{}{"minTrustScore": minTrust},
			}}}
			table := NewTable(time.Minute, zap.NewNop())
			table.cache.Set("generated.yaml", doc)
			enforcer := NewEnforcer(table, nil, EnforcerConfig{PolicyFile: "generated.yaml"}, zap.NewNop())

			actor := &models.ActorContext{ActorID: "x", ActorType: actorType, TrustScore: minTrust}
			d := enforcer.CheckPolicy(actor, capability, scope)
			return d.Allowed && !d.RequiresQuorum && d.Reversible == reversible
		},
		genActorType, genCapability, genScope, gen.Float64Range(0, 1), gen.Bool(),
	))

	properties.TestingRun(t)
}
