package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/upb/governance-ledger/models"
	"github.com/upb/governance-ledger/utils"
	"go.uber.org/zap"
)

// PolicyChecker defines the interface for policy evaluation
type PolicyChecker interface {
	CheckPolicy(actor *models.ActorContext, capability models.Capability, scope models.Scope) *models.PolicyDecision
}

// PendingQuorumResponse is the 202 body for actions that need quorum approval
type PendingQuorumResponse struct {
	Status      string                `json:"status"`
	PolicyID    string                `json:"policyId"`
	QuorumTypes []models.ReviewerType `json:"quorumTypes"`
}

// DeniedResponse is the 403 body for denied actions
type DeniedResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

// StatusPendingQuorum is the status reported while a quorum decision is required
const StatusPendingQuorum = "pending_quorum"

// PolicyEnforcementMiddleware provides policy enforcement functionality
type PolicyEnforcementMiddleware struct {
	checker PolicyChecker
	logger  *zap.Logger
}

// NewPolicyEnforcementMiddleware creates a new PolicyEnforcementMiddleware
func NewPolicyEnforcementMiddleware(checker PolicyChecker, logger *zap.Logger) *PolicyEnforcementMiddleware {
	return &PolicyEnforcementMiddleware{
		checker: checker,
		logger:  logger,
	}
}

// RequireCapability is a middleware that enforces a fixed (capability, scope) pair.
// This should be called after RequireAuth and ExtractActor.
func (m *PolicyEnforcementMiddleware) RequireCapability(capability models.Capability, scope models.Scope) func(http.Handler) http.Handler {
	return m.enforce(func(*http.Request) (models.Capability, models.Scope) {
		return capability, scope
	})
}

// RequireRouteCapability enforces the pair named by the {capability} and {scope} URL params
func (m *PolicyEnforcementMiddleware) RequireRouteCapability(next http.Handler) http.Handler {
	return m.enforce(func(r *http.Request) (models.Capability, models.Scope) {
		return models.Capability(chi.URLParam(r, "capability")), models.Scope(chi.URLParam(r, "scope"))
	})(next)
}

func (m *PolicyEnforcementMiddleware) enforce(target func(*http.Request) (models.Capability, models.Scope)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := GetRequestIDFromContext(ctx)

			actor := GetActorFromContext(ctx)
			if actor == nil {
				m.logger.Error("actor not found in context",
					zap.String("request_id", requestID))
				_ = utils.WriteUnauthorized(w, "Authentication required")
				return
			}

			capability, scope := target(r)
			decision := m.checker.CheckPolicy(actor, capability, scope)

			switch {
			case decision.RequiresQuorum:
				m.logger.Info("action requires quorum approval",
					zap.String("request_id", requestID),
					zap.String("actor_id", actor.ActorID),
					zap.String("policy_id", decision.PolicyID))
				_ = utils.WriteJSON(w, http.StatusAccepted, PendingQuorumResponse{
					Status:      StatusPendingQuorum,
					PolicyID:    decision.PolicyID,
					QuorumTypes: decision.QuorumTypes,
				})
				return

			case !decision.Allowed:
				m.logger.Warn("request blocked by policy",
					zap.String("request_id", requestID),
					zap.String("actor_id", actor.ActorID),
					zap.String("capability", string(capability)),
					zap.String("scope", string(scope)),
					zap.String("reason", decision.Reason))
				_ = utils.WriteJSON(w, http.StatusForbidden, DeniedResponse{
					Error:  "forbidden",
					Reason: decision.Reason,
				})
				return
			}

			m.logger.Debug("policy enforcement passed",
				zap.String("request_id", requestID),
				zap.String("policy_id", decision.PolicyID))

			next.ServeHTTP(w, r.WithContext(WithPolicyDecision(ctx, decision)))
		})
	}
}
