package handlers

import (
	"net/http"

	"github.com/upb/governance-ledger/middleware"
	"github.com/upb/governance-ledger/models"
	"github.com/upb/governance-ledger/services/policy"
	"github.com/upb/governance-ledger/utils"
	"go.uber.org/zap"
)

// CheckPolicyRequest asks for a decision on (capability, scope).
// Actor defaults to the caller; only admins may evaluate on behalf of another actor.
type CheckPolicyRequest struct {
	Capability models.Capability    `json:"capability" validate:"required"`
	Scope      models.Scope         `json:"scope" validate:"required"`
	Actor      *models.ActorContext `json:"actor,omitempty"`
}

// RuleResponse is one policy rule with its derived identifiers
type RuleResponse struct {
	PolicyID     string `json:"policyId"`
	MinApprovals int    `json:"minApprovals"`
	models.PolicyRule
}

// RulesResponse is the active policy document
type RulesResponse struct {
	Version string         `json:"version"`
	Source  string         `json:"source"`
	Rules   []RuleResponse `json:"rules"`
}

// AuthorizedResponse is returned once an action passed policy enforcement
type AuthorizedResponse struct {
	Status   string                 `json:"status"`
	Decision *models.PolicyDecision `json:"decision"`
}

// PolicyHandler handles policy-related HTTP requests
type PolicyHandler struct {
	enforcer *policy.Enforcer
	logger   *zap.Logger
}

// NewPolicyHandler creates a new PolicyHandler
func NewPolicyHandler(enforcer *policy.Enforcer, logger *zap.Logger) *PolicyHandler {
	return &PolicyHandler{
		enforcer: enforcer,
		logger:   logger,
	}
}

// HandleCheck handles POST /api/v1/policy/check
func (h *PolicyHandler) HandleCheck(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOf(w, r)
	if !ok {
		return
	}

	var req CheckPolicyRequest
	if !decodeBody(w, r, &req, h.logger) {
		return
	}

	if req.Actor != nil {
		claims := middleware.GetClaimsFromContext(r.Context())
		if claims == nil || !claims.IsAdmin() {
			_ = utils.WriteForbidden(w, "Only admins may evaluate policy for another actor")
			return
		}
		actor = req.Actor
	}

	decision := h.enforcer.CheckPolicy(actor, req.Capability, req.Scope)

	h.logger.Debug("policy check served",
		zap.String("request_id", requestIDOf(r)),
		zap.String("actor_id", actor.ActorID),
		zap.String("policy_id", decision.PolicyID),
		zap.Bool("allowed", decision.Allowed))

	_ = utils.WriteOK(w, decision)
}

// HandleRules handles GET /api/v1/policy/rules
func (h *PolicyHandler) HandleRules(w http.ResponseWriter, r *http.Request) {
	doc := h.enforcer.Document()

	rules := make([]RuleResponse, len(doc.Rules))
	for i := range doc.Rules {
		rule := &doc.Rules[i]
		rules[i] = RuleResponse{
			PolicyID:     policy.PolicyID(rule),
			MinApprovals: policy.MinApprovals(rule),
			PolicyRule:   *rule,
		}
	}

	_ = utils.WriteOK(w, RulesResponse{
		Version: doc.Version,
		Source:  doc.Source,
		Rules:   rules,
	})
}

// HandleAuthorized handles POST /api/v1/authorize/{capability}/{scope}.
// Policy enforcement runs in middleware; reaching the handler means the action is allowed.
func (h *PolicyHandler) HandleAuthorized(w http.ResponseWriter, r *http.Request) {
	decision := middleware.GetPolicyDecisionFromContext(r.Context())
	if decision == nil {
		h.logger.Error("policy decision missing from context",
			zap.String("request_id", requestIDOf(r)))
		_ = utils.WriteInternalServerError(w, "Policy decision unavailable")
		return
	}

	_ = utils.WriteOK(w, AuthorizedResponse{
		Status:   "allowed",
		Decision: decision,
	})
}
