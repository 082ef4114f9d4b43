package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/upb/governance-ledger/middleware"
	"github.com/upb/governance-ledger/models"
	"github.com/upb/governance-ledger/services/policy"
	"github.com/upb/governance-ledger/services/quorum"
	"github.com/upb/governance-ledger/utils"
	"go.uber.org/zap"
)

// QuorumRequest opens the quorum workflow for an action that requires approval
type QuorumRequest struct {
	Capability  models.Capability     `json:"capability" validate:"required"`
	Scope       models.Scope          `json:"scope" validate:"required"`
	PolicyID    string                `json:"policyId,omitempty"`
	QuorumTypes []models.ReviewerType `json:"quorumTypes,omitempty" validate:"omitempty,unique,dive,oneof=tech safety community finance governance"`
}

// VoteBody is one ballot cast by the caller as the reviewer type it names.
// The caller's token must carry the matching reviewer role.
type VoteBody struct {
	Vote       models.VoteValue    `json:"vote" validate:"required,oneof=approve reject"`
	QuorumType models.ReviewerType `json:"quorumType" validate:"required,oneof=tech safety community finance governance"`
}

// DecisionResponse is a quorum decision with its tallies
type DecisionResponse struct {
	*models.QuorumDecisionState
	Approvals  int `json:"approvals"`
	Rejections int `json:"rejections"`
}

// VoteRecorder writes ballots to the audit trail. Failures are logged only.
type VoteRecorder interface {
	LogQuorumVote(voterID string, vote models.VoteValue, state *models.QuorumDecisionState) error
}

// QuorumHandler handles quorum workflow HTTP requests
type QuorumHandler struct {
	enforcer *policy.Enforcer
	engine   *quorum.Engine
	recorder VoteRecorder
	logger   *zap.Logger
}

// NewQuorumHandler creates a new QuorumHandler. recorder may be nil.
func NewQuorumHandler(enforcer *policy.Enforcer, engine *quorum.Engine, recorder VoteRecorder, logger *zap.Logger) *QuorumHandler {
	return &QuorumHandler{
		enforcer: enforcer,
		engine:   engine,
		recorder: recorder,
		logger:   logger,
	}
}

// HandleRequest handles POST /api/v1/quorum/requests
func (h *QuorumHandler) HandleRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOf(w, r)
	if !ok {
		return
	}

	var req QuorumRequest
	if !decodeBody(w, r, &req, h.logger) {
		return
	}

	status, err := h.enforcer.RequestQuorumApproval(r.Context(), req.PolicyID, actor, req.Capability, req.Scope, req.QuorumTypes)
	if err != nil {
		h.logger.Warn("quorum request failed",
			zap.String("request_id", requestIDOf(r)),
			zap.String("actor_id", actor.ActorID),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteAccepted(w, status)
}

// HandleVote handles POST /api/v1/quorum/{policyId}/votes.
// The decision must already exist; its threshold and quorum types are reused.
func (h *QuorumHandler) HandleVote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := actorOf(w, r)
	if !ok {
		return
	}
	policyID := chi.URLParam(r, "policyId")

	var body VoteBody
	if !decodeBody(w, r, &body, h.logger) {
		return
	}

	current, err := h.engine.GetDecision(ctx, policyID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	if !containsReviewer(current.QuorumTypes, body.QuorumType) {
		_ = utils.WriteBadRequest(w, "Quorum type is not part of this decision", map[string]interface{}{
			"quorumTypes": current.QuorumTypes,
		})
		return
	}
	if claims := middleware.GetClaimsFromContext(ctx); claims == nil || !claims.CanReview(body.QuorumType) {
		h.logger.Warn("vote rejected, caller lacks reviewer role",
			zap.String("request_id", requestIDOf(r)),
			zap.String("policy_id", policyID),
			zap.String("voter_id", actor.ActorID),
			zap.String("quorum_type", string(body.QuorumType)))
		_ = utils.WriteForbidden(w, "Caller may not vote as "+string(body.QuorumType)+" reviewer")
		return
	}

	state, err := h.engine.Vote(ctx, quorum.VoteRequest{
		PolicyID:    policyID,
		VoterID:     actor.ActorID,
		Vote:        body.Vote,
		QuorumType:  body.QuorumType,
		QuorumTypes: current.QuorumTypes,
		Threshold:   current.Threshold,
	})
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.recordVote(ctx, actor.ActorID, body.Vote, state)

	h.logger.Info("quorum vote cast",
		zap.String("request_id", requestIDOf(r)),
		zap.String("policy_id", policyID),
		zap.String("voter_id", actor.ActorID),
		zap.String("vote", string(body.Vote)),
		zap.String("result", string(state.Result)))

	_ = utils.WriteOK(w, decisionResponse(state))
}

// HandleGet handles GET /api/v1/quorum/{policyId}
func (h *QuorumHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	state, err := h.engine.GetDecision(r.Context(), chi.URLParam(r, "policyId"))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, decisionResponse(state))
}

// HandleListPending handles GET /api/v1/quorum?limit=
func (h *QuorumHandler) HandleListPending(w http.ResponseWriter, r *http.Request) {
	limit, _, ok := pageParams(w, r)
	if !ok {
		return
	}

	states, err := h.engine.ListPending(r.Context(), limit)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	out := make([]DecisionResponse, len(states))
	for i, s := range states {
		out[i] = decisionResponse(s)
	}
	_ = utils.WriteOK(w, out)
}

func (h *QuorumHandler) recordVote(ctx context.Context, voterID string, vote models.VoteValue, state *models.QuorumDecisionState) {
	if h.recorder == nil {
		return
	}
	if err := h.recorder.LogQuorumVote(voterID, vote, state); err != nil {
		h.logger.Warn("failed to record quorum vote",
			zap.String("request_id", middleware.GetRequestIDFromContext(ctx)),
			zap.Error(err))
	}
}

func decisionResponse(state *models.QuorumDecisionState) DecisionResponse {
	approvals, rejections := state.Tally()
	return DecisionResponse{
		QuorumDecisionState: state,
		Approvals:           approvals,
		Rejections:          rejections,
	}
}

func containsReviewer(types []models.ReviewerType, t models.ReviewerType) bool {
	for _, v := range types {
		if v == t {
			return true
		}
	}
	return false
}
