package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/upb/governance-ledger/models"
	"github.com/upb/governance-ledger/services/emission"
	"github.com/upb/governance-ledger/utils"
	"go.uber.org/zap"
)

// RewardEventResponse is a raw reward event with the payouts applied for it
type RewardEventResponse struct {
	*models.RawRewardEvent
	Applied []*models.AppliedReward `json:"applied"`
}

// BalancesResponse lists every token balance of one identity
type BalancesResponse struct {
	IdentityID string                  `json:"identityId"`
	Balances   []*models.BalanceRecord `json:"balances"`
}

// RewardHandler handles reward ingestion and balance HTTP requests
type RewardHandler struct {
	engine *emission.Engine
	logger *zap.Logger
}

// NewRewardHandler creates a new RewardHandler
func NewRewardHandler(engine *emission.Engine, logger *zap.Logger) *RewardHandler {
	return &RewardHandler{
		engine: engine,
		logger: logger,
	}
}

// HandleRecord handles POST /api/v1/rewards.
// Events are stored unprocessed; the emission scheduler pays them out.
func (h *RewardHandler) HandleRecord(w http.ResponseWriter, r *http.Request) {
	var req emission.RecordRewardRequest
	if !decodeBody(w, r, &req, h.logger) {
		return
	}

	ev, err := h.engine.RecordRawReward(r.Context(), req)
	if err != nil {
		h.logger.Warn("failed to record reward event",
			zap.String("request_id", requestIDOf(r)),
			zap.String("identity_id", req.IdentityID),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteCreated(w, ev)
}

// HandleGet handles GET /api/v1/rewards/{id}
func (h *RewardHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		_ = utils.WriteBadRequest(w, "Invalid reward event ID", nil)
		return
	}

	ev, err := h.engine.GetRewardEvent(r.Context(), id)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	applied, err := h.engine.ListAppliedRewards(r.Context(), id)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	if applied == nil {
		applied = []*models.AppliedReward{}
	}

	_ = utils.WriteOK(w, RewardEventResponse{RawRewardEvent: ev, Applied: applied})
}

// HandleBalances handles GET /api/v1/balances/{identityId}
func (h *RewardHandler) HandleBalances(w http.ResponseWriter, r *http.Request) {
	identityID := chi.URLParam(r, "identityId")
	if identityID == "" {
		_ = utils.WriteBadRequest(w, "Identity ID is required", nil)
		return
	}

	balances, err := h.engine.Ledger().ListBalances(r.Context(), identityID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	if balances == nil {
		balances = []*models.BalanceRecord{}
	}

	_ = utils.WriteOK(w, BalancesResponse{IdentityID: identityID, Balances: balances})
}

// HandleAdjust handles POST /api/v1/balances/adjust (admin only)
func (h *RewardHandler) HandleAdjust(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOf(w, r)
	if !ok {
		return
	}

	var req emission.AdjustRequest
	if !decodeBody(w, r, &req, h.logger) {
		return
	}

	balance, err := h.engine.Ledger().AdminAdjust(r.Context(), actor.ActorID, req)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("balance adjusted by admin",
		zap.String("request_id", requestIDOf(r)),
		zap.String("actor_id", actor.ActorID),
		zap.String("identity_id", req.IdentityID),
		zap.String("token", req.Token),
		zap.Float64("delta", req.Delta))

	_ = utils.WriteOK(w, balance)
}
