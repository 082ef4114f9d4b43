package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/upb/governance-ledger/models"
	"github.com/upb/governance-ledger/services/railguard"
	"github.com/upb/governance-ledger/utils"
	"go.uber.org/zap"
)

// RailGuardHandler handles rail guard HTTP requests
type RailGuardHandler struct {
	service *railguard.Service
	logger  *zap.Logger
}

// NewRailGuardHandler creates a new RailGuardHandler
func NewRailGuardHandler(service *railguard.Service, logger *zap.Logger) *RailGuardHandler {
	return &RailGuardHandler{
		service: service,
		logger:  logger,
	}
}

// HandleList handles GET /api/v1/rail-guards
func (h *RailGuardHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	guards, err := h.service.ListRailGuards(r.Context())
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	if guards == nil {
		guards = []*models.RailGuard{}
	}
	_ = utils.WriteOK(w, guards)
}

// HandleCreate handles POST /api/v1/rail-guards (admin only)
func (h *RailGuardHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req railguard.CreateRequest
	if !decodeBody(w, r, &req, h.logger) {
		return
	}

	guard, err := h.service.CreateRailGuard(r.Context(), req)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteCreated(w, guard)
}

// HandleGet handles GET /api/v1/rail-guards/{id}
func (h *RailGuardHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := guardID(w, r)
	if !ok {
		return
	}

	guard, err := h.service.GetRailGuard(r.Context(), id)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, guard)
}

// HandleUpdate handles PATCH /api/v1/rail-guards/{id} (admin only)
func (h *RailGuardHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := guardID(w, r)
	if !ok {
		return
	}

	var req railguard.UpdateRequest
	if !decodeBody(w, r, &req, h.logger) {
		return
	}

	guard, err := h.service.UpdateRailGuard(r.Context(), id, req)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, guard)
}

// HandleDisable handles POST /api/v1/rail-guards/{id}/disable (admin only)
func (h *RailGuardHandler) HandleDisable(w http.ResponseWriter, r *http.Request) {
	id, ok := guardID(w, r)
	if !ok {
		return
	}

	guard, err := h.service.DisableRailGuard(r.Context(), id)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, guard)
}

// HandleCheck handles POST /api/v1/rail-guards/check.
// It evaluates the guards without recording a request.
func (h *RailGuardHandler) HandleCheck(w http.ResponseWriter, r *http.Request) {
	var req railguard.CheckRequest
	if !decodeBody(w, r, &req, h.logger) {
		return
	}

	result, err := h.service.CheckRailGuards(r.Context(), req)
	if err != nil {
		h.logger.Error("rail guard check failed",
			zap.String("request_id", requestIDOf(r)),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, result)
}

// HandleSummary handles GET /api/v1/rail-guards/summary
func (h *RailGuardHandler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Summary(r.Context())
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, summary)
}

func guardID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		_ = utils.WriteBadRequest(w, "Invalid rail guard ID", nil)
		return uuid.Nil, false
	}
	return id, true
}
