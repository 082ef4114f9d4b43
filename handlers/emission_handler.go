package handlers

import (
	"context"
	"net/http"

	"github.com/upb/governance-ledger/models"
	"github.com/upb/governance-ledger/services/emission"
	"github.com/upb/governance-ledger/utils"
	"go.uber.org/zap"
)

// CycleResponse is the outcome of a manually triggered emission cycle
type CycleResponse struct {
	Report *models.CycleReport `json:"report"`
	Status *emission.Status    `json:"status"`
}

// EmissionHandler handles emission scheduler HTTP requests
type EmissionHandler struct {
	scheduler *emission.Scheduler
	logger    *zap.Logger
}

// NewEmissionHandler creates a new EmissionHandler
func NewEmissionHandler(scheduler *emission.Scheduler, logger *zap.Logger) *EmissionHandler {
	return &EmissionHandler{
		scheduler: scheduler,
		logger:    logger,
	}
}

// HandleStatus handles GET /api/v1/emission/status
func (h *EmissionHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.scheduler.Status(r.Context())
	if err != nil {
		h.logger.Error("failed to build emission status",
			zap.String("request_id", requestIDOf(r)),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, status)
}

// HandleRun handles POST /api/v1/emission/run (admin only).
// The cycle is bounded by its own timeout and survives a client disconnect.
func (h *EmissionHandler) HandleRun(w http.ResponseWriter, r *http.Request) {
	status, err := h.scheduler.RunCycle(context.WithoutCancel(r.Context()))
	if err != nil {
		h.logger.Warn("manual emission cycle failed",
			zap.String("request_id", requestIDOf(r)),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, CycleResponse{
		Report: h.scheduler.LastReport(),
		Status: status,
	})
}
