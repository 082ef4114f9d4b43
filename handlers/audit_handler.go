package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/upb/governance-ledger/models"
	"github.com/upb/governance-ledger/services/audit"
	"github.com/upb/governance-ledger/utils"
	"go.uber.org/zap"
)

var auditResources = map[string]bool{
	audit.ResourcePolicy:    true,
	audit.ResourceQuorum:    true,
	audit.ResourceReward:    true,
	audit.ResourceBalance:   true,
	audit.ResourceRailGuard: true,
	audit.ResourceEmission:  true,
}

// AuditHandler serves the audit trail (admin only)
type AuditHandler struct {
	service *audit.AuditService
	logger  *zap.Logger
}

// NewAuditHandler creates a new AuditHandler
func NewAuditHandler(service *audit.AuditService, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{
		service: service,
		logger:  logger,
	}
}

// HandleHistory handles GET /api/v1/audit/{resourceType}/{resourceId}
func (h *AuditHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	resourceType := chi.URLParam(r, "resourceType")
	if !auditResources[resourceType] {
		_ = utils.WriteBadRequest(w, "Unknown resource type", map[string]interface{}{
			"resourceType": resourceType,
		})
		return
	}
	limit, _, ok := pageParams(w, r)
	if !ok {
		return
	}

	logs, err := h.service.History(r.Context(), resourceType, chi.URLParam(r, "resourceId"), limit)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	if logs == nil {
		logs = []*models.AuditLog{}
	}
	_ = utils.WriteOK(w, logs)
}

// HandleByAction handles GET /api/v1/audit?action=&limit=&offset=
func (h *AuditHandler) HandleByAction(w http.ResponseWriter, r *http.Request) {
	action := models.AuditAction(r.URL.Query().Get("action"))
	if action == "" {
		_ = utils.WriteBadRequest(w, "action query parameter is required", nil)
		return
	}
	limit, offset, ok := pageParams(w, r)
	if !ok {
		return
	}

	logs, err := h.service.ByAction(r.Context(), action, limit, offset)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	if logs == nil {
		logs = []*models.AuditLog{}
	}
	_ = utils.WriteOK(w, logs)
}

// HandleStats handles GET /api/v1/audit/stats
func (h *AuditHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, h.service.GetStats())
}
