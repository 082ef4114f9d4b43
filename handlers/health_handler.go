package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"sort"
	"time"

	"github.com/upb/governance-ledger/utils"
	"go.uber.org/zap"
)

const readinessTimeout = 5 * time.Second

const (
	checkHealthy   = "healthy"
	checkUnhealthy = "unhealthy"
	checkInMemory  = "in_memory"
)

// HealthResponse is the body of /healthz and /readyz
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// CheckFunc reports whether one dependency is usable
type CheckFunc func(ctx context.Context) error

type dependency struct {
	name  string
	check CheckFunc
}

// HealthHandler serves liveness and readiness checks
type HealthHandler struct {
	deps   []dependency
	fixed  map[string]string
	logger *zap.Logger
	now    func() time.Time
}

// NewHealthHandler pings db on readiness. A nil db means the in-memory store, which is always ready.
func NewHealthHandler(db *sql.DB, logger *zap.Logger) *HealthHandler {
	h := &HealthHandler{fixed: map[string]string{}, logger: logger, now: time.Now}
	if db == nil {
		h.fixed["database"] = checkInMemory
		return h
	}
	return h.WithCheck("database", pingDatabase(db))
}

// WithCheck registers a readiness dependency. Checks run in name order.
func (h *HealthHandler) WithCheck(name string, check CheckFunc) *HealthHandler {
	h.deps = append(h.deps, dependency{name: name, check: check})
	sort.SliceStable(h.deps, func(i, j int) bool { return h.deps[i].name < h.deps[j].name })
	return h
}

// HandleHealth handles GET /healthz. It answers 200 while the process serves.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, HealthResponse{Status: checkHealthy, Timestamp: h.timestamp()})
}

// HandleReadiness handles GET /readyz. Any failing dependency turns it into a 503.
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	resp := HealthResponse{Status: checkHealthy, Checks: make(map[string]string, len(h.fixed)+len(h.deps))}
	for name, state := range h.fixed {
		resp.Checks[name] = state
	}
	for _, d := range h.deps {
		if err := d.check(ctx); err != nil {
			h.logger.Warn("readiness check failed", zap.String("check", d.name), zap.Error(err))
			resp.Checks[d.name] = checkUnhealthy
			resp.Status = checkUnhealthy
			continue
		}
		resp.Checks[d.name] = checkHealthy
	}
	resp.Timestamp = h.timestamp()

	status := http.StatusOK
	if resp.Status != checkHealthy {
		status = http.StatusServiceUnavailable
	}
	if err := utils.WriteJSON(w, status, utils.SuccessResponse{Data: resp}); err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}

func (h *HealthHandler) timestamp() string {
	return h.now().UTC().Format(time.RFC3339)
}

// pingDatabase checks the pool and runs a trivial query
func pingDatabase(db *sql.DB) CheckFunc {
	return func(ctx context.Context) error {
		if err := db.PingContext(ctx); err != nil {
			return err
		}
		var one int
		return db.QueryRowContext(ctx, "SELECT 1").Scan(&one)
	}
}
