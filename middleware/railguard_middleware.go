package middleware

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/upb/governance-ledger/internal/observability"
	"github.com/upb/governance-ledger/services/railguard"
	"github.com/upb/governance-ledger/utils"
	"go.uber.org/zap"
)

const (
	// MaxCostHeader carries the prospective cost of the request
	MaxCostHeader = "X-Max-Cost"
	// AdvisoryHeader lists the throttle guards that would have tripped
	AdvisoryHeader = "X-RailGuard-Advisory"
)

// GuardChecker defines the interface for rail guard checks
type GuardChecker interface {
	CheckRailGuards(ctx context.Context, req railguard.CheckRequest) (*railguard.CheckResult, error)
	RecordRequest(ctx context.Context, cost float64, endpoint string) error
}

// RailGuardMiddleware gates spend-bearing endpoints on the configured rail guards
type RailGuardMiddleware struct {
	guards GuardChecker
	logger *zap.Logger
}

// NewRailGuardMiddleware creates a new RailGuardMiddleware
func NewRailGuardMiddleware(guards GuardChecker, logger *zap.Logger) *RailGuardMiddleware {
	return &RailGuardMiddleware{
		guards: guards,
		logger: logger,
	}
}

// Enforce checks every enabled guard before the handler runs and appends the
// request to the request log once the handler succeeded.
func (m *RailGuardMiddleware) Enforce(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := observability.FromContext(ctx, m.logger)

		cost, err := parseMaxCost(r.Header.Get(MaxCostHeader))
		if err != nil {
			_ = utils.WriteBadRequest(w, err.Error(), nil)
			return
		}

		endpoint := r.Method + " " + r.URL.Path
		result, err := m.guards.CheckRailGuards(ctx, railguard.CheckRequest{MaxCost: cost, Endpoint: endpoint})
		if err != nil {
			logger.Error("rail guard check failed", zap.Error(err))
			_ = utils.WriteError(w, http.StatusServiceUnavailable, "Rail guard check unavailable", nil)
			return
		}

		if !result.Allowed {
			details := map[string]interface{}{}
			if result.GuardID != nil {
				details["guard_id"] = result.GuardID.String()
			}
			logger.Warn("request blocked by rail guard",
				zap.String("endpoint", endpoint),
				zap.String("reason", result.Reason))
			_ = utils.WriteTooManyRequests(w, result.Reason, details)
			return
		}

		if len(result.Advisories) > 0 {
			names := make([]string, 0, len(result.Advisories))
			for _, a := range result.Advisories {
				names = append(names, a.Name)
			}
			w.Header().Set(AdvisoryHeader, strings.Join(names, ","))
		}

		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		if status := ww.Status(); status >= http.StatusBadRequest {
			return
		}
		// The handler has already answered, so a failed append is only logged.
		if err := m.guards.RecordRequest(context.WithoutCancel(ctx), cost, endpoint); err != nil {
			logger.Error("failed to record request", zap.Error(err))
		}
	})
}

func parseMaxCost(raw string) (float64, error) {
	if raw == "" {
		return 0, nil
	}
	cost, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || cost < 0 || math.IsNaN(cost) || math.IsInf(cost, 0) {
		return 0, fmt.Errorf("invalid %s header", MaxCostHeader)
	}
	return cost, nil
}
