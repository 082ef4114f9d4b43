package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/upb/governance-ledger/app"
	"github.com/upb/governance-ledger/auth"
	"github.com/upb/governance-ledger/handlers"
	"github.com/upb/governance-ledger/middleware"
	"github.com/upb/governance-ledger/services/audit"
	"github.com/upb/governance-ledger/utils"
)

const requestTimeout = 60 * time.Second

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(requestTimeout))

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middleware.MaxCostHeader},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After", middleware.AdvisoryHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	logger := deps.Logger
	policyHandler := handlers.NewPolicyHandler(deps.Enforcer, logger)
	quorumHandler := handlers.NewQuorumHandler(deps.Enforcer, deps.Quorum, deps.Audit, logger)
	rewardHandler := handlers.NewRewardHandler(deps.Emission, logger)
	emissionHandler := handlers.NewEmissionHandler(deps.Scheduler, logger)
	railGuardHandler := handlers.NewRailGuardHandler(deps.RailGuards, logger)
	auditHandler := handlers.NewAuditHandler(deps.Audit, logger)
	healthHandler := newHealthHandler(deps)

	authn := deps.AuthMiddleware
	adminOnly := authn.RequireRole(auth.RoleAdmin)
	guarded := deps.RailGuardMiddleware.Enforce

	// Health check endpoints
	r.Get("/healthz", healthHandler.HandleHealth)
	r.Get("/readyz", healthHandler.HandleReadiness)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(authn.RequireAuth)
		r.Use(authn.ExtractActor)
		if deps.IngressLimiter != nil {
			r.Use(deps.IngressLimiter.Middleware)
		}

		// Policy evaluation
		r.Route("/policy", func(r chi.Router) {
			r.Post("/check", policyHandler.HandleCheck)
			r.Get("/rules", policyHandler.HandleRules)
		})

		// Enforcement check: the middleware chain decides, the handler only confirms
		r.With(deps.PolicyMiddleware.RequireRouteCapability, guarded).
			Post("/authorize/{capability}/{scope}", policyHandler.HandleAuthorized)

		// Quorum workflow
		r.Route("/quorum", func(r chi.Router) {
			r.Get("/", quorumHandler.HandleListPending)
			r.Post("/requests", quorumHandler.HandleRequest)
			r.Get("/{policyId}", quorumHandler.HandleGet)
			r.Post("/{policyId}/votes", quorumHandler.HandleVote)
		})

		// Reward ingestion
		r.Route("/rewards", func(r chi.Router) {
			r.With(guarded).Post("/", rewardHandler.HandleRecord)
			r.Get("/{id}", rewardHandler.HandleGet)
		})

		// Balances
		r.Route("/balances", func(r chi.Router) {
			r.With(adminOnly).Post("/adjust", rewardHandler.HandleAdjust)
			r.Get("/{identityId}", rewardHandler.HandleBalances)
		})

		// Emission scheduler
		r.Route("/emission", func(r chi.Router) {
			r.Get("/status", emissionHandler.HandleStatus)
			r.With(adminOnly).Post("/run", emissionHandler.HandleRun)
		})

		// Rail guards
		r.Route("/rail-guards", func(r chi.Router) {
			r.Get("/", railGuardHandler.HandleList)
			r.Post("/check", railGuardHandler.HandleCheck)
			r.Get("/summary", railGuardHandler.HandleSummary)
			r.Get("/{id}", railGuardHandler.HandleGet)

			r.Group(func(r chi.Router) {
				r.Use(adminOnly)
				r.Post("/", railGuardHandler.HandleCreate)
				r.Patch("/{id}", railGuardHandler.HandleUpdate)
				r.Post("/{id}/disable", railGuardHandler.HandleDisable)
			})
		})

		// Audit trail (require admin role)
		r.Route("/audit", func(r chi.Router) {
			r.Use(adminOnly)
			r.Get("/", auditHandler.HandleByAction)
			r.Get("/stats", auditHandler.HandleStats)
			r.Get("/{resourceType}/{resourceId}", auditHandler.HandleHistory)
		})
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})

	return r
}

func newHealthHandler(deps *app.Dependencies) *handlers.HealthHandler {
	h := handlers.NewHealthHandler(nil, deps.Logger)
	if deps.DB != nil {
		h = handlers.NewHealthHandler(deps.DB.DB, deps.Logger)
	}
	if deps.Redis != nil {
		h.WithCheck("redis", func(ctx context.Context) error {
			return deps.Redis.Ping(ctx).Err()
		})
	}
	h.WithCheck("audit", func(context.Context) error {
		if !deps.Audit.GetStats().Started {
			return audit.ErrNotRunning
		}
		return nil
	})
	return h
}
