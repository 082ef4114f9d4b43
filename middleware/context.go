package middleware

import (
	"context"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/upb/governance-ledger/auth"
	"github.com/upb/governance-ledger/models"
)

// Context key type to avoid collisions
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"

	// ClaimsKey is the context key for token claims
	ClaimsKey contextKey = "claims"

	// ActorKey is the context key for the caller's ActorContext
	ActorKey contextKey = "actor"

	// PolicyDecisionKey is the context key for the policy decision that let the request through
	PolicyDecisionKey contextKey = "policy_decision"
)

// GetRequestIDFromContext retrieves the request ID from context.
// Falls back to the id set by chi's RequestID middleware.
func GetRequestIDFromContext(ctx context.Context) string {
	if val := ctx.Value(RequestIDKey); val != nil {
		if requestID, ok := val.(string); ok {
			return requestID
		}
	}
	return chimw.GetReqID(ctx)
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetClaimsFromContext retrieves token claims from context
func GetClaimsFromContext(ctx context.Context) *auth.Claims {
	if val := ctx.Value(ClaimsKey); val != nil {
		if claims, ok := val.(*auth.Claims); ok {
			return claims
		}
	}
	return nil
}

// WithClaims adds token claims to the context
func WithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, ClaimsKey, claims)
}

// GetActorFromContext retrieves the caller's ActorContext
func GetActorFromContext(ctx context.Context) *models.ActorContext {
	if val := ctx.Value(ActorKey); val != nil {
		if actor, ok := val.(*models.ActorContext); ok {
			return actor
		}
	}
	return nil
}

// WithActor adds the caller's ActorContext to the context
func WithActor(ctx context.Context, actor *models.ActorContext) context.Context {
	return context.WithValue(ctx, ActorKey, actor)
}

// GetPolicyDecisionFromContext retrieves the decision stored by RequireCapability
func GetPolicyDecisionFromContext(ctx context.Context) *models.PolicyDecision {
	if val := ctx.Value(PolicyDecisionKey); val != nil {
		if decision, ok := val.(*models.PolicyDecision); ok {
			return decision
		}
	}
	return nil
}

// WithPolicyDecision adds a policy decision to the context
func WithPolicyDecision(ctx context.Context, decision *models.PolicyDecision) context.Context {
	return context.WithValue(ctx, PolicyDecisionKey, decision)
}
