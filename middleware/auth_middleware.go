package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/upb/governance-ledger/auth"
	"github.com/upb/governance-ledger/internal/observability"
	"github.com/upb/governance-ledger/utils"
	"go.uber.org/zap"
)

// TokenValidator turns a bearer token into verified claims
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*auth.Claims, error)
}

// AuthMiddleware authenticates callers and resolves their actor identity
type AuthMiddleware struct {
	validator TokenValidator
	logger    *zap.Logger
}

func NewAuthMiddleware(validator TokenValidator, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{validator: validator, logger: logger}
}

// authTokenCookieName is checked when no Authorization header is sent
const authTokenCookieName = "auth_token"

// RequireAuth rejects requests without a valid token and stores the claims in the context
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := observability.WithFields(r.Context(),
			zap.String("request_id", GetRequestIDFromContext(r.Context())))
		logger := observability.FromContext(ctx, m.logger)

		token := extractToken(r)
		if token == "" {
			logger.Warn("missing token")
			_ = utils.WriteUnauthorized(w, "Missing or invalid authorization")
			return
		}

		claims, err := m.validator.ValidateToken(ctx, token)
		if err != nil {
			logger.Warn("token validation failed", zap.Error(err))
			_ = utils.WriteUnauthorized(w, "Invalid or expired token")
			return
		}

		logger.Debug("authenticated", zap.String("subject", claims.Subject))
		next.ServeHTTP(w, r.WithContext(WithClaims(ctx, claims)))
	})
}

// ExtractActor derives the caller's ActorContext from the claims. Run it after RequireAuth.
func (m *AuthMiddleware) ExtractActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		claims, ok := m.claims(w, r)
		if !ok {
			return
		}

		actor := claims.ToActorContext()
		if !actor.ActorType.IsValid() {
			observability.FromContext(ctx, m.logger).Warn("invalid actor type in claims",
				zap.String("actor_type", string(actor.ActorType)))
			_ = utils.WriteForbidden(w, "Invalid actor type")
			return
		}

		ctx = observability.WithFields(ctx,
			zap.String("actor_id", actor.ActorID),
			zap.String("actor_type", string(actor.ActorType)))
		next.ServeHTTP(w, r.WithContext(WithActor(ctx, actor)))
	})
}

// RequireRole allows only callers whose claims carry role
func (m *AuthMiddleware) RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := m.claims(w, r)
			if !ok {
				return
			}
			if !claims.HasRole(role) {
				observability.FromContext(r.Context(), m.logger).Warn("insufficient permissions",
					zap.String("required_role", role),
					zap.Strings("roles", claims.Roles))
				_ = utils.WriteForbidden(w, "Insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// claims writes 401 and reports false when RequireAuth did not run first
func (m *AuthMiddleware) claims(w http.ResponseWriter, r *http.Request) (*auth.Claims, bool) {
	claims := GetClaimsFromContext(r.Context())
	if claims == nil {
		observability.FromContext(r.Context(), m.logger).Error("claims not found in context")
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return nil, false
	}
	return claims, true
}

// extractToken reads "Authorization: Bearer <token>", then the auth_token cookie
func extractToken(r *http.Request) string {
	scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " ")
	if found && strings.EqualFold(scheme, "bearer") {
		if token = strings.TrimSpace(token); token != "" {
			return token
		}
	}
	if cookie, err := r.Cookie(authTokenCookieName); err == nil {
		return cookie.Value
	}
	return ""
}
