package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/upb/governance-ledger/models"
)

var (
	// ErrMissingClaim is returned when a required claim is missing
	ErrMissingClaim = errors.New("missing required claim")

	// ErrInvalidClaim is returned when a claim has an unexpected value
	ErrInvalidClaim = errors.New("invalid claim")
)

// RoleAdmin grants access to the operator endpoints
const RoleAdmin = "admin"

// Claims are the bearer token claims. The subject is the actor id.
type Claims struct {
	jwt.RegisteredClaims
	ActorType       models.ActorType `json:"actor_type"`
	TrustScore      float64          `json:"trust_score,omitempty"`
	StakedTokens    float64          `json:"staked_tokens,omitempty"`
	CompletedDreams int              `json:"completed_dreams,omitempty"`
	Badges          []string         `json:"badges,omitempty"`
	Roles           []string         `json:"roles,omitempty"`
}

// Validate checks the custom claims. Registered claims are checked by the parser.
func (c *Claims) Validate() error {
	if c.Subject == "" {
		return fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	if c.ActorType == "" {
		return fmt.Errorf("%w: actor_type", ErrMissingClaim)
	}
	if !c.ActorType.IsValid() {
		return fmt.Errorf("%w: actor_type %q", ErrInvalidClaim, c.ActorType)
	}
	if c.TrustScore < 0 || c.TrustScore > 1 {
		return fmt.Errorf("%w: trust_score must be within [0, 1]", ErrInvalidClaim)
	}
	if c.StakedTokens < 0 || c.CompletedDreams < 0 {
		return fmt.Errorf("%w: negative stake or dream count", ErrInvalidClaim)
	}
	return nil
}

// ToActorContext converts the claims to the caller context the policy enforcer reads
func (c *Claims) ToActorContext() *models.ActorContext {
	return &models.ActorContext{
		ActorID:         c.Subject,
		ActorType:       c.ActorType,
		TrustScore:      c.TrustScore,
		StakedTokens:    c.StakedTokens,
		CompletedDreams: c.CompletedDreams,
		Badges:          append([]string(nil), c.Badges...),
	}
}

// HasRole checks if the caller holds role
func (c *Claims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// ReviewerRole is the role that lets a caller vote as reviewer type t
func ReviewerRole(t models.ReviewerType) string {
	return "reviewer:" + string(t)
}

// CanReview reports whether the caller may cast votes as reviewer type t
func (c *Claims) CanReview(t models.ReviewerType) bool {
	return t != "" && c.HasRole(ReviewerRole(t))
}

// IsAdmin checks if the caller holds the admin role
func (c *Claims) IsAdmin() bool {
	return c.HasRole(RoleAdmin)
}
