package models

import (
	"fmt"
	"math"
)

// ActorType identifies who is requesting a capability
type ActorType string

const (
	ActorTypeAgent  ActorType = "agent"
	ActorTypeWallet ActorType = "wallet"
	ActorTypeSystem ActorType = "system"
	ActorTypeAdmin  ActorType = "admin"
)

// Capability is a named sensitive action
type Capability string

const (
	CapabilityPublish      Capability = "publish"
	CapabilityRemix        Capability = "remix"
	CapabilityMonetize     Capability = "monetize"
	CapabilityArchive      Capability = "archive"
	CapabilityDeploy       Capability = "deploy"
	CapabilityModifySchema Capability = "modify_schema"
	CapabilityManageKeys   Capability = "manage_keys"
	CapabilityPayout       Capability = "payout"
)

// Scope is the blast radius of an action
type Scope string

const (
	ScopeGlobal         Scope = "global"
	ScopeDream          Scope = "dream"
	ScopeAgent          Scope = "agent"
	ScopeToken          Scope = "token"
	ScopeInfrastructure Scope = "infrastructure"
)

// ReviewerType is a class of voter that can sit on a quorum
type ReviewerType string

const (
	ReviewerTech       ReviewerType = "tech"
	ReviewerSafety     ReviewerType = "safety"
	ReviewerCommunity  ReviewerType = "community"
	ReviewerFinance    ReviewerType = "finance"
	ReviewerGovernance ReviewerType = "governance"
)

// AllActorTypes lists every actor type in declaration order
var AllActorTypes = []ActorType{ActorTypeAgent, ActorTypeWallet, ActorTypeSystem, ActorTypeAdmin}

// AllCapabilities lists every capability in declaration order
var AllCapabilities = []Capability{
	CapabilityPublish, CapabilityRemix, CapabilityMonetize, CapabilityArchive,
	CapabilityDeploy, CapabilityModifySchema, CapabilityManageKeys, CapabilityPayout,
}

// AllScopes lists every scope in declaration order
var AllScopes = []Scope{ScopeGlobal, ScopeDream, ScopeAgent, ScopeToken, ScopeInfrastructure}

// IsValid reports whether t is a known actor type
func (t ActorType) IsValid() bool {
	for _, v := range AllActorTypes {
		if v == t {
			return true
		}
	}
	return false
}

// IsValid reports whether c is a known capability
func (c Capability) IsValid() bool {
	for _, v := range AllCapabilities {
		if v == c {
			return true
		}
	}
	return false
}

// IsValid reports whether s is a known scope
func (s Scope) IsValid() bool {
	for _, v := range AllScopes {
		if v == s {
			return true
		}
	}
	return false
}

// PolicyRule is one declarative authorization rule.
// A rule with a non-empty ReviewQuorum never yields a direct allow.
type PolicyRule struct {
	Actor        ActorType      `json:"actor" yaml:"actor"`
	Capability   Capability     `json:"capability" yaml:"capability"`
	Scope        Scope          `json:"scope" yaml:"scope"`
	Reversible   bool           `json:"reversible" yaml:"reversible"`
	ReviewQuorum []ReviewerType `json:"review_quorum" yaml:"review_quorum"`
	MinApprovals *int           `json:"min_approvals,omitempty" yaml:"min_approvals,omitempty"`
	Conditions   map[string]any `json:"conditions,omitempty" yaml:"conditions,omitempty"`
}

// Key returns the actor:capability:scope triple the rule is keyed on
func (r *PolicyRule) Key() string {
	return fmt.Sprintf("%s:%s:%s", r.Actor, r.Capability, r.Scope)
}

// RequiresQuorum reports whether the rule routes through quorum approval
func (r *PolicyRule) RequiresQuorum() bool {
	return len(r.ReviewQuorum) > 0
}

// RequiredApprovals returns min_approvals when set, otherwise ceil(|review_quorum| / 2)
func (r *PolicyRule) RequiredApprovals() int {
	if r.MinApprovals != nil {
		return *r.MinApprovals
	}
	return int(math.Ceil(float64(len(r.ReviewQuorum)) / 2))
}

// PolicyDocument is the file-backed rule set
type PolicyDocument struct {
	Version string       `json:"version" yaml:"version"`
	Rules   []PolicyRule `json:"rules" yaml:"rules"`
	// Source is where the document came from: a file path or "builtin".
	Source string `json:"source" yaml:"-"`
}

// ActorContext describes the caller. It is read-only input and never persisted.
type ActorContext struct {
	ActorID         string    `json:"actorId" validate:"required"`
	ActorType       ActorType `json:"actorType" validate:"required"`
	TrustScore      float64   `json:"trustScore"`
	StakedTokens    float64   `json:"stakedTokens"`
	CompletedDreams int       `json:"completedDreams"`
	Badges          []string  `json:"badges,omitempty"`
}

// HasBadge reports whether the actor holds the given badge
func (a *ActorContext) HasBadge(badge string) bool {
	for _, b := range a.Badges {
		if b == badge {
			return true
		}
	}
	return false
}

// PolicyDecision is the outcome of a policy check
type PolicyDecision struct {
	PolicyID       string         `json:"policyId"`
	Allowed        bool           `json:"allowed"`
	RequiresQuorum bool           `json:"requiresQuorum"`
	QuorumTypes    []ReviewerType `json:"quorumTypes"`
	Reversible     bool           `json:"reversible"`
	Reason         string         `json:"reason,omitempty"`
}
