package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of action being audited
type AuditAction string

const (
	AuditActionPolicyChecked    AuditAction = "policy_checked"
	AuditActionQuorumRequested  AuditAction = "quorum_requested"
	AuditActionQuorumVote       AuditAction = "quorum_vote"
	AuditActionQuorumResolved   AuditAction = "quorum_resolved"
	AuditActionRewardRecorded   AuditAction = "reward_recorded"
	AuditActionRewardApplied    AuditAction = "reward_applied"
	AuditActionBalanceAdjusted  AuditAction = "balance_adjusted"
	AuditActionRailGuardBlocked AuditAction = "rail_guard_blocked"
	AuditActionRailGuardChanged AuditAction = "rail_guard_changed"
	AuditActionEmissionCycle    AuditAction = "emission_cycle"
)

// AuditLog represents an audit trail entry
type AuditLog struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	Action       AuditAction     `json:"action" db:"action"`
	ResourceType string          `json:"resource_type" db:"resource_type"` // policy, quorum, reward, balance, rail_guard
	ResourceID   string          `json:"resource_id,omitempty" db:"resource_id"`
	ActorID      string          `json:"actor_id,omitempty" db:"actor_id"`
	Details      json.RawMessage `json:"details" db:"details"`
	RequestID    string          `json:"request_id,omitempty" db:"request_id"`
	Timestamp    time.Time       `json:"timestamp" db:"timestamp"`
}

// TableName returns the table name for the AuditLog model
func (AuditLog) TableName() string {
	return "audit_logs"
}

// NewAuditLog creates a new AuditLog instance
func NewAuditLog(action AuditAction, resourceType, resourceID string) *AuditLog {
	return &AuditLog{
		ID:           uuid.New(),
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Timestamp:    time.Now().UTC(),
	}
}

// WithActor sets the acting identity
func (a *AuditLog) WithActor(actorID string) *AuditLog {
	a.ActorID = actorID
	return a
}

// WithDetails sets the details
func (a *AuditLog) WithDetails(details interface{}) *AuditLog {
	if data, err := json.Marshal(details); err == nil {
		a.Details = data
	}
	return a
}

// WithRequest sets the request correlation id
func (a *AuditLog) WithRequest(requestID string) *AuditLog {
	a.RequestID = requestID
	return a
}
