package models

import (
	"time"

	"github.com/google/uuid"
)

// RawRewardEvent is an external activity signal eligible for token reward.
// It is immutable except for the one-way Processed false -> true transition.
type RawRewardEvent struct {
	ID         uuid.UUID `json:"id" db:"id"`
	IdentityID string    `json:"identityId" db:"identity_id"`
	Source     string    `json:"source" db:"source"`
	Kind       string    `json:"kind" db:"kind"`
	BaseValue  float64   `json:"baseValue" db:"base_value"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
	Processed  bool      `json:"processed" db:"processed"`
}

// TableName returns the table name for the RawRewardEvent model
func (RawRewardEvent) TableName() string {
	return "raw_reward_events"
}

// NewRawRewardEvent creates an unprocessed event with a fresh id
func NewRawRewardEvent(identityID, source, kind string, baseValue float64) *RawRewardEvent {
	return &RawRewardEvent{
		ID:         uuid.New(),
		IdentityID: identityID,
		Source:     source,
		Kind:       kind,
		BaseValue:  baseValue,
		CreatedAt:  time.Now().UTC(),
	}
}

// EmissionRule maps a (source, kind) pattern to a token multiplier
type EmissionRule struct {
	ID         string    `json:"id" db:"id"`
	Source     string    `json:"source" db:"source" validate:"required"`
	Kind       string    `json:"kind" db:"kind" validate:"required"`
	Token      string    `json:"token" db:"token" validate:"required"`
	Multiplier float64   `json:"multiplier" db:"multiplier" validate:"gte=0"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
}

// TableName returns the table name for the EmissionRule model
func (EmissionRule) TableName() string {
	return "emission_rules"
}

// Matches reports whether the rule applies to ev
func (r *EmissionRule) Matches(ev *RawRewardEvent) bool {
	return r.Source == ev.Source && r.Kind == ev.Kind
}

// TokenConfig describes a token the ledger can hold
type TokenConfig struct {
	Symbol    string    `json:"symbol" db:"symbol"`
	Name      string    `json:"name" db:"name"`
	Decimals  int       `json:"decimals" db:"decimals"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// TableName returns the table name for the TokenConfig model
func (TokenConfig) TableName() string {
	return "token_configs"
}

// AppliedRewardMeta records which rule produced an AppliedReward
type AppliedRewardMeta struct {
	Source string `json:"source"`
	Kind   string `json:"kind"`
	RuleID string `json:"ruleId"`
}

// AppliedReward is the append-only audit record of one rule's payout for one event
type AppliedReward struct {
	ID          uuid.UUID         `json:"id" db:"id"`
	RawRewardID uuid.UUID         `json:"rawRewardId" db:"raw_reward_id"`
	IdentityID  string            `json:"identityId" db:"identity_id"`
	Token       string            `json:"token" db:"token"`
	Amount      float64           `json:"amount" db:"amount"`
	CreatedAt   time.Time         `json:"createdAt" db:"created_at"`
	Meta        AppliedRewardMeta `json:"meta" db:"meta"`
}

// TableName returns the table name for the AppliedReward model
func (AppliedReward) TableName() string {
	return "applied_rewards"
}

// BalanceRecord is the holding of one identity in one token, keyed on (IdentityID, Token)
type BalanceRecord struct {
	IdentityID string    `json:"identityId" db:"identity_id"`
	Token      string    `json:"token" db:"token"`
	Amount     float64   `json:"amount" db:"amount"`
	UpdatedAt  time.Time `json:"updatedAt" db:"updated_at"`
}

// TableName returns the table name for the BalanceRecord model
func (BalanceRecord) TableName() string {
	return "balances"
}
