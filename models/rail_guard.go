package models

import (
	"time"

	"github.com/google/uuid"
)

// RailGuardType is the window a guard measures
type RailGuardType string

const (
	RailGuardDailyCost   RailGuardType = "daily-cost"
	RailGuardMonthlyCost RailGuardType = "monthly-cost"
	RailGuardRateLimit   RailGuardType = "rate-limit"
)

// IsValid reports whether t is a known guard type
func (t RailGuardType) IsValid() bool {
	return t == RailGuardDailyCost || t == RailGuardMonthlyCost || t == RailGuardRateLimit
}

// RailGuardAction is what happens when a guard trips
type RailGuardAction string

const (
	// RailGuardBlock denies the request.
	RailGuardBlock RailGuardAction = "block"
	// RailGuardThrottle is advisory only and never denies.
	RailGuardThrottle RailGuardAction = "throttle"
)

// IsValid reports whether a is a known guard action
func (a RailGuardAction) IsValid() bool {
	return a == RailGuardBlock || a == RailGuardThrottle
}

// RailGuard is a budget or rate control. Guards are disabled, never deleted.
type RailGuard struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	Name      string          `json:"name" db:"name"`
	Type      RailGuardType   `json:"type" db:"type"`
	Limit     float64         `json:"limit" db:"limit_value"`
	Action    RailGuardAction `json:"action" db:"action"`
	Enabled   bool            `json:"enabled" db:"enabled"`
	CreatedAt time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time       `json:"updatedAt" db:"updated_at"`
}

// TableName returns the table name for the RailGuard model
func (RailGuard) TableName() string {
	return "rail_guards"
}

// NewRailGuard creates an enabled guard
func NewRailGuard(name string, guardType RailGuardType, limit float64, action RailGuardAction) *RailGuard {
	now := time.Now().UTC()
	return &RailGuard{
		ID:        uuid.New(),
		Name:      name,
		Type:      guardType,
		Limit:     limit,
		Action:    action,
		Enabled:   true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// RequestLogEntry is one cost-incurring request, appended in timestamp order
type RequestLogEntry struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Cost      float64   `json:"cost" db:"cost"`
	Endpoint  string    `json:"endpoint,omitempty" db:"endpoint"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
}

// TableName returns the table name for the RequestLogEntry model
func (RequestLogEntry) TableName() string {
	return "request_log"
}
