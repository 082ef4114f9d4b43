package models

import "time"

// CycleReport summarizes one emission cycle
type CycleReport struct {
	StartedAt      time.Time `json:"startedAt"`
	FinishedAt     time.Time `json:"finishedAt"`
	TokensSeeded   int       `json:"tokensSeeded"`
	RulesSeeded    int       `json:"rulesSeeded"`
	EventsScanned  int       `json:"eventsScanned"`
	EventsApplied  int       `json:"eventsApplied"`
	RewardsCreated int       `json:"rewardsCreated"`
	Aborted        bool      `json:"aborted"`
	Error          string    `json:"error,omitempty"`
}

// Duration returns how long the cycle ran
func (r *CycleReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
