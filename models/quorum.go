package models

import "time"

// VoteValue is a single voter's choice
type VoteValue string

const (
	VoteApprove VoteValue = "approve"
	VoteReject  VoteValue = "reject"
)

// IsValid reports whether v is approve or reject
func (v VoteValue) IsValid() bool {
	return v == VoteApprove || v == VoteReject
}

// QuorumResult is the state of a quorum decision
type QuorumResult string

const (
	QuorumPending  QuorumResult = "pending"
	QuorumApproved QuorumResult = "approved"
	QuorumRejected QuorumResult = "rejected"
)

// IsTerminal reports whether no further transitions are possible
func (r QuorumResult) IsTerminal() bool {
	return r == QuorumApproved || r == QuorumRejected
}

// Vote is one counted ballot
type Vote struct {
	VoterID    string       `json:"voterId"`
	Vote       VoteValue    `json:"vote"`
	QuorumType ReviewerType `json:"quorumType,omitempty"`
	Timestamp  time.Time    `json:"ts"`
}

// QuorumDecisionState is the tally for one policyId.
// Once Result is terminal the state is immutable.
type QuorumDecisionState struct {
	PolicyID    string         `json:"policyId"`
	Votes       []Vote         `json:"votes"`
	Threshold   int            `json:"threshold"`
	QuorumTypes []ReviewerType `json:"quorumTypes"`
	Result      QuorumResult   `json:"result"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
	ResolvedAt  *time.Time     `json:"resolvedAt,omitempty"`
}

// Tally counts approve and reject votes
func (s *QuorumDecisionState) Tally() (approvals, rejections int) {
	for _, v := range s.Votes {
		switch v.Vote {
		case VoteApprove:
			approvals++
		case VoteReject:
			rejections++
		}
	}
	return approvals, rejections
}

// Clone returns a deep copy safe to hand to callers
func (s *QuorumDecisionState) Clone() *QuorumDecisionState {
	if s == nil {
		return nil
	}
	c := *s
	c.Votes = append([]Vote(nil), s.Votes...)
	c.QuorumTypes = append([]ReviewerType(nil), s.QuorumTypes...)
	if s.ResolvedAt != nil {
		t := *s.ResolvedAt
		c.ResolvedAt = &t
	}
	return &c
}

// QuorumRequestStatus is returned when a quorum workflow is opened
type QuorumRequestStatus struct {
	PolicyID string       `json:"policyId"`
	Status   QuorumResult `json:"status"`
}
