package policy

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/upb/governance-ledger/models"
	"github.com/upb/governance-ledger/services"
	"github.com/upb/governance-ledger/services/quorum"
	"go.uber.org/zap"
)

// Reasons reported on denied decisions
const (
	ReasonNoRule           = "No policy rule found"
	ReasonConditionsNotMet = "Policy conditions not met"
	ReasonNoActor          = "Actor context required"
	ReasonQuorumRequired   = "Quorum approval required"
)

// QuorumWorkflow is the part of the quorum engine the enforcer drives
type QuorumWorkflow interface {
	Vote(ctx context.Context, req quorum.VoteRequest) (*models.QuorumDecisionState, error)
	Open(ctx context.Context, policyID string, quorumTypes []models.ReviewerType, threshold int) (*models.QuorumDecisionState, error)
	GetDecision(ctx context.Context, policyID string) (*models.QuorumDecisionState, error)
}

// DecisionRecorder receives every decision for the audit trail. Failures are logged only.
type DecisionRecorder interface {
	LogPolicyDecision(actor *models.ActorContext, capability models.Capability, scope models.Scope, decision *models.PolicyDecision) error
	LogQuorumRequested(actor *models.ActorContext, status *models.QuorumRequestStatus) error
}

// EnforcerConfig holds enforcer settings
type EnforcerConfig struct {
	// PolicyFile is the document path handed to Table.Load. Empty uses the built-in rules.
	PolicyFile string
	// SelfApprove records the requester's own approve vote when a quorum request is opened.
	SelfApprove bool
}

// Enforcer resolves (actor, capability, scope) requests into decisions
type Enforcer struct {
	table    *Table
	quorum   QuorumWorkflow
	recorder DecisionRecorder
	config   EnforcerConfig
	logger   *zap.Logger
}

// NewEnforcer creates a new Enforcer
func NewEnforcer(table *Table, quorum QuorumWorkflow, config EnforcerConfig, logger *zap.Logger) *Enforcer {
	return &Enforcer{
		table:  table,
		quorum: quorum,
		config: config,
		logger: logger,
	}
}

// SetRecorder attaches the audit recorder
func (e *Enforcer) SetRecorder(r DecisionRecorder) {
	e.recorder = r
}

// Document returns the active policy document
func (e *Enforcer) Document() *models.PolicyDocument {
	return e.table.Load(e.config.PolicyFile)
}

// CheckPolicy decides whether actor may exercise capability on scope.
// Unmatched requests and failed conditions deny. A rule with a review quorum
// never allows directly; the caller must complete the quorum workflow.
func (e *Enforcer) CheckPolicy(actor *models.ActorContext, capability models.Capability, scope models.Scope) *models.PolicyDecision {
	decision := e.evaluate(actor, capability, scope)

	e.logger.Debug("policy checked",
		zap.String("policy_id", decision.PolicyID),
		zap.String("capability", string(capability)),
		zap.String("scope", string(scope)),
		zap.Bool("allowed", decision.Allowed),
		zap.Bool("requires_quorum", decision.RequiresQuorum),
		zap.String("reason", decision.Reason))

	if e.recorder != nil {
		if err := e.recorder.LogPolicyDecision(actor, capability, scope, decision); err != nil {
			e.logger.Warn("failed to record policy decision", zap.Error(err))
		}
	}
	return decision
}

func (e *Enforcer) evaluate(actor *models.ActorContext, capability models.Capability, scope models.Scope) *models.PolicyDecision {
	if actor == nil {
		return deny(requestKey("", capability, scope), false, ReasonNoActor)
	}

	rule := FindMatchingRule(e.Document(), actor.ActorType, capability, scope)
	if rule == nil {
		return deny(requestKey(actor.ActorType, capability, scope), false, ReasonNoRule)
	}

	policyID := PolicyID(rule)
	if ok, failed := EvaluateAll(ParseConditions(rule.Conditions), actor); !ok {
		e.logger.Debug("policy condition failed",
			zap.String("policy_id", policyID),
			zap.String("actor_id", actor.ActorID),
			zap.String("condition", failed))
		return deny(policyID, IsReversible(rule), ReasonConditionsNotMet)
	}

	needsQuorum := RequiresQuorum(rule)
	decision := &models.PolicyDecision{
		PolicyID:       policyID,
		Allowed:        !needsQuorum,
		RequiresQuorum: needsQuorum,
		QuorumTypes:    append([]models.ReviewerType{}, rule.ReviewQuorum...),
		Reversible:     IsReversible(rule),
	}
	if needsQuorum {
		decision.Reason = ReasonQuorumRequired
	}
	return decision
}

func deny(policyID string, reversible bool, reason string) *models.PolicyDecision {
	return &models.PolicyDecision{
		PolicyID:    policyID,
		QuorumTypes: []models.ReviewerType{},
		Reversible:  reversible,
		Reason:      reason,
	}
}

// requestKey derives a stable id for requests that matched no rule
func requestKey(actorType models.ActorType, capability models.Capability, scope models.Scope) string {
	key := fmt.Sprintf("%s:%s:%s", actorType, capability, scope)
	return uuid.NewSHA1(policyIDNamespace, []byte(key)).String()
}

// RequestQuorumApproval opens the quorum workflow for the rule matching
// (actor, capability, scope). An already terminal decision is returned as is.
// With SelfApprove the requester's approve vote is recorded.
func (e *Enforcer) RequestQuorumApproval(ctx context.Context, policyID string, actor *models.ActorContext, capability models.Capability, scope models.Scope, quorumTypes []models.ReviewerType) (*models.QuorumRequestStatus, error) {
	if actor == nil || actor.ActorID == "" {
		return nil, services.ErrInvalidInput.Wrap(errors.New("actor is required"))
	}

	rule := FindMatchingRule(e.Document(), actor.ActorType, capability, scope)
	if rule == nil {
		return nil, services.ErrPolicyRuleNotFound
	}
	if !RequiresQuorum(rule) {
		return nil, services.ErrInvalidInput.Wrap(fmt.Errorf("rule %s does not require quorum approval", rule.Key()))
	}

	ruleID := PolicyID(rule)
	if policyID == "" {
		policyID = ruleID
	} else if policyID != ruleID {
		return nil, services.ErrInvalidInput.Wrap(fmt.Errorf("policyId %s does not match rule %s", policyID, rule.Key()))
	}
	if len(quorumTypes) == 0 {
		quorumTypes = rule.ReviewQuorum
	}
	for _, qt := range quorumTypes {
		if !slices.Contains(rule.ReviewQuorum, qt) {
			return nil, services.ErrInvalidInput.Wrap(fmt.Errorf("quorum type %s is not a reviewer of rule %s", qt, rule.Key()))
		}
	}
	threshold := MinApprovals(rule)

	existing, err := e.quorum.GetDecision(ctx, policyID)
	switch {
	case err == nil && existing.Result.IsTerminal():
		return e.requested(actor, &models.QuorumRequestStatus{PolicyID: policyID, Status: existing.Result}), nil
	case err != nil && !services.IsNotFoundError(err):
		return nil, fmt.Errorf("failed to read quorum decision: %w", err)
	}

	var state *models.QuorumDecisionState
	if e.config.SelfApprove {
		state, err = e.quorum.Vote(ctx, quorum.VoteRequest{
			PolicyID:    policyID,
			VoterID:     actor.ActorID,
			Vote:        models.VoteApprove,
			QuorumTypes: quorumTypes,
			Threshold:   threshold,
		})
	} else {
		state, err = e.quorum.Open(ctx, policyID, quorumTypes, threshold)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open quorum request: %w", err)
	}

	e.logger.Info("quorum approval requested",
		zap.String("policy_id", policyID),
		zap.String("actor_id", actor.ActorID),
		zap.Int("threshold", threshold),
		zap.Bool("self_approve", e.config.SelfApprove),
		zap.String("status", string(state.Result)))

	return e.requested(actor, &models.QuorumRequestStatus{PolicyID: policyID, Status: state.Result}), nil
}

func (e *Enforcer) requested(actor *models.ActorContext, status *models.QuorumRequestStatus) *models.QuorumRequestStatus {
	if e.recorder != nil {
		if err := e.recorder.LogQuorumRequested(actor, status); err != nil {
			e.logger.Warn("failed to record quorum request", zap.Error(err))
		}
	}
	return status
}
