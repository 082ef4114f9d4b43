package quorum

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/upb/governance-ledger/internal/shared"
	"github.com/upb/governance-ledger/models"
	"github.com/upb/governance-ledger/repositories"
	"github.com/upb/governance-ledger/services"
	"github.com/upb/governance-ledger/utils"
	"go.uber.org/zap"
)

// ResolutionObserver is notified once when a decision leaves pending
type ResolutionObserver interface {
	OnResolved(ctx context.Context, state *models.QuorumDecisionState)
}

// ObserverFunc adapts a function to ResolutionObserver
type ObserverFunc func(ctx context.Context, state *models.QuorumDecisionState)

// OnResolved calls f
func (f ObserverFunc) OnResolved(ctx context.Context, state *models.QuorumDecisionState) {
	f(ctx, state)
}

// VoteRequest is one ballot. QuorumTypes and Threshold only take effect on
// the first call for a PolicyID.
type VoteRequest struct {
	PolicyID    string                `json:"policyId" validate:"required"`
	VoterID     string                `json:"voterId" validate:"required"`
	Vote        models.VoteValue      `json:"vote" validate:"required,oneof=approve reject"`
	QuorumType  models.ReviewerType   `json:"quorumType,omitempty"`
	QuorumTypes []models.ReviewerType `json:"quorumTypes"`
	Threshold   int                   `json:"threshold" validate:"min=1"`
}

// Engine tallies votes per policyId. A decision moves from pending to
// approved once approvals reach the threshold, or to rejected once
// rejections reach the threshold. Terminal decisions never change.
type Engine struct {
	repo            repositories.QuorumRepository
	txManager       repositories.TransactionManager
	locks           *shared.KeyedMutex
	observersMu     sync.RWMutex
	observers       []ResolutionObserver
	observerTimeout time.Duration
	now             func() time.Time
	logger          *zap.Logger
}

// NewEngine creates a new quorum Engine
func NewEngine(repo repositories.QuorumRepository, txManager repositories.TransactionManager, logger *zap.Logger) *Engine {
	return &Engine{
		repo:            repo,
		txManager:       txManager,
		locks:           shared.NewKeyedMutex(),
		observerTimeout: 2 * time.Second,
		now:             func() time.Time { return time.Now().UTC() },
		logger:          logger,
	}
}

// AddObserver registers o for pending to terminal transitions
func (e *Engine) AddObserver(o ResolutionObserver) {
	e.observersMu.Lock()
	defer e.observersMu.Unlock()
	e.observers = append(e.observers, o)
}

// Vote records req and returns the resulting state. A repeat vote from the
// same voter replaces the earlier one. Votes on a terminal decision are
// ignored and the terminal state is returned.
func (e *Engine) Vote(ctx context.Context, req VoteRequest) (*models.QuorumDecisionState, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, services.ErrInvalidVote.Wrap(err)
	}

	unlock := e.locks.Lock(req.PolicyID)
	defer unlock()

	transitions := false
	result, err := services.WithTransactionResult(ctx, e.txManager, func(ctx context.Context, tx repositories.Transaction) (*models.QuorumDecisionState, error) {
		state, err := e.openLocked(ctx, req.PolicyID, req.QuorumTypes, req.Threshold)
		if err != nil {
			return nil, err
		}
		if state.Result.IsTerminal() {
			return state, nil
		}

		now := e.now()
		castVote(state, models.Vote{
			VoterID:    req.VoterID,
			Vote:       req.Vote,
			QuorumType: req.QuorumType,
			Timestamp:  now,
		})
		state.Result = resolve(state)
		state.UpdatedAt = now
		if state.Result.IsTerminal() {
			state.ResolvedAt = &now
			transitions = true
		}

		if err := e.repo.Update(ctx, state); err != nil {
			return nil, fmt.Errorf("failed to update quorum decision: %w", err)
		}
		return state, nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Debug("quorum vote recorded",
		zap.String("policy_id", req.PolicyID),
		zap.String("voter_id", req.VoterID),
		zap.String("vote", string(req.Vote)),
		zap.String("result", string(result.Result)))

	if transitions {
		e.logger.Info("quorum decision resolved",
			zap.String("policy_id", result.PolicyID),
			zap.String("result", string(result.Result)),
			zap.Int("votes", len(result.Votes)))
		e.notify(result.Clone())
	}
	return result, nil
}

// Open registers a pending decision with zero votes, or returns the existing one
func (e *Engine) Open(ctx context.Context, policyID string, quorumTypes []models.ReviewerType, threshold int) (*models.QuorumDecisionState, error) {
	if policyID == "" {
		return nil, services.ErrInvalidVote.Wrap(errors.New("policyId is required"))
	}
	if threshold < 1 {
		return nil, services.ErrInvalidVote.Wrap(fmt.Errorf("threshold must be at least 1, got %d", threshold))
	}

	unlock := e.locks.Lock(policyID)
	defer unlock()

	return services.WithTransactionResult(ctx, e.txManager, func(ctx context.Context, tx repositories.Transaction) (*models.QuorumDecisionState, error) {
		return e.openLocked(ctx, policyID, quorumTypes, threshold)
	})
}

// openLocked creates the decision if absent and reads it back for update
func (e *Engine) openLocked(ctx context.Context, policyID string, quorumTypes []models.ReviewerType, threshold int) (*models.QuorumDecisionState, error) {
	now := e.now()
	fresh := &models.QuorumDecisionState{
		PolicyID:    policyID,
		Votes:       []models.Vote{},
		Threshold:   threshold,
		QuorumTypes: append([]models.ReviewerType{}, quorumTypes...),
		Result:      models.QuorumPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := e.repo.CreateIfAbsent(ctx, fresh); err != nil {
		return nil, fmt.Errorf("failed to create quorum decision: %w", err)
	}

	state, err := e.repo.GetForUpdate(ctx, policyID)
	if err != nil {
		return nil, fmt.Errorf("failed to load quorum decision: %w", err)
	}
	return state, nil
}

// GetDecision returns the current state of policyID
func (e *Engine) GetDecision(ctx context.Context, policyID string) (*models.QuorumDecisionState, error) {
	state, err := e.repo.Get(ctx, policyID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrQuorumDecisionNotFound.Wrap(err)
		}
		return nil, fmt.Errorf("failed to get quorum decision: %w", err)
	}
	return state, nil
}

// ListPending returns up to limit undecided requests, newest first
func (e *Engine) ListPending(ctx context.Context, limit int) ([]*models.QuorumDecisionState, error) {
	states, err := e.repo.ListByResult(ctx, models.QuorumPending, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending decisions: %w", err)
	}
	return states, nil
}

// castVote replaces the voter's prior ballot or appends a new one
func castVote(state *models.QuorumDecisionState, vote models.Vote) {
	for i := range state.Votes {
		if state.Votes[i].VoterID == vote.VoterID {
			state.Votes[i] = vote
			return
		}
	}
	state.Votes = append(state.Votes, vote)
}

func resolve(state *models.QuorumDecisionState) models.QuorumResult {
	approvals, rejections := state.Tally()
	switch {
	case approvals >= state.Threshold:
		return models.QuorumApproved
	case rejections >= state.Threshold:
		return models.QuorumRejected
	default:
		return models.QuorumPending
	}
}

// notify runs every observer in its own goroutine under observerTimeout
func (e *Engine) notify(state *models.QuorumDecisionState) {
	e.observersMu.RLock()
	observers := append([]ResolutionObserver(nil), e.observers...)
	e.observersMu.RUnlock()

	for _, o := range observers {
		go func(o ResolutionObserver) {
			ctx, cancel := context.WithTimeout(context.Background(), e.observerTimeout)
			defer cancel()
			defer func() {
				if r := recover(); r != nil {
					e.logger.Error("quorum observer panicked",
						zap.String("policy_id", state.PolicyID),
						zap.Any("panic", r))
				}
			}()
			o.OnResolved(ctx, state.Clone())
		}(o)
	}
}
