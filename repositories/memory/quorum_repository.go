package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/upb/governance-ledger/models"
	"github.com/upb/governance-ledger/repositories"
)

// QuorumRepository implements repositories.QuorumRepository in memory
type QuorumRepository struct {
	mu        sync.RWMutex
	decisions map[string]*models.QuorumDecisionState
}

// NewQuorumRepository creates an empty decision store
func NewQuorumRepository() *QuorumRepository {
	return &QuorumRepository{decisions: make(map[string]*models.QuorumDecisionState)}
}

// CreateIfAbsent inserts the state unless one exists for the policyId
func (r *QuorumRepository) CreateIfAbsent(ctx context.Context, state *models.QuorumDecisionState) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.decisions[state.PolicyID]; exists {
		return false, nil
	}
	r.decisions[state.PolicyID] = state.Clone()
	return true, nil
}

// Get retrieves a decision
func (r *QuorumRepository) Get(ctx context.Context, policyID string) (*models.QuorumDecisionState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state, ok := r.decisions[policyID]
	if !ok {
		return nil, fmt.Errorf("quorum decision %s: %w", policyID, repositories.ErrNotFound)
	}
	return state.Clone(), nil
}

// GetForUpdate is Get; the quorum engine serializes writers per policyId in process
func (r *QuorumRepository) GetForUpdate(ctx context.Context, policyID string) (*models.QuorumDecisionState, error) {
	return r.Get(ctx, policyID)
}

// Update persists the state
func (r *QuorumRepository) Update(ctx context.Context, state *models.QuorumDecisionState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.decisions[state.PolicyID]; !ok {
		return fmt.Errorf("quorum decision %s: %w", state.PolicyID, repositories.ErrNotFound)
	}
	r.decisions[state.PolicyID] = state.Clone()
	return nil
}

// ListByResult retrieves up to limit decisions in the given state, newest first
func (r *QuorumRepository) ListByResult(ctx context.Context, result models.QuorumResult, limit int) ([]*models.QuorumDecisionState, error) {
	r.mu.RLock()
	out := make([]*models.QuorumDecisionState, 0)
	for _, state := range r.decisions {
		if state.Result == result {
			out = append(out, state.Clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
