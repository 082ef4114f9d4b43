package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/upb/governance-ledger/models"
	"github.com/upb/governance-ledger/repositories"
)

// RawRewardEventRepository implements repositories.RawRewardEventRepository in memory
type RawRewardEventRepository struct {
	mu     sync.RWMutex
	events map[uuid.UUID]*models.RawRewardEvent
	order  []uuid.UUID
}

// NewRawRewardEventRepository creates an empty event store
func NewRawRewardEventRepository() *RawRewardEventRepository {
	return &RawRewardEventRepository{events: make(map[uuid.UUID]*models.RawRewardEvent)}
}

// Create inserts a new event
func (r *RawRewardEventRepository) Create(ctx context.Context, ev *models.RawRewardEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.events[ev.ID]; exists {
		return fmt.Errorf("raw reward event already exists: %s", ev.ID)
	}
	val := *ev
	r.events[ev.ID] = &val
	r.order = append(r.order, ev.ID)
	return nil
}

// GetByID retrieves an event by ID
func (r *RawRewardEventRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.RawRewardEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ev, ok := r.events[id]
	if !ok {
		return nil, fmt.Errorf("raw reward event %s: %w", id, repositories.ErrNotFound)
	}
	val := *ev
	return &val, nil
}

// ListUnprocessed retrieves up to limit unprocessed events in insertion order
func (r *RawRewardEventRepository) ListUnprocessed(ctx context.Context, limit int) ([]*models.RawRewardEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.RawRewardEvent, 0)
	for _, id := range r.order {
		if limit >= 0 && len(out) >= limit {
			break
		}
		if ev := r.events[id]; !ev.Processed {
			val := *ev
			out = append(out, &val)
		}
	}
	return out, nil
}

// MarkProcessed flips processed to true
func (r *RawRewardEventRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ev, ok := r.events[id]
	if !ok {
		return fmt.Errorf("raw reward event %s: %w", id, repositories.ErrNotFound)
	}
	ev.Processed = true
	return nil
}

// CountUnprocessed returns the number of events still waiting for emission
func (r *RawRewardEventRepository) CountUnprocessed(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, ev := range r.events {
		if !ev.Processed {
			n++
		}
	}
	return n, nil
}

// EmissionRuleRepository implements repositories.EmissionRuleRepository in memory
type EmissionRuleRepository struct {
	mu    sync.RWMutex
	rules []*models.EmissionRule
}

// NewEmissionRuleRepository creates an empty rule store
func NewEmissionRuleRepository() *EmissionRuleRepository {
	return &EmissionRuleRepository{}
}

// CreateIfAbsent inserts the rule unless one with the same ID exists
func (r *EmissionRuleRepository) CreateIfAbsent(ctx context.Context, rule *models.EmissionRule) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.rules {
		if existing.ID == rule.ID {
			return false, nil
		}
	}
	val := *rule
	r.rules = append(r.rules, &val)
	return true, nil
}

// ListBySourceKind retrieves every rule matching source and kind in creation order
func (r *EmissionRuleRepository) ListBySourceKind(ctx context.Context, source, kind string) ([]*models.EmissionRule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.EmissionRule, 0)
	for _, rule := range r.rules {
		if rule.Source == source && rule.Kind == kind {
			val := *rule
			out = append(out, &val)
		}
	}
	return out, nil
}

// List retrieves every rule in creation order
func (r *EmissionRuleRepository) List(ctx context.Context) ([]*models.EmissionRule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.EmissionRule, 0, len(r.rules))
	for _, rule := range r.rules {
		val := *rule
		out = append(out, &val)
	}
	return out, nil
}

// Count returns the number of rules
func (r *EmissionRuleRepository) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rules), nil
}

// TokenRepository implements repositories.TokenRepository in memory
type TokenRepository struct {
	mu     sync.RWMutex
	tokens map[string]*models.TokenConfig
}

// NewTokenRepository creates an empty token store
func NewTokenRepository() *TokenRepository {
	return &TokenRepository{tokens: make(map[string]*models.TokenConfig)}
}

// CreateIfAbsent inserts the token unless the symbol exists
func (r *TokenRepository) CreateIfAbsent(ctx context.Context, token *models.TokenConfig) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tokens[token.Symbol]; exists {
		return false, nil
	}
	val := *token
	r.tokens[token.Symbol] = &val
	return true, nil
}

// GetBySymbol retrieves a token by symbol
func (r *TokenRepository) GetBySymbol(ctx context.Context, symbol string) (*models.TokenConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tok, ok := r.tokens[symbol]
	if !ok {
		return nil, fmt.Errorf("token %s: %w", symbol, repositories.ErrNotFound)
	}
	val := *tok
	return &val, nil
}

// List retrieves every token ordered by symbol
func (r *TokenRepository) List(ctx context.Context) ([]*models.TokenConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.TokenConfig, 0, len(r.tokens))
	for _, tok := range r.tokens {
		val := *tok
		out = append(out, &val)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

// Count returns the number of tokens
func (r *TokenRepository) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tokens), nil
}

type appliedKey struct {
	rawRewardID uuid.UUID
	ruleID      string
}

// AppliedRewardRepository implements repositories.AppliedRewardRepository in memory
type AppliedRewardRepository struct {
	mu      sync.RWMutex
	rewards []*models.AppliedReward
	seen    map[appliedKey]struct{}
}

// NewAppliedRewardRepository creates an empty applied reward store
func NewAppliedRewardRepository() *AppliedRewardRepository {
	return &AppliedRewardRepository{seen: make(map[appliedKey]struct{})}
}

// InsertIfAbsent appends the record unless one exists for the same (rawRewardId, ruleId)
func (r *AppliedRewardRepository) InsertIfAbsent(ctx context.Context, reward *models.AppliedReward) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := appliedKey{reward.RawRewardID, reward.Meta.RuleID}
	if _, dup := r.seen[key]; dup {
		return false, nil
	}
	r.seen[key] = struct{}{}
	val := *reward
	r.rewards = append(r.rewards, &val)
	return true, nil
}

// ListByRawReward retrieves payouts produced by one event
func (r *AppliedRewardRepository) ListByRawReward(ctx context.Context, rawRewardID uuid.UUID) ([]*models.AppliedReward, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.AppliedReward, 0)
	for _, rw := range r.rewards {
		if rw.RawRewardID == rawRewardID {
			val := *rw
			out = append(out, &val)
		}
	}
	return out, nil
}

// ListByIdentity retrieves the latest payouts of one identity, newest first
func (r *AppliedRewardRepository) ListByIdentity(ctx context.Context, identityID string, limit int) ([]*models.AppliedReward, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.AppliedReward, 0)
	for i := len(r.rewards) - 1; i >= 0; i-- {
		if limit >= 0 && len(out) >= limit {
			break
		}
		if rw := r.rewards[i]; rw.IdentityID == identityID {
			val := *rw
			out = append(out, &val)
		}
	}
	return out, nil
}

// Count returns the number of applied rewards
func (r *AppliedRewardRepository) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rewards), nil
}
