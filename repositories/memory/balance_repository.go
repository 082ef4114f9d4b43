package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/upb/governance-ledger/models"
	"github.com/upb/governance-ledger/repositories"
)

type balanceKey struct {
	identityID string
	token      string
}

// BalanceRepository implements repositories.BalanceRepository in memory
type BalanceRepository struct {
	mu       sync.RWMutex
	balances map[balanceKey]*models.BalanceRecord
	now      func() time.Time
}

// NewBalanceRepository creates an empty balance store
func NewBalanceRepository() *BalanceRepository {
	return &BalanceRepository{
		balances: make(map[balanceKey]*models.BalanceRecord),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Adjust adds delta under the write lock so concurrent adjustments serialize
func (r *BalanceRepository) Adjust(ctx context.Context, identityID, token string, delta float64) (*models.BalanceRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := balanceKey{identityID, token}
	rec, ok := r.balances[key]
	if !ok {
		rec = &models.BalanceRecord{IdentityID: identityID, Token: token}
		r.balances[key] = rec
	}
	rec.Amount += delta
	rec.UpdatedAt = r.now()

	val := *rec
	return &val, nil
}

// Get retrieves one balance
func (r *BalanceRepository) Get(ctx context.Context, identityID, token string) (*models.BalanceRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.balances[balanceKey{identityID, token}]
	if !ok {
		return nil, fmt.Errorf("balance %s/%s: %w", identityID, token, repositories.ErrNotFound)
	}
	val := *rec
	return &val, nil
}

// ListByIdentity retrieves every token balance of one identity, ordered by token
func (r *BalanceRepository) ListByIdentity(ctx context.Context, identityID string) ([]*models.BalanceRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.BalanceRecord, 0)
	for k, rec := range r.balances {
		if k.identityID == identityID {
			val := *rec
			out = append(out, &val)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Token < out[j].Token })
	return out, nil
}

// List retrieves up to limit balances, most recently updated first
func (r *BalanceRepository) List(ctx context.Context, limit int) ([]*models.BalanceRecord, error) {
	r.mu.RLock()
	out := make([]*models.BalanceRecord, 0, len(r.balances))
	for _, rec := range r.balances {
		val := *rec
		out = append(out, &val)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		if out[i].IdentityID != out[j].IdentityID {
			return out[i].IdentityID < out[j].IdentityID
		}
		return out[i].Token < out[j].Token
	})
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Count returns the number of balance records
func (r *BalanceRepository) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.balances), nil
}
