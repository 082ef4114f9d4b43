package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/upb/governance-ledger/models"
	"github.com/upb/governance-ledger/repositories"
)

// RailGuardRepository implements repositories.RailGuardRepository in memory
type RailGuardRepository struct {
	mu     sync.RWMutex
	guards []*models.RailGuard
}

// NewRailGuardRepository creates an empty guard store
func NewRailGuardRepository() *RailGuardRepository {
	return &RailGuardRepository{}
}

// Create inserts a new guard
func (r *RailGuardRepository) Create(ctx context.Context, guard *models.RailGuard) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, g := range r.guards {
		if g.ID == guard.ID {
			return fmt.Errorf("rail guard already exists: %s", guard.ID)
		}
	}
	val := *guard
	r.guards = append(r.guards, &val)
	return nil
}

// GetByID retrieves a guard by ID
func (r *RailGuardRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.RailGuard, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, g := range r.guards {
		if g.ID == id {
			val := *g
			return &val, nil
		}
	}
	return nil, fmt.Errorf("rail guard %s: %w", id, repositories.ErrNotFound)
}

// List retrieves every guard in insertion order
func (r *RailGuardRepository) List(ctx context.Context) ([]*models.RailGuard, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.RailGuard, 0, len(r.guards))
	for _, g := range r.guards {
		val := *g
		out = append(out, &val)
	}
	return out, nil
}

// Update replaces the stored guard with the same ID
func (r *RailGuardRepository) Update(ctx context.Context, guard *models.RailGuard) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, g := range r.guards {
		if g.ID == guard.ID {
			val := *guard
			val.CreatedAt = g.CreatedAt
			r.guards[i] = &val
			return nil
		}
	}
	return fmt.Errorf("rail guard %s: %w", guard.ID, repositories.ErrNotFound)
}

// Count returns the number of guards
func (r *RailGuardRepository) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.guards), nil
}

// RequestLogRepository implements repositories.RequestLogRepository in memory.
// Entries stay sorted by timestamp so window reads are a binary search.
type RequestLogRepository struct {
	mu      sync.RWMutex
	entries []models.RequestLogEntry
}

// NewRequestLogRepository creates an empty request log
func NewRequestLogRepository() *RequestLogRepository {
	return &RequestLogRepository{}
}

// monthSlack keeps windows that straddle a month boundary whole
const monthSlack = 24 * time.Hour

// Append adds an entry, bumping its timestamp past the last entry when needed.
// Entries from before the entry's month, less a day of slack, are dropped.
func (r *RequestLogRepository) Append(ctx context.Context, entry *models.RequestLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ts := entry.Timestamp
	cutoff := time.Date(ts.Year(), ts.Month(), 1, 0, 0, 0, 0, ts.Location()).Add(-monthSlack)
	if i := r.firstAtOrAfter(cutoff); i > 0 {
		r.entries = append(r.entries[:0:0], r.entries[i:]...)
	}

	if n := len(r.entries); n > 0 {
		last := r.entries[n-1].Timestamp
		if !entry.Timestamp.After(last) {
			entry.Timestamp = last.Add(time.Nanosecond)
		}
	}
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *RequestLogRepository) firstAtOrAfter(since time.Time) int {
	return sort.Search(len(r.entries), func(i int) bool {
		return !r.entries[i].Timestamp.Before(since)
	})
}

// SumCostSince returns the total cost of entries at or after since
func (r *RequestLogRepository) SumCostSince(ctx context.Context, since time.Time) (float64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var total float64
	for _, e := range r.entries[r.firstAtOrAfter(since):] {
		total += e.Cost
	}
	return total, nil
}

// CountSince returns the number of entries at or after since
func (r *RequestLogRepository) CountSince(ctx context.Context, since time.Time) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries) - r.firstAtOrAfter(since), nil
}
