package memory

import (
	"context"
	"sync"

	"github.com/upb/governance-ledger/models"
)

// AuditRepository implements repositories.AuditRepository in memory
type AuditRepository struct {
	mu   sync.RWMutex
	logs []*models.AuditLog
}

// NewAuditRepository creates an empty audit store
func NewAuditRepository() *AuditRepository {
	return &AuditRepository{}
}

// Insert appends an audit log entry
func (r *AuditRepository) Insert(ctx context.Context, log *models.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	val := *log
	r.logs = append(r.logs, &val)
	return nil
}

// GetByResource retrieves the latest audit logs for one resource, newest first
func (r *AuditRepository) GetByResource(ctx context.Context, resourceType, resourceID string, limit int) ([]*models.AuditLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.AuditLog, 0)
	for i := len(r.logs) - 1; i >= 0; i-- {
		if limit >= 0 && len(out) >= limit {
			break
		}
		if l := r.logs[i]; l.ResourceType == resourceType && l.ResourceID == resourceID {
			val := *l
			out = append(out, &val)
		}
	}
	return out, nil
}

// GetByAction retrieves audit logs by action type, newest first
func (r *AuditRepository) GetByAction(ctx context.Context, action models.AuditAction, limit, offset int) ([]*models.AuditLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.AuditLog, 0)
	skipped := 0
	for i := len(r.logs) - 1; i >= 0; i-- {
		if limit >= 0 && len(out) >= limit {
			break
		}
		l := r.logs[i]
		if l.Action != action {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		val := *l
		out = append(out, &val)
	}
	return out, nil
}
