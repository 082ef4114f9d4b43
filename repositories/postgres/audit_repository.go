package postgres

import (
	"context"
	"fmt"

	"github.com/upb/governance-ledger/models"
	"github.com/upb/governance-ledger/repositories"
	"go.uber.org/zap"
)

const auditSelect = `
	SELECT id, action, resource_type, COALESCE(resource_id, ''), COALESCE(actor_id, ''),
	       details, COALESCE(request_id, ''), timestamp
	FROM audit_logs`

// AuditRepository stores governance audit entries in audit_logs
type AuditRepository struct {
	db     *DB
	logger *zap.Logger
}

func NewAuditRepository(db *DB, logger *zap.Logger) repositories.AuditRepository {
	return &AuditRepository{db: db, logger: logger}
}

// Insert writes one entry. Empty optional columns are stored as NULL.
func (r *AuditRepository) Insert(ctx context.Context, log *models.AuditLog) error {
	var details interface{}
	if len(log.Details) > 0 {
		details = string(log.Details)
	}

	_, err := GetExecutor(ctx, r.db).ExecContext(ctx, `
		INSERT INTO audit_logs (id, action, resource_type, resource_id, actor_id, details, request_id, timestamp)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, NULLIF($7, ''), $8)`,
		log.ID, log.Action, log.ResourceType, log.ResourceID, log.ActorID, details, log.RequestID, log.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to insert audit log %s: %w", log.Action, err)
	}

	r.logger.Debug("audit log inserted",
		zap.String("action", string(log.Action)),
		zap.String("resource", log.ResourceType+"/"+log.ResourceID))
	return nil
}

// GetByResource returns the newest entries for one resource
func (r *AuditRepository) GetByResource(ctx context.Context, resourceType, resourceID string, limit int) ([]*models.AuditLog, error) {
	return r.list(ctx, auditSelect+`
		WHERE resource_type = $1 AND resource_id = $2
		ORDER BY timestamp DESC
		LIMIT $3`, resourceType, resourceID, limit)
}

// GetByAction pages through entries of one action, newest first
func (r *AuditRepository) GetByAction(ctx context.Context, action models.AuditAction, limit, offset int) ([]*models.AuditLog, error) {
	return r.list(ctx, auditSelect+`
		WHERE action = $1
		ORDER BY timestamp DESC
		LIMIT $2 OFFSET $3`, action, limit, offset)
}

func (r *AuditRepository) list(ctx context.Context, query string, args ...interface{}) ([]*models.AuditLog, error) {
	rows, err := GetExecutor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()

	logs := []*models.AuditLog{}
	for rows.Next() {
		log, err := scanAuditLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read audit logs: %w", err)
	}
	return logs, nil
}

func scanAuditLog(row rowScanner) (*models.AuditLog, error) {
	log := &models.AuditLog{}
	var details []byte
	if err := row.Scan(&log.ID, &log.Action, &log.ResourceType, &log.ResourceID,
		&log.ActorID, &details, &log.RequestID, &log.Timestamp); err != nil {
		return nil, fmt.Errorf("failed to scan audit log: %w", err)
	}
	log.Details = details
	return log, nil
}
