package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/upb/governance-ledger/models"
	"github.com/upb/governance-ledger/repositories"
	"go.uber.org/zap"
)

// RailGuardRepository implements repositories.RailGuardRepository
type RailGuardRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewRailGuardRepository creates a new rail guard repository
func NewRailGuardRepository(db *DB, logger *zap.Logger) repositories.RailGuardRepository {
	return &RailGuardRepository{db: db, logger: logger}
}

// Create inserts a new guard
func (r *RailGuardRepository) Create(ctx context.Context, guard *models.RailGuard) error {
	query := `
		INSERT INTO rail_guards (id, name, type, limit_value, action, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := GetExecutor(ctx, r.db).ExecContext(ctx, query,
		guard.ID,
		guard.Name,
		guard.Type,
		guard.Limit,
		guard.Action,
		guard.Enabled,
		guard.CreatedAt,
		guard.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create rail guard: %w", err)
	}

	r.logger.Debug("rail guard created", zap.String("id", guard.ID.String()), zap.String("type", string(guard.Type)))
	return nil
}

// GetByID retrieves a guard by ID
func (r *RailGuardRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.RailGuard, error) {
	query := `
		SELECT id, name, type, limit_value, action, enabled, created_at, updated_at
		FROM rail_guards
		WHERE id = $1
	`

	g := &models.RailGuard{}
	err := GetExecutor(ctx, r.db).QueryRowContext(ctx, query, id).Scan(
		&g.ID, &g.Name, &g.Type, &g.Limit, &g.Action, &g.Enabled, &g.CreatedAt, &g.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("rail guard %s: %w", id, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get rail guard: %w", err)
	}
	return g, nil
}

// List retrieves every guard in stored order
func (r *RailGuardRepository) List(ctx context.Context) ([]*models.RailGuard, error) {
	query := `
		SELECT id, name, type, limit_value, action, enabled, created_at, updated_at
		FROM rail_guards
		ORDER BY seq
	`

	rows, err := GetExecutor(ctx, r.db).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list rail guards: %w", err)
	}
	defer rows.Close()

	var out []*models.RailGuard
	for rows.Next() {
		g := &models.RailGuard{}
		if err := rows.Scan(&g.ID, &g.Name, &g.Type, &g.Limit, &g.Action, &g.Enabled, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan rail guard: %w", err)
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rail guards: %w", err)
	}
	return out, nil
}

// Update persists limit, action, name and enabled changes
func (r *RailGuardRepository) Update(ctx context.Context, guard *models.RailGuard) error {
	query := `
		UPDATE rail_guards
		SET name = $2, limit_value = $3, action = $4, enabled = $5, updated_at = $6
		WHERE id = $1
	`

	result, err := GetExecutor(ctx, r.db).ExecContext(ctx, query,
		guard.ID,
		guard.Name,
		guard.Limit,
		guard.Action,
		guard.Enabled,
		guard.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update rail guard: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("rail guard %s: %w", guard.ID, repositories.ErrNotFound)
	}
	return nil
}

// Count returns the number of guards
func (r *RailGuardRepository) Count(ctx context.Context) (int, error) {
	return countRows(ctx, r.db, "SELECT COUNT(*) FROM rail_guards")
}

// RequestLogRepository implements repositories.RequestLogRepository
type RequestLogRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewRequestLogRepository creates a new request log repository
func NewRequestLogRepository(db *DB, logger *zap.Logger) repositories.RequestLogRepository {
	return &RequestLogRepository{db: db, logger: logger}
}

// Append adds an entry. The stored timestamp is pushed past the current
// maximum so the log stays ordered even when callers' clocks collide.
func (r *RequestLogRepository) Append(ctx context.Context, entry *models.RequestLogEntry) error {
	query := `
		INSERT INTO request_log (id, cost, endpoint, timestamp)
		SELECT $1::uuid, $2::double precision, $3::varchar, GREATEST($4::timestamptz, COALESCE(MAX(timestamp) + INTERVAL '1 microsecond', $4::timestamptz))
		FROM request_log
		RETURNING timestamp
	`

	var stored time.Time
	err := GetExecutor(ctx, r.db).QueryRowContext(ctx, query,
		entry.ID,
		entry.Cost,
		entry.Endpoint,
		entry.Timestamp,
	).Scan(&stored)
	if err != nil {
		return fmt.Errorf("failed to append request log entry: %w", err)
	}
	entry.Timestamp = stored
	return nil
}

// SumCostSince returns the total cost of entries at or after since
func (r *RequestLogRepository) SumCostSince(ctx context.Context, since time.Time) (float64, error) {
	query := `SELECT COALESCE(SUM(cost), 0) FROM request_log WHERE timestamp >= $1`

	var total float64
	if err := GetExecutor(ctx, r.db).QueryRowContext(ctx, query, since).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum request cost: %w", err)
	}
	return total, nil
}

// CountSince returns the number of entries at or after since
func (r *RequestLogRepository) CountSince(ctx context.Context, since time.Time) (int, error) {
	return countRows(ctx, r.db, "SELECT COUNT(*) FROM request_log WHERE timestamp >= $1", since)
}
