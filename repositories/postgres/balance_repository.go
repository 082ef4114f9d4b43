package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/upb/governance-ledger/models"
	"github.com/upb/governance-ledger/repositories"
	"go.uber.org/zap"
)

// BalanceRepository implements repositories.BalanceRepository
type BalanceRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewBalanceRepository creates a new balance repository
func NewBalanceRepository(db *DB, logger *zap.Logger) repositories.BalanceRepository {
	return &BalanceRepository{
		db:     db,
		logger: logger,
	}
}

// Adjust applies delta in one upsert statement; the row lock serializes concurrent adjustments
func (r *BalanceRepository) Adjust(ctx context.Context, identityID, token string, delta float64) (*models.BalanceRecord, error) {
	query := `
		INSERT INTO balances (identity_id, token, amount, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (identity_id, token) DO UPDATE SET
			amount = balances.amount + EXCLUDED.amount,
			updated_at = EXCLUDED.updated_at
		RETURNING identity_id, token, amount, updated_at
	`

	executor := GetExecutor(ctx, r.db)
	rec := &models.BalanceRecord{}
	err := executor.QueryRowContext(ctx, query, identityID, token, delta).Scan(
		&rec.IdentityID,
		&rec.Token,
		&rec.Amount,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to adjust balance: %w", err)
	}

	r.logger.Debug("balance adjusted",
		zap.String("identity_id", identityID),
		zap.String("token", token),
		zap.Float64("delta", delta),
		zap.Float64("amount", rec.Amount),
	)
	return rec, nil
}

// Get retrieves one balance
func (r *BalanceRepository) Get(ctx context.Context, identityID, token string) (*models.BalanceRecord, error) {
	query := `
		SELECT identity_id, token, amount, updated_at
		FROM balances
		WHERE identity_id = $1 AND token = $2
	`

	executor := GetExecutor(ctx, r.db)
	rec := &models.BalanceRecord{}
	err := executor.QueryRowContext(ctx, query, identityID, token).Scan(
		&rec.IdentityID,
		&rec.Token,
		&rec.Amount,
		&rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("balance %s/%s: %w", identityID, token, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	return rec, nil
}

// ListByIdentity retrieves every token balance of one identity
func (r *BalanceRepository) ListByIdentity(ctx context.Context, identityID string) ([]*models.BalanceRecord, error) {
	query := `
		SELECT identity_id, token, amount, updated_at
		FROM balances
		WHERE identity_id = $1
		ORDER BY token
	`
	return r.queryBalances(ctx, query, identityID)
}

// List retrieves up to limit balances, most recently updated first
func (r *BalanceRepository) List(ctx context.Context, limit int) ([]*models.BalanceRecord, error) {
	query := `
		SELECT identity_id, token, amount, updated_at
		FROM balances
		ORDER BY updated_at DESC, identity_id, token
		LIMIT $1
	`
	return r.queryBalances(ctx, query, limit)
}

// Count returns the number of balance records
func (r *BalanceRepository) Count(ctx context.Context) (int, error) {
	return countRows(ctx, r.db, "SELECT COUNT(*) FROM balances")
}

func (r *BalanceRepository) queryBalances(ctx context.Context, query string, args ...interface{}) ([]*models.BalanceRecord, error) {
	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query balances: %w", err)
	}
	defer rows.Close()

	var out []*models.BalanceRecord
	for rows.Next() {
		rec := &models.BalanceRecord{}
		if err := rows.Scan(&rec.IdentityID, &rec.Token, &rec.Amount, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan balance: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating balances: %w", err)
	}
	return out, nil
}

// countRows runs a single-value COUNT query
func countRows(ctx context.Context, db *DB, query string, args ...interface{}) (int, error) {
	var n int
	if err := GetExecutor(ctx, db).QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count rows: %w", err)
	}
	return n, nil
}
