package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/upb/governance-ledger/models"
	"github.com/upb/governance-ledger/repositories"
	"go.uber.org/zap"
)

// RawRewardEventRepository implements repositories.RawRewardEventRepository
type RawRewardEventRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewRawRewardEventRepository creates a new raw reward event repository
func NewRawRewardEventRepository(db *DB, logger *zap.Logger) repositories.RawRewardEventRepository {
	return &RawRewardEventRepository{db: db, logger: logger}
}

// Create inserts a new event
func (r *RawRewardEventRepository) Create(ctx context.Context, ev *models.RawRewardEvent) error {
	query := `
		INSERT INTO raw_reward_events (id, identity_id, source, kind, base_value, created_at, processed)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		ev.ID,
		ev.IdentityID,
		ev.Source,
		ev.Kind,
		ev.BaseValue,
		ev.CreatedAt,
		ev.Processed,
	)
	if err != nil {
		return fmt.Errorf("failed to create raw reward event: %w", err)
	}

	r.logger.Debug("raw reward event created", zap.String("id", ev.ID.String()))
	return nil
}

// GetByID retrieves an event by ID
func (r *RawRewardEventRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.RawRewardEvent, error) {
	query := `
		SELECT id, identity_id, source, kind, base_value, created_at, processed
		FROM raw_reward_events
		WHERE id = $1
	`

	ev := &models.RawRewardEvent{}
	err := GetExecutor(ctx, r.db).QueryRowContext(ctx, query, id).Scan(
		&ev.ID,
		&ev.IdentityID,
		&ev.Source,
		&ev.Kind,
		&ev.BaseValue,
		&ev.CreatedAt,
		&ev.Processed,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("raw reward event %s: %w", id, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get raw reward event: %w", err)
	}
	return ev, nil
}

// ListUnprocessed retrieves up to limit unprocessed events in insertion order
func (r *RawRewardEventRepository) ListUnprocessed(ctx context.Context, limit int) ([]*models.RawRewardEvent, error) {
	query := `
		SELECT id, identity_id, source, kind, base_value, created_at, processed
		FROM raw_reward_events
		WHERE processed = false
		ORDER BY seq
		LIMIT $1
	`

	rows, err := GetExecutor(ctx, r.db).QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unprocessed events: %w", err)
	}
	defer rows.Close()

	var out []*models.RawRewardEvent
	for rows.Next() {
		ev := &models.RawRewardEvent{}
		if err := rows.Scan(&ev.ID, &ev.IdentityID, &ev.Source, &ev.Kind, &ev.BaseValue, &ev.CreatedAt, &ev.Processed); err != nil {
			return nil, fmt.Errorf("failed to scan raw reward event: %w", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating raw reward events: %w", err)
	}
	return out, nil
}

// MarkProcessed flips processed to true
func (r *RawRewardEventRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE raw_reward_events SET processed = true WHERE id = $1`

	result, err := GetExecutor(ctx, r.db).ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to mark event processed: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("raw reward event %s: %w", id, repositories.ErrNotFound)
	}
	return nil
}

// CountUnprocessed returns the number of events still waiting for emission
func (r *RawRewardEventRepository) CountUnprocessed(ctx context.Context) (int, error) {
	return countRows(ctx, r.db, "SELECT COUNT(*) FROM raw_reward_events WHERE processed = false")
}

// EmissionRuleRepository implements repositories.EmissionRuleRepository
type EmissionRuleRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewEmissionRuleRepository creates a new emission rule repository
func NewEmissionRuleRepository(db *DB, logger *zap.Logger) repositories.EmissionRuleRepository {
	return &EmissionRuleRepository{db: db, logger: logger}
}

// CreateIfAbsent inserts the rule unless one with the same ID exists
func (r *EmissionRuleRepository) CreateIfAbsent(ctx context.Context, rule *models.EmissionRule) (bool, error) {
	query := `
		INSERT INTO emission_rules (id, source, kind, token, multiplier, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`
	return execInserted(ctx, r.db, "emission rule", query,
		rule.ID, rule.Source, rule.Kind, rule.Token, rule.Multiplier, rule.CreatedAt)
}

// ListBySourceKind retrieves every rule matching source and kind in creation order
func (r *EmissionRuleRepository) ListBySourceKind(ctx context.Context, source, kind string) ([]*models.EmissionRule, error) {
	query := `
		SELECT id, source, kind, token, multiplier, created_at
		FROM emission_rules
		WHERE source = $1 AND kind = $2
		ORDER BY seq
	`
	return r.queryRules(ctx, query, source, kind)
}

// List retrieves every rule in creation order
func (r *EmissionRuleRepository) List(ctx context.Context) ([]*models.EmissionRule, error) {
	query := `
		SELECT id, source, kind, token, multiplier, created_at
		FROM emission_rules
		ORDER BY seq
	`
	return r.queryRules(ctx, query)
}

// Count returns the number of rules
func (r *EmissionRuleRepository) Count(ctx context.Context) (int, error) {
	return countRows(ctx, r.db, "SELECT COUNT(*) FROM emission_rules")
}

func (r *EmissionRuleRepository) queryRules(ctx context.Context, query string, args ...interface{}) ([]*models.EmissionRule, error) {
	rows, err := GetExecutor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query emission rules: %w", err)
	}
	defer rows.Close()

	var out []*models.EmissionRule
	for rows.Next() {
		rule := &models.EmissionRule{}
		if err := rows.Scan(&rule.ID, &rule.Source, &rule.Kind, &rule.Token, &rule.Multiplier, &rule.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan emission rule: %w", err)
		}
		out = append(out, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating emission rules: %w", err)
	}
	return out, nil
}

// TokenRepository implements repositories.TokenRepository
type TokenRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewTokenRepository creates a new token repository
func NewTokenRepository(db *DB, logger *zap.Logger) repositories.TokenRepository {
	return &TokenRepository{db: db, logger: logger}
}

// CreateIfAbsent inserts the token unless the symbol exists
func (r *TokenRepository) CreateIfAbsent(ctx context.Context, token *models.TokenConfig) (bool, error) {
	query := `
		INSERT INTO token_configs (symbol, name, decimals, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (symbol) DO NOTHING
	`
	return execInserted(ctx, r.db, "token", query, token.Symbol, token.Name, token.Decimals, token.CreatedAt)
}

// GetBySymbol retrieves a token by symbol
func (r *TokenRepository) GetBySymbol(ctx context.Context, symbol string) (*models.TokenConfig, error) {
	query := `SELECT symbol, name, decimals, created_at FROM token_configs WHERE symbol = $1`

	tok := &models.TokenConfig{}
	err := GetExecutor(ctx, r.db).QueryRowContext(ctx, query, symbol).Scan(&tok.Symbol, &tok.Name, &tok.Decimals, &tok.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("token %s: %w", symbol, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get token: %w", err)
	}
	return tok, nil
}

// List retrieves every token ordered by symbol
func (r *TokenRepository) List(ctx context.Context) ([]*models.TokenConfig, error) {
	query := `SELECT symbol, name, decimals, created_at FROM token_configs ORDER BY symbol`

	rows, err := GetExecutor(ctx, r.db).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	defer rows.Close()

	var out []*models.TokenConfig
	for rows.Next() {
		tok := &models.TokenConfig{}
		if err := rows.Scan(&tok.Symbol, &tok.Name, &tok.Decimals, &tok.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan token: %w", err)
		}
		out = append(out, tok)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tokens: %w", err)
	}
	return out, nil
}

// Count returns the number of tokens
func (r *TokenRepository) Count(ctx context.Context) (int, error) {
	return countRows(ctx, r.db, "SELECT COUNT(*) FROM token_configs")
}

// AppliedRewardRepository implements repositories.AppliedRewardRepository
type AppliedRewardRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewAppliedRewardRepository creates a new applied reward repository
func NewAppliedRewardRepository(db *DB, logger *zap.Logger) repositories.AppliedRewardRepository {
	return &AppliedRewardRepository{db: db, logger: logger}
}

// InsertIfAbsent appends the record unless one exists for the same (raw_reward_id, rule_id)
func (r *AppliedRewardRepository) InsertIfAbsent(ctx context.Context, reward *models.AppliedReward) (bool, error) {
	query := `
		INSERT INTO applied_rewards (id, raw_reward_id, rule_id, identity_id, token, amount, source, kind, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (raw_reward_id, rule_id) DO NOTHING
	`
	return execInserted(ctx, r.db, "applied reward", query,
		reward.ID,
		reward.RawRewardID,
		reward.Meta.RuleID,
		reward.IdentityID,
		reward.Token,
		reward.Amount,
		reward.Meta.Source,
		reward.Meta.Kind,
		reward.CreatedAt,
	)
}

// ListByRawReward retrieves payouts produced by one event
func (r *AppliedRewardRepository) ListByRawReward(ctx context.Context, rawRewardID uuid.UUID) ([]*models.AppliedReward, error) {
	query := `
		SELECT id, raw_reward_id, rule_id, identity_id, token, amount, source, kind, created_at
		FROM applied_rewards
		WHERE raw_reward_id = $1
		ORDER BY seq
	`
	return r.queryRewards(ctx, query, rawRewardID)
}

// ListByIdentity retrieves the latest payouts of one identity
func (r *AppliedRewardRepository) ListByIdentity(ctx context.Context, identityID string, limit int) ([]*models.AppliedReward, error) {
	query := `
		SELECT id, raw_reward_id, rule_id, identity_id, token, amount, source, kind, created_at
		FROM applied_rewards
		WHERE identity_id = $1
		ORDER BY seq DESC
		LIMIT $2
	`
	return r.queryRewards(ctx, query, identityID, limit)
}

// Count returns the number of applied rewards
func (r *AppliedRewardRepository) Count(ctx context.Context) (int, error) {
	return countRows(ctx, r.db, "SELECT COUNT(*) FROM applied_rewards")
}

func (r *AppliedRewardRepository) queryRewards(ctx context.Context, query string, args ...interface{}) ([]*models.AppliedReward, error) {
	rows, err := GetExecutor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query applied rewards: %w", err)
	}
	defer rows.Close()

	var out []*models.AppliedReward
	for rows.Next() {
		rw := &models.AppliedReward{}
		if err := rows.Scan(
			&rw.ID,
			&rw.RawRewardID,
			&rw.Meta.RuleID,
			&rw.IdentityID,
			&rw.Token,
			&rw.Amount,
			&rw.Meta.Source,
			&rw.Meta.Kind,
			&rw.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan applied reward: %w", err)
		}
		out = append(out, rw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating applied rewards: %w", err)
	}
	return out, nil
}

// execInserted runs an INSERT ... ON CONFLICT DO NOTHING and reports whether a row was written
func execInserted(ctx context.Context, db *DB, what, query string, args ...interface{}) (bool, error) {
	result, err := GetExecutor(ctx, db).ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to insert %s: %w", what, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}
