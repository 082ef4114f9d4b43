package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/upb/governance-ledger/models"
	"github.com/upb/governance-ledger/repositories"
	"go.uber.org/zap"
)

// QuorumRepository implements repositories.QuorumRepository.
// Votes and quorum types are stored as JSONB.
type QuorumRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewQuorumRepository creates a new quorum repository
func NewQuorumRepository(db *DB, logger *zap.Logger) repositories.QuorumRepository {
	return &QuorumRepository{db: db, logger: logger}
}

const quorumColumns = `policy_id, votes, threshold, quorum_types, result, created_at, updated_at, resolved_at`

// CreateIfAbsent inserts the state unless one exists for the policyId
func (r *QuorumRepository) CreateIfAbsent(ctx context.Context, state *models.QuorumDecisionState) (bool, error) {
	votes, types, err := marshalQuorum(state)
	if err != nil {
		return false, err
	}

	query := `
		INSERT INTO quorum_decisions (` + quorumColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (policy_id) DO NOTHING
	`
	return execInserted(ctx, r.db, "quorum decision", query,
		state.PolicyID,
		votes,
		state.Threshold,
		types,
		state.Result,
		state.CreatedAt,
		state.UpdatedAt,
		state.ResolvedAt,
	)
}

// Get retrieves a decision
func (r *QuorumRepository) Get(ctx context.Context, policyID string) (*models.QuorumDecisionState, error) {
	query := `SELECT ` + quorumColumns + ` FROM quorum_decisions WHERE policy_id = $1`
	return r.getOne(ctx, query, policyID)
}

// GetForUpdate retrieves a decision with a row lock held until the enclosing transaction ends
func (r *QuorumRepository) GetForUpdate(ctx context.Context, policyID string) (*models.QuorumDecisionState, error) {
	query := `SELECT ` + quorumColumns + ` FROM quorum_decisions WHERE policy_id = $1 FOR UPDATE`
	return r.getOne(ctx, query, policyID)
}

// Update persists votes, result and timestamps
func (r *QuorumRepository) Update(ctx context.Context, state *models.QuorumDecisionState) error {
	votes, types, err := marshalQuorum(state)
	if err != nil {
		return err
	}

	query := `
		UPDATE quorum_decisions
		SET votes = $2, threshold = $3, quorum_types = $4, result = $5, updated_at = $6, resolved_at = $7
		WHERE policy_id = $1
	`
	result, err := GetExecutor(ctx, r.db).ExecContext(ctx, query,
		state.PolicyID,
		votes,
		state.Threshold,
		types,
		state.Result,
		state.UpdatedAt,
		state.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update quorum decision: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("quorum decision %s: %w", state.PolicyID, repositories.ErrNotFound)
	}
	return nil
}

// ListByResult retrieves up to limit decisions in the given state, newest first
func (r *QuorumRepository) ListByResult(ctx context.Context, result models.QuorumResult, limit int) ([]*models.QuorumDecisionState, error) {
	query := `
		SELECT ` + quorumColumns + `
		FROM quorum_decisions
		WHERE result = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := GetExecutor(ctx, r.db).QueryContext(ctx, query, result, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list quorum decisions: %w", err)
	}
	defer rows.Close()

	var out []*models.QuorumDecisionState
	for rows.Next() {
		state, err := scanQuorum(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, state)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating quorum decisions: %w", err)
	}
	return out, nil
}

func (r *QuorumRepository) getOne(ctx context.Context, query, policyID string) (*models.QuorumDecisionState, error) {
	state, err := scanQuorum(GetExecutor(ctx, r.db).QueryRowContext(ctx, query, policyID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("quorum decision %s: %w", policyID, repositories.ErrNotFound)
		}
		return nil, err
	}
	return state, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanQuorum(row rowScanner) (*models.QuorumDecisionState, error) {
	state := &models.QuorumDecisionState{}
	var votes, types []byte
	var resolved sql.NullTime

	if err := row.Scan(
		&state.PolicyID,
		&votes,
		&state.Threshold,
		&types,
		&state.Result,
		&state.CreatedAt,
		&state.UpdatedAt,
		&resolved,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan quorum decision: %w", err)
	}

	if err := json.Unmarshal(votes, &state.Votes); err != nil {
		return nil, fmt.Errorf("failed to decode quorum votes: %w", err)
	}
	if err := json.Unmarshal(types, &state.QuorumTypes); err != nil {
		return nil, fmt.Errorf("failed to decode quorum types: %w", err)
	}
	if resolved.Valid {
		t := resolved.Time
		state.ResolvedAt = &t
	}
	return state, nil
}

// marshalQuorum returns JSON text; lib/pq would send []byte as bytea.
func marshalQuorum(state *models.QuorumDecisionState) (string, string, error) {
	votes := state.Votes
	if votes == nil {
		votes = []models.Vote{}
	}
	types := state.QuorumTypes
	if types == nil {
		types = []models.ReviewerType{}
	}

	v, err := json.Marshal(votes)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode quorum votes: %w", err)
	}
	t, err := json.Marshal(types)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode quorum types: %w", err)
	}
	return string(v), string(t), nil
}
