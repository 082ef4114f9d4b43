package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/upb/governance-ledger/config"
	"go.uber.org/zap"
)

// DB wraps the sql.DB connection pool
type DB struct {
	*sql.DB
	logger *zap.Logger
}

// NewDB creates a new database connection pool
func NewDB(cfg config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established",
		zap.String("connection", cfg.LogString()))

	return &DB{
		DB:     db,
		logger: logger,
	}, nil
}

// WrapDB adapts an existing pool, e.g. a sqlmock connection in tests
func WrapDB(db *sql.DB, logger *zap.Logger) *DB {
	return &DB{DB: db, logger: logger}
}

// Close closes the database connection pool
func (db *DB) Close() error {
	db.logger.Info("closing database connection")
	return db.DB.Close()
}

// HealthCheck performs a health check on the database
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database query check failed: %w", err)
	}

	return nil
}

// Stats returns database connection pool statistics
func (db *DB) Stats() sql.DBStats {
	return db.DB.Stats()
}

// InitSchema initializes the ledger schema
func (db *DB) InitSchema(ctx context.Context) error {
	schema := `
		-- Balances keyed on (identity_id, token)
		CREATE TABLE IF NOT EXISTS balances (
			identity_id VARCHAR(255) NOT NULL,
			token VARCHAR(32) NOT NULL,
			amount DOUBLE PRECISION NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (identity_id, token)
		);

		-- Raw reward events; seq preserves insertion order
		CREATE TABLE IF NOT EXISTS raw_reward_events (
			seq BIGSERIAL UNIQUE,
			id UUID PRIMARY KEY,
			identity_id VARCHAR(255) NOT NULL,
			source VARCHAR(100) NOT NULL,
			kind VARCHAR(100) NOT NULL,
			base_value DOUBLE PRECISION NOT NULL CHECK (base_value >= 0),
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			processed BOOLEAN NOT NULL DEFAULT false
		);

		-- Emission rules
		CREATE TABLE IF NOT EXISTS emission_rules (
			seq BIGSERIAL UNIQUE,
			id VARCHAR(100) PRIMARY KEY,
			source VARCHAR(100) NOT NULL,
			kind VARCHAR(100) NOT NULL,
			token VARCHAR(32) NOT NULL,
			multiplier DOUBLE PRECISION NOT NULL CHECK (multiplier >= 0),
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		-- Token configs
		CREATE TABLE IF NOT EXISTS token_configs (
			symbol VARCHAR(32) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			decimals INTEGER NOT NULL DEFAULT 18,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		-- Applied rewards, append-only
		CREATE TABLE IF NOT EXISTS applied_rewards (
			seq BIGSERIAL UNIQUE,
			id UUID PRIMARY KEY,
			raw_reward_id UUID NOT NULL REFERENCES raw_reward_events(id),
			rule_id VARCHAR(100) NOT NULL,
			identity_id VARCHAR(255) NOT NULL,
			token VARCHAR(32) NOT NULL,
			amount DOUBLE PRECISION NOT NULL,
			source VARCHAR(100) NOT NULL,
			kind VARCHAR(100) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (raw_reward_id, rule_id)
		);

		-- Rail guards; never deleted
		CREATE TABLE IF NOT EXISTS rail_guards (
			seq BIGSERIAL UNIQUE,
			id UUID PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			type VARCHAR(32) NOT NULL,
			limit_value DOUBLE PRECISION NOT NULL,
			action VARCHAR(16) NOT NULL,
			enabled BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		-- Request log for rail guard windows
		CREATE TABLE IF NOT EXISTS request_log (
			seq BIGSERIAL PRIMARY KEY,
			id UUID NOT NULL,
			cost DOUBLE PRECISION NOT NULL DEFAULT 0,
			endpoint VARCHAR(255),
			timestamp TIMESTAMPTZ NOT NULL
		);

		-- Quorum decisions
		CREATE TABLE IF NOT EXISTS quorum_decisions (
			policy_id VARCHAR(255) PRIMARY KEY,
			votes JSONB NOT NULL DEFAULT '[]',
			threshold INTEGER NOT NULL,
			quorum_types JSONB NOT NULL DEFAULT '[]',
			result VARCHAR(16) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			resolved_at TIMESTAMPTZ
		);

		-- Audit logs
		CREATE TABLE IF NOT EXISTS audit_logs (
			id UUID PRIMARY KEY,
			action VARCHAR(100) NOT NULL,
			resource_type VARCHAR(100) NOT NULL,
			resource_id VARCHAR(255),
			actor_id VARCHAR(255),
			details JSONB,
			request_id VARCHAR(255),
			timestamp TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE INDEX IF NOT EXISTS idx_raw_reward_events_unprocessed ON raw_reward_events(seq) WHERE processed = false;
		CREATE INDEX IF NOT EXISTS idx_emission_rules_source_kind ON emission_rules(source, kind);
		CREATE INDEX IF NOT EXISTS idx_applied_rewards_identity ON applied_rewards(identity_id);
		CREATE INDEX IF NOT EXISTS idx_request_log_timestamp ON request_log(timestamp);
		CREATE INDEX IF NOT EXISTS idx_quorum_decisions_result ON quorum_decisions(result);
		CREATE INDEX IF NOT EXISTS idx_audit_logs_resource ON audit_logs(resource_type, resource_id);
		CREATE INDEX IF NOT EXISTS idx_audit_logs_action ON audit_logs(action);
		CREATE INDEX IF NOT EXISTS idx_audit_logs_timestamp ON audit_logs(timestamp);
	`

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	db.logger.Info("database schema initialized successfully")
	return nil
}
