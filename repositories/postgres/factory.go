package postgres

import (
	"context"

	"github.com/upb/governance-ledger/config"
	"github.com/upb/governance-ledger/repositories"
	"go.uber.org/zap"
)

// RepositoryFactory creates and manages all repositories
type RepositoryFactory struct {
	db     *DB
	logger *zap.Logger
}

// NewRepositoryFactory opens the database and creates a factory
func NewRepositoryFactory(cfg *config.Config, logger *zap.Logger) (*RepositoryFactory, error) {
	db, err := NewDB(cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	return &RepositoryFactory{db: db, logger: logger}, nil
}

// NewRepositoryFactoryFromDB creates a factory over an existing pool
func NewRepositoryFactoryFromDB(db *DB, logger *zap.Logger) *RepositoryFactory {
	return &RepositoryFactory{db: db, logger: logger}
}

// InitSchema creates the ledger tables when they do not exist
func (f *RepositoryFactory) InitSchema(ctx context.Context) error {
	return f.db.InitSchema(ctx)
}

// NewRepositories creates all repository instances
func (f *RepositoryFactory) NewRepositories() *repositories.Repositories {
	return &repositories.Repositories{
		Balances:       NewBalanceRepository(f.db, f.logger),
		RawRewards:     NewRawRewardEventRepository(f.db, f.logger),
		EmissionRules:  NewEmissionRuleRepository(f.db, f.logger),
		Tokens:         NewTokenRepository(f.db, f.logger),
		AppliedRewards: NewAppliedRewardRepository(f.db, f.logger),
		RailGuards:     NewRailGuardRepository(f.db, f.logger),
		RequestLog:     NewRequestLogRepository(f.db, f.logger),
		Quorum:         NewQuorumRepository(f.db, f.logger),
		AuditLogs:      NewAuditRepository(f.db, f.logger),
	}
}

// GetTransactionManager returns a transaction manager
func (f *RepositoryFactory) GetTransactionManager() repositories.TransactionManager {
	return NewTransactionManager(f.db, f.logger)
}

// GetDB returns the database connection
func (f *RepositoryFactory) GetDB() *DB {
	return f.db
}

// Close closes the database connection
func (f *RepositoryFactory) Close() error {
	return f.db.Close()
}
