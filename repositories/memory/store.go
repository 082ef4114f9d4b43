// Package memory implements every repository on process-local maps.
// Each store is guarded by its own RWMutex and hands out copies, never its own pointers.
package memory

import (
	"context"

	"github.com/upb/governance-ledger/repositories"
)

// NewRepositories creates an empty in-memory repository set
func NewRepositories() *repositories.Repositories {
	return &repositories.Repositories{
		Balances:       NewBalanceRepository(),
		RawRewards:     NewRawRewardEventRepository(),
		EmissionRules:  NewEmissionRuleRepository(),
		Tokens:         NewTokenRepository(),
		AppliedRewards: NewAppliedRewardRepository(),
		RailGuards:     NewRailGuardRepository(),
		RequestLog:     NewRequestLogRepository(),
		Quorum:         NewQuorumRepository(),
		AuditLogs:      NewAuditRepository(),
	}
}

// TransactionManager satisfies repositories.TransactionManager for the memory store.
// There is no rollback: each repository call is individually atomic and the
// callers rely on idempotent writes (InsertIfAbsent, MarkProcessed) for replay.
type TransactionManager struct{}

// NewTransactionManager creates a memory transaction manager
func NewTransactionManager() repositories.TransactionManager {
	return TransactionManager{}
}

// Begin starts a new no-op transaction
func (TransactionManager) Begin(ctx context.Context) (repositories.Transaction, error) {
	return &transaction{ctx: ctx}, nil
}

// InTransaction runs fn and reports its error
func (tm TransactionManager) InTransaction(ctx context.Context, fn func(ctx context.Context, tx repositories.Transaction) error) error {
	tx, _ := tm.Begin(ctx)
	if err := fn(ctx, tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

type transaction struct {
	ctx context.Context
}

func (t *transaction) Commit() error { return nil }

func (t *transaction) Rollback() error { return nil }

func (t *transaction) Context() context.Context { return t.ctx }
