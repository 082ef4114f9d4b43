package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/upb/governance-ledger/models"
)

// ErrNotFound is wrapped by every repository when a keyed lookup has no row
var ErrNotFound = errors.New("record not found")

// TransactionManager manages units of work across repositories.
// Repositories pick up the active transaction from the context passed to fn.
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction
	// Automatically commits if function succeeds, rolls back on error
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns the transaction context
	Context() context.Context
}

// BalanceRepository stores balances keyed on (identityId, token)
type BalanceRepository interface {
	// Adjust adds delta to the balance in a single atomic read-modify-write,
	// creating the record at delta when absent. It never clamps.
	Adjust(ctx context.Context, identityID, token string, delta float64) (*models.BalanceRecord, error)

	// Get retrieves one balance
	Get(ctx context.Context, identityID, token string) (*models.BalanceRecord, error)

	// ListByIdentity retrieves every token balance of one identity
	ListByIdentity(ctx context.Context, identityID string) ([]*models.BalanceRecord, error)

	// List retrieves up to limit balances, most recently updated first
	List(ctx context.Context, limit int) ([]*models.BalanceRecord, error)

	// Count returns the number of balance records
	Count(ctx context.Context) (int, error)
}

// RawRewardEventRepository stores ingested reward events
type RawRewardEventRepository interface {
	// Create inserts a new event
	Create(ctx context.Context, ev *models.RawRewardEvent) error

	// GetByID retrieves an event by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.RawRewardEvent, error)

	// ListUnprocessed retrieves up to limit unprocessed events in insertion order
	ListUnprocessed(ctx context.Context, limit int) ([]*models.RawRewardEvent, error)

	// MarkProcessed flips processed to true. It is a no-op on an already processed event.
	MarkProcessed(ctx context.Context, id uuid.UUID) error

	// CountUnprocessed returns the number of events still waiting for emission
	CountUnprocessed(ctx context.Context) (int, error)
}

// EmissionRuleRepository stores (source, kind) -> token multipliers
type EmissionRuleRepository interface {
	// CreateIfAbsent inserts the rule unless one with the same ID exists
	CreateIfAbsent(ctx context.Context, rule *models.EmissionRule) (bool, error)

	// ListBySourceKind retrieves every rule matching source and kind in creation order
	ListBySourceKind(ctx context.Context, source, kind string) ([]*models.EmissionRule, error)

	// List retrieves every rule in creation order
	List(ctx context.Context) ([]*models.EmissionRule, error)

	// Count returns the number of rules
	Count(ctx context.Context) (int, error)
}

// TokenRepository stores token configurations
type TokenRepository interface {
	// CreateIfAbsent inserts the token unless the symbol exists
	CreateIfAbsent(ctx context.Context, token *models.TokenConfig) (bool, error)

	// GetBySymbol retrieves a token by symbol
	GetBySymbol(ctx context.Context, symbol string) (*models.TokenConfig, error)

	// List retrieves every token
	List(ctx context.Context) ([]*models.TokenConfig, error)

	// Count returns the number of tokens
	Count(ctx context.Context) (int, error)
}

// AppliedRewardRepository is the append-only payout audit trail
type AppliedRewardRepository interface {
	// InsertIfAbsent appends the record unless one exists for the same (rawRewardId, ruleId)
	InsertIfAbsent(ctx context.Context, reward *models.AppliedReward) (bool, error)

	// ListByRawReward retrieves payouts produced by one event
	ListByRawReward(ctx context.Context, rawRewardID uuid.UUID) ([]*models.AppliedReward, error)

	// ListByIdentity retrieves the latest payouts of one identity
	ListByIdentity(ctx context.Context, identityID string, limit int) ([]*models.AppliedReward, error)

	// Count returns the number of applied rewards
	Count(ctx context.Context) (int, error)
}

// RailGuardRepository stores rail guards. There is no delete.
type RailGuardRepository interface {
	// Create inserts a new guard
	Create(ctx context.Context, guard *models.RailGuard) error

	// GetByID retrieves a guard by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.RailGuard, error)

	// List retrieves every guard in stored (creation) order
	List(ctx context.Context) ([]*models.RailGuard, error)

	// Update persists limit, action, name and enabled changes
	Update(ctx context.Context, guard *models.RailGuard) error

	// Count returns the number of guards
	Count(ctx context.Context) (int, error)
}

// RequestLogRepository is the append-only log of cost-incurring requests
type RequestLogRepository interface {
	// Append adds an entry. Timestamps are strictly increasing per log.
	Append(ctx context.Context, entry *models.RequestLogEntry) error

	// SumCostSince returns the total cost of entries at or after since
	SumCostSince(ctx context.Context, since time.Time) (float64, error)

	// CountSince returns the number of entries at or after since
	CountSince(ctx context.Context, since time.Time) (int, error)
}

// QuorumRepository stores quorum decision state keyed on policyId
type QuorumRepository interface {
	// CreateIfAbsent inserts the state unless one exists for the policyId
	CreateIfAbsent(ctx context.Context, state *models.QuorumDecisionState) (bool, error)

	// Get retrieves a decision
	Get(ctx context.Context, policyID string) (*models.QuorumDecisionState, error)

	// GetForUpdate retrieves a decision and locks it for the enclosing transaction
	GetForUpdate(ctx context.Context, policyID string) (*models.QuorumDecisionState, error)

	// Update persists votes, result and timestamps
	Update(ctx context.Context, state *models.QuorumDecisionState) error

	// ListByResult retrieves up to limit decisions in the given state, newest first
	ListByResult(ctx context.Context, result models.QuorumResult, limit int) ([]*models.QuorumDecisionState, error)
}

// AuditRepository handles audit log data operations
type AuditRepository interface {
	// Insert inserts a new audit log entry
	Insert(ctx context.Context, log *models.AuditLog) error

	// GetByResource retrieves the latest audit logs for one resource
	GetByResource(ctx context.Context, resourceType, resourceID string, limit int) ([]*models.AuditLog, error)

	// GetByAction retrieves audit logs by action type with pagination
	GetByAction(ctx context.Context, action models.AuditAction, limit, offset int) ([]*models.AuditLog, error)
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Balances       BalanceRepository
	RawRewards     RawRewardEventRepository
	EmissionRules  EmissionRuleRepository
	Tokens         TokenRepository
	AppliedRewards AppliedRewardRepository
	RailGuards     RailGuardRepository
	RequestLog     RequestLogRepository
	Quorum         QuorumRepository
	AuditLogs      AuditRepository
}
