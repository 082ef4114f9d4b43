package emission

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/upb/governance-ledger/internal/shared"
	"github.com/upb/governance-ledger/models"
	"github.com/upb/governance-ledger/repositories"
	"github.com/upb/governance-ledger/services"
	"github.com/upb/governance-ledger/utils"
	"go.uber.org/zap"
)

// AdjustRequest is an explicit admin adjustment
type AdjustRequest struct {
	IdentityID string  `json:"identityId" validate:"required,max=255"`
	Token      string  `json:"token" validate:"required,max=32"`
	Delta      float64 `json:"delta" validate:"required"`
	Reason     string  `json:"reason,omitempty" validate:"max=500"`
}

// BalanceObserver receives admin adjustments for the audit trail
type BalanceObserver interface {
	LogBalanceAdjusted(actorID string, req AdjustRequest, balance *models.BalanceRecord) error
}

// Ledger holds per-(identity, token) balances. Adjustments on one key are
// linearizable and are never clamped, so balances may go negative.
type Ledger struct {
	balances repositories.BalanceRepository
	locks    *shared.KeyedMutex
	observer BalanceObserver
	logger   *zap.Logger
}

// NewLedger creates a new Ledger
func NewLedger(balances repositories.BalanceRepository, logger *zap.Logger) *Ledger {
	return &Ledger{
		balances: balances,
		locks:    shared.NewKeyedMutex(),
		logger:   logger,
	}
}

// SetObserver attaches the audit observer
func (l *Ledger) SetObserver(o BalanceObserver) {
	l.observer = o
}

// AdjustBalance adds delta to the (identityID, token) balance, creating it at delta when absent
func (l *Ledger) AdjustBalance(ctx context.Context, identityID, token string, delta float64) (*models.BalanceRecord, error) {
	if identityID == "" || token == "" {
		return nil, services.ErrInvalidInput.Wrap(errors.New("identityId and token are required"))
	}
	if math.IsNaN(delta) || math.IsInf(delta, 0) {
		return nil, services.ErrInvalidInput.Wrap(fmt.Errorf("delta must be finite, got %v", delta))
	}

	unlock := l.locks.Lock(balanceKey(identityID, token))
	defer unlock()

	rec, err := l.balances.Adjust(ctx, identityID, token, delta)
	if err != nil {
		return nil, fmt.Errorf("failed to adjust balance: %w", err)
	}

	l.logger.Debug("balance adjusted",
		zap.String("identity_id", identityID),
		zap.String("token", token),
		zap.Float64("delta", delta),
		zap.Float64("amount", rec.Amount))
	return rec, nil
}

// AdminAdjust applies an explicit adjustment on behalf of actorID and records it
func (l *Ledger) AdminAdjust(ctx context.Context, actorID string, req AdjustRequest) (*models.BalanceRecord, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, services.ErrInvalidInput.Wrap(err)
	}

	rec, err := l.AdjustBalance(ctx, req.IdentityID, req.Token, req.Delta)
	if err != nil {
		return nil, err
	}

	l.logger.Info("admin balance adjustment",
		zap.String("actor_id", actorID),
		zap.String("identity_id", req.IdentityID),
		zap.String("token", req.Token),
		zap.Float64("delta", req.Delta),
		zap.String("reason", req.Reason))

	if l.observer != nil {
		if err := l.observer.LogBalanceAdjusted(actorID, req, rec); err != nil {
			l.logger.Warn("failed to record balance adjustment", zap.Error(err))
		}
	}
	return rec, nil
}

// GetBalance returns the (identityID, token) balance. A key never credited reads as zero.
func (l *Ledger) GetBalance(ctx context.Context, identityID, token string) (*models.BalanceRecord, error) {
	rec, err := l.balances.Get(ctx, identityID, token)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return &models.BalanceRecord{IdentityID: identityID, Token: token}, nil
		}
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	return rec, nil
}

// ListBalances returns every token balance of identityID ordered by token
func (l *Ledger) ListBalances(ctx context.Context, identityID string) ([]*models.BalanceRecord, error) {
	if identityID == "" {
		return nil, services.ErrInvalidInput.Wrap(errors.New("identityId is required"))
	}
	recs, err := l.balances.ListByIdentity(ctx, identityID)
	if err != nil {
		return nil, fmt.Errorf("failed to list balances: %w", err)
	}
	return recs, nil
}

// Sample returns up to limit balances, most recently updated first
func (l *Ledger) Sample(ctx context.Context, limit int) ([]*models.BalanceRecord, error) {
	recs, err := l.balances.List(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to sample balances: %w", err)
	}
	return recs, nil
}

// Count returns the number of balance records
func (l *Ledger) Count(ctx context.Context) (int, error) {
	return l.balances.Count(ctx)
}

func balanceKey(identityID, token string) string {
	return identityID + "\x00" + token
}
