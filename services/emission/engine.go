package emission

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/upb/governance-ledger/models"
	"github.com/upb/governance-ledger/repositories"
	"github.com/upb/governance-ledger/services"
	"github.com/upb/governance-ledger/utils"
	"go.uber.org/zap"
)

// MaxBaseValue bounds a single event's baseValue
const MaxBaseValue = 1e9

// RecordRewardRequest is an external activity signal submitted for reward
type RecordRewardRequest struct {
	IdentityID string  `json:"identityId" validate:"required,max=255"`
	Source     string  `json:"source" validate:"required,max=100"`
	Kind       string  `json:"kind" validate:"required,max=100"`
	BaseValue  float64 `json:"baseValue" validate:"gte=0,lte=1000000000"`
}

// RewardObserver receives ingested events and payouts for the audit trail
type RewardObserver interface {
	LogRewardRecorded(ev *models.RawRewardEvent) error
	LogRewardApplied(reward *models.AppliedReward) error
}

// Engine maps reward events to token payouts through the emission rules
type Engine struct {
	rawRewards repositories.RawRewardEventRepository
	rules      repositories.EmissionRuleRepository
	tokens     repositories.TokenRepository
	applied    repositories.AppliedRewardRepository
	ledger     *Ledger
	txManager  repositories.TransactionManager
	observer   RewardObserver
	logger     *zap.Logger
}

// NewEngine creates a new emission Engine
func NewEngine(repos *repositories.Repositories, ledger *Ledger, txManager repositories.TransactionManager, logger *zap.Logger) *Engine {
	return &Engine{
		rawRewards: repos.RawRewards,
		rules:      repos.EmissionRules,
		tokens:     repos.Tokens,
		applied:    repos.AppliedRewards,
		ledger:     ledger,
		txManager:  txManager,
		logger:     logger,
	}
}

// SetObserver attaches the audit observer
func (e *Engine) SetObserver(o RewardObserver) {
	e.observer = o
}

// Ledger returns the balance ledger payouts are credited to
func (e *Engine) Ledger() *Ledger {
	return e.ledger
}

// RecordRawReward validates and stores a new unprocessed event
func (e *Engine) RecordRawReward(ctx context.Context, req RecordRewardRequest) (*models.RawRewardEvent, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, services.ErrInvalidRewardEvent.Wrap(err)
	}
	if math.IsNaN(req.BaseValue) || math.IsInf(req.BaseValue, 0) || req.BaseValue > MaxBaseValue {
		return nil, services.ErrInvalidRewardEvent.Wrap(fmt.Errorf("baseValue must be finite and at most %g", MaxBaseValue))
	}

	ev := models.NewRawRewardEvent(req.IdentityID, req.Source, req.Kind, req.BaseValue)
	if err := e.rawRewards.Create(ctx, ev); err != nil {
		return nil, fmt.Errorf("failed to record reward event: %w", err)
	}

	e.logger.Info("reward event recorded",
		zap.String("event_id", ev.ID.String()),
		zap.String("identity_id", ev.IdentityID),
		zap.String("source", ev.Source),
		zap.String("kind", ev.Kind),
		zap.Float64("base_value", ev.BaseValue))

	if e.observer != nil {
		if err := e.observer.LogRewardRecorded(ev); err != nil {
			e.logger.Warn("failed to record reward event audit", zap.Error(err))
		}
	}
	return ev, nil
}

// GetRewardEvent retrieves one event
func (e *Engine) GetRewardEvent(ctx context.Context, id uuid.UUID) (*models.RawRewardEvent, error) {
	ev, err := e.rawRewards.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrRewardEventNotFound.Wrap(err)
		}
		return nil, fmt.Errorf("failed to get reward event: %w", err)
	}
	return ev, nil
}

// ListAppliedRewards returns the payouts an event produced
func (e *Engine) ListAppliedRewards(ctx context.Context, rawRewardID uuid.UUID) ([]*models.AppliedReward, error) {
	rewards, err := e.applied.ListByRawReward(ctx, rawRewardID)
	if err != nil {
		return nil, fmt.Errorf("failed to list applied rewards: %w", err)
	}
	return rewards, nil
}

// ApplyEmissionForReward credits every rule matching the event's (source, kind).
// Non-positive and non-finite amounts are skipped. A rule already applied to the event is not
// credited again, and a processed event is a no-op.
func (e *Engine) ApplyEmissionForReward(ctx context.Context, ev *models.RawRewardEvent) ([]*models.AppliedReward, error) {
	if ev == nil {
		return nil, services.ErrInvalidRewardEvent.Wrap(errors.New("event is required"))
	}
	if ev.Processed {
		return []*models.AppliedReward{}, nil
	}

	rules, err := e.rules.ListBySourceKind(ctx, ev.Source, ev.Kind)
	if err != nil {
		return nil, fmt.Errorf("failed to list emission rules: %w", err)
	}

	applied := make([]*models.AppliedReward, 0, len(rules))
	for _, rule := range rules {
		amount := ev.BaseValue * rule.Multiplier
		if !(amount > 0) {
			continue
		}
		if math.IsInf(amount, 0) {
			e.logger.Warn("emission amount overflows, rule skipped",
				zap.String("event_id", ev.ID.String()),
				zap.String("rule_id", rule.ID),
				zap.Float64("base_value", ev.BaseValue),
				zap.Float64("multiplier", rule.Multiplier))
			continue
		}

		reward := &models.AppliedReward{
			ID:          uuid.New(),
			RawRewardID: ev.ID,
			IdentityID:  ev.IdentityID,
			Token:       rule.Token,
			Amount:      amount,
			CreatedAt:   time.Now().UTC(),
			Meta: models.AppliedRewardMeta{
				Source: ev.Source,
				Kind:   ev.Kind,
				RuleID: rule.ID,
			},
		}

		// The audit row is the idempotency key, so it goes first
		inserted, err := e.applied.InsertIfAbsent(ctx, reward)
		if err != nil {
			return applied, fmt.Errorf("failed to append applied reward: %w", err)
		}
		if !inserted {
			e.logger.Debug("emission rule already applied",
				zap.String("event_id", ev.ID.String()),
				zap.String("rule_id", rule.ID))
			continue
		}

		if _, err := e.ledger.AdjustBalance(ctx, ev.IdentityID, rule.Token, amount); err != nil {
			return applied, fmt.Errorf("failed to credit %s: %w", rule.Token, err)
		}
		applied = append(applied, reward)
	}

	return applied, nil
}

// ProcessReward applies the event and marks it processed as one unit of work.
// An event that is already processed returns no rewards. If ctx expires before
// the event is marked, it stays unprocessed.
func (e *Engine) ProcessReward(ctx context.Context, ev *models.RawRewardEvent) ([]*models.AppliedReward, error) {
	if ev == nil {
		return nil, services.ErrInvalidRewardEvent.Wrap(errors.New("event is required"))
	}

	applied, err := services.WithTransactionResult(ctx, e.txManager, func(txCtx context.Context, tx repositories.Transaction) ([]*models.AppliedReward, error) {
		current, err := e.rawRewards.GetByID(txCtx, ev.ID)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return nil, services.ErrRewardEventNotFound.Wrap(err)
			}
			return nil, fmt.Errorf("failed to reload reward event: %w", err)
		}
		if current.Processed {
			return []*models.AppliedReward{}, nil
		}

		applied, err := e.ApplyEmissionForReward(txCtx, current)
		if err != nil {
			return nil, err
		}
		if err := txCtx.Err(); err != nil {
			return nil, fmt.Errorf("reward processing aborted: %w", err)
		}
		if err := e.rawRewards.MarkProcessed(txCtx, current.ID); err != nil {
			return nil, fmt.Errorf("failed to mark reward processed: %w", err)
		}
		return applied, nil
	})
	if err != nil {
		return nil, err
	}

	if len(applied) > 0 {
		e.logger.Info("reward event processed",
			zap.String("event_id", ev.ID.String()),
			zap.String("identity_id", ev.IdentityID),
			zap.Int("rewards", len(applied)))
	}
	if e.observer != nil {
		for _, reward := range applied {
			if err := e.observer.LogRewardApplied(reward); err != nil {
				e.logger.Warn("failed to record applied reward audit", zap.Error(err))
			}
		}
	}
	return applied, nil
}
