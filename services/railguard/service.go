package railguard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/upb/governance-ledger/models"
	"github.com/upb/governance-ledger/repositories"
	"github.com/upb/governance-ledger/services"
	"github.com/upb/governance-ledger/utils"
	"go.uber.org/zap"
)

// RateWindow is the trailing window rate-limit guards count over
const RateWindow = time.Minute

// CheckRequest describes a prospective cost-incurring request
type CheckRequest struct {
	MaxCost  float64 `json:"maxCost" validate:"gte=0"`
	Endpoint string  `json:"endpoint,omitempty"`
}

// Advisory reports a throttle guard that would have tripped
type Advisory struct {
	GuardID uuid.UUID            `json:"guardId"`
	Name    string               `json:"name"`
	Type    models.RailGuardType `json:"type"`
	Current float64              `json:"current"`
	Limit   float64              `json:"limit"`
	Reason  string               `json:"reason"`
}

// CheckResult is the outcome of CheckRailGuards
type CheckResult struct {
	Allowed    bool       `json:"allowed"`
	Reason     string     `json:"reason,omitempty"`
	GuardID    *uuid.UUID `json:"guardId,omitempty"`
	Advisories []Advisory `json:"advisories,omitempty"`
}

// CreateRequest describes a custom guard
type CreateRequest struct {
	Name   string                 `json:"name" validate:"required,max=255"`
	Type   models.RailGuardType   `json:"type" validate:"required,oneof=daily-cost monthly-cost rate-limit"`
	Limit  float64                `json:"limit" validate:"gt=0"`
	Action models.RailGuardAction `json:"action" validate:"required,oneof=block throttle"`
}

// UpdateRequest changes the mutable fields of a guard. Nil fields are left alone.
type UpdateRequest struct {
	Name    *string                 `json:"name,omitempty" validate:"omitempty,min=1,max=255"`
	Limit   *float64                `json:"limit,omitempty" validate:"omitempty,gt=0"`
	Action  *models.RailGuardAction `json:"action,omitempty" validate:"omitempty,oneof=block throttle"`
	Enabled *bool                   `json:"enabled,omitempty"`
}

// Summary is the guard activity snapshot used by the emission status
type Summary struct {
	GuardCount         int `json:"railGuardCount"`
	EnabledCount       int `json:"enabledRailGuardCount"`
	RequestsLastMinute int `json:"requestsLastMinute"`
}

// Observer receives guard blocks and changes for the audit trail
type Observer interface {
	LogRailGuardBlocked(guard *models.RailGuard, req CheckRequest, reason string) error
	LogRailGuardChanged(guard *models.RailGuard, change string) error
}

// DefaultGuards are seeded when no guard exists
func DefaultGuards() []CreateRequest {
	return []CreateRequest{
		{Name: "Daily cost limit", Type: models.RailGuardDailyCost, Limit: 10, Action: models.RailGuardBlock},
		{Name: "Monthly cost limit", Type: models.RailGuardMonthlyCost, Limit: 100, Action: models.RailGuardBlock},
		{Name: "Requests per minute", Type: models.RailGuardRateLimit, Limit: 60, Action: models.RailGuardThrottle},
	}
}

// Service evaluates budget and rate guards over the request log.
// Any storage failure during a check blocks the request.
type Service struct {
	guards     repositories.RailGuardRepository
	requestLog repositories.RequestLogRepository
	observer   Observer
	seedMu     sync.Mutex
	now        func() time.Time
	logger     *zap.Logger
}

// NewService creates a new rail guard Service. Windows align to the local time zone.
func NewService(guards repositories.RailGuardRepository, requestLog repositories.RequestLogRepository, logger *zap.Logger) *Service {
	return &Service{
		guards:     guards,
		requestLog: requestLog,
		now:        time.Now,
		logger:     logger,
	}
}

// SetObserver attaches the audit observer
func (s *Service) SetObserver(o Observer) {
	s.observer = o
}

// CheckRailGuards evaluates enabled guards in stored order. The first
// tripped block guard denies the request. Tripped throttle guards never deny
// and are reported as advisories.
func (s *Service) CheckRailGuards(ctx context.Context, req CheckRequest) (*CheckResult, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return &CheckResult{Allowed: false, Reason: "Invalid rail guard check request"}, services.ErrInvalidInput.Wrap(err)
	}

	guards, err := s.guards.List(ctx)
	if err != nil {
		return s.failClosed(fmt.Errorf("failed to list rail guards: %w", err))
	}

	now := s.now()
	result := &CheckResult{Allowed: true}

	for _, guard := range guards {
		if !guard.Enabled {
			continue
		}

		current, tripped, reason, err := s.evaluate(ctx, guard, req, now)
		if err != nil {
			return s.failClosed(fmt.Errorf("failed to evaluate rail guard %s: %w", guard.ID, err))
		}
		if !tripped {
			continue
		}

		if guard.Action == models.RailGuardBlock {
			id := guard.ID
			result.Allowed = false
			result.Reason = reason
			result.GuardID = &id

			s.logger.Warn("request blocked by rail guard",
				zap.String("guard_id", guard.ID.String()),
				zap.String("guard_type", string(guard.Type)),
				zap.Float64("current", current),
				zap.Float64("limit", guard.Limit),
				zap.Float64("max_cost", req.MaxCost))
			if s.observer != nil {
				if err := s.observer.LogRailGuardBlocked(guard, req, reason); err != nil {
					s.logger.Warn("failed to record rail guard block", zap.Error(err))
				}
			}
			return result, nil
		}

		result.Advisories = append(result.Advisories, Advisory{
			GuardID: guard.ID,
			Name:    guard.Name,
			Type:    guard.Type,
			Current: current,
			Limit:   guard.Limit,
			Reason:  reason,
		})
	}

	return result, nil
}

// evaluate returns the guard's current measure and whether the prospective request trips it
func (s *Service) evaluate(ctx context.Context, guard *models.RailGuard, req CheckRequest, now time.Time) (float64, bool, string, error) {
	switch guard.Type {
	case models.RailGuardDailyCost:
		spent, err := s.requestLog.SumCostSince(ctx, StartOfDay(now))
		if err != nil {
			return 0, false, "", err
		}
		if spent+req.MaxCost > guard.Limit {
			return spent, true, fmt.Sprintf("Daily cost limit exceeded: $%.2f spent today + $%.2f requested > $%.2f limit",
				spent, req.MaxCost, guard.Limit), nil
		}
		return spent, false, "", nil

	case models.RailGuardMonthlyCost:
		spent, err := s.requestLog.SumCostSince(ctx, StartOfMonth(now))
		if err != nil {
			return 0, false, "", err
		}
		if spent+req.MaxCost > guard.Limit {
			return spent, true, fmt.Sprintf("Monthly cost limit exceeded: $%.2f spent this month + $%.2f requested > $%.2f limit",
				spent, req.MaxCost, guard.Limit), nil
		}
		return spent, false, "", nil

	case models.RailGuardRateLimit:
		count, err := s.requestLog.CountSince(ctx, now.Add(-RateWindow))
		if err != nil {
			return 0, false, "", err
		}
		if float64(count+1) > guard.Limit {
			return float64(count), true, fmt.Sprintf("Rate limit exceeded: %d requests in the last minute (limit %.0f/min)",
				count, guard.Limit), nil
		}
		return float64(count), false, "", nil

	default:
		return 0, false, "", fmt.Errorf("unknown rail guard type %q", guard.Type)
	}
}

func (s *Service) failClosed(err error) (*CheckResult, error) {
	s.logger.Error("rail guard check failed, blocking request", zap.Error(err))
	return &CheckResult{Allowed: false, Reason: "Rail guard check unavailable"}, services.ErrGuardStoreUnavailable.Wrap(err)
}

// RecordRequest appends a cost-incurring request to the log
func (s *Service) RecordRequest(ctx context.Context, cost float64, endpoint string) error {
	if cost < 0 {
		return services.ErrInvalidInput.Wrap(fmt.Errorf("cost must be non-negative, got %v", cost))
	}

	entry := &models.RequestLogEntry{
		ID:        uuid.New(),
		Cost:      cost,
		Endpoint:  endpoint,
		Timestamp: s.now(),
	}
	if err := s.requestLog.Append(ctx, entry); err != nil {
		return fmt.Errorf("failed to record request: %w", err)
	}
	return nil
}

// EnsureDefaultRailGuards seeds DefaultGuards when no guard exists.
// It returns the number of guards created.
func (s *Service) EnsureDefaultRailGuards(ctx context.Context) (int, error) {
	s.seedMu.Lock()
	defer s.seedMu.Unlock()

	count, err := s.guards.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count rail guards: %w", err)
	}
	if count > 0 {
		return 0, nil
	}

	created := 0
	for _, req := range DefaultGuards() {
		if _, err := s.CreateRailGuard(ctx, req); err != nil {
			return created, fmt.Errorf("failed to seed rail guard %q: %w", req.Name, err)
		}
		created++
	}

	s.logger.Info("seeded default rail guards", zap.Int("count", created))
	return created, nil
}

// CreateRailGuard validates and stores a new enabled guard
func (s *Service) CreateRailGuard(ctx context.Context, req CreateRequest) (*models.RailGuard, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, services.ErrInvalidRailGuard.Wrap(err)
	}

	guard := models.NewRailGuard(req.Name, req.Type, req.Limit, req.Action)
	if err := s.guards.Create(ctx, guard); err != nil {
		return nil, fmt.Errorf("failed to create rail guard: %w", err)
	}

	s.logger.Info("created rail guard",
		zap.String("guard_id", guard.ID.String()),
		zap.String("guard_type", string(guard.Type)),
		zap.Float64("limit", guard.Limit),
		zap.String("action", string(guard.Action)))
	s.changed(guard, "created")
	return guard, nil
}

// UpdateRailGuard applies req to the guard with id
func (s *Service) UpdateRailGuard(ctx context.Context, id uuid.UUID, req UpdateRequest) (*models.RailGuard, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, services.ErrInvalidRailGuard.Wrap(err)
	}

	guard, err := s.GetRailGuard(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		guard.Name = *req.Name
	}
	if req.Limit != nil {
		guard.Limit = *req.Limit
	}
	if req.Action != nil {
		guard.Action = *req.Action
	}
	if req.Enabled != nil {
		guard.Enabled = *req.Enabled
	}
	guard.UpdatedAt = time.Now().UTC()

	if err := s.guards.Update(ctx, guard); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrRailGuardNotFound.Wrap(err)
		}
		return nil, fmt.Errorf("failed to update rail guard: %w", err)
	}

	s.changed(guard, "updated")
	return guard, nil
}

// DisableRailGuard turns a guard off. Guards are never deleted.
func (s *Service) DisableRailGuard(ctx context.Context, id uuid.UUID) (*models.RailGuard, error) {
	disabled := false
	return s.UpdateRailGuard(ctx, id, UpdateRequest{Enabled: &disabled})
}

// GetRailGuard retrieves one guard
func (s *Service) GetRailGuard(ctx context.Context, id uuid.UUID) (*models.RailGuard, error) {
	guard, err := s.guards.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrRailGuardNotFound.Wrap(err)
		}
		return nil, fmt.Errorf("failed to get rail guard: %w", err)
	}
	return guard, nil
}

// ListRailGuards returns every guard in stored order
func (s *Service) ListRailGuards(ctx context.Context) ([]*models.RailGuard, error) {
	guards, err := s.guards.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list rail guards: %w", err)
	}
	return guards, nil
}

// Summary returns guard counts and the trailing-minute request count
func (s *Service) Summary(ctx context.Context) (Summary, error) {
	guards, err := s.guards.List(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to list rail guards: %w", err)
	}

	summary := Summary{GuardCount: len(guards)}
	for _, g := range guards {
		if g.Enabled {
			summary.EnabledCount++
		}
	}

	summary.RequestsLastMinute, err = s.requestLog.CountSince(ctx, s.now().Add(-RateWindow))
	if err != nil {
		return Summary{}, fmt.Errorf("failed to count recent requests: %w", err)
	}
	return summary, nil
}

func (s *Service) changed(guard *models.RailGuard, change string) {
	if s.observer == nil {
		return
	}
	if err := s.observer.LogRailGuardChanged(guard, change); err != nil {
		s.logger.Warn("failed to record rail guard change", zap.Error(err))
	}
}

// StartOfDay returns local midnight of t's day in t's location
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// StartOfMonth returns local midnight of the first day of t's month
func StartOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}
