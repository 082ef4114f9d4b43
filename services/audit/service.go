package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/upb/governance-ledger/models"
	"github.com/upb/governance-ledger/repositories"
	"github.com/upb/governance-ledger/services/emission"
	"github.com/upb/governance-ledger/services/policy"
	"github.com/upb/governance-ledger/services/quorum"
	"github.com/upb/governance-ledger/services/railguard"
	"go.uber.org/zap"
)

// Resource types recorded on audit rows
const (
	ResourcePolicy    = "policy"
	ResourceQuorum    = "quorum"
	ResourceReward    = "reward"
	ResourceBalance   = "balance"
	ResourceRailGuard = "rail_guard"
	ResourceEmission  = "emission"
)

var (
	_ policy.DecisionRecorder   = (*AuditService)(nil)
	_ quorum.ResolutionObserver = (*AuditService)(nil)
	_ railguard.Observer        = (*AuditService)(nil)
	_ emission.RewardObserver   = (*AuditService)(nil)
	_ emission.BalanceObserver  = (*AuditService)(nil)
	_ emission.TelemetrySink    = (*AuditService)(nil)
)

// ErrBufferFull is returned by LogEvent when the queue is full and the event was dropped
var ErrBufferFull = errors.New("audit event buffer full")

// ErrNotRunning is returned when the service is not accepting events
var ErrNotRunning = errors.New("audit service not running")

// AuditService writes audit rows asynchronously through a pool of workers
type AuditService struct {
	auditRepo   repositories.AuditRepository
	logger      *zap.Logger
	events      chan *models.AuditLog
	closing     chan struct{}
	workerCount int
	bufferSize  int
	wg          sync.WaitGroup
	closeOnce   sync.Once

	// mu is held for reading by senders so Stop never closes events under them
	mu      sync.RWMutex
	started bool
	stopped bool
}

// Config holds configuration for the AuditService
type Config struct {
	BufferSize  int // Size of the event buffer channel
	WorkerCount int // Number of concurrent workers
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:  10000,
		WorkerCount: 5,
	}
}

// NewAuditService creates a new AuditService instance
func NewAuditService(auditRepo repositories.AuditRepository, logger *zap.Logger, config Config) *AuditService {
	if config.WorkerCount <= 0 {
		config.WorkerCount = 1
	}
	return &AuditService{
		auditRepo:   auditRepo,
		logger:      logger,
		events:      make(chan *models.AuditLog, config.BufferSize),
		closing:     make(chan struct{}),
		workerCount: config.WorkerCount,
		bufferSize:  config.BufferSize,
	}
}

// Start starts the background workers
func (s *AuditService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("audit service already started")
	}

	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.started = true
	s.logger.Info("started audit service",
		zap.Int("worker_count", s.workerCount),
		zap.Int("buffer_size", s.bufferSize))

	return nil
}

// Stop stops accepting events and waits for the queued ones to be written
func (s *AuditService) Stop(timeout time.Duration) error {
	s.mu.RLock()
	if !s.started || s.stopped {
		s.mu.RUnlock()
		return ErrNotRunning
	}
	s.mu.RUnlock()

	// Release blocked senders before taking the write lock
	s.closeOnce.Do(func() { close(s.closing) })

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.stopped = true
	pending := len(s.events)
	close(s.events)
	s.mu.Unlock()

	s.logger.Info("stopping audit service", zap.Int("pending_events", pending))

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("audit service stopped gracefully")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("audit service stop timeout after %v", timeout)
	}
}

// LogEvent queues an audit row without blocking. The row is dropped when the buffer is full.
func (s *AuditService) LogEvent(log *models.AuditLog) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started || s.stopped {
		return ErrNotRunning
	}

	select {
	case s.events <- log:
		return nil
	default:
		s.logger.Warn("audit event channel full, dropping event",
			zap.String("action", string(log.Action)),
			zap.String("resource_id", log.ResourceID))
		return ErrBufferFull
	}
}

// LogEventBlocking queues an audit row, waiting for space until ctx is done
func (s *AuditService) LogEventBlocking(ctx context.Context, log *models.AuditLog) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started || s.stopped {
		return ErrNotRunning
	}

	select {
	case s.events <- log:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.closing:
		return ErrNotRunning
	}
}

func (s *AuditService) worker(id int) {
	defer s.wg.Done()

	s.logger.Debug("audit worker started", zap.Int("worker_id", id))

	for log := range s.events {
		if err := s.write(log); err != nil {
			s.logger.Error("failed to process audit event",
				zap.Int("worker_id", id),
				zap.Error(err),
				zap.String("action", string(log.Action)),
				zap.String("resource_id", log.ResourceID))
		}
	}

	s.logger.Debug("audit worker stopped", zap.Int("worker_id", id))
}

func (s *AuditService) write(log *models.AuditLog) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.auditRepo.Insert(ctx, log); err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}
	return nil
}

// History returns the latest rows for one resource
func (s *AuditService) History(ctx context.Context, resourceType, resourceID string, limit int) ([]*models.AuditLog, error) {
	logs, err := s.auditRepo.GetByResource(ctx, resourceType, resourceID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get audit history: %w", err)
	}
	return logs, nil
}

// ByAction returns rows of one action type, newest first
func (s *AuditService) ByAction(ctx context.Context, action models.AuditAction, limit, offset int) ([]*models.AuditLog, error) {
	logs, err := s.auditRepo.GetByAction(ctx, action, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get audit logs: %w", err)
	}
	return logs, nil
}

// GetStats returns statistics about the audit service
func (s *AuditService) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Stats{
		BufferSize:    s.bufferSize,
		PendingEvents: len(s.events),
		WorkerCount:   s.workerCount,
		Started:       s.started && !s.stopped,
	}
}

// Stats represents audit service statistics
type Stats struct {
	BufferSize    int  `json:"bufferSize"`
	PendingEvents int  `json:"pendingEvents"`
	WorkerCount   int  `json:"workerCount"`
	Started       bool `json:"started"`
}

// LogPolicyDecision records a policy check
func (s *AuditService) LogPolicyDecision(actor *models.ActorContext, capability models.Capability, scope models.Scope, decision *models.PolicyDecision) error {
	log := models.NewAuditLog(models.AuditActionPolicyChecked, ResourcePolicy, decision.PolicyID)
	if actor != nil {
		log.WithActor(actor.ActorID)
	}
	log.WithDetails(map[string]interface{}{
		"capability":      capability,
		"scope":           scope,
		"allowed":         decision.Allowed,
		"requires_quorum": decision.RequiresQuorum,
		"reason":          decision.Reason,
	})
	return s.LogEvent(log)
}

// LogQuorumRequested records a quorum request
func (s *AuditService) LogQuorumRequested(actor *models.ActorContext, status *models.QuorumRequestStatus) error {
	log := models.NewAuditLog(models.AuditActionQuorumRequested, ResourceQuorum, status.PolicyID)
	if actor != nil {
		log.WithActor(actor.ActorID)
	}
	log.WithDetails(map[string]interface{}{"status": status.Status})
	return s.LogEvent(log)
}

// LogQuorumVote records one ballot and the tally it produced
func (s *AuditService) LogQuorumVote(voterID string, vote models.VoteValue, state *models.QuorumDecisionState) error {
	approvals, rejections := state.Tally()
	log := models.NewAuditLog(models.AuditActionQuorumVote, ResourceQuorum, state.PolicyID).WithActor(voterID)
	log.WithDetails(map[string]interface{}{
		"vote":       vote,
		"approvals":  approvals,
		"rejections": rejections,
		"threshold":  state.Threshold,
		"result":     state.Result,
	})
	return s.LogEvent(log)
}

// OnResolved records the terminal transition of a quorum decision
func (s *AuditService) OnResolved(ctx context.Context, state *models.QuorumDecisionState) {
	approvals, rejections := state.Tally()
	log := models.NewAuditLog(models.AuditActionQuorumResolved, ResourceQuorum, state.PolicyID)
	log.WithDetails(map[string]interface{}{
		"result":     state.Result,
		"approvals":  approvals,
		"rejections": rejections,
		"threshold":  state.Threshold,
	})
	if err := s.LogEventBlocking(ctx, log); err != nil {
		s.logger.Warn("failed to queue quorum resolution audit",
			zap.String("policy_id", state.PolicyID),
			zap.Error(err))
	}
}

// LogRailGuardBlocked records a request denied by a guard
func (s *AuditService) LogRailGuardBlocked(guard *models.RailGuard, req railguard.CheckRequest, reason string) error {
	log := models.NewAuditLog(models.AuditActionRailGuardBlocked, ResourceRailGuard, guard.ID.String())
	log.WithDetails(map[string]interface{}{
		"type":     guard.Type,
		"limit":    guard.Limit,
		"max_cost": req.MaxCost,
		"endpoint": req.Endpoint,
		"reason":   reason,
	})
	return s.LogEvent(log)
}

// LogRailGuardChanged records a guard being created or updated
func (s *AuditService) LogRailGuardChanged(guard *models.RailGuard, change string) error {
	log := models.NewAuditLog(models.AuditActionRailGuardChanged, ResourceRailGuard, guard.ID.String())
	log.WithDetails(map[string]interface{}{
		"change":  change,
		"name":    guard.Name,
		"type":    guard.Type,
		"limit":   guard.Limit,
		"action":  guard.Action,
		"enabled": guard.Enabled,
	})
	return s.LogEvent(log)
}

// LogRewardRecorded records an ingested reward event
func (s *AuditService) LogRewardRecorded(ev *models.RawRewardEvent) error {
	log := models.NewAuditLog(models.AuditActionRewardRecorded, ResourceReward, ev.ID.String()).WithActor(ev.IdentityID)
	log.WithDetails(map[string]interface{}{
		"source":     ev.Source,
		"kind":       ev.Kind,
		"base_value": ev.BaseValue,
	})
	return s.LogEvent(log)
}

// LogRewardApplied records one rule's payout
func (s *AuditService) LogRewardApplied(reward *models.AppliedReward) error {
	log := models.NewAuditLog(models.AuditActionRewardApplied, ResourceReward, reward.RawRewardID.String()).WithActor(reward.IdentityID)
	log.WithDetails(map[string]interface{}{
		"token":   reward.Token,
		"amount":  reward.Amount,
		"rule_id": reward.Meta.RuleID,
	})
	return s.LogEvent(log)
}

// LogBalanceAdjusted records an admin adjustment
func (s *AuditService) LogBalanceAdjusted(actorID string, req emission.AdjustRequest, balance *models.BalanceRecord) error {
	log := models.NewAuditLog(models.AuditActionBalanceAdjusted, ResourceBalance, req.IdentityID+"/"+req.Token).WithActor(actorID)
	log.WithDetails(map[string]interface{}{
		"delta":   req.Delta,
		"reason":  req.Reason,
		"balance": balance.Amount,
	})
	return s.LogEvent(log)
}

// Record stores an emission cycle report
func (s *AuditService) Record(ctx context.Context, report *models.CycleReport) error {
	log := models.NewAuditLog(models.AuditActionEmissionCycle, ResourceEmission, "")
	log.WithDetails(report)
	return s.LogEventBlocking(ctx, log)
}
