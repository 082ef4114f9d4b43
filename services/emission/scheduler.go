package emission

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/upb/governance-ledger/config"
	"github.com/upb/governance-ledger/models"
	"github.com/upb/governance-ledger/services"
	"github.com/upb/governance-ledger/services/railguard"
	"go.uber.org/zap"
)

// TelemetrySink receives a report after every cycle. It runs off the cycle
// goroutine under a short timeout and its errors are only logged.
type TelemetrySink interface {
	Record(ctx context.Context, report *models.CycleReport) error
}

// GuardSummarizer reports rail guard activity for the status snapshot
type GuardSummarizer interface {
	Summary(ctx context.Context) (railguard.Summary, error)
}

// Status is the observability snapshot of the ledger
type Status struct {
	railguard.Summary

	TokenCount         int                     `json:"tokenCount"`
	EmissionRuleCount  int                     `json:"emissionRuleCount"`
	BalanceCount       int                     `json:"balanceCount"`
	AppliedRewardCount int                     `json:"appliedRewardCount"`
	PendingRewardCount int                     `json:"pendingRewardCount"`
	LastRunAt          *time.Time              `json:"lastRunAt,omitempty"`
	LastCycleProcessed int                     `json:"lastCycleProcessed"`
	CycleRunning       bool                    `json:"cycleRunning"`
	SampleBalances     []*models.BalanceRecord `json:"sampleBalances"`
}

// SchedulerConfig holds scheduler settings
type SchedulerConfig struct {
	Interval         time.Duration
	CycleTimeout     time.Duration
	SampleSize       int
	TelemetryTimeout time.Duration
	BatchSize        int
}

// SchedulerConfigFrom maps the emission section of the service config
func SchedulerConfigFrom(cfg config.EmissionConfig) SchedulerConfig {
	return SchedulerConfig{
		Interval:         cfg.Interval,
		CycleTimeout:     cfg.CycleTimeout,
		SampleSize:       cfg.SampleSize,
		TelemetryTimeout: cfg.TelemetryTimeout,
		BatchSize:        100,
	}
}

// Scheduler drains unprocessed reward events. At most one cycle runs at a time;
// a cycle requested while another is running is skipped.
type Scheduler struct {
	engine  *Engine
	guards  GuardSummarizer
	sink    TelemetrySink
	config  SchedulerConfig
	running atomic.Bool

	mu         sync.RWMutex
	lastRunAt  *time.Time
	lastReport *models.CycleReport

	stopMu sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *zap.Logger
}

// NewScheduler creates a new Scheduler
func NewScheduler(engine *Engine, guards GuardSummarizer, config SchedulerConfig, logger *zap.Logger) *Scheduler {
	if config.Interval <= 0 {
		config.Interval = 30 * time.Second
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.TelemetryTimeout <= 0 {
		config.TelemetryTimeout = 2 * time.Second
	}
	return &Scheduler{
		engine: engine,
		guards: guards,
		config: config,
		logger: logger,
	}
}

// SetTelemetrySink attaches the cycle telemetry sink
func (s *Scheduler) SetTelemetrySink(sink TelemetrySink) {
	s.sink = sink
}

// RunCycle seeds the defaults, processes every unprocessed event in insertion
// order and returns a fresh status snapshot. It returns ErrCycleInProgress when
// another cycle is running. A cycle that exceeds CycleTimeout stops at the
// current event and reports the timeout alongside the snapshot.
func (s *Scheduler) RunCycle(ctx context.Context) (*Status, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, services.ErrCycleInProgress
	}
	cycleErr := s.runExclusive(ctx)

	// The snapshot is read with the caller's context so an overrun still reports
	status, err := s.Status(ctx)
	if err != nil {
		return nil, err
	}
	return status, cycleErr
}

func (s *Scheduler) runExclusive(ctx context.Context) error {
	defer s.running.Store(false)

	cycleCtx := ctx
	if s.config.CycleTimeout > 0 {
		var cancel context.CancelFunc
		cycleCtx, cancel = context.WithTimeout(ctx, s.config.CycleTimeout)
		defer cancel()
	}

	report := &models.CycleReport{StartedAt: time.Now().UTC()}
	cycleErr := s.drain(cycleCtx, report)
	report.FinishedAt = time.Now().UTC()

	if cycleErr != nil {
		report.Aborted = true
		report.Error = cycleErr.Error()
		s.logger.Error("emission cycle aborted",
			zap.Error(cycleErr),
			zap.Int("events_applied", report.EventsApplied),
			zap.Duration("duration", report.Duration()))
	} else {
		s.logger.Info("emission cycle completed",
			zap.Int("events_scanned", report.EventsScanned),
			zap.Int("events_applied", report.EventsApplied),
			zap.Int("rewards_created", report.RewardsCreated),
			zap.Duration("duration", report.Duration()))
	}

	s.mu.Lock()
	finished := report.FinishedAt
	s.lastRunAt = &finished
	s.lastReport = report
	s.mu.Unlock()

	s.emit(report)
	return cycleErr
}

func (s *Scheduler) drain(ctx context.Context, report *models.CycleReport) error {
	tokens, rules, err := s.engine.EnsureDefaults(ctx)
	if err != nil {
		return err
	}
	report.TokensSeeded = tokens
	report.RulesSeeded = rules

	for {
		events, err := s.engine.rawRewards.ListUnprocessed(ctx, s.config.BatchSize)
		if err != nil {
			return fmt.Errorf("failed to list unprocessed events: %w", err)
		}
		if len(events) == 0 {
			return nil
		}

		for _, ev := range events {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("emission cycle timed out: %w", err)
			}
			report.EventsScanned++

			applied, err := s.engine.ProcessReward(ctx, ev)
			if err != nil {
				return fmt.Errorf("failed to process event %s: %w", ev.ID, err)
			}
			report.EventsApplied++
			report.RewardsCreated += len(applied)
		}
	}
}

func (s *Scheduler) emit(report *models.CycleReport) {
	if s.sink == nil {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("emission telemetry sink panicked", zap.Any("panic", r))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), s.config.TelemetryTimeout)
		defer cancel()

		if err := s.sink.Record(ctx, report); err != nil {
			s.logger.Warn("failed to record emission telemetry", zap.Error(err))
		}
	}()
}

// Status returns the current snapshot
func (s *Scheduler) Status(ctx context.Context) (*Status, error) {
	status := &Status{CycleRunning: s.running.Load()}
	var err error

	if status.TokenCount, err = s.engine.tokens.Count(ctx); err != nil {
		return nil, fmt.Errorf("failed to count tokens: %w", err)
	}
	if status.EmissionRuleCount, err = s.engine.rules.Count(ctx); err != nil {
		return nil, fmt.Errorf("failed to count emission rules: %w", err)
	}
	if status.BalanceCount, err = s.engine.ledger.Count(ctx); err != nil {
		return nil, fmt.Errorf("failed to count balances: %w", err)
	}
	if status.AppliedRewardCount, err = s.engine.applied.Count(ctx); err != nil {
		return nil, fmt.Errorf("failed to count applied rewards: %w", err)
	}
	if status.PendingRewardCount, err = s.engine.rawRewards.CountUnprocessed(ctx); err != nil {
		return nil, fmt.Errorf("failed to count pending rewards: %w", err)
	}
	if s.guards != nil {
		if status.Summary, err = s.guards.Summary(ctx); err != nil {
			return nil, fmt.Errorf("failed to summarize rail guards: %w", err)
		}
	}

	if status.SampleBalances, err = s.engine.ledger.Sample(ctx, s.config.SampleSize); err != nil {
		return nil, err
	}

	s.mu.RLock()
	if s.lastRunAt != nil {
		at := *s.lastRunAt
		status.LastRunAt = &at
	}
	if s.lastReport != nil {
		status.LastCycleProcessed = s.lastReport.EventsApplied
	}
	s.mu.RUnlock()

	return status, nil
}

// LastReport returns the report of the most recent cycle, or nil
func (s *Scheduler) LastReport() *models.CycleReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastReport == nil {
		return nil
	}
	r := *s.lastReport
	return &r
}

// Start runs a cycle immediately and then every Interval until Stop or ctx is done
func (s *Scheduler) Start(ctx context.Context) {
	s.stopMu.Lock()
	defer s.stopMu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.config.Interval)
		defer ticker.Stop()

		s.logger.Info("emission scheduler started", zap.Duration("interval", s.config.Interval))
		s.tick(ctx)
		for {
			select {
			case <-ctx.Done():
				s.logger.Info("emission scheduler stopped")
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
}

func (s *Scheduler) tick(ctx context.Context) {
	// Aborted cycles are logged by RunCycle
	if _, err := s.RunCycle(ctx); errors.Is(err, services.ErrCycleInProgress) {
		s.logger.Debug("emission cycle skipped, previous cycle still running")
	}
}

// Stop halts the ticker and waits for the running cycle and pending telemetry
func (s *Scheduler) Stop() {
	s.stopMu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.stopMu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}
