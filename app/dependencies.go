package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/upb/governance-ledger/auth"
	"github.com/upb/governance-ledger/config"
	"github.com/upb/governance-ledger/middleware"
	"github.com/upb/governance-ledger/repositories"
	"github.com/upb/governance-ledger/repositories/memory"
	"github.com/upb/governance-ledger/repositories/postgres"
	"github.com/upb/governance-ledger/repositories/redis"
	"github.com/upb/governance-ledger/services/audit"
	"github.com/upb/governance-ledger/services/emission"
	"github.com/upb/governance-ledger/services/policy"
	"github.com/upb/governance-ledger/services/quorum"
	"github.com/upb/governance-ledger/services/railguard"
	"go.uber.org/zap"
)

const auditStopTimeout = 10 * time.Second

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	DB     *postgres.DB
	Redis  *goredis.Client
	Logger *zap.Logger

	// Repository Factory (nil when running on the in-memory store)
	RepoFactory *postgres.RepositoryFactory

	// Repositories
	Repos     *repositories.Repositories
	TxManager repositories.TransactionManager

	// Services
	PolicyTable *policy.Table
	Enforcer    *policy.Enforcer
	Quorum      *quorum.Engine
	RailGuards  *railguard.Service
	Ledger      *emission.Ledger
	Emission    *emission.Engine
	Scheduler   *emission.Scheduler
	Audit       *audit.AuditService

	// Middleware
	AuthMiddleware      *middleware.AuthMiddleware
	PolicyMiddleware    *middleware.PolicyEnforcementMiddleware
	RailGuardMiddleware *middleware.RailGuardMiddleware
	IngressLimiter      *middleware.IngressLimiter

	cancelBackground context.CancelFunc
	closed           bool
}

// NewDependencies creates and wires up all application dependencies
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initStorage(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := deps.initRequestLog(ctx, cfg); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize redis: %w", err)
	}

	if err := deps.initServices(ctx, cfg); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	if err := deps.initAuth(cfg); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize auth: %w", err)
	}

	deps.PolicyMiddleware = middleware.NewPolicyEnforcementMiddleware(deps.Enforcer, logger)
	deps.RailGuardMiddleware = middleware.NewRailGuardMiddleware(deps.RailGuards, logger)
	if cfg.HTTPRateLimit.Enabled {
		deps.IngressLimiter = middleware.NewIngressLimiter(cfg.HTTPRateLimit.RPS, cfg.HTTPRateLimit.Burst, logger)
	}

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initStorage selects PostgreSQL when configured and the in-memory store otherwise
func (d *Dependencies) initStorage(ctx context.Context, cfg *config.Config) error {
	if !cfg.Database.Enabled() {
		d.Repos = memory.NewRepositories()
		d.TxManager = memory.NewTransactionManager()
		d.Logger.Warn("no database configured, using in-memory store")
		return nil
	}

	factory, err := postgres.NewRepositoryFactory(cfg, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}

	d.RepoFactory = factory
	d.DB = factory.GetDB()

	if err := d.DB.PingContext(ctx); err != nil {
		_ = factory.Close()
		return fmt.Errorf("database ping failed: %w", err)
	}

	if cfg.Database.InitSchema {
		if err := factory.InitSchema(ctx); err != nil {
			_ = factory.Close()
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}

	d.Repos = factory.NewRepositories()
	d.TxManager = factory.GetTransactionManager()

	d.Logger.Info("database connection established",
		zap.String("connection", cfg.Database.LogString()))
	return nil
}

// initRequestLog moves the rail guard request log to Redis when REDIS_URL is set
func (d *Dependencies) initRequestLog(ctx context.Context, cfg *config.Config) error {
	if !cfg.Redis.Enabled() {
		return nil
	}

	client, err := redis.NewClient(cfg.Redis.URL)
	if err != nil {
		return err
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("redis ping failed: %w", err)
	}

	d.Redis = client
	d.Repos.RequestLog = redis.NewRequestLogRepository(client, cfg.Redis.KeyPrefix, d.Logger)
	d.Logger.Info("rail guard request log backed by redis",
		zap.String("key_prefix", cfg.Redis.KeyPrefix))
	return nil
}

// initServices builds the domain services and attaches the audit trail to each of them
func (d *Dependencies) initServices(ctx context.Context, cfg *config.Config) error {
	d.Audit = audit.NewAuditService(d.Repos.AuditLogs, d.Logger, audit.DefaultConfig())
	if err := d.Audit.Start(); err != nil {
		return fmt.Errorf("failed to start audit service: %w", err)
	}

	d.PolicyTable = policy.NewTable(cfg.Policy.CacheTTL, d.Logger)
	d.Quorum = quorum.NewEngine(d.Repos.Quorum, d.TxManager, d.Logger)
	d.Quorum.AddObserver(d.Audit)

	d.Enforcer = policy.NewEnforcer(d.PolicyTable, d.Quorum, policy.EnforcerConfig{
		PolicyFile:  cfg.Policy.File,
		SelfApprove: cfg.Policy.SelfApprove,
	}, d.Logger)
	d.Enforcer.SetRecorder(d.Audit)

	doc := d.Enforcer.Document()
	d.Logger.Info("policy document loaded",
		zap.String("source", doc.Source),
		zap.String("version", doc.Version),
		zap.Int("rules", len(doc.Rules)))

	d.RailGuards = railguard.NewService(d.Repos.RailGuards, d.Repos.RequestLog, d.Logger)
	d.RailGuards.SetObserver(d.Audit)
	if _, err := d.RailGuards.EnsureDefaultRailGuards(ctx); err != nil {
		return fmt.Errorf("failed to seed rail guards: %w", err)
	}

	d.Ledger = emission.NewLedger(d.Repos.Balances, d.Logger)
	d.Ledger.SetObserver(d.Audit)
	d.Emission = emission.NewEngine(d.Repos, d.Ledger, d.TxManager, d.Logger)
	d.Emission.SetObserver(d.Audit)
	if _, _, err := d.Emission.EnsureDefaults(ctx); err != nil {
		return fmt.Errorf("failed to seed emission rules: %w", err)
	}

	d.Scheduler = emission.NewScheduler(d.Emission, d.RailGuards, emission.SchedulerConfigFrom(cfg.Emission), d.Logger)
	d.Scheduler.SetTelemetrySink(d.Audit)
	return nil
}

func (d *Dependencies) initAuth(cfg *config.Config) error {
	if cfg.Auth.JWTSecret == "" {
		d.Logger.Warn("AUTH_JWT_SECRET not set, protected endpoints will reject every request")
		// Use reject-all validator so protected routes return 401
		d.AuthMiddleware = middleware.NewAuthMiddleware(&rejectAllValidator{}, d.Logger)
		return nil
	}

	validator, err := auth.NewHMACValidator(auth.Config{
		Secret: cfg.Auth.JWTSecret,
		Issuer: cfg.Auth.Issuer,
	})
	if err != nil {
		return err
	}
	d.AuthMiddleware = middleware.NewAuthMiddleware(validator, d.Logger)
	d.Logger.Info("bearer token validation enabled", zap.String("issuer", cfg.Auth.Issuer))
	return nil
}

// rejectAllValidator rejects all tokens (used when no signing secret is configured)
type rejectAllValidator struct{}

func (*rejectAllValidator) ValidateToken(context.Context, string) (*auth.Claims, error) {
	return nil, errors.New("authentication not configured")
}

// Start launches the background workers: the emission scheduler and the ingress limiter janitor
func (d *Dependencies) Start(ctx context.Context) {
	ctx, d.cancelBackground = context.WithCancel(ctx)

	if d.Config.Emission.Enabled {
		d.Scheduler.Start(ctx)
	} else {
		d.Logger.Info("emission scheduler disabled, cycles run only on demand")
	}
	if d.IngressLimiter != nil {
		go d.IngressLimiter.Run(ctx)
	}
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	if d.closed {
		return nil
	}
	d.closed = true
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.cancelBackground != nil {
		d.cancelBackground()
	}
	if d.Scheduler != nil {
		d.Scheduler.Stop()
	}

	// Drain the audit buffer before the store goes away
	if d.Audit != nil {
		if err := d.Audit.Stop(auditStopTimeout); err != nil && !errors.Is(err, audit.ErrNotRunning) {
			errs = append(errs, fmt.Errorf("failed to stop audit service: %w", err))
		}
	}

	if err := d.closeStorage(); err != nil {
		errs = append(errs, err)
	}

	// Sync logger
	_ = d.Logger.Sync()

	return errors.Join(errs...)
}

func (d *Dependencies) closeStorage() error {
	var errs []error
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close redis: %w", err))
		}
		d.Redis = nil
	}
	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
		d.RepoFactory = nil
	}
	return errors.Join(errs...)
}
