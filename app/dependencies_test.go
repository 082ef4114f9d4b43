package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/governance-ledger/auth"
	"github.com/upb/governance-ledger/config"
	"github.com/upb/governance-ledger/repositories/postgres"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func TestNewDependencies(t *testing.T) {
	t.Run("in-memory store when no database is configured", func(t *testing.T) {
		ctx := context.Background()
		deps, err := NewDependencies(ctx, testConfig(), zaptest.NewLogger(t))
		require.NoError(t, err)
		require.NotNil(t, deps)
		t.Cleanup(func() { _ = deps.Close(ctx) })

		// Infrastructure
		assert.Nil(t, deps.DB)
		assert.Nil(t, deps.RepoFactory)
		assert.Nil(t, deps.Redis)
		require.NotNil(t, deps.Repos)
		assert.NotNil(t, deps.TxManager)

		// Services
		assert.NotNil(t, deps.PolicyTable)
		assert.NotNil(t, deps.Enforcer)
		assert.NotNil(t, deps.Quorum)
		assert.NotNil(t, deps.RailGuards)
		assert.NotNil(t, deps.Ledger)
		assert.NotNil(t, deps.Emission)
		assert.NotNil(t, deps.Scheduler)
		assert.True(t, deps.Audit.GetStats().Started)

		// Middleware
		assert.NotNil(t, deps.AuthMiddleware)
		assert.NotNil(t, deps.PolicyMiddleware)
		assert.NotNil(t, deps.RailGuardMiddleware)
		assert.Nil(t, deps.IngressLimiter)
	})

	t.Run("seeds default guards and emission rules", func(t *testing.T) {
		ctx := context.Background()
		deps, err := NewDependencies(ctx, testConfig(), zaptest.NewLogger(t))
		require.NoError(t, err)
		t.Cleanup(func() { _ = deps.Close(ctx) })

		guards, err := deps.RailGuards.ListRailGuards(ctx)
		require.NoError(t, err)
		assert.Len(t, guards, 3)

		rules, err := deps.Repos.EmissionRules.List(ctx)
		require.NoError(t, err)
		assert.NotEmpty(t, rules)

		assert.NotEmpty(t, deps.Enforcer.Document().Rules)
	})

	t.Run("ingress limiter when enabled", func(t *testing.T) {
		ctx := context.Background()
		cfg := testConfig()
		cfg.HTTPRateLimit = config.HTTPRateLimitConfig{Enabled: true, RPS: 10, Burst: 20}

		deps, err := NewDependencies(ctx, cfg, zaptest.NewLogger(t))
		require.NoError(t, err)
		t.Cleanup(func() { _ = deps.Close(ctx) })

		assert.NotNil(t, deps.IngressLimiter)
	})

	t.Run("invalid redis url", func(t *testing.T) {
		ctx := context.Background()
		cfg := testConfig()
		cfg.Redis.URL = "ftp://localhost:6379"

		deps, err := NewDependencies(ctx, cfg, zaptest.NewLogger(t))
		assert.Error(t, err)
		assert.Nil(t, deps)
		assert.Contains(t, err.Error(), "failed to initialize redis")
	})

	t.Run("database connection failure", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		cfg := testConfig()
		cfg.Database.Host = "invalid-host-that-does-not-exist"
		cfg.Database.Port = 5432
		cfg.Database.User = "govledger"
		cfg.Database.Database = "govledger_test"
		cfg.Database.SSLMode = "disable"

		deps, err := NewDependencies(ctx, cfg, zaptest.NewLogger(t))
		assert.Error(t, err)
		assert.Nil(t, deps)
		assert.Contains(t, err.Error(), "failed to initialize database")
	})

	t.Run("postgres store when available", func(t *testing.T) {
		ctx := context.Background()
		cfg := testConfig()
		cfg.Database = config.DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			User:            "govledger",
			Password:        "govledger",
			Database:        "govledger_test",
			SSLMode:         "disable",
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
			InitSchema:      true,
		}
		if !isDatabaseAvailable(cfg) {
			t.Skip("database not available")
		}

		deps, err := NewDependencies(ctx, cfg, zaptest.NewLogger(t))
		require.NoError(t, err)
		assert.NotNil(t, deps.DB)
		assert.NotNil(t, deps.RepoFactory)
		assert.NoError(t, deps.Close(ctx))
	})
}

func TestAuthWiring(t *testing.T) {
	ctx := context.Background()

	t.Run("missing secret rejects every token", func(t *testing.T) {
		cfg := testConfig()
		cfg.Auth.JWTSecret = ""

		deps, err := NewDependencies(ctx, cfg, zaptest.NewLogger(t))
		require.NoError(t, err)
		t.Cleanup(func() { _ = deps.Close(ctx) })

		v := &rejectAllValidator{}
		claims, err := v.ValidateToken(ctx, "anything")
		assert.Error(t, err)
		assert.Nil(t, claims)
	})

	t.Run("short secret fails initialization", func(t *testing.T) {
		cfg := testConfig()
		cfg.Auth.JWTSecret = "short"

		deps, err := NewDependencies(ctx, cfg, zaptest.NewLogger(t))
		assert.Error(t, err)
		assert.Nil(t, deps)
		assert.ErrorIs(t, err, auth.ErrSecretTooShort)
	})
}

func TestDependenciesStartClose(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.Emission.Enabled = true
	cfg.HTTPRateLimit = config.HTTPRateLimitConfig{Enabled: true, RPS: 10, Burst: 20}

	deps, err := NewDependencies(ctx, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	deps.Start(ctx)

	require.NoError(t, deps.Close(ctx))
	assert.False(t, deps.Audit.GetStats().Started)

	// Second close is a no-op
	assert.NoError(t, deps.Close(ctx))
}

// Test helpers

func testConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		Server: config.ServerConfig{
			Host:            "localhost",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Redis: config.RedisConfig{KeyPrefix: "govledger-test"},
		Auth: config.AuthConfig{
			JWTSecret: "test-secret-that-is-at-least-32-bytes-long",
			Issuer:    "governance-ledger-test",
			TokenTTL:  time.Hour,
		},
		Policy: config.PolicyConfig{
			CacheTTL:    time.Minute,
			SelfApprove: true,
		},
		Emission: config.EmissionConfig{
			Interval:         time.Hour,
			CycleTimeout:     5 * time.Second,
			SampleSize:       5,
			TelemetryTimeout: time.Second,
		},
		Observability: config.ObservabilityConfig{
			LogLevel:  "debug",
			LogFormat: "json",
		},
	}
}

func isDatabaseAvailable(cfg *config.Config) bool {
	factory, err := postgres.NewRepositoryFactory(cfg, zap.NewNop())
	if err != nil {
		return false
	}
	defer factory.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	return factory.GetDB().PingContext(ctx) == nil
}
