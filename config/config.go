package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Auth          AuthConfig
	Policy        PolicyConfig
	Emission      EmissionConfig
	HTTPRateLimit HTTPRateLimitConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

// DatabaseConfig holds PostgreSQL database configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
// An empty config (no DATABASE_URL and no DB_HOST) selects the in-memory store.
type DatabaseConfig struct {
	ConnectionString string
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
	InitSchema       bool
}

// RedisConfig holds the optional Redis request-log backend configuration
type RedisConfig struct {
	URL       string
	KeyPrefix string
}

// AuthConfig holds bearer token configuration
type AuthConfig struct {
	JWTSecret string
	Issuer    string
	TokenTTL  time.Duration
}

// PolicyConfig holds policy document and quorum workflow configuration
type PolicyConfig struct {
	File     string
	CacheTTL time.Duration
	// SelfApprove records the requester's own approve vote when a quorum request is opened.
	SelfApprove bool
}

// EmissionConfig holds emission scheduler configuration
type EmissionConfig struct {
	Enabled          bool
	Interval         time.Duration
	CycleTimeout     time.Duration
	SampleSize       int
	TelemetryTimeout time.Duration
}

// HTTPRateLimitConfig holds per-client ingress limiter configuration
type HTTPRateLimitConfig struct {
	Enabled bool
	RPS     float64
	Burst   int
}

// ObservabilityConfig holds monitoring and logging configuration
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string // json or text
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     envAs("SERVER_READ_TIMEOUT", 30*time.Second, time.ParseDuration),
			WriteTimeout:    envAs("SERVER_WRITE_TIMEOUT", 30*time.Second, time.ParseDuration),
			ShutdownTimeout: envAs("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second, time.ParseDuration),
			AllowedOrigins:  envAs("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173"}, parseList),
		},
		Database: loadDatabaseConfig(),
		Redis: RedisConfig{
			URL:       getEnv("REDIS_URL", ""),
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "govledger"),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("AUTH_JWT_SECRET", ""),
			Issuer:    getEnv("AUTH_ISSUER", "governance-ledger"),
			TokenTTL:  envAs("AUTH_TOKEN_TTL", time.Hour, time.ParseDuration),
		},
		Policy: PolicyConfig{
			File:        getEnv("POLICY_FILE", "policies.yaml"),
			CacheTTL:    envAs("POLICY_CACHE_TTL", 60*time.Second, time.ParseDuration),
			SelfApprove: envAs("POLICY_SELF_APPROVE", true, strconv.ParseBool),
		},
		Emission: EmissionConfig{
			Enabled:          envAs("EMISSION_ENABLED", true, strconv.ParseBool),
			Interval:         envAs("EMISSION_INTERVAL", 30*time.Second, time.ParseDuration),
			CycleTimeout:     envAs("EMISSION_CYCLE_TIMEOUT", 20*time.Second, time.ParseDuration),
			SampleSize:       envAs("EMISSION_SAMPLE_SIZE", 10, strconv.Atoi),
			TelemetryTimeout: envAs("EMISSION_TELEMETRY_TIMEOUT", 2*time.Second, time.ParseDuration),
		},
		HTTPRateLimit: HTTPRateLimitConfig{
			Enabled: envAs("HTTP_RATE_LIMIT_ENABLED", true, strconv.ParseBool),
			RPS:     envAs("HTTP_RATE_LIMIT_RPS", 20, parseFloat),
			Burst:   envAs("HTTP_RATE_LIMIT_BURST", 40, strconv.Atoi),
		},
		Observability: ObservabilityConfig{
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogFormat: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	if c.Database.Enabled() && c.Database.ConnectionString == "" {
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	}

	if c.IsProduction() {
		if len(c.Auth.JWTSecret) < 32 {
			return fmt.Errorf("auth JWT secret of at least 32 bytes is required in production")
		}
		if !c.Database.Enabled() {
			return fmt.Errorf("database configuration required in production: set DATABASE_URL or DB_HOST")
		}
	}

	if c.Policy.CacheTTL <= 0 {
		return fmt.Errorf("policy cache TTL must be positive")
	}

	if c.Emission.Interval <= 0 {
		return fmt.Errorf("emission interval must be positive")
	}
	if c.Emission.CycleTimeout <= 0 {
		return fmt.Errorf("emission cycle timeout must be positive")
	}
	if c.Emission.SampleSize < 0 {
		return fmt.Errorf("emission sample size cannot be negative")
	}

	if c.HTTPRateLimit.Enabled && (c.HTTPRateLimit.RPS <= 0 || c.HTTPRateLimit.Burst <= 0) {
		return fmt.Errorf("http rate limit requires positive rps and burst")
	}

	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// Enabled reports whether a PostgreSQL backend is configured
func (c *DatabaseConfig) Enabled() bool {
	return c.ConnectionString != "" || c.Host != ""
}

// DSN returns the PostgreSQL connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password). Parses ConnectionString when set.
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			host := u.Hostname()
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			db := strings.TrimPrefix(u.Path, "/")
			return fmt.Sprintf("host=%s port=%s database=%s", host, port, db)
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

// Enabled reports whether the Redis request log is configured
func (c *RedisConfig) Enabled() bool {
	return c.URL != ""
}

func loadDatabaseConfig() DatabaseConfig {
	common := DatabaseConfig{
		MaxOpenConns:    envAs("DB_MAX_OPEN_CONNS", 25, strconv.Atoi),
		MaxIdleConns:    envAs("DB_MAX_IDLE_CONNS", 5, strconv.Atoi),
		ConnMaxLifetime: envAs("DB_CONN_MAX_LIFETIME", 5*time.Minute, time.ParseDuration),
		InitSchema:      envAs("DB_INIT_SCHEMA", true, strconv.ParseBool),
	}

	if dbURL := getEnv("DATABASE_URL", ""); dbURL != "" {
		common.ConnectionString = dbURL
		return common
	}

	common.Host = getEnv("DB_HOST", "")
	common.Port = envAs("DB_PORT", 5432, strconv.Atoi)
	common.User = getEnv("DB_USER", "govledger")
	common.Password = getEnv("DB_PASSWORD", "")
	common.Database = getEnv("DB_NAME", "govledger")
	common.SSLMode = getEnv("DB_SSLMODE", "disable")
	return common
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// getPort reads PORT, then SERVER_PORT, and falls back to 8080
func getPort() int {
	return envAs("PORT", envAs("SERVER_PORT", 8080, strconv.Atoi), strconv.Atoi)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// envAs parses key with parse. Unset or unparsable values yield defaultValue.
func envAs[T any](key string, defaultValue T, parse func(string) (T, error)) T {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	value, err := parse(raw)
	if err != nil {
		return defaultValue
	}
	return value
}

func parseFloat(s string) (float64, error) { return strconv.ParseFloat(s, 64) }

// parseList splits a comma-separated value and drops blanks
func parseList(s string) ([]string, error) {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out, nil
}
