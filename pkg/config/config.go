package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/tenantguard/pkg/audit"
	"github.com/platinummonkey/tenantguard/pkg/observability"
	"github.com/platinummonkey/tenantguard/pkg/storage"
)

// minSecretLength matches the token service's minimum HMAC key size
const minSecretLength = 32

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Storage       storage.Config
	Auth          AuthConfig
	Audit         AuditConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64

	// API request budget per subject (or client IP before authentication)
	RateLimit       int
	RateLimitWindow time.Duration
}

// AuthConfig holds token and login settings
type AuthConfig struct {
	SigningSecret string
	Issuer        string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration

	// Per-account lockout; zero attempts disables it
	LockoutAttempts int
	LockoutDuration time.Duration

	// Failed logins allowed per email and client IP within the window
	LoginFailureLimit  int
	LoginFailureWindow time.Duration

	// Permission cache; zero size disables it
	PermissionCacheSize int
	PermissionCacheTTL  time.Duration

	// SeedFile overrides the built-in RBAC catalog
	SeedFile string
}

// AuditConfig holds audit trail settings
type AuditConfig struct {
	RetentionYears    int
	CleanupSchedule   string
	CleanupEnabled    bool
	FailureMode       audit.FailureMode
	FatalActions      []string
	SensitivePatterns []string
	// PatternsFile is watched and reloaded when set
	PatternsFile string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	LogFormat      string
	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
	OTelSampleRatio    float64
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	auditCfg, err := loadAuditConfig()
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	cfg := &Config{
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		Auth:          loadAuthConfig(),
		Audit:         auditCfg,
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("TENANTGUARD_HOST", "0.0.0.0"),
		Port:            getEnv("TENANTGUARD_PORT", "8080"),
		ReadTimeout:     getEnvDuration("TENANTGUARD_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("TENANTGUARD_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("TENANTGUARD_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("TENANTGUARD_SHUTDOWN_TIMEOUT", 30*time.Second),
		MaxBodyBytes:    getEnvInt64("TENANTGUARD_MAX_BODY_BYTES", 1<<20),
		RateLimit:       getEnvInt("TENANTGUARD_RATE_LIMIT", 600),
		RateLimitWindow: getEnvDuration("TENANTGUARD_RATE_LIMIT_WINDOW", time.Minute),
	}
}

func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()

	if driver := getEnv("TENANTGUARD_DB_DRIVER", ""); driver != "" {
		cfg.Driver = driver
	}
	if url := getEnv("TENANTGUARD_DB_URL", ""); url != "" {
		cfg.URL = url
	}
	if maxOpen := getEnvInt("TENANTGUARD_DB_MAX_OPEN_CONNS", 0); maxOpen > 0 {
		cfg.MaxOpenConns = maxOpen
	}
	if maxIdle := getEnvInt("TENANTGUARD_DB_MAX_IDLE_CONNS", 0); maxIdle > 0 {
		cfg.MaxIdleConns = maxIdle
	}
	if lifetime := getEnvDuration("TENANTGUARD_DB_CONN_MAX_LIFETIME", 0); lifetime > 0 {
		cfg.ConnMaxLifetime = lifetime
	}

	if redisURL := getEnv("TENANTGUARD_REDIS_URL", ""); redisURL != "" {
		cfg.RedisURL = redisURL
	}
	if redisPassword := getEnv("TENANTGUARD_REDIS_PASSWORD", ""); redisPassword != "" {
		cfg.RedisPassword = redisPassword
	}
	if redisDB := getEnvInt("TENANTGUARD_REDIS_DB", -1); redisDB >= 0 {
		cfg.RedisDB = redisDB
	}
	if poolSize := getEnvInt("TENANTGUARD_REDIS_POOL_SIZE", 0); poolSize > 0 {
		cfg.RedisPoolSize = poolSize
	}

	return cfg
}

func loadAuthConfig() AuthConfig {
	return AuthConfig{
		SigningSecret:       getEnv("TENANTGUARD_SIGNING_SECRET", ""),
		Issuer:              getEnv("TENANTGUARD_TOKEN_ISSUER", "tenantguard"),
		AccessTTL:           getEnvDuration("TENANTGUARD_TOKEN_TTL", 60*time.Minute),
		RefreshTTL:          getEnvDuration("TENANTGUARD_REFRESH_TTL", 7*24*time.Hour),
		LockoutAttempts:     getEnvInt("TENANTGUARD_LOCKOUT_ATTEMPTS", 5),
		LockoutDuration:     getEnvDuration("TENANTGUARD_LOCKOUT_DURATION", 15*time.Minute),
		LoginFailureLimit:   getEnvInt("TENANTGUARD_LOGIN_FAILURE_LIMIT", 10),
		LoginFailureWindow:  getEnvDuration("TENANTGUARD_LOGIN_FAILURE_WINDOW", 15*time.Minute),
		PermissionCacheSize: getEnvInt("TENANTGUARD_PERMISSION_CACHE_SIZE", 10000),
		PermissionCacheTTL:  getEnvDuration("TENANTGUARD_PERMISSION_CACHE_TTL", time.Minute),
		SeedFile:            getEnv("TENANTGUARD_RBAC_SEED_FILE", ""),
	}
}

func loadAuditConfig() (AuditConfig, error) {
	mode, err := audit.ParseFailureMode(getEnv("TENANTGUARD_AUDIT_FAILURE_MODE", string(audit.FailureContinue)))
	if err != nil {
		return AuditConfig{}, err
	}
	return AuditConfig{
		RetentionYears:    getEnvInt("TENANTGUARD_AUDIT_RETENTION_YEARS", 7),
		CleanupSchedule:   getEnv("TENANTGUARD_AUDIT_CLEANUP_SCHEDULE", audit.DefaultCleanupSchedule),
		CleanupEnabled:    getEnvBool("TENANTGUARD_AUDIT_CLEANUP_ENABLED", false),
		FailureMode:       mode,
		FatalActions:      getEnvList("TENANTGUARD_AUDIT_FATAL_ACTIONS"),
		SensitivePatterns: getEnvList("TENANTGUARD_AUDIT_SENSITIVE_PATTERNS"),
		PatternsFile:      getEnv("TENANTGUARD_AUDIT_PATTERNS_FILE", ""),
	}, nil
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLogLevel(getEnv("TENANTGUARD_LOG_LEVEL", "info")),
		LogFormat:          strings.ToLower(getEnv("TENANTGUARD_LOG_FORMAT", "json")),
		MetricsEnabled:     getEnvBool("TENANTGUARD_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("TENANTGUARD_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("TENANTGUARD_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("TENANTGUARD_OTEL_SERVICE_NAME", "tenantguard"),
		OTelServiceVersion: getEnv("TENANTGUARD_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("TENANTGUARD_OTEL_INSECURE", true),
		OTelSampleRatio:    getEnvFloat("TENANTGUARD_OTEL_SAMPLE_RATIO", 1.0),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("rate limit must not be negative")
	}
	if c.Server.RateLimit > 0 && c.Server.RateLimitWindow <= 0 {
		return fmt.Errorf("rate limit window must be positive")
	}

	switch c.Storage.Driver {
	case storage.DriverPostgres, storage.DriverSQLite:
	default:
		return fmt.Errorf("invalid database driver: %s (must be %s or %s)", c.Storage.Driver, storage.DriverPostgres, storage.DriverSQLite)
	}
	if c.Storage.URL == "" {
		return fmt.Errorf("database URL is required")
	}

	if len(c.Auth.SigningSecret) < minSecretLength {
		return fmt.Errorf("signing secret must be at least %d bytes", minSecretLength)
	}
	if c.Auth.AccessTTL <= 0 {
		return fmt.Errorf("token TTL must be positive")
	}
	if c.Auth.RefreshTTL < c.Auth.AccessTTL {
		return fmt.Errorf("refresh TTL must not be shorter than the token TTL")
	}
	if c.Auth.LockoutAttempts > 0 && c.Auth.LockoutDuration <= 0 {
		return fmt.Errorf("lockout duration must be positive when lockout is enabled")
	}
	if c.Auth.LoginFailureLimit > 0 && c.Auth.LoginFailureWindow <= 0 {
		return fmt.Errorf("login failure window must be positive")
	}

	if c.Audit.RetentionYears < 1 {
		return fmt.Errorf("audit retention must be at least 1 year")
	}
	if c.Audit.CleanupSchedule == "" {
		return fmt.Errorf("audit cleanup schedule is required")
	}

	switch c.Observability.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Observability.LogFormat)
	}
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// OTel returns the OpenTelemetry settings in the form observability expects
func (c ObservabilityConfig) OTel() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        c.OTelEnabled,
		Endpoint:       c.OTelEndpoint,
		ServiceName:    c.OTelServiceName,
		ServiceVersion: c.OTelServiceVersion,
		Insecure:       c.OTelInsecure,
		SampleRatio:    c.OTelSampleRatio,
	}
}

// NewLogger builds the configured logger
func (c ObservabilityConfig) NewLogger() *observability.Logger {
	if c.LogFormat == "text" {
		return observability.NewTextLogger(c.LogLevel, os.Stdout)
	}
	return observability.NewLogger(c.LogLevel, os.Stdout)
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated variable, dropping empty items
func getEnvList(key string) []string {
	var items []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
