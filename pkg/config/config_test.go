package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tenantguard/pkg/audit"
	"github.com/platinummonkey/tenantguard/pkg/observability"
	"github.com/platinummonkey/tenantguard/pkg/storage"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TEST_STR", "custom")
	t.Setenv("TEST_BOOL", "1")
	t.Setenv("TEST_INT", "42")
	t.Setenv("TEST_BAD_INT", "forty-two")
	t.Setenv("TEST_DURATION", "90s")
	t.Setenv("TEST_FLOAT", "0.25")
	t.Setenv("TEST_LIST", " a, ,b ,")

	assert.Equal(t, "custom", getEnv("TEST_STR", "default"))
	assert.Equal(t, "default", getEnv("TEST_UNSET", "default"))
	assert.True(t, getEnvBool("TEST_BOOL", false))
	assert.True(t, getEnvBool("TEST_UNSET", true))
	assert.Equal(t, 42, getEnvInt("TEST_INT", 1))
	assert.Equal(t, 1, getEnvInt("TEST_BAD_INT", 1))
	assert.Equal(t, int64(42), getEnvInt64("TEST_INT", 1))
	assert.Equal(t, 90*time.Second, getEnvDuration("TEST_DURATION", time.Second))
	assert.Equal(t, time.Second, getEnvDuration("TEST_BAD_INT", time.Second))
	assert.Equal(t, 0.25, getEnvFloat("TEST_FLOAT", 1))
	assert.Equal(t, []string{"a", "b"}, getEnvList("TEST_LIST"))
	assert.Nil(t, getEnvList("TEST_UNSET"))
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("TENANTGUARD_SIGNING_SECRET", testSecret)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 600, cfg.Server.RateLimit)
	assert.Equal(t, storage.DriverPostgres, cfg.Storage.Driver)
	assert.Empty(t, cfg.Storage.RedisURL)
	assert.Equal(t, 60*time.Minute, cfg.Auth.AccessTTL)
	assert.Equal(t, 5, cfg.Auth.LockoutAttempts)
	assert.Equal(t, 7, cfg.Audit.RetentionYears)
	assert.Equal(t, audit.DefaultCleanupSchedule, cfg.Audit.CleanupSchedule)
	assert.Equal(t, audit.FailureContinue, cfg.Audit.FailureMode)
	assert.Equal(t, observability.InfoLevel, cfg.Observability.LogLevel)
	assert.Equal(t, "json", cfg.Observability.LogFormat)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("TENANTGUARD_SIGNING_SECRET", testSecret)
	t.Setenv("TENANTGUARD_DB_DRIVER", "sqlite3")
	t.Setenv("TENANTGUARD_DB_URL", "file:tenantguard.db")
	t.Setenv("TENANTGUARD_REDIS_URL", "redis://cache:6379")
	t.Setenv("TENANTGUARD_TOKEN_TTL", "15m")
	t.Setenv("TENANTGUARD_AUDIT_FAILURE_MODE", "FATAL")
	t.Setenv("TENANTGUARD_AUDIT_FATAL_ACTIONS", "deleted, role_assigned")
	t.Setenv("TENANTGUARD_AUDIT_PATTERNS_FILE", "/etc/patterns.yaml")
	t.Setenv("TENANTGUARD_LOG_LEVEL", "debug")
	t.Setenv("TENANTGUARD_LOG_FORMAT", "TEXT")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, storage.DriverSQLite, cfg.Storage.Driver)
	assert.Equal(t, "file:tenantguard.db", cfg.Storage.URL)
	assert.Equal(t, "redis://cache:6379", cfg.Storage.RedisURL)
	assert.Equal(t, 15*time.Minute, cfg.Auth.AccessTTL)
	assert.Equal(t, audit.FailureFatal, cfg.Audit.FailureMode)
	assert.Equal(t, []string{"deleted", "role_assigned"}, cfg.Audit.FatalActions)
	assert.Equal(t, "/etc/patterns.yaml", cfg.Audit.PatternsFile)
	assert.Equal(t, observability.DebugLevel, cfg.Observability.LogLevel)
	assert.Equal(t, "text", cfg.Observability.LogFormat)
	assert.NotNil(t, cfg.Observability.NewLogger())
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing secret", map[string]string{}},
		{"short secret", map[string]string{"TENANTGUARD_SIGNING_SECRET": "short"}},
		{"unknown failure mode", map[string]string{
			"TENANTGUARD_SIGNING_SECRET":     testSecret,
			"TENANTGUARD_AUDIT_FAILURE_MODE": "sometimes",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TENANTGUARD_SIGNING_SECRET", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}

func validConfig() *Config {
	return &Config{
		Server:  ServerConfig{Port: "8080", RateLimit: 10, RateLimitWindow: time.Minute},
		Storage: storage.Config{Driver: storage.DriverSQLite, URL: ":memory:"},
		Auth: AuthConfig{
			SigningSecret: testSecret,
			AccessTTL:     time.Hour,
			RefreshTTL:    24 * time.Hour,
		},
		Audit:         AuditConfig{RetentionYears: 2, CleanupSchedule: audit.DefaultCleanupSchedule},
		Observability: ObservabilityConfig{LogFormat: "json"},
	}
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no port", func(c *Config) { c.Server.Port = "" }},
		{"negative rate limit", func(c *Config) { c.Server.RateLimit = -1 }},
		{"rate limit without window", func(c *Config) { c.Server.RateLimitWindow = 0 }},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "mysql" }},
		{"no database url", func(c *Config) { c.Storage.URL = "" }},
		{"zero token ttl", func(c *Config) { c.Auth.AccessTTL = 0 }},
		{"refresh shorter than access", func(c *Config) { c.Auth.RefreshTTL = time.Minute }},
		{"lockout without duration", func(c *Config) { c.Auth.LockoutAttempts = 3 }},
		{"login limit without window", func(c *Config) { c.Auth.LoginFailureLimit = 3 }},
		{"retention under a year", func(c *Config) { c.Audit.RetentionYears = 0 }},
		{"no cleanup schedule", func(c *Config) { c.Audit.CleanupSchedule = "" }},
		{"unknown log format", func(c *Config) { c.Observability.LogFormat = "xml" }},
		{"otel without endpoint", func(c *Config) {
			c.Observability.OTelEnabled = true
			c.Observability.OTelServiceName = "tenantguard"
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestObservabilityConfig_OTel(t *testing.T) {
	cfg := ObservabilityConfig{
		OTelEnabled:     true,
		OTelEndpoint:    "collector:4317",
		OTelServiceName: "tenantguard",
		OTelSampleRatio: 0.5,
	}

	otel := cfg.OTel()
	assert.True(t, otel.Enabled)
	assert.Equal(t, "collector:4317", otel.Endpoint)
	assert.Equal(t, 0.5, otel.SampleRatio)
}
