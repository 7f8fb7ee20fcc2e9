package storage

import "time"

// Config holds database and Redis connection settings
type Config struct {
	// Driver is "postgres" or "sqlite3"
	Driver string
	URL    string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration

	// Redis is optional; an empty URL disables it
	RedisURL        string
	RedisPassword   string
	RedisDB         int
	RedisMaxRetries int
	RedisPoolSize   int
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		Driver:          DriverPostgres,
		URL:             "postgres://localhost/tenantguard?sslmode=disable",
		MaxOpenConns:    20,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
		PingTimeout:     5 * time.Second,
		RedisDB:         -1,
	}
}
