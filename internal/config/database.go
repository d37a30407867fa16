package config

import (
	"time"
)

// DatabaseConfig holds connection pool settings for the SQL store
type DatabaseConfig struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	AcquireTimeout  time.Duration
}

// GetDatabaseConfig returns the database configuration from the environment.
// The pool is the only gate on concurrent database work: MaxOpenConns bounds
// checkouts and acquisition blocks until a connection frees up or the
// acquire timeout expires.
func GetDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          GetEnvOrDefault("DB_DRIVER", "sqlite"),
		DSN:             GetEnvOrDefault("DATABASE_URL", "file:advisor.db?_pragma=busy_timeout(5000)"),
		MaxOpenConns:    parseEnvInt("DB_MAX_OPEN_CONNS", 15),
		MaxIdleConns:    parseEnvInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: parseEnvDuration("DB_CONN_MAX_LIFETIME", 1800*time.Second),
		AcquireTimeout:  parseEnvDuration("DB_ACQUIRE_TIMEOUT", 30*time.Second),
	}
}
