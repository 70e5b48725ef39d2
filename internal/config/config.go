// Package config provides centralized configuration management for tabled.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Import      ImportConfig
	Cache       CacheConfig
	Ledger      LedgerConfig
	Rate        RateLimitConfig
	Security    SecurityConfig
	Logging     LoggingConfig
	Types       TypesConfig
	Maintenance MaintenanceConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" envAlt:"PORT" default:"8080"`

	ReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"60s"`
	IdleTimeout  time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`

	// MaxBodySize caps JSON and CSV request bodies in bytes (default: 32MB)
	MaxBodySize int64 `env:"SERVER_MAX_BODY_SIZE" default:"33554432"`
}

// DatabaseConfig holds storage settings.
type DatabaseConfig struct {
	// Driver selects the store: postgres, sqlite or memory (default: postgres)
	Driver string `env:"DB_DRIVER" default:"postgres"`

	// URL is the PostgreSQL connection string, required for the postgres driver.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// Path is the SQLite database file (default: tabled.db)
	Path string `env:"SQLITE_PATH" default:"tabled.db"`

	MaxConns        int           `env:"DB_MAX_CONNS" default:"20"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"4"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// AutoMigrate applies pending migrations when the server starts (default: true)
	AutoMigrate bool `env:"DB_AUTO_MIGRATE" default:"true"`
}

// ImportConfig holds bulk import settings.
type ImportConfig struct {
	// MaxRows is the row limit of a single import (default: 10000)
	MaxRows int `env:"IMPORT_MAX_ROWS" default:"10000"`

	// ErrorCap bounds the error list returned by an import (default: 100)
	ErrorCap int `env:"IMPORT_ERROR_CAP" default:"100"`

	// MaxConcurrent is the maximum number of parallel imports (default: 5)
	MaxConcurrent int `env:"IMPORT_MAX_CONCURRENT" default:"5"`

	// MaxWaitTime is how long to wait for an import slot (default: 30s)
	MaxWaitTime time.Duration `env:"IMPORT_MAX_WAIT_TIME" default:"30s"`

	// Timeout is the maximum duration of one import (default: 10m)
	Timeout time.Duration `env:"IMPORT_TIMEOUT" default:"10m"`

	// SummaryPageSize is the row page used by dataset validation (default: 500)
	SummaryPageSize int `env:"IMPORT_SUMMARY_PAGE_SIZE" default:"500"`
}

// CacheConfig holds advisory cache and item lock settings. An empty
// RedisAddr selects the in-process cache and lock.
type CacheConfig struct {
	RedisAddr     string `env:"REDIS_ADDR" envAlt:"REDIS_URL"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" default:"0"`
	KeyPrefix     string `env:"CACHE_KEY_PREFIX" default:"tabled:"`

	// CatalogTTL is how long public listings stay memoized (default: 5m)
	CatalogTTL time.Duration `env:"CACHE_CATALOG_TTL" default:"5m"`

	// LockTTL expires an item lock held by a crashed instance (default: 5s)
	LockTTL time.Duration `env:"LOCK_TTL" default:"5s"`

	// LockAttempts is how often a busy item lock is retried (default: 3)
	LockAttempts int `env:"LOCK_ATTEMPTS" default:"3"`

	// LockRetryDelay is the pause between lock attempts (default: 100ms)
	LockRetryDelay time.Duration `env:"LOCK_RETRY_DELAY" default:"100ms"`
}

// Redis reports whether a Redis server is configured.
func (c *CacheConfig) Redis() bool { return c.RedisAddr != "" }

// LedgerConfig holds inventory ledger settings.
type LedgerConfig struct {
	// AnalyticsTTL is how long analytics reports stay memoized (default: 60s)
	AnalyticsTTL time.Duration `env:"LEDGER_ANALYTICS_TTL" default:"60s"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// ImportLimit is requests per minute for import endpoints (default: 10)
	ImportLimit int `env:"RATE_LIMIT_IMPORT" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// RequireAPIKey gates the public routes behind X-API-Key (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted keys
	APIKeys []string `env:"API_KEYS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// TypesConfig points at optional column type declarations.
type TypesConfig struct {
	// File is a YAML file of declared column types loaded at startup
	File string `env:"COLUMN_TYPES_FILE"`
}

// MaintenanceConfig holds the background upkeep settings.
type MaintenanceConfig struct {
	// Interval is how often the cache is swept and warmed (default: 1m)
	Interval time.Duration `env:"MAINTENANCE_INTERVAL" default:"1m"`

	// WarmCatalog recomputes the public table listing each cycle (default: true)
	WarmCatalog bool `env:"MAINTENANCE_WARM_CATALOG" default:"true"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
