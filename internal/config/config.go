// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Import   ImportConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing the response (default: 0, imports may be long)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Driver selects the store: postgres or sqlite (default: postgres)
	Driver string `env:"DB_DRIVER" default:"postgres"`

	// URL is the connection string or SQLite file path (required)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	// MaxConns is the maximum number of connections in the pool (default: 10)
	MaxConns int `env:"DB_MAX_CONNS" default:"10"`

	// MinConns is the minimum number of connections to keep open (default: 2)
	MinConns int `env:"DB_MIN_CONNS" default:"2"`
}

// ImportConfig holds CSV import settings.
type ImportConfig struct {
	// Table is the default target table (default: cars)
	Table string `env:"IMPORT_TABLE" default:"cars"`

	// Delimiter is ";", ",", "tab", "|" or "auto" (default: ;)
	Delimiter string `env:"IMPORT_DELIMITER" default:";"`

	// Encoding is utf-8, iso-8859-1 or windows-1252 (default: utf-8)
	Encoding string `env:"IMPORT_ENCODING" default:"utf-8"`

	// DateMode is strict or lenient (default: strict)
	DateMode string `env:"IMPORT_DATE_MODE" default:"strict"`

	// IntegerMode is lenient or strict (default: lenient)
	IntegerMode string `env:"IMPORT_INTEGER_MODE" default:"lenient"`

	// RequireColumns enforces each table's required header columns (default: true)
	RequireColumns bool `env:"IMPORT_REQUIRE_COLUMNS" default:"true"`

	// PassUnknown keeps header columns the table does not know (default: false)
	PassUnknown bool `env:"IMPORT_PASS_UNKNOWN" default:"false"`

	// Username is stamped on imported rows when the request carries no user
	Username string `env:"IMPORT_USERNAME" default:"import"`

	// MaxFileSize is the maximum allowed upload size in bytes (default: 100MB)
	MaxFileSize int64 `env:"IMPORT_MAX_FILE_SIZE" default:"104857600"`

	// MaxConcurrent is the maximum number of parallel imports (default: 3)
	MaxConcurrent int `env:"IMPORT_MAX_CONCURRENT" default:"3"`

	// MaxWaitTime is how long to wait for an import slot (default: 30s)
	MaxWaitTime time.Duration `env:"IMPORT_MAX_WAIT_TIME" default:"30s"`

	// Timeout is the maximum duration for a single import (default: 10m)
	Timeout time.Duration `env:"IMPORT_TIMEOUT" default:"10m"`
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
	// RequireAPIKey enables API key authentication on /api routes (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of "user:key" pairs or bare keys
	APIKeys []string `env:"API_KEYS"`

	// AllowedOrigins is a comma-separated list of CORS origins (default: none)
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS"`

	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
