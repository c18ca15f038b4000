// Package config provides centralized configuration management for the repair
// server. It loads configuration from environment variables with sensible
// defaults and validates all settings on startup to fail fast on
// misconfiguration.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Journal  JournalConfig
	Ingest   IngestConfig
	Repair   RepairConfig
	Session  SessionConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 60s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"60s"`

	// WriteTimeout is the maximum duration for writing response (default: 60s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"60s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 2m)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"2m"`
}

// DatabaseConfig holds the optional PostgreSQL journal connection.
// Without a URL the journal is stored in SQLite at Journal.Path.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 10)
	MaxConns int `env:"DB_MAX_CONNS" default:"10"`

	// MinConns is the minimum number of connections to keep open (default: 1)
	MinConns int `env:"DB_MIN_CONNS" default:"1"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// JournalConfig holds repair journal settings.
type JournalConfig struct {
	// Enabled turns journaling on (default: true)
	Enabled bool `env:"JOURNAL_ENABLED" default:"true"`

	// Path is the SQLite file used when DATABASE_URL is unset (default: data/journal.db)
	Path string `env:"JOURNAL_PATH" default:"data/journal.db"`
}

// IngestConfig holds file loading settings.
type IngestConfig struct {
	// MaxFileSize is the maximum allowed file size in bytes (default: 100MB)
	MaxFileSize int64 `env:"INGEST_MAX_FILE_SIZE" default:"104857600"`

	// MaxConcurrent is the maximum number of parallel loads (default: 4)
	MaxConcurrent int `env:"INGEST_MAX_CONCURRENT" default:"4"`

	// MaxWaitTime is how long to wait for a load slot (default: 30s)
	MaxWaitTime time.Duration `env:"INGEST_MAX_WAIT_TIME" default:"30s"`

	// Encoding is the default source encoding: auto, utf-8, latin-1, windows-1252 (default: auto)
	Encoding string `env:"INGEST_ENCODING" default:"auto"`

	// Delimiter is the default CSV field separator (default: ,)
	Delimiter string `env:"INGEST_DELIMITER" default:","`

	// Header reads column names from the first row (default: true)
	Header bool `env:"INGEST_HEADER" default:"true"`
}

// RepairConfig holds repair engine settings.
type RepairConfig struct {
	// Workers bounds parallel batch repairs (default: 4)
	Workers int `env:"REPAIR_WORKERS" default:"4"`

	// ShareJoin is placed between the left column and the moved text (default: single space)
	ShareJoin string `env:"REPAIR_SHARE_JOIN" default:" "`

	// Quote is the quote character the spill detector looks for (default: ")
	Quote string `env:"REPAIR_QUOTE" default:"\""`
}

// SessionConfig holds in-memory table session settings.
type SessionConfig struct {
	// TTL is how long an unused table is kept (default: 30m)
	TTL time.Duration `env:"SESSION_TTL" default:"30m"`

	// MaxTables caps the number of tables held at once (default: 64)
	MaxTables int `env:"SESSION_MAX_TABLES" default:"64"`

	// JanitorInterval is how often expired tables are evicted (default: 1m)
	JanitorInterval time.Duration `env:"SESSION_JANITOR_INTERVAL" default:"1m"`
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
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// DelimiterRune returns the first rune of the configured delimiter.
func (c *IngestConfig) DelimiterRune() rune {
	for _, r := range c.Delimiter {
		return r
	}
	return ','
}
