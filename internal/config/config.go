// Package config provides process configuration from environment variables
// and the mapping definition that drives a load run.
package config

import "time"

// Config holds process-level settings. The mapping file (see LoadMapping)
// carries everything specific to a run.
type Config struct {
	Database DatabaseConfig
	Load     LoadConfig
	Logging  LoggingConfig
}

// DatabaseConfig holds connection pool settings shared by the audit and
// target stores.
type DatabaseConfig struct {
	// MaxConns is the maximum number of connections per store (default: 4)
	MaxConns int `env:"DB_MAX_CONNS" default:"4"`

	// MinConns is the minimum number of idle connections to keep (default: 0)
	MinConns int `env:"DB_MIN_CONNS" default:"0"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// PingTimeout bounds the connectivity check made when a store is opened (default: 10s)
	PingTimeout time.Duration `env:"DB_PING_TIMEOUT" default:"10s"`

	// QueryExecMode is the pgx query exec mode for pgxpool stores (default: simple_protocol)
	QueryExecMode string `env:"DB_QUERY_EXEC_MODE" default:"simple_protocol"`
}

// LoadConfig holds defaults for load runs. Command line flags and the
// mapping file take precedence.
type LoadConfig struct {
	// BatchThreshold is the number of rows per batched insert (default: 1000)
	BatchThreshold int `env:"LOAD_BATCH_THRESHOLD" envAlt:"BATCH_THRESHOLD" default:"1000"`

	// TraceInterval logs progress every N rows; 0 disables (default: 0)
	TraceInterval int64 `env:"LOAD_TRACE_INTERVAL" default:"0"`

	// ArchiveDir receives files after a successful load; empty leaves files in place
	ArchiveDir string `env:"LOAD_ARCHIVE_DIR"`

	// SummaryPath is where the JSON run summary is written; empty disables
	SummaryPath string `env:"LOAD_SUMMARY_PATH"`

	// Timezone is the location used to interpret dates in file names (default: Local)
	Timezone string `env:"LOAD_TIMEZONE" default:"Local"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Location resolves Timezone.
func (c *LoadConfig) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}
