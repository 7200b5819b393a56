package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Load builds the process configuration from the environment and validates
// it. Flags and the mapping file are applied on top by the caller.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := loadStruct(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

var durationType = reflect.TypeOf(time.Duration(0))

// loadStruct fills the Database, Load and Logging sections. Each tagged
// field reads env, then envAlt (LOAD_BATCH_THRESHOLD falls back to
// BATCH_THRESHOLD), then default.
func loadStruct(v reflect.Value) error {
	for i := 0; i < v.NumField(); i++ {
		sf, fv := v.Type().Field(i), v.Field(i)
		if !fv.CanSet() {
			continue
		}
		if sf.Type.Kind() == reflect.Struct {
			if err := loadStruct(fv); err != nil {
				return err
			}
			continue
		}

		name, value, err := envValue(sf.Tag)
		if err != nil {
			return err
		}
		if value == "" {
			continue
		}
		if err := setField(fv, value); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", name, value, err)
		}
	}
	return nil
}

// envValue resolves the raw setting for one field. name is empty for
// untagged fields.
func envValue(tag reflect.StructTag) (name, value string, err error) {
	name = tag.Get("env")
	if name == "" {
		return "", "", nil
	}
	if value = os.Getenv(name); value != "" {
		return name, value, nil
	}
	if alt := tag.Get("envAlt"); alt != "" {
		if value = os.Getenv(alt); value != "" {
			return alt, value, nil
		}
	}
	if tag.Get("required") == "true" {
		return name, "", fmt.Errorf("required environment variable %s is not set", name)
	}
	return name, tag.Get("default"), nil
}

// setField parses value into a string, integer or duration field. Counts
// such as DB_MAX_CONNS are base-10 integers; timeouts and lifetimes use
// time.ParseDuration syntax ("30m", "1h").
func setField(field reflect.Value, value string) error {
	switch {
	case field.Type() == durationType:
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}
		field.SetInt(int64(d))
	case field.Kind() == reflect.Int, field.Kind() == reflect.Int64:
		n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer: %w", err)
		}
		field.SetInt(n)
	case field.Kind() == reflect.String:
		field.SetString(value)
	default:
		return fmt.Errorf("unsupported field type: %s", field.Type())
	}
	return nil
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	// Database validation
	if c.Database.MaxConns < c.Database.MinConns {
		errs = append(errs, fmt.Sprintf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)",
			c.Database.MaxConns, c.Database.MinConns))
	}
	if c.Database.MaxConns <= 0 {
		errs = append(errs, "DB_MAX_CONNS must be positive")
	}
	if c.Database.MinConns < 0 {
		errs = append(errs, "DB_MIN_CONNS must be non-negative")
	}
	if c.Database.PingTimeout <= 0 {
		errs = append(errs, "DB_PING_TIMEOUT must be positive")
	}
	validModes := map[string]bool{
		"simple_protocol": true, "exec": true, "cache_statement": true,
		"cache_describe": true, "describe_exec": true,
	}
	if !validModes[strings.ToLower(c.Database.QueryExecMode)] {
		errs = append(errs, fmt.Sprintf("DB_QUERY_EXEC_MODE (%q) must be one of: simple_protocol, exec, cache_statement, cache_describe, describe_exec",
			c.Database.QueryExecMode))
	}

	// Load validation
	if c.Load.BatchThreshold <= 0 {
		errs = append(errs, "LOAD_BATCH_THRESHOLD must be positive")
	}
	if c.Load.TraceInterval < 0 {
		errs = append(errs, "LOAD_TRACE_INTERVAL must be non-negative")
	}
	if _, err := c.Load.Location(); err != nil {
		errs = append(errs, fmt.Sprintf("LOAD_TIMEZONE (%q) is not a known location", c.Load.Timezone))
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// String returns a string representation of the config for logging.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	b.WriteString(fmt.Sprintf("Database: {MaxConns: %d, MinConns: %d, QueryExecMode: %q}, ",
		c.Database.MaxConns, c.Database.MinConns, c.Database.QueryExecMode))
	b.WriteString(fmt.Sprintf("Load: {BatchThreshold: %d, TraceInterval: %d, ArchiveDir: %q, Timezone: %q}, ",
		c.Load.BatchThreshold, c.Load.TraceInterval, c.Load.ArchiveDir, c.Load.Timezone))
	b.WriteString(fmt.Sprintf("Logging: {Level: %q, Format: %q}",
		c.Logging.Level, c.Logging.Format))
	b.WriteString("}")
	return b.String()
}
