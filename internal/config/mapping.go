package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/tailscale/hujson"
)

// Store drivers understood by the store registry.
const (
	DriverPgxPool   = "pgxpool"
	DriverPgx       = "pgx"
	DriverPostgres  = "postgres"
	DriverSnowflake = "snowflake"
	DriverSQLite    = "sqlite"
)

var knownDrivers = map[string]bool{
	DriverPgxPool: true, DriverPgx: true, DriverPostgres: true,
	DriverSnowflake: true, DriverSQLite: true,
}

// Audit file id strategies.
const (
	IDStrategySequence = "sequence"
	IDStrategyMax      = "max"
)

// Connection describes one database. Driver defaults to pgxpool.
type Connection struct {
	Driver   string
	URL      string
	User     string
	Password string
}

// DriverName returns Driver or the default.
func (c Connection) DriverName() string {
	if c.Driver == "" {
		return DriverPgxPool
	}
	return c.Driver
}

// Mapping is a parsed mapping definition file.
type Mapping struct {
	AuditDriver   string `json:"auditDriver"`
	AuditURL      string `json:"auditUrl"`
	AuditUser     string `json:"auditUser"`
	AuditPassword string `json:"auditPassword"`

	TargetDriver   string `json:"targetDriver"`
	TargetURL      string `json:"targetUrl"`
	TargetUser     string `json:"targetUser"`
	TargetPassword string `json:"targetPassword"`

	// AuditTable defaults to audit_file.
	AuditTable string `json:"auditTable"`
	// AuditSequence defaults to seq_audit.
	AuditSequence string `json:"auditSequence"`
	// AuditIDStrategy is "sequence" or "max"; empty picks the driver default.
	AuditIDStrategy string `json:"auditIdStrategy"`

	// BatchThreshold is the global rows-per-batch; 0 uses the environment default.
	BatchThreshold int `json:"batchThreshold"`

	Mappings []FileMapping `json:"mappings"`
}

// FileMapping maps one source file pattern onto one target table.
type FileMapping struct {
	SourcePattern string `json:"sourcePattern"`
	// DateGroup and TypeGroup are 1-based capture groups; 0 means unused.
	DateGroup  int    `json:"dateGroup"`
	TypeGroup  int    `json:"typeGroup"`
	DateFormat string `json:"dateFormat"`
	// SourceID enables the trailing source_id, file_id, record_id columns.
	SourceID      *int64   `json:"sourceId"`
	TargetTable   string   `json:"targetTable"`
	TargetColumns []string `json:"targetColumns"`

	ParserLine      int    `json:"parserLine"`
	ParserSeparator string `json:"parserSeparator"`
	// ParserQuotechar and ParserEscape accept "\u0000" to disable the character.
	ParserQuotechar               string `json:"parserQuotechar"`
	ParserEscape                  string `json:"parserEscape"`
	ParserStrictQuotes            bool   `json:"parserStrictQuotes"`
	ParserIgnoreLeadingWhiteSpace *bool  `json:"parserIgnoreLeadingWhiteSpace"`
	ParserSanitizeUTF8            bool   `json:"parserSanitizeUtf8"`
	ParserSkipBlankLines          bool   `json:"parserSkipBlankLines"`

	// BatchThreshold overrides the file-level threshold when positive.
	BatchThreshold int `json:"batchThreshold"`
}

// IgnoreLeadingWhiteSpace returns the configured value, true when unset.
func (m FileMapping) IgnoreLeadingWhiteSpace() bool {
	return m.ParserIgnoreLeadingWhiteSpace == nil || *m.ParserIgnoreLeadingWhiteSpace
}

// Audit returns the audit store connection.
func (m *Mapping) Audit() Connection {
	return Connection{Driver: m.AuditDriver, URL: m.AuditURL, User: m.AuditUser, Password: m.AuditPassword}
}

// Target returns the target store connection.
func (m *Mapping) Target() Connection {
	return Connection{Driver: m.TargetDriver, URL: m.TargetURL, User: m.TargetUser, Password: m.TargetPassword}
}

// SharedStore reports whether audit and target point at the same database.
func (m *Mapping) SharedStore() bool {
	a, t := m.Audit(), m.Target()
	return a.DriverName() == t.DriverName() && a.URL == t.URL && a.User == t.User && a.Password == t.Password
}

// LoadMapping reads a mapping definition. The file is JSON; comments and
// trailing commas are accepted. ${VAR} in connection fields expands from
// the environment.
func LoadMapping(path string) (*Mapping, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mapping: %w", err)
	}
	return ParseMapping(raw)
}

// ParseMapping parses and validates a mapping definition.
func ParseMapping(raw []byte) (*Mapping, error) {
	std, err := hujson.Standardize(raw)
	if err != nil {
		return nil, fmt.Errorf("parse mapping: %w", err)
	}

	var m Mapping
	if err := json.Unmarshal(std, &m); err != nil {
		return nil, fmt.Errorf("parse mapping: %w", err)
	}

	for _, f := range []*string{
		&m.AuditURL, &m.AuditUser, &m.AuditPassword,
		&m.TargetURL, &m.TargetUser, &m.TargetPassword,
	} {
		*f = expandEnv(*f)
	}

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("mapping validation: %w", err)
	}
	return &m, nil
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv replaces ${VAR} only; a bare $ is left alone since it is common
// in passwords.
func expandEnv(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(ref string) string {
		return os.Getenv(ref[2 : len(ref)-1])
	})
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*(\.[A-Za-z_][A-Za-z0-9_$]*){0,2}$`)

// ValidIdentifier reports whether s is a plain, optionally qualified, SQL name.
func ValidIdentifier(s string) bool {
	return identifier.MatchString(s)
}

// Validate checks the mapping definition.
// Returns an error describing all validation failures.
func (m *Mapping) Validate() error {
	var errs []string

	if m.AuditURL == "" {
		errs = append(errs, "auditUrl is required")
	}
	if m.TargetURL == "" {
		errs = append(errs, "targetUrl is required")
	}
	if d := m.Audit().DriverName(); !knownDrivers[d] {
		errs = append(errs, fmt.Sprintf("auditDriver (%q) must be one of: pgxpool, pgx, postgres, snowflake, sqlite", d))
	}
	if d := m.Target().DriverName(); !knownDrivers[d] {
		errs = append(errs, fmt.Sprintf("targetDriver (%q) must be one of: pgxpool, pgx, postgres, snowflake, sqlite", d))
	}
	if m.AuditTable != "" && !ValidIdentifier(m.AuditTable) {
		errs = append(errs, fmt.Sprintf("auditTable (%q) is not a valid identifier", m.AuditTable))
	}
	if m.AuditSequence != "" && !ValidIdentifier(m.AuditSequence) {
		errs = append(errs, fmt.Sprintf("auditSequence (%q) is not a valid identifier", m.AuditSequence))
	}
	switch m.AuditIDStrategy {
	case "", IDStrategySequence, IDStrategyMax:
	default:
		errs = append(errs, fmt.Sprintf("auditIdStrategy (%q) must be one of: sequence, max", m.AuditIDStrategy))
	}
	if m.BatchThreshold < 0 {
		errs = append(errs, "batchThreshold must be non-negative")
	}
	if len(m.Mappings) == 0 {
		errs = append(errs, "mappings must contain at least one entry")
	}

	for i, fm := range m.Mappings {
		for _, e := range fm.validate() {
			errs = append(errs, fmt.Sprintf("mappings[%d].%s", i, e))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func (fm FileMapping) validate() []string {
	var errs []string

	if fm.SourcePattern == "" {
		errs = append(errs, "sourcePattern is required")
	} else if _, err := regexp.Compile(fm.SourcePattern); err != nil {
		errs = append(errs, fmt.Sprintf("sourcePattern: %v", err))
	}
	// Groups beyond the pattern's capture count are allowed; extraction
	// falls back to the load time and type "I".
	if fm.DateGroup < 0 {
		errs = append(errs, "dateGroup must be non-negative")
	}
	if fm.TypeGroup < 0 {
		errs = append(errs, "typeGroup must be non-negative")
	}
	if fm.DateGroup > 0 && fm.DateFormat == "" {
		errs = append(errs, "dateFormat is required when dateGroup is set")
	}

	if !ValidIdentifier(fm.TargetTable) {
		errs = append(errs, fmt.Sprintf("targetTable (%q) is not a valid identifier", fm.TargetTable))
	}
	named := 0
	for j, c := range fm.TargetColumns {
		if c == "" {
			continue
		}
		named++
		if !ValidIdentifier(c) {
			errs = append(errs, fmt.Sprintf("targetColumns[%d] (%q) is not a valid identifier", j, c))
		}
	}
	if named == 0 {
		errs = append(errs, "targetColumns must name at least one column")
	}

	if fm.ParserLine < 0 {
		errs = append(errs, "parserLine must be non-negative")
	}
	if fm.ParserSeparator != "" && utf8.RuneCountInString(fm.ParserSeparator) != 1 {
		errs = append(errs, fmt.Sprintf("parserSeparator (%q) must be a single character", fm.ParserSeparator))
	}
	if fm.ParserQuotechar != "" && utf8.RuneCountInString(fm.ParserQuotechar) != 1 {
		errs = append(errs, fmt.Sprintf("parserQuotechar (%q) must be a single character", fm.ParserQuotechar))
	}
	if fm.ParserEscape != "" && utf8.RuneCountInString(fm.ParserEscape) != 1 {
		errs = append(errs, fmt.Sprintf("parserEscape (%q) must be a single character", fm.ParserEscape))
	}
	if fm.ParserSeparator == "\x00" {
		errs = append(errs, "parserSeparator cannot be disabled")
	}
	if fm.BatchThreshold < 0 {
		errs = append(errs, "batchThreshold must be non-negative")
	}

	return errs
}

// String returns the mapping with credentials masked.
func (m *Mapping) String() string {
	return fmt.Sprintf("Mapping{Audit: {Driver: %q, URL: [MASKED]}, Target: {Driver: %q, URL: [MASKED]}, AuditTable: %q, BatchThreshold: %d, Mappings: %d}",
		m.Audit().DriverName(), m.Target().DriverName(), m.AuditTable, m.BatchThreshold, len(m.Mappings))
}
