// Package store opens the audit and target stores named in a mapping file.
package store

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	_ "github.com/lib/pq"              // register postgres as a database/sql driver
	sf "github.com/snowflakedb/gosnowflake"
	_ "modernc.org/sqlite" // register sqlite as a database/sql driver

	"github.com/JonMunkholm/fileloader/internal/config"
	"github.com/JonMunkholm/fileloader/internal/loader"
	"github.com/JonMunkholm/fileloader/internal/store/pgstore"
	"github.com/JonMunkholm/fileloader/internal/store/sqlstore"
)

// Opened is a connected store.
type Opened struct {
	Store  loader.Store
	Driver string
	Close  func() error
}

// Open connects to conn using the driver it names.
func Open(ctx context.Context, conn config.Connection, db config.DatabaseConfig) (*Opened, error) {
	driver := conn.DriverName()

	switch driver {
	case config.DriverPgxPool:
		s, err := pgstore.New(ctx, conn, db)
		if err != nil {
			return nil, err
		}
		return &Opened{Store: s, Driver: driver, Close: s.Close}, nil

	case config.DriverPgx, config.DriverPostgres, config.DriverSnowflake, config.DriverSQLite:
		dsn, err := WithCredentials(driver, conn.URL, conn.User, conn.Password)
		if err != nil {
			return nil, err
		}
		s, err := sqlstore.Open(ctx, driver, dsn, db)
		if err != nil {
			return nil, err
		}
		return &Opened{Store: s, Driver: driver, Close: s.Close}, nil

	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
}

// WithCredentials merges user and password into dsn for driver. Empty
// values leave the DSN's own credentials in place.
func WithCredentials(driver, dsn, user, password string) (string, error) {
	if user == "" && password == "" {
		return dsn, nil
	}

	switch driver {
	case config.DriverSnowflake:
		cfg, err := sf.ParseDSN(dsn)
		if err != nil {
			return "", fmt.Errorf("parse snowflake DSN: %w", err)
		}
		if user != "" {
			cfg.User = user
		}
		if password != "" {
			cfg.Password = password
		}
		out, err := sf.DSN(cfg)
		if err != nil {
			return "", fmt.Errorf("failed to build Snowflake DSN: %w", err)
		}
		return out, nil

	case config.DriverSQLite:
		return dsn, nil

	default:
		return postgresCredentials(dsn, user, password)
	}
}

// postgresCredentials handles both URL and keyword/value connection strings.
func postgresCredentials(dsn, user, password string) (string, error) {
	if strings.Contains(dsn, "://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", fmt.Errorf("parse database URL: %w", err)
		}
		if user == "" && u.User != nil {
			user = u.User.Username()
		}
		if password == "" && u.User != nil {
			password, _ = u.User.Password()
		}
		u.User = url.UserPassword(user, password)
		return u.String(), nil
	}

	var b strings.Builder
	b.WriteString(dsn)
	if user != "" {
		fmt.Fprintf(&b, " user=%s", quoteValue(user))
	}
	if password != "" {
		fmt.Fprintf(&b, " password=%s", quoteValue(password))
	}
	return strings.TrimSpace(b.String()), nil
}

func quoteValue(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	return "'" + s + "'"
}

// IDGenerator returns the audit file id source for driver. An empty
// strategy selects the driver default: max+1 for sqlite, a sequence
// otherwise.
func IDGenerator(driver, strategy, sequence, table string) loader.FileIDGenerator {
	if sequence == "" {
		sequence = loader.DefaultAuditSequence
	}
	if table == "" {
		table = loader.DefaultAuditTable
	}
	if strategy == "" {
		strategy = config.IDStrategySequence
		if driver == config.DriverSQLite {
			strategy = config.IDStrategyMax
		}
	}

	if strategy == config.IDStrategyMax {
		return loader.MaxPlusOneIDs{Table: table}
	}
	return loader.SequenceIDs{Query: loader.SequenceQuery(driver, sequence)}
}
