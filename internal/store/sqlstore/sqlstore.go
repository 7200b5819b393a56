// Package sqlstore is a loader.Store over database/sql, for any driver
// registered with it.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/JonMunkholm/fileloader/internal/config"
	"github.com/JonMunkholm/fileloader/internal/loader"
)

func init() {
	// sqlx only knows the bind style of common Postgres and MySQL driver names.
	sqlx.BindDriver(config.DriverSnowflake, sqlx.QUESTION)
	sqlx.BindDriver(config.DriverSQLite, sqlx.QUESTION)
}

// Store runs load transactions on a sqlx.DB.
type Store struct {
	db   *sqlx.DB
	name string
}

// New wraps db. name is used in log and error messages.
func New(db *sqlx.DB, name string) *Store {
	return &Store{db: db, name: name}
}

// Open connects driver to dsn and verifies the connection.
func Open(ctx context.Context, driver, dsn string, db config.DatabaseConfig) (*Store, error) {
	conn, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s connection: %w", driver, err)
	}

	ApplyConnectionSettings(conn.DB, db)
	if driver == config.DriverSQLite {
		// One writer; a second connection would see a locked database.
		conn.SetMaxOpenConns(1)
	}

	if err := PingWithTimeout(ctx, conn.DB, db.PingTimeout); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", driver, err)
	}

	return New(conn, driver), nil
}

// ApplyConnectionSettings configures the database/sql pool from db.
func ApplyConnectionSettings(conn *sql.DB, db config.DatabaseConfig) {
	if db.MaxConns > 0 {
		conn.SetMaxOpenConns(db.MaxConns)
	}
	if db.MinConns > 0 {
		conn.SetMaxIdleConns(db.MinConns)
	}
	if db.MaxConnLifetime > 0 {
		conn.SetConnMaxLifetime(db.MaxConnLifetime)
	}
	if db.MaxConnIdleTime > 0 {
		conn.SetConnMaxIdleTime(db.MaxConnIdleTime)
	}
}

// PingWithTimeout pings conn, giving up after timeout.
func PingWithTimeout(ctx context.Context, conn *sql.DB, timeout time.Duration) error {
	if timeout <= 0 {
		return conn.PingContext(ctx)
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := conn.PingContext(pingCtx); err != nil {
		if pingCtx.Err() != nil {
			return fmt.Errorf("ping timed out after %v: %w", timeout, err)
		}
		return err
	}
	return nil
}

func (s *Store) Name() string { return s.name }

// DB returns the underlying handle.
func (s *Store) DB() *sqlx.DB { return s.db }

// Close closes the handle.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Begin(ctx context.Context) (loader.Tx, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &sqlTx{tx: tx}, nil
}

type sqlTx struct {
	tx *sqlx.Tx
}

func (t *sqlTx) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := t.tx.ExecContext(ctx, t.tx.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		// Not every driver reports affected rows.
		return 0, nil
	}
	return n, nil
}

func (t *sqlTx) QueryRow(ctx context.Context, query string, args ...any) loader.Row {
	return row{t.tx.QueryRowxContext(ctx, t.tx.Rebind(query), args...)}
}

// ExecBatch prepares query once and executes it for each row.
func (t *sqlTx) ExecBatch(ctx context.Context, query string, rows [][]any) error {
	stmt, err := t.tx.PreparexContext(ctx, t.tx.Rebind(query))
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range rows {
		if _, err := stmt.ExecContext(ctx, r...); err != nil {
			return fmt.Errorf("batch row %d: %w", i+1, err)
		}
	}
	return nil
}

func (t *sqlTx) Commit(ctx context.Context) error {
	return t.tx.Commit()
}

func (t *sqlTx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

type row struct {
	r *sqlx.Row
}

func (r row) Scan(dest ...any) error {
	err := r.r.Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return loader.ErrNoRows
	}
	return err
}
