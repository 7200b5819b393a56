// Package pgstore is a loader.Store over a pgx connection pool.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"

	"github.com/JonMunkholm/fileloader/internal/config"
	"github.com/JonMunkholm/fileloader/internal/loader"
)

// Store runs load transactions on a pgxpool.Pool.
type Store struct {
	pool *pgxpool.Pool
	name string
}

// New connects a pool for conn, applying the pool settings from db.
func New(ctx context.Context, conn config.Connection, db config.DatabaseConfig) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(conn.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if conn.User != "" {
		poolConfig.ConnConfig.User = conn.User
	}
	if conn.Password != "" {
		poolConfig.ConnConfig.Password = conn.Password
	}

	mode, err := ParseExecMode(db.QueryExecMode)
	if err != nil {
		return nil, err
	}
	poolConfig.ConnConfig.DefaultQueryExecMode = mode

	poolConfig.MaxConns = int32(db.MaxConns)
	poolConfig.MinConns = int32(db.MinConns)
	poolConfig.MaxConnLifetime = db.MaxConnLifetime
	poolConfig.MaxConnIdleTime = db.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, db.PingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return NewFromPool(pool, poolConfig.ConnConfig.Database), nil
}

// NewFromPool wraps an existing pool. name is used in log and error messages.
func NewFromPool(pool *pgxpool.Pool, name string) *Store {
	return &Store{pool: pool, name: name}
}

// ParseExecMode maps a DB_QUERY_EXEC_MODE value to its pgx mode. Empty
// selects the simple protocol, which sends parameters as text so string
// fields reach typed columns the way a literal would.
func ParseExecMode(s string) (pgx.QueryExecMode, error) {
	switch strings.ToLower(s) {
	case "", "simple_protocol":
		return pgx.QueryExecModeSimpleProtocol, nil
	case "exec":
		return pgx.QueryExecModeExec, nil
	case "cache_statement":
		return pgx.QueryExecModeCacheStatement, nil
	case "cache_describe":
		return pgx.QueryExecModeCacheDescribe, nil
	case "describe_exec":
		return pgx.QueryExecModeDescribeExec, nil
	default:
		return 0, fmt.Errorf("unknown query exec mode %q", s)
	}
}

func (s *Store) Name() string { return "postgres:" + s.name }

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Begin(ctx context.Context) (loader.Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &pgTx{tx: tx}, nil
}

type pgTx struct {
	tx pgx.Tx
}

func rebind(q string) string {
	return sqlx.Rebind(sqlx.DOLLAR, q)
}

func (t *pgTx) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := t.tx.Exec(ctx, rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (t *pgTx) QueryRow(ctx context.Context, query string, args ...any) loader.Row {
	return row{t.tx.QueryRow(ctx, rebind(query), args...)}
}

// ExecBatch queues one insert per row and sends them in a single round trip.
func (t *pgTx) ExecBatch(ctx context.Context, query string, rows [][]any) error {
	q := rebind(query)
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(q, r...)
	}

	br := t.tx.SendBatch(ctx, batch)
	for i := range rows {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("batch row %d: %w", i+1, err)
		}
	}
	return br.Close()
}

func (t *pgTx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t *pgTx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}

type row struct {
	r pgx.Row
}

func (r row) Scan(dest ...any) error {
	err := r.r.Scan(dest...)
	if errors.Is(err, pgx.ErrNoRows) {
		return loader.ErrNoRows
	}
	return err
}
