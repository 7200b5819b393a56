package loader

import (
	"context"
	"fmt"
)

// Store opens transactions against a relational database.
// SQL handed to a Store uses '?' placeholders; implementations rebind them
// to their driver's style.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
	Name() string
}

// Tx is one open transaction. Rollback after Commit must be a no-op.
type Tx interface {
	Exec(ctx context.Context, query string, args ...any) (int64, error)
	QueryRow(ctx context.Context, query string, args ...any) Row
	// ExecBatch issues query once per row as a single batched operation.
	ExecBatch(ctx context.Context, query string, rows [][]any) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Row is the result of QueryRow. Scan returns ErrNoRows when empty.
type Row interface {
	Scan(dest ...any) error
}

// FileIDGenerator assigns identifiers to new audit records.
type FileIDGenerator interface {
	NextFileID(ctx context.Context, tx Tx) (int64, error)
}

// SequenceIDs draws file ids from a database sequence. Query is the
// dialect's statement for the next value, e.g. "select nextval('seq_audit')".
type SequenceIDs struct {
	Query string
}

func (g SequenceIDs) NextFileID(ctx context.Context, tx Tx) (int64, error) {
	var id int64
	if err := tx.QueryRow(ctx, g.Query).Scan(&id); err != nil {
		return 0, fmt.Errorf("next file id: %w", err)
	}
	return id, nil
}

// MaxPlusOneIDs derives the next id from the ledger table itself. It is only
// safe with a single writer, which is how the loader runs.
type MaxPlusOneIDs struct {
	Table  string
	Column string
}

func (g MaxPlusOneIDs) NextFileID(ctx context.Context, tx Tx) (int64, error) {
	col := g.Column
	if col == "" {
		col = "file_id"
	}
	var id int64
	q := fmt.Sprintf("select coalesce(max(%s), 0) + 1 from %s", col, g.Table)
	if err := tx.QueryRow(ctx, q).Scan(&id); err != nil {
		return 0, fmt.Errorf("next file id: %w", err)
	}
	return id, nil
}

// SequenceQuery returns the next-value statement for seq in the given driver's dialect.
func SequenceQuery(driver, seq string) string {
	switch driver {
	case "snowflake":
		return fmt.Sprintf("select %s.nextval", seq)
	case "sqlserver", "mssql":
		return fmt.Sprintf("select next value for %s", seq)
	default:
		return fmt.Sprintf("select nextval('%s')", seq)
	}
}
