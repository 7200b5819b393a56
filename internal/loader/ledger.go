package loader

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	DefaultAuditTable    = "audit_file"
	DefaultAuditSequence = "seq_audit"
)

// AuditKey identifies one load of a file into a table.
type AuditKey struct {
	SourceID      *int64 // nil when the mapping has no source id
	FileName      string
	TableName     string
	LoadType      string
	EffectiveDate time.Time
}

// Ledger reads and writes the audit table. Statements run on the
// transaction passed in so they commit or roll back with the load.
//
// The table has the columns
//
//	file_id, source_id, file_name, table_name, etl_type, etl_date, processed_flag
type Ledger struct {
	Table string
	IDs   FileIDGenerator
}

func (l Ledger) table() string {
	if l.Table == "" {
		return DefaultAuditTable
	}
	return l.Table
}

// Lookup returns the file id recorded for key. found is false when the file
// has never been loaded.
func (l Ledger) Lookup(ctx context.Context, tx Tx, key AuditKey) (fileID int64, found bool, err error) {
	args := []any{key.FileName, key.TableName, key.LoadType, key.EffectiveDate}
	source := "source_id is null"
	if key.SourceID != nil {
		source = "source_id = ?"
		args = append([]any{*key.SourceID}, args...)
	}
	q := fmt.Sprintf("select file_id from %s where %s and file_name = ? and table_name = ? and etl_type = ? and etl_date = ?",
		l.table(), source)

	err = tx.QueryRow(ctx, q, args...).Scan(&fileID)
	if errors.Is(err, ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, storeError("lookup audit record", err)
	}
	return fileID, true, nil
}

// Insert records a new load with processed flag 'N' and returns its file id.
func (l Ledger) Insert(ctx context.Context, tx Tx, key AuditKey) (int64, error) {
	if l.IDs == nil {
		return 0, configError("insert audit record", errors.New("no file id generator configured"))
	}
	fileID, err := l.IDs.NextFileID(ctx, tx)
	if err != nil {
		return 0, storeError("insert audit record", err)
	}

	var source any
	if key.SourceID != nil {
		source = *key.SourceID
	}
	q := fmt.Sprintf("insert into %s (file_id, source_id, file_name, table_name, etl_type, etl_date, processed_flag) values (?, ?, ?, ?, ?, ?, 'N')",
		l.table())
	if _, err := tx.Exec(ctx, q, fileID, source, key.FileName, key.TableName, key.LoadType, key.EffectiveDate); err != nil {
		return 0, storeError("insert audit record", err)
	}
	return fileID, nil
}

// Reset marks fileID as not processed ahead of a reload.
func (l Ledger) Reset(ctx context.Context, tx Tx, fileID int64) error {
	q := fmt.Sprintf("update %s set processed_flag = 'N' where file_id = ?", l.table())
	if _, err := tx.Exec(ctx, q, fileID); err != nil {
		return storeError("reset audit record", err)
	}
	return nil
}

// DeleteTarget removes previously loaded rows from table. Tables that carry
// a file_id column lose only that file's rows; otherwise the table is emptied.
func (l Ledger) DeleteTarget(ctx context.Context, tx Tx, table string, fileID int64, hasFileID bool) (int64, error) {
	q := "delete from " + table
	var args []any
	if hasFileID {
		q += " where file_id = ?"
		args = append(args, fileID)
	}
	n, err := tx.Exec(ctx, q, args...)
	if err != nil {
		return 0, storeError("delete existing rows", err)
	}
	return n, nil
}
