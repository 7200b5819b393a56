package loader

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// fakeStore is an in-memory Store that understands the handful of
// statements the loader issues. Each transaction works on a copy of the
// committed data, so rollback is simply discarding the copy.
type fakeStore struct {
	name   string
	data   fakeData
	nextID int64

	batches     []int // size of every ExecBatch call, committed or not
	failOnBatch int   // 1-based ExecBatch call that fails; 0 never
	failBegin   error
	failCommit  error

	begins    int
	commits   int
	rollbacks int
	events    *[]string // shared commit log across stores, optional
}

type auditRow struct {
	fileID int64
	source any
	file   string
	table  string
	typ    string
	date   time.Time
	flag   string
}

type fakeData struct {
	audit  []auditRow
	tables map[string][][]any
}

func (d fakeData) clone() fakeData {
	out := fakeData{
		audit:  append([]auditRow(nil), d.audit...),
		tables: make(map[string][][]any, len(d.tables)),
	}
	for k, v := range d.tables {
		out.tables[k] = append([][]any(nil), v...)
	}
	return out
}

func newFakeStore(name string) *fakeStore {
	return &fakeStore{name: name, data: fakeData{tables: map[string][][]any{}}}
}

func (s *fakeStore) Name() string { return s.name }

func (s *fakeStore) Begin(ctx context.Context) (Tx, error) {
	if s.failBegin != nil {
		return nil, s.failBegin
	}
	s.begins++
	return &fakeTx{s: s, data: s.data.clone()}, nil
}

func (s *fakeStore) rows(table string) [][]any { return s.data.tables[table] }

type fakeTx struct {
	s    *fakeStore
	data fakeData
	done bool
}

func (t *fakeTx) Exec(ctx context.Context, q string, args ...any) (int64, error) {
	switch {
	case strings.HasPrefix(q, "insert into audit_file"):
		t.data.audit = append(t.data.audit, auditRow{
			fileID: args[0].(int64),
			source: args[1],
			file:   args[2].(string),
			table:  args[3].(string),
			typ:    args[4].(string),
			date:   args[5].(time.Time),
			flag:   "N",
		})
		return 1, nil

	case strings.HasPrefix(q, "update audit_file set processed_flag = 'N'"):
		var n int64
		for i := range t.data.audit {
			if t.data.audit[i].fileID == args[0].(int64) {
				t.data.audit[i].flag = "N"
				n++
			}
		}
		return n, nil

	case strings.HasPrefix(q, "delete from "):
		table := strings.Fields(q)[2]
		rows := t.data.tables[table]
		if len(args) == 0 {
			delete(t.data.tables, table)
			return int64(len(rows)), nil
		}
		var kept [][]any
		for _, r := range rows {
			if r[len(r)-2] != args[0] {
				kept = append(kept, r)
			}
		}
		t.data.tables[table] = kept
		return int64(len(rows) - len(kept)), nil
	}
	return 0, fmt.Errorf("fake store: unsupported statement %q", q)
}

func (t *fakeTx) QueryRow(ctx context.Context, q string, args ...any) Row {
	switch {
	case strings.HasPrefix(q, "select nextval"), strings.HasPrefix(q, "select coalesce"):
		t.s.nextID++
		return fakeRow{val: t.s.nextID}

	case strings.HasPrefix(q, "select file_id from audit_file"):
		var source any
		if !strings.Contains(q, "source_id is null") {
			source, args = args[0], args[1:]
		}
		for _, a := range t.data.audit {
			if a.source == source && a.file == args[0] && a.table == args[1] &&
				a.typ == args[2] && a.date.Equal(args[3].(time.Time)) {
				return fakeRow{val: a.fileID}
			}
		}
		return fakeRow{err: ErrNoRows}
	}
	return fakeRow{err: fmt.Errorf("fake store: unsupported query %q", q)}
}

func (t *fakeTx) ExecBatch(ctx context.Context, q string, rows [][]any) error {
	t.s.batches = append(t.s.batches, len(rows))
	if t.s.failOnBatch == len(t.s.batches) {
		return errors.New("injected batch failure")
	}
	table := strings.Fields(q)[2]
	for _, r := range rows {
		t.data.tables[table] = append(t.data.tables[table], append([]any(nil), r...))
	}
	return nil
}

func (t *fakeTx) Commit(ctx context.Context) error {
	if t.done {
		return errors.New("fake store: transaction already closed")
	}
	t.done = true
	if t.s.failCommit != nil {
		return t.s.failCommit
	}
	t.s.data = t.data
	t.s.commits++
	if t.s.events != nil {
		*t.s.events = append(*t.s.events, "commit "+t.s.name)
	}
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	t.s.rollbacks++
	return nil
}

type fakeRow struct {
	val int64
	err error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*int64) = r.val
	return nil
}
