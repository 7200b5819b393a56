package loader

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestRowMapper(t *testing.T) {
	tests := []struct {
		name     string
		columns  []string
		sourceID *int64
		raw      []string
		want     []any
	}{
		{
			name:    "projection",
			columns: []string{"a", "b"},
			raw:     []string{"1", "2"},
			want:    []any{"1", "2"},
		},
		{
			name:    "skip sentinel",
			columns: []string{"a", "", "c"},
			raw:     []string{"1", "2", "3"},
			want:    []any{"1", "3"},
		},
		{
			name:    "missing trailing fields",
			columns: []string{"a", "b", "c"},
			raw:     []string{"1"},
			want:    []any{"1", "", ""},
		},
		{
			name:    "extra fields ignored",
			columns: []string{"a"},
			raw:     []string{"1", "2", "3"},
			want:    []any{"1"},
		},
		{
			name:     "synthetic columns",
			columns:  []string{"a", ""},
			sourceID: int64p(9),
			raw:      []string{"1", "2"},
			want:     []any{"1", int64(9), int64(4), int64(202401010000000001)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewRowMapper(tt.columns, tt.sourceID)
			got := m.Map(tt.raw, 4, 202401010000000001)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Map() mismatch (-want +got):\n%s", diff)
			}
			if len(got) != m.Width() {
				t.Errorf("len = %d, Width() = %d", len(got), m.Width())
			}
		})
	}
}

func TestBatchWriter(t *testing.T) {
	st := newFakeStore("db")
	tx, _ := st.Begin(context.Background())
	w := NewBatchWriter(tx, "insert into t (a) values (?)", 2)
	ctx := context.Background()

	if err := w.Flush(ctx); err != nil {
		t.Fatalf("empty Flush() error = %v", err)
	}
	if len(st.batches) != 0 {
		t.Errorf("empty flush issued a batch")
	}

	for i := 0; i < 3; i++ {
		if err := w.Add(ctx, []any{i}); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
	}
	if w.Pending() != 1 || w.Flushes() != 1 || w.Written() != 2 {
		t.Errorf("pending/flushes/written = %d/%d/%d, want 1/1/2", w.Pending(), w.Flushes(), w.Written())
	}
	if err := w.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if diff := cmp.Diff([]int{2, 1}, st.batches); diff != "" {
		t.Errorf("batches mismatch (-want +got):\n%s", diff)
	}

	ftx := tx.(*fakeTx)
	want := [][]any{{0}, {1}, {2}}
	if diff := cmp.Diff(want, ftx.data.tables["t"]); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestBatchWriter_DefaultThreshold(t *testing.T) {
	w := NewBatchWriter(nil, "q", 0)
	if w.threshold != DefaultBatchThreshold {
		t.Errorf("threshold = %d, want %d", w.threshold, DefaultBatchThreshold)
	}
}

func TestLedger(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore("db")
	tx, _ := st.Begin(ctx)
	l := Ledger{IDs: MaxPlusOneIDs{Table: DefaultAuditTable}}
	key := AuditKey{
		SourceID:      int64p(5),
		FileName:      "f.txt",
		TableName:     "t",
		LoadType:      "I",
		EffectiveDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	if _, found, err := l.Lookup(ctx, tx, key); err != nil || found {
		t.Fatalf("Lookup() on empty ledger = found %v, err %v", found, err)
	}

	id, err := l.Insert(ctx, tx, key)
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	got, found, err := l.Lookup(ctx, tx, key)
	if err != nil || !found || got != id {
		t.Fatalf("Lookup() = %d, %v, %v; want %d, true, nil", got, found, err, id)
	}

	other := key
	other.SourceID = nil
	if _, found, _ := l.Lookup(ctx, tx, other); found {
		t.Error("Lookup() without source id matched a record with one")
	}

	ftx := tx.(*fakeTx)
	ftx.data.audit[0].flag = "Y"
	if err := l.Reset(ctx, tx, id); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if ftx.data.audit[0].flag != "N" {
		t.Errorf("flag = %q, want N", ftx.data.audit[0].flag)
	}
}

func TestLedger_InsertWithoutGenerator(t *testing.T) {
	st := newFakeStore("db")
	tx, _ := st.Begin(context.Background())
	if _, err := (Ledger{}).Insert(context.Background(), tx, AuditKey{}); KindOf(err) != KindConfig {
		t.Errorf("Insert() error = %v, want config error", err)
	}
}

func TestSequenceQuery(t *testing.T) {
	tests := []struct {
		driver, want string
	}{
		{"pgxpool", "select nextval('seq_audit')"},
		{"postgres", "select nextval('seq_audit')"},
		{"snowflake", "select seq_audit.nextval"},
		{"sqlserver", "select next value for seq_audit"},
	}
	for _, tt := range tests {
		if got := SequenceQuery(tt.driver, "seq_audit"); got != tt.want {
			t.Errorf("SequenceQuery(%q) = %q, want %q", tt.driver, got, tt.want)
		}
	}
}

func TestFormatting(t *testing.T) {
	if got := formatCount(1234567); got != "1,234,567" {
		t.Errorf("formatCount = %q", got)
	}
	if got := formatElapsed(time.Hour + 2*time.Minute + 3*time.Second + 45*time.Millisecond); got != "01:02:03.045" {
		t.Errorf("formatElapsed = %q", got)
	}
	if got := formatRate(300, 2*time.Second); got != "150.00" {
		t.Errorf("formatRate = %q", got)
	}
	if got := formatRate(10, 0); got != "0.00" {
		t.Errorf("formatRate(0 duration) = %q", got)
	}
}
