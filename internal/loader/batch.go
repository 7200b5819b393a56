package loader

import (
	"context"
	"fmt"
)

// DefaultBatchThreshold applies when neither the mapping file nor the
// environment sets one.
const DefaultBatchThreshold = 1000

// BatchWriter buffers insert tuples and sends them to the open transaction
// in batches of threshold rows.
type BatchWriter struct {
	tx        Tx
	query     string
	threshold int
	rows      [][]any

	flushes int
	written int64
}

func NewBatchWriter(tx Tx, query string, threshold int) *BatchWriter {
	if threshold <= 0 {
		threshold = DefaultBatchThreshold
	}
	return &BatchWriter{
		tx:        tx,
		query:     query,
		threshold: threshold,
		rows:      make([][]any, 0, threshold),
	}
}

// Add buffers row and flushes once the buffer reaches the threshold.
func (w *BatchWriter) Add(ctx context.Context, row []any) error {
	w.rows = append(w.rows, row)
	if len(w.rows) >= w.threshold {
		return w.Flush(ctx)
	}
	return nil
}

// Flush sends buffered rows. Flushing an empty buffer does nothing.
func (w *BatchWriter) Flush(ctx context.Context) error {
	if len(w.rows) == 0 {
		return nil
	}
	if err := w.tx.ExecBatch(ctx, w.query, w.rows); err != nil {
		return storeError("insert batch", fmt.Errorf("%d rows: %w", len(w.rows), err))
	}
	w.flushes++
	w.written += int64(len(w.rows))
	clear(w.rows)
	w.rows = w.rows[:0]
	return nil
}

// Pending is the number of buffered rows not yet flushed.
func (w *BatchWriter) Pending() int { return len(w.rows) }

// Flushes is the number of non-empty flushes so far.
func (w *BatchWriter) Flushes() int { return w.flushes }

// Written is the number of rows sent to the store so far.
func (w *BatchWriter) Written() int64 { return w.written }
