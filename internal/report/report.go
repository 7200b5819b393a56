// Package report writes the JSON summary of a load run.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/natefinch/atomic"

	"github.com/JonMunkholm/fileloader/internal/loader"
)

// Summary is the document written by Write.
type Summary struct {
	RunID      string    `json:"run_id"`
	Spec       string    `json:"spec"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Committed  int       `json:"committed"`
	Skipped    int       `json:"skipped"`
	RolledBack int       `json:"rolled_back"`
	Rows       int64     `json:"rows"`
	Loads      []Load    `json:"loads"`
}

// Load is one file handled by one mapping.
type Load struct {
	File       string `json:"file"`
	Table      string `json:"table"`
	State      string `json:"state"`
	FileID     int64  `json:"file_id,omitempty"`
	Rows       int64  `json:"rows"`
	Deleted    int64  `json:"deleted,omitempty"`
	DurationMS int64  `json:"duration_ms"`
	Code       string `json:"code,omitempty"`
	Error      string `json:"error,omitempty"`
}

// New tallies results into a summary.
func New(runID, spec string, started, finished time.Time, results []loader.LoadResult) Summary {
	s := Summary{
		RunID:      runID,
		Spec:       spec,
		StartedAt:  started,
		FinishedAt: finished,
		Loads:      make([]Load, 0, len(results)),
	}
	for _, r := range results {
		l := Load{
			File:       r.File,
			Table:      r.Table,
			State:      r.State.String(),
			FileID:     r.FileID,
			Rows:       r.Rows,
			Deleted:    r.Deleted,
			DurationMS: r.Duration.Milliseconds(),
		}
		switch r.State {
		case loader.StateCommitted:
			s.Committed++
			s.Rows += r.Rows
		case loader.StateSkipped:
			s.Skipped++
		case loader.StateRolledBack:
			s.RolledBack++
		}
		if r.Err != nil {
			l.Code = loader.Describe(r.Err).Code
			l.Error = r.Err.Error()
		}
		s.Loads = append(s.Loads, l)
	}
	return s
}

// Write stores s at path. Readers see either the previous file or the
// complete new one.
func Write(path string, s Summary) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	data = append(data, '\n')
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}
