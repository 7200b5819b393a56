package loader

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/JonMunkholm/fileloader/internal/config"
)

func TestFileLoader_RoutesToEveryMatch(t *testing.T) {
	good := newFakeStore("good")
	bad := newFakeStore("bad")
	bad.failOnBatch = 1

	first := newTestSpec(t, scenarioMapping(), bad, nil)
	secondMapping := scenarioMapping()
	secondMapping.TargetTable = "test_copy"
	second := newTestSpec(t, secondMapping, good, nil)
	unrelated := newTestSpec(t, config.FileMapping{
		SourcePattern: `other_.*`,
		TargetTable:   "other",
		TargetColumns: []string{"v"},
	}, good, nil)

	fl := NewFileLoader(first, unrelated, second)
	path := writeFile(t, t.TempDir(), "TEST_01012024_Initial.txt", "a,b\n")

	results := fl.LoadFile(context.Background(), path)

	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if results[0].State != StateRolledBack || results[0].Table != "test_data" {
		t.Errorf("first result = %v/%s, want rolled_back/test_data", results[0].State, results[0].Table)
	}
	if results[1].State != StateCommitted || results[1].Table != "test_copy" {
		t.Errorf("second result = %v/%s, want committed/test_copy", results[1].State, results[1].Table)
	}
	if n := len(good.rows("test_copy")); n != 1 {
		t.Errorf("test_copy rows = %d, want 1", n)
	}
	if !AnyFailed(results) {
		t.Error("AnyFailed() = false, want true")
	}
}

func TestFileLoader_NoMatch(t *testing.T) {
	st := newFakeStore("db")
	fl := NewFileLoader(newTestSpec(t, scenarioMapping(), st, nil))
	path := writeFile(t, t.TempDir(), "unrelated.txt", "a,b\n")

	if results := fl.LoadFile(context.Background(), path); len(results) != 0 {
		t.Errorf("results = %d, want 0", len(results))
	}
	if st.begins != 0 {
		t.Errorf("begins = %d, want 0", st.begins)
	}
}

func TestFileLoader_LoadAllArchives(t *testing.T) {
	st := newFakeStore("db")
	st.failOnBatch = 2 // second file fails
	src := t.TempDir()
	archiveDir := filepath.Join(t.TempDir(), "Uploaded")

	ok := writeFile(t, src, "TEST_01012024_Initial.txt", "a,b\n")
	failed := writeFile(t, src, "TEST_01022024_Initial.txt", "c,d\n")
	ignored := writeFile(t, src, "notes.txt", "x\n")

	fl := NewFileLoader(newTestSpec(t, scenarioMapping(), st, nil))
	fl.SetArchiveDir(archiveDir)

	results := fl.LoadAll(context.Background(), []string{ok, failed, ignored})

	states := make([]State, len(results))
	for i, r := range results {
		states[i] = r.State
	}
	if diff := cmp.Diff([]State{StateCommitted, StateRolledBack}, states); diff != "" {
		t.Errorf("states mismatch (-want +got):\n%s", diff)
	}

	if _, err := os.Stat(filepath.Join(archiveDir, "TEST_01012024_Initial.txt")); err != nil {
		t.Errorf("committed file not archived: %v", err)
	}
	if _, err := os.Stat(failed); err != nil {
		t.Errorf("failed file should stay in place: %v", err)
	}
	if _, err := os.Stat(ignored); err != nil {
		t.Errorf("unmatched file should stay in place: %v", err)
	}
}

func TestFileLoader_LoadAllStopsWhenCancelled(t *testing.T) {
	st := newFakeStore("db")
	dir := t.TempDir()
	a := writeFile(t, dir, "TEST_01012024_Initial.txt", "a,b\n")
	b := writeFile(t, dir, "TEST_01022024_Initial.txt", "c,d\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fl := NewFileLoader(newTestSpec(t, scenarioMapping(), st, nil))
	if results := fl.LoadAll(ctx, []string{a, b}); len(results) != 0 {
		t.Errorf("results = %d, want 0", len(results))
	}
}

func TestFromMapping(t *testing.T) {
	st := newFakeStore("db")
	m := &config.Mapping{Mappings: []config.FileMapping{scenarioMapping(), scenarioMapping()}}

	fl, err := FromMapping(m, Options{Audit: st, Target: st})
	if err != nil {
		t.Fatalf("FromMapping() error = %v", err)
	}
	if len(fl.Specs()) != 2 {
		t.Errorf("specs = %d, want 2", len(fl.Specs()))
	}

	m.Mappings[1].TargetTable = "bad table"
	if _, err := FromMapping(m, Options{Audit: st, Target: st}); err == nil {
		t.Error("FromMapping() expected error for invalid table")
	}
}

func TestListFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.txt", "")
	writeFile(t, dir, "a.txt", "")
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}

	got, err := ListFiles(dir)
	if err != nil {
		t.Fatalf("ListFiles() error = %v", err)
	}
	want := []string{filepath.Join(dir, "a.txt"), filepath.Join(dir, "b.txt")}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("files mismatch (-want +got):\n%s", diff)
	}

	if _, err := ListFiles(filepath.Join(dir, "missing")); KindOf(err) != KindIO {
		t.Errorf("ListFiles(missing) error = %v, want io error", err)
	}
}
