package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/JonMunkholm/fileloader/internal/config"
	"github.com/JonMunkholm/fileloader/internal/logging"
)

// FileLoader routes files to every matching specification, in the order the
// mappings were defined. A failure in one specification never stops the
// others or the run.
type FileLoader struct {
	specs      []*FileSpecification
	archiveDir string
}

// NewFileLoader returns a loader over specs.
func NewFileLoader(specs ...*FileSpecification) *FileLoader {
	return &FileLoader{specs: specs}
}

// FromMapping builds one specification per mapping entry.
func FromMapping(m *config.Mapping, opts Options) (*FileLoader, error) {
	specs := make([]*FileSpecification, 0, len(m.Mappings))
	for i, fm := range m.Mappings {
		spec, err := NewFileSpecification(fm, opts)
		if err != nil {
			return nil, fmt.Errorf("mappings[%d]: %w", i, err)
		}
		specs = append(specs, spec)
	}
	return NewFileLoader(specs...), nil
}

// SetArchiveDir makes LoadAll move each file into dir once every matching
// specification committed or skipped it.
func (l *FileLoader) SetArchiveDir(dir string) { l.archiveDir = dir }

// Specs returns the specifications in routing order.
func (l *FileLoader) Specs() []*FileSpecification { return l.specs }

// LoadFile offers path to every specification and loads it with each one
// that matches.
func (l *FileLoader) LoadFile(ctx context.Context, path string) []LoadResult {
	name := filepath.Base(path)
	var results []LoadResult

	for _, spec := range l.specs {
		if !spec.Match(name) {
			continue
		}
		res := spec.Load(ctx, path)
		if res.Err != nil {
			logging.FromContext(ctx).Error("failed to load file",
				"file", name,
				"table", res.Table,
				"records", res.Rows,
				"code", Describe(res.Err).Code,
				"error", res.Err,
			)
		}
		results = append(results, res)
	}

	if len(results) == 0 {
		logging.FromContext(ctx).Debug("no mapping matches file", "file", name)
	}
	return results
}

// LoadAll loads paths in order. It stops starting new files once ctx is done.
func (l *FileLoader) LoadAll(ctx context.Context, paths []string) []LoadResult {
	var results []LoadResult
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			logging.FromContext(ctx).Warn("run interrupted; remaining files not attempted",
				"next_file", filepath.Base(path),
				"error", err,
			)
			break
		}

		res := l.LoadFile(ctx, path)
		results = append(results, res...)

		if l.archiveDir != "" && len(res) > 0 && !AnyFailed(res) {
			if err := archive(path, l.archiveDir); err != nil {
				logging.FromContext(ctx).Warn("failed to archive file", "file", filepath.Base(path), "error", err)
			}
		}
	}
	return results
}

// AnyFailed reports whether any result rolled back.
func AnyFailed(results []LoadResult) bool {
	for _, r := range results {
		if r.State == StateRolledBack {
			return true
		}
	}
	return false
}

// ListFiles returns the regular files directly inside dir, sorted by name.
func ListFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, ioError("list directory", err)
	}

	var paths []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

func archive(path, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create archive directory: %w", err)
	}
	dst := filepath.Join(dir, filepath.Base(path))
	if err := os.Rename(path, dst); err != nil {
		return fmt.Errorf("move %s: %w", filepath.Base(path), err)
	}
	return nil
}
