package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/JonMunkholm/fileloader/internal/config"
	"github.com/JonMunkholm/fileloader/internal/logging"
)

// ContextCheckInterval is how often (in rows) a load checks for cancellation.
var ContextCheckInterval int64 = 100

// State is where a file load ended up.
type State int

const (
	StateIdle State = iota
	StateDeciding
	StateLoading
	StateCommitted
	StateSkipped
	StateRolledBack
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDeciding:
		return "deciding"
	case StateLoading:
		return "loading"
	case StateCommitted:
		return "committed"
	case StateSkipped:
		return "skipped"
	case StateRolledBack:
		return "rolled_back"
	default:
		return "unknown"
	}
}

// LoadResult reports one file loaded by one specification.
type LoadResult struct {
	File     string
	Table    string
	State    State
	FileID   int64
	Rows     int64 // rows read and handed to the batch writer
	Deleted  int64 // rows removed by a replace-load
	Duration time.Duration
	Err      error
}

// Options are the run-wide settings shared by every specification.
type Options struct {
	// Audit and Target may be the same Store, in which case the audit
	// write and the inserts share one transaction. With separate stores the
	// target commits first; if the audit commit then fails, the rows stay
	// without a ledger entry and the file loads again on the next run.
	// Share one store when a file must never be loaded twice.
	Audit  Store
	Target Store
	Ledger Ledger

	BatchThreshold int
	Replace        bool
	Trace          int64          // progress log interval in rows; 0 disables
	Location       *time.Location // for dates parsed from file names
	Now            func() time.Time
}

// FileSpecification loads files matching one pattern into one table.
type FileSpecification struct {
	search    *regexp.Regexp
	match     *regexp.Regexp
	rule      MetadataRule
	sourceID  *int64
	table     string
	columns   []string
	syntax    Syntax
	mapper    RowMapper
	insertSQL string
	threshold int
	replace   bool
	trace     int64

	audit  Store
	target Store
	ledger Ledger
	now    func() time.Time
}

// NewFileSpecification compiles m. Errors are of kind KindConfig.
func NewFileSpecification(m config.FileMapping, opts Options) (*FileSpecification, error) {
	if opts.Audit == nil || opts.Target == nil {
		return nil, configError("new file specification", errors.New("audit and target stores are required"))
	}

	search, err := regexp.Compile("(?i)" + m.SourcePattern)
	if err != nil {
		return nil, configError("new file specification", fmt.Errorf("sourcePattern: %w", err))
	}
	match, err := regexp.Compile("(?i)^(?:" + m.SourcePattern + ")$")
	if err != nil {
		return nil, configError("new file specification", fmt.Errorf("sourcePattern: %w", err))
	}

	if !config.ValidIdentifier(m.TargetTable) {
		return nil, configError("new file specification", fmt.Errorf("targetTable %q is not a valid identifier", m.TargetTable))
	}
	named := 0
	for _, c := range m.TargetColumns {
		if c == "" {
			continue
		}
		if !config.ValidIdentifier(c) {
			return nil, configError("new file specification", fmt.Errorf("target column %q is not a valid identifier", c))
		}
		named++
	}
	if named == 0 {
		return nil, configError("new file specification", errors.New("targetColumns must name at least one column"))
	}

	rule := MetadataRule{
		Pattern:   search,
		DateGroup: m.DateGroup,
		TypeGroup: m.TypeGroup,
		Location:  opts.Location,
	}
	if m.DateFormat != "" {
		layout, err := DateLayout(m.DateFormat)
		if err != nil {
			return nil, configError("new file specification", err)
		}
		rule.DateLayout = layout
	} else if m.DateGroup > 0 {
		return nil, configError("new file specification", errors.New("dateFormat is required when dateGroup is set"))
	}

	syntax := DefaultSyntax()
	syntax.Separator = firstRune(m.ParserSeparator, syntax.Separator)
	syntax.Quote = firstRune(m.ParserQuotechar, syntax.Quote)
	syntax.Escape = firstRune(m.ParserEscape, syntax.Escape)
	syntax.SkipLines = m.ParserLine
	syntax.StrictQuotes = m.ParserStrictQuotes
	syntax.IgnoreLeadingWhiteSpace = m.IgnoreLeadingWhiteSpace()
	syntax.SanitizeUTF8 = m.ParserSanitizeUTF8
	syntax.SkipBlankLines = m.ParserSkipBlankLines

	threshold := opts.BatchThreshold
	if m.BatchThreshold > 0 {
		threshold = m.BatchThreshold
	}
	if threshold <= 0 {
		threshold = DefaultBatchThreshold
	}

	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().Truncate(time.Millisecond) }
	}

	columns := append([]string(nil), m.TargetColumns...)
	s := &FileSpecification{
		search:    search,
		match:     match,
		rule:      rule,
		sourceID:  m.SourceID,
		table:     m.TargetTable,
		columns:   columns,
		syntax:    syntax,
		mapper:    NewRowMapper(columns, m.SourceID),
		threshold: threshold,
		replace:   opts.Replace,
		trace:     opts.Trace,
		audit:     opts.Audit,
		target:    opts.Target,
		ledger:    opts.Ledger,
		now:       now,
	}
	s.insertSQL = s.buildInsert()
	return s, nil
}

func firstRune(s string, def rune) rune {
	if s == "" {
		return def
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r
}

func (s *FileSpecification) buildInsert() string {
	cols := make([]string, 0, s.mapper.Width())
	for _, c := range s.columns {
		if c != "" {
			cols = append(cols, c)
		}
	}
	if s.sourceID != nil {
		cols = append(cols, "source_id", "file_id", "record_id")
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	return fmt.Sprintf("insert into %s (%s) values (%s)", s.table, strings.Join(cols, ", "), marks)
}

// Table is the target table name.
func (s *FileSpecification) Table() string { return s.table }

// InsertSQL is the parameterized insert statement, with '?' placeholders.
func (s *FileSpecification) InsertSQL() string { return s.insertSQL }

// ParamCount is the number of parameters bound per row.
func (s *FileSpecification) ParamCount() int { return s.mapper.Width() }

// Match reports whether the whole file name matches the source pattern,
// ignoring case.
func (s *FileSpecification) Match(name string) bool {
	return s.match.MatchString(name)
}

/* ----------------------------------------
	Transaction scope
---------------------------------------- */

// txScope pairs the audit and target transactions of one file load.
type txScope struct {
	target Tx
	audit  Tx
	shared bool
}

func (s *FileSpecification) begin(ctx context.Context) (*txScope, error) {
	target, err := s.target.Begin(ctx)
	if err != nil {
		return nil, storeError("begin transaction", fmt.Errorf("%s: %w", s.target.Name(), err))
	}
	if s.audit == s.target {
		return &txScope{target: target, audit: target, shared: true}, nil
	}
	audit, err := s.audit.Begin(ctx)
	if err != nil {
		_ = target.Rollback(ctx)
		return nil, storeError("begin transaction", fmt.Errorf("%s: %w", s.audit.Name(), err))
	}
	return &txScope{target: target, audit: audit}, nil
}

// commit commits the target work before the audit record, so a failure
// between the two leaves the file eligible for reloading.
func (t *txScope) commit(ctx context.Context) error {
	if err := t.target.Commit(ctx); err != nil {
		return storeError("commit", err)
	}
	if t.shared {
		return nil
	}
	if err := t.audit.Commit(ctx); err != nil {
		return storeError("commit audit record", fmt.Errorf("target rows are committed without an audit record: %w", err))
	}
	return nil
}

// rollback is a no-op for transactions already committed.
func (t *txScope) rollback(ctx context.Context) {
	// Use a fresh context so cancellation does not prevent the rollback.
	rctx := context.WithoutCancel(ctx)
	_ = t.target.Rollback(rctx)
	if !t.shared {
		_ = t.audit.Rollback(rctx)
	}
}

/* ----------------------------------------
	Load
---------------------------------------- */

// Load runs one file through the audit decision and, when it is due, streams
// it into the target table inside one transaction. Failures roll back every
// statement of the load, including the audit write, and are reported in the
// result rather than returned.
func (s *FileSpecification) Load(ctx context.Context, path string) LoadResult {
	name := filepath.Base(path)
	res := LoadResult{File: name, Table: s.table, State: StateIdle}
	log := logging.WithFields(ctx, "file", name, "table", s.table)
	start := time.Now()

	log.Info("processing source file")

	res.State = StateDeciding
	err := s.load(ctx, path, name, &res, log, start)
	res.Duration = time.Since(start)

	if err != nil {
		res.State = StateRolledBack
		res.Err = err
		log.Error("load rolled back",
			"row", res.Rows,
			"code", Describe(err).Code,
			"error", err,
		)
	}

	log.Info("completed processing",
		"state", res.State.String(),
		"records", formatCount(res.Rows),
		"elapsed", formatElapsed(res.Duration),
		"rps", formatRate(res.Rows, res.Duration),
	)
	return res
}

func (s *FileSpecification) load(ctx context.Context, path, name string, res *LoadResult, log *slog.Logger, start time.Time) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("operation cancelled: %w", err)
	}

	md, err := ExtractMetadata(name, s.rule, s.now())
	if err != nil {
		return err
	}

	scope, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer scope.rollback(ctx)

	// 1. Audit decision
	key := AuditKey{
		SourceID:      s.sourceID,
		FileName:      name,
		TableName:     s.table,
		LoadType:      md.LoadType,
		EffectiveDate: md.EffectiveDate,
	}
	fileID, found, err := s.ledger.Lookup(ctx, scope.audit, key)
	if err != nil {
		return err
	}

	switch {
	case found && !s.replace:
		res.FileID = fileID
		res.State = StateSkipped
		log.Info("skipping previously loaded file", "file_id", fileID)
		return nil

	case found:
		deleted, err := s.ledger.DeleteTarget(ctx, scope.target, s.table, fileID, s.sourceID != nil)
		if err != nil {
			return err
		}
		res.Deleted = deleted
		log.Info("deleted existing records", "file_id", fileID, "records", formatCount(deleted))
		if err := s.ledger.Reset(ctx, scope.audit, fileID); err != nil {
			return err
		}

	default:
		if fileID, err = s.ledger.Insert(ctx, scope.audit, key); err != nil {
			return err
		}
		log.Debug("inserted audit record", "file_id", fileID)
	}
	res.FileID = fileID
	res.State = StateLoading

	// 2. Stream rows
	f, err := os.Open(path)
	if err != nil {
		return ioError("open source", err)
	}
	defer f.Close()

	var size int64
	if fi, err := f.Stat(); err == nil {
		size = fi.Size()
	}

	reader := NewDelimitedReader(f, size, s.syntax)
	writer := NewBatchWriter(scope.target, s.insertSQL, s.threshold)
	recordID := RecordIDSeed(md.EffectiveDate)

	for {
		if res.Rows%ContextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("operation cancelled at record %d: %w", res.Rows, err)
			}
		}

		raw, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		recordID++
		if err := writer.Add(ctx, s.mapper.Map(raw, fileID, recordID)); err != nil {
			return fmt.Errorf("record at line %d: %w", reader.Line(), err)
		}
		res.Rows++

		if s.trace > 0 && res.Rows%s.trace == 0 {
			elapsed := time.Since(start)
			log.Info("processed records",
				"records", formatCount(res.Rows),
				"elapsed", formatElapsed(elapsed),
				"rps", formatRate(res.Rows, elapsed),
				"bytes", formatCount(reader.BytesRead()),
				"percent", reader.Percent(),
			)
		}
	}

	// 3. Final flush and commit
	if err := writer.Flush(ctx); err != nil {
		return err
	}
	if err := scope.commit(ctx); err != nil {
		return err
	}

	res.State = StateCommitted
	log.Debug("committed", "file_id", fileID, "batches", writer.Flushes())
	return nil
}
