package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/JonMunkholm/fileloader/internal/config"
	"github.com/JonMunkholm/fileloader/internal/loader"
	"github.com/JonMunkholm/fileloader/internal/logging"
	"github.com/JonMunkholm/fileloader/internal/report"
	"github.com/JonMunkholm/fileloader/internal/store"
)

// Exit codes.
const (
	exitOK     = 0
	exitFailed = 1 // at least one load rolled back, or a store was unreachable
	exitUsage  = 2 // bad flags, environment or mapping file
)

const usage = `Usage: fileloader -s <specfile>.json (-d <directory> | -f <file>) [-r] [-t <interval>]
where options include:
`

func main() {
	// Load .env file if it exists; variables already set take precedence
	if err := godotenv.Load(); err == nil {
		slog.Debug("loaded .env file")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type options struct {
	spec       string
	directory  string
	file       string
	replace    bool
	trace      int64
	summary    string
	archiveDir string
}

func parseFlags(args []string, errOut io.Writer) (options, error) {
	var opts options

	fs := flag.NewFlagSet("fileloader", flag.ContinueOnError)
	fs.SetOutput(errOut)
	fs.Usage = func() {
		fmt.Fprint(errOut, usage)
		fs.PrintDefaults()
	}

	fs.StringVarP(&opts.spec, "spec", "s", "", "specification file in JSON format")
	fs.StringVarP(&opts.directory, "directory", "d", "", "directory containing data files to be loaded")
	fs.StringVarP(&opts.file, "file", "f", "", "individual file to be loaded")
	fs.BoolVarP(&opts.replace, "replace", "r", false, "replace data previously loaded from file with the same name")
	fs.Int64VarP(&opts.trace, "trace", "t", -1, "log progress every N records")
	fs.StringVar(&opts.summary, "summary", "", "write a JSON run summary to this path")
	fs.StringVar(&opts.archiveDir, "archive-dir", "", "move fully loaded files into this directory")

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if fs.NArg() > 0 {
		fs.Usage()
		return opts, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	if opts.spec == "" || (opts.directory == "") == (opts.file == "") {
		fs.Usage()
		return opts, errors.New("--spec and exactly one of --directory or --file are required")
	}
	return opts, nil
}

func run(ctx context.Context, args []string, out, errOut io.Writer) int {
	opts, err := parseFlags(args, errOut)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintln(errOut, "error:", err)
		return exitUsage
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return exitUsage
	}

	// Setup structured logging based on config
	logging.Setup(out, cfg.Logging.Level, cfg.Logging.Format)

	ctx, runID := logging.ContextWithRunID(ctx)
	log := logging.FromContext(ctx)

	mapping, err := config.LoadMapping(opts.spec)
	if err != nil {
		log.Error("failed to load mapping", "spec", opts.spec, "error", err)
		return exitUsage
	}
	loc, err := cfg.Load.Location()
	if err != nil {
		log.Error("invalid timezone", "error", err)
		return exitUsage
	}

	paths, err := sourceFiles(opts)
	if err != nil {
		log.Error("cannot read source files", "error", err)
		return exitUsage
	}

	log.Info("configuration loaded",
		"spec", opts.spec,
		"mappings", len(mapping.Mappings),
		"files", len(paths),
		"replace", opts.replace,
		"audit_driver", mapping.Audit().DriverName(),
		"target_driver", mapping.Target().DriverName(),
	)

	// Connect to the audit and target stores
	audit, err := store.Open(ctx, mapping.Audit(), cfg.Database)
	if err != nil {
		log.Error("failed to connect to audit store", "error", err)
		return exitFailed
	}
	defer audit.Close()

	target := audit
	if !mapping.SharedStore() {
		if target, err = store.Open(ctx, mapping.Target(), cfg.Database); err != nil {
			log.Error("failed to connect to target store", "error", err)
			return exitFailed
		}
		defer target.Close()
	}

	threshold := cfg.Load.BatchThreshold
	if mapping.BatchThreshold > 0 {
		threshold = mapping.BatchThreshold
	}
	trace := cfg.Load.TraceInterval
	if opts.trace >= 0 {
		trace = opts.trace
	}

	fl, err := loader.FromMapping(mapping, loader.Options{
		Audit:  audit.Store,
		Target: target.Store,
		Ledger: loader.Ledger{
			Table: mapping.AuditTable,
			IDs:   store.IDGenerator(audit.Driver, mapping.AuditIDStrategy, mapping.AuditSequence, mapping.AuditTable),
		},
		BatchThreshold: threshold,
		Replace:        opts.replace,
		Trace:          trace,
		Location:       loc,
	})
	if err != nil {
		log.Error("invalid mapping", "error", err, "code", loader.Describe(err).Code)
		return exitUsage
	}

	archiveDir := cfg.Load.ArchiveDir
	if opts.archiveDir != "" {
		archiveDir = opts.archiveDir
	}
	fl.SetArchiveDir(archiveDir)

	started := time.Now()
	results := fl.LoadAll(ctx, paths)
	finished := time.Now()

	summary := report.New(runID, opts.spec, started, finished, results)
	log.Info("run finished",
		"committed", summary.Committed,
		"skipped", summary.Skipped,
		"rolled_back", summary.RolledBack,
		"rows", summary.Rows,
		"elapsed", finished.Sub(started).Round(time.Millisecond),
	)

	summaryPath := cfg.Load.SummaryPath
	if opts.summary != "" {
		summaryPath = opts.summary
	}
	if summaryPath != "" {
		if err := report.Write(summaryPath, summary); err != nil {
			log.Error("failed to write run summary", "path", summaryPath, "error", err)
		}
	}

	if loader.AnyFailed(results) || ctx.Err() != nil {
		return exitFailed
	}
	return exitOK
}

// sourceFiles resolves --file or --directory to the list of files to offer.
func sourceFiles(opts options) ([]string, error) {
	if opts.file != "" {
		return []string{opts.file}, nil
	}
	fi, err := os.Stat(opts.directory)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("%s does not appear to be a directory", opts.directory)
	}
	return loader.ListFiles(opts.directory)
}
