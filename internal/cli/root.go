// Package cli implements the csvcure command line: the same inspections and
// repairs as the HTTP service, run against files on disk.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/csvcure/internal/config"
	"github.com/JonMunkholm/csvcure/internal/core"
	"github.com/JonMunkholm/csvcure/internal/ingest"
	"github.com/JonMunkholm/csvcure/internal/logging"
	"github.com/JonMunkholm/csvcure/internal/store"
)

// app holds the state shared by every subcommand: global flags plus the
// service built from them in PersistentPreRunE.
type app struct {
	// flags
	csvDelimiter string
	encoding     string
	noHeader     bool
	columnNames  []string
	journalPath  string
	noJournal    bool
	logLevel     string

	cfg          *config.Config
	logger       *slog.Logger
	service      *core.Service
	journal      core.Journal
	closeJournal func()
}

// Execute runs the command line in args and releases the journal and
// service afterwards, whether or not the command failed.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	a := &app{}
	defer a.teardown()

	root := rootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.ExecuteContext(ctx)
}

// rootCmd builds the csvcure command tree around a.
func rootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "csvcure",
		Short: "Find and repair rows whose values spilled across columns",
		Long: `csvcure inspects delimited files for rows whose values were split by a
stray delimiter and shifts them back into place.

Rows with a trailing run of nulls are the usual symptom: a quoted field that
contained the delimiter was split, pushing every later value right and
leaving the row short.

Examples:
  csvcure inspect orders.csv
  csvcure stretch orders.csv -o fixed.csv
  csvcure repair orders.csv --op stretch_by_index --index 12 --breakdown name --steps 1 --delimiter ,
  csvcure apply orders.csv --plan plan.yaml -o fixed.xlsx
  csvcure journal orders.csv`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd.Context(), cmd.ErrOrStderr())
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.csvDelimiter, "csv-delimiter", "", "CSV field delimiter (default from INGEST_DELIMITER, \\t for tab)")
	pf.StringVar(&a.encoding, "encoding", "", "input encoding: auto, utf-8, latin-1, windows-1252 (default from INGEST_ENCODING)")
	pf.BoolVar(&a.noHeader, "no-header", false, "first row is data; columns are named 0, 1, ...")
	pf.StringSliceVar(&a.columnNames, "column-names", nil, "override column names (comma separated)")
	pf.StringVar(&a.journalPath, "journal", "", "SQLite journal path (default from JOURNAL_PATH)")
	pf.BoolVar(&a.noJournal, "no-journal", false, "do not record repairs")
	pf.StringVar(&a.logLevel, "log-level", "", "debug, info, warn, error (default from LOG_LEVEL)")

	root.AddCommand(inspectCmd(a))
	root.AddCommand(extractCmd(a))
	root.AddCommand(repairCmd(a))
	root.AddCommand(stretchCmd(a))
	root.AddCommand(applyCmd(a))
	root.AddCommand(journalCmd(a))

	return root
}

// setup loads configuration and wires the service. Logs go to stderr so
// table output on stdout stays clean.
func (a *app) setup(ctx context.Context, stderr io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	switch a.csvDelimiter {
	case "":
	case `\t`:
		cfg.Ingest.Delimiter = "\t"
	default:
		cfg.Ingest.Delimiter = a.csvDelimiter
	}
	if a.encoding != "" {
		cfg.Ingest.Encoding = a.encoding
	}
	if a.noHeader {
		cfg.Ingest.Header = false
	}
	if a.journalPath != "" {
		cfg.Journal.Path = a.journalPath
	}
	if a.noJournal {
		cfg.Journal.Enabled = false
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	} else if os.Getenv("LOG_LEVEL") == "" {
		cfg.Logging.Level = "warn"
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logging.Setup(stderr, cfg.Logging.Level, cfg.Logging.Format)

	a.journal = core.NopJournal{}
	a.closeJournal = func() {}
	if cfg.Journal.Enabled {
		j, closeFn, err := store.Open(ctx, cfg.Database.URL, cfg.Journal.Path, store.PoolConfig{
			MaxConns:        cfg.Database.MaxConns,
			MinConns:        cfg.Database.MinConns,
			MaxConnLifetime: cfg.Database.MaxConnLifetime,
			MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
		})
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		a.journal, a.closeJournal = j, closeFn
	}

	a.service = core.NewService(core.ServiceParams{
		Engine: core.NewEngine(
			core.WithWorkers(cfg.Repair.Workers),
			core.WithShareJoin(cfg.Repair.ShareJoin),
			core.WithQuote(cfg.Repair.Quote),
			core.WithLogger(a.logger),
		),
		Inspector: core.NewInspector(a.logger),
		Journal:   a.journal,
		Logger:    a.logger,
	})
	return nil
}

func (a *app) teardown() {
	if a.service != nil {
		a.service.Close()
	}
	if a.closeJournal != nil {
		a.closeJournal()
	}
}

// ingestOptions builds load options from the effective config.
func (a *app) ingestOptions() (ingest.Options, error) {
	enc, err := ingest.ParseEncoding(a.cfg.Ingest.Encoding)
	if err != nil {
		return ingest.Options{}, err
	}
	return ingest.Options{
		Delimiter: a.cfg.Ingest.DelimiterRune(),
		Header:    a.cfg.Ingest.Header,
		Columns:   a.columnNames,
		Encoding:  enc,
		MaxBytes:  a.cfg.Ingest.MaxFileSize,
	}, nil
}

// open loads path into a session keyed by its absolute path, which is also
// the journal's table ID for the file.
func (a *app) open(ctx context.Context, path string) (*core.Session, error) {
	format, err := ingest.FormatFromName(path)
	if err != nil {
		return nil, err
	}
	opts, err := a.ingestOptions()
	if err != nil {
		return nil, err
	}
	if a.csvDelimiter == "" {
		opts.Delimiter = ingest.DelimiterFor(path, opts.Delimiter)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	t, err := ingest.Load(ctx, format, f, opts)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return a.service.AddWithID(abs, filepath.Base(path), t)
}

// write saves t to out, picking the format from its extension. An empty
// out or "-" writes CSV to stdout.
func (a *app) write(stdout io.Writer, t *core.Table, out string) error {
	header := a.cfg.Ingest.Header || len(a.columnNames) > 0
	if out == "" || out == "-" {
		return ingest.WriteCSV(stdout, t, a.cfg.Ingest.DelimiterRune(), header)
	}

	format, err := ingest.FormatFromName(out)
	if err != nil {
		return err
	}
	f, err := os.Create(out)
	if err != nil {
		return err
	}

	switch format {
	case ingest.FormatXLSX:
		err = ingest.WriteXLSX(f, t, header)
	default:
		delim := a.cfg.Ingest.DelimiterRune()
		if a.csvDelimiter == "" {
			delim = ingest.DelimiterFor(out, delim)
		}
		err = ingest.WriteCSV(f, t, delim, header)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}

// PrintError writes err as a user message with its code and suggested
// action.
func PrintError(w io.Writer, err error) {
	msg := core.MapError(err)
	fmt.Fprintf(w, "%s %s\n", color.New(color.FgRed, color.Bold).Sprint("error:"), msg.Message)
	if msg.Action != "" {
		fmt.Fprintf(w, "  %s\n", msg.Action)
	}
	fmt.Fprintf(w, "  %s\n", color.New(color.FgHiBlack).Sprintf("[%s] %v", msg.Code, err))
}
