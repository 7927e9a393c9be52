// Package fqdatactl implements the fqdata command line: it opens a dataset
// from a local path or remote locator and runs one query against it.
package fqdatactl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fqdata/fqdata/internal/bootstrap"
	"github.com/fqdata/fqdata/internal/config"
	"github.com/fqdata/fqdata/internal/datasource"
	"github.com/fqdata/fqdata/internal/observability"
	"github.com/fqdata/fqdata/internal/query"
	"github.com/fqdata/fqdata/internal/sink"
)

// Version is overridden at link time.
var Version = "dev"

type Options struct {
	// Config supplies defaults; flags override it per invocation.
	Config config.Config
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

// usageError marks failures caused by how the command was invoked.
type usageError struct {
	err error
}

func (e usageError) Error() string { return e.err.Error() }

func (e usageError) Unwrap() error { return e.err }

func usagef(format string, args ...any) error {
	return usageError{err: fmt.Errorf(format, args...)}
}

// Run executes the command line in args and returns the process exit code:
// 0 on success, 1 on a runtime failure and 2 on a usage error.
func Run(ctx context.Context, args []string, opts Options) int {
	if opts.Stdin == nil {
		opts.Stdin = strings.NewReader("")
	}
	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}
	if opts.Stderr == nil {
		opts.Stderr = io.Discard
	}

	root := newRootCommand(&opts)
	root.SetArgs(args)
	root.SetIn(opts.Stdin)
	root.SetOut(opts.Stdout)
	root.SetErr(opts.Stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	_, _ = fmt.Fprintf(opts.Stderr, "error: %v\n", err)
	var usage usageError
	if errors.As(err, &usage) {
		return 2
	}
	return 1
}

type datasetFlags struct {
	source       string
	forceRefresh bool
	engine       string
	cacheDir     string
	cacheFile    string
}

// apply overrides cfg with the flags set on cmd.
func (f *datasetFlags) apply(cmd *cobra.Command, cfg config.Config) (config.Config, error) {
	flags := cmd.Flags()
	if flags.Changed("source") {
		cfg.Dataset.Source = f.source
	}
	if flags.Changed("force-refresh") {
		cfg.Dataset.ForceRefresh = f.forceRefresh
	}
	if flags.Changed("engine") {
		cfg.Dataset.Engine = f.engine
	}
	if flags.Changed("cache-dir") {
		cfg.Dataset.CacheDir = f.cacheDir
	}
	if flags.Changed("cache-file") {
		cfg.Dataset.CacheFile = f.cacheFile
	}

	if strings.TrimSpace(cfg.Dataset.Source) == "" {
		return cfg, usagef("--source (or FQDATA_SOURCE) is required")
	}
	if _, err := datasource.DialectByName(cfg.Dataset.Engine); err != nil {
		return cfg, usageError{err: err}
	}
	if strings.TrimSpace(cfg.Dataset.CacheFile) == "" {
		return cfg, usagef("--cache-file must not be empty")
	}
	return cfg, nil
}

func newRootCommand(opts *Options) *cobra.Command {
	dataset := &datasetFlags{}

	root := &cobra.Command{
		Use:   "fqdata",
		Short: "Query a SQLite or DuckDB dataset, optionally restricted to a list of keys",
		Example: `fqdata query --source ./standard.db "SELECT * FROM stocks"
fqdata query --source https://drive.google.com/file/d/FILE_ID/view --filter 7203 --filter 6758 "SELECT * FROM prices"
fqdata fetch --source s3://datasets/standard.db --force-refresh`,
		Args:          cobra.ArbitraryArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return usagef("unknown command %q", args[0])
			}
			_ = cmd.Help()
			return usagef("a command is required")
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err: err}
	})

	persistent := root.PersistentFlags()
	persistent.StringVar(&dataset.source, "source", "", "dataset path, file:// URL, Google Drive share link, http(s) URL or s3://bucket/key")
	persistent.BoolVar(&dataset.forceRefresh, "force-refresh", false, "download a remote dataset even when a cached copy exists")
	persistent.StringVar(&dataset.engine, "engine", "", "storage engine of the dataset file: sqlite or duckdb")
	persistent.StringVar(&dataset.cacheDir, "cache-dir", "", "directory holding the cached copy of a remote dataset")
	persistent.StringVar(&dataset.cacheFile, "cache-file", "", "file name of the cached copy of a remote dataset")

	root.AddCommand(
		newQueryCommand(opts, dataset),
		newFetchCommand(opts, dataset),
		newVersionCommand(),
	)
	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the fqdata version",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "fqdata %s\n", Version)
			return err
		},
	}
}

func newFetchCommand(opts *Options, dataset *datasetFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch",
		Short: "Resolve the dataset into the local cache and verify it opens",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := dataset.apply(cmd, opts.Config)
			if err != nil {
				return err
			}
			logger := opts.logger(cfg)
			ds, err := openDataSource(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			path := ds.Path()
			if err := ds.Close(); err != nil {
				return fmt.Errorf("close dataset: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), path)
			return err
		},
	}
}

type queryFlags struct {
	filters    []string
	filterFile string
	keyColumn  string
	format     string
	output     string
	rowLimit   int
	timeout    time.Duration
}

func newQueryCommand(opts *Options, dataset *datasetFlags) *cobra.Command {
	q := &queryFlags{}
	cmd := &cobra.Command{
		Use:   "query [flags] SQL",
		Short: "Run one SELECT statement against the dataset",
		Long: `Run one SELECT statement against the dataset.

With --filter or --filter-file the result is restricted to rows whose key
column equals one of the given keys. Keys are compared as trimmed text. An
empty key list returns an empty result without running the statement.
Pass "-" as SQL to read the statement from stdin.`,
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) != 1 {
				return usagef("query takes exactly one SQL argument, got %d", len(args))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, opts, dataset, q, args[0])
		},
	}

	flags := cmd.Flags()
	flags.StringArrayVar(&q.filters, "filter", nil, "restrict the result to this key (repeatable)")
	flags.StringVar(&q.filterFile, "filter-file", "", `read keys from a file, one per line ("-" for stdin)`)
	flags.StringVar(&q.keyColumn, "key-column", "", "result column matched against the keys (default from FQDATA_KEY_COLUMN)")
	flags.StringVar(&q.format, "format", "table", "output format: "+strings.Join(sink.Formats, ", "))
	flags.StringVarP(&q.output, "output", "o", "", "write the result to this file instead of stdout")
	flags.IntVar(&q.rowLimit, "row-limit", 0, "return at most this many rows (0 for no limit)")
	flags.DurationVar(&q.timeout, "timeout", 0, "query timeout (default from FQDATA_QUERY_TIMEOUT)")
	return cmd
}

func runQuery(cmd *cobra.Command, opts *Options, dataset *datasetFlags, q *queryFlags, sqlArg string) error {
	cfg, err := dataset.apply(cmd, opts.Config)
	if err != nil {
		return err
	}
	if q.rowLimit < 0 {
		return usagef("--row-limit must be >= 0")
	}
	if _, err := sink.New(q.format, io.Discard); err != nil {
		return usageError{err: err}
	}
	if sqlArg == "-" && q.filterFile == "-" {
		return usagef("SQL and --filter-file cannot both read stdin")
	}

	statement := sqlArg
	if sqlArg == "-" {
		raw, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("read SQL from stdin: %w", err)
		}
		statement = string(raw)
	}
	if strings.TrimSpace(statement) == "" {
		return usagef("SQL must not be empty")
	}

	request := query.Unfiltered(statement)
	if cmd.Flags().Changed("filter") || q.filterFile != "" {
		keys, err := collectKeys(cmd, q)
		if err != nil {
			return err
		}
		request = query.Filtered(statement, keys, q.keyColumn)
	}
	request.RowLimit = q.rowLimit

	ctx := cmd.Context()
	timeout := cfg.Query.Timeout
	if q.timeout > 0 {
		timeout = q.timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	logger := opts.logger(cfg)
	ds, err := openDataSource(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = ds.Close() }()

	out := cmd.OutOrStdout()
	if q.output != "" {
		file, err := os.Create(q.output)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer func() { _ = file.Close() }()
		out = file
	}
	rows, err := sink.New(q.format, out)
	if err != nil {
		return usageError{err: err}
	}

	if err := bootstrap.Engine(cfg, logger).Execute(ctx, ds, request, rows); err != nil {
		return err
	}
	if err := rows.Close(); err != nil {
		return fmt.Errorf("write %s output: %w", q.format, err)
	}
	return nil
}

func collectKeys(cmd *cobra.Command, q *queryFlags) ([]any, error) {
	keys := make([]any, 0, len(q.filters))
	for _, key := range q.filters {
		keys = append(keys, key)
	}
	if q.filterFile == "" {
		return keys, nil
	}

	var in io.Reader
	if q.filterFile == "-" {
		in = cmd.InOrStdin()
	} else {
		file, err := os.Open(q.filterFile)
		if err != nil {
			return nil, fmt.Errorf("open filter file: %w", err)
		}
		defer func() { _ = file.Close() }()
		in = file
	}

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		keys = append(keys, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read filter file: %w", err)
	}
	return keys, nil
}

func openDataSource(ctx context.Context, cfg config.Config, logger *slog.Logger) (*datasource.DataSource, error) {
	dsOpts, err := bootstrap.DataSourceOptions(cfg, logger)
	if err != nil {
		return nil, err
	}
	return datasource.Open(ctx, cfg.Dataset.Source, dsOpts)
}

func (o *Options) logger(cfg config.Config) *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return observability.NewLogger(cfg, o.Stderr)
}

func noArgs(_ *cobra.Command, args []string) error {
	if len(args) > 0 {
		return usagef("unexpected arguments: %s", strings.Join(args, " "))
	}
	return nil
}
