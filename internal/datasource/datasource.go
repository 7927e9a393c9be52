// Package datasource resolves a dataset descriptor to a local embedded store
// file and owns the single read-only connection used to query it.
package datasource

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fqdata/fqdata/internal/observability"
	"github.com/fqdata/fqdata/internal/source"
)

const DefaultCacheFile = "standard_cache.db"

// Resolver fetches the dataset named by a remote descriptor into dest.
// Implementations own transport, authentication and retries.
type Resolver interface {
	Resolve(ctx context.Context, descriptor, dest string, forceRefresh bool) error
}

type Options struct {
	Resolver     Resolver
	ForceRefresh bool
	// CacheDir and CacheFile locate the local copy of a remote dataset.
	CacheDir  string
	CacheFile string
	Dialect   Dialect
	Logger    *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.CacheFile == "" {
		o.CacheFile = DefaultCacheFile
	}
	if o.Dialect.Driver == "" {
		o.Dialect = SQLite
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	return o
}

// DataSource holds one read-only connection to a resolved dataset file.
// Use WithConn to borrow the connection; borrows are serialized. Callers must
// Close the DataSource on every exit path.
type DataSource struct {
	path    string
	dialect Dialect
	logger  *slog.Logger

	mu   sync.Mutex
	db   *sql.DB
	conn *sql.Conn
}

// Open resolves descriptor to a local file and opens it read-only.
func Open(ctx context.Context, descriptor string, opts Options) (*DataSource, error) {
	opts = opts.withDefaults()

	path, err := resolvePath(ctx, descriptor, opts)
	if err != nil {
		return nil, err
	}
	return openPath(ctx, path, opts)
}

func resolvePath(ctx context.Context, descriptor string, opts Options) (string, error) {
	start := time.Now()
	desc, err := source.Parse(descriptor)
	if err != nil {
		observability.ObserveResolve("error", time.Since(start))
		return "", NewError(ErrNotFound, PhaseResolve, err)
	}

	if desc.Kind == source.KindLocal {
		info, err := os.Stat(desc.Path)
		if err != nil {
			observability.ObserveResolve("error", time.Since(start))
			if errors.Is(err, fs.ErrNotExist) {
				return "", NewError(ErrNotFound, PhaseResolve, fmt.Errorf("file %q does not exist", desc.Path))
			}
			return "", NewError(ErrConnection, PhaseResolve, fmt.Errorf("stat %q: %w", desc.Path, err))
		}
		if info.IsDir() {
			observability.ObserveResolve("error", time.Since(start))
			return "", NewError(ErrNotFound, PhaseResolve, fmt.Errorf("%q is a directory", desc.Path))
		}
		observability.ObserveResolve("local", time.Since(start))
		return desc.Path, nil
	}

	cachePath := filepath.Join(opts.CacheDir, opts.CacheFile)
	if !opts.ForceRefresh && regularFileExists(cachePath) {
		opts.Logger.InfoContext(ctx, "using cached dataset",
			slog.String("cache_path", cachePath),
			slog.String("source_kind", string(desc.Kind)),
		)
		observability.ObserveResolve("cache_hit", time.Since(start))
		return cachePath, nil
	}

	if opts.Resolver == nil {
		observability.ObserveResolve("error", time.Since(start))
		return "", NewError(ErrFetch, PhaseResolve, fmt.Errorf("no resolver configured for %s descriptor", desc.Kind))
	}
	if opts.CacheDir != "" {
		if err := os.MkdirAll(opts.CacheDir, 0o755); err != nil {
			observability.ObserveResolve("error", time.Since(start))
			return "", NewError(ErrFetch, PhaseResolve, fmt.Errorf("create cache dir %q: %w", opts.CacheDir, err))
		}
	}

	opts.Logger.InfoContext(ctx, "fetching dataset",
		slog.String("cache_path", cachePath),
		slog.String("source_kind", string(desc.Kind)),
		slog.Bool("force_refresh", opts.ForceRefresh),
	)
	if err := opts.Resolver.Resolve(ctx, descriptor, cachePath, opts.ForceRefresh); err != nil {
		observability.ObserveResolve("error", time.Since(start))
		return "", NewError(ErrFetch, PhaseResolve, err)
	}
	if !regularFileExists(cachePath) {
		observability.ObserveResolve("error", time.Since(start))
		return "", NewError(ErrFetch, PhaseResolve, fmt.Errorf("resolver did not produce %q", cachePath))
	}
	observability.ObserveResolve("fetched", time.Since(start))
	return cachePath, nil
}

func openPath(ctx context.Context, path string, opts Options) (*DataSource, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, NewError(ErrConnection, PhaseOpen, fmt.Errorf("absolute path for %q: %w", path, err))
	}

	db, err := sql.Open(opts.Dialect.Driver, opts.Dialect.DSN(absPath))
	if err != nil {
		return nil, NewError(ErrConnection, PhaseOpen, fmt.Errorf("open %s: %w", opts.Dialect.Name, err))
	}
	return Wrap(ctx, db, absPath, opts.Dialect, opts.Logger)
}

// Wrap adopts an already opened database handle and pins one connection
// from it. The DataSource takes ownership of db and closes it on failure.
func Wrap(ctx context.Context, db *sql.DB, path string, dialect Dialect, logger *slog.Logger) (*DataSource, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	// Scratch tables are session-local, so every statement must run on the
	// same physical connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	conn, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		return nil, NewError(ErrConnection, PhaseOpen, fmt.Errorf("connect %q: %w", path, err))
	}

	var tables int64
	if err := conn.QueryRowContext(ctx, dialect.Probe).Scan(&tables); err != nil {
		_ = conn.Close()
		_ = db.Close()
		return nil, NewError(ErrConnection, PhaseOpen, fmt.Errorf("validate %q: %w", path, err))
	}

	logger.InfoContext(ctx, "dataset opened",
		slog.String("path", path),
		slog.String("engine", dialect.Name),
	)
	return &DataSource{
		path:    path,
		dialect: dialect,
		logger:  logger,
		db:      db,
		conn:    conn,
	}, nil
}

// Path returns the resolved dataset file.
func (d *DataSource) Path() string {
	if d == nil {
		return ""
	}
	return d.path
}

func (d *DataSource) Dialect() Dialect {
	if d == nil {
		return Dialect{}
	}
	return d.dialect
}

// WithConn borrows the connection for the duration of fn. It fails with
// ErrClosed once the DataSource has been closed. If fn reports that scratch
// cleanup failed, the connection is no longer trusted and the DataSource is
// closed.
func (d *DataSource) WithConn(ctx context.Context, fn func(ctx context.Context, conn *sql.Conn) error) error {
	if d == nil {
		return NewError(ErrClosed, PhaseExecute, nil)
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.conn == nil {
		return NewError(ErrClosed, PhaseExecute, nil)
	}
	err := fn(ctx, d.conn)
	if scratchLeaked(err) {
		d.logger.WarnContext(ctx, "closing data source after failed scratch cleanup",
			slog.String("path", d.path),
			slog.Any("error", err),
		)
		if closeErr := d.closeLocked(); closeErr != nil {
			d.logger.WarnContext(ctx, "close after failed cleanup", slog.Any("error", closeErr))
		}
	}
	return err
}

// IsOpen reports whether the connection is still held.
func (d *DataSource) IsOpen() bool {
	if d == nil {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conn != nil
}

// Close releases the connection. It is safe to call more than once and on a
// nil or zero DataSource.
func (d *DataSource) Close() error {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closeLocked()
}

func (d *DataSource) closeLocked() error {
	if d.conn == nil && d.db == nil {
		return nil
	}
	var errs []error
	if d.conn != nil {
		if err := d.conn.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
			errs = append(errs, fmt.Errorf("close connection: %w", err))
		}
		d.conn = nil
	}
	if d.db != nil {
		if err := d.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
		d.db = nil
	}
	if d.logger != nil {
		d.logger.Info("dataset closed", slog.String("path", d.path))
	}
	return errors.Join(errs...)
}

func regularFileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
