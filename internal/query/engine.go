package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/fqdata/fqdata/internal/datasource"
	"github.com/fqdata/fqdata/internal/observability"
)

// Engine executes requests on a borrowed connection.
type Engine struct {
	// KeyColumn is used when a filtered request leaves KeyColumn empty.
	KeyColumn string
	// BatchSize bounds the keys bound into one scratch insert.
	BatchSize int
	// CleanupTimeout bounds the scratch drop, which runs even when the
	// caller's context is already cancelled.
	CleanupTimeout time.Duration
	Logger         *slog.Logger
}

func NewEngine(keyColumn string, batchSize int, cleanupTimeout time.Duration, logger *slog.Logger) *Engine {
	return &Engine{KeyColumn: keyColumn, BatchSize: batchSize, CleanupTimeout: cleanupTimeout, Logger: logger}
}

// Run executes request and returns the materialized result.
func (e *Engine) Run(ctx context.Context, ds ConnProvider, request Request) (Result, error) {
	start := time.Now()
	var result Result
	if err := e.Execute(ctx, ds, request, &result); err != nil {
		return Result{}, err
	}
	result.Duration = time.Since(start)
	return result, nil
}

// Execute runs request on ds and streams the result set into sink. Filtered
// requests join the statement against a scratch table of normalized keys; the
// scratch table is dropped before Execute returns.
func (e *Engine) Execute(ctx context.Context, ds ConnProvider, request Request, sink RowSink) error {
	if ds == nil {
		return datasource.NewError(datasource.ErrClosed, datasource.PhaseExecute, nil)
	}
	if sink == nil {
		return fmt.Errorf("row sink is required")
	}

	err := e.execute(ctx, ds, request, sink)
	status := "ok"
	if err != nil {
		status = "error"
	}
	observability.ObserveQuery(request.mode(), status)
	return err
}

func (e *Engine) execute(ctx context.Context, ds ConnProvider, request Request, sink RowSink) error {
	statement := StripTerminators(request.SQL)
	if statement == "" {
		return datasource.NewError(datasource.ErrQuery, datasource.PhaseExecute, fmt.Errorf("sql is required"))
	}

	if !request.Filtered {
		return ds.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
			return e.runUnfiltered(ctx, conn, statement, request.RowLimit, sink)
		})
	}

	keys := NormalizeKeys(request.Filter)
	observability.ObserveFilterKeys(len(keys))
	if len(keys) == 0 {
		// Still borrow the connection so a closed data source reports
		// ErrClosed; the statement itself never runs.
		return ds.WithConn(ctx, func(context.Context, *sql.Conn) error {
			return sink.SetColumns(nil)
		})
	}

	keyColumn := request.KeyColumn
	if keyColumn == "" {
		keyColumn = e.keyColumn()
	}
	return ds.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		return e.runFiltered(ctx, conn, statement, keyColumn, keys, request.RowLimit, sink)
	})
}

func (e *Engine) runUnfiltered(ctx context.Context, conn *sql.Conn, statement string, rowLimit int, sink RowSink) error {
	start := time.Now()
	sqlText := statement
	if rowLimit > 0 {
		sqlText = fmt.Sprintf("SELECT * FROM (%s) AS q LIMIT %d", statement, rowLimit)
	}
	err := streamRows(ctx, conn, sqlText, sink, datasource.PhaseExecute)
	observability.ObserveQueryPhase(string(datasource.PhaseExecute), time.Since(start))
	return err
}

func (e *Engine) runFiltered(ctx context.Context, conn *sql.Conn, statement, keyColumn string, keys []string, rowLimit int, sink RowSink) (err error) {
	defer func() {
		err = e.dropScratch(ctx, conn, err)
	}()

	start := time.Now()
	if err := e.fillScratch(ctx, conn, keys); err != nil {
		return datasource.NewError(datasource.ErrQuery, datasource.PhaseFilterSetup, err)
	}
	observability.ObserveQueryPhase(string(datasource.PhaseFilterSetup), time.Since(start))

	// Compiling the bare statement first separates errors in the caller's
	// SQL from errors introduced by the join, such as a missing key column.
	start = time.Now()
	if err := checkStatement(ctx, conn, statement); err != nil {
		return datasource.NewError(datasource.ErrQuery, datasource.PhaseExecute, err)
	}
	observability.ObserveQueryPhase(string(datasource.PhaseExecute), time.Since(start))

	builder := sq.Select("q.*").
		From("(" + statement + ") AS q").
		InnerJoin(ScratchTable + " AS f ON q." + quoteIdent(keyColumn) + " = f." + scratchColumn)
	if rowLimit > 0 {
		builder = builder.Limit(uint64(rowLimit))
	}
	joinSQL, args, err := builder.ToSql()
	if err != nil {
		return datasource.NewError(datasource.ErrQuery, datasource.PhaseJoin, fmt.Errorf("build join: %w", err))
	}

	start = time.Now()
	err = streamRows(ctx, conn, joinSQL, sink, datasource.PhaseJoin, args...)
	observability.ObserveQueryPhase(string(datasource.PhaseJoin), time.Since(start))
	var dsErr *datasource.Error
	if errors.As(err, &dsErr) && dsErr.Phase == datasource.PhaseJoin && dsErr.Kind == datasource.ErrQuery {
		dsErr.Err = fmt.Errorf("filter on key column %q: %w", keyColumn, dsErr.Err)
	}
	return err
}

// fillScratch creates the scratch table if needed, clears leftovers and
// inserts keys in batches inside one transaction.
func (e *Engine) fillScratch(ctx context.Context, conn *sql.Conn, keys []string) error {
	createSQL := fmt.Sprintf("CREATE TEMP TABLE IF NOT EXISTS %s (%s TEXT PRIMARY KEY)", ScratchTable, scratchColumn)
	if _, err := conn.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("create scratch table: %w", err)
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin scratch insert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	clearSQL, clearArgs, err := sq.Delete(ScratchTable).ToSql()
	if err != nil {
		return fmt.Errorf("build scratch clear: %w", err)
	}
	if _, err := tx.ExecContext(ctx, clearSQL, clearArgs...); err != nil {
		return fmt.Errorf("clear scratch table: %w", err)
	}

	batchSize := e.batchSize()
	for offset := 0; offset < len(keys); offset += batchSize {
		end := min(offset+batchSize, len(keys))
		insert := sq.Insert(ScratchTable).Options("OR IGNORE").Columns(scratchColumn)
		for _, key := range keys[offset:end] {
			insert = insert.Values(key)
		}
		insertSQL, args, err := insert.ToSql()
		if err != nil {
			return fmt.Errorf("build scratch insert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, insertSQL, args...); err != nil {
			return fmt.Errorf("insert filter keys %d..%d: %w", offset, end, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit scratch insert: %w", err)
	}
	return nil
}

// dropScratch removes the scratch table on a context detached from the
// caller's cancellation. A drop failure never replaces prior; it is attached
// to it as Cleanup, or reported on its own when prior is nil.
func (e *Engine) dropScratch(ctx context.Context, conn *sql.Conn, prior error) error {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cleanupTimeout())
	defer cancel()

	start := time.Now()
	_, dropErr := conn.ExecContext(cleanupCtx, "DROP TABLE IF EXISTS "+ScratchTable)
	observability.ObserveQueryPhase(string(datasource.PhaseCleanup), time.Since(start))
	if dropErr == nil {
		return prior
	}

	observability.IncrementScratchCleanupFailure()
	e.logger().WarnContext(ctx, "scratch table cleanup failed",
		slog.String("table", ScratchTable),
		slog.Any("error", dropErr),
	)
	dropErr = fmt.Errorf("drop scratch table: %w", dropErr)

	if prior == nil {
		return datasource.NewError(datasource.ErrQuery, datasource.PhaseCleanup, dropErr)
	}
	var dsErr *datasource.Error
	if errors.As(prior, &dsErr) {
		dsErr.Cleanup = dropErr
		return prior
	}
	return &datasource.Error{Kind: datasource.ErrQuery, Phase: datasource.PhaseJoin, Err: prior, Cleanup: dropErr}
}

func checkStatement(ctx context.Context, conn *sql.Conn, statement string) error {
	rows, err := conn.QueryContext(ctx, fmt.Sprintf("SELECT * FROM (%s) AS q LIMIT 0", statement))
	if err != nil {
		return err
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	return rows.Close()
}

func streamRows(ctx context.Context, conn *sql.Conn, sqlText string, sink RowSink, phase datasource.Phase, args ...any) error {
	rows, err := conn.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return datasource.NewError(datasource.ErrQuery, phase, err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return datasource.NewError(datasource.ErrQuery, phase, fmt.Errorf("query columns: %w", err))
	}
	if err := sink.SetColumns(columns); err != nil {
		return fmt.Errorf("sink columns: %w", err)
	}

	values := make([]any, len(columns))
	scanTargets := make([]any, len(columns))
	for i := range values {
		scanTargets[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(scanTargets...); err != nil {
			return datasource.NewError(datasource.ErrQuery, phase, fmt.Errorf("scan row: %w", err))
		}
		if err := sink.WriteRow(normalizeValues(values)); err != nil {
			return fmt.Errorf("sink row: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return datasource.NewError(datasource.ErrQuery, phase, fmt.Errorf("iterate rows: %w", err))
	}
	return nil
}

func (e *Engine) keyColumn() string {
	if e.KeyColumn == "" {
		return DefaultKeyColumn
	}
	return e.KeyColumn
}

func (e *Engine) batchSize() int {
	if e.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return e.BatchSize
}

func (e *Engine) cleanupTimeout() time.Duration {
	if e.CleanupTimeout <= 0 {
		return DefaultCleanupTimeout
	}
	return e.CleanupTimeout
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return e.Logger
}
