package query

import (
	"context"
	"database/sql/driver"
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/fqdata/fqdata/internal/datasource"
)

func newMockDataSource(t *testing.T) (*datasource.DataSource, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	mock.ExpectQuery(regexp.QuoteMeta(datasource.SQLite.Probe)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	ds, err := datasource.Wrap(context.Background(), db, "mock.db", datasource.SQLite, nil)
	if err != nil {
		t.Fatalf("Wrap() error = %v", err)
	}
	return ds, mock
}

func expectScratchFill(mock sqlmock.Sqlmock, keys ...string) {
	mock.ExpectExec(regexp.QuoteMeta("CREATE TEMP TABLE IF NOT EXISTS " + ScratchTable)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM " + ScratchTable)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	args := make([]driver.Value, 0, len(keys))
	for _, key := range keys {
		args = append(args, key)
	}
	mock.ExpectExec(regexp.QuoteMeta("INSERT OR IGNORE INTO " + ScratchTable + " (filter_key) VALUES")).
		WithArgs(args...).
		WillReturnResult(sqlmock.NewResult(0, int64(len(keys))))
	mock.ExpectCommit()
}

func TestCleanupFailureDoesNotMaskJoinError(t *testing.T) {
	ds, mock := newMockDataSource(t)
	expectScratchFill(mock, "A1")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM (SELECT name FROM stocks) AS q LIMIT 0")).
		WillReturnRows(sqlmock.NewRows([]string{"name"}))
	mock.ExpectQuery(regexp.QuoteMeta(`INNER JOIN ` + ScratchTable + ` AS f ON q."code" = f.filter_key`)).
		WillReturnError(errors.New("no such column: q.code"))
	mock.ExpectExec(regexp.QuoteMeta("DROP TABLE IF EXISTS " + ScratchTable)).
		WillReturnError(errors.New("database is locked"))
	mock.ExpectClose()

	_, err := (&Engine{}).Run(context.Background(), ds, Filtered("SELECT name FROM stocks;", []any{"A1"}, "code"))

	var dsErr *datasource.Error
	if !errors.As(err, &dsErr) {
		t.Fatalf("Run() error = %v, want *datasource.Error", err)
	}
	if dsErr.Phase != datasource.PhaseJoin || !errors.Is(err, datasource.ErrQuery) {
		t.Fatalf("error = %v, want join-phase ErrQuery", err)
	}
	if !strings.Contains(dsErr.Err.Error(), "no such column") {
		t.Fatalf("primary error = %v", dsErr.Err)
	}
	if dsErr.Cleanup == nil || !strings.Contains(dsErr.Cleanup.Error(), "database is locked") {
		t.Fatalf("Cleanup = %v", dsErr.Cleanup)
	}
	if ds.IsOpen() {
		t.Fatal("data source should be closed after a failed scratch cleanup")
	}
	if _, err := (&Engine{}).Run(context.Background(), ds, Unfiltered("SELECT 1")); !errors.Is(err, datasource.ErrClosed) {
		t.Fatalf("Run() after invalidation error = %v, want ErrClosed", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCleanupFailureAloneIsReported(t *testing.T) {
	ds, mock := newMockDataSource(t)
	expectScratchFill(mock, "A1", "B2")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM (SELECT code FROM stocks) AS q LIMIT 0")).
		WillReturnRows(sqlmock.NewRows([]string{"code"}))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT q.* FROM (SELECT code FROM stocks) AS q INNER JOIN " + ScratchTable)).
		WillReturnRows(sqlmock.NewRows([]string{"code"}).AddRow("A1").AddRow("B2"))
	mock.ExpectExec(regexp.QuoteMeta("DROP TABLE IF EXISTS " + ScratchTable)).
		WillReturnError(errors.New("disk I/O error"))
	mock.ExpectClose()

	var sink Result
	err := (&Engine{}).Execute(context.Background(), ds, Filtered("SELECT code FROM stocks", []any{"A1", "B2"}, "code"), &sink)
	if phase, _ := datasource.PhaseOf(err); phase != datasource.PhaseCleanup {
		t.Fatalf("Execute() error = %v, want cleanup phase", err)
	}
	if !errors.Is(err, datasource.ErrQuery) {
		t.Fatalf("Execute() error = %v, want ErrQuery", err)
	}
	if len(sink.Rows) != 2 {
		t.Fatalf("rows delivered = %d, want 2", len(sink.Rows))
	}
	if ds.IsOpen() {
		t.Fatal("data source should be closed after a failed scratch cleanup")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSetupFailureStillDropsScratch(t *testing.T) {
	ds, mock := newMockDataSource(t)
	mock.ExpectExec(regexp.QuoteMeta("CREATE TEMP TABLE IF NOT EXISTS " + ScratchTable)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM " + ScratchTable)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT OR IGNORE INTO " + ScratchTable)).
		WillReturnError(errors.New("out of memory"))
	mock.ExpectRollback()
	mock.ExpectExec(regexp.QuoteMeta("DROP TABLE IF EXISTS " + ScratchTable)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := (&Engine{}).Run(context.Background(), ds, Filtered("SELECT code FROM stocks", []any{"A1"}, "code"))

	var dsErr *datasource.Error
	if !errors.As(err, &dsErr) || dsErr.Phase != datasource.PhaseFilterSetup {
		t.Fatalf("Run() error = %v, want filter_setup phase", err)
	}
	if dsErr.Cleanup != nil {
		t.Fatalf("Cleanup = %v, want nil", dsErr.Cleanup)
	}
	if !ds.IsOpen() {
		t.Fatal("data source should stay open when cleanup succeeded")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestScratchInsertIsBatched(t *testing.T) {
	ds, mock := newMockDataSource(t)
	mock.ExpectExec(regexp.QuoteMeta("CREATE TEMP TABLE IF NOT EXISTS " + ScratchTable)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM " + ScratchTable)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT OR IGNORE INTO " + ScratchTable + " (filter_key) VALUES (?),(?)")).
		WithArgs("K1", "K2").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("INSERT OR IGNORE INTO " + ScratchTable + " (filter_key) VALUES (?)")).
		WithArgs("K3").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectQuery(regexp.QuoteMeta("LIMIT 0")).
		WillReturnRows(sqlmock.NewRows([]string{"code"}))
	mock.ExpectQuery(regexp.QuoteMeta("INNER JOIN " + ScratchTable)).
		WillReturnRows(sqlmock.NewRows([]string{"code"}).AddRow("K1"))
	mock.ExpectExec(regexp.QuoteMeta("DROP TABLE IF EXISTS " + ScratchTable)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	result, err := (&Engine{BatchSize: 2}).Run(context.Background(), ds, Filtered("SELECT code FROM stocks", []any{"K1", " K2", "K3"}, "code"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(result.Rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(result.Rows))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
