package query

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/fqdata/fqdata/internal/datasource"
)

type stockRow struct {
	code string
	name string
	year int
}

var defaultStocks = []stockRow{
	{code: "A1", name: "Alpha", year: 2023},
	{code: "B2", name: "Bravo", year: 2023},
	{code: "C3", name: "Charlie", year: 2024},
}

// writeFixture creates a SQLite file with one stocks table.
func writeFixture(t *testing.T, rows []stockRow) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "standard.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open fixture: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec(`CREATE TABLE stocks (code TEXT, name TEXT, year INTEGER)`); err != nil {
		t.Fatalf("create fixture table: %v", err)
	}
	for _, row := range rows {
		if _, err := db.Exec(`INSERT INTO stocks (code, name, year) VALUES (?, ?, ?)`, row.code, row.name, row.year); err != nil {
			t.Fatalf("insert fixture row: %v", err)
		}
	}
	return path
}

func openFixture(t *testing.T, rows []stockRow) *datasource.DataSource {
	t.Helper()
	ds, err := datasource.Open(context.Background(), writeFixture(t, rows), datasource.Options{})
	if err != nil {
		t.Fatalf("datasource.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = ds.Close() })
	return ds
}

func scratchTableCount(t *testing.T, ds *datasource.DataSource) int {
	t.Helper()
	var count int
	err := ds.WithConn(context.Background(), func(ctx context.Context, conn *sql.Conn) error {
		return conn.QueryRowContext(ctx, ds.Dialect().TempTableExists, ScratchTable).Scan(&count)
	})
	if err != nil {
		t.Fatalf("count scratch tables: %v", err)
	}
	return count
}

func codesOf(t *testing.T, result Result) []string {
	t.Helper()
	index := -1
	for i, column := range result.Columns {
		if column == "code" {
			index = i
		}
	}
	if index < 0 {
		t.Fatalf("result has no code column: %v", result.Columns)
	}
	codes := make([]string, 0, len(result.Rows))
	for _, row := range result.Rows {
		code, ok := row[index].(string)
		if !ok {
			t.Fatalf("code value %#v is %T, want string", row[index], row[index])
		}
		codes = append(codes, code)
	}
	return codes
}
