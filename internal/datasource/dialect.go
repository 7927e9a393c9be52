package datasource

import (
	"fmt"
	"net/url"
	"strings"

	_ "github.com/marcboeker/go-duckdb/v2"
	_ "modernc.org/sqlite"
)

// Dialect describes how to open an embedded store file read-only and how to
// inspect its session-local state.
type Dialect struct {
	Name   string
	Driver string
	// Probe is run once after opening; it fails on files that are not a
	// valid store.
	Probe string
	// TempTableExists takes one argument (the table name) and returns a count.
	TempTableExists string

	dsn func(path string) string
}

var (
	SQLite = Dialect{
		Name:            "sqlite",
		Driver:          "sqlite",
		Probe:           `SELECT COUNT(*) FROM sqlite_master`,
		TempTableExists: `SELECT COUNT(*) FROM sqlite_temp_master WHERE type = 'table' AND name = ?`,
		dsn:             sqliteReadOnlyDSN,
	}
	DuckDB = Dialect{
		Name:            "duckdb",
		Driver:          "duckdb",
		Probe:           `SELECT COUNT(*) FROM information_schema.tables`,
		TempTableExists: `SELECT COUNT(*) FROM duckdb_tables() WHERE temporary AND table_name = ?`,
		dsn:             duckdbReadOnlyDSN,
	}
)

// DialectByName returns the dialect registered under name. An empty name
// selects SQLite.
func DialectByName(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", SQLite.Name:
		return SQLite, nil
	case DuckDB.Name:
		return DuckDB, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported engine %q", name)
	}
}

func (d Dialect) DSN(path string) string {
	if d.dsn == nil {
		return path
	}
	return d.dsn(path)
}

func sqliteReadOnlyDSN(path string) string {
	u := url.URL{Scheme: "file", Path: path, RawQuery: "mode=ro"}
	if !strings.HasPrefix(path, "/") {
		u.OmitHost = true
	}
	return u.String()
}

func duckdbReadOnlyDSN(path string) string {
	return path + "?access_mode=read_only"
}
