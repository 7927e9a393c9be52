// Package query runs caller SELECT statements against a data source, either
// as-is or restricted to rows whose key column matches a caller key list.
package query

import (
	"context"
	"database/sql"
	"time"
)

const (
	// DefaultKeyColumn is the join column used when a filtered request does
	// not name one.
	DefaultKeyColumn      = "code"
	DefaultBatchSize      = 500
	DefaultCleanupTimeout = 5 * time.Second

	// ScratchTable holds the keys of one filtered query. It lives in the
	// connection's temporary schema.
	ScratchTable  = "_fqdata_filter_keys"
	scratchColumn = "filter_key"
)

// Request describes one query. A filtered request with no usable keys yields
// an empty result without running SQL.
type Request struct {
	SQL       string
	Filtered  bool
	Filter    []any
	KeyColumn string
	// RowLimit caps returned rows when positive.
	RowLimit int
}

func Unfiltered(sqlText string) Request {
	return Request{SQL: sqlText}
}

func Filtered(sqlText string, keys []any, keyColumn string) Request {
	return Request{SQL: sqlText, Filtered: true, Filter: keys, KeyColumn: keyColumn}
}

func (r Request) mode() string {
	if r.Filtered {
		return "filtered"
	}
	return "unfiltered"
}

// RowSink receives a result set. SetColumns is called exactly once, before
// any WriteRow; an empty result may report nil columns.
type RowSink interface {
	SetColumns(columns []string) error
	WriteRow(values []any) error
}

// ConnProvider lends out the data source's single connection.
type ConnProvider interface {
	WithConn(ctx context.Context, fn func(ctx context.Context, conn *sql.Conn) error) error
}

// Result is a RowSink that keeps the whole result set in memory.
type Result struct {
	Columns  []string
	Rows     [][]any
	Duration time.Duration
}

func (r *Result) SetColumns(columns []string) error {
	r.Columns = columns
	return nil
}

func (r *Result) WriteRow(values []any) error {
	r.Rows = append(r.Rows, values)
	return nil
}
