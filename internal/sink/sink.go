// Package sink renders query results in the formats offered by the CLI.
package sink

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/fqdata/fqdata/internal/query"
)

// Sink is a query.RowSink that must be closed to flush its output.
type Sink interface {
	query.RowSink
	Close() error
}

// Formats lists the names accepted by New.
var Formats = []string{"table", "csv", "json", "parquet"}

func New(format string, w io.Writer) (Sink, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "table":
		return NewTable(w), nil
	case "csv":
		return NewCSV(w), nil
	case "json", "jsonl":
		return NewJSONLines(w), nil
	case "parquet":
		return NewParquet(w), nil
	default:
		return nil, fmt.Errorf("unsupported output format %q (want one of %s)", format, strings.Join(Formats, ", "))
	}
}

// formatValue renders a scanned value as text; ok is false for NULL.
func formatValue(value any) (text string, ok bool) {
	switch typed := value.(type) {
	case nil:
		return "", false
	case string:
		return typed, true
	case []byte:
		return string(typed), true
	case time.Time:
		return typed.Format(time.RFC3339Nano), true
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(typed), 'f', -1, 32), true
	default:
		return fmt.Sprint(typed), true
	}
}

func checkWidth(columns []string, values []any) error {
	if len(values) != len(columns) {
		return fmt.Errorf("row has %d values, want %d", len(values), len(columns))
	}
	return nil
}
