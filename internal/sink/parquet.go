package sink

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/parquet-go/parquet-go"
)

// Parquet writes every column as an optional UTF-8 string. Rows are buffered
// by the parquet writer and flushed on Close.
type Parquet struct {
	out     io.Writer
	writer  *parquet.Writer
	columns []string
	// leaves maps each result column to its leaf index; parquet groups order
	// fields by name, not by result position.
	leaves []int
}

func NewParquet(w io.Writer) *Parquet {
	return &Parquet{out: w}
}

func (p *Parquet) SetColumns(columns []string) error {
	p.columns = columns
	if len(columns) == 0 {
		return nil
	}

	names := uniqueNames(columns)
	group := parquet.Group{}
	for _, name := range names {
		group[name] = parquet.Optional(parquet.String())
	}
	schema := parquet.NewSchema("fqdata", group)

	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	leafOf := make(map[string]int, len(sorted))
	for i, name := range sorted {
		leafOf[name] = i
	}
	p.leaves = make([]int, len(names))
	for i, name := range names {
		p.leaves[i] = leafOf[name]
	}

	p.writer = parquet.NewWriter(p.out, schema)
	return nil
}

func (p *Parquet) WriteRow(values []any) error {
	if err := checkWidth(p.columns, values); err != nil {
		return err
	}
	if p.writer == nil {
		return fmt.Errorf("parquet columns are not set")
	}

	row := make(parquet.Row, len(values))
	for i, value := range values {
		leaf := p.leaves[i]
		text, ok := formatValue(value)
		if !ok {
			row[leaf] = parquet.NullValue().Level(0, 0, leaf)
			continue
		}
		row[leaf] = parquet.ByteArrayValue([]byte(text)).Level(0, 1, leaf)
	}
	if _, err := p.writer.WriteRows([]parquet.Row{row}); err != nil {
		return fmt.Errorf("write parquet row: %w", err)
	}
	return nil
}

// Close finalizes the file. An empty result with no columns writes nothing.
func (p *Parquet) Close() error {
	if p.writer == nil {
		return nil
	}
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return nil
}

// uniqueNames makes column names usable as parquet field names: empty names
// get a positional name and repeats get a numeric suffix.
func uniqueNames(columns []string) []string {
	seen := make(map[string]bool, len(columns))
	names := make([]string, len(columns))
	for i, column := range columns {
		name := column
		if name == "" {
			name = "column_" + strconv.Itoa(i+1)
		}
		candidate := name
		for n := 2; seen[candidate]; n++ {
			candidate = name + "_" + strconv.Itoa(n)
		}
		seen[candidate] = true
		names[i] = candidate
	}
	return names
}
