package sink

import (
	"io"

	"github.com/olekukonko/tablewriter"
)

// Table renders an ASCII table once Close is called.
type Table struct {
	table   *tablewriter.Table
	columns []string
}

func NewTable(w io.Writer) *Table {
	table := tablewriter.NewWriter(w)
	table.SetColWidth(24)
	table.SetRowLine(false)
	return &Table{table: table}
}

func (t *Table) SetColumns(columns []string) error {
	t.columns = columns
	t.table.SetHeader(columns)
	t.table.SetAutoFormatHeaders(false)
	return nil
}

func (t *Table) WriteRow(values []any) error {
	if err := checkWidth(t.columns, values); err != nil {
		return err
	}
	row := make([]string, len(values))
	for i, value := range values {
		text, ok := formatValue(value)
		if !ok {
			text = "NULL"
		}
		row[i] = text
	}
	t.table.Append(row)
	return nil
}

func (t *Table) Close() error {
	if len(t.columns) == 0 {
		return nil
	}
	t.table.Render()
	return nil
}
