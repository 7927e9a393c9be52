package sink

import (
	"encoding/csv"
	"fmt"
	"io"
)

// CSV writes a header row followed by one record per row. NULL is written
// as an empty field.
type CSV struct {
	w       *csv.Writer
	columns []string
}

func NewCSV(w io.Writer) *CSV {
	return &CSV{w: csv.NewWriter(w)}
}

func (c *CSV) SetColumns(columns []string) error {
	c.columns = columns
	if len(columns) == 0 {
		return nil
	}
	if err := c.w.Write(columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	return nil
}

func (c *CSV) WriteRow(values []any) error {
	if err := checkWidth(c.columns, values); err != nil {
		return err
	}
	record := make([]string, len(values))
	for i, value := range values {
		record[i], _ = formatValue(value)
	}
	if err := c.w.Write(record); err != nil {
		return fmt.Errorf("write csv record: %w", err)
	}
	return nil
}

func (c *CSV) Close() error {
	c.w.Flush()
	return c.w.Error()
}
