package sink

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

// JSONLines writes one JSON object per row with keys in column order.
type JSONLines struct {
	w       *bufio.Writer
	columns []string
	keys    [][]byte
}

func NewJSONLines(w io.Writer) *JSONLines {
	return &JSONLines{w: bufio.NewWriter(w)}
}

func (j *JSONLines) SetColumns(columns []string) error {
	j.columns = columns
	j.keys = make([][]byte, len(columns))
	for i, column := range columns {
		key, err := json.Marshal(column)
		if err != nil {
			return fmt.Errorf("encode column %q: %w", column, err)
		}
		j.keys[i] = key
	}
	return nil
}

func (j *JSONLines) WriteRow(values []any) error {
	if err := checkWidth(j.columns, values); err != nil {
		return err
	}
	_ = j.w.WriteByte('{')
	for i, value := range values {
		if i > 0 {
			_ = j.w.WriteByte(',')
		}
		_, _ = j.w.Write(j.keys[i])
		_ = j.w.WriteByte(':')
		encoded, err := json.Marshal(value)
		if err != nil {
			// NaN, Inf and driver specific types fall back to their text form.
			text, _ := formatValue(value)
			encoded, _ = json.Marshal(text)
		}
		_, _ = j.w.Write(encoded)
	}
	_ = j.w.WriteByte('}')
	if err := j.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("write json row: %w", err)
	}
	return nil
}

func (j *JSONLines) Close() error {
	return j.w.Flush()
}
