package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/fatih/color"

	"github.com/arkilian/metaquery/internal/observability"
	"github.com/arkilian/metaquery/internal/query/compare"
)

var (
	headerColor = color.New(color.FgCyan, color.Bold)
	nullColor   = color.New(color.Faint)
	statsColor  = color.New(color.FgYellow)
)

// rowWriter renders a result set.
type rowWriter interface {
	WriteHeader(labels []string) error
	WriteRow(values []interface{}) error
	Flush() error
}

func newRowWriter(format string, out io.Writer) (rowWriter, error) {
	switch strings.ToLower(format) {
	case "table", "":
		return &tableWriter{out: out}, nil
	case "csv":
		return &csvWriter{w: csv.NewWriter(out)}, nil
	case "json":
		return &jsonWriter{enc: json.NewEncoder(out)}, nil
	}
	return nil, fmt.Errorf("unknown output format %q (must be table, csv or json)", format)
}

// formatValue renders a value for text output.
func formatValue(v interface{}) string {
	switch v := v.(type) {
	case nil:
		return ""
	case time.Time:
		return v.Format(time.RFC3339Nano)
	case []byte:
		return string(v)
	}
	return compare.ToString(v)
}

// tableWriter buffers the rows to align columns.
type tableWriter struct {
	out    io.Writer
	labels []string
	rows   [][]string
	nulls  [][]bool
}

func (t *tableWriter) WriteHeader(labels []string) error {
	t.labels = labels
	return nil
}

func (t *tableWriter) WriteRow(values []interface{}) error {
	cells := make([]string, len(values))
	nulls := make([]bool, len(values))
	for i, v := range values {
		if v == nil {
			cells[i], nulls[i] = "null", true
			continue
		}
		cells[i] = formatValue(v)
	}
	t.rows = append(t.rows, cells)
	t.nulls = append(t.nulls, nulls)
	return nil
}

func (t *tableWriter) Flush() error {
	widths := make([]int, len(t.labels))
	for i, l := range t.labels {
		widths[i] = utf8.RuneCountInString(l)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(widths) {
				widths[i] = max(widths[i], utf8.RuneCountInString(cell))
			}
		}
	}

	var b strings.Builder
	for i, l := range t.labels {
		if i > 0 {
			b.WriteString("  ")
		}
		b.WriteString(headerColor.Sprint(pad(l, widths[i])))
	}
	b.WriteByte('\n')
	for r, row := range t.rows {
		for i, cell := range row {
			if i > 0 {
				b.WriteString("  ")
			}
			cell = pad(cell, widths[min(i, len(widths)-1)])
			if t.nulls[r][i] {
				cell = nullColor.Sprint(cell)
			}
			b.WriteString(cell)
		}
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "(%d rows)\n", len(t.rows))

	_, err := io.WriteString(t.out, b.String())
	return err
}

func pad(s string, width int) string {
	if n := utf8.RuneCountInString(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}

type csvWriter struct {
	w *csv.Writer
}

func (c *csvWriter) WriteHeader(labels []string) error {
	return c.w.Write(labels)
}

func (c *csvWriter) WriteRow(values []interface{}) error {
	record := make([]string, len(values))
	for i, v := range values {
		record[i] = formatValue(v)
	}
	return c.w.Write(record)
}

func (c *csvWriter) Flush() error {
	c.w.Flush()
	return c.w.Error()
}

// jsonWriter emits one object per row, keyed by column label.
type jsonWriter struct {
	enc    *json.Encoder
	labels []string
}

func (j *jsonWriter) WriteHeader(labels []string) error {
	j.labels = labels
	return nil
}

func (j *jsonWriter) WriteRow(values []interface{}) error {
	obj := make(map[string]interface{}, len(values))
	for i, v := range values {
		if i < len(j.labels) {
			obj[j.labels[i]] = v
		}
	}
	return j.enc.Encode(obj)
}

func (j *jsonWriter) Flush() error {
	return nil
}

func printSummary(w io.Writer, s observability.Summary) {
	statsColor.Fprintf(w, "queries=%d failures=%d rows=%d mean=%s\n",
		s.Queries, s.Failures, s.RowsServed, s.MeanTime)
}
