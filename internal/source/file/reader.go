package file

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	qerrors "github.com/arkilian/metaquery/internal/errors"
	"github.com/arkilian/metaquery/internal/query/data"
)

// recordReader yields the raw records of a file, one per line or CSV record.
type recordReader interface {
	// Read returns the next record and its 1-based row number in the file,
	// counting the header line. It returns io.EOF at the end.
	Read() ([]interface{}, int, error)
}

// csvReader reads delimited text.
type csvReader struct {
	r   *csv.Reader
	row int
}

func newCSVReader(r io.Reader, delimiter rune) *csvReader {
	cr := csv.NewReader(r)
	if delimiter != 0 {
		cr.Comma = delimiter
	}
	cr.FieldsPerRecord = -1 // row shape is checked by the consistency policy
	cr.LazyQuotes = true
	cr.ReuseRecord = true
	return &csvReader{r: cr}
}

func (c *csvReader) Read() ([]interface{}, int, error) {
	record, err := c.r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, c.row, io.EOF
		}
		return nil, c.row + 1, qerrors.NewIOError(qerrors.CodeReadFailed,
			fmt.Sprintf("parse row %d", c.row+1), err)
	}
	c.row++
	values := make([]interface{}, len(record))
	for i, v := range record {
		values[i] = v
	}
	return values, c.row, nil
}

// fixedWidthReader splits each line by declared column widths.
type fixedWidthReader struct {
	s      *bufio.Scanner
	widths []int
	total  int
	strict bool
	exempt int // leading lines not checked in strict mode
	row    int
}

func newFixedWidthReader(r io.Reader, widths []int, strict bool) *fixedWidthReader {
	total := 0
	for _, w := range widths {
		total += w
	}
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 64*1024), 16*1024*1024)
	return &fixedWidthReader{s: s, widths: widths, total: total, strict: strict}
}

func (f *fixedWidthReader) Read() ([]interface{}, int, error) {
	if !f.s.Scan() {
		if err := f.s.Err(); err != nil {
			return nil, f.row + 1, qerrors.NewIOError(qerrors.CodeReadFailed,
				fmt.Sprintf("read row %d", f.row+1), err)
		}
		return nil, f.row, io.EOF
	}
	f.row++
	line := strings.TrimRight(f.s.Text(), "\r")
	values := splitFixedWidth(line, f.widths)

	if f.strict && f.row > f.exempt && utf8.RuneCountInString(line) != f.total {
		return nil, f.row, &qerrors.InconsistentRowError{
			RowNumber: f.row,
			Expected:  len(f.widths),
			Values:    stringValues(values),
		}
	}
	return values, f.row, nil
}

// splitFixedWidth cuts line into fields of the given widths, counted in
// runes. A short line yields fewer fields, the last possibly partial; a long
// line yields one extra field holding the remainder. Fields are trimmed.
func splitFixedWidth(line string, widths []int) []interface{} {
	runes := []rune(line)
	values := make([]interface{}, 0, len(widths)+1)
	pos := 0
	for _, w := range widths {
		if pos >= len(runes) {
			break
		}
		end := pos + w
		if end > len(runes) {
			end = len(runes)
		}
		values = append(values, strings.TrimSpace(string(runes[pos:end])))
		pos = end
	}
	if pos < len(runes) {
		values = append(values, strings.TrimSpace(string(runes[pos:])))
	}
	return values
}

func stringValues(values []interface{}) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = fmt.Sprint(v)
	}
	return out
}

// aligned applies the consistency policy to every record of r.
type aligned struct {
	r           recordReader
	columns     int
	consistency data.Consistency
}

func (a *aligned) Read() ([]interface{}, int, error) {
	values, row, err := a.r.Read()
	if err != nil {
		return nil, row, err
	}
	values, err = a.consistency.Align(values, a.columns, row)
	return values, row, err
}
