package data

import (
	"errors"
	"io"
)

// DataSet is a single-pass, forward-only cursor over rows. It owns the
// resource that produced its rows. Next reports false at the end of the
// rows or on error; Err distinguishes the two. A DataSet that fails closes
// itself. Close may be called at any time and more than once.
//
// A DataSet is not safe for concurrent use.
type DataSet interface {
	Header() *Header
	Next() bool
	Row() Row
	Err() error
	Close() error
}

// FetchFunc returns the next raw value slice, or io.EOF when exhausted.
type FetchFunc func() ([]interface{}, error)

// CloseFunc releases the resource behind a DataSet.
type CloseFunc func() error

// cursor implements the close and error bookkeeping shared by DataSets.
type cursor struct {
	header  *Header
	current Row
	err     error
	closed  bool
	onClose CloseFunc
}

func (c *cursor) Header() *Header { return c.header }
func (c *cursor) Row() Row        { return c.current }
func (c *cursor) Err() error      { return c.err }

func (c *cursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.current = Row{}
	if c.onClose != nil {
		return c.onClose()
	}
	return nil
}

// fail records err and closes the cursor.
func (c *cursor) fail(err error) bool {
	c.err = err
	if cerr := c.Close(); cerr != nil {
		c.err = errors.Join(err, cerr)
	}
	return false
}

// finish closes the cursor at the natural end of its rows.
func (c *cursor) finish() bool {
	if err := c.Close(); err != nil {
		c.err = err
	}
	return false
}

// StreamDataSet adapts a fetch function, typically over a source handle,
// into a DataSet.
type StreamDataSet struct {
	cursor
	fetch FetchFunc
}

// NewStreamDataSet creates a DataSet that pulls values from fetch and calls
// closer exactly once when closed, exhausted or failed.
func NewStreamDataSet(header *Header, fetch FetchFunc, closer CloseFunc) *StreamDataSet {
	return &StreamDataSet{
		cursor: cursor{header: header, onClose: closer},
		fetch:  fetch,
	}
}

// Next advances to the next row.
func (s *StreamDataSet) Next() bool {
	if s.closed {
		return false
	}
	values, err := s.fetch()
	if err == io.EOF {
		return s.finish()
	}
	if err != nil {
		return s.fail(err)
	}
	s.current = NewRow(s.header, values)
	return true
}

// SliceDataSet iterates rows held in memory.
type SliceDataSet struct {
	cursor
	rows []Row
	pos  int
}

// NewSliceDataSet creates a DataSet over materialized rows.
func NewSliceDataSet(header *Header, rows []Row) *SliceDataSet {
	return &SliceDataSet{cursor: cursor{header: header}, rows: rows}
}

// NewValuesDataSet creates a DataSet over raw value slices.
func NewValuesDataSet(header *Header, values [][]interface{}) *SliceDataSet {
	rows := make([]Row, len(values))
	for i, v := range values {
		rows[i] = NewRow(header, v)
	}
	return NewSliceDataSet(header, rows)
}

// Next advances to the next row.
func (s *SliceDataSet) Next() bool {
	if s.closed || s.pos >= len(s.rows) {
		s.current = Row{}
		return false
	}
	s.current = s.rows[s.pos]
	s.pos++
	return true
}

// Len returns the total number of rows held.
func (s *SliceDataSet) Len() int {
	return len(s.rows)
}

// filtered drops rows rejected by accept.
type filtered struct {
	cursor
	source DataSet
	accept func(Row) bool
}

// Filter returns a DataSet yielding only the rows of ds accepted by accept.
func Filter(ds DataSet, accept func(Row) bool) DataSet {
	return &filtered{
		cursor: cursor{header: ds.Header(), onClose: ds.Close},
		source: ds,
		accept: accept,
	}
}

func (f *filtered) Next() bool {
	if f.closed {
		return false
	}
	for f.source.Next() {
		row := f.source.Row()
		if f.accept(row) {
			f.current = row
			return true
		}
	}
	if err := f.source.Err(); err != nil {
		return f.fail(err)
	}
	return f.finish()
}

// mapped transforms each row into a row of a new header.
type mapped struct {
	cursor
	source    DataSet
	transform func(Row) ([]interface{}, error)
}

// Map returns a DataSet whose rows are transform applied to the rows of ds.
func Map(ds DataSet, header *Header, transform func(Row) ([]interface{}, error)) DataSet {
	return &mapped{
		cursor:    cursor{header: header, onClose: ds.Close},
		source:    ds,
		transform: transform,
	}
}

func (m *mapped) Next() bool {
	if m.closed {
		return false
	}
	if !m.source.Next() {
		if err := m.source.Err(); err != nil {
			return m.fail(err)
		}
		return m.finish()
	}
	values, err := m.transform(m.source.Row())
	if err != nil {
		return m.fail(err)
	}
	m.current = NewRow(m.header, values)
	return true
}

// paginated skips offset rows and stops after maxRows.
type paginated struct {
	cursor
	source    DataSet
	skip      int
	remaining int
}

// Paginate skips the first offset rows of ds and yields at most maxRows rows;
// a negative maxRows means no cap. The source is closed as soon as the cap is
// reached, so no further rows are pulled from it.
func Paginate(ds DataSet, offset, maxRows int) DataSet {
	if offset <= 0 && maxRows < 0 {
		return ds
	}
	return &paginated{
		cursor:    cursor{header: ds.Header(), onClose: ds.Close},
		source:    ds,
		skip:      offset,
		remaining: maxRows,
	}
}

func (p *paginated) Next() bool {
	if p.closed {
		return false
	}
	if p.remaining == 0 {
		return p.finish()
	}
	for p.skip > 0 {
		if !p.source.Next() {
			return p.end()
		}
		p.skip--
	}
	if !p.source.Next() {
		return p.end()
	}
	p.current = p.source.Row()
	if p.remaining > 0 {
		p.remaining--
	}
	return true
}

func (p *paginated) end() bool {
	if err := p.source.Err(); err != nil {
		return p.fail(err)
	}
	return p.finish()
}

// ToRows drains ds into memory and closes it.
func ToRows(ds DataSet) ([]Row, error) {
	defer ds.Close()
	var rows []Row
	for ds.Next() {
		rows = append(rows, ds.Row())
	}
	if err := ds.Err(); err != nil {
		return nil, err
	}
	return rows, nil
}

// Materialize drains ds into an in-memory DataSet with the same header.
func Materialize(ds DataSet) (*SliceDataSet, error) {
	rows, err := ToRows(ds)
	if err != nil {
		return nil, err
	}
	return NewSliceDataSet(ds.Header(), rows), nil
}
