// Package sqldb implements a data source over a relational database reached
// through database/sql. Schemas come from the database catalog; rows are
// streamed unfiltered and writes use native SQL statements.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	qerrors "github.com/arkilian/metaquery/internal/errors"
	"github.com/arkilian/metaquery/internal/query/data"
	"github.com/arkilian/metaquery/internal/source"
	"github.com/arkilian/metaquery/pkg/types"
)

// DataContext is a database-backed source.
type DataContext struct {
	db      *sql.DB
	dialect *Dialect
	cache   *source.SchemaCache
	logger  *zap.Logger
	release func()
}

// Option configures a DataContext.
type Option func(*DataContext)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(d *DataContext) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// New creates a source over an open handle. Closing the source does not
// close db.
func New(db *sql.DB, dialect *Dialect, opts ...Option) *DataContext {
	d := &DataContext{
		db:      db,
		dialect: dialect,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.cache = source.NewSchemaCache(d.discover, types.DefaultSchemaOrder)
	return d
}

// Open creates a source over a pooled handle for dsn. Close returns the
// handle to the pool.
func Open(ctx context.Context, pool *Pool, dialect *Dialect, dsn string, opts ...Option) (*DataContext, error) {
	db, err := pool.Get(ctx, dialect, dsn)
	if err != nil {
		return nil, err
	}
	d := New(db, dialect, opts...)
	d.release = func() { pool.Release(dialect, dsn) }
	return d, nil
}

// Close releases the source's handle.
func (d *DataContext) Close() error {
	if d.release != nil {
		d.release()
		d.release = nil
	}
	return nil
}

// Dialect returns the source's dialect.
func (d *DataContext) Dialect() *Dialect {
	return d.dialect
}

// Schemas returns the discovered schemas.
func (d *DataContext) Schemas(ctx context.Context) ([]*types.Schema, error) {
	return d.cache.Schemas(ctx)
}

// Refresh rereads the catalog.
func (d *DataContext) Refresh(ctx context.Context) error {
	return d.cache.Refresh(ctx)
}

// selectStatement renders the scan of req. A request without columns still
// selects a constant so every row is delivered.
func (d *DataContext) selectStatement(req source.Request) string {
	st := newStatement(d.dialect)
	st.write("SELECT ")
	if len(req.Columns) == 0 {
		st.write("1")
	}
	for i, c := range req.Columns {
		if i > 0 {
			st.write(", ")
		}
		st.write(d.dialect.Quote(c.Name))
	}
	st.write(" FROM ", d.dialect.TableName(req.Table))
	if req.MaxRows >= 0 {
		st.write(" LIMIT ", strconv.Itoa(req.MaxRows))
	}
	return st.String()
}

// Materialize streams the table's rows, pushing the row hint down as LIMIT.
func (d *DataContext) Materialize(ctx context.Context, req source.Request) (data.DataSet, error) {
	query := d.selectStatement(req)
	d.logger.Debug("materialize", zap.String("sql", query))

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, qerrors.NewIOError(qerrors.CodeReadFailed,
			fmt.Sprintf("scan %s", req.Table.QualifiedName()), err)
	}

	width := len(req.Columns)
	if width == 0 {
		width = 1
	}
	delivered := 0
	return data.NewStreamDataSet(source.ColumnHeader(req.Columns), func() ([]interface{}, error) {
		if req.Exhausted(delivered) {
			return nil, io.EOF
		}
		if !rows.Next() {
			if err := rows.Err(); err != nil {
				return nil, qerrors.NewIOError(qerrors.CodeReadFailed,
					fmt.Sprintf("scan %s", req.Table.QualifiedName()), err)
			}
			return nil, io.EOF
		}
		raw := make([]interface{}, width)
		dest := make([]interface{}, width)
		for i := range raw {
			dest[i] = &raw[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, qerrors.NewIOError(qerrors.CodeReadFailed,
				fmt.Sprintf("scan %s", req.Table.QualifiedName()), err)
		}
		values := make([]interface{}, len(req.Columns))
		for i, c := range req.Columns {
			values[i] = convert(raw[i], c)
		}
		delivered++
		return values, nil
	}, rows.Close), nil
}

// convert normalizes driver values to the engine's value set.
func convert(v interface{}, c *types.Column) interface{} {
	switch val := v.(type) {
	case []byte:
		if c.Type == types.ColumnTypeBinary {
			return append([]byte(nil), val...)
		}
		v = string(val)
	case int:
		v = int64(val)
	case int32:
		v = int64(val)
	case float32:
		v = float64(val)
	}

	switch {
	case c.Type.IsDecimal():
		switch val := v.(type) {
		case string:
			if dec, err := decimal.NewFromString(strings.TrimSpace(val)); err == nil {
				return dec
			}
		case float64:
			return decimal.NewFromFloat(val)
		}
	case c.Type == types.ColumnTypeBoolean:
		if n, ok := v.(int64); ok {
			return n != 0
		}
	}
	return v
}
