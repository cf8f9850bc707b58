// Package memory implements an in-memory data source. It supports inserts,
// deletes and table creation but has no native UPDATE, so updates against it
// go through delete-and-insert emulation.
package memory

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"

	qerrors "github.com/arkilian/metaquery/internal/errors"
	"github.com/arkilian/metaquery/internal/query/data"
	"github.com/arkilian/metaquery/internal/query/filter"
	"github.com/arkilian/metaquery/internal/source"
	"github.com/arkilian/metaquery/internal/update"
	"github.com/arkilian/metaquery/pkg/types"
)

type table struct {
	meta *types.Table
	rows [][]interface{}
}

// DataContext is an in-memory source with a single schema. Row slices are
// replaced, never modified in place, so open DataSets keep reading the rows
// that existed when they were materialized.
type DataContext struct {
	mu     sync.RWMutex
	schema *types.Schema
	tables map[string]*table

	evaluator *filter.Evaluator
	logger    *zap.Logger
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

// New creates an empty in-memory source with the named schema.
func New(schemaName string, opts ...Option) *DataContext {
	d := &DataContext{
		schema: types.NewSchema(schemaName),
		tables: make(map[string]*table),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.evaluator = filter.NewEvaluator(filter.WithLogger(d.logger))
	return d
}

// Schemas returns the current snapshot.
func (d *DataContext) Schemas(ctx context.Context) ([]*types.Schema, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return []*types.Schema{d.schema}, nil
}

// Materialize streams the rows of req.Table projected onto req.Columns.
func (d *DataContext) Materialize(ctx context.Context, req source.Request) (data.DataSet, error) {
	d.mu.RLock()
	t, ok := d.tables[strings.ToLower(req.Table.Name)]
	var rows [][]interface{}
	if ok {
		rows = t.rows
	}
	d.mu.RUnlock()
	if !ok {
		return nil, qerrors.NewConfigurationError(qerrors.CodeUnresolvedTable,
			fmt.Sprintf("no such table: %s", req.Table.QualifiedName()))
	}

	columns := make([]*types.Column, len(req.Columns))
	for i, c := range req.Columns {
		col, ok := t.meta.Column(c.Name)
		if !ok {
			return nil, qerrors.NewConfigurationError(qerrors.CodeUnresolvedColumn,
				fmt.Sprintf("no such column: %s.%s", t.meta.QualifiedName(), c.Name))
		}
		columns[i] = col
	}

	pos := 0
	return data.NewStreamDataSet(source.ColumnHeader(req.Columns), func() ([]interface{}, error) {
		if pos >= len(rows) || req.Exhausted(pos) {
			return nil, io.EOF
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pos++
		return source.Project(t.meta, columns, rows[pos-1]), nil
	}, nil), nil
}

// Capabilities reports insert, delete, create and drop support.
func (d *DataContext) Capabilities() update.Capabilities {
	return update.Capabilities{Insert: true, Delete: true, CreateTable: true, DropTable: true}
}

// CreateTable adds a table to the schema.
func (d *DataContext) CreateTable(ctx context.Context, stmt update.CreateTable) (*types.Table, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if stmt.Schema != "" && !strings.EqualFold(stmt.Schema, d.schema.Name) {
		return nil, qerrors.NewConfigurationError(qerrors.CodeUnresolvedSchema,
			fmt.Sprintf("no such schema: %s", stmt.Schema))
	}
	key := strings.ToLower(stmt.Name)
	if _, exists := d.tables[key]; exists {
		return nil, qerrors.NewQueryError(qerrors.CodeInvalidQuery,
			fmt.Sprintf("table %s already exists", stmt.Name))
	}

	meta := types.NewTable(stmt.Name, types.TableTypeTable)
	for _, c := range stmt.Columns {
		meta.AddColumn(c)
	}

	next := &types.Schema{Name: d.schema.Name}
	next.Tables = append(append([]*types.Table(nil), d.schema.Tables...), meta)
	meta.Schema = next
	d.schema = next
	d.tables[key] = &table{meta: meta}

	d.logger.Debug("created table", zap.String("table", meta.QualifiedName()), zap.Int("columns", len(meta.Columns)))
	return meta, nil
}

// DropTable removes a table and its rows.
func (d *DataContext) DropTable(ctx context.Context, stmt update.DropTable) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := strings.ToLower(stmt.Table.Name)
	t, ok := d.tables[key]
	if !ok {
		return qerrors.NewConfigurationError(qerrors.CodeUnresolvedTable,
			fmt.Sprintf("no such table: %s", stmt.Table.QualifiedName()))
	}
	next := &types.Schema{Name: d.schema.Name}
	for _, other := range d.schema.Tables {
		if other != t.meta {
			next.Tables = append(next.Tables, other)
		}
	}
	d.schema = next
	delete(d.tables, key)
	return nil
}

// Insert appends a row.
func (d *DataContext) Insert(ctx context.Context, stmt update.Insert) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	t, err := d.lookup(stmt.Table)
	if err != nil {
		return err
	}
	row := make([]interface{}, len(t.meta.Columns))
	for name, v := range stmt.Values {
		col, ok := t.meta.Column(name)
		if !ok {
			return qerrors.NewConfigurationError(qerrors.CodeUnresolvedColumn,
				fmt.Sprintf("no such column: %s.%s", t.meta.QualifiedName(), name))
		}
		row[col.Position] = v
	}
	t.rows = append(t.rows[:len(t.rows):len(t.rows)], row)
	return nil
}

// Delete removes the rows accepted by every Where filter.
func (d *DataContext) Delete(ctx context.Context, stmt update.Delete) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	t, err := d.lookup(stmt.Table)
	if err != nil {
		return 0, err
	}
	header := source.ColumnHeader(t.meta.Columns)
	kept := make([][]interface{}, 0, len(t.rows))
	for _, values := range t.rows {
		if !d.evaluator.AcceptAll(stmt.Where, data.NewRow(header, values)) {
			kept = append(kept, values)
		}
	}
	deleted := int64(len(t.rows) - len(kept))
	t.rows = kept
	return deleted, nil
}

// Update is not supported natively.
func (d *DataContext) Update(ctx context.Context, stmt update.Update) (int64, error) {
	return 0, qerrors.NewUnsupportedError("memory source has no native update")
}

// Load creates a table and fills it with positional rows.
func (d *DataContext) Load(name string, columns []types.Column, rows [][]interface{}) (*types.Table, error) {
	ctx := context.Background()
	t, err := d.CreateTable(ctx, update.CreateTable{Name: name, Columns: columns})
	if err != nil {
		return nil, err
	}
	for i, r := range rows {
		if len(r) != len(t.Columns) {
			values := make([]string, len(r))
			for j, v := range r {
				values[j] = fmt.Sprint(v)
			}
			return nil, &qerrors.InconsistentRowError{RowNumber: i + 1, Expected: len(t.Columns), Values: values}
		}
		values := make(map[string]interface{}, len(r))
		for j, c := range t.Columns {
			values[c.Name] = r[j]
		}
		if err := d.Insert(ctx, update.Insert{Table: t, Values: values}); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (d *DataContext) lookup(meta *types.Table) (*table, error) {
	t, ok := d.tables[strings.ToLower(meta.Name)]
	if !ok {
		return nil, qerrors.NewConfigurationError(qerrors.CodeUnresolvedTable,
			fmt.Sprintf("no such table: %s", meta.QualifiedName()))
	}
	return t, nil
}
