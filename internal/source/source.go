// Package source defines the contract between the query engine and the data
// sources it postprocesses, plus source-independent helpers: a guarded
// schema cache and information schema synthesis.
package source

import (
	"context"
	"sync"

	"github.com/arkilian/metaquery/internal/query/ast"
	"github.com/arkilian/metaquery/internal/query/data"
	"github.com/arkilian/metaquery/pkg/types"
)

// Request asks a source for the raw rows of one table.
type Request struct {
	Table *types.Table
	// Columns is the exact column set to return, in this order.
	Columns []*types.Column
	// MaxRows is an upper bound on the rows the caller will consume, or
	// ast.Unbounded. Sources may honor it fully, partially or not at all.
	MaxRows int
}

// Exhausted reports whether n delivered rows satisfy the MaxRows hint.
func (r Request) Exhausted(n int) bool {
	return r.MaxRows >= 0 && n >= r.MaxRows
}

// DataContext is a connected data source. Materialize returns a DataSet
// whose header is ColumnHeader(req.Columns) and whose rows are unfiltered;
// the engine applies every relational operation itself.
type DataContext interface {
	Schemas(ctx context.Context) ([]*types.Schema, error)
	Materialize(ctx context.Context, req Request) (data.DataSet, error)
}

// ColumnHeader builds the header of a raw table DataSet.
func ColumnHeader(columns []*types.Column) *data.Header {
	items := make([]*ast.SelectItem, len(columns))
	for i, c := range columns {
		items[i] = ast.ColumnItem(c)
	}
	return data.NewHeader(items...)
}

// Project maps full table rows onto the requested columns.
func Project(table *types.Table, columns []*types.Column, full []interface{}) []interface{} {
	out := make([]interface{}, len(columns))
	for i, c := range columns {
		if c.Position < len(full) && c.Table == table {
			out[i] = full[c.Position]
		}
	}
	return out
}

// DiscoverFunc performs a full schema discovery pass.
type DiscoverFunc func(ctx context.Context) ([]*types.Schema, error)

// SchemaCache memoizes schema discovery. Discovery runs once on first use and
// again only on Refresh; the mutex is held only while discovering. Returned
// snapshots are never mutated afterwards.
type SchemaCache struct {
	discover DiscoverFunc
	order    types.SchemaOrder

	mu      sync.Mutex
	schemas []*types.Schema
	loaded  bool
}

// NewSchemaCache creates a cache over discover. Snapshots are sorted with
// order; a nil order keeps discovery order.
func NewSchemaCache(discover DiscoverFunc, order types.SchemaOrder) *SchemaCache {
	return &SchemaCache{discover: discover, order: order}
}

// Schemas returns the current snapshot, discovering it if necessary.
func (c *SchemaCache) Schemas(ctx context.Context) ([]*types.Schema, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded {
		if err := c.load(ctx); err != nil {
			return nil, err
		}
	}
	return append([]*types.Schema(nil), c.schemas...), nil
}

// Refresh rediscovers the schemas, replacing the snapshot.
func (c *SchemaCache) Refresh(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.load(ctx)
}

func (c *SchemaCache) load(ctx context.Context) error {
	schemas, err := c.discover(ctx)
	if err != nil {
		return err
	}
	if c.order != nil {
		types.SortSchemas(schemas, c.order)
	}
	c.schemas = schemas
	c.loaded = true
	return nil
}

// FindTable looks a table up by schema and table name in a snapshot.
func FindTable(schemas []*types.Schema, schema, table string) (*types.Table, bool) {
	for _, s := range schemas {
		if s.Name == schema {
			return s.Table(table)
		}
	}
	return nil, false
}
