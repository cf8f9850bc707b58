package source

import (
	"context"
	"fmt"
	"io"

	qerrors "github.com/arkilian/metaquery/internal/errors"
	"github.com/arkilian/metaquery/internal/query/data"
	"github.com/arkilian/metaquery/pkg/types"
)

// Information schema table names.
const (
	InfoTables        = "tables"
	InfoColumns       = "columns"
	InfoRelationships = "relationships"
)

// informationSchema wraps a DataContext with a synthetic, read-only schema
// describing the wrapped source's tables, columns and relationships.
type informationSchema struct {
	DataContext
}

// WithInformationSchema exposes an information_schema alongside the schemas of
// dc. Its contents reflect the snapshot returned by dc.Schemas at query time.
func WithInformationSchema(dc DataContext) DataContext {
	if _, ok := dc.(*informationSchema); ok {
		return dc
	}
	return &informationSchema{DataContext: dc}
}

// Schemas returns the wrapped schemas followed by the information schema.
func (i *informationSchema) Schemas(ctx context.Context) ([]*types.Schema, error) {
	schemas, err := i.DataContext.Schemas(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*types.Schema, 0, len(schemas)+1)
	for _, s := range schemas {
		if !s.IsInformationSchema() {
			out = append(out, s)
		}
	}
	return append(out, NewInformationSchema()), nil
}

// Materialize serves information schema tables and delegates everything else.
func (i *informationSchema) Materialize(ctx context.Context, req Request) (data.DataSet, error) {
	if req.Table.Schema == nil || !req.Table.Schema.IsInformationSchema() {
		return i.DataContext.Materialize(ctx, req)
	}
	schemas, err := i.DataContext.Schemas(ctx)
	if err != nil {
		return nil, err
	}

	var rows [][]interface{}
	switch req.Table.Name {
	case InfoTables:
		rows = tableRows(schemas)
	case InfoColumns:
		rows = columnRows(schemas)
	case InfoRelationships:
		rows = relationshipRows(schemas)
	default:
		return nil, qerrors.NewConfigurationError(qerrors.CodeUnresolvedTable,
			fmt.Sprintf("no such table: %s", req.Table.QualifiedName()))
	}

	pos := 0
	return data.NewStreamDataSet(ColumnHeader(req.Columns), func() ([]interface{}, error) {
		if pos >= len(rows) || req.Exhausted(pos) {
			return nil, io.EOF
		}
		pos++
		return Project(req.Table, req.Columns, rows[pos-1]), nil
	}, nil), nil
}

// NewInformationSchema builds the metadata of the information schema.
func NewInformationSchema() *types.Schema {
	s := types.NewSchema(types.InformationSchemaName)

	tables := s.AddTable(InfoTables, types.TableTypeSystem)
	addStringColumns(tables, "schema", "name", "type", "remarks")

	columns := s.AddTable(InfoColumns, types.TableTypeSystem)
	addStringColumns(columns, "schema", "table", "name", "type", "native_type")
	columns.AddColumn(types.Column{Name: "size", Type: types.ColumnTypeInteger, NativeType: "INTEGER"})
	columns.AddColumn(types.Column{Name: "nullable", Type: types.ColumnTypeBoolean, NativeType: "BOOLEAN"})
	columns.AddColumn(types.Column{Name: "primary_key", Type: types.ColumnTypeBoolean, NativeType: "BOOLEAN"})
	columns.AddColumn(types.Column{Name: "position", Type: types.ColumnTypeInteger, NativeType: "INTEGER"})
	addStringColumns(columns, "remarks")

	rels := s.AddTable(InfoRelationships, types.TableTypeSystem)
	addStringColumns(rels, "primary_schema", "primary_table", "primary_column",
		"foreign_schema", "foreign_table", "foreign_column")

	return s
}

func addStringColumns(t *types.Table, names ...string) {
	for _, n := range names {
		t.AddColumn(types.Column{Name: n, Type: types.ColumnTypeVarchar, NativeType: "VARCHAR", Nullable: true})
	}
}

func tableRows(schemas []*types.Schema) [][]interface{} {
	var rows [][]interface{}
	for _, s := range schemas {
		for _, t := range s.Tables {
			rows = append(rows, []interface{}{s.Name, t.Name, string(t.Type), nullIfEmpty(t.Remarks)})
		}
	}
	return rows
}

func columnRows(schemas []*types.Schema) [][]interface{} {
	var rows [][]interface{}
	for _, s := range schemas {
		for _, t := range s.Tables {
			for _, c := range t.Columns {
				rows = append(rows, []interface{}{
					s.Name, t.Name, c.Name, c.Type.String(), nullIfEmpty(c.NativeType),
					int64(c.Size), c.Nullable, c.PrimaryKey, int64(c.Position), nullIfEmpty(c.Remarks),
				})
			}
		}
	}
	return rows
}

func relationshipRows(schemas []*types.Schema) [][]interface{} {
	var rows [][]interface{}
	seen := make(map[*types.Relationship]bool)
	for _, s := range schemas {
		for _, t := range s.Tables {
			for _, r := range t.Relationships {
				if seen[r] {
					continue
				}
				seen[r] = true
				for i := range r.PrimaryColumns {
					if i >= len(r.ForeignColumns) {
						break
					}
					rows = append(rows, []interface{}{
						schemaName(r.PrimaryTable), r.PrimaryTable.Name, r.PrimaryColumns[i].Name,
						schemaName(r.ForeignTable), r.ForeignTable.Name, r.ForeignColumns[i].Name,
					})
				}
			}
		}
	}
	return rows
}

func schemaName(t *types.Table) interface{} {
	if t.Schema == nil {
		return nil
	}
	return t.Schema.Name
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
