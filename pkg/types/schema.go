package types

import (
	"sort"
	"strings"
)

// InformationSchemaName is the name of the synthetic schema describing a
// source's own schemas, tables and columns.
const InformationSchemaName = "information_schema"

// TableType is the kind of a table.
type TableType string

const (
	TableTypeTable  TableType = "TABLE"
	TableTypeView   TableType = "VIEW"
	TableTypeAlias  TableType = "ALIAS"
	TableTypeSystem TableType = "SYSTEM"
)

// Column describes a single column of a table.
type Column struct {
	// Name is unique within the owning table
	Name string `json:"name" yaml:"name"`

	// Type is the semantic type
	Type ColumnType `json:"type" yaml:"type"`

	// Nullable indicates whether the column can contain NULL values
	Nullable bool `json:"nullable" yaml:"nullable"`

	// NativeType is the source's own type label (e.g. "VARCHAR(64)")
	NativeType string `json:"native_type,omitempty" yaml:"native_type,omitempty"`

	// Size is the declared column size, 0 if unknown
	Size int `json:"size,omitempty" yaml:"size,omitempty"`

	// Remarks is free text supplied by the source
	Remarks string `json:"remarks,omitempty" yaml:"remarks,omitempty"`

	// PrimaryKey indicates whether this column is part of the primary key
	PrimaryKey bool `json:"primary_key" yaml:"primary_key"`

	// Position is the zero-based position within the table
	Position int `json:"position" yaml:"position"`

	// Table is the owning table, set by Table.AddColumn
	Table *Table `json:"-" yaml:"-"`
}

// QualifiedName returns "table.column", or the bare name for a detached column.
func (c *Column) QualifiedName() string {
	if c.Table == nil {
		return c.Name
	}
	return c.Table.Name + "." + c.Name
}

func (c *Column) String() string {
	return c.QualifiedName()
}

// Relationship links primary key columns of one table to foreign key columns
// of another.
type Relationship struct {
	PrimaryTable   *Table
	PrimaryColumns []*Column
	ForeignTable   *Table
	ForeignColumns []*Column
}

// Table is an ordered list of columns owned by a schema.
type Table struct {
	Name          string
	Type          TableType
	Remarks       string
	Columns       []*Column
	Relationships []*Relationship
	Schema        *Schema
}

// NewTable creates a detached table. Most callers should use Schema.AddTable.
func NewTable(name string, typ TableType) *Table {
	if typ == "" {
		typ = TableTypeTable
	}
	return &Table{Name: name, Type: typ}
}

// AddColumn appends a copy of c to the table, assigning its position and
// owner, and returns the stored column.
func (t *Table) AddColumn(c Column) *Column {
	col := c
	col.Position = len(t.Columns)
	col.Table = t
	t.Columns = append(t.Columns, &col)
	return &col
}

// Column finds a column by name. An exact match wins over a
// case-insensitive one.
func (t *Table) Column(name string) (*Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	for _, c := range t.Columns {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return nil, false
}

// ColumnNames returns the column names in position order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// PrimaryKeys returns the primary key columns in position order.
func (t *Table) PrimaryKeys() []*Column {
	var keys []*Column
	for _, c := range t.Columns {
		if c.PrimaryKey {
			keys = append(keys, c)
		}
	}
	return keys
}

// AddRelationship registers a relationship on both participating tables.
func (t *Table) AddRelationship(primaryColumns []*Column, foreign *Table, foreignColumns []*Column) *Relationship {
	rel := &Relationship{
		PrimaryTable:   t,
		PrimaryColumns: primaryColumns,
		ForeignTable:   foreign,
		ForeignColumns: foreignColumns,
	}
	t.Relationships = append(t.Relationships, rel)
	if foreign != nil && foreign != t {
		foreign.Relationships = append(foreign.Relationships, rel)
	}
	return rel
}

// QualifiedName returns "schema.table", or the bare name for a detached table.
func (t *Table) QualifiedName() string {
	if t.Schema == nil || t.Schema.Name == "" {
		return t.Name
	}
	return t.Schema.Name + "." + t.Name
}

func (t *Table) String() string {
	return t.QualifiedName()
}

// Schema is a named, ordered set of tables.
type Schema struct {
	Name   string
	Tables []*Table
}

// NewSchema creates an empty schema.
func NewSchema(name string) *Schema {
	return &Schema{Name: name}
}

// AddTable creates a table owned by the schema.
func (s *Schema) AddTable(name string, typ TableType) *Table {
	t := NewTable(name, typ)
	t.Schema = s
	s.Tables = append(s.Tables, t)
	return t
}

// AttachTable takes ownership of an existing table.
func (s *Schema) AttachTable(t *Table) {
	t.Schema = s
	s.Tables = append(s.Tables, t)
}

// Table finds a table by name. An exact match wins over a case-insensitive one.
func (s *Schema) Table(name string) (*Table, bool) {
	for _, t := range s.Tables {
		if t.Name == name {
			return t, true
		}
	}
	for _, t := range s.Tables {
		if strings.EqualFold(t.Name, name) {
			return t, true
		}
	}
	return nil, false
}

// TableNames returns the table names in order.
func (s *Schema) TableNames() []string {
	names := make([]string, len(s.Tables))
	for i, t := range s.Tables {
		names[i] = t.Name
	}
	return names
}

// IsInformationSchema reports whether s is the synthetic information schema.
func (s *Schema) IsInformationSchema() bool {
	return strings.EqualFold(s.Name, InformationSchemaName)
}

// SchemaOrder is a comparison policy for listing schemas. It returns a
// negative number when a sorts before b.
type SchemaOrder func(a, b *Schema) int

// DefaultSchemaOrder lists the information schema last and everything else
// by case-insensitive name.
func DefaultSchemaOrder(a, b *Schema) int {
	ai, bi := a.IsInformationSchema(), b.IsInformationSchema()
	switch {
	case ai && !bi:
		return 1
	case bi && !ai:
		return -1
	}
	return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
}

// SortSchemas sorts schemas in place with the given policy. A nil policy
// uses DefaultSchemaOrder.
func SortSchemas(schemas []*Schema, order SchemaOrder) {
	if order == nil {
		order = DefaultSchemaOrder
	}
	sort.SliceStable(schemas, func(i, j int) bool {
		return order(schemas[i], schemas[j]) < 0
	})
}
