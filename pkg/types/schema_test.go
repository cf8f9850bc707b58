package types

import (
	"reflect"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestTable_AddColumnAssignsPosition(t *testing.T) {
	s := NewSchema("shop")
	people := s.AddTable("people", "")
	id := people.AddColumn(Column{Name: "id", Type: ColumnTypeInteger, PrimaryKey: true})
	name := people.AddColumn(Column{Name: "name", Type: ColumnTypeVarchar, Nullable: true})

	if people.Type != TableTypeTable {
		t.Errorf("Type = %s, want TABLE", people.Type)
	}
	if id.Position != 0 || name.Position != 1 {
		t.Errorf("positions = %d, %d", id.Position, name.Position)
	}
	if name.Table != people || people.Columns[1] != name {
		t.Error("AddColumn did not return the stored column")
	}
	if got := name.QualifiedName(); got != "people.name" {
		t.Errorf("QualifiedName() = %q", got)
	}
	if got := people.QualifiedName(); got != "shop.people" {
		t.Errorf("QualifiedName() = %q", got)
	}
	if keys := people.PrimaryKeys(); len(keys) != 1 || keys[0] != id {
		t.Errorf("PrimaryKeys() = %v", keys)
	}
	if !reflect.DeepEqual(people.ColumnNames(), []string{"id", "name"}) {
		t.Errorf("ColumnNames() = %v", people.ColumnNames())
	}
}

func TestTable_LookupPrefersExactCase(t *testing.T) {
	s := NewSchema("s")
	tbl := s.AddTable("t", TableTypeTable)
	lower := tbl.AddColumn(Column{Name: "code"})
	upper := tbl.AddColumn(Column{Name: "CODE"})

	if c, _ := tbl.Column("CODE"); c != upper {
		t.Errorf("Column(CODE) = %v, want the exact match", c)
	}
	if c, _ := tbl.Column("Code"); c != lower {
		t.Errorf("Column(Code) = %v, want the first case-insensitive match", c)
	}
	if _, ok := tbl.Column("missing"); ok {
		t.Error("Column(missing) found a column")
	}

	s.AddTable("T", TableTypeView)
	if got, _ := s.Table("T"); got.Type != TableTypeView {
		t.Errorf("Table(T) = %v, want the exact match", got)
	}
	if got, _ := s.Table("t"); got != tbl {
		t.Errorf("Table(t) = %v", got)
	}
}

func TestTable_AddRelationship(t *testing.T) {
	s := NewSchema("shop")
	people := s.AddTable("people", TableTypeTable)
	id := people.AddColumn(Column{Name: "id", PrimaryKey: true})
	orders := s.AddTable("orders", TableTypeTable)
	pid := orders.AddColumn(Column{Name: "person_id"})

	rel := people.AddRelationship([]*Column{id}, orders, []*Column{pid})
	if len(people.Relationships) != 1 || len(orders.Relationships) != 1 || orders.Relationships[0] != rel {
		t.Fatalf("relationship not registered on both tables")
	}

	self := people.AddRelationship([]*Column{id}, people, []*Column{id})
	if len(people.Relationships) != 2 || people.Relationships[1] != self {
		t.Errorf("self relationship registered %d times", len(people.Relationships)-1)
	}
}

func TestSortSchemas(t *testing.T) {
	schemas := []*Schema{NewSchema("INFORMATION_SCHEMA"), NewSchema("beta"), NewSchema("Alpha")}
	SortSchemas(schemas, nil)

	var names []string
	for _, s := range schemas {
		names = append(names, s.Name)
	}
	if want := []string{"Alpha", "beta", "INFORMATION_SCHEMA"}; !reflect.DeepEqual(names, want) {
		t.Errorf("SortSchemas() = %v, want %v", names, want)
	}
}

func TestParseColumnType(t *testing.T) {
	tests := map[string]ColumnType{
		"varchar(64)":      ColumnTypeVarchar,
		" INT ":            ColumnTypeInteger,
		"double precision": ColumnTypeDouble,
		"NUMERIC(10, 2)":   ColumnTypeNumeric,
		"timestamptz":      ColumnTypeTimestamp,
		"bytea":            ColumnTypeBinary,
		"geometry":         ColumnTypeOther,
		"":                 ColumnTypeOther,
	}
	for in, want := range tests {
		if got := ParseColumnType(in); got != want {
			t.Errorf("ParseColumnType(%q) = %s, want %s", in, got, want)
		}
	}
}

// TestProperty_ColumnTypeRoundTrip checks that every canonical type name
// parses back to its own type.
func TestProperty_ColumnTypeRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("canonical names parse to the same type", prop.ForAll(
		func(n int) bool {
			ct := ColumnType(n)
			if ct == ColumnTypeOther {
				return ParseColumnType(ct.String()) == ColumnTypeOther
			}
			return ParseColumnType(strings.ToLower(ct.String())) == ct
		},
		gen.IntRange(int(ColumnTypeOther), int(ColumnTypeRowID)),
	))

	properties.TestingRun(t)
}

// TestProperty_InformationSchemaSortsLast checks the default order on
// arbitrary schema names.
func TestProperty_InformationSchemaSortsLast(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("information schema is last and the rest are ordered", prop.ForAll(
		func(names []string) bool {
			schemas := []*Schema{NewSchema(InformationSchemaName)}
			for _, n := range names {
				schemas = append(schemas, NewSchema(n))
			}
			SortSchemas(schemas, nil)

			if !schemas[len(schemas)-1].IsInformationSchema() {
				return false
			}
			for i := 1; i < len(schemas)-1; i++ {
				if strings.ToLower(schemas[i-1].Name) > strings.ToLower(schemas[i].Name) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Identifier()),
	))

	properties.TestingRun(t)
}
