package ast

import (
	"testing"

	qerrors "github.com/arkilian/metaquery/internal/errors"
	"github.com/arkilian/metaquery/pkg/types"
)

func testSchemas() []*types.Schema {
	shop := types.NewSchema("shop")
	people := shop.AddTable("people", types.TableTypeTable)
	people.AddColumn(types.Column{Name: "id", Type: types.ColumnTypeInteger, PrimaryKey: true})
	people.AddColumn(types.Column{Name: "name", Type: types.ColumnTypeVarchar})
	orders := shop.AddTable("orders", types.TableTypeTable)
	orders.AddColumn(types.Column{Name: "id", Type: types.ColumnTypeInteger})
	orders.AddColumn(types.Column{Name: "person_id", Type: types.ColumnTypeInteger})
	orders.AddColumn(types.Column{Name: "qty", Type: types.ColumnTypeInteger})

	info := types.NewSchema(types.InformationSchemaName)
	info.AddTable("tables", types.TableTypeSystem).AddColumn(types.Column{Name: "name"})
	info.AddTable("people", types.TableTypeSystem).AddColumn(types.Column{Name: "name"})
	return []*types.Schema{shop, info}
}

func TestBuilder_SelectAllWhenNothingSelected(t *testing.T) {
	q, err := NewBuilder(testSchemas()...).From("people").Build()
	if err != nil {
		t.Fatalf("Build() unexpected error: %v", err)
	}
	if len(q.Select) != 2 || q.Select[0].Column.Name != "id" || q.Select[1].Column.Name != "name" {
		t.Errorf("select = %v, want every people column", q.Select)
	}
	if q.MaxRows != Unbounded {
		t.Errorf("MaxRows = %d, want Unbounded", q.MaxRows)
	}
}

func TestBuilder_ResolvesTables(t *testing.T) {
	schemas := testSchemas()

	tests := []struct {
		name   string
		schema string
	}{
		{"people", "shop"},
		{"SHOP.People", "shop"},
		{"tables", types.InformationSchemaName},
		{"information_schema.people", types.InformationSchemaName},
	}
	for _, tt := range tests {
		q, err := NewBuilder(schemas...).From(tt.name).Build()
		if err != nil {
			t.Errorf("From(%q) unexpected error: %v", tt.name, err)
			continue
		}
		if got := q.From[0].Table.Schema.Name; got != tt.schema {
			t.Errorf("From(%q) resolved to schema %s, want %s", tt.name, got, tt.schema)
		}
	}
}

func TestBuilder_ResolutionErrors(t *testing.T) {
	schemas := testSchemas()

	tests := []struct {
		desc string
		b    *Builder
		code string
	}{
		{"unknown table", NewBuilder(schemas...).From("nowhere"), qerrors.CodeUnresolvedTable},
		{"unknown schema", NewBuilder(schemas...).From("archive.people"), qerrors.CodeUnresolvedSchema},
		{"unknown table in schema", NewBuilder(schemas...).From("shop.tables"), qerrors.CodeUnresolvedTable},
		{"unknown column", NewBuilder(schemas...).From("people").Select("age"), qerrors.CodeUnresolvedColumn},
		{"ambiguous column", NewBuilder(schemas...).From("people").From("orders").Select("id"), qerrors.CodeAmbiguousColumn},
		{"no from", NewBuilder(schemas...), qerrors.CodeInvalidQuery},
		{"star sum", NewBuilder(schemas...).From("orders").SelectFunction(FuncSum, "*", ""), qerrors.CodeInvalidQuery},
		{"odd join columns", NewBuilder(schemas...).From("people").Join(JoinInner, "orders", "", "id"), qerrors.CodeInvalidQuery},
		{"negative offset", NewBuilder(schemas...).From("people").Offset(-1), qerrors.CodeInvalidQuery},
		{"negative limit", NewBuilder(schemas...).From("people").Limit(-5), qerrors.CodeInvalidQuery},
	}
	for _, tt := range tests {
		_, err := tt.b.Build()
		if err == nil {
			t.Errorf("%s: expected an error", tt.desc)
			continue
		}
		if got := qerrors.GetCode(err); got != tt.code {
			t.Errorf("%s: code = %s, want %s (%v)", tt.desc, got, tt.code, err)
		}
	}
}

func TestBuilder_FirstErrorWins(t *testing.T) {
	b := NewBuilder(testSchemas()...).From("people").Select("nope").Where("also_nope", OpEquals, 1)
	if b.Err() == nil {
		t.Fatal("Err() = nil after a failed resolution")
	}
	_, err := b.Build()
	if err == nil || qerrors.GetCode(err) != qerrors.CodeUnresolvedColumn {
		t.Fatalf("Build() = %v", err)
	}
	if got := err.Error(); got != b.Err().Error() {
		t.Errorf("Build() error %q differs from Err() %q", got, b.Err())
	}
}

func TestBuilder_SingleUse(t *testing.T) {
	b := NewBuilder(testSchemas()...).From("people")
	if _, err := b.Build(); err != nil {
		t.Fatalf("Build() unexpected error: %v", err)
	}
	_, err := b.Build()
	if qerrors.GetCode(err) != qerrors.CodeBuilderConsumed {
		t.Errorf("second Build() = %v, want %s", err, qerrors.CodeBuilderConsumed)
	}
}

func TestBuilder_JoinAliases(t *testing.T) {
	q, err := NewBuilder(testSchemas()...).
		FromAs("people", "p").
		Join(JoinLeft, "orders", "o", "p.id", "o.person_id").
		Select("p.name", "o.qty").
		GroupBy("p.name").
		Build()
	if err != nil {
		t.Fatalf("Build() unexpected error: %v", err)
	}

	from := q.From[0]
	if !from.IsJoin() || from.Join != JoinLeft {
		t.Fatalf("from = %v, want a left join", from)
	}
	if from.LeftOn[0].Column.Name != "id" || from.LeftOn[0].Qualifier != "p" {
		t.Errorf("left on = %v", from.LeftOn[0])
	}
	if from.RightOn[0].Column.Name != "person_id" || from.RightOn[0].Qualifier != "o" {
		t.Errorf("right on = %v", from.RightOn[0])
	}
	if q.Select[1].Column.Table.Name != "orders" {
		t.Errorf("o.qty resolved to %v", q.Select[1])
	}
	if len(q.BaseFromItems()) != 2 {
		t.Errorf("BaseFromItems() = %v", q.BaseFromItems())
	}
}

func TestBuilder_JoinRightSideMustBeTheJoinedTable(t *testing.T) {
	_, err := NewBuilder(testSchemas()...).
		FromAs("people", "p").
		Join(JoinInner, "orders", "o", "p.id", "p.name").
		Build()
	if qerrors.GetCode(err) != qerrors.CodeUnresolvedColumn {
		t.Errorf("Build() = %v, want an unresolved column", err)
	}
}

func TestBuilder_OrderByAlias(t *testing.T) {
	q, err := NewBuilder(testSchemas()...).
		From("orders").
		SelectFunction(FuncSum, "qty", "total").
		Select("person_id").
		GroupBy("person_id").
		OrderBy("total", true).
		OrderBy("person_id", false).
		Having(FuncSum, "qty", OpGreaterThan, 2).
		Distinct().
		Offset(2).
		Limit(10).
		Build()
	if err != nil {
		t.Fatalf("Build() unexpected error: %v", err)
	}
	if q.OrderBy[0].Item != q.Select[0] || !q.OrderBy[0].Descending {
		t.Errorf("order by alias = %v", q.OrderBy[0])
	}
	if q.OrderBy[1].Item.Column.Name != "person_id" || q.OrderBy[1].Descending {
		t.Errorf("order by column = %v", q.OrderBy[1])
	}
	if !q.Distinct || q.Offset != 2 || q.MaxRows != 10 {
		t.Errorf("distinct = %v, offset = %d, max rows = %d", q.Distinct, q.Offset, q.MaxRows)
	}
	if !q.HasAggregates() || len(q.Having) != 1 || q.Having[0].Item.Function != FuncSum {
		t.Errorf("having = %v", q.Having)
	}
}

func TestBuilder_CountAllAndConstants(t *testing.T) {
	q, err := NewBuilder(testSchemas()...).
		From("people").
		SelectCount().
		SelectConstant("x", "tag").
		Build()
	if err != nil {
		t.Fatalf("Build() unexpected error: %v", err)
	}
	if !q.Select[0].All || q.Select[0].Function != FuncCount {
		t.Errorf("select[0] = %v, want COUNT(*)", q.Select[0])
	}
	if !q.Select[1].IsConstant || q.Select[1].Constant != "x" || q.Select[1].Alias != "tag" {
		t.Errorf("select[1] = %v", q.Select[1])
	}
}

func TestBuilder_WhereColumns(t *testing.T) {
	q, err := NewBuilder(testSchemas()...).
		From("people").
		From("orders").
		WhereColumns("people.id", OpEquals, "orders.person_id").
		Where("qty", OpIn, []interface{}{1, 2}).
		Build()
	if err != nil {
		t.Fatalf("Build() unexpected error: %v", err)
	}
	if len(q.Where) != 2 {
		t.Fatalf("where = %v", q.Where)
	}
	right, ok := q.Where[0].OperandItem()
	if !ok || right.Column.Name != "person_id" {
		t.Errorf("operand = %v, want orders.person_id", q.Where[0].Operand)
	}
	if preds := ExtractEquiJoinPredicates(q.Where); len(preds) != 1 {
		t.Errorf("ExtractEquiJoinPredicates() = %v", preds)
	}
}
