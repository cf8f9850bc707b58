package clause

import (
	"reflect"
	"strings"
	"testing"

	"github.com/arkilian/metaquery/internal/query/ast"
	"github.com/arkilian/metaquery/pkg/types"
)

func TestParseLiteral(t *testing.T) {
	tests := []struct {
		in   string
		want interface{}
	}{
		{"42", int64(42)},
		{" -7 ", int64(-7)},
		{"2.5", 2.5},
		{"TRUE", true},
		{"false", false},
		{"null", nil},
		{"'null'", "null"},
		{`"42"`, "42"},
		{"ann", "ann"},
		{"'", "'"},
	}
	for _, tt := range tests {
		if got := ParseLiteral(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ParseLiteral(%q) = %#v, want %#v", tt.in, got, tt.want)
		}
	}
}

func TestParseCondition(t *testing.T) {
	tests := []struct {
		in   string
		want Condition
	}{
		{"age>30", Condition{Operand: Operand{Ref: "age"}, Op: ast.OpGreaterThan, Value: int64(30)}},
		{"p.age >= 18", Condition{Operand: Operand{Ref: "p.age"}, Op: ast.OpGreaterThanOrEqual, Value: int64(18)}},
		{"name != 'bob'", Condition{Operand: Operand{Ref: "name"}, Op: ast.OpDifferentFrom, Value: "bob"}},
		{"name like 'a%'", Condition{Operand: Operand{Ref: "name"}, Op: ast.OpLike, Value: "a%"}},
		{"name NOT LIKE '%z'", Condition{Operand: Operand{Ref: "name"}, Op: ast.OpNotLike, Value: "%z"}},
		{"id in (1, 2,'x')", Condition{Operand: Operand{Ref: "id"}, Op: ast.OpIn, Value: []interface{}{int64(1), int64(2), "x"}}},
		{"id not in ()", Condition{Operand: Operand{Ref: "id"}, Op: ast.OpNotIn, Value: []interface{}(nil)}},
		{"age is null", Condition{Operand: Operand{Ref: "age"}, Op: ast.OpIsNull}},
		{"age IS NOT NULL", Condition{Operand: Operand{Ref: "age"}, Op: ast.OpIsNotNull}},
		{"upper(name) = 'ANN'", Condition{Operand: Operand{Fn: ast.FuncUpper, Ref: "name"}, Op: ast.OpEquals, Value: "ANN"}},
		{"count(*) > 1", Condition{Operand: Operand{Fn: ast.FuncCount, Ref: "*"}, Op: ast.OpGreaterThan, Value: int64(1)}},
	}
	for _, tt := range tests {
		got, err := ParseCondition(tt.in)
		if err != nil {
			t.Errorf("ParseCondition(%q) unexpected error: %v", tt.in, err)
			continue
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ParseCondition(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}

	for _, bad := range []string{"age", "age >", "x inside 3", "age is null 3", "nosuch(x) = 1", "a b = 1"} {
		if _, err := ParseCondition(bad); err == nil {
			t.Errorf("ParseCondition(%q) expected an error", bad)
		}
	}
}

func TestParseSelection(t *testing.T) {
	tests := []struct {
		in   string
		want Selection
	}{
		{"name", Selection{Operand: Operand{Ref: "name"}}},
		{"p.name AS who", Selection{Operand: Operand{Ref: "p.name"}, Alias: "who"}},
		{"sum(qty) as total", Selection{Operand: Operand{Fn: ast.FuncSum, Ref: "qty"}, Alias: "total"}},
		{"COUNT(*)", Selection{Operand: Operand{Fn: ast.FuncCount, Ref: "*"}}},
		{"count()", Selection{Operand: Operand{Fn: ast.FuncCount, Ref: "*"}}},
	}
	for _, tt := range tests {
		got, err := ParseSelection(tt.in)
		if err != nil {
			t.Errorf("ParseSelection(%q) unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseSelection(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
	if _, err := ParseSelection("name alias"); err == nil {
		t.Error("expected an error for a bare alias")
	}
}

func TestParseOrder(t *testing.T) {
	for in, want := range map[string]bool{"name": false, "name asc": false, "name DESC": true} {
		ref, desc, err := ParseOrder(in)
		if err != nil || ref != "name" || desc != want {
			t.Errorf("ParseOrder(%q) = %q, %v, %v", in, ref, desc, err)
		}
	}
	if _, _, err := ParseOrder("name sideways"); err == nil {
		t.Error("expected an error for an unknown direction")
	}
}

func TestParseJoin(t *testing.T) {
	tests := []struct {
		in   string
		want Join
	}{
		{"orders on p.id = orders.person_id", Join{Type: ast.JoinInner, Table: "orders", On: []string{"p.id", "orders.person_id"}}},
		{"LEFT shop.orders o ON p.id=o.person_id and p.shop = o.shop",
			Join{Type: ast.JoinLeft, Table: "shop.orders", Alias: "o", On: []string{"p.id", "o.person_id", "p.shop", "o.shop"}}},
		{"right tags t on t.id = p.tag", Join{Type: ast.JoinRight, Table: "tags", Alias: "t", On: []string{"t.id", "p.tag"}}},
	}
	for _, tt := range tests {
		got, err := ParseJoin(tt.in)
		if err != nil {
			t.Errorf("ParseJoin(%q) unexpected error: %v", tt.in, err)
			continue
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ParseJoin(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
	for _, bad := range []string{"orders", "on a = b", "orders o x on a = b", "orders on a"} {
		if _, err := ParseJoin(bad); err == nil {
			t.Errorf("ParseJoin(%q) expected an error", bad)
		}
	}
}

func TestParseColumnDef(t *testing.T) {
	c, err := ParseColumnDef("id INTEGER primary key")
	if err != nil {
		t.Fatalf("ParseColumnDef() unexpected error: %v", err)
	}
	if c.Name != "id" || c.Type != types.ColumnTypeInteger || !c.PrimaryKey || c.Nullable {
		t.Errorf("ParseColumnDef() = %+v", c)
	}

	c, err = ParseColumnDef("label VARCHAR(32) NOT NULL")
	if err != nil {
		t.Fatalf("ParseColumnDef() unexpected error: %v", err)
	}
	if c.NativeType != "VARCHAR(32)" || c.Type != types.ColumnTypeVarchar || c.Nullable {
		t.Errorf("ParseColumnDef() = %+v", c)
	}

	for _, bad := range []string{"id", "id INTEGER unique"} {
		if _, err := ParseColumnDef(bad); err == nil {
			t.Errorf("ParseColumnDef(%q) expected an error", bad)
		}
	}
}

func TestParseAssignment(t *testing.T) {
	col, v, err := ParseAssignment("name='eve = 1'")
	if err != nil || col != "name" || v != "eve = 1" {
		t.Errorf("ParseAssignment() = %q, %#v, %v", col, v, err)
	}
	if _, _, err := ParseAssignment("=3"); err == nil {
		t.Error("expected an error for a missing column")
	}
}

func TestRequestApply(t *testing.T) {
	s := types.NewSchema("shop")
	people := s.AddTable("people", types.TableTypeTable)
	people.AddColumn(types.Column{Name: "id", Type: types.ColumnTypeInteger})
	people.AddColumn(types.Column{Name: "name", Type: types.ColumnTypeVarchar})
	orders := s.AddTable("orders", types.TableTypeTable)
	orders.AddColumn(types.Column{Name: "person_id", Type: types.ColumnTypeInteger})
	orders.AddColumn(types.Column{Name: "qty", Type: types.ColumnTypeInteger})

	req := Request{
		From:    "people",
		Alias:   "p",
		Joins:   []string{"left orders o on p.id = o.person_id"},
		Select:  []string{"p.name", "sum(o.qty) as total"},
		Where:   []string{"lower(p.name) like 'a%'"},
		GroupBy: []string{"p.name"},
		Having:  []string{"sum(o.qty) > 2"},
		OrderBy: []string{"total desc"},
		Offset:  1,
		Limit:   5,
	}
	b := ast.NewBuilder(s)
	if err := req.Apply(b); err != nil {
		t.Fatalf("Apply() unexpected error: %v", err)
	}
	q, err := b.Build()
	if err != nil {
		t.Fatalf("Build() unexpected error: %v", err)
	}
	if len(q.From) != 1 || q.From[0].Left == nil || q.From[0].Join != ast.JoinLeft {
		t.Fatalf("from = %v, want a single left join", q.From)
	}
	if len(q.Select) != 2 || q.Select[1].Function != ast.FuncSum || q.Select[1].Alias != "total" {
		t.Errorf("select = %v", q.Select)
	}
	if len(q.Where) != 1 || q.Where[0].Item.Function != ast.FuncLower {
		t.Errorf("where = %v", q.Where)
	}
	if len(q.Having) != 1 || len(q.GroupBy) != 1 {
		t.Errorf("having = %v, group by = %v", q.Having, q.GroupBy)
	}
	if len(q.OrderBy) != 1 || q.OrderBy[0].Item != q.Select[1] || !q.OrderBy[0].Descending {
		t.Errorf("order by = %v", q.OrderBy)
	}
	if q.Offset != 1 || q.MaxRows != 5 {
		t.Errorf("offset = %d, max rows = %d", q.Offset, q.MaxRows)
	}
}

func TestRequestApply_Errors(t *testing.T) {
	s := types.NewSchema("shop")
	people := s.AddTable("people", types.TableTypeTable)
	people.AddColumn(types.Column{Name: "age", Type: types.ColumnTypeInteger})

	tests := []struct {
		req  Request
		want string
	}{
		{Request{From: "people", Where: []string{"sum(age) > 1"}}, "use having"},
		{Request{From: "people", Having: []string{"age > 1"}}, "needs an aggregate"},
		{Request{From: "people", OrderBy: []string{"age up"}}, "invalid order"},
		{Request{From: "people", Joins: []string{"people"}}, "invalid join"},
		{Request{}, "from is required"},
	}
	for _, tt := range tests {
		err := tt.req.Apply(ast.NewBuilder(s))
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("Apply(%+v) = %v, want error containing %q", tt.req, err, tt.want)
		}
	}
}

func TestRequestBuild_Unlimited(t *testing.T) {
	s := types.NewSchema("shop")
	s.AddTable("people", types.TableTypeTable).AddColumn(types.Column{Name: "age", Type: types.ColumnTypeInteger})

	req := NewRequest("shop.people")
	q, err := req.Build(ast.NewBuilder(s))
	if err != nil {
		t.Fatalf("Build() unexpected error: %v", err)
	}
	if q.MaxRows != ast.Unbounded || len(q.Select) != 1 {
		t.Errorf("max rows = %d, select = %v", q.MaxRows, q.Select)
	}

	req = NewRequest("nowhere")
	if _, err := req.Build(ast.NewBuilder(s)); err == nil || !strings.Contains(err.Error(), "no such table") {
		t.Errorf("Build() = %v, want an unresolved table", err)
	}
}

func TestParseAssignments(t *testing.T) {
	values, err := ParseAssignments([]string{"id=5", "name='eve'", "note=null"})
	if err != nil {
		t.Fatalf("ParseAssignments() unexpected error: %v", err)
	}
	want := map[string]interface{}{"id": int64(5), "name": "eve", "note": nil}
	if !reflect.DeepEqual(values, want) {
		t.Errorf("ParseAssignments() = %#v, want %#v", values, want)
	}
	if _, err := ParseAssignments([]string{"bad"}); err == nil {
		t.Error("expected an error for a malformed assignment")
	}
}
