package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"

	qerrors "github.com/arkilian/metaquery/internal/errors"
	"github.com/arkilian/metaquery/internal/query/ast"
	"github.com/arkilian/metaquery/internal/query/data"
	"github.com/arkilian/metaquery/internal/source"
	"github.com/arkilian/metaquery/internal/update"
	"github.com/arkilian/metaquery/pkg/types"
)

func newMock(t *testing.T, dialect *Dialect) (*DataContext, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("An error '%s' was not expected when opening a stub database connection", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db, dialect), mock, db
}

func peopleTable() *types.Table {
	s := types.NewSchema("public")
	t := s.AddTable("people", types.TableTypeTable)
	t.AddColumn(types.Column{Name: "id", Type: types.ColumnTypeInteger, PrimaryKey: true})
	t.AddColumn(types.Column{Name: "name", Type: types.ColumnTypeVarchar, Nullable: true})
	t.AddColumn(types.Column{Name: "age", Type: types.ColumnTypeInteger, Nullable: true})
	t.AddColumn(types.Column{Name: "balance", Type: types.ColumnTypeNumeric, Nullable: true})
	return t
}

func col(t *types.Table, name string) *types.Column {
	c, _ := t.Column(name)
	return c
}

func TestQuote(t *testing.T) {
	tests := []struct {
		name    string
		dialect *Dialect
		in      string
		want    string
	}{
		{"Postgres simple", Postgres, "people", `"people"`},
		{"Postgres with quotes", Postgres, `my"table`, `"my""table"`},
		{"MySQL simple", MySQL, "people", "`people`"},
		{"MySQL with backtick", MySQL, "we`ird", "`we``ird`"},
		{"SQLite keyword", SQLite, "order", `"order"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.dialect.Quote(tt.in); got != tt.want {
				t.Errorf("Quote() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPlaceholder(t *testing.T) {
	if got := Postgres.Placeholder(3); got != "$3" {
		t.Errorf("Postgres.Placeholder(3) = %q, want $3", got)
	}
	if got := MySQL.Placeholder(3); got != "?" {
		t.Errorf("MySQL.Placeholder(3) = %q, want ?", got)
	}
}

func TestLookupDialect(t *testing.T) {
	for name, want := range map[string]*Dialect{"sqlite": SQLite, "PostgreSQL": Postgres, "mariadb": MySQL} {
		got, err := LookupDialect(name)
		if err != nil || got != want {
			t.Errorf("LookupDialect(%q) = %v, %v", name, got, err)
		}
	}
	if _, err := LookupDialect("oracle"); err == nil {
		t.Error("LookupDialect(oracle) should fail")
	}
}

func TestMaterialize_PushesLimitAndConverts(t *testing.T) {
	dc, mock, _ := newMock(t, Postgres)
	people := peopleTable()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "id", "name", "balance" FROM "public"."people" LIMIT 3`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "balance"}).
			AddRow(int64(1), []byte("ann"), []byte("10.50")).
			AddRow(int64(2), nil, nil))

	ds, err := dc.Materialize(context.Background(), source.Request{
		Table:   people,
		Columns: []*types.Column{col(people, "id"), col(people, "name"), col(people, "balance")},
		MaxRows: 3,
	})
	if err != nil {
		t.Fatalf("Materialize() unexpected error: %v", err)
	}
	rows, err := data.ToRows(ds)
	if err != nil {
		t.Fatalf("ToRows() unexpected error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	first := rows[0].Values()
	if first[1] != "ann" {
		t.Errorf("name = %#v, want string ann", first[1])
	}
	if d, ok := first[2].(decimal.Decimal); !ok || !d.Equal(decimal.RequireFromString("10.5")) {
		t.Errorf("balance = %#v, want decimal 10.5", first[2])
	}
	if got := rows[1].String(); got != "Row[values=[2, null, null]]" {
		t.Errorf("second row = %s", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestMaterialize_NoColumnsSelectsConstant(t *testing.T) {
	dc, mock, _ := newMock(t, Postgres)
	people := peopleTable()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT 1 FROM "public"."people"`)).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1).AddRow(1).AddRow(1))

	ds, err := dc.Materialize(context.Background(), source.Request{Table: people, MaxRows: ast.Unbounded})
	if err != nil {
		t.Fatalf("Materialize() unexpected error: %v", err)
	}
	rows, err := data.ToRows(ds)
	if err != nil {
		t.Fatalf("ToRows() unexpected error: %v", err)
	}
	if len(rows) != 3 {
		t.Errorf("got %d rows, want 3", len(rows))
	}
	for _, r := range rows {
		if len(r.Values()) != 0 {
			t.Errorf("row has values %v, want none", r.Values())
		}
	}
}

func TestMaterialize_QueryError(t *testing.T) {
	dc, mock, _ := newMock(t, MySQL)
	people := peopleTable()
	mock.ExpectQuery("SELECT").WillReturnError(errors.New("connection reset"))

	_, err := dc.Materialize(context.Background(), source.Request{Table: people, Columns: people.Columns, MaxRows: ast.Unbounded})
	if got := qerrors.GetCode(err); got != qerrors.CodeReadFailed {
		t.Errorf("code = %q, want %q (err %v)", got, qerrors.CodeReadFailed, err)
	}
}

func TestDelete_RendersFilterTree(t *testing.T) {
	dc, mock, _ := newMock(t, Postgres)
	people := peopleTable()

	where := []*ast.FilterItem{
		ast.Or(
			ast.Compare(ast.ColumnItem(col(people, "age")), ast.OpGreaterThan, 30),
			ast.IsNull(ast.ColumnItem(col(people, "name"))),
		),
		ast.Compare(ast.ColumnItem(col(people, "id")), ast.OpIn, []int{1, 2}),
	}
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "public"."people" WHERE ("age" > $1 OR "name" IS NULL) AND "id" IN ($2, $3)`)).
		WithArgs(30, 1, 2).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := dc.Delete(context.Background(), update.Delete{Table: people, Where: where})
	if err != nil {
		t.Fatalf("Delete() unexpected error: %v", err)
	}
	if n != 2 {
		t.Errorf("Delete() = %d, want 2", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestDelete_EmptyInAndColumnComparison(t *testing.T) {
	dc, mock, _ := newMock(t, MySQL)
	people := peopleTable()

	where := []*ast.FilterItem{
		ast.Not(ast.Compare(ast.ColumnItem(col(people, "id")), ast.OpIn, []int{})),
		ast.Compare(ast.ColumnItem(col(people, "age")), ast.OpLessThan, ast.ColumnItem(col(people, "id"))),
	}
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM `public`.`people` WHERE NOT (1 = 0) AND `age` < `id`")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if _, err := dc.Delete(context.Background(), update.Delete{Table: people, Where: where}); err != nil {
		t.Fatalf("Delete() unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestDelete_FunctionConditionIsUnsupported(t *testing.T) {
	dc, mock, _ := newMock(t, Postgres)
	people := peopleTable()

	where := []*ast.FilterItem{
		ast.Compare(ast.FunctionItem(ast.FuncUpper, col(people, "name")), ast.OpEquals, "ANN"),
	}
	_, err := dc.Delete(context.Background(), update.Delete{Table: people, Where: where})
	if qerrors.GetCategory(err) != qerrors.ErrCategoryUnsupported {
		t.Errorf("Delete() error = %v, want unsupported", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("no statement should run: %s", err)
	}
}

func TestInsert(t *testing.T) {
	dc, mock, _ := newMock(t, Postgres)
	people := peopleTable()

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "public"."people" ("id", "name") VALUES ($1, $2)`)).
		WithArgs(7, "gus").
		WillReturnResult(sqlmock.NewResult(7, 1))

	err := dc.Insert(context.Background(), update.Insert{
		Table:  people,
		Values: map[string]interface{}{"name": "gus", "ID": 7},
	})
	if err != nil {
		t.Fatalf("Insert() unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestInsert_UnknownColumn(t *testing.T) {
	dc, _, _ := newMock(t, Postgres)
	err := dc.Insert(context.Background(), update.Insert{
		Table:  peopleTable(),
		Values: map[string]interface{}{"nickname": "g"},
	})
	if got := qerrors.GetCode(err); got != qerrors.CodeUnresolvedColumn {
		t.Errorf("code = %q, want %q", got, qerrors.CodeUnresolvedColumn)
	}
}

func TestUpdate_Native(t *testing.T) {
	dc, mock, _ := newMock(t, Postgres)
	people := peopleTable()

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "public"."people" SET "name" = $1, "age" = $2 WHERE NOT ("name" LIKE $3)`)).
		WithArgs("x", 1, "a%").
		WillReturnResult(sqlmock.NewResult(0, 4))

	u := update.NewExecutor(dc, nil)
	n, err := u.Update(context.Background(), update.Update{
		Table: people,
		Set:   map[string]interface{}{"age": 1, "name": "x"},
		Where: []*ast.FilterItem{ast.Not(ast.Compare(ast.ColumnItem(col(people, "name")), ast.OpLike, "a%"))},
	})
	if err != nil {
		t.Fatalf("Update() unexpected error: %v", err)
	}
	if n != 4 {
		t.Errorf("Update() = %d, want 4", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestExecError(t *testing.T) {
	dc, mock, _ := newMock(t, Postgres)
	people := peopleTable()
	mock.ExpectExec("DELETE").WillReturnError(errors.New("permission denied"))

	_, err := dc.Delete(context.Background(), update.Delete{Table: people})
	if got := qerrors.GetCode(err); got != qerrors.CodeWriteFailed {
		t.Errorf("code = %q, want %q", got, qerrors.CodeWriteFailed)
	}
}

func TestDiscoverCatalog(t *testing.T) {
	dc, mock, _ := newMock(t, Postgres)

	mock.ExpectQuery(regexp.QuoteMeta("FROM information_schema.tables WHERE table_schema NOT IN ($1, $2, $3)")).
		WithArgs("pg_catalog", "information_schema", "pg_toast").
		WillReturnRows(sqlmock.NewRows([]string{"table_schema", "table_name", "table_type"}).
			AddRow("public", "orders", "BASE TABLE").
			AddRow("public", "people", "BASE TABLE").
			AddRow("report", "adults", "VIEW"))
	mock.ExpectQuery(regexp.QuoteMeta("FROM information_schema.columns")).
		WithArgs("pg_catalog", "information_schema", "pg_toast").
		WillReturnRows(sqlmock.NewRows([]string{"table_schema", "table_name", "column_name", "data_type", "is_nullable", "character_maximum_length"}).
			AddRow("public", "orders", "person_id", "integer", "NO", nil).
			AddRow("public", "people", "id", "integer", "NO", nil).
			AddRow("public", "people", "name", "character varying", "YES", 64).
			AddRow("report", "adults", "name", "text", "YES", nil))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE tc.constraint_type = 'PRIMARY KEY'")).
		WillReturnRows(sqlmock.NewRows([]string{"table_schema", "table_name", "column_name"}).
			AddRow("public", "people", "id"))

	schemas, err := dc.Schemas(context.Background())
	if err != nil {
		t.Fatalf("Schemas() unexpected error: %v", err)
	}
	if len(schemas) != 2 || schemas[0].Name != "public" || schemas[1].Name != "report" {
		t.Fatalf("Schemas() = %v, want [public report]", schemas)
	}

	people, ok := schemas[0].Table("people")
	if !ok {
		t.Fatal("people not discovered")
	}
	id, name := col(people, "id"), col(people, "name")
	if !id.PrimaryKey || id.Nullable || id.Type != types.ColumnTypeInteger {
		t.Errorf("id = %+v", id)
	}
	if name.Type != types.ColumnTypeVarchar || name.Size != 64 || !name.Nullable {
		t.Errorf("name = %+v", name)
	}
	adults, _ := schemas[1].Table("adults")
	if adults.Type != types.TableTypeView {
		t.Errorf("adults type = %s, want VIEW", adults.Type)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestDiscoverError(t *testing.T) {
	dc, mock, _ := newMock(t, MySQL)
	mock.ExpectQuery("information_schema.tables").WillReturnError(errors.New("access denied"))

	_, err := dc.Schemas(context.Background())
	if got := qerrors.GetCode(err); got != qerrors.CodeReadFailed {
		t.Errorf("code = %q, want %q", got, qerrors.CodeReadFailed)
	}
}
