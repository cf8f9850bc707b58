package aggregator

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"

	"github.com/arkilian/metaquery/internal/query/ast"
	"github.com/arkilian/metaquery/internal/query/data"
	"github.com/arkilian/metaquery/pkg/types"
)

type salesFixture struct {
	region, amount, price *ast.SelectItem
	header                *data.Header
}

func newSalesFixture() *salesFixture {
	s := types.NewSchema("main")
	t := s.AddTable("sales", types.TableTypeTable)
	f := &salesFixture{
		region: ast.ColumnItem(t.AddColumn(types.Column{Name: "region", Type: types.ColumnTypeVarchar})),
		amount: ast.ColumnItem(t.AddColumn(types.Column{Name: "amount", Type: types.ColumnTypeInteger})),
		price:  ast.ColumnItem(t.AddColumn(types.Column{Name: "price", Type: types.ColumnTypeDecimal})),
	}
	f.header = data.NewHeader(f.region, f.amount, f.price)
	return f
}

func (f *salesFixture) dataSet(rows ...[]interface{}) data.DataSet {
	return data.NewValuesDataSet(f.header, rows)
}

func TestBuilders(t *testing.T) {
	values := []interface{}{int64(4), nil, int64(1), int64(7)}
	tests := []struct {
		fn   ast.FunctionType
		typ  types.ColumnType
		want interface{}
	}{
		{ast.FuncCount, types.ColumnTypeInteger, int64(3)},
		{ast.FuncSum, types.ColumnTypeInteger, int64(12)},
		{ast.FuncAvg, types.ColumnTypeInteger, 4.0},
		{ast.FuncMin, types.ColumnTypeInteger, int64(1)},
		{ast.FuncMax, types.ColumnTypeInteger, int64(7)},
		{ast.FuncFirst, types.ColumnTypeInteger, int64(4)},
		{ast.FuncLast, types.ColumnTypeInteger, int64(7)},
		{ast.FuncMedian, types.ColumnTypeInteger, 4.0},
		{ast.FuncSum, types.ColumnTypeDouble, 12.0},
	}
	for _, tt := range tests {
		t.Run(tt.fn.String(), func(t *testing.T) {
			b, err := NewBuilder(tt.fn, tt.typ, false)
			if err != nil {
				t.Fatal(err)
			}
			for _, v := range values {
				b.Add(v)
			}
			if got := b.Result(); got != tt.want {
				t.Fatalf("%s = %v (%T), want %v (%T)", tt.fn, got, got, tt.want, tt.want)
			}
		})
	}
}

func TestBuilders_EmptyInput(t *testing.T) {
	for _, fn := range []ast.FunctionType{ast.FuncSum, ast.FuncAvg, ast.FuncMin, ast.FuncMax,
		ast.FuncFirst, ast.FuncLast, ast.FuncRandom, ast.FuncMedian} {
		b, _ := NewBuilder(fn, types.ColumnTypeInteger, false)
		b.Add(nil)
		if got := b.Result(); got != nil {
			t.Errorf("%s over nulls = %v, want nil", fn, got)
		}
	}
	b, _ := NewBuilder(ast.FuncCount, types.ColumnTypeInteger, false)
	b.Add(nil)
	if got := b.Result(); got != int64(0) {
		t.Errorf("COUNT over nulls = %v, want 0", got)
	}
	all, _ := NewBuilder(ast.FuncCount, types.ColumnTypeBigInt, true)
	all.Add(nil)
	if got := all.Result(); got != int64(1) {
		t.Errorf("COUNT(*) = %v, want 1", got)
	}
}

func TestBuilders_ResultIsFinal(t *testing.T) {
	b, _ := NewBuilder(ast.FuncSum, types.ColumnTypeInteger, false)
	b.Add(int64(2))
	first := b.Result()
	b.Add(int64(5))
	if second := b.Result(); second != first {
		t.Fatalf("Result changed after finalize: %v then %v", first, second)
	}
}

func TestBuilders_DecimalAndWidening(t *testing.T) {
	sum, _ := NewBuilder(ast.FuncSum, types.ColumnTypeDecimal, false)
	sum.Add("0.10")
	sum.Add(decimal.RequireFromString("0.20"))
	got := sum.Result().(decimal.Decimal)
	if !got.Equal(decimal.RequireFromString("0.30")) {
		t.Fatalf("decimal SUM = %s, want 0.30", got)
	}

	avg, _ := NewBuilder(ast.FuncAvg, types.ColumnTypeNumeric, false)
	avg.Add(int64(1))
	avg.Add(int64(2))
	if a := avg.Result().(decimal.Decimal); !a.Equal(decimal.RequireFromString("1.5")) {
		t.Fatalf("decimal AVG = %s, want 1.5", a)
	}

	widened, _ := NewBuilder(ast.FuncSum, types.ColumnTypeInteger, false)
	widened.Add(int64(1))
	widened.Add(0.5)
	widened.Add("not a number")
	if w := widened.Result(); w != 1.5 {
		t.Fatalf("widened SUM = %v, want 1.5", w)
	}

	median, _ := NewBuilder(ast.FuncMedian, types.ColumnTypeInteger, false)
	for _, v := range []int64{4, 1, 3, 2} {
		median.Add(v)
	}
	if m := median.Result(); m != 2.5 {
		t.Fatalf("even MEDIAN = %v, want 2.5", m)
	}
	if typ := ast.FuncMedian.OutputType(types.ColumnTypeInteger); typ != types.ColumnTypeDouble {
		t.Fatalf("MEDIAN over INTEGER declared %s, want DOUBLE", typ)
	}
}

func TestBuilders_IntegerSumOverflow(t *testing.T) {
	sum, _ := NewBuilder(ast.FuncSum, types.ColumnTypeBigInt, false)
	sum.Add(int64(math.MaxInt64))
	sum.Add(int64(1))
	sum.Add(int64(1))
	got, ok := sum.Result().(decimal.Decimal)
	if !ok {
		t.Fatalf("overflowing SUM = %v (%T), want a decimal", sum.Result(), sum.Result())
	}
	want := decimal.NewFromInt(math.MaxInt64).Add(decimal.NewFromInt(2))
	if !got.Equal(want) {
		t.Fatalf("overflowing SUM = %s, want %s", got, want)
	}

	neg, _ := NewBuilder(ast.FuncSum, types.ColumnTypeBigInt, false)
	neg.Add(int64(math.MinInt64))
	neg.Add(int64(-1))
	if got := neg.Result().(decimal.Decimal); !got.Equal(decimal.NewFromInt(math.MinInt64).Sub(decimal.NewFromInt(1))) {
		t.Fatalf("underflowing SUM = %s", got)
	}

	mixed, _ := NewBuilder(ast.FuncSum, types.ColumnTypeBigInt, false)
	mixed.Add(int64(math.MaxInt64))
	mixed.Add(int64(-1))
	if got := mixed.Result(); got != int64(math.MaxInt64-1) {
		t.Fatalf("SUM = %v, want %d", got, int64(math.MaxInt64-1))
	}
}

func TestBuilders_Random(t *testing.T) {
	b, _ := NewBuilder(ast.FuncRandom, types.ColumnTypeVarchar, false)
	seen := map[interface{}]bool{"a": true, "b": true, "c": true}
	for v := range seen {
		b.Add(v)
	}
	if !seen[b.Result()] {
		t.Fatalf("RANDOM returned %v, not one of the inputs", b.Result())
	}
}

func TestAggregate_GroupBy(t *testing.T) {
	f := newSalesFixture()
	ds := f.dataSet(
		[]interface{}{"north", int64(10), "1.50"},
		[]interface{}{nil, int64(5), "2.00"},
		[]interface{}{"south", int64(3), nil},
		[]interface{}{"north", int64(7), "0.50"},
		[]interface{}{nil, int64(1), "1.00"},
	)
	items := []*ast.SelectItem{
		f.region,
		ast.CountAll(),
		f.amount.WithFunction(ast.FuncSum),
		f.price.WithFunction(ast.FuncMax),
	}

	result, err := Aggregate(ds, items, []*ast.SelectItem{f.region})
	if err != nil {
		t.Fatal(err)
	}
	rows, err := data.ToRows(result)
	if err != nil {
		t.Fatal(err)
	}

	want := []string{
		"Row[values=[north, 2, 17, 1.50]]",
		"Row[values=[null, 2, 6, 2.00]]",
		"Row[values=[south, 1, 3, null]]",
	}
	if len(rows) != len(want) {
		t.Fatalf("expected %d groups, got %d: %v", len(want), len(rows), rows)
	}
	for i, w := range want {
		if rows[i].String() != w {
			t.Errorf("group %d: got %s, want %s", i, rows[i], w)
		}
	}
}

func TestAggregate_NoGroupByEmptyInput(t *testing.T) {
	f := newSalesFixture()
	items := []*ast.SelectItem{ast.CountAll(), f.amount.WithFunction(ast.FuncSum)}

	result, err := Aggregate(f.dataSet(), items, nil)
	if err != nil {
		t.Fatal(err)
	}
	rows, _ := data.ToRows(result)
	if len(rows) != 1 || rows[0].String() != "Row[values=[0, null]]" {
		t.Fatalf("unexpected rows: %v", rows)
	}

	grouped, err := Aggregate(f.dataSet(), items, []*ast.SelectItem{f.region})
	if err != nil {
		t.Fatal(err)
	}
	if grouped.Len() != 0 {
		t.Fatalf("grouped empty input should yield no rows, got %d", grouped.Len())
	}
}

// TestProperty_CountSumLaw checks that the COUNT(*) values of all groups add
// up to the ungrouped COUNT(*).
func TestProperty_CountSumLaw(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	f := newSalesFixture()
	regions := []interface{}{"north", "south", "east", nil}

	properties.Property("sum of group counts equals total count", prop.ForAll(
		func(picks []int) bool {
			values := make([][]interface{}, len(picks))
			for i, p := range picks {
				values[i] = []interface{}{regions[p], int64(i), nil}
			}

			grouped, err := Aggregate(data.NewValuesDataSet(f.header, values),
				[]*ast.SelectItem{f.region, ast.CountAll()}, []*ast.SelectItem{f.region})
			if err != nil {
				return false
			}
			rows, _ := data.ToRows(grouped)
			var sum int64
			for _, r := range rows {
				sum += r.Value(1).(int64)
			}

			total, err := Aggregate(data.NewValuesDataSet(f.header, values),
				[]*ast.SelectItem{ast.CountAll()}, nil)
			if err != nil {
				return false
			}
			totalRows, _ := data.ToRows(total)
			return sum == totalRows[0].Value(0).(int64)
		},
		gen.SliceOf(gen.IntRange(0, len(regions)-1)),
	))

	properties.TestingRun(t)
}
