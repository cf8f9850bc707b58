package update_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qerrors "github.com/arkilian/metaquery/internal/errors"
	"github.com/arkilian/metaquery/internal/query/ast"
	"github.com/arkilian/metaquery/internal/query/data"
	"github.com/arkilian/metaquery/internal/query/executor"
	"github.com/arkilian/metaquery/internal/source/memory"
	"github.com/arkilian/metaquery/internal/update"
	"github.com/arkilian/metaquery/pkg/types"
)

func newTable(t *testing.T) (*memory.DataContext, *types.Table) {
	t.Helper()
	dc := memory.New("test")
	table, err := dc.Load("t", []types.Column{
		{Name: "name", Type: types.ColumnTypeVarchar},
		{Name: "x", Type: types.ColumnTypeInteger},
	}, [][]interface{}{
		{"A", int64(1)},
		{"B", int64(2)},
		{"C", int64(3)},
	})
	require.NoError(t, err)
	return dc, table
}

func contents(t *testing.T, dc *memory.DataContext, table *types.Table) []string {
	t.Helper()
	e := executor.New(dc)
	q := ast.NewQuery()
	q.From = []*ast.FromItem{ast.TableItem(table, "")}
	for _, c := range table.Columns {
		q.Select = append(q.Select, ast.ColumnItem(c))
	}
	ds, err := e.Execute(context.Background(), q)
	require.NoError(t, err)
	rows, err := data.ToRows(ds)
	require.NoError(t, err)
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.String()
	}
	return out
}

func where(table *types.Table, column string, op ast.OperatorType, operand interface{}) []*ast.FilterItem {
	col, _ := table.Column(column)
	return []*ast.FilterItem{ast.Compare(ast.ColumnItem(col), op, operand)}
}

func TestUpdate_EmulatedAllRows(t *testing.T) {
	dc, table := newTable(t)
	u := update.NewExecutor(dc, executor.New(dc))

	n, err := u.Update(context.Background(), update.Update{
		Table: table,
		Set:   map[string]interface{}{"x": int64(5)},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, []string{
		"Row[values=[A, 5]]",
		"Row[values=[B, 5]]",
		"Row[values=[C, 5]]",
	}, contents(t, dc, table))
}

func TestUpdate_EmulatedWithWhere(t *testing.T) {
	dc, table := newTable(t)
	u := update.NewExecutor(dc, executor.New(dc))

	n, err := u.Update(context.Background(), update.Update{
		Table: table,
		Set:   map[string]interface{}{"x": int64(9)},
		Where: where(table, "name", ast.OpEquals, "B"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	// re-inserted rows land at the end
	assert.Equal(t, []string{
		"Row[values=[A, 1]]",
		"Row[values=[C, 3]]",
		"Row[values=[B, 9]]",
	}, contents(t, dc, table))
}

func TestUpdate_NoMatches(t *testing.T) {
	dc, table := newTable(t)
	u := update.NewExecutor(dc, executor.New(dc))

	n, err := u.Update(context.Background(), update.Update{
		Table: table,
		Set:   map[string]interface{}{"x": int64(0)},
		Where: where(table, "x", ast.OpGreaterThan, 10),
	})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, contents(t, dc, table), 3)
}

func TestUpdate_UnknownColumn(t *testing.T) {
	dc, table := newTable(t)
	u := update.NewExecutor(dc, executor.New(dc))

	_, err := u.Update(context.Background(), update.Update{
		Table: table,
		Set:   map[string]interface{}{"y": 1},
	})
	assert.Equal(t, qerrors.CodeUnresolvedColumn, qerrors.GetCode(err))
}

// flakyTarget fails every Insert after the first allowed ones.
type flakyTarget struct {
	*memory.DataContext
	allowed int
}

func (f *flakyTarget) Insert(ctx context.Context, stmt update.Insert) error {
	if f.allowed == 0 {
		return errors.New("disk full")
	}
	f.allowed--
	return f.DataContext.Insert(ctx, stmt)
}

func TestUpdate_PartialFailureReportsProgress(t *testing.T) {
	dc, table := newTable(t)
	u := update.NewExecutor(&flakyTarget{DataContext: dc, allowed: 1}, executor.New(dc))

	n, err := u.Update(context.Background(), update.Update{
		Table: table,
		Set:   map[string]interface{}{"x": int64(7)},
	})
	require.Error(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, qerrors.CodeWriteFailed, qerrors.GetCode(err))
	assert.Contains(t, err.Error(), "re-inserted 1 of 3")
	assert.Equal(t, []string{"Row[values=[A, 7]]"}, contents(t, dc, table))
}

// recordingTarget has native UPDATE and records what it was asked to do.
type recordingTarget struct {
	caps    update.Capabilities
	updates []update.Update
}

func (r *recordingTarget) Capabilities() update.Capabilities { return r.caps }
func (r *recordingTarget) CreateTable(context.Context, update.CreateTable) (*types.Table, error) {
	return nil, nil
}
func (r *recordingTarget) DropTable(context.Context, update.DropTable) error { return nil }
func (r *recordingTarget) Insert(context.Context, update.Insert) error       { return nil }
func (r *recordingTarget) Delete(context.Context, update.Delete) (int64, error) {
	return 0, nil
}
func (r *recordingTarget) Update(_ context.Context, stmt update.Update) (int64, error) {
	r.updates = append(r.updates, stmt)
	return 42, nil
}

func TestUpdate_PrefersNativeUpdate(t *testing.T) {
	_, table := newTable(t)
	target := &recordingTarget{caps: update.Capabilities{Insert: true, Delete: true, Update: true}}
	u := update.NewExecutor(target, nil)

	n, err := u.Update(context.Background(), update.Update{Table: table, Set: map[string]interface{}{"x": 1}})
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)
	assert.Len(t, target.updates, 1)
}

func TestCapabilityChecks(t *testing.T) {
	_, table := newTable(t)
	u := update.NewExecutor(&recordingTarget{}, nil)
	ctx := context.Background()

	_, err := u.Update(ctx, update.Update{Table: table})
	assert.Equal(t, qerrors.ErrCategoryUnsupported, qerrors.GetCategory(err))

	err = u.Insert(ctx, update.Insert{Table: table})
	assert.Equal(t, qerrors.ErrCategoryUnsupported, qerrors.GetCategory(err))

	_, err = u.Delete(ctx, update.Delete{Table: table})
	assert.Equal(t, qerrors.ErrCategoryUnsupported, qerrors.GetCategory(err))

	_, err = u.CreateTable(ctx, update.CreateTable{Name: "x"})
	assert.Equal(t, qerrors.ErrCategoryUnsupported, qerrors.GetCategory(err))

	err = u.DropTable(ctx, update.DropTable{Table: table})
	assert.Equal(t, qerrors.ErrCategoryUnsupported, qerrors.GetCategory(err))
}

func TestUpdate_EmulationNeedsQuerier(t *testing.T) {
	dc, table := newTable(t)
	u := update.NewExecutor(dc, nil)
	_, err := u.Update(context.Background(), update.Update{Table: table, Set: map[string]interface{}{"x": 1}})
	assert.Equal(t, qerrors.ErrCategoryUnsupported, qerrors.GetCategory(err))
}
