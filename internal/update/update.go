// Package update defines write operations against sources and synthesizes
// UPDATE for targets that can only delete and insert.
package update

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	qerrors "github.com/arkilian/metaquery/internal/errors"
	"github.com/arkilian/metaquery/internal/query/ast"
	"github.com/arkilian/metaquery/internal/query/data"
	"github.com/arkilian/metaquery/pkg/types"
)

// Capabilities declares which write operations a target supports natively.
type Capabilities struct {
	Insert      bool
	Delete      bool
	Update      bool
	CreateTable bool
	DropTable   bool
}

// CreateTable creates a table in Schema.
type CreateTable struct {
	Schema  string
	Name    string
	Columns []types.Column
}

// DropTable drops a table.
type DropTable struct {
	Table *types.Table
}

// Insert adds one row. Columns not named in Values are null.
type Insert struct {
	Table  *types.Table
	Values map[string]interface{}
}

// Delete removes the rows of Table matching every Where filter. An empty
// Where deletes all rows.
type Delete struct {
	Table *types.Table
	Where []*ast.FilterItem
}

// Update assigns Set to the rows of Table matching every Where filter.
type Update struct {
	Table *types.Table
	Set   map[string]interface{}
	Where []*ast.FilterItem
}

// Target is a writable source. Operations a target does not declare in
// Capabilities are never called.
type Target interface {
	Capabilities() Capabilities
	CreateTable(ctx context.Context, stmt CreateTable) (*types.Table, error)
	DropTable(ctx context.Context, stmt DropTable) error
	Insert(ctx context.Context, stmt Insert) error
	Delete(ctx context.Context, stmt Delete) (int64, error)
	Update(ctx context.Context, stmt Update) (int64, error)
}

// Querier runs queries against the target's data.
type Querier interface {
	Execute(ctx context.Context, q *ast.Query) (data.DataSet, error)
}

// Executor applies write statements to a target, checking capabilities and
// emulating UPDATE with DELETE followed by INSERT where needed.
type Executor struct {
	target  Target
	querier Querier
	logger  *zap.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the executor's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewExecutor creates an executor for target. querier reads back matching
// rows during emulated updates.
func NewExecutor(target Target, querier Querier, opts ...Option) *Executor {
	e := &Executor{target: target, querier: querier, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateTable creates a table if the target supports it.
func (e *Executor) CreateTable(ctx context.Context, stmt CreateTable) (*types.Table, error) {
	if !e.target.Capabilities().CreateTable {
		return nil, qerrors.NewUnsupportedError("create table is not supported by this target")
	}
	return e.target.CreateTable(ctx, stmt)
}

// DropTable drops a table if the target supports it.
func (e *Executor) DropTable(ctx context.Context, stmt DropTable) error {
	if !e.target.Capabilities().DropTable {
		return qerrors.NewUnsupportedError("drop table is not supported by this target")
	}
	return e.target.DropTable(ctx, stmt)
}

// Insert inserts a row if the target supports it.
func (e *Executor) Insert(ctx context.Context, stmt Insert) error {
	if !e.target.Capabilities().Insert {
		return qerrors.NewUnsupportedError("insert is not supported by this target")
	}
	if err := checkColumns(stmt.Table, stmt.Values); err != nil {
		return err
	}
	return e.target.Insert(ctx, stmt)
}

// Delete deletes matching rows if the target supports it.
func (e *Executor) Delete(ctx context.Context, stmt Delete) (int64, error) {
	if !e.target.Capabilities().Delete {
		return 0, qerrors.NewUnsupportedError("delete is not supported by this target")
	}
	return e.target.Delete(ctx, stmt)
}

// Update assigns values to matching rows and returns the number of rows
// updated. A target with native UPDATE is used directly. Otherwise, if the
// target can delete and insert, the update is emulated:
//
//  1. every matching row is read into memory (all columns),
//  2. the rows are deleted with the same WHERE,
//  3. each row is re-inserted with the assignments applied.
//
// The emulation is not atomic. If step 3 fails, rows deleted in step 2 and
// not yet re-inserted are lost; the returned error reports how many were
// re-inserted.
func (e *Executor) Update(ctx context.Context, stmt Update) (int64, error) {
	if err := checkColumns(stmt.Table, stmt.Set); err != nil {
		return 0, err
	}
	caps := e.target.Capabilities()
	switch {
	case caps.Update:
		return e.target.Update(ctx, stmt)
	case caps.Insert && caps.Delete:
		return e.emulateUpdate(ctx, stmt)
	}
	return 0, qerrors.NewUnsupportedError("update is not supported by this target")
}

func (e *Executor) emulateUpdate(ctx context.Context, stmt Update) (int64, error) {
	if e.querier == nil {
		return 0, qerrors.NewUnsupportedError("update emulation requires a querier")
	}

	q := ast.NewQuery()
	q.From = []*ast.FromItem{ast.TableItem(stmt.Table, "")}
	for _, c := range stmt.Table.Columns {
		q.Select = append(q.Select, ast.ColumnItem(c))
	}
	q.Where = stmt.Where

	ds, err := e.querier.Execute(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("update: read matching rows: %w", err)
	}
	rows, err := data.ToRows(ds)
	if err != nil {
		return 0, fmt.Errorf("update: read matching rows: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	if _, err := e.target.Delete(ctx, Delete{Table: stmt.Table, Where: stmt.Where}); err != nil {
		return 0, fmt.Errorf("update: delete matching rows: %w", err)
	}

	for i, row := range rows {
		values := make(map[string]interface{}, len(stmt.Table.Columns))
		for j, c := range stmt.Table.Columns {
			values[c.Name] = row.Value(j)
		}
		for name, v := range stmt.Set {
			col, _ := stmt.Table.Column(name)
			values[col.Name] = v
		}
		if err := e.target.Insert(ctx, Insert{Table: stmt.Table, Values: values}); err != nil {
			e.logger.Error("emulated update lost rows",
				zap.String("table", stmt.Table.QualifiedName()),
				zap.Int("reinserted", i),
				zap.Int("deleted", len(rows)),
				zap.Error(err))
			return int64(i), qerrors.NewIOError(qerrors.CodeWriteFailed,
				fmt.Sprintf("update: re-inserted %d of %d deleted rows", i, len(rows)), err)
		}
	}

	e.logger.Debug("emulated update",
		zap.String("table", stmt.Table.QualifiedName()),
		zap.Int("rows", len(rows)))
	return int64(len(rows)), nil
}

func checkColumns(table *types.Table, values map[string]interface{}) error {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, ok := table.Column(name); !ok {
			return qerrors.NewConfigurationError(qerrors.CodeUnresolvedColumn,
				fmt.Sprintf("no such column: %s.%s", table.QualifiedName(), name))
		}
	}
	return nil
}
