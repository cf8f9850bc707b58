// Package executor runs queries against a data source. The source only
// delivers raw table rows; joins, filtering, grouping, aggregation, sorting,
// distinct and pagination are all computed here.
package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	qerrors "github.com/arkilian/metaquery/internal/errors"
	"github.com/arkilian/metaquery/internal/observability"
	"github.com/arkilian/metaquery/internal/query/aggregator"
	"github.com/arkilian/metaquery/internal/query/ast"
	"github.com/arkilian/metaquery/internal/query/compare"
	"github.com/arkilian/metaquery/internal/query/data"
	"github.com/arkilian/metaquery/internal/query/filter"
	"github.com/arkilian/metaquery/internal/query/join"
	"github.com/arkilian/metaquery/internal/source"
	"github.com/arkilian/metaquery/pkg/types"
)

// Executor executes queries over a source.DataContext.
type Executor struct {
	source    source.DataContext
	evaluator *filter.Evaluator
	stats     *observability.QueryStats
	logger    *zap.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithStats records predicate usage and execution outcomes into stats.
func WithStats(stats *observability.QueryStats) Option {
	return func(e *Executor) { e.stats = stats }
}

// WithEvaluator replaces the predicate evaluator.
func WithEvaluator(ev *filter.Evaluator) Option {
	return func(e *Executor) {
		if ev != nil {
			e.evaluator = ev
		}
	}
}

// New creates an executor over src.
func New(src source.DataContext, opts ...Option) *Executor {
	e := &Executor{source: src, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	if e.evaluator == nil {
		e.evaluator = filter.NewEvaluator(filter.WithLogger(e.logger))
	}
	return e
}

// Schemas returns the source's current schema snapshot.
func (e *Executor) Schemas(ctx context.Context) ([]*types.Schema, error) {
	return e.source.Schemas(ctx)
}

// Query returns a builder resolving names against the current snapshot.
func (e *Executor) Query(ctx context.Context) (*ast.Builder, error) {
	schemas, err := e.source.Schemas(ctx)
	if err != nil {
		return nil, err
	}
	return ast.NewBuilder(schemas...), nil
}

// Execute runs q and returns its result as a lazy DataSet. Rows are pulled
// from the source only as the result is consumed; the caller must Close it.
//
// Processing order: materialize each FROM item, join, WHERE, group and
// aggregate, HAVING, ORDER BY, projection, DISTINCT, then OFFSET and LIMIT.
func (e *Executor) Execute(ctx context.Context, q *ast.Query) (data.DataSet, error) {
	start := time.Now()
	id := uuid.NewString()
	log := e.logger.With(zap.String("query_id", id))

	ds, err := e.execute(ctx, q, log)
	if err != nil {
		log.Debug("query failed", zap.Stringer("query", q), zap.Error(err))
		if e.stats != nil {
			e.stats.RecordExecution(time.Since(start), 0, err)
		}
		return nil, err
	}
	log.Debug("query started", zap.Stringer("query", q))
	return &observed{DataSet: ds, ctx: ctx, start: start, stats: e.stats, log: log}, nil
}

func (e *Executor) execute(ctx context.Context, q *ast.Query, log *zap.Logger) (data.DataSet, error) {
	if q == nil || len(q.From) == 0 {
		return nil, qerrors.NewQueryError(qerrors.CodeInvalidQuery, "query has no FROM item")
	}
	if err := e.validate(ctx, q); err != nil {
		return nil, err
	}
	e.record(q)

	hint := ast.Unbounded
	if q.IsSimple() && q.MaxRows >= 0 {
		hint = q.Offset + q.MaxRows
	}

	ds, err := e.from(ctx, q, hint)
	if err != nil {
		return nil, err
	}

	if len(q.Where) > 0 {
		ds = data.Filter(ds, func(r data.Row) bool {
			return e.evaluator.AcceptAll(q.Where, r)
		})
	}

	if q.NeedsGrouping() {
		grouped, err := aggregator.Aggregate(ds, groupItems(q), q.GroupBy)
		if err != nil {
			return nil, fmt.Errorf("executor: aggregate: %w", err)
		}
		ds = grouped
		if len(q.Having) > 0 {
			ds = data.Filter(ds, func(r data.Row) bool {
				return e.evaluator.AcceptAll(q.Having, r)
			})
		}
	}

	if len(q.OrderBy) > 0 {
		sorted, err := aggregator.NewOrderBySorter(q.OrderBy).SortDataSet(ds)
		if err != nil {
			return nil, fmt.Errorf("executor: sort: %w", err)
		}
		ds = sorted
	}

	if len(q.Select) > 0 {
		ds = project(ds, q.Select)
	}
	if q.Distinct {
		ds = distinct(ds)
	}

	log.Debug("query planned",
		zap.Int("from_items", len(q.BaseFromItems())),
		zap.Bool("grouped", q.NeedsGrouping()),
		zap.Int("source_hint", hint))
	return data.Paginate(ds, q.Offset, q.MaxRows), nil
}

// validate fails fast when the query references tables or columns missing
// from the source's current snapshot.
func (e *Executor) validate(ctx context.Context, q *ast.Query) error {
	schemas, err := e.source.Schemas(ctx)
	if err != nil {
		return err
	}
	bases := q.BaseFromItems()
	for _, f := range bases {
		if f.Table == nil {
			return qerrors.NewQueryError(qerrors.CodeInvalidQuery, "FROM item has no table")
		}
		schemaName := ""
		if f.Table.Schema != nil {
			schemaName = f.Table.Schema.Name
		}
		if _, ok := source.FindTable(schemas, schemaName, f.Table.Name); !ok {
			return qerrors.NewConfigurationError(qerrors.CodeUnresolvedTable,
				fmt.Sprintf("no such table: %s", f.Table.QualifiedName()))
		}
	}

	for _, item := range q.ReferencedItems() {
		if item.Column == nil {
			continue
		}
		owned := false
		for _, f := range bases {
			if f.Owns(item) {
				owned = true
				break
			}
		}
		if !owned {
			return qerrors.NewConfigurationError(qerrors.CodeUnresolvedColumn,
				fmt.Sprintf("column %s is not provided by any FROM item", item.Label()))
		}
		t := item.Column.Table
		schemaName := ""
		if t.Schema != nil {
			schemaName = t.Schema.Name
		}
		current, _ := source.FindTable(schemas, schemaName, t.Name)
		if _, ok := current.Column(item.Column.Name); !ok {
			return qerrors.NewConfigurationError(qerrors.CodeUnresolvedColumn,
				fmt.Sprintf("no such column: %s.%s", t.QualifiedName(), item.Column.Name))
		}
	}
	return nil
}

// from materializes and joins every FROM entry. Top-level entries are joined
// left to right on column equalities found in WHERE, or crossed when there
// are none.
func (e *Executor) from(ctx context.Context, q *ast.Query, hint int) (data.DataSet, error) {
	ds, err := e.fromItem(ctx, q, q.From[0], hint)
	if err != nil {
		return nil, err
	}
	preds := ast.ExtractEquiJoinPredicates(q.Where)
	for _, f := range q.From[1:] {
		right, err := e.fromItem(ctx, q, f, ast.Unbounded)
		if err != nil {
			ds.Close()
			return nil, err
		}
		leftKeys, rightKeys := joinKeys(preds, ds.Header(), right.Header())
		ds, err = join.HashJoin(ds, right, ast.JoinInner, leftKeys, rightKeys)
		if err != nil {
			return nil, err
		}
	}
	return ds, nil
}

func (e *Executor) fromItem(ctx context.Context, q *ast.Query, f *ast.FromItem, hint int) (data.DataSet, error) {
	if f.IsJoin() {
		left, err := e.fromItem(ctx, q, f.Left, ast.Unbounded)
		if err != nil {
			return nil, err
		}
		right, err := e.fromItem(ctx, q, f.Right, ast.Unbounded)
		if err != nil {
			left.Close()
			return nil, err
		}
		return join.HashJoin(left, right, f.Join, f.LeftOn, f.RightOn)
	}

	columns := q.ColumnsFor(f)
	ds, err := e.source.Materialize(ctx, source.Request{Table: f.Table, Columns: columns, MaxRows: hint})
	if err != nil {
		return nil, err
	}
	if f.Alias == "" {
		return ds, nil
	}

	items := make([]*ast.SelectItem, len(columns))
	for i, c := range columns {
		items[i] = ast.QualifiedColumnItem(c, f.Alias)
	}
	return data.Map(ds, data.NewHeader(items...), func(r data.Row) ([]interface{}, error) {
		return r.Values(), nil
	}), nil
}

// joinKeys picks the WHERE equalities connecting the two headers.
func joinKeys(preds []ast.EquiJoinPredicate, left, right *data.Header) ([]*ast.SelectItem, []*ast.SelectItem) {
	var lk, rk []*ast.SelectItem
	for _, p := range preds {
		switch {
		case left.IndexOf(p.Left) >= 0 && right.IndexOf(p.Right) >= 0:
			lk, rk = append(lk, p.Left), append(rk, p.Right)
		case left.IndexOf(p.Right) >= 0 && right.IndexOf(p.Left) >= 0:
			lk, rk = append(lk, p.Right), append(rk, p.Left)
		}
	}
	return lk, rk
}

// groupItems lists every item the grouped rows must carry: the select list
// plus anything HAVING, ORDER BY and GROUP BY refer to.
func groupItems(q *ast.Query) []*ast.SelectItem {
	seen := make(map[string]bool)
	var items []*ast.SelectItem
	add := func(item *ast.SelectItem) {
		if item == nil || seen[item.Key()] {
			return
		}
		seen[item.Key()] = true
		items = append(items, item)
	}
	for _, s := range q.Select {
		add(s)
	}
	for _, h := range q.Having {
		for _, item := range h.SelectItems() {
			add(item)
		}
	}
	for _, o := range q.OrderBy {
		add(o.Item)
	}
	for _, g := range q.GroupBy {
		add(g)
	}
	return items
}

// project evaluates the select list. A scalar function that cannot convert
// a value yields null; an item missing from the row is an error.
func project(ds data.DataSet, items []*ast.SelectItem) data.DataSet {
	return data.Map(ds, data.NewHeader(items...), func(r data.Row) ([]interface{}, error) {
		values := make([]interface{}, len(items))
		for i, item := range items {
			v, err := r.ValueOf(item)
			if err != nil {
				if qerrors.GetCategory(err) == qerrors.ErrCategoryConfiguration {
					return nil, err
				}
				v = nil
			}
			values[i] = v
		}
		return values, nil
	})
}

// distinct drops rows equal to an earlier row, keeping first-seen order.
func distinct(ds data.DataSet) data.DataSet {
	seen := make(map[uint64][]string)
	return data.Filter(ds, func(r data.Row) bool {
		key := compare.Key(r.Values())
		h := compare.Hash(key)
		for _, k := range seen[h] {
			if k == key {
				return false
			}
		}
		seen[h] = append(seen[h], key)
		return true
	})
}

func (e *Executor) record(q *ast.Query) {
	if e.stats == nil {
		return
	}
	for _, f := range append(append([]*ast.FilterItem{}, q.Where...), q.Having...) {
		for _, leaf := range f.Leaves() {
			if leaf.Item != nil && leaf.Item.Column != nil {
				e.stats.RecordPredicate(leaf.Item.KeyIgnoringAlias(), leaf.Operator.String())
			}
		}
	}
	for _, item := range q.ReferencedItems() {
		if item.Function == ast.FuncMapValue && len(item.Params) > 0 {
			e.stats.RecordPath(compare.ToString(item.Params[0]))
		}
	}
}

// observed counts delivered rows, stops on context cancellation and records
// the execution when closed.
type observed struct {
	data.DataSet
	ctx   context.Context
	start time.Time
	stats *observability.QueryStats
	log   *zap.Logger

	rows int64
	err  error
	once sync.Once
}

func (o *observed) Next() bool {
	if o.err != nil {
		return false
	}
	if err := o.ctx.Err(); err != nil {
		o.err = err
		o.Close()
		return false
	}
	if !o.DataSet.Next() {
		return false
	}
	o.rows++
	return true
}

func (o *observed) Err() error {
	if o.err != nil {
		return o.err
	}
	return o.DataSet.Err()
}

func (o *observed) Close() error {
	err := o.DataSet.Close()
	o.once.Do(func() {
		elapsed := time.Since(o.start)
		if o.stats != nil {
			o.stats.RecordExecution(elapsed, o.rows, o.Err())
		}
		o.log.Debug("query finished",
			zap.Int64("rows", o.rows),
			zap.Duration("elapsed", elapsed),
			zap.Error(o.Err()))
	})
	return err
}
