// Package ast provides the programmatic query model: FROM/SELECT/WHERE/GROUP
// BY/HAVING/ORDER BY items, predicate trees, and a Builder that resolves
// names against a schema snapshot.
package ast

import (
	"fmt"
	"strings"

	"github.com/arkilian/metaquery/pkg/types"
)

// Unbounded is the MaxRows sentinel meaning "no limit".
const Unbounded = -1

// JoinType is the kind of join between two FROM items.
type JoinType int

const (
	JoinInner JoinType = iota
	JoinLeft
	JoinRight
)

func (j JoinType) String() string {
	switch j {
	case JoinLeft:
		return "LEFT JOIN"
	case JoinRight:
		return "RIGHT JOIN"
	}
	return "INNER JOIN"
}

// FromItem is a table reference, or a join of two FROM items on column pairs.
type FromItem struct {
	Table *types.Table
	Alias string

	Join    JoinType
	Left    *FromItem
	Right   *FromItem
	LeftOn  []*SelectItem
	RightOn []*SelectItem
}

// TableItem references a table in FROM.
func TableItem(t *types.Table, alias string) *FromItem {
	return &FromItem{Table: t, Alias: alias}
}

// JoinItem joins two FROM items on pairwise-equal columns.
func JoinItem(jt JoinType, left, right *FromItem, leftOn, rightOn []*SelectItem) *FromItem {
	return &FromItem{Join: jt, Left: left, Right: right, LeftOn: leftOn, RightOn: rightOn}
}

// IsJoin reports whether the item joins two FROM items.
func (f *FromItem) IsJoin() bool {
	return f.Left != nil && f.Right != nil
}

// Qualifier is the name columns of this table are qualified with.
func (f *FromItem) Qualifier() string {
	if f.Alias != "" {
		return f.Alias
	}
	if f.Table != nil {
		return f.Table.QualifiedName()
	}
	return ""
}

// BaseItems returns the table items under f, left to right.
func (f *FromItem) BaseItems() []*FromItem {
	if !f.IsJoin() {
		return []*FromItem{f}
	}
	return append(f.Left.BaseItems(), f.Right.BaseItems()...)
}

// Owns reports whether a select item's column belongs to this table item.
func (f *FromItem) Owns(item *SelectItem) bool {
	if f.IsJoin() || item.Column == nil || item.Column.Table == nil || f.Table == nil {
		return false
	}
	if item.Column.Table.QualifiedName() != f.Table.QualifiedName() {
		return false
	}
	return item.Qualifier == "" || item.Qualifier == f.Qualifier() ||
		(f.Alias == "" && item.Qualifier == f.Table.Name)
}

// String returns the SQL representation of the FROM item.
func (f *FromItem) String() string {
	if f.IsJoin() {
		conds := make([]string, len(f.LeftOn))
		for i := range f.LeftOn {
			conds[i] = fmt.Sprintf("%s = %s", f.LeftOn[i].expression(), f.RightOn[i].expression())
		}
		return fmt.Sprintf("%s %s %s ON %s", f.Left, f.Join, f.Right, strings.Join(conds, " AND "))
	}
	if f.Alias != "" {
		return fmt.Sprintf("%s %s", f.Table.QualifiedName(), f.Alias)
	}
	return f.Table.QualifiedName()
}

// OrderByItem is an ORDER BY entry.
type OrderByItem struct {
	Item       *SelectItem
	Descending bool
}

// String returns the SQL representation of the ORDER BY item.
func (o *OrderByItem) String() string {
	if o.Descending {
		return fmt.Sprintf("%s DESC", o.Item.expression())
	}
	return fmt.Sprintf("%s ASC", o.Item.expression())
}

// Query is a fully built SELECT query. It is treated as immutable once
// handed to execution.
type Query struct {
	Select   []*SelectItem
	Distinct bool
	From     []*FromItem
	Where    []*FilterItem
	GroupBy  []*SelectItem
	Having   []*FilterItem
	OrderBy  []*OrderByItem

	// Offset is the number of leading result rows to skip.
	Offset int
	// MaxRows caps the number of rows returned; Unbounded for no cap.
	MaxRows int
}

// NewQuery returns an empty query with no row cap.
func NewQuery() *Query {
	return &Query{MaxRows: Unbounded}
}

// BaseFromItems returns the table items of all FROM entries, left to right.
func (q *Query) BaseFromItems() []*FromItem {
	var items []*FromItem
	for _, f := range q.From {
		items = append(items, f.BaseItems()...)
	}
	return items
}

// HasAggregates reports whether any select, having or order item aggregates.
func (q *Query) HasAggregates() bool {
	for _, s := range q.Select {
		if s.IsAggregate() {
			return true
		}
	}
	for _, h := range q.Having {
		for _, item := range h.SelectItems() {
			if item.IsAggregate() {
				return true
			}
		}
	}
	for _, o := range q.OrderBy {
		if o.Item.IsAggregate() {
			return true
		}
	}
	return false
}

// NeedsGrouping reports whether the group/aggregate stage must run.
func (q *Query) NeedsGrouping() bool {
	return len(q.GroupBy) > 0 || q.HasAggregates()
}

// IsLimited reports whether offset or max rows restrict the result.
func (q *Query) IsLimited() bool {
	return q.Offset > 0 || q.MaxRows >= 0
}

// IsSimple reports whether the query only selects, filters and limits over
// a single table, so the source may be given a row cap hint.
func (q *Query) IsSimple() bool {
	return len(q.From) == 1 && !q.From[0].IsJoin() &&
		len(q.Where) == 0 && !q.NeedsGrouping() && len(q.Having) == 0 &&
		!q.Distinct && len(q.OrderBy) == 0
}

// String returns a SQL-like rendering of the query, used for logging.
func (q *Query) String() string {
	var sb strings.Builder

	sb.WriteString("SELECT ")
	if q.Distinct {
		sb.WriteString("DISTINCT ")
	}

	cols := make([]string, len(q.Select))
	for i, col := range q.Select {
		cols[i] = col.String()
	}
	sb.WriteString(strings.Join(cols, ", "))

	if len(q.From) > 0 {
		sb.WriteString(" FROM ")
		froms := make([]string, len(q.From))
		for i, f := range q.From {
			froms[i] = f.String()
		}
		sb.WriteString(strings.Join(froms, ", "))
	}

	if len(q.Where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(joinFilters(q.Where))
	}

	if len(q.GroupBy) > 0 {
		sb.WriteString(" GROUP BY ")
		groups := make([]string, len(q.GroupBy))
		for i, g := range q.GroupBy {
			groups[i] = g.expression()
		}
		sb.WriteString(strings.Join(groups, ", "))
	}

	if len(q.Having) > 0 {
		sb.WriteString(" HAVING ")
		sb.WriteString(joinFilters(q.Having))
	}

	if len(q.OrderBy) > 0 {
		sb.WriteString(" ORDER BY ")
		orders := make([]string, len(q.OrderBy))
		for i, o := range q.OrderBy {
			orders[i] = o.String()
		}
		sb.WriteString(strings.Join(orders, ", "))
	}

	if q.MaxRows >= 0 {
		sb.WriteString(fmt.Sprintf(" LIMIT %d", q.MaxRows))
	}
	if q.Offset > 0 {
		sb.WriteString(fmt.Sprintf(" OFFSET %d", q.Offset))
	}

	return sb.String()
}

func joinFilters(filters []*FilterItem) string {
	parts := make([]string, len(filters))
	for i, f := range filters {
		parts[i] = f.String()
	}
	return strings.Join(parts, " AND ")
}
