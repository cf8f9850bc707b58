package ast

import (
	"sort"

	"github.com/arkilian/metaquery/pkg/types"
)

// EquiJoinPredicate is a column equality between two different FROM items,
// usable as a join condition.
type EquiJoinPredicate struct {
	Left  *SelectItem
	Right *SelectItem
}

// ExtractEquiJoinPredicates collects column = column leaves reachable from
// the top-level WHERE list through AND nodes only. Equalities under OR or
// NOT cannot drive a join and are left to the filter stage.
func ExtractEquiJoinPredicates(where []*FilterItem) []EquiJoinPredicate {
	var preds []EquiJoinPredicate
	var extract func(f *FilterItem)
	extract = func(f *FilterItem) {
		if f == nil || f.Negated {
			return
		}
		if f.IsComposite() {
			if f.Logic == LogicalAnd {
				for _, c := range f.Children {
					extract(c)
				}
			}
			return
		}
		if f.Operator != OpEquals {
			return
		}
		right, ok := f.OperandItem()
		if !ok || f.Item.Column == nil || right.Column == nil ||
			f.Item.Function != FuncNone || right.Function != FuncNone {
			return
		}
		preds = append(preds, EquiJoinPredicate{Left: f.Item, Right: right})
	}
	for _, w := range where {
		extract(w)
	}
	return preds
}

// ReferencedItems returns every SelectItem the query references anywhere:
// SELECT, WHERE, GROUP BY, HAVING, ORDER BY and join conditions.
func (q *Query) ReferencedItems() []*SelectItem {
	var items []*SelectItem
	items = append(items, q.Select...)
	for _, w := range q.Where {
		items = append(items, w.SelectItems()...)
	}
	items = append(items, q.GroupBy...)
	for _, h := range q.Having {
		items = append(items, h.SelectItems()...)
	}
	for _, o := range q.OrderBy {
		items = append(items, o.Item)
	}
	var joins func(f *FromItem)
	joins = func(f *FromItem) {
		if !f.IsJoin() {
			return
		}
		items = append(items, f.LeftOn...)
		items = append(items, f.RightOn...)
		joins(f.Left)
		joins(f.Right)
	}
	for _, f := range q.From {
		joins(f)
	}
	return items
}

// ColumnsFor returns the minimal column set of a table item needed by the
// query, in table position order.
func (q *Query) ColumnsFor(from *FromItem) []*types.Column {
	seen := make(map[*types.Column]bool)
	var cols []*types.Column
	for _, item := range q.ReferencedItems() {
		if item.Column == nil || seen[item.Column] || !from.Owns(item) {
			continue
		}
		seen[item.Column] = true
		cols = append(cols, item.Column)
	}
	sort.SliceStable(cols, func(i, j int) bool {
		return cols[i].Position < cols[j].Position
	})
	return cols
}

// FilterLeavesByColumn returns the leaves of filters that test the named column.
func FilterLeavesByColumn(filters []*FilterItem, column string) []*FilterItem {
	var result []*FilterItem
	for _, f := range filters {
		for _, leaf := range f.Leaves() {
			if leaf.Item != nil && leaf.Item.Column != nil && leaf.Item.Column.Name == column {
				result = append(result, leaf)
			}
		}
	}
	return result
}
