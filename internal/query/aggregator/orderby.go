package aggregator

import (
	"sort"

	"github.com/arkilian/metaquery/internal/query/ast"
	"github.com/arkilian/metaquery/internal/query/compare"
	"github.com/arkilian/metaquery/internal/query/data"
)

// OrderBySorter sorts rows according to ORDER BY items.
// It supports multiple items and ASC/DESC directions; NULL sorts first in
// ascending order.
type OrderBySorter struct {
	items []*ast.OrderByItem
}

// NewOrderBySorter creates a new sorter for the given ORDER BY items.
func NewOrderBySorter(items []*ast.OrderByItem) *OrderBySorter {
	return &OrderBySorter{items: items}
}

// Sort sorts the rows in place. Rows with equal keys keep their order.
func (s *OrderBySorter) Sort(rows []data.Row) {
	if len(s.items) == 0 || len(rows) <= 1 {
		return
	}

	// Resolve sort keys once per row
	keys := make([][]interface{}, len(rows))
	for i, row := range rows {
		k := make([]interface{}, len(s.items))
		for j, o := range s.items {
			k[j] = valueOrNull(row, o.Item)
		}
		keys[i] = k
	}

	perm := make([]int, len(rows))
	for i := range perm {
		perm[i] = i
	}
	sort.SliceStable(perm, func(a, b int) bool {
		ka, kb := keys[perm[a]], keys[perm[b]]
		for j, o := range s.items {
			cmp := compare.Order(ka[j], kb[j])
			if cmp == 0 {
				continue
			}
			if o.Descending {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})

	sorted := make([]data.Row, len(rows))
	for i, p := range perm {
		sorted[i] = rows[p]
	}
	copy(rows, sorted)
}

// SortDataSet drains ds, sorts its rows and returns them as a new DataSet.
func (s *OrderBySorter) SortDataSet(ds data.DataSet) (*data.SliceDataSet, error) {
	rows, err := data.ToRows(ds)
	if err != nil {
		return nil, err
	}
	s.Sort(rows)
	return data.NewSliceDataSet(ds.Header(), rows), nil
}
