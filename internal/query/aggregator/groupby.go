package aggregator

import (
	"github.com/arkilian/metaquery/internal/query/ast"
	"github.com/arkilian/metaquery/internal/query/compare"
	"github.com/arkilian/metaquery/internal/query/data"
)

// group holds the accumulators of one GROUP BY key.
type group struct {
	first    data.Row
	builders []Builder
}

// Aggregate buckets the rows of ds by the groupBy values and produces one row
// per group over items. Aggregate items are computed by their function;
// other items take the value of the group's first row. Groups are emitted in
// first-seen order.
//
// Two nulls in the same key position belong to the same group. Without
// groupBy the whole input is one group, and empty input still produces one
// row (COUNT yields 0, other aggregates null).
//
// ds is drained and closed.
func Aggregate(ds data.DataSet, items []*ast.SelectItem, groupBy []*ast.SelectItem) (*data.SliceDataSet, error) {
	defer ds.Close()

	header := data.NewHeader(items...)
	index := make(map[string]int)
	var groups []*group

	keyVals := make([]interface{}, len(groupBy))
	for ds.Next() {
		row := ds.Row()
		for i, g := range groupBy {
			keyVals[i] = valueOrNull(row, g)
		}
		key := compare.Key(keyVals)

		idx, exists := index[key]
		if !exists {
			grp, err := newGroup(row, items)
			if err != nil {
				return nil, err
			}
			idx = len(groups)
			index[key] = idx
			groups = append(groups, grp)
		}

		grp := groups[idx]
		for i, item := range items {
			b := grp.builders[i]
			if b == nil {
				continue
			}
			if item.All {
				b.Add(int64(1)) // COUNT(*) counts every row
				continue
			}
			b.Add(valueOrNull(row, item.Underlying()))
		}
	}
	if err := ds.Err(); err != nil {
		return nil, err
	}

	if len(groups) == 0 && len(groupBy) == 0 {
		grp, err := newGroup(data.Row{}, items)
		if err != nil {
			return nil, err
		}
		groups = append(groups, grp)
	}

	rows := make([]data.Row, len(groups))
	for gi, grp := range groups {
		values := make([]interface{}, len(items))
		for i, item := range items {
			if b := grp.builders[i]; b != nil {
				values[i] = b.Result()
				continue
			}
			if grp.first.Header() != nil {
				values[i] = valueOrNull(grp.first, item)
			} else if item.IsConstant {
				values[i] = item.Constant
			}
		}
		rows[gi] = data.NewRow(header, values)
	}
	return data.NewSliceDataSet(header, rows), nil
}

func newGroup(first data.Row, items []*ast.SelectItem) (*group, error) {
	grp := &group{first: first, builders: make([]Builder, len(items))}
	for i, item := range items {
		if !item.IsAggregate() {
			continue
		}
		input := item.Type()
		if item.Column != nil {
			input = item.Column.Type
		}
		b, err := NewBuilder(item.Function, input, item.All)
		if err != nil {
			return nil, err
		}
		grp.builders[i] = b
	}
	return grp, nil
}

// valueOrNull resolves item against row. Resolution failures of a single
// row, such as a failed scalar conversion, count as null.
func valueOrNull(row data.Row, item *ast.SelectItem) interface{} {
	if item == nil {
		return nil
	}
	v, err := row.ValueOf(item)
	if err != nil {
		return nil
	}
	return v
}
