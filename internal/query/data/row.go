// Package data provides the positional Row/Header value model and the
// single-pass DataSet cursor shared by sources and the query pipeline.
package data

import (
	"fmt"
	"strings"
	"sync"

	qerrors "github.com/arkilian/metaquery/internal/errors"
	"github.com/arkilian/metaquery/internal/query/ast"
	"github.com/arkilian/metaquery/internal/query/function"
)

// Header maps SelectItems to row positions. It is immutable once built.
type Header struct {
	items []*ast.SelectItem
	index map[string]int

	relaxedOnce sync.Once
	relaxed     map[string]int
}

// NewHeader builds a header over items. When two items share a key the
// first position wins.
func NewHeader(items ...*ast.SelectItem) *Header {
	h := &Header{
		items: items,
		index: make(map[string]int, len(items)),
	}
	for i, item := range items {
		if _, ok := h.index[item.Key()]; !ok {
			h.index[item.Key()] = i
		}
	}
	return h
}

// Items returns the header's select items in position order.
func (h *Header) Items() []*ast.SelectItem {
	return h.items
}

// Item returns the select item at position i.
func (h *Header) Item(i int) *ast.SelectItem {
	return h.items[i]
}

// Len returns the number of positions.
func (h *Header) Len() int {
	return len(h.items)
}

// IndexOf returns the position of item, or -1. An exact (column, function,
// alias) match is preferred; otherwise the alias is ignored on both sides.
func (h *Header) IndexOf(item *ast.SelectItem) int {
	if item == nil {
		return -1
	}
	if i, ok := h.index[item.Key()]; ok {
		return i
	}
	h.relaxedOnce.Do(func() {
		h.relaxed = make(map[string]int, len(h.items))
		for i, it := range h.items {
			if _, ok := h.relaxed[it.KeyIgnoringAlias()]; !ok {
				h.relaxed[it.KeyIgnoringAlias()] = i
			}
		}
	})
	if i, ok := h.relaxed[item.KeyIgnoringAlias()]; ok {
		return i
	}
	return -1
}

// Labels returns the display label of each position.
func (h *Header) Labels() []string {
	labels := make([]string, len(h.items))
	for i, item := range h.items {
		labels[i] = item.Label()
	}
	return labels
}

// Equal reports whether two headers have the same items in the same order.
func (h *Header) Equal(other *Header) bool {
	if h == other {
		return true
	}
	if h == nil || other == nil || len(h.items) != len(other.items) {
		return false
	}
	for i := range h.items {
		if h.items[i].Key() != other.items[i].Key() {
			return false
		}
	}
	return true
}

// Row is a fixed-length value slice aligned with a Header.
type Row struct {
	header *Header
	values []interface{}
}

// NewRow binds values to a header. The slice is retained, not copied.
func NewRow(header *Header, values []interface{}) Row {
	return Row{header: header, values: values}
}

// Header returns the row's header.
func (r Row) Header() *Header {
	return r.header
}

// Values returns the row's values. Callers must not modify the slice.
func (r Row) Values() []interface{} {
	return r.values
}

// Len returns the number of values.
func (r Row) Len() int {
	return len(r.values)
}

// Value returns the value at position i.
func (r Row) Value(i int) interface{} {
	return r.values[i]
}

// ValueOf resolves item against the row: a header position first, then a
// constant, then a scalar function over a column present in the row.
func (r Row) ValueOf(item *ast.SelectItem) (interface{}, error) {
	if item == nil {
		return nil, qerrors.NewQueryError(qerrors.CodeInvalidQuery, "nil select item")
	}
	if r.header != nil {
		if i := r.header.IndexOf(item); i >= 0 && i < len(r.values) {
			return r.values[i], nil
		}
	}
	if item.IsConstant && item.Function == ast.FuncNone {
		return item.Constant, nil
	}
	if item.IsScalarFunction() {
		var in interface{}
		if item.IsConstant {
			in = item.Constant
		} else {
			v, err := r.ValueOf(item.Underlying())
			if err != nil {
				return nil, err
			}
			in = v
		}
		return function.Apply(item.Function, in, item.Params)
	}
	return nil, qerrors.NewConfigurationError(qerrors.CodeUnresolvedColumn,
		fmt.Sprintf("%s is not part of the row", item.Label()))
}

// String renders the row as Row[values=[v1, v2, ...]], nil as null.
func (r Row) String() string {
	parts := make([]string, len(r.values))
	for i, v := range r.values {
		if v == nil {
			parts[i] = "null"
		} else {
			parts[i] = fmt.Sprintf("%v", v)
		}
	}
	return "Row[values=[" + strings.Join(parts, ", ") + "]]"
}
