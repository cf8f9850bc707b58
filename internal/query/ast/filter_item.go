package ast

import (
	"fmt"
	"strings"
)

// LogicalOperator combines the children of a composite FilterItem.
type LogicalOperator int

const (
	LogicalNone LogicalOperator = iota
	LogicalAnd
	LogicalOr
)

func (l LogicalOperator) String() string {
	switch l {
	case LogicalAnd:
		return "AND"
	case LogicalOr:
		return "OR"
	}
	return ""
}

// FilterItem is a node of a predicate tree. A leaf compares Item against
// Operand with Operator; a composite combines Children with Logic. Any node
// may be negated.
type FilterItem struct {
	Item     *SelectItem
	Operator OperatorType

	// Operand is a literal, a []interface{} for IN/NOT IN, or a *SelectItem
	// for column-to-column comparisons. Ignored by IS NULL/IS NOT NULL.
	Operand interface{}

	Logic    LogicalOperator
	Children []*FilterItem

	Negated bool
}

// Compare builds a leaf filter.
func Compare(item *SelectItem, op OperatorType, operand interface{}) *FilterItem {
	if op.IsSetOperator() {
		operand = toList(operand)
	}
	return &FilterItem{Item: item, Operator: op, Operand: operand}
}

// IsNull builds an IS NULL leaf.
func IsNull(item *SelectItem) *FilterItem {
	return &FilterItem{Item: item, Operator: OpIsNull}
}

// IsNotNull builds an IS NOT NULL leaf.
func IsNotNull(item *SelectItem) *FilterItem {
	return &FilterItem{Item: item, Operator: OpIsNotNull}
}

// And combines children with AND.
func And(children ...*FilterItem) *FilterItem {
	return &FilterItem{Logic: LogicalAnd, Children: children}
}

// Or combines children with OR.
func Or(children ...*FilterItem) *FilterItem {
	return &FilterItem{Logic: LogicalOr, Children: children}
}

// Not returns a negated copy of f.
func Not(f *FilterItem) *FilterItem {
	cp := *f
	cp.Negated = !f.Negated
	return &cp
}

// IsComposite reports whether the node combines children.
func (f *FilterItem) IsComposite() bool {
	return f.Logic != LogicalNone
}

// OperandItem returns the operand as a SelectItem when the leaf compares two
// columns.
func (f *FilterItem) OperandItem() (*SelectItem, bool) {
	item, ok := f.Operand.(*SelectItem)
	return item, ok
}

// SelectItems returns every SelectItem referenced by the tree, depth first.
func (f *FilterItem) SelectItems() []*SelectItem {
	var items []*SelectItem
	f.walk(func(leaf *FilterItem) {
		if leaf.Item != nil {
			items = append(items, leaf.Item)
		}
		if op, ok := leaf.OperandItem(); ok {
			items = append(items, op)
		}
	})
	return items
}

// Leaves returns the leaf nodes of the tree, depth first.
func (f *FilterItem) Leaves() []*FilterItem {
	var leaves []*FilterItem
	f.walk(func(leaf *FilterItem) {
		leaves = append(leaves, leaf)
	})
	return leaves
}

func (f *FilterItem) walk(visit func(leaf *FilterItem)) {
	if f == nil {
		return
	}
	if !f.IsComposite() {
		visit(f)
		return
	}
	for _, c := range f.Children {
		c.walk(visit)
	}
}

// String returns the SQL representation of the filter.
func (f *FilterItem) String() string {
	var s string
	if f.IsComposite() {
		parts := make([]string, len(f.Children))
		for i, c := range f.Children {
			parts[i] = c.String()
		}
		s = "(" + strings.Join(parts, " "+f.Logic.String()+" ") + ")"
	} else if f.Operator.IsUnary() {
		s = fmt.Sprintf("%s %s", f.Item.expression(), f.Operator)
	} else {
		s = fmt.Sprintf("%s %s %s", f.Item.expression(), f.Operator, FormatLiteral(f.Operand))
	}
	if f.Negated {
		return "NOT " + s
	}
	return s
}

func toList(operand interface{}) interface{} {
	switch v := operand.(type) {
	case []interface{}:
		return v
	case []string:
		out := make([]interface{}, len(v))
		for i, e := range v {
			out[i] = e
		}
		return out
	case []int:
		out := make([]interface{}, len(v))
		for i, e := range v {
			out[i] = int64(e)
		}
		return out
	case []int64:
		out := make([]interface{}, len(v))
		for i, e := range v {
			out[i] = e
		}
		return out
	case []float64:
		out := make([]interface{}, len(v))
		for i, e := range v {
			out[i] = e
		}
		return out
	case nil:
		return []interface{}{}
	}
	return []interface{}{operand}
}
