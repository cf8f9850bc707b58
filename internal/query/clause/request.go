package clause

import (
	"fmt"

	"github.com/arkilian/metaquery/internal/query/ast"
)

// Request is a query written as textual clauses.
type Request struct {
	From     string   `json:"from"`
	Alias    string   `json:"alias,omitempty"`
	Joins    []string `json:"joins,omitempty"`
	Select   []string `json:"select,omitempty"`
	Where    []string `json:"where,omitempty"`
	GroupBy  []string `json:"group_by,omitempty"`
	Having   []string `json:"having,omitempty"`
	OrderBy  []string `json:"order_by,omitempty"`
	Distinct bool     `json:"distinct,omitempty"`
	Offset   int      `json:"offset,omitempty"`

	// Limit caps the rows returned; ast.Unbounded for no cap.
	Limit int `json:"limit"`
}

// NewRequest returns an unlimited request over a table.
func NewRequest(from string) Request {
	return Request{From: from, Limit: ast.Unbounded}
}

// Apply adds the request to b. Name resolution errors are reported by
// b.Build; malformed clauses are returned directly.
func (r *Request) Apply(b *ast.Builder) error {
	if r.From == "" {
		return fmt.Errorf("from is required")
	}
	b.FromAs(r.From, r.Alias)

	for _, raw := range r.Joins {
		j, err := ParseJoin(raw)
		if err != nil {
			return err
		}
		b.Join(j.Type, j.Table, j.Alias, j.On...)
	}

	for _, raw := range r.Select {
		sel, err := ParseSelection(raw)
		if err != nil {
			return err
		}
		switch {
		case sel.Fn != ast.FuncNone:
			b.SelectFunction(sel.Fn, sel.Ref, sel.Alias)
		case sel.Alias != "":
			b.SelectAs(sel.Ref, sel.Alias)
		default:
			b.Select(sel.Ref)
		}
	}

	for _, raw := range r.Where {
		c, err := ParseCondition(raw)
		if err != nil {
			return err
		}
		if c.Fn == ast.FuncNone {
			b.Where(c.Ref, c.Op, c.Value)
			continue
		}
		if c.Fn.IsAggregate() {
			return fmt.Errorf("aggregate %s is not allowed in where, use having", c.Fn)
		}
		b.WhereFilter(ast.Compare(b.Col(c.Ref).WithFunction(c.Fn), c.Op, c.Value))
	}

	b.GroupBy(r.GroupBy...)

	for _, raw := range r.Having {
		c, err := ParseCondition(raw)
		if err != nil {
			return err
		}
		if !c.Fn.IsAggregate() {
			return fmt.Errorf("having %q needs an aggregate function", raw)
		}
		b.Having(c.Fn, c.Ref, c.Op, c.Value)
	}

	for _, raw := range r.OrderBy {
		ref, desc, err := ParseOrder(raw)
		if err != nil {
			return err
		}
		b.OrderBy(ref, desc)
	}

	if r.Distinct {
		b.Distinct()
	}
	b.Offset(r.Offset)
	b.Limit(r.Limit)
	return nil
}

// Build applies the request to b and builds the query.
func (r *Request) Build(b *ast.Builder) (*ast.Query, error) {
	if err := r.Apply(b); err != nil {
		return nil, err
	}
	return b.Build()
}
