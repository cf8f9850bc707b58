package sqldb

import (
	"fmt"
	"strings"

	qerrors "github.com/arkilian/metaquery/internal/errors"
	"github.com/arkilian/metaquery/internal/query/ast"
)

// statement accumulates SQL text and its bind arguments.
type statement struct {
	d    *Dialect
	sql  strings.Builder
	args []interface{}
}

func newStatement(d *Dialect) *statement {
	return &statement{d: d}
}

func (s *statement) write(parts ...string) {
	for _, p := range parts {
		s.sql.WriteString(p)
	}
}

// bind adds an argument and returns its placeholder.
func (s *statement) bind(v interface{}) string {
	s.args = append(s.args, v)
	return s.d.Placeholder(len(s.args))
}

func (s *statement) String() string {
	return s.sql.String()
}

// where renders filters as a conjunction. No filters renders nothing.
func (s *statement) where(filters []*ast.FilterItem) error {
	if len(filters) == 0 {
		return nil
	}
	s.write(" WHERE ")
	for i, f := range filters {
		if i > 0 {
			s.write(" AND ")
		}
		if err := s.filter(f); err != nil {
			return err
		}
	}
	return nil
}

func (s *statement) filter(f *ast.FilterItem) error {
	if f.Negated {
		s.write("NOT (")
		defer s.write(")")
	}
	if f.IsComposite() {
		return s.composite(f)
	}

	col, err := s.column(f.Item)
	if err != nil {
		return err
	}

	switch {
	case f.Operator.IsUnary():
		s.write(col, " ", f.Operator.String())
	case f.Operator.IsSetOperator():
		values, _ := f.Operand.([]interface{})
		if len(values) == 0 {
			if f.Operator == ast.OpIn {
				s.write("1 = 0")
			} else {
				s.write("1 = 1")
			}
			return nil
		}
		marks := make([]string, len(values))
		for i, v := range values {
			marks[i] = s.bind(v)
		}
		s.write(col, " ", f.Operator.String(), " (", strings.Join(marks, ", "), ")")
	default:
		if other, ok := f.OperandItem(); ok {
			right, err := s.column(other)
			if err != nil {
				return err
			}
			s.write(col, " ", f.Operator.String(), " ", right)
			return nil
		}
		s.write(col, " ", f.Operator.String(), " ", s.bind(f.Operand))
	}
	return nil
}

func (s *statement) composite(f *ast.FilterItem) error {
	if len(f.Children) == 0 {
		if f.Logic == ast.LogicalOr {
			s.write("1 = 0")
		} else {
			s.write("1 = 1")
		}
		return nil
	}
	s.write("(")
	for i, c := range f.Children {
		if i > 0 {
			s.write(" ", f.Logic.String(), " ")
		}
		if err := s.filter(c); err != nil {
			return err
		}
	}
	s.write(")")
	return nil
}

// column renders a plain column reference. Functions and constants are not
// pushed down.
func (s *statement) column(item *ast.SelectItem) (string, error) {
	if item == nil || item.Column == nil || item.Function != ast.FuncNone || item.IsConstant {
		return "", qerrors.NewUnsupportedError(fmt.Sprintf("cannot render %v as a column condition", item))
	}
	return s.d.Quote(item.Column.Name), nil
}
