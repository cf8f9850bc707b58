package ast

import (
	"fmt"
	"strings"
	"time"

	"github.com/arkilian/metaquery/pkg/types"
)

// SelectItem is a column reference, a function applied to a column (or to
// all rows for COUNT(*)), or a constant, with an optional alias.
//
// Lookup identity is the (qualified column, function, alias) triple, so the
// same column selected twice under different functions or aliases stays
// distinguishable. SelectItems are treated as immutable once built.
type SelectItem struct {
	Column *types.Column

	// Qualifier is the FROM alias the column was resolved through. Empty
	// means the table's qualified name.
	Qualifier string

	Function FunctionType
	Params   []interface{}

	// All marks COUNT(*).
	All bool

	Constant   interface{}
	IsConstant bool

	Alias string
}

// ColumnItem selects a column as-is.
func ColumnItem(col *types.Column) *SelectItem {
	return &SelectItem{Column: col}
}

// QualifiedColumnItem selects a column resolved through a FROM alias.
func QualifiedColumnItem(col *types.Column, qualifier string) *SelectItem {
	return &SelectItem{Column: col, Qualifier: qualifier}
}

// FunctionItem applies fn to a column.
func FunctionItem(fn FunctionType, col *types.Column, params ...interface{}) *SelectItem {
	return &SelectItem{Column: col, Function: fn, Params: params}
}

// CountAll is COUNT(*).
func CountAll() *SelectItem {
	return &SelectItem{Function: FuncCount, All: true}
}

// ConstantItem selects a literal value.
func ConstantItem(v interface{}) *SelectItem {
	return &SelectItem{Constant: v, IsConstant: true}
}

// As returns a copy of the item with the given alias.
func (s *SelectItem) As(alias string) *SelectItem {
	cp := *s
	cp.Alias = alias
	return &cp
}

// WithFunction returns a copy of the item with fn applied.
func (s *SelectItem) WithFunction(fn FunctionType, params ...interface{}) *SelectItem {
	cp := *s
	cp.Function = fn
	cp.Params = params
	cp.Alias = ""
	return &cp
}

// Underlying returns the bare column reference behind a function item, or
// nil if the item has no column.
func (s *SelectItem) Underlying() *SelectItem {
	if s.Column == nil {
		return nil
	}
	return &SelectItem{Column: s.Column, Qualifier: s.Qualifier}
}

// IsAggregate reports whether the item applies an aggregate function.
func (s *SelectItem) IsAggregate() bool {
	return s.Function.IsAggregate()
}

// IsScalarFunction reports whether the item applies a scalar function.
func (s *SelectItem) IsScalarFunction() bool {
	return s.Function.IsScalar()
}

// EffectiveQualifier returns the qualifier used for identity.
func (s *SelectItem) EffectiveQualifier() string {
	if s.Qualifier != "" {
		return s.Qualifier
	}
	if s.Column != nil && s.Column.Table != nil {
		return s.Column.Table.QualifiedName()
	}
	return ""
}

// Type is the declared type of the item's values.
func (s *SelectItem) Type() types.ColumnType {
	var in types.ColumnType
	switch {
	case s.Column != nil:
		in = s.Column.Type
	case s.IsConstant:
		in = literalType(s.Constant)
	case s.All:
		in = types.ColumnTypeBigInt
	}
	return s.Function.OutputType(in)
}

// Key is the lookup identity of the item.
func (s *SelectItem) Key() string {
	return s.KeyIgnoringAlias() + "|" + s.Alias
}

// KeyIgnoringAlias is the identity without the alias component.
func (s *SelectItem) KeyIgnoringAlias() string {
	var sb strings.Builder
	if s.Function != FuncNone {
		sb.WriteString(s.Function.String())
		sb.WriteString("(")
	}
	switch {
	case s.All:
		sb.WriteString("*")
	case s.Column != nil:
		sb.WriteString(s.EffectiveQualifier())
		sb.WriteString(".")
		sb.WriteString(s.Column.Name)
	case s.IsConstant:
		fmt.Fprintf(&sb, "%T:%v", s.Constant, s.Constant)
	}
	for _, p := range s.Params {
		fmt.Fprintf(&sb, ",%v", p)
	}
	if s.Function != FuncNone {
		sb.WriteString(")")
	}
	return sb.String()
}

// Label is the column label of the item in a result: the alias if present,
// otherwise the expression text.
func (s *SelectItem) Label() string {
	if s.Alias != "" {
		return s.Alias
	}
	return s.expression()
}

// String returns the SQL representation of the select item.
func (s *SelectItem) String() string {
	if s.Alias != "" {
		return fmt.Sprintf("%s AS %s", s.expression(), s.Alias)
	}
	return s.expression()
}

func (s *SelectItem) expression() string {
	var target string
	switch {
	case s.All:
		target = "*"
	case s.Column != nil:
		if s.Qualifier != "" {
			target = s.Qualifier + "." + s.Column.Name
		} else {
			target = s.Column.QualifiedName()
		}
	case s.IsConstant:
		target = FormatLiteral(s.Constant)
	}
	if s.Function == FuncNone {
		return target
	}
	args := []string{target}
	for _, p := range s.Params {
		args = append(args, FormatLiteral(p))
	}
	return fmt.Sprintf("%s(%s)", s.Function, strings.Join(args, ", "))
}

// FormatLiteral renders a literal value as SQL text.
func FormatLiteral(v interface{}) string {
	switch val := v.(type) {
	case string:
		escaped := strings.ReplaceAll(val, "'", "''")
		return fmt.Sprintf("'%s'", escaped)
	case nil:
		return "NULL"
	case int64:
		return fmt.Sprintf("%d", val)
	case float64:
		return fmt.Sprintf("%g", val)
	case bool:
		if val {
			return "TRUE"
		}
		return "FALSE"
	case time.Time:
		return fmt.Sprintf("'%s'", val.Format(time.RFC3339))
	case []interface{}:
		parts := make([]string, len(val))
		for i, e := range val {
			parts[i] = FormatLiteral(e)
		}
		return "(" + strings.Join(parts, ", ") + ")"
	case *SelectItem:
		return val.expression()
	default:
		return fmt.Sprintf("%v", val)
	}
}

func literalType(v interface{}) types.ColumnType {
	switch v.(type) {
	case string:
		return types.ColumnTypeString
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return types.ColumnTypeBigInt
	case float32, float64:
		return types.ColumnTypeDouble
	case bool:
		return types.ColumnTypeBoolean
	case time.Time:
		return types.ColumnTypeTimestamp
	case []byte:
		return types.ColumnTypeBinary
	}
	return types.ColumnTypeOther
}
