// Package clause parses the short textual clauses accepted by the command
// line and the HTTP API ("age >= 18", "sum(qty) as total", "left orders o on
// p.id = o.person_id") and applies them to an ast.Builder.
package clause

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/arkilian/metaquery/internal/query/ast"
	"github.com/arkilian/metaquery/pkg/types"
)

// ParseLiteral converts a textual value. Quoted text stays text, null is
// nil, and bare numbers and booleans are typed.
func ParseLiteral(s string) interface{} {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	switch strings.ToLower(s) {
	case "null":
		return nil
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

// Operand is a column reference, optionally wrapped in a function call.
type Operand struct {
	Fn  ast.FunctionType
	Ref string
}

var operandPattern = regexp.MustCompile(`^(?:(\w+)\(\s*([\w.*]*)\s*\)|([\w.*]+))$`)

// ParseOperand parses "col", "t.col" or "fn(col)". An empty argument list
// means "*".
func ParseOperand(s string) (Operand, error) {
	m := operandPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return Operand{}, fmt.Errorf("invalid column reference %q", s)
	}
	if m[1] == "" {
		return Operand{Ref: m[3]}, nil
	}
	fn, err := ast.ParseFunctionType(m[1])
	if err != nil {
		return Operand{}, err
	}
	ref := m[2]
	if ref == "" {
		ref = "*"
	}
	return Operand{Fn: fn, Ref: ref}, nil
}

// Selection is one select entry: "col" or "fn(col)", either with "as alias".
type Selection struct {
	Operand
	Alias string
}

var aliasPattern = regexp.MustCompile(`(?i)^(.*?)\s+as\s+(\w+)$`)

// ParseSelection parses a select entry.
func ParseSelection(s string) (Selection, error) {
	s = strings.TrimSpace(s)
	var alias string
	if m := aliasPattern.FindStringSubmatch(s); m != nil {
		s, alias = m[1], m[2]
	}
	op, err := ParseOperand(s)
	if err != nil {
		return Selection{}, err
	}
	return Selection{Operand: op, Alias: alias}, nil
}

// Condition is one where or having entry.
type Condition struct {
	Operand
	Op    ast.OperatorType
	Value interface{}
}

var conditionPattern = regexp.MustCompile(
	`^\s*(\w+\(\s*[\w.*]*\s*\)|[\w.]+)\s*` +
		`(>=|<=|<>|!=|==|=|>|<|(?i:(?:not\s+like|like|not\s+in|in|is\s+not\s+null|is\s+null)\b))` +
		`\s*(.*?)\s*$`)

// ParseCondition parses "<operand> <operator> [value]". IN and NOT IN take
// a parenthesized list; IS NULL and IS NOT NULL take no value.
func ParseCondition(s string) (Condition, error) {
	m := conditionPattern.FindStringSubmatch(s)
	if m == nil {
		return Condition{}, fmt.Errorf("invalid condition %q: want <column> <operator> <value>", s)
	}
	left, err := ParseOperand(m[1])
	if err != nil {
		return Condition{}, err
	}
	op, err := ast.ParseOperator(m[2])
	if err != nil {
		return Condition{}, err
	}
	c := Condition{Operand: left, Op: op}

	switch {
	case op.IsUnary():
		if m[3] != "" {
			return Condition{}, fmt.Errorf("invalid condition %q: %s takes no value", s, op)
		}
	case op.IsSetOperator():
		list := strings.TrimSuffix(strings.TrimPrefix(m[3], "("), ")")
		var values []interface{}
		for _, v := range strings.Split(list, ",") {
			if strings.TrimSpace(v) != "" {
				values = append(values, ParseLiteral(v))
			}
		}
		c.Value = values
	default:
		if m[3] == "" {
			return Condition{}, fmt.Errorf("invalid condition %q: missing value", s)
		}
		c.Value = ParseLiteral(m[3])
	}
	return c, nil
}

// ParseOrder parses "col", "col asc" or "col desc".
func ParseOrder(s string) (string, bool, error) {
	fields := strings.Fields(s)
	switch {
	case len(fields) == 1:
		return fields[0], false, nil
	case len(fields) == 2 && strings.EqualFold(fields[1], "asc"):
		return fields[0], false, nil
	case len(fields) == 2 && strings.EqualFold(fields[1], "desc"):
		return fields[0], true, nil
	}
	return "", false, fmt.Errorf("invalid order %q: want <column> [asc|desc]", s)
}

// Join is one join entry: "[inner|left|right] table [alias] on a = b [and c = d]".
type Join struct {
	Type  ast.JoinType
	Table string
	Alias string
	On    []string
}

var andPattern = regexp.MustCompile(`(?i)\s+and\s+`)

// ParseJoin parses a join entry. On lists the column pairs in the order
// ast.Builder.Join expects.
func ParseJoin(s string) (Join, error) {
	fields := strings.Fields(s)
	j := Join{Type: ast.JoinInner}
	if len(fields) > 0 {
		switch strings.ToLower(fields[0]) {
		case "inner":
			fields = fields[1:]
		case "left":
			j.Type, fields = ast.JoinLeft, fields[1:]
		case "right":
			j.Type, fields = ast.JoinRight, fields[1:]
		}
	}
	on := -1
	for i, f := range fields {
		if strings.EqualFold(f, "on") {
			on = i
			break
		}
	}
	if on < 1 || on > 2 {
		return Join{}, fmt.Errorf("invalid join %q: want [inner|left|right] <table> [alias] on <a> = <b>", s)
	}
	j.Table = fields[0]
	if on == 2 {
		j.Alias = fields[1]
	}

	predicates := strings.Join(fields[on+1:], " ")
	for _, p := range andPattern.Split(predicates, -1) {
		left, right, ok := strings.Cut(p, "=")
		left, right = strings.TrimSpace(left), strings.TrimSpace(right)
		if !ok || left == "" || right == "" {
			return Join{}, fmt.Errorf("invalid join condition %q in %q", p, s)
		}
		j.On = append(j.On, left, right)
	}
	return j, nil
}

// ParseAssignment parses "col=value".
func ParseAssignment(s string) (string, interface{}, error) {
	col, value, ok := strings.Cut(s, "=")
	col = strings.TrimSpace(col)
	if !ok || col == "" {
		return "", nil, fmt.Errorf("invalid assignment %q: want <column>=<value>", s)
	}
	return col, ParseLiteral(value), nil
}

// ParseAssignments parses a list of assignments into a column-value map.
func ParseAssignments(raw []string) (map[string]interface{}, error) {
	values := make(map[string]interface{}, len(raw))
	for _, s := range raw {
		col, v, err := ParseAssignment(s)
		if err != nil {
			return nil, err
		}
		values[col] = v
	}
	return values, nil
}

// ParseColumnDef parses "name TYPE [not null] [primary key]". The type is
// kept as the native label and mapped to a column type.
func ParseColumnDef(s string) (types.Column, error) {
	fields := strings.Fields(s)
	if len(fields) < 2 {
		return types.Column{}, fmt.Errorf("invalid column %q: want <name> <type> [not null] [primary key]", s)
	}
	c := types.Column{
		Name:       fields[0],
		NativeType: fields[1],
		Type:       types.ParseColumnType(fields[1]),
		Nullable:   true,
	}
	rest := strings.ToLower(strings.Join(fields[2:], " "))
	if strings.Contains(rest, "not null") {
		c.Nullable = false
		rest = strings.Replace(rest, "not null", "", 1)
	}
	if strings.Contains(rest, "primary key") {
		c.PrimaryKey = true
		c.Nullable = false
		rest = strings.Replace(rest, "primary key", "", 1)
	}
	if strings.TrimSpace(rest) != "" {
		return types.Column{}, fmt.Errorf("invalid column %q: unexpected %q", s, strings.TrimSpace(rest))
	}
	return c, nil
}
