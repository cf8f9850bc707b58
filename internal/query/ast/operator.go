package ast

import (
	"fmt"
	"strings"
)

// OperatorType is the comparison operator of a leaf FilterItem.
type OperatorType int

const (
	OpEquals OperatorType = iota
	OpDifferentFrom
	OpGreaterThan
	OpGreaterThanOrEqual
	OpLessThan
	OpLessThanOrEqual
	OpIn
	OpNotIn
	OpLike
	OpNotLike
	OpIsNull
	OpIsNotNull
)

var operatorSymbols = map[OperatorType]string{
	OpEquals:             "=",
	OpDifferentFrom:      "<>",
	OpGreaterThan:        ">",
	OpGreaterThanOrEqual: ">=",
	OpLessThan:           "<",
	OpLessThanOrEqual:    "<=",
	OpIn:                 "IN",
	OpNotIn:              "NOT IN",
	OpLike:               "LIKE",
	OpNotLike:            "NOT LIKE",
	OpIsNull:             "IS NULL",
	OpIsNotNull:          "IS NOT NULL",
}

// String returns the SQL symbol of the operator.
func (o OperatorType) String() string {
	return operatorSymbols[o]
}

// ParseOperator converts an operator symbol to OperatorType. "==" and "!="
// are accepted as aliases.
func ParseOperator(symbol string) (OperatorType, error) {
	s := strings.ToUpper(strings.Join(strings.Fields(symbol), " "))
	switch s {
	case "==":
		return OpEquals, nil
	case "!=":
		return OpDifferentFrom, nil
	}
	for op, sym := range operatorSymbols {
		if sym == s {
			return op, nil
		}
	}
	return OpEquals, fmt.Errorf("unknown operator: %s", symbol)
}

// IsOrdering reports whether the operator compares by order.
func (o OperatorType) IsOrdering() bool {
	switch o {
	case OpGreaterThan, OpGreaterThanOrEqual, OpLessThan, OpLessThanOrEqual:
		return true
	}
	return false
}

// IsUnary reports whether the operator takes no operand.
func (o OperatorType) IsUnary() bool {
	return o == OpIsNull || o == OpIsNotNull
}

// IsSetOperator reports whether the operand is a literal list.
func (o OperatorType) IsSetOperator() bool {
	return o == OpIn || o == OpNotIn
}
