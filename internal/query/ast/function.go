package ast

import (
	"fmt"
	"strings"

	"github.com/arkilian/metaquery/pkg/types"
)

// FunctionType identifies an aggregate or scalar function applied by a SelectItem.
type FunctionType int

const (
	FuncNone FunctionType = iota

	// Aggregates
	FuncCount
	FuncSum
	FuncAvg
	FuncMin
	FuncMax
	FuncFirst
	FuncLast
	FuncRandom
	FuncMedian

	// Scalars
	FuncToString
	FuncToNumber
	FuncToBoolean
	FuncToDate
	FuncUpper
	FuncLower
	FuncSubstring
	FuncMapValue
)

var functionNames = map[FunctionType]string{
	FuncCount:     "COUNT",
	FuncSum:       "SUM",
	FuncAvg:       "AVG",
	FuncMin:       "MIN",
	FuncMax:       "MAX",
	FuncFirst:     "FIRST",
	FuncLast:      "LAST",
	FuncRandom:    "RANDOM",
	FuncMedian:    "MEDIAN",
	FuncToString:  "TO_STRING",
	FuncToNumber:  "TO_NUMBER",
	FuncToBoolean: "TO_BOOLEAN",
	FuncToDate:    "TO_DATE",
	FuncUpper:     "UPPER",
	FuncLower:     "LOWER",
	FuncSubstring: "SUBSTRING",
	FuncMapValue:  "MAP_VALUE",
}

// String returns the function name as written in a query.
func (f FunctionType) String() string {
	return functionNames[f]
}

// ParseFunctionType converts a function name string to FunctionType.
func ParseFunctionType(name string) (FunctionType, error) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	for fn, n := range functionNames {
		if n == upper {
			return fn, nil
		}
	}
	return FuncNone, fmt.Errorf("unknown function: %s", name)
}

// IsAggregate reports whether the function reduces a group to one value.
func (f FunctionType) IsAggregate() bool {
	return f >= FuncCount && f <= FuncMedian
}

// IsScalar reports whether the function maps one value to one value.
func (f FunctionType) IsScalar() bool {
	return f >= FuncToString && f <= FuncMapValue
}

// OutputType declares the type of the function's result given its input type.
// It determines the declared schema of result rows, not only runtime values.
func (f FunctionType) OutputType(input types.ColumnType) types.ColumnType {
	switch f {
	case FuncNone:
		return input
	case FuncCount:
		return types.ColumnTypeBigInt
	case FuncSum:
		switch {
		case input.IsInteger():
			return types.ColumnTypeBigInt
		case input.IsDecimal():
			return input
		}
		return types.ColumnTypeDouble
	case FuncAvg:
		if input.IsDecimal() {
			return input
		}
		return types.ColumnTypeDouble
	case FuncMedian:
		if input.IsInteger() {
			return types.ColumnTypeDouble
		}
		return input
	case FuncMin, FuncMax, FuncFirst, FuncLast, FuncRandom:
		return input
	case FuncToString, FuncUpper, FuncLower, FuncSubstring:
		return types.ColumnTypeString
	case FuncToNumber:
		return types.ColumnTypeDouble
	case FuncToBoolean:
		return types.ColumnTypeBoolean
	case FuncToDate:
		return types.ColumnTypeTimestamp
	case FuncMapValue:
		return types.ColumnTypeOther
	}
	return types.ColumnTypeOther
}
