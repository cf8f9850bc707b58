// Package function evaluates scalar functions applied to single values.
package function

import (
	"fmt"
	"strings"

	"github.com/arkilian/metaquery/internal/query/ast"
	"github.com/arkilian/metaquery/internal/query/compare"
)

// Apply evaluates the scalar function fn over v. A nil input yields nil for
// every function. Conversion failures are returned as errors so callers can
// treat the row as a non-match.
func Apply(fn ast.FunctionType, v interface{}, params []interface{}) (interface{}, error) {
	if fn == ast.FuncNone {
		return v, nil
	}
	if !fn.IsScalar() {
		return nil, fmt.Errorf("function: %s is not a scalar function", fn)
	}
	if v == nil {
		return nil, nil
	}

	switch fn {
	case ast.FuncToString:
		return compare.ToString(v), nil

	case ast.FuncToNumber:
		if compare.IsNumber(v) {
			return v, nil
		}
		f, ok := compare.ToFloat64(v)
		if !ok {
			return nil, fmt.Errorf("function: TO_NUMBER cannot convert %q", compare.ToString(v))
		}
		return f, nil

	case ast.FuncToBoolean:
		b, ok := compare.ToBool(v)
		if !ok {
			return nil, fmt.Errorf("function: TO_BOOLEAN cannot convert %q", compare.ToString(v))
		}
		return b, nil

	case ast.FuncToDate:
		t, ok := compare.ToTime(v)
		if !ok {
			return nil, fmt.Errorf("function: TO_DATE cannot convert %q", compare.ToString(v))
		}
		return t, nil

	case ast.FuncUpper:
		return strings.ToUpper(compare.ToString(v)), nil

	case ast.FuncLower:
		return strings.ToLower(compare.ToString(v)), nil

	case ast.FuncSubstring:
		return substring(compare.ToString(v), params)

	case ast.FuncMapValue:
		return mapValue(v, params)
	}
	return nil, fmt.Errorf("function: unsupported scalar function %s", fn)
}

// substring takes a 1-based start and an optional length, like SQL SUBSTRING.
func substring(s string, params []interface{}) (interface{}, error) {
	if len(params) == 0 {
		return nil, fmt.Errorf("function: SUBSTRING requires a start position")
	}
	start, ok := compare.ToInt64(params[0])
	if !ok {
		return nil, fmt.Errorf("function: SUBSTRING start %v is not a number", params[0])
	}
	runes := []rune(s)
	from := int(start) - 1
	if from < 0 {
		from = 0
	}
	if from >= len(runes) {
		return "", nil
	}
	to := len(runes)
	if len(params) > 1 {
		n, ok := compare.ToInt64(params[1])
		if !ok || n < 0 {
			return nil, fmt.Errorf("function: SUBSTRING length %v is invalid", params[1])
		}
		if from+int(n) < to {
			to = from + int(n)
		}
	}
	return string(runes[from:to]), nil
}

// mapValue looks up a key in a map value. Dotted keys descend into nested maps.
func mapValue(v interface{}, params []interface{}) (interface{}, error) {
	if len(params) == 0 {
		return nil, fmt.Errorf("function: MAP_VALUE requires a key")
	}
	path := strings.Split(compare.ToString(params[0]), ".")
	current := v
	for _, key := range path {
		switch m := current.(type) {
		case map[string]interface{}:
			current = m[key]
		case map[string]string:
			val, ok := m[key]
			if !ok {
				return nil, nil
			}
			current = val
		case nil:
			return nil, nil
		default:
			return nil, fmt.Errorf("function: MAP_VALUE on non-map value %T", v)
		}
	}
	return current, nil
}
