// Package compare implements value comparison and coercion shared by the
// filter, aggregation, join and ordering stages.
package compare

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// IncomparableError reports two values that cannot be ordered against each
// other, e.g. a non-numeric string against a number.
type IncomparableError struct {
	A, B interface{}
}

func (e *IncomparableError) Error() string {
	return fmt.Sprintf("compare: cannot compare %T(%v) with %T(%v)", e.A, e.A, e.B, e.B)
}

// Compare orders two values. nil sorts before any non-nil value. Numeric
// coercion applies when either side is a number, so "41" compares as 41
// against an integer. Two strings that both parse as numbers compare
// numerically ("41" > "5", "41" == "41.0"); other strings compare
// lexicographically.
func Compare(a, b interface{}) (int, error) {
	if a == nil || b == nil {
		return compareNil(a, b), nil
	}

	if isTime(a) || isTime(b) {
		ta, okA := ToTime(a)
		tb, okB := ToTime(b)
		if !okA || !okB {
			return 0, &IncomparableError{A: a, B: b}
		}
		return ta.Compare(tb), nil
	}

	if isDecimal(a) || isDecimal(b) {
		da, okA := ToDecimal(a)
		db, okB := ToDecimal(b)
		if !okA || !okB {
			return 0, &IncomparableError{A: a, B: b}
		}
		return da.Cmp(db), nil
	}

	if isNumber(a) || isNumber(b) {
		return compareNumbers(a, b)
	}

	if isText(a) && isText(b) {
		if da, ok := ToDecimal(a); ok {
			if db, ok := ToDecimal(b); ok {
				return da.Cmp(db), nil
			}
		}
	}

	switch va := a.(type) {
	case string:
		switch vb := b.(type) {
		case string:
			return strings.Compare(va, vb), nil
		case []byte:
			return bytes.Compare([]byte(va), vb), nil
		case bool:
			return compareBools(a, b)
		}
	case []byte:
		switch vb := b.(type) {
		case []byte:
			return bytes.Compare(va, vb), nil
		case string:
			return bytes.Compare(va, []byte(vb)), nil
		}
	case bool:
		return compareBools(a, b)
	}

	// Fallback: compare string representations
	return strings.Compare(ToString(a), ToString(b)), nil
}

// Order is a total order over values for sorting and extremum tracking.
// Incomparable pairs fall back to comparing their string forms.
func Order(a, b interface{}) int {
	c, err := Compare(a, b)
	if err != nil {
		return strings.Compare(fmt.Sprintf("%v", a), fmt.Sprintf("%v", b))
	}
	return c
}

// Equal reports whether two non-nil values are equal under the same
// coercion rules as Compare. Incomparable values are not equal.
func Equal(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	c, err := Compare(a, b)
	return err == nil && c == 0
}

func isText(v interface{}) bool {
	switch v.(type) {
	case string, []byte:
		return true
	}
	return false
}

func compareNil(a, b interface{}) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1 // NULL sorts first
	}
	return 1
}

func compareNumbers(a, b interface{}) (int, error) {
	if ia, ok := ToInt64Exact(a); ok {
		if ib, ok := ToInt64Exact(b); ok {
			switch {
			case ia < ib:
				return -1, nil
			case ia > ib:
				return 1, nil
			}
			return 0, nil
		}
	}
	fa, okA := ToFloat64(a)
	fb, okB := ToFloat64(b)
	if !okA || !okB {
		return 0, &IncomparableError{A: a, B: b}
	}
	switch {
	case fa < fb:
		return -1, nil
	case fa > fb:
		return 1, nil
	}
	return 0, nil
}

func compareBools(a, b interface{}) (int, error) {
	ba, okA := ToBool(a)
	bb, okB := ToBool(b)
	if !okA || !okB {
		return 0, &IncomparableError{A: a, B: b}
	}
	switch {
	case ba == bb:
		return 0, nil
	case !ba:
		return -1, nil
	}
	return 1, nil
}

func isTime(v interface{}) bool {
	_, ok := v.(time.Time)
	return ok
}

func isDecimal(v interface{}) bool {
	_, ok := v.(decimal.Decimal)
	return ok
}

func isNumber(v interface{}) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	}
	return false
}

// IsNumber reports whether v is a Go numeric value or a decimal.
func IsNumber(v interface{}) bool {
	return isNumber(v) || isDecimal(v)
}

// ToInt64Exact converts integer kinds and integer-looking strings without loss.
func ToInt64Exact(v interface{}) (int64, bool) {
	switch val := v.(type) {
	case int64:
		return val, true
	case int:
		return int64(val), true
	case int32:
		return int64(val), true
	case int16:
		return int64(val), true
	case int8:
		return int64(val), true
	case uint32:
		return int64(val), true
	case uint16:
		return int64(val), true
	case uint8:
		return int64(val), true
	case uint:
		if uint64(val) <= math.MaxInt64 {
			return int64(val), true
		}
	case uint64:
		if val <= math.MaxInt64 {
			return int64(val), true
		}
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		return i, err == nil
	}
	return 0, false
}

// ToInt64 converts a value to int64, truncating floats.
func ToInt64(v interface{}) (int64, bool) {
	if i, ok := ToInt64Exact(v); ok {
		return i, true
	}
	switch val := v.(type) {
	case decimal.Decimal:
		return val.IntPart(), true
	case bool:
		if val {
			return 1, true
		}
		return 0, true
	}
	if f, ok := ToFloat64(v); ok && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return int64(f), true
	}
	return 0, false
}

// ToFloat64 converts a value to float64. Numeric strings are parsed.
func ToFloat64(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int64:
		return float64(val), true
	case int:
		return float64(val), true
	case int32:
		return float64(val), true
	case int16:
		return float64(val), true
	case int8:
		return float64(val), true
	case uint64:
		return float64(val), true
	case uint32:
		return float64(val), true
	case uint16:
		return float64(val), true
	case uint8:
		return float64(val), true
	case uint:
		return float64(val), true
	case decimal.Decimal:
		return val.InexactFloat64(), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f, err == nil
	case []byte:
		f, err := strconv.ParseFloat(strings.TrimSpace(string(val)), 64)
		return f, err == nil
	}
	return 0, false
}

// ToDecimal converts a value to an exact decimal.
func ToDecimal(v interface{}) (decimal.Decimal, bool) {
	switch val := v.(type) {
	case decimal.Decimal:
		return val, true
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat(val), true
	case float32:
		if math.IsNaN(float64(val)) || math.IsInf(float64(val), 0) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat32(val), true
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(val))
		return d, err == nil
	case []byte:
		d, err := decimal.NewFromString(strings.TrimSpace(string(val)))
		return d, err == nil
	}
	if i, ok := ToInt64Exact(v); ok {
		return decimal.NewFromInt(i), true
	}
	return decimal.Zero, false
}

// ToBool converts a value to a boolean. Strings accept true/false, t/f,
// yes/no, y/n and 1/0; numbers are true when non-zero.
func ToBool(v interface{}) (bool, bool) {
	switch val := v.(type) {
	case bool:
		return val, true
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true", "t", "yes", "y", "1":
			return true, true
		case "false", "f", "no", "n", "0":
			return false, true
		}
		return false, false
	case []byte:
		return ToBool(string(val))
	}
	if f, ok := ToFloat64(v); ok {
		return f != 0, true
	}
	return false, false
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"15:04:05",
}

// ToTime converts a value to time.Time. Integers are read as Unix seconds.
func ToTime(v interface{}) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		return val, true
	case string:
		s := strings.TrimSpace(val)
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
		return time.Time{}, false
	case []byte:
		return ToTime(string(val))
	}
	if i, ok := ToInt64Exact(v); ok {
		return time.Unix(i, 0).UTC(), true
	}
	return time.Time{}, false
}

// ToString renders a value as text. nil becomes the empty string.
func ToString(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case fmt.Stringer:
		return val.String()
	}
	return fmt.Sprintf("%v", v)
}
