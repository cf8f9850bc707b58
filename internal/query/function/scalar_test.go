package function

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkilian/metaquery/internal/query/ast"
)

func TestApply(t *testing.T) {
	tests := []struct {
		name   string
		fn     ast.FunctionType
		in     interface{}
		params []interface{}
		want   interface{}
	}{
		{"none passes through", ast.FuncNone, int64(3), nil, int64(3)},
		{"nil input", ast.FuncUpper, nil, nil, nil},
		{"to string", ast.FuncToString, int64(41), nil, "41"},
		{"to number", ast.FuncToNumber, "2.5", nil, 2.5},
		{"to number keeps ints", ast.FuncToNumber, int64(2), nil, int64(2)},
		{"to boolean", ast.FuncToBoolean, "t", nil, true},
		{"upper", ast.FuncUpper, "negative", nil, "NEGATIVE"},
		{"lower", ast.FuncLower, "MiXed", nil, "mixed"},
		{"substring", ast.FuncSubstring, "negative", []interface{}{int64(1), int64(3)}, "neg"},
		{"substring to end", ast.FuncSubstring, "negative", []interface{}{int64(4)}, "ative"},
		{"substring past end", ast.FuncSubstring, "abc", []interface{}{int64(10)}, ""},
		{"map value", ast.FuncMapValue, map[string]interface{}{"a": "b"}, []interface{}{"a"}, "b"},
		{"nested map value", ast.FuncMapValue,
			map[string]interface{}{"a": map[string]interface{}{"b": int64(1)}}, []interface{}{"a.b"}, int64(1)},
		{"missing map key", ast.FuncMapValue, map[string]string{"a": "b"}, []interface{}{"c"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Apply(tt.fn, tt.in, tt.params)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestApply_ToDate(t *testing.T) {
	got, err := Apply(ast.FuncToDate, "2024-03-01", nil)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), got)
}

func TestApply_Errors(t *testing.T) {
	_, err := Apply(ast.FuncToNumber, "abc", nil)
	assert.Error(t, err)

	_, err = Apply(ast.FuncSum, int64(1), nil)
	assert.Error(t, err)

	_, err = Apply(ast.FuncSubstring, "abc", nil)
	assert.Error(t, err)

	_, err = Apply(ast.FuncMapValue, "not a map", []interface{}{"k"})
	assert.Error(t, err)
}
