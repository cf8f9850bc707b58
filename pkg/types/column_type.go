// Package types provides the schema model shared by metaquery and its source adapters.
package types

import "strings"

// ColumnType is the semantic type of a column. The set is closed.
type ColumnType int

const (
	ColumnTypeOther ColumnType = iota
	ColumnTypeChar
	ColumnTypeVarchar
	ColumnTypeString
	ColumnTypeTinyInt
	ColumnTypeSmallInt
	ColumnTypeInteger
	ColumnTypeBigInt
	ColumnTypeFloat
	ColumnTypeDouble
	ColumnTypeDecimal
	ColumnTypeNumeric
	ColumnTypeBoolean
	ColumnTypeDate
	ColumnTypeTime
	ColumnTypeTimestamp
	ColumnTypeBinary
	ColumnTypeList
	ColumnTypeMap
	ColumnTypeRowID
)

var columnTypeNames = map[ColumnType]string{
	ColumnTypeOther:     "OTHER",
	ColumnTypeChar:      "CHAR",
	ColumnTypeVarchar:   "VARCHAR",
	ColumnTypeString:    "STRING",
	ColumnTypeTinyInt:   "TINYINT",
	ColumnTypeSmallInt:  "SMALLINT",
	ColumnTypeInteger:   "INTEGER",
	ColumnTypeBigInt:    "BIGINT",
	ColumnTypeFloat:     "FLOAT",
	ColumnTypeDouble:    "DOUBLE",
	ColumnTypeDecimal:   "DECIMAL",
	ColumnTypeNumeric:   "NUMERIC",
	ColumnTypeBoolean:   "BOOLEAN",
	ColumnTypeDate:      "DATE",
	ColumnTypeTime:      "TIME",
	ColumnTypeTimestamp: "TIMESTAMP",
	ColumnTypeBinary:    "BINARY",
	ColumnTypeList:      "LIST",
	ColumnTypeMap:       "MAP",
	ColumnTypeRowID:     "ROWID",
}

// String returns the canonical upper-case name of the type.
func (t ColumnType) String() string {
	if name, ok := columnTypeNames[t]; ok {
		return name
	}
	return "OTHER"
}

// IsLiteral reports whether the type holds text.
func (t ColumnType) IsLiteral() bool {
	return t == ColumnTypeChar || t == ColumnTypeVarchar || t == ColumnTypeString
}

// IsInteger reports whether the type is one of the integer widths.
func (t ColumnType) IsInteger() bool {
	switch t {
	case ColumnTypeTinyInt, ColumnTypeSmallInt, ColumnTypeInteger, ColumnTypeBigInt:
		return true
	}
	return false
}

// IsFloatingPoint reports whether the type is FLOAT or DOUBLE.
func (t ColumnType) IsFloatingPoint() bool {
	return t == ColumnTypeFloat || t == ColumnTypeDouble
}

// IsDecimal reports whether the type is an exact decimal.
func (t ColumnType) IsDecimal() bool {
	return t == ColumnTypeDecimal || t == ColumnTypeNumeric
}

// IsNumber reports whether the type is numeric of any kind.
func (t ColumnType) IsNumber() bool {
	return t.IsInteger() || t.IsFloatingPoint() || t.IsDecimal()
}

// IsTimeBased reports whether the type is DATE, TIME or TIMESTAMP.
func (t ColumnType) IsTimeBased() bool {
	return t == ColumnTypeDate || t == ColumnTypeTime || t == ColumnTypeTimestamp
}

// ParseColumnType maps a native type label onto the closed set. Unknown
// labels map to ColumnTypeOther.
func ParseColumnType(native string) ColumnType {
	n := strings.ToUpper(strings.TrimSpace(native))
	if i := strings.IndexByte(n, '('); i >= 0 {
		n = strings.TrimSpace(n[:i])
	}
	switch n {
	case "CHAR", "CHARACTER", "NCHAR":
		return ColumnTypeChar
	case "VARCHAR", "CHARACTER VARYING", "NVARCHAR", "VARCHAR2":
		return ColumnTypeVarchar
	case "TEXT", "STRING", "CLOB", "LONGTEXT", "MEDIUMTEXT":
		return ColumnTypeString
	case "TINYINT":
		return ColumnTypeTinyInt
	case "SMALLINT", "INT2":
		return ColumnTypeSmallInt
	case "INT", "INTEGER", "INT4", "MEDIUMINT":
		return ColumnTypeInteger
	case "BIGINT", "INT8":
		return ColumnTypeBigInt
	case "FLOAT", "FLOAT4":
		return ColumnTypeFloat
	case "DOUBLE", "DOUBLE PRECISION", "REAL", "FLOAT8":
		return ColumnTypeDouble
	case "DECIMAL":
		return ColumnTypeDecimal
	case "NUMERIC", "NUMBER":
		return ColumnTypeNumeric
	case "BOOL", "BOOLEAN", "BIT":
		return ColumnTypeBoolean
	case "DATE":
		return ColumnTypeDate
	case "TIME":
		return ColumnTypeTime
	case "TIMESTAMP", "DATETIME", "TIMESTAMPTZ", "TIMESTAMP WITH TIME ZONE":
		return ColumnTypeTimestamp
	case "BLOB", "BINARY", "VARBINARY", "BYTEA":
		return ColumnTypeBinary
	case "LIST", "ARRAY":
		return ColumnTypeList
	case "MAP", "JSON", "JSONB":
		return ColumnTypeMap
	case "ROWID":
		return ColumnTypeRowID
	}
	return ColumnTypeOther
}
