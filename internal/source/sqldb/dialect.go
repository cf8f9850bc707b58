package sqldb

import (
	"fmt"
	"strconv"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"github.com/arkilian/metaquery/pkg/types"
)

// Dialect captures the SQL differences between supported databases.
type Dialect struct {
	// Name is the configuration name of the dialect.
	Name string
	// Driver is the database/sql driver name.
	Driver string

	quoteOpen, quoteClose string
	numbered              bool // $1, $2 placeholders instead of ?

	// defaultSchema names the single schema of databases without schemas.
	defaultSchema string
	// systemSchemas are excluded from catalog discovery.
	systemSchemas []string

	typeNames map[types.ColumnType]string
}

var (
	// SQLite is the mattn/go-sqlite3 dialect.
	SQLite = &Dialect{
		Name:          "sqlite",
		Driver:        "sqlite3",
		quoteOpen:     `"`,
		quoteClose:    `"`,
		defaultSchema: "main",
		typeNames: map[types.ColumnType]string{
			types.ColumnTypeChar:      "TEXT",
			types.ColumnTypeVarchar:   "VARCHAR",
			types.ColumnTypeString:    "TEXT",
			types.ColumnTypeTinyInt:   "INTEGER",
			types.ColumnTypeSmallInt:  "INTEGER",
			types.ColumnTypeInteger:   "INTEGER",
			types.ColumnTypeBigInt:    "BIGINT",
			types.ColumnTypeFloat:     "REAL",
			types.ColumnTypeDouble:    "REAL",
			types.ColumnTypeDecimal:   "NUMERIC",
			types.ColumnTypeNumeric:   "NUMERIC",
			types.ColumnTypeBoolean:   "BOOLEAN",
			types.ColumnTypeDate:      "DATE",
			types.ColumnTypeTime:      "TIME",
			types.ColumnTypeTimestamp: "TIMESTAMP",
			types.ColumnTypeBinary:    "BLOB",
		},
	}

	// Postgres is the pgx stdlib dialect.
	Postgres = &Dialect{
		Name:          "postgres",
		Driver:        "pgx",
		quoteOpen:     `"`,
		quoteClose:    `"`,
		numbered:      true,
		systemSchemas: []string{"pg_catalog", "information_schema", "pg_toast"},
		typeNames: map[types.ColumnType]string{
			types.ColumnTypeChar:      "CHAR(1)",
			types.ColumnTypeVarchar:   "VARCHAR(255)",
			types.ColumnTypeString:    "TEXT",
			types.ColumnTypeTinyInt:   "SMALLINT",
			types.ColumnTypeSmallInt:  "SMALLINT",
			types.ColumnTypeInteger:   "INTEGER",
			types.ColumnTypeBigInt:    "BIGINT",
			types.ColumnTypeFloat:     "REAL",
			types.ColumnTypeDouble:    "DOUBLE PRECISION",
			types.ColumnTypeDecimal:   "DECIMAL",
			types.ColumnTypeNumeric:   "NUMERIC",
			types.ColumnTypeBoolean:   "BOOLEAN",
			types.ColumnTypeDate:      "DATE",
			types.ColumnTypeTime:      "TIME",
			types.ColumnTypeTimestamp: "TIMESTAMP",
			types.ColumnTypeBinary:    "BYTEA",
			types.ColumnTypeMap:       "JSONB",
		},
	}

	// MySQL is the go-sql-driver/mysql dialect.
	MySQL = &Dialect{
		Name:          "mysql",
		Driver:        "mysql",
		quoteOpen:     "`",
		quoteClose:    "`",
		systemSchemas: []string{"information_schema", "mysql", "performance_schema", "sys"},
		typeNames: map[types.ColumnType]string{
			types.ColumnTypeChar:      "CHAR(1)",
			types.ColumnTypeVarchar:   "VARCHAR(255)",
			types.ColumnTypeString:    "TEXT",
			types.ColumnTypeTinyInt:   "TINYINT",
			types.ColumnTypeSmallInt:  "SMALLINT",
			types.ColumnTypeInteger:   "INT",
			types.ColumnTypeBigInt:    "BIGINT",
			types.ColumnTypeFloat:     "FLOAT",
			types.ColumnTypeDouble:    "DOUBLE",
			types.ColumnTypeDecimal:   "DECIMAL(38,10)",
			types.ColumnTypeNumeric:   "DECIMAL(38,10)",
			types.ColumnTypeBoolean:   "BOOLEAN",
			types.ColumnTypeDate:      "DATE",
			types.ColumnTypeTime:      "TIME",
			types.ColumnTypeTimestamp: "DATETIME",
			types.ColumnTypeBinary:    "BLOB",
			types.ColumnTypeMap:       "JSON",
		},
	}
)

// LookupDialect returns the dialect registered under name.
func LookupDialect(name string) (*Dialect, error) {
	switch strings.ToLower(name) {
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	case "mysql", "mariadb":
		return MySQL, nil
	}
	return nil, fmt.Errorf("sqldb: unknown dialect %q", name)
}

// Quote quotes an identifier, doubling embedded quote characters.
func (d *Dialect) Quote(ident string) string {
	return d.quoteOpen + strings.ReplaceAll(ident, d.quoteClose, d.quoteClose+d.quoteClose) + d.quoteClose
}

// Placeholder returns the bind marker of the n-th (1-based) argument.
func (d *Dialect) Placeholder(n int) string {
	if d.numbered {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// TypeName returns the DDL type used for t, preferring the column's native
// type when it was declared.
func (d *Dialect) TypeName(c types.Column) string {
	if c.NativeType != "" {
		return c.NativeType
	}
	if name, ok := d.typeNames[c.Type]; ok {
		return name
	}
	return d.typeNames[types.ColumnTypeString]
}

// TableName renders the qualified name of a table.
func (d *Dialect) TableName(t *types.Table) string {
	if t.Schema == nil || t.Schema.Name == "" {
		return d.Quote(t.Name)
	}
	return d.Quote(t.Schema.Name) + "." + d.Quote(t.Name)
}
