package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	qerrors "github.com/arkilian/metaquery/internal/errors"
	"github.com/arkilian/metaquery/pkg/types"
)

const sqliteTablesQuery = `SELECT name, type FROM sqlite_master WHERE type IN ('table', 'view') AND name NOT LIKE 'sqlite_%' ORDER BY name`

func (d *DataContext) discover(ctx context.Context) ([]*types.Schema, error) {
	var (
		schemas []*types.Schema
		err     error
	)
	if d.dialect.defaultSchema != "" {
		schemas, err = d.discoverSQLite(ctx)
	} else {
		schemas, err = d.discoverCatalog(ctx)
	}
	if err != nil {
		return nil, qerrors.NewIOError(qerrors.CodeReadFailed, "discover "+d.dialect.Name+" schemas", err)
	}
	return schemas, nil
}

func (d *DataContext) discoverSQLite(ctx context.Context) ([]*types.Schema, error) {
	rows, err := d.db.QueryContext(ctx, sqliteTablesQuery)
	if err != nil {
		return nil, err
	}
	schema := types.NewSchema(d.dialect.defaultSchema)
	for rows.Next() {
		var name, kind string
		if err := rows.Scan(&name, &kind); err != nil {
			rows.Close()
			return nil, err
		}
		typ := types.TableTypeTable
		if kind == "view" {
			typ = types.TableTypeView
		}
		schema.AddTable(name, typ)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for _, t := range schema.Tables {
		if err := d.sqliteColumns(ctx, t); err != nil {
			return nil, fmt.Errorf("columns of %s: %w", t.Name, err)
		}
	}
	for _, t := range schema.Tables {
		if err := d.sqliteForeignKeys(ctx, schema, t); err != nil {
			return nil, fmt.Errorf("foreign keys of %s: %w", t.Name, err)
		}
	}
	return []*types.Schema{schema}, nil
}

func (d *DataContext) sqliteColumns(ctx context.Context, t *types.Table) error {
	rows, err := d.db.QueryContext(ctx, "PRAGMA table_info("+d.dialect.Quote(t.Name)+")")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid, notNull, pk int
			name, native     string
			defaultValue     sql.NullString
		)
		if err := rows.Scan(&cid, &name, &native, &notNull, &defaultValue, &pk); err != nil {
			return err
		}
		t.AddColumn(types.Column{
			Name:       name,
			Type:       types.ParseColumnType(native),
			NativeType: native,
			Nullable:   notNull == 0 && pk == 0,
			PrimaryKey: pk > 0,
		})
	}
	return rows.Err()
}

// sqliteForeignKeys registers the relationships t references.
func (d *DataContext) sqliteForeignKeys(ctx context.Context, schema *types.Schema, t *types.Table) error {
	rows, err := d.db.QueryContext(ctx, "PRAGMA foreign_key_list("+d.dialect.Quote(t.Name)+")")
	if err != nil {
		return err
	}
	defer rows.Close()

	type fk struct {
		primary          *types.Table
		primaryCols, own []*types.Column
	}
	byID := make(map[int]*fk)
	var order []int
	for rows.Next() {
		var (
			id, seq                     int
			parent, from                string
			to                          sql.NullString
			onUpdate, onDelete, matchBy string
		)
		if err := rows.Scan(&id, &seq, &parent, &from, &to, &onUpdate, &onDelete, &matchBy); err != nil {
			return err
		}
		primary, ok := schema.Table(parent)
		if !ok {
			continue
		}
		entry, ok := byID[id]
		if !ok {
			entry = &fk{primary: primary}
			byID[id] = entry
			order = append(order, id)
		}
		own, _ := t.Column(from)
		var ref *types.Column
		if to.Valid {
			ref, _ = primary.Column(to.String)
		} else if keys := primary.PrimaryKeys(); seq < len(keys) {
			ref = keys[seq]
		}
		if own != nil && ref != nil {
			entry.own = append(entry.own, own)
			entry.primaryCols = append(entry.primaryCols, ref)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for _, id := range order {
		if e := byID[id]; len(e.own) > 0 {
			e.primary.AddRelationship(e.primaryCols, t, e.own)
		}
	}
	return nil
}

// discoverCatalog reads the standard information_schema views.
func (d *DataContext) discoverCatalog(ctx context.Context) ([]*types.Schema, error) {
	exclude, args := d.systemSchemaFilter()

	schemas := make(map[string]*types.Schema)
	var names []string
	schemaFor := func(name string) *types.Schema {
		s, ok := schemas[name]
		if !ok {
			s = types.NewSchema(name)
			schemas[name] = s
			names = append(names, name)
		}
		return s
	}

	rows, err := d.db.QueryContext(ctx,
		"SELECT table_schema, table_name, table_type FROM information_schema.tables"+
			" WHERE table_schema NOT IN ("+exclude+") ORDER BY table_schema, table_name", args...)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var schemaName, tableName, kind string
		if err := rows.Scan(&schemaName, &tableName, &kind); err != nil {
			rows.Close()
			return nil, err
		}
		typ := types.TableTypeTable
		if strings.Contains(strings.ToUpper(kind), "VIEW") {
			typ = types.TableTypeView
		}
		schemaFor(schemaName).AddTable(tableName, typ)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	rows, err = d.db.QueryContext(ctx,
		"SELECT table_schema, table_name, column_name, data_type, is_nullable, character_maximum_length"+
			" FROM information_schema.columns WHERE table_schema NOT IN ("+exclude+")"+
			" ORDER BY table_schema, table_name, ordinal_position", args...)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var (
			schemaName, tableName, columnName, native, nullable string
			size                                                sql.NullInt64
		)
		if err := rows.Scan(&schemaName, &tableName, &columnName, &native, &nullable, &size); err != nil {
			rows.Close()
			return nil, err
		}
		t, ok := schemaFor(schemaName).Table(tableName)
		if !ok {
			continue
		}
		t.AddColumn(types.Column{
			Name:       columnName,
			Type:       types.ParseColumnType(native),
			NativeType: native,
			Nullable:   strings.EqualFold(nullable, "YES"),
			Size:       int(size.Int64),
		})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	rows, err = d.db.QueryContext(ctx,
		"SELECT kcu.table_schema, kcu.table_name, kcu.column_name"+
			" FROM information_schema.table_constraints tc"+
			" JOIN information_schema.key_column_usage kcu"+
			" ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema AND tc.table_name = kcu.table_name"+
			" WHERE tc.constraint_type = 'PRIMARY KEY'")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var schemaName, tableName, columnName string
		if err := rows.Scan(&schemaName, &tableName, &columnName); err != nil {
			return nil, err
		}
		s, ok := schemas[schemaName]
		if !ok {
			continue
		}
		if t, ok := s.Table(tableName); ok {
			if c, ok := t.Column(columnName); ok {
				c.PrimaryKey = true
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*types.Schema, len(names))
	for i, n := range names {
		out[i] = schemas[n]
	}
	return out, nil
}

func (d *DataContext) systemSchemaFilter() (string, []interface{}) {
	marks := make([]string, len(d.dialect.systemSchemas))
	args := make([]interface{}, len(d.dialect.systemSchemas))
	for i, s := range d.dialect.systemSchemas {
		marks[i] = d.dialect.Placeholder(i + 1)
		args[i] = s
	}
	return strings.Join(marks, ", "), args
}
