package sqldb

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	qerrors "github.com/arkilian/metaquery/internal/errors"
	"github.com/arkilian/metaquery/internal/update"
	"github.com/arkilian/metaquery/pkg/types"
)

// Capabilities reports full native write support.
func (d *DataContext) Capabilities() update.Capabilities {
	return update.Capabilities{Insert: true, Delete: true, Update: true, CreateTable: true, DropTable: true}
}

func (d *DataContext) exec(ctx context.Context, st *statement, action string) (int64, error) {
	d.logger.Debug(action, zap.String("sql", st.String()), zap.Int("args", len(st.args)))
	res, err := d.db.ExecContext(ctx, st.String(), st.args...)
	if err != nil {
		return 0, qerrors.NewIOError(qerrors.CodeWriteFailed, action, err)
	}
	// drivers without affected-row counts report zero
	n, _ := res.RowsAffected()
	return n, nil
}

// CreateTable issues CREATE TABLE and returns the table from the refreshed
// catalog.
func (d *DataContext) CreateTable(ctx context.Context, stmt update.CreateTable) (*types.Table, error) {
	schemaName := stmt.Schema
	if schemaName == "" {
		schemaName = d.dialect.defaultSchema
	}
	pending := types.NewTable(stmt.Name, types.TableTypeTable)
	if schemaName != "" {
		types.NewSchema(schemaName).AttachTable(pending)
	}

	st := newStatement(d.dialect)
	st.write("CREATE TABLE ", d.dialect.TableName(pending), " (")
	var keys []string
	for i, c := range stmt.Columns {
		if i > 0 {
			st.write(", ")
		}
		st.write(d.dialect.Quote(c.Name), " ", d.dialect.TypeName(c))
		if !c.Nullable {
			st.write(" NOT NULL")
		}
		if c.PrimaryKey {
			keys = append(keys, d.dialect.Quote(c.Name))
		}
	}
	if len(keys) > 0 {
		st.write(", PRIMARY KEY (", strings.Join(keys, ", "), ")")
	}
	st.write(")")

	if _, err := d.exec(ctx, st, "create table "+stmt.Name); err != nil {
		return nil, err
	}
	if err := d.cache.Refresh(ctx); err != nil {
		return nil, err
	}
	schemas, err := d.cache.Schemas(ctx)
	if err != nil {
		return nil, err
	}
	for _, s := range schemas {
		if schemaName != "" && s.Name != schemaName {
			continue
		}
		if t, ok := s.Table(stmt.Name); ok {
			return t, nil
		}
	}
	return nil, qerrors.NewConfigurationError(qerrors.CodeUnresolvedTable,
		fmt.Sprintf("created table %s not found in catalog", stmt.Name))
}

// DropTable issues DROP TABLE and refreshes the catalog.
func (d *DataContext) DropTable(ctx context.Context, stmt update.DropTable) error {
	st := newStatement(d.dialect)
	st.write("DROP TABLE ", d.dialect.TableName(stmt.Table))
	if _, err := d.exec(ctx, st, "drop table "+stmt.Table.QualifiedName()); err != nil {
		return err
	}
	return d.cache.Refresh(ctx)
}

// Insert issues INSERT with the values in column order.
func (d *DataContext) Insert(ctx context.Context, stmt update.Insert) error {
	columns, values, err := orderedColumns(stmt.Table, stmt.Values)
	if err != nil {
		return err
	}
	st := newStatement(d.dialect)
	st.write("INSERT INTO ", d.dialect.TableName(stmt.Table))
	if len(columns) == 0 {
		st.write(" DEFAULT VALUES")
	} else {
		names := make([]string, len(columns))
		marks := make([]string, len(columns))
		for i, c := range columns {
			names[i] = d.dialect.Quote(c.Name)
			marks[i] = st.bind(values[i])
		}
		st.write(" (", strings.Join(names, ", "), ") VALUES (", strings.Join(marks, ", "), ")")
	}
	_, err = d.exec(ctx, st, "insert into "+stmt.Table.QualifiedName())
	return err
}

// Delete issues DELETE with the rendered conditions.
func (d *DataContext) Delete(ctx context.Context, stmt update.Delete) (int64, error) {
	st := newStatement(d.dialect)
	st.write("DELETE FROM ", d.dialect.TableName(stmt.Table))
	if err := st.where(stmt.Where); err != nil {
		return 0, err
	}
	return d.exec(ctx, st, "delete from "+stmt.Table.QualifiedName())
}

// Update issues a native UPDATE.
func (d *DataContext) Update(ctx context.Context, stmt update.Update) (int64, error) {
	columns, values, err := orderedColumns(stmt.Table, stmt.Set)
	if err != nil {
		return 0, err
	}
	if len(columns) == 0 {
		return 0, qerrors.NewQueryError(qerrors.CodeInvalidQuery, "update sets no columns")
	}
	st := newStatement(d.dialect)
	st.write("UPDATE ", d.dialect.TableName(stmt.Table), " SET ")
	for i, c := range columns {
		if i > 0 {
			st.write(", ")
		}
		st.write(d.dialect.Quote(c.Name), " = ", st.bind(values[i]))
	}
	if err := st.where(stmt.Where); err != nil {
		return 0, err
	}
	return d.exec(ctx, st, "update "+stmt.Table.QualifiedName())
}

// orderedColumns returns the table columns named in values and their
// values, in table order.
func orderedColumns(t *types.Table, values map[string]interface{}) ([]*types.Column, []interface{}, error) {
	byPosition := make(map[int]interface{}, len(values))
	for name, v := range values {
		c, ok := t.Column(name)
		if !ok {
			return nil, nil, qerrors.NewConfigurationError(qerrors.CodeUnresolvedColumn,
				fmt.Sprintf("no such column: %s.%s", t.QualifiedName(), name))
		}
		byPosition[c.Position] = v
	}
	var columns []*types.Column
	var ordered []interface{}
	for _, c := range t.Columns {
		if v, ok := byPosition[c.Position]; ok {
			columns = append(columns, c)
			ordered = append(ordered, v)
		}
	}
	return columns, ordered, nil
}
