package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/arkilian/metaquery/internal/app"
	"github.com/arkilian/metaquery/internal/query/ast"
	"github.com/arkilian/metaquery/internal/query/clause"
	"github.com/arkilian/metaquery/internal/update"
	"github.com/arkilian/metaquery/pkg/types"
)

var writeFlags struct {
	table   string
	schema  string
	set     []string
	where   []string
	columns []string
}

var insertCmd = &cobra.Command{
	Use:     "insert",
	Short:   "Insert one row",
	Example: `  metaquery insert --source shop=sqlite:shop.db --table people --set id=5 --set "name='eve'"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withTarget(cmd, false, func(ctx context.Context, t *types.Table, _ []*ast.FilterItem, u *update.Executor) error {
			values, err := clause.ParseAssignments(writeFlags.set)
			if err != nil {
				return err
			}
			if err := u.Insert(ctx, update.Insert{Table: t, Values: values}); err != nil {
				return err
			}
			return reportAffected(cmd.OutOrStdout(), 1)
		})
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete the rows matching every --where condition",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withTarget(cmd, true, func(ctx context.Context, t *types.Table, where []*ast.FilterItem, u *update.Executor) error {
			n, err := u.Delete(ctx, update.Delete{Table: t, Where: where})
			if err != nil {
				return err
			}
			return reportAffected(cmd.OutOrStdout(), n)
		})
	},
}

var updateCmd = &cobra.Command{
	Use:     "update",
	Short:   "Assign --set values to the rows matching every --where condition",
	Example: `  metaquery update --source shop=sqlite:shop.db --table people --set age=27 --where "name = 'bob'"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withTarget(cmd, true, func(ctx context.Context, t *types.Table, where []*ast.FilterItem, u *update.Executor) error {
			values, err := clause.ParseAssignments(writeFlags.set)
			if err != nil {
				return err
			}
			n, err := u.Update(ctx, update.Update{Table: t, Set: values, Where: where})
			if err != nil {
				return err
			}
			return reportAffected(cmd.OutOrStdout(), n)
		})
	},
}

var createTableCmd = &cobra.Command{
	Use:     "create-table",
	Short:   "Create a table",
	Example: `  metaquery create-table --source shop=sqlite:shop.db --schema main --table tags --column "id INTEGER primary key" --column "label VARCHAR(32)"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var columns []types.Column
		for _, raw := range writeFlags.columns {
			c, err := clause.ParseColumnDef(raw)
			if err != nil {
				return err
			}
			columns = append(columns, c)
		}
		if len(columns) == 0 {
			return fmt.Errorf("at least one --column is required")
		}

		ctx := cmd.Context()
		application, stop, err := startApp(ctx)
		if err != nil {
			return err
		}
		defer stop()

		u, err := application.Updater(ctx, writeFlags.schema)
		if err != nil {
			return err
		}
		t, err := u.CreateTable(ctx, update.CreateTable{Schema: writeFlags.schema, Name: writeFlags.table, Columns: columns})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created %s\n", t.QualifiedName())
		return nil
	},
}

var dropTableCmd = &cobra.Command{
	Use:   "drop-table",
	Short: "Drop a table",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withTarget(cmd, false, func(ctx context.Context, t *types.Table, _ []*ast.FilterItem, u *update.Executor) error {
			if err := u.DropTable(ctx, update.DropTable{Table: t}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "dropped %s\n", t.QualifiedName())
			return nil
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{insertCmd, deleteCmd, updateCmd, dropTableCmd} {
		c.Flags().StringVar(&writeFlags.table, "table", "", "Table to modify, as table or schema.table")
		_ = c.MarkFlagRequired("table")
	}
	for _, c := range []*cobra.Command{insertCmd, updateCmd} {
		c.Flags().StringArrayVar(&writeFlags.set, "set", nil, "Column assignment col=value (repeatable)")
		_ = c.MarkFlagRequired("set")
	}
	for _, c := range []*cobra.Command{deleteCmd, updateCmd} {
		c.Flags().StringArrayVar(&writeFlags.where, "where", nil, "Condition (repeatable, ANDed)")
	}

	createTableCmd.Flags().StringVar(&writeFlags.schema, "schema", "", "Schema to create the table in")
	createTableCmd.Flags().StringVar(&writeFlags.table, "table", "", "Name of the new table")
	createTableCmd.Flags().StringArrayVar(&writeFlags.columns, "column", nil, `Column definition, e.g. "id INTEGER primary key" (repeatable)`)
	_ = createTableCmd.MarkFlagRequired("schema")
	_ = createTableCmd.MarkFlagRequired("table")

	rootCmd.AddCommand(insertCmd, deleteCmd, updateCmd, createTableCmd, dropTableCmd)
}

type targetFunc func(ctx context.Context, t *types.Table, where []*ast.FilterItem, u *update.Executor) error

// withTarget starts the app, resolves --table and, when filtered is set,
// --where, then calls fn with an update executor for the table's source.
func withTarget(cmd *cobra.Command, filtered bool, fn targetFunc) error {
	ctx := cmd.Context()
	application, stop, err := startApp(ctx)
	if err != nil {
		return err
	}
	defer stop()

	req := clause.NewRequest(writeFlags.table)
	if filtered {
		req.Where = writeFlags.where
	}
	t, where, err := resolveTarget(ctx, application, req)
	if err != nil {
		return err
	}
	u, err := application.Updater(ctx, t.Schema.Name)
	if err != nil {
		return err
	}
	return fn(ctx, t, where, u)
}

func resolveTarget(ctx context.Context, application *app.App, req clause.Request) (*types.Table, []*ast.FilterItem, error) {
	b, err := application.Query(ctx)
	if err != nil {
		return nil, nil, err
	}
	q, err := req.Build(b)
	if err != nil {
		return nil, nil, err
	}
	return q.From[0].Table, q.Where, nil
}

func reportAffected(w io.Writer, n int64) error {
	_, err := fmt.Fprintf(w, "%d rows affected\n", n)
	return err
}
