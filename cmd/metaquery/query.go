package main

import (
	"github.com/spf13/cobra"

	"github.com/arkilian/metaquery/internal/query/ast"
	"github.com/arkilian/metaquery/internal/query/clause"
	"github.com/arkilian/metaquery/internal/query/data"
)

var (
	queryFlags  = clause.NewRequest("")
	queryFormat string
	queryStats  bool
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Run a query across the configured sources",
	Example: `  metaquery query --source shop=sqlite:shop.db --from people --select name \
      --where "age > 30" --order "name desc" --limit 10
  metaquery query --config metaquery.yaml --from files.people --alias p \
      --join "left shop.orders o on p.id = o.person_id" \
      --select p.name --select "count(o.id) as orders" --group p.name`,
	RunE: runQuery,
}

func init() {
	f := queryCmd.Flags()
	f.StringVar(&queryFlags.From, "from", "", "Table to query, as table or schema.table")
	f.StringVar(&queryFlags.Alias, "alias", "", "Alias of the --from table")
	f.StringArrayVar(&queryFlags.Joins, "join", nil, `Join, e.g. "left orders o on p.id = o.person_id" (repeatable)`)
	f.StringArrayVar(&queryFlags.Select, "select", nil, `Select item, e.g. name, "sum(qty) as total" (repeatable)`)
	f.StringArrayVar(&queryFlags.Where, "where", nil, `Condition, e.g. "age >= 18", "name like 'a%'" (repeatable, ANDed)`)
	f.StringArrayVar(&queryFlags.GroupBy, "group", nil, "Group by column (repeatable)")
	f.StringArrayVar(&queryFlags.Having, "having", nil, `Group condition, e.g. "count(*) > 1" (repeatable)`)
	f.StringArrayVar(&queryFlags.OrderBy, "order", nil, `Order, e.g. "name desc" (repeatable)`)
	f.BoolVar(&queryFlags.Distinct, "distinct", false, "Remove duplicate rows")
	f.IntVar(&queryFlags.Offset, "offset", 0, "Skip this many rows")
	f.IntVar(&queryFlags.Limit, "limit", ast.Unbounded, "Return at most this many rows")
	f.StringVar(&queryFormat, "format", "table", "Output format: table, csv or json")
	f.BoolVar(&queryStats, "stats", false, "Print execution statistics to stderr")
	_ = queryCmd.MarkFlagRequired("from")

	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	out, err := newRowWriter(queryFormat, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	application, stop, err := startApp(ctx)
	if err != nil {
		return err
	}
	defer stop()

	b, err := application.Query(ctx)
	if err != nil {
		return err
	}
	q, err := queryFlags.Build(b)
	if err != nil {
		return err
	}

	ds, err := application.Execute(ctx, q)
	if err != nil {
		return err
	}
	if err := writeDataSet(out, ds); err != nil {
		return err
	}

	if queryStats {
		printSummary(cmd.ErrOrStderr(), application.Stats().Summary())
	}
	return nil
}

// writeDataSet drains ds into w and closes it.
func writeDataSet(w rowWriter, ds data.DataSet) error {
	defer ds.Close()
	if err := w.WriteHeader(ds.Header().Labels()); err != nil {
		return err
	}
	for ds.Next() {
		if err := w.WriteRow(ds.Row().Values()); err != nil {
			return err
		}
	}
	if err := ds.Err(); err != nil {
		return err
	}
	return w.Flush()
}
