package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/arkilian/metaquery/pkg/types"
)

var showColumns bool

var schemasCmd = &cobra.Command{
	Use:   "schemas [schema...]",
	Short: "List the schemas and tables of the configured sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		application, stop, err := startApp(ctx)
		if err != nil {
			return err
		}
		defer stop()

		schemas, err := application.Schemas(ctx)
		if err != nil {
			return err
		}
		printSchemas(cmd.OutOrStdout(), filterSchemas(schemas, args), showColumns)
		return nil
	},
}

func init() {
	schemasCmd.Flags().BoolVar(&showColumns, "columns", false, "Also list the columns of every table")
	rootCmd.AddCommand(schemasCmd)
}

func filterSchemas(schemas []*types.Schema, names []string) []*types.Schema {
	if len(names) == 0 {
		return schemas
	}
	var out []*types.Schema
	for _, s := range schemas {
		for _, n := range names {
			if strings.EqualFold(s.Name, n) {
				out = append(out, s)
				break
			}
		}
	}
	return out
}

func printSchemas(w io.Writer, schemas []*types.Schema, columns bool) {
	schemaColor := color.New(color.Bold)
	for _, s := range schemas {
		schemaColor.Fprintln(w, s.Name)
		for _, t := range s.Tables {
			line := "  " + headerColor.Sprint(t.Name)
			if t.Type != types.TableTypeTable {
				line += " (" + strings.ToLower(string(t.Type)) + ")"
			}
			if t.Remarks != "" {
				line += "  " + nullColor.Sprint(t.Remarks)
			}
			fmt.Fprintln(w, line)
			if !columns {
				continue
			}
			for _, c := range t.Columns {
				fmt.Fprintf(w, "    %s %s\n", c.Name, describeColumn(c))
			}
		}
	}
}

func describeColumn(c *types.Column) string {
	parts := []string{c.Type.String()}
	if c.NativeType != "" && !strings.EqualFold(c.NativeType, c.Type.String()) {
		parts[0] += " [" + c.NativeType + "]"
	}
	if c.PrimaryKey {
		parts = append(parts, "PRIMARY KEY")
	} else if !c.Nullable {
		parts = append(parts, "NOT NULL")
	}
	return strings.Join(parts, " ")
}
