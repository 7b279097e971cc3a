package cmd

import (
	"fmt"
	"helincat/db"
	"helincat/stmt"

	"github.com/spf13/cobra"
)

var createCmd = &cobra.Command{
	Use:   "create <table> <name:type>...",
	Short: "Create a table",
	Long: `Creates a table with the given columns. A column is written as name:type,
name:type(length), with a trailing ? for a nullable column, e.g.

  helincat create users id:int name:varchar(32) age:int?`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		attrs := make([]stmt.AttrInfo, 0, len(args)-1)
		for _, spec := range args[1:] {
			a, err := stmt.ParseAttr(spec)
			if err != nil {
				return err
			}
			attrs = append(attrs, a)
		}
		return execute(cmd, &stmt.CreateTableStmt{Table: args[0], Attrs: attrs})
	},
}

var dropCmd = &cobra.Command{
	Use:   "drop <table>",
	Short: "Drop a table and remove its files",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return execute(cmd, &stmt.DropTableStmt{Table: args[0]})
	},
}

var alterOps []string

var alterCmd = &cobra.Command{
	Use:   "alter <table> --op add:name:type|drop:name...",
	Short: "Add and drop columns of a table in one step",
	Long: `Applies the given operations in order. Either all of them take effect or
none does, e.g.

  helincat alter users --op add:email:varchar(64) --op drop:age`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ops, err := stmt.ParseAlterOps(alterOps)
		if err != nil {
			return err
		}
		return execute(cmd, &stmt.AlterStmt{Table: args[0], Ops: ops})
	},
}

func init() {
	alterCmd.Flags().StringArrayVar(&alterOps, "op", nil, "operation, add:name:type or drop:name (repeatable, order is kept)")

	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(dropCmd)
	rootCmd.AddCommand(alterCmd)
}

func execute(cmd *cobra.Command, s stmt.Statement) error {
	return withDB(func(d *db.DB) error {
		if err := d.Execute(s); err != nil {
			return err
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "ok")
		return nil
	})
}
