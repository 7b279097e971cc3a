package cmd

import (
	"fmt"
	"helincat/catalog"
	"helincat/db"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "List the tables of the database",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(func(d *db.DB) error {
			out := cmd.OutOrStdout()
			for _, name := range d.Catalog().ListTables() {
				_, _ = fmt.Fprintln(out, name)
			}
			return nil
		})
	},
}

var describeCmd = &cobra.Command{
	Use:   "describe <table>",
	Short: "Print the current schema of a table",
	Args:  cobra.ExactArgs(1),
	RunE:  runDescribe,
}

func init() {
	rootCmd.AddCommand(tablesCmd)
	rootCmd.AddCommand(describeCmd)
}

func runDescribe(cmd *cobra.Command, args []string) error {
	return withDB(func(d *db.DB) error {
		tbl := d.Catalog().GetTable(args[0])
		if tbl == nil {
			return fmt.Errorf("%w: table %s", catalog.ErrNotFound, args[0])
		}
		desc := tbl.Descriptor()

		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintf(out, "%s (id %d, schema version %d, record size %d)\n\n", desc.Name(), desc.OID(), desc.Version(), desc.RecordSize())

		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "NAME\tTYPE\tOFFSET\tLENGTH\tNULLABLE")
		_, _ = fmt.Fprintln(w, "----\t----\t------\t------\t--------")
		for _, f := range desc.Fields() {
			nullable := "no"
			if f.Nullable {
				nullable = "yes"
			}
			_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n", f.Name, f.Type, f.Offset, f.Length(), nullable)
		}
		if err := w.Flush(); err != nil {
			return err
		}

		if dropped := desc.DroppedFields(); len(dropped) > 0 {
			_, _ = fmt.Fprintf(out, "\n%d dropped column(s) still occupy row bytes\n", len(dropped))
		}
		return nil
	})
}
