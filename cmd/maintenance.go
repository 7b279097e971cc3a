package cmd

import (
	"fmt"
	"helincat/db"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Flush every table file to disk",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(func(d *db.DB) error {
			return d.Sync()
		})
	},
}

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Sync all tables and compact the recovery log",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(func(d *db.DB) error {
			return d.Checkpoint()
		})
	},
}

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Print the records of the recovery log",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(func(d *db.DB) error {
			records, err := d.LogRecords()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, lr := range records {
				_, _ = fmt.Fprintln(out, lr.String())
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(checkpointCmd)
	rootCmd.AddCommand(logCmd)
}
