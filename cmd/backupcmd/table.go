package backupcmd

import (
	"context"

	"github.com/liweiyi88/pgbackup/handler"
	"github.com/liweiyi88/pgbackup/jobresult"
	"github.com/spf13/cobra"
)

var tableDatabase, table, tableOperation string

func init() {
	BackupTableCmd.Flags().StringVar(&tableDatabase, "db", "", "the database of the table, default: the first --database value (optional)")
	BackupTableCmd.Flags().StringVarP(&table, "table", "t", "", "the table to back up (required)")
	BackupTableCmd.Flags().StringVar(&tableOperation, "operation", "all", "what to dump: data, struct or all (optional)")
	BackupTableCmd.MarkFlagRequired("table")
}

var BackupTableCmd = &cobra.Command{
	Use:   "table",
	Short: "Dump a single table into <table>_data.sql, <table>_struct.sql or <table>.sql",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, func(ctx context.Context, h *handler.BackupHandler, dbs []string) *jobresult.Report {
			database := tableDatabase
			if database == "" && len(dbs) > 0 {
				database = dbs[0]
			}

			return h.TableBackup(ctx, database, table, tableOperation)
		})
	},
}
