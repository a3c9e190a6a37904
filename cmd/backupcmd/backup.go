package backupcmd

import (
	"context"

	"github.com/liweiyi88/pgbackup/cmd/cmdutil"
	"github.com/liweiyi88/pgbackup/handler"
	"github.com/liweiyi88/pgbackup/jobresult"
	"github.com/spf13/cobra"
)

var databases []string

func init() {
	BackupCmd.PersistentFlags().StringSliceVarP(&databases, "database", "d", nil, "the databases to back up, default: the databases of the host in the config file (optional)")

	BackupCmd.AddCommand(BackupFullCmd)
	BackupCmd.AddCommand(BackupDataCmd)
	BackupCmd.AddCommand(BackupStructCmd)
	BackupCmd.AddCommand(BackupTableCmd)
}

var BackupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Back up PostgreSQL databases into <backuproot>/<host>",
}

type operation func(ctx context.Context, h *handler.BackupHandler, databases []string) *jobresult.Report

func run(cmd *cobra.Command, op operation) error {
	cmdutil.SetupLogger()
	ctx := cmd.Context()

	cfg, err := cmdutil.LoadConfig(ctx)
	if err != nil {
		return err
	}

	target, dbs, err := cmdutil.ResolveTarget(cfg, databases)
	if err != nil {
		return err
	}

	t, err := cmdutil.NewTransport(ctx, cfg)
	if err != nil {
		return err
	}

	defer cmdutil.CloseTransport(t)

	h := cmdutil.NewBackupHandler(cmd, t, cfg, target, jobCount(cmd, dbs))
	return cmdutil.Notify(ctx, cmd, cfg, op(ctx, h, dbs))
}

// jobCount sizes the progress bar, a table backup dispatches a single job.
func jobCount(cmd *cobra.Command, databases []string) int {
	if cmd.Name() == "table" {
		return 1
	}

	return len(databases)
}

var BackupFullCmd = &cobra.Command{
	Use:   "full",
	Short: "Dump every database in parallel into gzipped files, <db>.gz",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, func(ctx context.Context, h *handler.BackupHandler, dbs []string) *jobresult.Report {
			return h.FullBackup(ctx, dbs)
		})
	},
}

var BackupDataCmd = &cobra.Command{
	Use:   "data",
	Short: "Dump the data of every database in parallel, <db>_data.sql",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, func(ctx context.Context, h *handler.BackupHandler, dbs []string) *jobresult.Report {
			return h.DataBackup(ctx, dbs)
		})
	},
}

var BackupStructCmd = &cobra.Command{
	Use:   "struct",
	Short: "Dump the schema of every database one by one, <db>_struct.sql",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, func(ctx context.Context, h *handler.BackupHandler, dbs []string) *jobresult.Report {
			return h.StructBackup(ctx, dbs)
		})
	},
}
