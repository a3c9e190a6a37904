package cmd

import (
	"github.com/liweiyi88/pgbackup/cmd/cmdutil"
	"github.com/spf13/cobra"
)

var (
	restoreSource    string
	restoreDatabases []string
)

func init() {
	restoreCmd.Flags().StringSliceVarP(&restoreDatabases, "database", "d", nil, "the databases to restore (required)")
	restoreCmd.Flags().StringVarP(&restoreSource, "source", "s", "", "the folder holding <db>.gz files, default: <backuproot>/<host> (optional)")
	restoreCmd.MarkFlagRequired("database")
}

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Restore databases from gzipped full backups, one at a time",
	Long: `Restore databases from <source>/<db>.gz with psql.
Nothing is restored unless every requested <db>.gz exists.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmdutil.SetupLogger()
		ctx := cmd.Context()

		cfg, err := cmdutil.LoadConfig(ctx)
		if err != nil {
			return err
		}

		target, dbs, err := cmdutil.ResolveTarget(cfg, restoreDatabases)
		if err != nil {
			return err
		}

		t, err := cmdutil.NewTransport(ctx, cfg)
		if err != nil {
			return err
		}

		defer cmdutil.CloseTransport(t)

		h := cmdutil.NewBackupHandler(cmd, t, cfg, target, len(dbs))
		return cmdutil.Notify(ctx, cmd, cfg, h.Restore(ctx, dbs, restoreSource))
	},
}
