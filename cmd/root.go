package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/liweiyi88/pgbackup/cmd/backupcmd"
	"github.com/liweiyi88/pgbackup/cmd/cmdutil"
	"github.com/liweiyi88/pgbackup/cmd/pgpasscmd"
	"github.com/liweiyi88/pgbackup/cmd/uploadcmd"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "pgbackup",
	Short: "Back up and restore PostgreSQL databases, locally or on a remote server through ssh.",
	Long: `Back up and restore PostgreSQL databases with pg_dump and psql.
Every operation checks the pgpass file before it runs anything, runs commands
locally or on the remote server of the config file (--remote) and prints a
report of every job.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cmdutil.BindPersistentFlags(rootCmd)

	rootCmd.AddCommand(backupcmd.BackupCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(databasesCmd)
	rootCmd.AddCommand(pgpasscmd.PgpassCmd)
	rootCmd.AddCommand(uploadcmd.UploadCmd)
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
