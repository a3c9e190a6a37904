package pgpasscmd

import (
	"fmt"

	"github.com/liweiyi88/pgbackup/cmd/cmdutil"
	"github.com/liweiyi88/pgbackup/pgpass"
	"github.com/spf13/cobra"
)

func init() {
	PgpassCmd.AddCommand(PgpassListCmd)
	PgpassCmd.AddCommand(PgpassAddCmd)
	PgpassCmd.AddCommand(PgpassRemoveCmd)
}

var PgpassCmd = &cobra.Command{
	Use:   "pgpass",
	Short: "Manage the pgpass credential file, locally or on the remote server with --remote",
}

func withStore(cmd *cobra.Command, fn func(store *pgpass.Store) error) error {
	cmdutil.SetupLogger()
	ctx := cmd.Context()

	cfg, err := cmdutil.LoadConfig(ctx)
	if err != nil {
		return err
	}

	t, err := cmdutil.NewTransport(ctx, cfg)
	if err != nil {
		return err
	}

	defer cmdutil.CloseTransport(t)

	return fn(pgpass.NewStore(t))
}

var PgpassListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the records of the pgpass file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(store *pgpass.Store) error {
			records, err := store.List(cmd.Context())
			if err != nil {
				return err
			}

			for _, record := range records {
				fmt.Fprintln(cmd.OutOrStdout(), record)
			}

			return nil
		})
	},
}

var PgpassAddCmd = &cobra.Command{
	Use:     "add host:port:database:username:password",
	Short:   "Add a record, the file is created when missing",
	Example: "pgbackup pgpass add '10.0.0.5:5432:*:postgres:secret'",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(store *pgpass.Store) error {
			if err := store.Add(cmd.Context(), args[0]); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "record added")
			return nil
		})
	},
}

var PgpassRemoveCmd = &cobra.Command{
	Use:   "remove host:port:database:username:password",
	Short: "Remove a record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(store *pgpass.Store) error {
			if err := store.Remove(cmd.Context(), args[0]); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "record removed")
			return nil
		})
	},
}
