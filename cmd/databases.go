package cmd

import (
	"fmt"
	"log/slog"

	"github.com/liweiyi88/pgbackup/catalog"
	"github.com/liweiyi88/pgbackup/cmd/cmdutil"
	"github.com/liweiyi88/pgbackup/env"
	"github.com/spf13/cobra"
)

var databasesCmd = &cobra.Command{
	Use:   "databases",
	Short: "List the databases of a PostgreSQL server",
	Long: `List the non-template databases of a PostgreSQL server.
The connection uses --dsn, then the DATABASE_DSN environment variable, then
postgres://postgres@<host>:<port>/postgres with the password from the pgpass file.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmdutil.SetupLogger()
		ctx := cmd.Context()

		dsn := cmdutil.Global.Dsn
		if dsn == "" {
			if envs, err := env.NewEnvResolver(env.WithDatabaseDSN()).Resolve(); err == nil {
				dsn = envs.DatabaseDSN
			}
		}

		if dsn == "" {
			cfg, err := cmdutil.LoadConfig(ctx)
			if err != nil {
				return err
			}

			target, _, err := cmdutil.ResolveTarget(cfg, nil)
			if err != nil {
				return err
			}

			dsn = fmt.Sprintf("postgres://postgres@%s:%d/postgres", target.Host, target.Port)
		}

		db, err := catalog.OpenDB(dsn)
		if err != nil {
			return err
		}

		defer func() {
			if err := db.Close(); err != nil {
				slog.Error("fail to close DB", slog.Any("error", err))
			}
		}()

		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("fail to connect to database, error: %w", err)
		}

		databases, err := catalog.NewQuerier(db).ListDatabases(ctx)
		if err != nil {
			return err
		}

		for _, database := range databases {
			fmt.Fprintln(cmd.OutOrStdout(), database)
		}

		return nil
	},
}
