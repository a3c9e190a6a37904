// Package cmdutil holds the flags and wiring shared by every pgbackup command.
package cmdutil

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/k0kubun/go-ansi"
	"github.com/liweiyi88/pgbackup/config"
	"github.com/liweiyi88/pgbackup/dumper"
	"github.com/liweiyi88/pgbackup/env"
	"github.com/liweiyi88/pgbackup/handler"
	"github.com/liweiyi88/pgbackup/jobresult"
	"github.com/liweiyi88/pgbackup/notifier/console"
	"github.com/liweiyi88/pgbackup/storage/s3"
	"github.com/liweiyi88/pgbackup/transport"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

const localHost = "127.0.0.1"

type Options struct {
	ConfigFile     string
	ConfigS3Bucket string
	CredentialFile string
	Verbose        bool
	Remote         bool
	NoProgress     bool
	Host           string
	Port           int
	Dsn            string
	Workers        int
	Timeout        time.Duration
	Policy         string
}

// Global is bound to the persistent flags of the root command.
var Global = &Options{}

func BindPersistentFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()

	flags.StringVarP(&Global.ConfigFile, "config", "c", "", "the yaml config file path (optional)")
	flags.StringVar(&Global.ConfigS3Bucket, "config-s3-bucket", "", "read the config file from this s3 bucket, --config is the object key (optional)")
	flags.StringVar(&Global.CredentialFile, "credential-file", "", "the pgpass file to check and edit, default: $PGPASSFILE or ~/.pgpass, .pgpass in the home dir for remote (optional)")
	flags.BoolVarP(&Global.Verbose, "verbose", "v", false, "prints additional debug information (optional)")
	flags.BoolVarP(&Global.Remote, "remote", "r", false, "run commands on the remote server of the config file through ssh (optional)")
	flags.BoolVar(&Global.NoProgress, "no-progress", false, "do not render the progress bar (optional)")
	flags.StringVar(&Global.Host, "host", "", "the PostgreSQL host, default: the first configured host or 127.0.0.1 (optional)")
	flags.IntVar(&Global.Port, "port", 0, "the PostgreSQL port, default: the configured port or 5432 (optional)")
	flags.StringVar(&Global.Dsn, "dsn", "", "take host and port from a PostgreSQL dsn, e.g. postgres://postgres@10.0.0.5:5432/postgres (optional)")
	flags.IntVar(&Global.Workers, "workers", 0, "the maximum number of databases processed at the same time (optional)")
	flags.DurationVar(&Global.Timeout, "timeout", 0, "the timeout of every single job, e.g. 30m, default: no timeout (optional)")
	flags.StringVar(&Global.Policy, "policy", "", "failure policy, strict treats any stderr output as failure, exitcode only checks the exit status (optional)")
}

func SetupLogger() {
	if Global.Verbose {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}
}

// LoadConfig reads the config file, from S3 when --config-s3-bucket is set, and
// applies the flag overrides.
func LoadConfig(ctx context.Context) (*config.Config, error) {
	var cfg *config.Config

	switch {
	case Global.ConfigS3Bucket != "":
		content, err := s3.NewS3(Global.ConfigS3Bucket, Global.ConfigFile, "", "", "", "").GetContent(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file from s3 bucket %s, error: %w", Global.ConfigS3Bucket, err)
		}

		if cfg, err = config.Parse(content); err != nil {
			return nil, err
		}
	case Global.ConfigFile != "":
		var err error
		if cfg, err = config.Load(Global.ConfigFile); err != nil {
			return nil, err
		}
	default:
		cfg = config.Default()
	}

	if Global.Workers > 0 {
		cfg.Workers = Global.Workers
	}

	if Global.Timeout > 0 {
		cfg.JobTimeout = Global.Timeout
	}

	if Global.Policy != "" {
		cfg.Policy = Global.Policy
	}

	if Global.CredentialFile != "" {
		cfg.CredentialFile = Global.CredentialFile
	}

	return cfg, cfg.Validate()
}

// ResolveTarget picks the PostgreSQL host and port from --dsn, --host/--port or
// the config file, and the databases from the flag or the host entry.
func ResolveTarget(cfg *config.Config, databases []string) (handler.Target, []string, error) {
	host, port := Global.Host, Global.Port

	if Global.Dsn != "" {
		pgdump, err := dumper.NewPgDumpFromDsn(Global.Dsn)
		if err != nil {
			return handler.Target{}, nil, fmt.Errorf("invalid dsn, error: %w", err)
		}

		host, port = pgdump.Host(), pgdump.Port()
	}

	if host == "" {
		host = localHost
		if len(cfg.Hosts) > 0 {
			host = cfg.Hosts[0].Host
		}
	}

	entry := cfg.LookupHost(host)

	if port == 0 {
		port = dumper.DefaultPort
		if entry != nil {
			port = entry.Port
		}
	}

	if len(databases) == 0 && entry != nil {
		databases = entry.Databases
	}

	return handler.Target{Host: host, Port: port, BackupRoot: cfg.BackupRoot}, databases, nil
}

// NewTransport returns the remote transport when --remote is set, the local one otherwise.
func NewTransport(ctx context.Context, cfg *config.Config) (transport.Transport, error) {
	if !Global.Remote {
		return transport.NewLocal(cfg.CredentialFile, cfg.RunnerPolicy()), nil
	}

	if cfg.Remote == nil {
		return nil, config.ErrMissingRemote
	}

	target := cfg.Remote.Target()

	if target.Password == "" && target.Key == "" {
		envs, err := env.NewEnvResolver(env.WithSsh()).Resolve()
		if err != nil {
			return nil, err
		}

		target.Password = envs.SshCredentials.Password
		target.Key = envs.SshCredentials.Key
	}

	credentialFile := cfg.Remote.CredentialFile
	if Global.CredentialFile != "" {
		credentialFile = Global.CredentialFile
	}

	remote, err := transport.NewRemote(ctx, target,
		transport.WithPoolSize(cfg.Workers),
		transport.WithPolicy(cfg.RunnerPolicy()),
		transport.WithCredentialFile(credentialFile),
	)

	if err != nil {
		return nil, fmt.Errorf("fail to connect to remote server %s, error: %w", target.Addr(), err)
	}

	return remote, nil
}

func NewBackupHandler(cmd *cobra.Command, t transport.Transport, cfg *config.Config, target handler.Target, jobs int) *handler.BackupHandler {
	opts := []handler.Option{
		handler.WithWorkers(cfg.Workers),
		handler.WithJobTimeout(cfg.JobTimeout),
		handler.WithDumpOptions(dumper.WithOptions(cfg.DumpOptions...)),
	}

	if progress := NewProgress(cmd, jobs, "backing up"); progress != nil {
		opts = append(opts, handler.WithProgress(progress))
	}

	return handler.NewBackupHandler(t, target, opts...)
}

// NewProgress renders a bar advancing with every finished job, nil when disabled.
func NewProgress(cmd *cobra.Command, total int, description string) func(result *jobresult.JobResult) {
	if Global.NoProgress || total <= 1 {
		return nil
	}

	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(ansi.NewAnsiStderr()),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(25),
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription("[cyan][reset] "+description+"..."),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}))

	return func(result *jobresult.JobResult) {
		_ = bar.Add(1)
	}
}

// Notify prints the report, posts it to the configured Slack webhooks and turns
// any failure into the command error.
func Notify(ctx context.Context, cmd *cobra.Command, cfg *config.Config, report *jobresult.Report) error {
	errs := console.NewWithWriter(cmd.OutOrStdout()).Notify(report)

	for _, slack := range cfg.Notifier.Slack {
		if err := slack.Notify(ctx, report); err != nil {
			slog.Error("fail to send slack notification", slog.Any("error", err))
			errs = errors.Join(errs, err)
		}
	}

	return errors.Join(errs, report.Err())
}

// CloseTransport is deferred by commands, close errors are only logged.
func CloseTransport(t transport.Transport) {
	if err := t.Close(); err != nil {
		slog.Error("fail to close transport", slog.Any("error", err))
	}
}
