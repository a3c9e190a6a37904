package handler

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/liweiyi88/pgbackup/dumper"
	"github.com/liweiyi88/pgbackup/executor"
	"github.com/liweiyi88/pgbackup/jobresult"
	"github.com/liweiyi88/pgbackup/pgpass"
	"github.com/liweiyi88/pgbackup/transport"
)

// Target is the PostgreSQL server to back up and the root folder for its artifacts.
type Target struct {
	Host       string
	Port       int
	BackupRoot string
}

// BackupDir is <root>/<host>, joined with forward slashes so it also works on remote hosts.
func (target Target) BackupDir() string {
	return path.Join(target.BackupRoot, target.Host)
}

// NewDatabaseSet trims, de-duplicates and sorts database names.
func NewDatabaseSet(databases ...string) ([]string, error) {
	set := make([]string, 0, len(databases))
	for _, database := range databases {
		if database = strings.TrimSpace(database); database != "" {
			set = append(set, database)
		}
	}

	slices.Sort(set)
	set = slices.Compact(set)

	if len(set) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrValidation, ErrNoDatabase)
	}

	return set, nil
}

type Option func(handler *BackupHandler)

func WithWorkers(workers int) Option {
	return func(handler *BackupHandler) {
		handler.workers = workers
	}
}

func WithJobTimeout(timeout time.Duration) Option {
	return func(handler *BackupHandler) {
		handler.timeout = timeout
	}
}

// WithProgress is called after every finished job.
func WithProgress(progress func(result *jobresult.JobResult)) Option {
	return func(handler *BackupHandler) {
		handler.progress = progress
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(handler *BackupHandler) {
		handler.logger = logger
	}
}

func WithDumpOptions(opts ...dumper.Option) Option {
	return func(handler *BackupHandler) {
		handler.dumpOptions = append(handler.dumpOptions, opts...)
	}
}

// BackupHandler runs backup and restore batches against one target. Every batch
// validates its input and checks the pgpass file before any command runs.
type BackupHandler struct {
	transport   transport.Transport
	target      Target
	store       *pgpass.Store
	pgdump      *dumper.PgDump
	workers     int
	timeout     time.Duration
	progress    func(result *jobresult.JobResult)
	logger      *slog.Logger
	dumpOptions []dumper.Option
}

func NewBackupHandler(t transport.Transport, target Target, opts ...Option) *BackupHandler {
	handler := &BackupHandler{
		transport: t,
		target:    target,
		store:     pgpass.NewStore(t),
		workers:   executor.DefaultMaxWorkers,
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		opt(handler)
	}

	handler.pgdump = dumper.NewPgDump(target.Host, target.Port, handler.dumpOptions...)

	return handler
}

func (handler *BackupHandler) BackupDir() string {
	return handler.target.BackupDir()
}

func (handler *BackupHandler) authorize(ctx context.Context, databases []string) error {
	ok, err := handler.store.IsAuthorized(ctx, handler.target.Host, handler.target.Port, databases)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}

	if !ok {
		return fmt.Errorf("%w: make sure %s on %s:%d are configured for user %s", ErrUnauthorized, strings.Join(databases, ", "), handler.target.Host, handler.target.Port, pgpass.User)
	}

	return nil
}

func (handler *BackupHandler) ensureBackupDir(ctx context.Context) error {
	if err := handler.transport.EnsureDirectory(ctx, handler.BackupDir()); err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}

	return nil
}

func (handler *BackupHandler) runJob(ctx context.Context, job *jobresult.Job) (string, error) {
	handler.logger.Info("job started", slog.String("job", job.Name()), slog.String("via", handler.transport.Host()))

	result := handler.transport.Run(ctx, job.Command)
	if err := result.Err(); err != nil {
		handler.logger.Error("job failed", slog.String("job", job.Name()), slog.Any("error", err))
		return result.Output, err
	}

	handler.logger.Info("job succeeded", slog.String("job", job.Name()), slog.String("file", job.TargetFile))
	return result.Output, nil
}

func (handler *BackupHandler) dispatch(ctx context.Context, jobs []*jobresult.Job, workers int) []*jobresult.JobResult {
	opts := []executor.Option{executor.WithTimeout(handler.timeout)}
	if handler.progress != nil {
		opts = append(opts, executor.WithOnResult(handler.progress))
	}

	return executor.New(workers, opts...).RunAll(ctx, jobs, handler.runJob)
}

type commandBuilder func(dir, database string) (command string, file string)

func (handler *BackupHandler) backup(ctx context.Context, operation jobresult.Operation, databases []string, workers int, build commandBuilder) *jobresult.Report {
	report := jobresult.NewReport(operation, handler.target.Host)

	dbs, err := NewDatabaseSet(databases...)
	if err != nil {
		return report.Fail(err)
	}

	if err := handler.authorize(ctx, dbs); err != nil {
		return report.Fail(err)
	}

	if err := handler.ensureBackupDir(ctx); err != nil {
		return report.Fail(err)
	}

	jobs := make([]*jobresult.Job, 0, len(dbs))
	for _, db := range dbs {
		command, file := build(handler.BackupDir(), db)
		jobs = append(jobs, &jobresult.Job{
			Database:   db,
			Operation:  operation,
			TargetFile: file,
			Command:    command,
		})
	}

	handler.logger.Info("backup started", slog.String("operation", string(operation)), slog.String("host", handler.target.Host), slog.String("via", handler.transport.Host()), slog.Any("databases", dbs))

	return report.Finish(handler.dispatch(ctx, jobs, workers))
}

// FullBackup dumps every database in parallel into <dir>/<db>.gz.
func (handler *BackupHandler) FullBackup(ctx context.Context, databases []string) *jobresult.Report {
	return handler.backup(ctx, jobresult.OperationFull, databases, handler.workers, handler.pgdump.FullBackupCommand)
}

// DataBackup dumps the data of every database in parallel into <dir>/<db>_data.sql.
func (handler *BackupHandler) DataBackup(ctx context.Context, databases []string) *jobresult.Report {
	return handler.backup(ctx, jobresult.OperationData, databases, handler.workers, handler.pgdump.DataBackupCommand)
}

// StructBackup dumps schemas one database at a time into <dir>/<db>_struct.sql.
func (handler *BackupHandler) StructBackup(ctx context.Context, databases []string) *jobresult.Report {
	return handler.backup(ctx, jobresult.OperationStruct, databases, 1, handler.pgdump.StructBackupCommand)
}

func tableOperation(mode dumper.TableMode) jobresult.Operation {
	switch mode {
	case dumper.TableData:
		return jobresult.OperationTableData
	case dumper.TableStruct:
		return jobresult.OperationTableStruct
	default:
		return jobresult.OperationTableAll
	}
}

// TableBackup dumps a single table. mode is one of data, struct or all.
func (handler *BackupHandler) TableBackup(ctx context.Context, database, table, mode string) *jobresult.Report {
	report := jobresult.NewReport(jobresult.OperationTableAll, handler.target.Host)

	tableMode, err := dumper.ParseTableMode(mode)
	if err != nil {
		return report.Fail(fmt.Errorf("%w: %w: %w", ErrValidation, ErrUnsupportedOperation, err))
	}

	report.Operation = tableOperation(tableMode)

	table = strings.TrimSpace(table)
	if table == "" {
		return report.Fail(fmt.Errorf("%w: %w", ErrValidation, ErrMissingTable))
	}

	dbs, err := NewDatabaseSet(database)
	if err != nil {
		return report.Fail(err)
	}

	if err := handler.authorize(ctx, dbs); err != nil {
		return report.Fail(err)
	}

	if err := handler.ensureBackupDir(ctx); err != nil {
		return report.Fail(err)
	}

	command, file, err := handler.pgdump.TableBackupCommand(handler.BackupDir(), dbs[0], table, tableMode)
	if err != nil {
		return report.Fail(fmt.Errorf("%w: %w", ErrValidation, err))
	}

	jobs := []*jobresult.Job{{
		Database:   dbs[0],
		Table:      table,
		Operation:  report.Operation,
		TargetFile: file,
		Command:    command,
	}}

	return report.Finish(handler.dispatch(ctx, jobs, 1))
}

func (handler *BackupHandler) checkArtifacts(ctx context.Context, source string, databases []string) error {
	exists, err := handler.transport.FileExists(ctx, source)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}

	if !exists {
		return fmt.Errorf("%w: directory %s does not exist", ErrArtifactMissing, source)
	}

	missing := make([]string, 0)
	for _, db := range databases {
		file := dumper.FullBackupFile(source, db)

		exists, err := handler.transport.FileExists(ctx, file)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrTransport, err)
		}

		if !exists {
			missing = append(missing, file)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrArtifactMissing, strings.Join(missing, ", "))
	}

	return nil
}

// Restore replays <source>/<db>.gz into each database, one at a time. Nothing is
// restored unless every artifact is present. An empty source means the backup
// directory of the target.
func (handler *BackupHandler) Restore(ctx context.Context, databases []string, source string) *jobresult.Report {
	report := jobresult.NewReport(jobresult.OperationRestore, handler.target.Host)

	dbs, err := NewDatabaseSet(databases...)
	if err != nil {
		return report.Fail(err)
	}

	if err := handler.authorize(ctx, dbs); err != nil {
		return report.Fail(err)
	}

	if strings.TrimSpace(source) == "" {
		source = handler.BackupDir()
	}

	if err := handler.checkArtifacts(ctx, source, dbs); err != nil {
		return report.Fail(err)
	}

	jobs := make([]*jobresult.Job, 0, len(dbs))
	for _, db := range dbs {
		command, file := handler.pgdump.RestoreCommand(source, db)
		jobs = append(jobs, &jobresult.Job{
			Database:   db,
			Operation:  jobresult.OperationRestore,
			TargetFile: file,
			Command:    command,
		})
	}

	handler.logger.Info("restore started", slog.String("host", handler.target.Host), slog.String("source", source), slog.Any("databases", dbs))

	return report.Finish(handler.dispatch(ctx, jobs, 1))
}
