package dumper

import (
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/kballard/go-shellquote"
)

const (
	DefaultPort     = 5432
	DefaultUsername = "postgres"
)

var ErrUnsupportedTableMode = errors.New("unsupported table dump mode")

type TableMode string

const (
	TableData   TableMode = "data"
	TableStruct TableMode = "struct"
	TableAll    TableMode = "all"
)

func ParseTableMode(mode string) (TableMode, error) {
	switch TableMode(strings.ToLower(strings.TrimSpace(mode))) {
	case TableData:
		return TableData, nil
	case TableStruct:
		return TableStruct, nil
	case TableAll:
		return TableAll, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedTableMode, mode)
	}
}

// PgDump builds the pg_dump and psql shell commands for one PostgreSQL server.
// Authentication is left to the pgpass file of the user running the command.
type PgDump struct {
	path     string
	psqlPath string
	host     string
	port     int
	username string
	options  []string
}

type Option func(pgdump *PgDump)

func WithPgDumpPath(path string) Option {
	return func(pgdump *PgDump) {
		pgdump.path = path
	}
}

func WithPsqlPath(path string) Option {
	return func(pgdump *PgDump) {
		pgdump.psqlPath = path
	}
}

// WithOptions appends extra pg_dump flags, e.g. --no-owner.
func WithOptions(options ...string) Option {
	return func(pgdump *PgDump) {
		pgdump.options = append(pgdump.options, options...)
	}
}

func NewPgDump(host string, port int, opts ...Option) *PgDump {
	if port <= 0 {
		port = DefaultPort
	}

	pgdump := &PgDump{
		path:     "pg_dump",
		psqlPath: "psql",
		host:     host,
		port:     port,
		username: DefaultUsername,
	}

	for _, opt := range opts {
		opt(pgdump)
	}

	return pgdump
}

// Dsn example: postgres://postgres@localhost:5432/postgres
func NewPgDumpFromDsn(dsn string, opts ...Option) (*PgDump, error) {
	config, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}

	return NewPgDump(config.Host, int(config.Port), opts...), nil
}

func (psql *PgDump) Host() string {
	return psql.host
}

func (psql *PgDump) Port() int {
	return psql.port
}

func (psql *PgDump) connectionArgs() []string {
	args := []string{}

	args = append(args, "--host="+psql.host)
	args = append(args, "--port="+strconv.Itoa(psql.port))
	args = append(args, "--username="+psql.username)

	return args
}

func (psql *PgDump) dumpCommand(flags []string, database string) string {
	args := []string{psql.path}
	args = append(args, psql.connectionArgs()...)
	args = append(args, flags...)
	args = append(args, psql.options...)
	args = append(args, database)

	return shellquote.Join(args...)
}

func redirect(file string) string {
	return "> " + shellquote.Join(file)
}

func FullBackupFile(dir, database string) string {
	return path.Join(dir, database+".gz")
}

func DataBackupFile(dir, database string) string {
	return path.Join(dir, database+"_data.sql")
}

func StructBackupFile(dir, database string) string {
	return path.Join(dir, database+"_struct.sql")
}

func TableBackupFile(dir, table string, mode TableMode) string {
	switch mode {
	case TableData:
		return path.Join(dir, table+"_data.sql")
	case TableStruct:
		return path.Join(dir, table+"_struct.sql")
	default:
		return path.Join(dir, table+".sql")
	}
}

// FullBackupCommand dumps with --clean and gzips the output into <dir>/<db>.gz.
func (psql *PgDump) FullBackupCommand(dir, database string) (string, string) {
	file := FullBackupFile(dir, database)
	return fmt.Sprintf("%s | gzip %s", psql.dumpCommand([]string{"--clean"}, database), redirect(file)), file
}

func (psql *PgDump) DataBackupCommand(dir, database string) (string, string) {
	file := DataBackupFile(dir, database)
	return fmt.Sprintf("%s %s", psql.dumpCommand([]string{"--data-only"}, database), redirect(file)), file
}

func (psql *PgDump) StructBackupCommand(dir, database string) (string, string) {
	file := StructBackupFile(dir, database)
	return fmt.Sprintf("%s %s", psql.dumpCommand([]string{"--schema-only"}, database), redirect(file)), file
}

func (psql *PgDump) TableBackupCommand(dir, database, table string, mode TableMode) (string, string, error) {
	flags := []string{"--table=" + table}

	switch mode {
	case TableData:
		flags = append(flags, "--data-only")
	case TableStruct:
		flags = append(flags, "--schema-only")
	case TableAll:
	default:
		return "", "", fmt.Errorf("%w: %q", ErrUnsupportedTableMode, mode)
	}

	file := TableBackupFile(dir, table, mode)
	return fmt.Sprintf("%s %s", psql.dumpCommand(flags, database), redirect(file)), file, nil
}

// RestoreCommand feeds <source>/<db>.gz into psql connected to the database.
func (psql *PgDump) RestoreCommand(source, database string) (string, string) {
	file := FullBackupFile(source, database)

	args := []string{psql.psqlPath}
	args = append(args, psql.connectionArgs()...)
	args = append(args, database)

	return fmt.Sprintf("gunzip -c %s | %s", shellquote.Join(file), shellquote.Join(args...)), file
}
