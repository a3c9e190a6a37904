// Package pgpass reads, authorizes against and edits pgpass-style credential files.
package pgpass

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"slices"
	"strconv"
	"strings"
)

const (
	Wildcard = "*"
	User     = "postgres"
)

var (
	ErrInvalidRecord    = errors.New("invalid pgpass record")
	ErrDuplicateRecord  = errors.New("pgpass record already exists")
	ErrRecordNotFound   = errors.New("pgpass record not found")
	ErrStoreUnavailable = errors.New("pgpass file is unavailable")
)

// CredentialFile is where the credential text is kept, locally or on a remote host.
type CredentialFile interface {
	ReadCredentialText(ctx context.Context) (string, error)
	WriteCredentialText(ctx context.Context, text string) error
}

type Record struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// ParseRecord parses host:port:database:user:password.
func ParseRecord(line string) (Record, error) {
	fields := strings.Split(strings.TrimSpace(line), ":")
	if len(fields) != 5 {
		return Record{}, fmt.Errorf("%w: expected 5 fields in %q", ErrInvalidRecord, line)
	}

	for i, field := range fields {
		fields[i] = strings.TrimSpace(field)
		if fields[i] == "" {
			return Record{}, fmt.Errorf("%w: empty field in %q", ErrInvalidRecord, line)
		}
	}

	port, err := strconv.Atoi(fields[1])
	if err != nil || port <= 0 {
		return Record{}, fmt.Errorf("%w: port %q is not a number", ErrInvalidRecord, fields[1])
	}

	return Record{
		Host:     fields[0],
		Port:     port,
		Database: fields[2],
		User:     fields[3],
		Password: fields[4],
	}, nil
}

func (record Record) String() string {
	return strings.Join([]string{record.Host, strconv.Itoa(record.Port), record.Database, record.User, record.Password}, ":")
}

// normalize returns the canonical form of a parsable line, the trimmed line otherwise.
func normalize(line string) string {
	if record, err := ParseRecord(line); err == nil {
		return record.String()
	}

	return strings.TrimSpace(line)
}

type Store struct {
	file CredentialFile
}

func NewStore(file CredentialFile) *Store {
	return &Store{file: file}
}

func (store *Store) read(ctx context.Context) (string, error) {
	text, err := store.file.ReadCredentialText(ctx)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
		}

		return "", err
	}

	return text, nil
}

func lines(text string) []string {
	result := make([]string, 0)
	for line := range strings.SplitSeq(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			result = append(result, line)
		}
	}

	return result
}

func uniqueSorted(entries []string) []string {
	slices.Sort(entries)
	return slices.Compact(entries)
}

func render(entries []string) string {
	if len(entries) == 0 {
		return ""
	}

	return strings.Join(entries, "\n") + "\n"
}

// IsAuthorized reports whether the file grants the postgres user access to every
// requested database on host:port. A wildcard record grants all of them.
func (store *Store) IsAuthorized(ctx context.Context, host string, port int, databases []string) (bool, error) {
	text, err := store.read(ctx)
	if err != nil {
		return false, err
	}

	granted := make(map[string]bool)

	for _, line := range lines(text) {
		record, err := ParseRecord(line)
		if err != nil {
			slog.Debug("[pgpass] skip malformed line", slog.Any("error", err))
			continue
		}

		if record.Host != host || record.Port != port || record.User != User {
			continue
		}

		if record.Database == Wildcard {
			return true, nil
		}

		granted[record.Database] = true
	}

	for _, database := range databases {
		if !granted[database] {
			slog.Debug("[pgpass] database is not authorized", slog.String("host", host), slog.Int("port", port), slog.String("database", database))
			return false, nil
		}
	}

	return true, nil
}

// List returns the distinct non-blank lines of the file, sorted.
func (store *Store) List(ctx context.Context) ([]string, error) {
	text, err := store.read(ctx)
	if err != nil {
		return nil, err
	}

	return uniqueSorted(lines(text)), nil
}

// Add appends a record, creating the file when it does not exist yet.
func (store *Store) Add(ctx context.Context, line string) error {
	record, err := ParseRecord(line)
	if err != nil {
		return err
	}

	text, err := store.read(ctx)
	if err != nil && !errors.Is(err, ErrStoreUnavailable) {
		return err
	}

	entries := uniqueSorted(lines(text))
	normalized := record.String()

	if slices.ContainsFunc(entries, func(entry string) bool { return normalize(entry) == normalized }) {
		return fmt.Errorf("%w: %s", ErrDuplicateRecord, normalized)
	}

	entries = uniqueSorted(append(entries, normalized))

	return store.file.WriteCredentialText(ctx, render(entries))
}

func (store *Store) Remove(ctx context.Context, line string) error {
	target := normalize(line)

	text, err := store.read(ctx)
	if err != nil {
		return err
	}

	entries := uniqueSorted(lines(text))
	kept := slices.DeleteFunc(slices.Clone(entries), func(entry string) bool { return normalize(entry) == target })

	if len(kept) == len(entries) {
		return fmt.Errorf("%w: %s", ErrRecordNotFound, target)
	}

	return store.file.WriteCredentialText(ctx, render(kept))
}
