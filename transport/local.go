package transport

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/liweiyi88/pgbackup/dumper/runner"
)

const credentialFileMode = 0600

// DefaultCredentialFile follows libpq: $PGPASSFILE, otherwise ~/.pgpass.
func DefaultCredentialFile() string {
	if file := os.Getenv("PGPASSFILE"); file != "" {
		return file
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ".pgpass"
	}

	return filepath.Join(home, ".pgpass")
}

type Local struct {
	credentialFile string
	runner         runner.Runner
}

func NewLocal(credentialFile string, policy runner.Policy) *Local {
	if credentialFile == "" {
		credentialFile = DefaultCredentialFile()
	}

	return &Local{
		credentialFile: credentialFile,
		runner:         runner.NewExecRunner(policy),
	}
}

func (local *Local) Host() string {
	return "127.0.0.1"
}

func (local *Local) CredentialFile() string {
	return local.credentialFile
}

func (local *Local) EnsureDirectory(ctx context.Context, dir string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	return nil
}

func (local *Local) Run(ctx context.Context, command string) runner.Result {
	return local.runner.Run(ctx, command)
}

func (local *Local) ReadCredentialText(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	content, err := os.ReadFile(local.credentialFile)
	if err != nil {
		return "", fmt.Errorf("failed to read credential file %s: %w", local.credentialFile, err)
	}

	return string(content), nil
}

// WriteCredentialText replaces the credential file atomically with mode 0600.
func (local *Local) WriteCredentialText(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := filepath.Dir(local.credentialFile)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create credential file directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".pgpass-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary credential file: %w", err)
	}

	tmpName := tmp.Name()
	defer func() {
		// No-op once the rename succeeded.
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.WriteString(text); err != nil {
		return errors.Join(fmt.Errorf("failed to write temporary credential file: %w", err), tmp.Close())
	}

	if err := tmp.Chmod(credentialFileMode); err != nil {
		return errors.Join(fmt.Errorf("failed to chmod temporary credential file: %w", err), tmp.Close())
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temporary credential file: %w", err)
	}

	if err := os.Rename(tmpName, local.credentialFile); err != nil {
		return fmt.Errorf("failed to replace credential file %s: %w", local.credentialFile, err)
	}

	return nil
}

func (local *Local) FileExists(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}

	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}

	return false, fmt.Errorf("failed to stat %s: %w", path, err)
}

func (local *Local) Close() error {
	return nil
}
