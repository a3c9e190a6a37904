package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/liweiyi88/pgbackup/cmd/cmdutil"
	"github.com/liweiyi88/pgbackup/cmd/uploadcmd"
	"github.com/liweiyi88/pgbackup/handler"
	"github.com/liweiyi88/pgbackup/pgpass"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	*cmdutil.Global = cmdutil.Options{}

	out := bytes.NewBufferString("")
	rootCmd.SetOut(out)
	rootCmd.SetErr(out)
	rootCmd.SetArgs(append(args, "--no-progress"))

	err := rootCmd.Execute()
	return out.String(), err
}

func TestPgpassCommands(t *testing.T) {
	credentialFile := filepath.Join(t.TempDir(), ".pgpass")

	_, err := execute(t, "pgpass", "list", "--credential-file", credentialFile)
	assert.ErrorIs(t, err, pgpass.ErrStoreUnavailable)

	out, err := execute(t, "pgpass", "add", "10.0.0.5:5432:*:postgres:secret", "--credential-file", credentialFile)
	require.NoError(t, err)
	assert.Contains(t, out, "record added")

	_, err = execute(t, "pgpass", "add", "10.0.0.5:5432:*:postgres:secret", "--credential-file", credentialFile)
	assert.ErrorIs(t, err, pgpass.ErrDuplicateRecord)

	out, err = execute(t, "pgpass", "list", "--credential-file", credentialFile)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5:5432:*:postgres:secret\n", out)

	info, err := os.Stat(credentialFile)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	_, err = execute(t, "pgpass", "remove", "10.0.0.5:5432:*:postgres:secret", "--credential-file", credentialFile)
	require.NoError(t, err)

	content, err := os.ReadFile(credentialFile)
	require.NoError(t, err)
	assert.Empty(t, content)

	_, err = execute(t, "pgpass", "add", "10.0.0.5:5432", "--credential-file", credentialFile)
	assert.ErrorIs(t, err, pgpass.ErrInvalidRecord)
}

func TestBackupRefusedWithoutCredentials(t *testing.T) {
	dir := t.TempDir()
	credentialFile := filepath.Join(dir, ".pgpass")
	require.NoError(t, os.WriteFile(credentialFile, []byte("10.0.0.6:5432:*:postgres:secret\n"), 0600))

	out, err := execute(t, "backup", "full", "-d", "sales", "--host", "10.0.0.5", "--credential-file", credentialFile)
	assert.ErrorIs(t, err, handler.ErrUnauthorized)
	assert.Contains(t, out, "full backup on 10.0.0.5 failed")
	assert.NoDirExists(t, filepath.Join("backups", "10.0.0.5"))
}

func TestRestoreRefusedWithoutArtifacts(t *testing.T) {
	dir := t.TempDir()
	credentialFile := filepath.Join(dir, ".pgpass")
	require.NoError(t, os.WriteFile(credentialFile, []byte("10.0.0.5:5432:*:postgres:secret\n"), 0600))

	out, err := execute(t, "restore", "-d", "sales", "--source", dir, "--host", "10.0.0.5", "--credential-file", credentialFile)
	assert.ErrorIs(t, err, handler.ErrArtifactMissing)
	assert.Contains(t, out, "restore on 10.0.0.5 failed")
	assert.Contains(t, out, filepath.Join(dir, "sales.gz"))
}

func TestUploadLocal(t *testing.T) {
	source := t.TempDir()
	destination := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(source, "sales.gz"), []byte("sales"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(source, "crm.gz"), []byte("crm"), 0644))

	out, err := execute(t, "upload", "local", "--path", destination, "--dir", source)
	require.NoError(t, err)
	assert.Contains(t, out, "2 succeeded, 0 failed")

	content, err := os.ReadFile(filepath.Join(destination, "sales.gz"))
	require.NoError(t, err)
	assert.Equal(t, "sales", string(content))
	assert.FileExists(t, filepath.Join(destination, "crm.gz"))
}

func TestUploadWithoutStorage(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "pgbackup.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte("hosts:\n- host: 10.0.0.5\n  databases: [sales]\n"), 0644))

	_, err := execute(t, "upload", "--config", configFile)
	assert.ErrorIs(t, err, uploadcmd.ErrNoStorage)
}

func TestBackupTableRejectsOperation(t *testing.T) {
	credentialFile := filepath.Join(t.TempDir(), ".pgpass")

	out, err := execute(t, "backup", "table", "--db", "sales", "--table", "orders", "--operation", "everything", "--host", "10.0.0.5", "--credential-file", credentialFile)
	assert.ErrorIs(t, err, handler.ErrUnsupportedOperation)
	assert.Contains(t, out, "table-all backup on 10.0.0.5 failed")
}
