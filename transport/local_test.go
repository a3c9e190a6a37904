package transport

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/liweiyi88/pgbackup/dumper/runner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCredentialFile(t *testing.T) {
	t.Setenv("PGPASSFILE", "/tmp/custom.pgpass")
	assert.Equal(t, "/tmp/custom.pgpass", DefaultCredentialFile())

	t.Setenv("PGPASSFILE", "")
	assert.Equal(t, ".pgpass", filepath.Base(DefaultCredentialFile()))
}

func TestLocalEnsureDirectory(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	local := NewLocal(filepath.Join(t.TempDir(), ".pgpass"), runner.PolicyStrict)
	dir := filepath.Join(t.TempDir(), "backups", "127.0.0.1")

	assert.NoError(local.EnsureDirectory(ctx, dir))
	assert.NoError(local.EnsureDirectory(ctx, dir))

	exists, err := local.FileExists(ctx, dir)
	assert.NoError(err)
	assert.True(exists)

	exists, err = local.FileExists(ctx, filepath.Join(dir, "sales.gz"))
	assert.NoError(err)
	assert.False(exists)
}

func TestLocalCredentialText(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	file := filepath.Join(t.TempDir(), "nested", ".pgpass")
	local := NewLocal(file, runner.PolicyStrict)
	assert.Equal(file, local.CredentialFile())

	_, err := local.ReadCredentialText(ctx)
	assert.ErrorIs(err, os.ErrNotExist)

	require.NoError(t, local.WriteCredentialText(ctx, "127.0.0.1:5432:*:postgres:x\n"))

	text, err := local.ReadCredentialText(ctx)
	assert.NoError(err)
	assert.Equal("127.0.0.1:5432:*:postgres:x\n", text)

	info, err := os.Stat(file)
	require.NoError(t, err)
	assert.Equal(os.FileMode(0600), info.Mode().Perm())

	require.NoError(t, local.WriteCredentialText(ctx, "h:5432:sales:postgres:y\n"))
	text, err = local.ReadCredentialText(ctx)
	assert.NoError(err)
	assert.Equal("h:5432:sales:postgres:y\n", text)

	entries, err := os.ReadDir(filepath.Dir(file))
	assert.NoError(err)
	assert.Len(entries, 1)
}

func TestLocalRun(t *testing.T) {
	assert := assert.New(t)

	local := NewLocal("", runner.PolicyStrict)
	result := local.Run(context.Background(), "echo hello")
	assert.True(result.Succeeded)
	assert.Equal("hello\n", result.Output)

	result = local.Run(context.Background(), "echo warn >&2")
	assert.False(result.Succeeded)

	assert.NoError(local.Close())
}

func TestLocalCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	local := NewLocal(filepath.Join(t.TempDir(), ".pgpass"), runner.PolicyStrict)
	assert.ErrorIs(t, local.EnsureDirectory(ctx, t.TempDir()), context.Canceled)

	_, err := local.ReadCredentialText(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
