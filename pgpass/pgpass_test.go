package pgpass

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/liweiyi88/pgbackup/dumper/runner"
	"github.com/liweiyi88/pgbackup/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryFile struct {
	text    string
	missing bool
	readErr error
	writes  int
}

func (m *memoryFile) ReadCredentialText(ctx context.Context) (string, error) {
	if m.readErr != nil {
		return "", m.readErr
	}

	if m.missing {
		return "", fmt.Errorf("open .pgpass: %w", fs.ErrNotExist)
	}

	return m.text, nil
}

func (m *memoryFile) WriteCredentialText(ctx context.Context, text string) error {
	m.writes++
	m.missing = false
	m.text = text
	return nil
}

func TestParseRecord(t *testing.T) {
	assert := assert.New(t)

	record, err := ParseRecord(" 127.0.0.1:5432:sales:postgres:s3cret \n")
	assert.NoError(err)
	assert.Equal(Record{Host: "127.0.0.1", Port: 5432, Database: "sales", User: "postgres", Password: "s3cret"}, record)
	assert.Equal("127.0.0.1:5432:sales:postgres:s3cret", record.String())

	invalid := []string{
		"",
		"127.0.0.1:5432:sales:postgres",
		"127.0.0.1:5432:sales:postgres:pw:extra",
		"127.0.0.1::sales:postgres:pw",
		"127.0.0.1:abc:sales:postgres:pw",
		"127.0.0.1:5432:sales:postgres: ",
	}

	for _, line := range invalid {
		_, err := ParseRecord(line)
		assert.ErrorIs(err, ErrInvalidRecord, line)
	}
}

func TestIsAuthorized(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		text      string
		host      string
		port      int
		databases []string
		expected  bool
	}{
		{
			name:      "wildcard grants everything",
			text:      "127.0.0.1:5432:*:postgres:x\n",
			host:      "127.0.0.1",
			port:      5432,
			databases: []string{"ouru", "postgres", "anything"},
			expected:  true,
		},
		{
			name:      "every database must be listed",
			text:      "10.0.0.5:5432:sales:postgres:x\n10.0.0.5:5432:hr:postgres:x\n",
			host:      "10.0.0.5",
			port:      5432,
			databases: []string{"sales", "hr"},
			expected:  true,
		},
		{
			name:      "one missing database fails closed",
			text:      "10.0.0.5:5432:sales:postgres:x\n",
			host:      "10.0.0.5",
			port:      5432,
			databases: []string{"sales", "hr"},
			expected:  false,
		},
		{
			name:      "other port does not count",
			text:      "10.0.0.5:5433:*:postgres:x\n",
			host:      "10.0.0.5",
			port:      5432,
			databases: []string{"sales"},
			expected:  false,
		},
		{
			name:      "other user does not count",
			text:      "10.0.0.5:5432:*:admin:x\n",
			host:      "10.0.0.5",
			port:      5432,
			databases: []string{"sales"},
			expected:  false,
		},
		{
			name:      "malformed and blank lines are skipped",
			text:      "garbage\n\n10.0.0.5:5432:sales\n10.0.0.5:5432:sales:postgres:x\n",
			host:      "10.0.0.5",
			port:      5432,
			databases: []string{"sales"},
			expected:  true,
		},
		{
			name:      "empty file",
			text:      "",
			host:      "10.0.0.5",
			port:      5432,
			databases: []string{"sales"},
			expected:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewStore(&memoryFile{text: tt.text})

			ok, err := store.IsAuthorized(ctx, tt.host, tt.port, tt.databases)
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, ok)
		})
	}
}

func TestIsAuthorizedUnavailable(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	ok, err := NewStore(&memoryFile{missing: true}).IsAuthorized(ctx, "h", 5432, []string{"sales"})
	assert.False(ok)
	assert.ErrorIs(err, ErrStoreUnavailable)

	readErr := errors.New("permission denied")
	ok, err = NewStore(&memoryFile{readErr: readErr}).IsAuthorized(ctx, "h", 5432, []string{"sales"})
	assert.False(ok)
	assert.ErrorIs(err, readErr)
	assert.NotErrorIs(err, ErrStoreUnavailable)
}

func TestAddAndRemove(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	file := &memoryFile{text: "b:5432:sales:postgres:x\n"}
	store := NewStore(file)

	assert.ErrorIs(store.Add(ctx, "not-a-record"), ErrInvalidRecord)
	assert.Equal(0, file.writes)

	assert.NoError(store.Add(ctx, "a:5432:*:postgres:y"))
	assert.Equal("a:5432:*:postgres:y\nb:5432:sales:postgres:x\n", file.text)

	assert.ErrorIs(store.Add(ctx, "a:5432:*:postgres:y"), ErrDuplicateRecord)
	assert.Equal(1, file.writes)

	records, err := store.List(ctx)
	assert.NoError(err)
	assert.Equal([]string{"a:5432:*:postgres:y", "b:5432:sales:postgres:x"}, records)

	assert.ErrorIs(store.Remove(ctx, "c:5432:sales:postgres:x"), ErrRecordNotFound)
	assert.Equal(1, file.writes)

	assert.NoError(store.Remove(ctx, "b:5432:sales:postgres:x"))
	assert.Equal("a:5432:*:postgres:y\n", file.text)

	assert.NoError(store.Remove(ctx, "a:5432:*:postgres:y"))
	assert.Equal("", file.text)

	records, err = store.List(ctx)
	assert.NoError(err)
	assert.Empty(records)
}

func TestAddAndRemoveCompareNormalizedRecords(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	file := &memoryFile{text: "h:05432:sales:postgres:x\n g : 5432 : * : postgres : y \n"}
	store := NewStore(file)

	ok, err := store.IsAuthorized(ctx, "h", 5432, []string{"sales"})
	assert.NoError(err)
	assert.True(ok)

	assert.ErrorIs(store.Add(ctx, "h:5432:sales:postgres:x"), ErrDuplicateRecord)
	assert.ErrorIs(store.Add(ctx, "g:5432:*:postgres:y"), ErrDuplicateRecord)
	assert.Equal(0, file.writes)

	assert.NoError(store.Remove(ctx, "h:5432:sales:postgres:x"))
	assert.Equal("g : 5432 : * : postgres : y\n", file.text)

	assert.NoError(store.Remove(ctx, "g:05432:*:postgres:y"))
	assert.Equal("", file.text)
}

func TestAddCreatesMissingFile(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	file := &memoryFile{missing: true}
	store := NewStore(file)

	_, err := store.List(ctx)
	assert.ErrorIs(err, ErrStoreUnavailable)
	assert.ErrorIs(store.Remove(ctx, "a:5432:*:postgres:y"), ErrStoreUnavailable)

	assert.NoError(store.Add(ctx, "a:5432:*:postgres:y"))
	assert.Equal("a:5432:*:postgres:y\n", file.text)
}

func TestListDeduplicates(t *testing.T) {
	store := NewStore(&memoryFile{text: "b:1:d:postgres:p\n\na:1:d:postgres:p\nb:1:d:postgres:p\n"})

	records, err := store.List(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, []string{"a:1:d:postgres:p", "b:1:d:postgres:p"}, records)
}

func TestStoreOverLocalTransport(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), ".pgpass")
	store := NewStore(transport.NewLocal(path, runner.PolicyStrict))

	ok, err := store.IsAuthorized(ctx, "127.0.0.1", 5432, []string{"ouru"})
	assert.False(ok)
	assert.ErrorIs(err, ErrStoreUnavailable)

	require.NoError(t, store.Add(ctx, "127.0.0.1:5432:*:postgres:x"))

	ok, err = store.IsAuthorized(ctx, "127.0.0.1", 5432, []string{"ouru", "postgres"})
	assert.NoError(err)
	assert.True(ok)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(os.FileMode(0600), info.Mode().Perm())
}
