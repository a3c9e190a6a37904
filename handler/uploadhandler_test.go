package handler

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/liweiyi88/pgbackup/jobresult"
	"github.com/liweiyi88/pgbackup/storage"
	"github.com/liweiyi88/pgbackup/storage/local"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStorage struct {
	mu      sync.Mutex
	objects map[string]string
	fail    string
}

func (m *memoryStorage) Save(ctx context.Context, reader io.Reader, pathGenerator storage.PathGeneratorFunc) error {
	key := pathGenerator("offsite")
	if m.fail != "" && strings.HasSuffix(key, m.fail) {
		return errors.New("bucket is full")
	}

	content, err := io.ReadAll(reader)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = string(content)

	return nil
}

func writeArtifacts(t *testing.T, names ...string) string {
	t.Helper()

	dir := filepath.Join(t.TempDir(), "10.0.0.5")
	require.NoError(t, os.MkdirAll(dir, 0755))

	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("content of "+name), 0644))
	}

	return dir
}

func TestUpload(t *testing.T) {
	assert := assert.New(t)

	dir := writeArtifacts(t, "sales.gz", "hr.gz", "sales_data.sql")
	memory := &memoryStorage{objects: make(map[string]string)}

	report := NewUploadHandler(memory, WithPattern("*.gz"), WithUploadLogger(quietLogger)).Upload(context.Background(), dir)

	assert.Equal(jobresult.StatusCompleted, report.Status())
	assert.Equal("10.0.0.5", report.Host)
	assert.Len(report.Results, 2)
	assert.Equal(map[string]string{
		"offsite/sales.gz": "content of sales.gz",
		"offsite/hr.gz":    "content of hr.gz",
	}, memory.objects)
}

func TestUploadSkipsTransferredFiles(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	dir := writeArtifacts(t, "sales.gz", "hr.gz")
	memory := &memoryStorage{objects: make(map[string]string), fail: "hr.gz"}

	handler := NewUploadHandler(memory, WithChecksum(""), WithUploadLogger(quietLogger))

	report := handler.Upload(ctx, dir)
	assert.Equal(jobresult.StatusCompletedWithErrors, report.Status())

	memory.fail = ""
	memory.objects = make(map[string]string)

	report = handler.Upload(ctx, dir)
	assert.Equal(jobresult.StatusCompleted, report.Status())
	assert.Equal(map[string]string{"offsite/hr.gz": "content of hr.gz"}, memory.objects)

	outputs := make([]string, 0)
	for _, result := range report.Results {
		outputs = append(outputs, result.Output)
	}

	assert.ElementsMatch([]string{"skipped, already uploaded", "uploaded as hr.gz"}, outputs)
}

func TestUploadMissingArtifacts(t *testing.T) {
	assert := assert.New(t)

	memory := &memoryStorage{objects: make(map[string]string)}
	handler := NewUploadHandler(memory, WithUploadLogger(quietLogger))

	report := handler.Upload(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(report.Error, ErrArtifactMissing)

	report = handler.Upload(context.Background(), writeArtifacts(t))
	assert.ErrorIs(report.Error, ErrNoArtifact)
}

func TestUploadToLocalStorage(t *testing.T) {
	assert := assert.New(t)

	dir := writeArtifacts(t, "sales.gz")
	destination := filepath.Join(t.TempDir(), "copy")

	var progressed int
	report := NewUploadHandler(local.NewLocal(destination),
		WithUnique(true),
		WithUploadWorkers(1),
		WithUploadLogger(quietLogger),
		WithUploadProgress(func(result *jobresult.JobResult) { progressed++ }),
	).Upload(context.Background(), dir)

	assert.Equal(jobresult.StatusCompleted, report.Status())
	assert.Equal(1, progressed)

	entries, err := os.ReadDir(destination)
	assert.NoError(err)
	require.Len(t, entries, 1)
	assert.True(strings.HasSuffix(entries[0].Name(), "-sales.gz"))
}

func TestUploadIgnoresChecksumStateFiles(t *testing.T) {
	dir := writeArtifacts(t, "sales.gz", "checksum.pgbackup", "checksum.pgbackup.0", "state.txt")
	memory := &memoryStorage{objects: make(map[string]string)}

	handler := NewUploadHandler(memory, WithChecksum(filepath.Join(dir, "state.txt")), WithUploadLogger(quietLogger))
	report := handler.Upload(context.Background(), dir)

	assert.Equal(t, jobresult.StatusCompleted, report.Status())
	assert.Equal(t, map[string]string{"offsite/sales.gz": "content of sales.gz"}, memory.objects)
}
