package s3

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewS3(t *testing.T) {
	assert := assert.New(t)

	s3 := NewS3("pgbackup", "/backup/sales.gz", "ap-southeast-2", "accessKey", "secret", "token")

	assert.Equal("pgbackup", s3.Bucket)
	assert.Equal("/backup/sales.gz", s3.Key)
	assert.Equal("ap-southeast-2", s3.Region)
	assert.Equal("accessKey", s3.AccessKeyId)
	assert.Equal("secret", s3.SecretAccessKey)
	assert.Equal("token", s3.SessionToken)
}

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[r.URL.Path] = string(body)
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		content, ok := f.objects[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>not found</Message></Error>`)
			return
		}

		_, _ = io.WriteString(w, content)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestSaveAndGetContent(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	fake := &fakeS3{objects: make(map[string]string)}
	server := httptest.NewServer(fake)
	defer server.Close()

	s3 := NewS3("pgbackup", "backups", "ap-southeast-2", "none", "none", "")
	s3.Endpoint = server.URL

	err := s3.Save(ctx, strings.NewReader("hello s3"), func(filename string) string {
		return filename + "/10.0.0.5/sales.gz"
	})
	assert.NoError(err)

	fake.mu.Lock()
	body, ok := fake.objects["/pgbackup/backups/10.0.0.5/sales.gz"]
	fake.mu.Unlock()

	assert.True(ok)
	assert.Contains(body, "hello s3")

	fake.mu.Lock()
	fake.objects["/pgbackup/config.yaml"] = "backuproot: /bk"
	fake.mu.Unlock()

	s3.Key = "config.yaml"
	content, err := s3.GetContent(ctx)
	assert.NoError(err)
	assert.Equal("backuproot: /bk", string(content))

	s3.Key = "missing.yaml"
	_, err = s3.GetContent(ctx)
	assert.ErrorContains(err, "unable to fetch s3 content")
}
