package transport

import (
	"context"
	"errors"
	"io"

	"github.com/liweiyi88/pgbackup/dumper/runner"
)

var (
	ErrInvalidTarget = errors.New("invalid remote target")
	ErrClosed        = errors.New("transport is closed")
)

// Transport abstracts where commands run and where the credential file lives.
type Transport interface {
	EnsureDirectory(ctx context.Context, dir string) error
	Run(ctx context.Context, command string) runner.Result
	ReadCredentialText(ctx context.Context) (string, error)
	WriteCredentialText(ctx context.Context, text string) error
	FileExists(ctx context.Context, path string) (bool, error)
	Host() string
	io.Closer
}

type MultiCloser struct {
	closers []io.Closer
}

func NewMultiCloser(closers []io.Closer) *MultiCloser {
	return &MultiCloser{
		closers: closers,
	}
}

func (m *MultiCloser) Close() error {
	var err error
	for _, c := range m.closers {
		if e := c.Close(); e != nil {
			err = errors.Join(err, e)
		}
	}
	return err
}
