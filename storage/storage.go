package storage

import (
	"context"
	"io"
)

// PathGeneratorFunc maps the configured destination to the final object path.
type PathGeneratorFunc func(filename string) string

type Storage interface {
	Save(ctx context.Context, reader io.Reader, pathGenerator PathGeneratorFunc) error
}
