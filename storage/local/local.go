package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/liweiyi88/pgbackup/storage"
)

type Local struct {
	Path string `yaml:"path"`
}

func NewLocal(path string) *Local {
	return &Local{Path: path}
}

func (local *Local) Save(ctx context.Context, reader io.Reader, pathGenerator storage.PathGeneratorFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path := pathGenerator(local.Path)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create local dir: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create local backup file: %w", err)
	}

	if _, err = io.Copy(file, reader); err != nil {
		return errors.Join(fmt.Errorf("failed to copy backup file to the dest file: %w", err), file.Close())
	}

	return file.Close()
}
