package filesync

import (
	"fmt"
	"log/slog"
)

type FileSync struct {
	SaveChecksum bool
	checksumFile string
}

func NewFileSync(saveChecksum bool, checksumFile string) *FileSync {
	return &FileSync{
		SaveChecksum: saveChecksum,
		checksumFile: checksumFile,
	}
}

func (fs *FileSync) HasSynced(filename string) (bool, error) {
	synced, err := NewChecksum(filename, fs.checksumFile).IsFileTransferred()

	if err != nil {
		return false, fmt.Errorf("fail to check if %s has been transferred, error: %w", filename, err)
	}

	return synced, nil
}

// SyncFile calls syncFunc unless the file content was already transferred.
// It reports whether syncFunc ran.
func (fs *FileSync) SyncFile(filename string, syncFunc func() error) (bool, error) {
	fileChecksum := NewChecksum(filename, fs.checksumFile)

	if fs.SaveChecksum {
		transferred, err := fileChecksum.IsFileTransferred()
		if err != nil {
			return false, err
		}

		if transferred {
			slog.Debug("[filesync] the file has already been transferred", slog.Any("filename", filename))
			return false, nil
		}
	}

	if err := syncFunc(); err != nil {
		return true, err
	}

	if fs.SaveChecksum {
		if err := fileChecksum.SaveState(); err != nil {
			return true, fmt.Errorf("fail to save the checksum state file for %s, error: %w", filename, err)
		}
	}

	return true, nil
}
