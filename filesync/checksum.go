package filesync

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const ChecksumStateFile = "checksum.pgbackup"

// Uploads of several files append to the same state file.
var stateMu sync.Mutex

type Checksum struct {
	filePath  string
	stateFile string
}

// NewChecksum tracks filePath in stateFile, by default checksum.pgbackup next to the file.
func NewChecksum(filePath, stateFile string) *Checksum {
	return &Checksum{filePath: filePath, stateFile: stateFile}
}

func (c *Checksum) computeChecksum() (string, error) {
	hasher := sha256.New()

	file, err := os.Open(c.filePath)

	if err != nil {
		return "", fmt.Errorf("fail to open file %s to compute checksum, error: %w", c.filePath, err)
	}

	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			slog.Error("fail to close file", slog.Any("filename", file.Name()), slog.Any("error", closeErr))
		}
	}()

	if _, err := io.Copy(hasher, file); err != nil {
		return "", fmt.Errorf("fail to copy content to hasher, error: %w", err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

func (c *Checksum) getStateFilePath() string {
	if c.stateFile != "" {
		return c.stateFile
	}

	return filepath.Join(filepath.Dir(c.filePath), ChecksumStateFile)
}

func (c *Checksum) IsFileTransferred() (bool, error) {
	checksum, err := c.computeChecksum()
	if err != nil {
		return false, err
	}

	stateMu.Lock()
	defer stateMu.Unlock()

	stateFile, err := os.Open(c.getStateFilePath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}

		return false, fmt.Errorf("fail to open checksum file: %w", err)
	}

	defer func() {
		if closeErr := stateFile.Close(); closeErr != nil {
			slog.Error("fail to close the checksum state file while checking if file has been transferred", slog.Any("error", closeErr))
		}
	}()

	// SHA-256 checksum is always 64 characters in hex format.
	scanner := bufio.NewScanner(stateFile)

	for scanner.Scan() {
		if checksum == strings.TrimSpace(scanner.Text()) {
			return true, nil
		}
	}

	if err := scanner.Err(); err != nil {
		return false, fmt.Errorf("fail to scan file, error: %w", err)
	}

	return false, nil
}

func (c *Checksum) DeleteState() error {
	stateMu.Lock()
	defer stateMu.Unlock()

	err := os.Remove(c.getStateFilePath())

	if err != nil && !os.IsNotExist(err) {
		return err
	}

	return nil
}

func (c *Checksum) SaveState() error {
	checksum, err := c.computeChecksum()
	if err != nil {
		return fmt.Errorf("fail to get checksum while saving, error: %w", err)
	}

	stateMu.Lock()
	defer stateMu.Unlock()

	file, err := os.OpenFile(c.getStateFilePath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)

	if err != nil {
		return fmt.Errorf("fail to open state file while saving, error: %w", err)
	}

	defer func() {
		if err := file.Close(); err != nil {
			slog.Error("fail to close state file while saving", slog.Any("error", err))
		}
	}()

	if _, err = file.WriteString(checksum + "\n"); err != nil {
		return fmt.Errorf("fail to write checksum while saving, error: %w", err)
	}

	return nil
}
