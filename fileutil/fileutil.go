package fileutil

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"
)

// Ensure a file has proper file extension.
func EnsureFileSuffix(filename string, shouldGzip bool) string {
	if !shouldGzip {
		return filename
	}

	fileExt := filepath.Ext(filename)
	if fileExt == ".gz" {
		return filename
	}

	return filename + ".gz"
}

// Ensure a file has unique name when necessary.
func ensureUniqueness(path string, unique bool) string {
	if !unique {
		return path
	}

	dir, filename := filepath.Split(path)

	now := time.Now().UTC().Format("20060102150405")
	filename = now + "-" + filename

	return filepath.Join(dir, filename)
}

func EnsureFileName(path string, shouldGzip, unique bool) string {
	p := EnsureFileSuffix(path, shouldGzip)
	return ensureUniqueness(p, unique)
}

// ListFiles returns the regular files directly under dir whose base name matches
// pattern, sorted. An empty pattern matches everything. Files named exclude are skipped.
func ListFiles(dir, pattern string, exclude ...string) ([]string, error) {
	if pattern == "" {
		pattern = "*"
	}

	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid file pattern %q: %w", pattern, err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("fail to read dir %s, error: %w", dir, err)
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() || slices.Contains(exclude, entry.Name()) {
			continue
		}

		if matched, _ := filepath.Match(pattern, entry.Name()); matched {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}

	slices.Sort(files)

	return files, nil
}
