package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/liweiyi88/pgbackup/executor"
	"github.com/liweiyi88/pgbackup/filesync"
	"github.com/liweiyi88/pgbackup/fileutil"
	"github.com/liweiyi88/pgbackup/jobresult"
	"github.com/liweiyi88/pgbackup/storage"
)

var ErrNoArtifact = errors.New("no backup artifact found")

type UploadOption func(handler *UploadHandler)

// WithPattern only uploads files whose name matches the glob pattern.
func WithPattern(pattern string) UploadOption {
	return func(handler *UploadHandler) {
		handler.pattern = pattern
	}
}

// WithChecksum skips files whose content was already uploaded, tracked in checksumFile.
func WithChecksum(checksumFile string) UploadOption {
	return func(handler *UploadHandler) {
		handler.fileSync = filesync.NewFileSync(true, checksumFile)
		handler.checksumFile = checksumFile
	}
}

// WithUnique prefixes every uploaded name with a UTC timestamp.
func WithUnique(unique bool) UploadOption {
	return func(handler *UploadHandler) {
		handler.unique = unique
	}
}

func WithUploadWorkers(workers int) UploadOption {
	return func(handler *UploadHandler) {
		handler.workers = workers
	}
}

func WithUploadLogger(logger *slog.Logger) UploadOption {
	return func(handler *UploadHandler) {
		handler.logger = logger
	}
}

func WithUploadProgress(progress func(result *jobresult.JobResult)) UploadOption {
	return func(handler *UploadHandler) {
		handler.progress = progress
	}
}

// UploadHandler copies the artifacts of a local backup directory to off-site storage.
type UploadHandler struct {
	storage  storage.Storage
	fileSync *filesync.FileSync
	// checksumFile is never uploaded when it lives in the uploaded dir.
	checksumFile string
	pattern      string
	unique       bool
	workers      int
	logger       *slog.Logger
	progress     func(result *jobresult.JobResult)
}

func NewUploadHandler(s storage.Storage, opts ...UploadOption) *UploadHandler {
	handler := &UploadHandler{
		storage:  s,
		fileSync: filesync.NewFileSync(false, ""),
		workers:  executor.DefaultMaxWorkers,
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		opt(handler)
	}

	return handler
}

func (handler *UploadHandler) uploadFile(ctx context.Context, job *jobresult.Job) (string, error) {
	name := fileutil.EnsureFileName(filepath.Base(job.TargetFile), false, handler.unique)

	ran, err := handler.fileSync.SyncFile(job.TargetFile, func() error {
		file, err := os.Open(job.TargetFile)
		if err != nil {
			return fmt.Errorf("fail to open the source file: %s, error: %w", job.TargetFile, err)
		}

		defer func() {
			if err := file.Close(); err != nil {
				handler.logger.Error("fail to close the source file", slog.Any("error", err))
			}
		}()

		return handler.storage.Save(ctx, file, func(destination string) string {
			return path.Join(destination, name)
		})
	})

	if err != nil {
		return "", err
	}

	if !ran {
		return "skipped, already uploaded", nil
	}

	handler.logger.Info("file uploaded", slog.String("file", job.TargetFile), slog.String("name", name))
	return "uploaded as " + name, nil
}

// Upload sends every matching file of dir, several at a time.
func (handler *UploadHandler) Upload(ctx context.Context, dir string) *jobresult.Report {
	report := jobresult.NewReport(jobresult.OperationUpload, filepath.Base(dir))

	exclude := []string{filesync.ChecksumStateFile}
	if handler.checksumFile != "" {
		exclude = append(exclude, filepath.Base(handler.checksumFile))
	}

	files, err := fileutil.ListFiles(dir, handler.pattern, exclude...)
	if err != nil {
		return report.Fail(fmt.Errorf("%w: %w", ErrArtifactMissing, err))
	}

	// State files of other storages share the checksum.pgbackup prefix.
	files = slices.DeleteFunc(files, func(file string) bool {
		return strings.HasPrefix(filepath.Base(file), filesync.ChecksumStateFile)
	})

	if len(files) == 0 {
		return report.Fail(fmt.Errorf("%w: %w in %s", ErrArtifactMissing, ErrNoArtifact, dir))
	}

	jobs := make([]*jobresult.Job, 0, len(files))
	for _, file := range files {
		jobs = append(jobs, &jobresult.Job{
			Operation:  jobresult.OperationUpload,
			TargetFile: file,
		})
	}

	opts := make([]executor.Option, 0, 1)
	if handler.progress != nil {
		opts = append(opts, executor.WithOnResult(handler.progress))
	}

	return report.Finish(executor.New(handler.workers, opts...).RunAll(ctx, jobs, handler.uploadFile))
}
