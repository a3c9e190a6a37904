package sftp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path"
	"time"

	"github.com/k0kubun/go-ansi"
	"github.com/liweiyi88/pgbackup/dumper/dialer"
	"github.com/liweiyi88/pgbackup/storage"
	"github.com/schollz/progressbar/v3"

	sftpdialer "github.com/pkg/sftp"
)

var (
	BaseDelay = 5 * time.Second

	ErrNotRetryable = errors.New("error not retryable")
)

type Result struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error"`
	Written int64  `json:"written"`
}

type Sftp struct {
	MaxAttempts int    `yaml:"maxattempts"` // by default it is 0, infinite retries
	Path        string `yaml:"path"`
	SshHost     string `yaml:"sshhost"`
	SshUser     string `yaml:"sshuser"`
	SshKey      string `yaml:"sshkey"`
	SshPassword string `yaml:"sshpassword"`
	Progress    bool   `yaml:"progress"`
}

func NewSftp(maxAttempts int, path, sshHost, sshUser, sshKey string) *Sftp {
	return &Sftp{
		MaxAttempts: maxAttempts,
		Path:        path,
		SshHost:     sshHost,
		SshUser:     sshUser,
		SshKey:      sshKey,
	}
}

func createProgressBar(maxBytes int64) *progressbar.ProgressBar {
	bar := progressbar.NewOptions64(maxBytes,
		progressbar.OptionSetWriter(ansi.NewAnsiStdout()),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(25),
		progressbar.OptionSetDescription("[cyan][reset] SFTP uploading..."),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}))

	return bar
}

func (sf *Sftp) dialer() *dialer.Ssh {
	opts := make([]dialer.Option, 0, 2)
	if sf.SshKey != "" {
		opts = append(opts, dialer.WithKey(sf.SshKey))
	}

	if sf.SshPassword != "" {
		opts = append(opts, dialer.WithPassword(sf.SshPassword))
	}

	return dialer.NewSsh(sf.SshHost, sf.SshUser, opts...)
}

func (sf *Sftp) write(ctx context.Context, reader io.Reader, destination string, offset int64) (int64, error) {
	var progress io.Writer = io.Discard

	if sf.Progress {
		maxBytes := int64(-1)

		// Checking if reader is a file so we can set the size of progress bar
		if file, ok := reader.(*os.File); ok {
			if info, err := file.Stat(); err == nil {
				maxBytes = info.Size()
			}
		}

		bar := createProgressBar(maxBytes)
		_ = bar.Add64(offset)
		progress = bar
	}

	// Try to resume the file transfer if reader is also a seeker and offset is greater than 0
	if seeker, ok := reader.(io.ReadSeeker); ok && offset > 0 {
		if _, err := seeker.Seek(offset, io.SeekStart); err != nil {
			return 0, fmt.Errorf("failed to seek to offset %d: %v, %w", offset, err, ErrNotRetryable)
		}
	}

	conn, err := sf.dialer().CreateSshClient(ctx)
	if err != nil {
		if errors.Is(err, dialer.ErrMissingAuth) {
			return 0, fmt.Errorf("%w, %w", err, ErrNotRetryable)
		}

		return 0, fmt.Errorf("fail to create ssh connection, error: %w", err)
	}

	defer func() {
		if err := conn.Close(); err != nil {
			slog.Debug("fail to close ssh connection", slog.Any("error", err))
		}
	}()

	client, err := sftpdialer.NewClient(conn)
	if err != nil {
		return 0, err
	}

	defer func() {
		if err := client.Close(); err != nil {
			slog.Debug("fail to close sftp connection", slog.Any("error", err))
		}
	}()

	if err := client.MkdirAll(path.Dir(destination)); err != nil {
		return 0, fmt.Errorf("fail to create remote dir via SFTP, error: %w", err)
	}

	var file *sftpdialer.File

	if offset > 0 {
		if file, err = client.OpenFile(destination, os.O_WRONLY|os.O_APPEND); err != nil {
			return 0, fmt.Errorf("fail to open remote file via SFTP, error: %w", err)
		}
	} else {
		if file, err = client.Create(destination); err != nil {
			return 0, fmt.Errorf("fail to create remote file via SFTP, error: %w", err)
		}
	}

	defer func() {
		if err := file.Close(); err != nil {
			slog.Error("fail to close sftp file", slog.Any("error", err))
		}
	}()

	return io.Copy(io.MultiWriter(file, progress), reader)
}

// Save uploads reader and resumes from the bytes already written when a
// transfer breaks, with exponential backoff between attempts.
func (sf *Sftp) Save(ctx context.Context, reader io.Reader, pathGenerator storage.PathGeneratorFunc) error {
	_, err := sf.SaveWithResult(ctx, reader, pathGenerator)
	return err
}

func (sf *Sftp) SaveWithResult(ctx context.Context, reader io.Reader, pathGenerator storage.PathGeneratorFunc) (Result, error) {
	destination := pathGenerator(sf.Path)

	var written int64
	attempts := 0

	for {
		n, err := sf.write(ctx, reader, destination, written)
		written += n

		// Contents have been saved properly, just return
		if err == nil {
			return Result{OK: true, Written: written}, nil
		}

		if errors.Is(err, ErrNotRetryable) {
			return Result{Written: written, Error: err.Error()}, err
		}

		if sf.MaxAttempts > 0 && attempts >= sf.MaxAttempts {
			return Result{Written: written, Error: "reached max retries"}, fmt.Errorf("failed after %d attempts: %w", sf.MaxAttempts, err)
		}

		delay := time.Duration(math.Min(
			float64(BaseDelay*(1<<attempts)),
			float64(1*time.Minute),
		))

		slog.Info(fmt.Sprintf("retry after %0.f seconds", delay.Seconds()))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return Result{Written: written, Error: ctx.Err().Error()}, errors.Join(ctx.Err(), err)
		}

		attempts++
		slog.Info("retrying upload", slog.Int("attempt", attempts), slog.Any("error", err))
	}
}
