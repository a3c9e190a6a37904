package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"path"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/liweiyi88/pgbackup/dumper/dialer"
	"github.com/liweiyi88/pgbackup/dumper/runner"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

const (
	defaultPoolSize             = 5
	defaultRemoteCredentialFile = ".pgpass"
	posixRenameExtension        = "posix-rename@openssh.com"
)

type RemoteTarget struct {
	Host     string
	Port     int
	User     string
	Password string
	Key      string
}

// Validate rejects targets that point at the local machine or lack credentials.
func (target RemoteTarget) Validate() error {
	var errs error

	host := strings.TrimSpace(target.Host)
	switch host {
	case "":
		errs = errors.Join(errs, fmt.Errorf("%w: host is required", ErrInvalidTarget))
	case "localhost", "127.0.0.1", "::1":
		errs = errors.Join(errs, fmt.Errorf("%w: %s is not a remote host", ErrInvalidTarget, host))
	}

	if target.Port <= 0 || target.Port > 65535 {
		errs = errors.Join(errs, fmt.Errorf("%w: port %d is out of range", ErrInvalidTarget, target.Port))
	}

	if strings.TrimSpace(target.User) == "" {
		errs = errors.Join(errs, fmt.Errorf("%w: user is required", ErrInvalidTarget))
	}

	if target.Password == "" && strings.TrimSpace(target.Key) == "" {
		errs = errors.Join(errs, fmt.Errorf("%w: password or private key is required", ErrInvalidTarget))
	}

	return errs
}

func (target RemoteTarget) Addr() string {
	return net.JoinHostPort(target.Host, strconv.Itoa(target.Port))
}

type RemoteOption func(remote *Remote)

// WithPoolSize sets the maximum number of ssh connections, one per concurrent worker.
func WithPoolSize(size int) RemoteOption {
	return func(remote *Remote) {
		if size > 0 {
			remote.poolSize = size
		}
	}
}

func WithPolicy(policy runner.Policy) RemoteOption {
	return func(remote *Remote) {
		remote.policy = policy
	}
}

// WithCredentialFile overrides the remote credential file, relative paths resolve from the user's home.
func WithCredentialFile(file string) RemoteOption {
	return func(remote *Remote) {
		if file != "" {
			remote.credentialFile = file
		}
	}
}

// WithSkipValidation allows loopback targets, used by tests against an in-process server.
func WithSkipValidation() RemoteOption {
	return func(remote *Remote) {
		remote.skipValidation = true
	}
}

type Remote struct {
	target         RemoteTarget
	dialer         *dialer.Ssh
	policy         runner.Policy
	credentialFile string
	poolSize       int
	skipValidation bool

	slots chan struct{}
	idle  chan *ssh.Client

	mu      sync.Mutex
	clients []*ssh.Client
	closed  bool
}

// NewRemote validates the target and dials the first connection so that
// authentication problems surface before any job is dispatched.
func NewRemote(ctx context.Context, target RemoteTarget, opts ...RemoteOption) (*Remote, error) {
	remote := &Remote{
		target:         target,
		policy:         runner.PolicyStrict,
		credentialFile: defaultRemoteCredentialFile,
		poolSize:       defaultPoolSize,
	}

	for _, opt := range opts {
		opt(remote)
	}

	if !remote.skipValidation {
		if err := target.Validate(); err != nil {
			return nil, err
		}
	}

	sshOpts := make([]dialer.Option, 0, 2)
	if target.Password != "" {
		sshOpts = append(sshOpts, dialer.WithPassword(target.Password))
	}

	if strings.TrimSpace(target.Key) != "" {
		sshOpts = append(sshOpts, dialer.WithKey(target.Key))
	}

	remote.dialer = dialer.NewSsh(target.Addr(), target.User, sshOpts...)
	remote.slots = make(chan struct{}, remote.poolSize)
	remote.idle = make(chan *ssh.Client, remote.poolSize)

	client, err := remote.dial(ctx)
	if err != nil {
		return nil, errors.Join(err, remote.Close())
	}

	remote.idle <- client

	return remote, nil
}

func (remote *Remote) Host() string {
	return remote.target.Host
}

func (remote *Remote) CredentialFile() string {
	return remote.credentialFile
}

// Size returns the number of connections opened so far.
func (remote *Remote) Size() int {
	remote.mu.Lock()
	defer remote.mu.Unlock()
	return len(remote.clients)
}

func (remote *Remote) dial(ctx context.Context) (*ssh.Client, error) {
	client, err := remote.dialer.CreateSshClient(ctx)
	if err != nil {
		return nil, err
	}

	remote.mu.Lock()
	defer remote.mu.Unlock()

	if remote.closed {
		return nil, errors.Join(ErrClosed, client.Close())
	}

	remote.clients = append(remote.clients, client)
	slog.Debug("[transport] opened ssh connection", slog.String("host", remote.target.Host), slog.Int("connections", len(remote.clients)))

	return client, nil
}

// acquire hands out an idle connection or dials a new one while the pool has room.
func (remote *Remote) acquire(ctx context.Context) (*ssh.Client, error) {
	select {
	case remote.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case client := <-remote.idle:
		return client, nil
	default:
	}

	client, err := remote.dial(ctx)
	if err != nil {
		<-remote.slots
		return nil, err
	}

	return client, nil
}

func (remote *Remote) release(client *ssh.Client) {
	remote.idle <- client
	<-remote.slots
}

// discard closes a broken connection and drops it from the pool, its slot stays taken.
func (remote *Remote) discard(client *ssh.Client) {
	remote.mu.Lock()
	remote.clients = slices.DeleteFunc(remote.clients, func(c *ssh.Client) bool { return c == client })
	remote.mu.Unlock()

	if err := client.Close(); err != nil {
		slog.Debug("[transport] fail to close broken ssh connection", slog.Any("error", err))
	}
}

// open acquires a connection and calls start on it. A connection that cannot
// start is dropped and redialed once, the slot is freed when that fails too.
func open[T any](ctx context.Context, remote *Remote, start func(client *ssh.Client) (T, error)) (*ssh.Client, T, error) {
	var zero T

	client, err := remote.acquire(ctx)
	if err != nil {
		return nil, zero, err
	}

	value, err := start(client)
	if err == nil {
		return client, value, nil
	}

	slog.Warn("[transport] ssh connection broken, redialing", slog.String("host", remote.target.Host), slog.Any("error", err))
	remote.discard(client)

	client, err = remote.dial(ctx)
	if err != nil {
		<-remote.slots
		return nil, zero, err
	}

	value, err = start(client)
	if err != nil {
		remote.discard(client)
		<-remote.slots
		return nil, zero, err
	}

	return client, value, nil
}

func (remote *Remote) withSftp(ctx context.Context, fn func(client *sftp.Client) error) error {
	sshClient, client, err := open(ctx, remote, func(c *ssh.Client) (*sftp.Client, error) {
		return sftp.NewClient(c)
	})

	if err != nil {
		return fmt.Errorf("failed to create sftp client: %w", err)
	}

	defer remote.release(sshClient)

	defer func() {
		if err := client.Close(); err != nil {
			slog.Debug("[transport] fail to close sftp client", slog.Any("error", err))
		}
	}()

	return fn(client)
}

func (remote *Remote) EnsureDirectory(ctx context.Context, dir string) error {
	return remote.withSftp(ctx, func(client *sftp.Client) error {
		if err := client.MkdirAll(dir); err != nil {
			return fmt.Errorf("failed to create remote directory %s: %w", dir, err)
		}

		return nil
	})
}

func (remote *Remote) Run(ctx context.Context, command string) runner.Result {
	client, session, err := open(ctx, remote, func(c *ssh.Client) (*ssh.Session, error) {
		return c.NewSession()
	})

	if err != nil {
		return runner.Result{Error: fmt.Sprintf("failed to start ssh session: %v", err)}
	}

	defer remote.release(client)

	return runner.RunSession(ctx, session, remote.policy, command)
}

func (remote *Remote) ReadCredentialText(ctx context.Context) (string, error) {
	var text string

	err := remote.withSftp(ctx, func(client *sftp.Client) error {
		file, err := client.Open(remote.credentialFile)
		if err != nil {
			return fmt.Errorf("failed to open remote credential file %s: %w", remote.credentialFile, err)
		}

		defer func() {
			_ = file.Close()
		}()

		content, err := io.ReadAll(file)
		if err != nil {
			return fmt.Errorf("failed to read remote credential file %s: %w", remote.credentialFile, err)
		}

		text = string(content)
		return nil
	})

	return text, err
}

// WriteCredentialText uploads to a temporary file and renames it over the credential file.
func (remote *Remote) WriteCredentialText(ctx context.Context, text string) error {
	return remote.withSftp(ctx, func(client *sftp.Client) error {
		if dir := path.Dir(remote.credentialFile); dir != "." {
			if err := client.MkdirAll(dir); err != nil {
				return fmt.Errorf("failed to create remote directory %s: %w", dir, err)
			}
		}

		tmpName := remote.credentialFile + ".tmp"

		file, err := client.OpenFile(tmpName, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
		if err != nil {
			return fmt.Errorf("failed to create remote temporary file %s: %w", tmpName, err)
		}

		if _, err := file.Write([]byte(text)); err != nil {
			return errors.Join(fmt.Errorf("failed to write remote temporary file: %w", err), file.Close(), client.Remove(tmpName))
		}

		if err := file.Chmod(credentialFileMode); err != nil {
			return errors.Join(fmt.Errorf("failed to chmod remote temporary file: %w", err), file.Close(), client.Remove(tmpName))
		}

		if err := file.Close(); err != nil {
			return errors.Join(fmt.Errorf("failed to close remote temporary file: %w", err), client.Remove(tmpName))
		}

		return replaceFile(client, tmpName, remote.credentialFile)
	})
}

type renamer interface {
	HasExtension(name string) (string, bool)
	PosixRename(oldname, newname string) error
	Rename(oldname, newname string) error
	Remove(path string) error
}

// replaceFile moves tmpName over target. Without the posix-rename extension a
// plain rename refuses to overwrite, so the old file is moved aside and restored on failure.
func replaceFile(client renamer, tmpName, target string) error {
	if _, ok := client.HasExtension(posixRenameExtension); ok {
		if err := client.PosixRename(tmpName, target); err != nil {
			return errors.Join(fmt.Errorf("failed to replace remote credential file %s: %w", target, err), client.Remove(tmpName))
		}

		return nil
	}

	backup := target + ".bak"
	movedAside := true

	if err := client.Rename(target, backup); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return errors.Join(fmt.Errorf("failed to move remote credential file aside: %w", err), client.Remove(tmpName))
		}

		movedAside = false
	}

	if err := client.Rename(tmpName, target); err != nil {
		err = fmt.Errorf("failed to replace remote credential file %s: %w", target, err)
		if movedAside {
			err = errors.Join(err, client.Rename(backup, target))
		}

		return errors.Join(err, client.Remove(tmpName))
	}

	if movedAside {
		if err := client.Remove(backup); err != nil {
			slog.Warn("[transport] fail to remove the old remote credential file", slog.String("file", backup), slog.Any("error", err))
		}
	}

	return nil
}

func (remote *Remote) FileExists(ctx context.Context, filePath string) (bool, error) {
	exists := false

	err := remote.withSftp(ctx, func(client *sftp.Client) error {
		_, err := client.Stat(filePath)
		if err == nil {
			exists = true
			return nil
		}

		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}

		return fmt.Errorf("failed to stat remote file %s: %w", filePath, err)
	})

	return exists, err
}

func (remote *Remote) Close() error {
	remote.mu.Lock()
	defer remote.mu.Unlock()

	if remote.closed {
		return nil
	}

	remote.closed = true

	closers := make([]io.Closer, 0, len(remote.clients))
	for _, client := range remote.clients {
		closers = append(closers, client)
	}

	remote.clients = nil

	return NewMultiCloser(closers).Close()
}
