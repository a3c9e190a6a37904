package dialer

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
)

const defaultTimeout = 30 * time.Second

var ErrMissingAuth = errors.New("ssh password or private key is required")

type Ssh struct {
	host     string
	user     string
	password string
	key      string
	timeout  time.Duration
}

type Option func(s *Ssh)

func WithPassword(password string) Option {
	return func(s *Ssh) {
		s.password = password
	}
}

// The key can be the raw PEM content, its base64 encoding or a private key file path.
func WithKey(key string) Option {
	return func(s *Ssh) {
		s.key = key
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(s *Ssh) {
		s.timeout = timeout
	}
}

func NewSsh(host, user string, opts ...Option) *Ssh {
	s := &Ssh{
		host:    host,
		user:    user,
		timeout: defaultTimeout,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func ensureHaveSSHPort(addr string) string {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return net.JoinHostPort(addr, "22")
	}
	return addr
}

func resolveKey(key string) []byte {
	if _, err := os.Stat(key); err == nil {
		if content, err := os.ReadFile(key); err == nil {
			return content
		}
	}

	if decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(key)); err == nil {
		return decoded
	}

	return []byte(key)
}

func (s *Ssh) authMethods() ([]ssh.AuthMethod, error) {
	methods := make([]ssh.AuthMethod, 0, 2)

	if strings.TrimSpace(s.key) != "" {
		signer, err := ssh.ParsePrivateKey(resolveKey(s.key))
		if err != nil {
			return nil, fmt.Errorf("failed to create ssh signer: %w", err)
		}

		methods = append(methods, ssh.PublicKeys(signer))
	}

	if s.password != "" {
		methods = append(methods, ssh.Password(s.password))
	}

	if len(methods) == 0 {
		return nil, ErrMissingAuth
	}

	return methods, nil
}

func (s *Ssh) Addr() string {
	return ensureHaveSSHPort(s.host)
}

func (s *Ssh) CreateSshClient(ctx context.Context) (*ssh.Client, error) {
	auth, err := s.authMethods()
	if err != nil {
		return nil, err
	}

	addr := s.Addr()
	conf := &ssh.ClientConfig{
		User:            s.user,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         s.timeout,
	}

	dialer := net.Dialer{Timeout: s.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}

	c, chans, reqs, err := ssh.NewClientConn(conn, addr, conf)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to establish ssh connection to %s: %w", addr, err)
	}

	return ssh.NewClient(c, chans, reqs), nil
}
