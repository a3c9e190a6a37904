package testutils

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// CommandHandler answers an exec request with its stdout, stderr and exit status.
type CommandHandler func(command string) (stdout, stderr string, exitStatus uint32)

// SshServer is an in-process SSH server for tests. It accepts password
// authentication, answers exec requests through a CommandHandler and serves
// the sftp subsystem from the local filesystem.
type SshServer struct {
	listener net.Listener
	config   *ssh.ServerConfig
	handler  CommandHandler

	mu       sync.Mutex
	conns    int
	commands []string
}

// GenerateRSAPrivateKey returns a fresh PEM encoded key, used as host key and client key.
func GenerateRSAPrivateKey() (string, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return "", fmt.Errorf("could not generate rsa key pair: %w", err)
	}

	return string(pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})), nil
}

func StartSshServer(password string, handler CommandHandler) (*SshServer, error) {
	privateKey, err := GenerateRSAPrivateKey()
	if err != nil {
		return nil, err
	}

	signer, err := ssh.ParsePrivateKey([]byte(privateKey))
	if err != nil {
		return nil, err
	}

	config := &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if string(pass) == password {
				return nil, nil
			}

			return nil, fmt.Errorf("password rejected for %s", c.User())
		},
	}

	config.AddHostKey(signer)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}

	if handler == nil {
		handler = func(string) (string, string, uint32) { return "", "", 0 }
	}

	server := &SshServer{
		listener: listener,
		config:   config,
		handler:  handler,
	}

	go server.serve()

	return server, nil
}

func (s *SshServer) Addr() string {
	return s.listener.Addr().String()
}

func (s *SshServer) Host() string {
	host, _, _ := net.SplitHostPort(s.Addr())
	return host
}

func (s *SshServer) Port() int {
	_, port, _ := net.SplitHostPort(s.Addr())
	p, _ := strconv.Atoi(port)
	return p
}

// Connections returns the number of authenticated connections so far.
func (s *SshServer) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns
}

// Commands returns every exec command received, in arrival order.
func (s *SshServer) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

func (s *SshServer) Close() error {
	return s.listener.Close()
}

func (s *SshServer) serve() {
	for {
		nConn, err := s.listener.Accept()
		if err != nil {
			return
		}

		go s.handleConn(nConn)
	}
}

func (s *SshServer) handleConn(nConn net.Conn) {
	conn, chans, reqs, err := ssh.NewServerConn(nConn, s.config)
	if err != nil {
		slog.Debug("[ssh] handshake failed", slog.Any("error", err))
		return
	}

	defer func() {
		if err := conn.Close(); err != nil {
			slog.Debug("[ssh] fail to close connection", slog.Any("error", err))
		}
	}()

	s.mu.Lock()
	s.conns++
	s.mu.Unlock()

	go ssh.DiscardRequests(reqs)

	for newChannel := range chans {
		if newChannel.ChannelType() != "session" {
			_ = newChannel.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}

		channel, requests, err := newChannel.Accept()
		if err != nil {
			return
		}

		go s.handleSession(channel, requests)
	}
}

func (s *SshServer) handleSession(channel ssh.Channel, requests <-chan *ssh.Request) {
	defer func() {
		_ = channel.Close()
	}()

	for req := range requests {
		switch req.Type {
		case "exec":
			var payload struct{ Command string }
			if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
				_ = req.Reply(false, nil)
				continue
			}

			_ = req.Reply(true, nil)

			s.mu.Lock()
			s.commands = append(s.commands, payload.Command)
			s.mu.Unlock()

			stdout, stderr, status := s.handler(payload.Command)
			_, _ = io.WriteString(channel, stdout)
			_, _ = io.WriteString(channel.Stderr(), stderr)
			_, _ = channel.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{status}))
			return
		case "subsystem":
			var payload struct{ Name string }
			if err := ssh.Unmarshal(req.Payload, &payload); err != nil || payload.Name != "sftp" {
				_ = req.Reply(false, nil)
				continue
			}

			_ = req.Reply(true, nil)

			server, err := sftp.NewServer(channel)
			if err != nil {
				slog.Error("[sftp] fail to start server", slog.Any("error", err))
				return
			}

			if err := server.Serve(); err != nil && err != io.EOF {
				slog.Debug("[sftp] server exited", slog.Any("error", err))
			}

			return
		default:
			if req.WantReply {
				_ = req.Reply(false, nil)
			}
		}
	}
}
