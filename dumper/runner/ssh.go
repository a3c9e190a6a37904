package runner

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/ssh"
)

type SshRunner struct {
	client *ssh.Client
	policy Policy
}

func NewSshRunner(client *ssh.Client, policy Policy) *SshRunner {
	return &SshRunner{
		client: client,
		policy: policy,
	}
}

func (runner *SshRunner) Run(ctx context.Context, command string) Result {
	session, err := runner.client.NewSession()
	if err != nil {
		return Result{Error: fmt.Sprintf("failed to start ssh session: %v", err)}
	}

	return RunSession(ctx, session, runner.policy, command)
}

// RunSession runs command on an opened session and closes it.
func RunSession(ctx context.Context, session *ssh.Session, policy Policy, command string) Result {
	defer func() {
		// Closing an already finished session only reports EOF.
		_ = session.Close()
	}()

	var remoteOut, remoteErr bytes.Buffer

	session.Stdout = &remoteOut
	session.Stderr = &remoteErr

	done := make(chan error, 1)
	go func() {
		done <- session.Run(command)
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		if signalErr := session.Signal(ssh.SIGKILL); signalErr != nil {
			slog.Debug("fail to signal remote command", slog.Any("error", signalErr))
		}

		_ = session.Close()
		<-done
		err = ctx.Err()
	}

	return evaluate(policy, remoteOut.String(), remoteErr.String(), err)
}
