package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrCommandFailed = errors.New("command failed")
	ErrStderr        = errors.New("command wrote to stderr")
	ErrUnknownPolicy = errors.New("unknown failure policy")
)

// Policy decides how the outcome of a shell command is classified.
type Policy int

const (
	// PolicyStrict treats any stderr output as a failure, even when the command exits 0.
	PolicyStrict Policy = iota
	// PolicyExitCode only looks at the exit status.
	PolicyExitCode
)

func ParsePolicy(name string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "strict", "stderr":
		return PolicyStrict, nil
	case "exitcode", "exit-code":
		return PolicyExitCode, nil
	default:
		return PolicyStrict, fmt.Errorf("%w: %s", ErrUnknownPolicy, name)
	}
}

func (p Policy) String() string {
	if p == PolicyExitCode {
		return "exitcode"
	}

	return "strict"
}

type Result struct {
	Succeeded bool
	Output    string
	Error     string
}

// Err converts a failed result into an error, nil when the command succeeded.
func (r Result) Err() error {
	if r.Succeeded {
		return nil
	}

	if r.Error == "" {
		return ErrCommandFailed
	}

	return fmt.Errorf("%w: %s", ErrCommandFailed, r.Error)
}

type Runner interface {
	Run(ctx context.Context, command string) Result
}

func evaluate(policy Policy, stdout, stderr string, runErr error) Result {
	stderr = strings.TrimSpace(stderr)

	if runErr != nil {
		message := runErr.Error()
		if stderr != "" {
			message = fmt.Sprintf("%s, %v", stderr, runErr)
		}

		return Result{Output: stdout, Error: message}
	}

	if policy == PolicyStrict && stderr != "" {
		return Result{Output: stdout, Error: fmt.Sprintf("%v: %s", ErrStderr, stderr)}
	}

	return Result{Succeeded: true, Output: stdout}
}
