package runner

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Children of the shell may keep the output pipes open after a cancellation kill.
const waitDelay = 2 * time.Second

type ExecRunner struct {
	shell  string
	policy Policy
	envs   []string
}

func NewExecRunner(policy Policy, envs ...string) *ExecRunner {
	return &ExecRunner{
		shell:  "sh",
		policy: policy,
		envs:   envs,
	}
}

func (runner *ExecRunner) Run(ctx context.Context, command string) Result {
	cmd := exec.CommandContext(ctx, runner.shell, "-c", command)
	cmd.WaitDelay = waitDelay

	if len(runner.envs) > 0 {
		cmd.Env = append(os.Environ(), runner.envs...)
	}

	var outBuf, errBuf strings.Builder

	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	err := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil && err != nil {
		err = ctxErr
	}

	return evaluate(runner.policy, outBuf.String(), errBuf.String(), err)
}
