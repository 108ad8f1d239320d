// Package command runs the external programs the dispatcher talks to: the
// build tool and the batch scheduler. Every subprocess goes through the
// Runner interface so tests can record and script invocations.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/vk/redogrid/internal/ctxlog"
)

// Cmd describes one subprocess invocation.
type Cmd struct {
	Name  string
	Args  []string
	Stdin string
	// Env is the complete child environment. Nil inherits the current one.
	Env []string
	// Stdout and Stderr stream the child output when set; otherwise it is
	// captured into the Result.
	Stdout io.Writer
	Stderr io.Writer
	// ExtraFiles are passed to the child starting at descriptor 3.
	ExtraFiles []*os.File
}

// String renders the command line for logs.
func (c *Cmd) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Result is the outcome of a command that ran to completion.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Success reports a zero exit code.
func (r *Result) Success() bool { return r.ExitCode == 0 }

// Runner executes commands. A non-zero exit is reported through
// Result.ExitCode; the error return is reserved for commands that could not
// be started or were interrupted.
type Runner interface {
	Run(ctx context.Context, cmd *Cmd) (*Result, error)
}

// ExecRunner is the os/exec backed Runner.
type ExecRunner struct{}

// NewExecRunner returns a Runner that starts real processes.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run implements Runner.
func (r *ExecRunner) Run(ctx context.Context, c *Cmd) (*Result, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Starting command.", "cmd", c.String())

	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Env = c.Env
	cmd.ExtraFiles = c.ExtraFiles
	if c.Stdin != "" {
		cmd.Stdin = strings.NewReader(c.Stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	if c.Stdout != nil {
		cmd.Stdout = c.Stdout
	}
	cmd.Stderr = &stderr
	if c.Stderr != nil {
		cmd.Stderr = c.Stderr
	}

	err := cmd.Run()
	res := &Result{Stdout: stdout.String(), Stderr: stderr.String()}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr) && ctx.Err() == nil:
		res.ExitCode = exitErr.ExitCode()
	case ctx.Err() != nil:
		return nil, fmt.Errorf("command %q interrupted: %w", c.Name, ctx.Err())
	default:
		return nil, fmt.Errorf("failed to start %q: %w", c.Name, err)
	}

	logger.Debug("Command finished.", "cmd", c.Name, "exit_code", res.ExitCode)
	return res, nil
}
