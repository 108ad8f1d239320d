// Package buildtool wraps the incremental build tool the dispatcher serves:
// its "ensure up to date" operation and its out-of-date oracle.
package buildtool

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/vk/redogrid/internal/command"
	"github.com/vk/redogrid/internal/ctxlog"
	"github.com/vk/redogrid/internal/model"
)

const (
	DefaultEnsureCommand = "redo-ifchange"
	DefaultOracleCommand = "redo-ood"
)

// DefaultSessionVars are the build tool session variables holding
// descriptors of the calling build step.
var DefaultSessionVars = []string{"REDO_JS_FD", "REDO_STATUS_FD", "REDO_DEP_FD"}

// Options configures a Tool.
type Options struct {
	EnsureCommand string
	OracleCommand string
	// SessionVars name environment variables holding descriptor numbers that
	// local invocations must inherit so the build tool can track them.
	SessionVars []string
	Environ     []string
	Stdout      io.Writer
	Stderr      io.Writer
}

// Tool invokes the build tool through a command.Runner.
type Tool struct {
	runner command.Runner
	opts   Options

	sessionOnce  sync.Once
	sessionEnv   []string
	sessionFiles []*os.File
	sessionErr   error
}

// New creates a Tool. Empty options fall back to the redo defaults and the
// current process environment and stdio.
func New(runner command.Runner, opts Options) *Tool {
	if opts.EnsureCommand == "" {
		opts.EnsureCommand = DefaultEnsureCommand
	}
	if opts.OracleCommand == "" {
		opts.OracleCommand = DefaultOracleCommand
	}
	if opts.SessionVars == nil {
		opts.SessionVars = DefaultSessionVars
	}
	if opts.Environ == nil {
		opts.Environ = os.Environ()
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	return &Tool{runner: runner, opts: opts}
}

// EnsureCommand is the command used to bring targets up to date.
func (t *Tool) EnsureCommand() string { return t.opts.EnsureCommand }

// EnsureError reports a failed "ensure up to date" invocation.
type EnsureError struct {
	Targets  []model.Target
	ExitCode int
}

func (e *EnsureError) Error() string {
	return fmt.Sprintf("%s failed with exit code %d", describe(e.Targets), e.ExitCode)
}

// Ensure brings targets up to date with a single blocking invocation. The
// child shares the caller's stdio and the build tool session descriptors,
// so its native error text reaches the user unmodified.
func (t *Tool) Ensure(ctx context.Context, targets []model.Target) error {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Ensuring targets are up to date.", "count", len(targets), "targets", model.Strings(targets))

	env, files, err := t.session()
	if err != nil {
		return err
	}

	res, err := t.runner.Run(ctx, &command.Cmd{
		Name:       t.opts.EnsureCommand,
		Args:       model.Strings(targets),
		Env:        env,
		Stdout:     t.opts.Stdout,
		Stderr:     t.opts.Stderr,
		ExtraFiles: files,
	})
	if err != nil {
		return fmt.Errorf("failed to run %s: %w", t.opts.EnsureCommand, err)
	}
	if !res.Success() {
		return &EnsureError{Targets: targets, ExitCode: res.ExitCode}
	}
	return nil
}

// session maps the session descriptors once per Tool. The *os.File values
// stay referenced by the Tool for its lifetime, so they are never finalized
// while later invocations still need them.
func (t *Tool) session() ([]string, []*os.File, error) {
	t.sessionOnce.Do(func() {
		t.sessionEnv, t.sessionFiles, t.sessionErr = command.InheritDescriptors(t.opts.Environ, nil, t.opts.SessionVars...)
		if t.sessionErr != nil {
			t.sessionErr = fmt.Errorf("failed to inherit build session descriptors: %w", t.sessionErr)
		}
	})
	return t.sessionEnv, t.sessionFiles, t.sessionErr
}

func describe(targets []model.Target) string {
	if len(targets) == 1 {
		return fmt.Sprintf("target %q", targets[0])
	}
	return fmt.Sprintf("%d targets (%s)", len(targets), strings.Join(model.Strings(targets), ", "))
}
