package buildtool

import (
	"context"
	"fmt"
	"strings"

	"github.com/vk/redogrid/internal/command"
	"github.com/vk/redogrid/internal/ctxlog"
	"github.com/vk/redogrid/internal/model"
)

// OracleQueryError explains why the out-of-date oracle gave no answer.
type OracleQueryError struct {
	Command  string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *OracleQueryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s unavailable: %v", e.Command, e.Err)
	}
	msg := fmt.Sprintf("%s exited with code %d", e.Command, e.ExitCode)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

func (e *OracleQueryError) Unwrap() error { return e.Err }

// StaleResult is the oracle's answer. Either it is available and Stale has
// one flag per queried target, or it is unavailable and Err says why.
type StaleResult struct {
	Stale []bool
	Err   *OracleQueryError
}

// Available reports whether the oracle answered.
func (r StaleResult) Available() bool { return r.Err == nil }

// Resolve returns the per-target stale flags for n targets. An unavailable
// oracle marks every target stale: rebuilding too much is recoverable,
// skipping a stale target is not.
func (r StaleResult) Resolve(n int) []bool {
	if r.Available() && len(r.Stale) == n {
		return r.Stale
	}
	all := make([]bool, n)
	for i := range all {
		all[i] = true
	}
	return all
}

// CheckStale asks the oracle which of targets are out of date. It never
// touches the filesystem itself.
func (t *Tool) CheckStale(ctx context.Context, targets []model.Target) StaleResult {
	logger := ctxlog.FromContext(ctx)

	res, err := t.runner.Run(ctx, &command.Cmd{
		Name: t.opts.OracleCommand,
		Args: model.Strings(targets),
		Env:  t.opts.Environ,
	})
	if err != nil {
		qerr := &OracleQueryError{Command: t.opts.OracleCommand, Err: err}
		logger.Warn("Staleness oracle unavailable, treating all targets as stale.", "error", qerr)
		return StaleResult{Err: qerr}
	}
	if !res.Success() {
		qerr := &OracleQueryError{Command: t.opts.OracleCommand, ExitCode: res.ExitCode, Stderr: res.Stderr}
		logger.Warn("Staleness oracle failed, treating all targets as stale.", "error", qerr)
		return StaleResult{Err: qerr}
	}

	outdated := make(map[string]struct{})
	for _, line := range strings.Split(res.Stdout, "\n") {
		outdated[line] = struct{}{}
	}

	stale := make([]bool, len(targets))
	count := 0
	for i, target := range targets {
		if _, ok := outdated[string(target)]; ok && target != "" {
			stale[i] = true
			count++
		}
	}
	logger.Debug("Staleness oracle answered.", "targets", len(targets), "stale", count)
	return StaleResult{Stale: stale}
}
