package slurm

import (
	"context"
	"strings"
	"time"

	"github.com/vk/redogrid/internal/command"
	"github.com/vk/redogrid/internal/ctxlog"
)

const (
	DefaultStatusCommand = "squeue"
	DefaultPollInterval  = 500 * time.Millisecond
)

// DefaultActiveStates are the states in which a job still occupies the
// scheduler. Failed and cancelled jobs fall out of this set just like
// completed ones.
var DefaultActiveStates = []string{"RUNNING", "PENDING", "COMPLETING", "PREEMPTED"}

// PollerOptions configures a Poller.
type PollerOptions struct {
	StatusCommand string
	Interval      time.Duration
	ActiveStates  []string
	// OnWait is called after every non-empty status answer with the number
	// of active jobs reported.
	OnWait func(ctx context.Context, active int)
}

// Poller waits for submitted jobs to leave the active states.
type Poller struct {
	runner command.Runner
	opts   PollerOptions
	sleep  func(context.Context, time.Duration) error
}

// NewPoller creates a Poller, filling empty options with defaults.
func NewPoller(runner command.Runner, opts PollerOptions) *Poller {
	if opts.StatusCommand == "" {
		opts.StatusCommand = DefaultStatusCommand
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultPollInterval
	}
	if len(opts.ActiveStates) == 0 {
		opts.ActiveStates = DefaultActiveStates
	}
	return &Poller{runner: runner, opts: opts, sleep: sleepContext}
}

// StatusArgs returns the squeue flags selecting the active jobs among ids
// and names owned by user.
func (p *Poller) StatusArgs(ids, names []string, user string) []string {
	return []string{
		"--noheader",
		"--user", user,
		"--jobs", strings.Join(ids, ","),
		"--name", strings.Join(names, ","),
		"--states=" + strings.Join(p.opts.ActiveStates, ","),
	}
}

// AwaitCompletion blocks until the scheduler reports none of the jobs as
// active. It polls at a fixed interval with neither backoff nor timeout; a
// stuck job is for an operator to resolve. It returns early only when ctx
// is cancelled or a status query fails.
func (p *Poller) AwaitCompletion(ctx context.Context, ids, names []string, user string) error {
	logger := ctxlog.FromContext(ctx)
	args := p.StatusArgs(ids, names, user)
	logger.Info("⏳ Waiting for batch jobs to finish.", "jobs", len(ids), "interval", p.opts.Interval)

	for queries := 1; ; queries++ {
		res, err := p.runner.Run(ctx, &command.Cmd{Name: p.opts.StatusCommand, Args: args})
		if err != nil {
			return &StatusError{Err: err}
		}
		if !res.Success() {
			return &StatusError{ExitCode: res.ExitCode, Stderr: res.Stderr}
		}

		active := countLines(res.Stdout)
		if active == 0 {
			logger.Info("🏁 No batch jobs active anymore.", "queries", queries)
			return nil
		}
		logger.Debug("Batch jobs still active.", "active", active, "query", queries)
		if p.opts.OnWait != nil {
			p.opts.OnWait(ctx, active)
		}

		if err := p.sleep(ctx, p.opts.Interval); err != nil {
			return err
		}
	}
}

func countLines(out string) int {
	n := 0
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
