// Package dispatch decides where out of date build targets get computed and
// blocks until they are materialized.
//
// In remote mode the stale targets are submitted as one batch job each, the
// dispatcher waits until none of those jobs is active anymore, and then runs
// the build tool locally on every target. That final local run registers the
// targets with the calling build step and recomputes whatever a remote job
// failed to produce.
//
// In local mode GPU-class targets are built one at a time on this host and
// all other targets are handed to the build tool in one invocation.
package dispatch

import (
	"context"
	"fmt"

	"github.com/vk/redogrid/internal/buildtool"
	"github.com/vk/redogrid/internal/ctxlog"
	"github.com/vk/redogrid/internal/events"
	"github.com/vk/redogrid/internal/model"
	"github.com/vk/redogrid/internal/partition"
)

// Mode selects the dispatch strategy.
type Mode string

const (
	ModeLocal  Mode = "local"
	ModeRemote Mode = "remote"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeLocal, ModeRemote:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown dispatch mode %q: must be %q or %q", s, ModeLocal, ModeRemote)
	}
}

// BuildTool is the part of the build tool the dispatcher drives.
type BuildTool interface {
	CheckStale(ctx context.Context, targets []model.Target) buildtool.StaleResult
	Ensure(ctx context.Context, targets []model.Target) error
}

// Submitter turns one target into one batch job.
type Submitter interface {
	Submit(ctx context.Context, target model.Target, res model.JobResources) (model.SubmittedJob, error)
}

// Poller blocks until the given jobs are no longer active.
type Poller interface {
	AwaitCompletion(ctx context.Context, ids, names []string, user string) error
}

// Options configures a Dispatcher.
type Options struct {
	Mode Mode
	// WorkspaceRoot is the directory every remote target must resolve into.
	WorkspaceRoot string
	// User owns the submitted jobs in status queries.
	User       string
	Defaults   model.ResourceSpec
	Classifier *partition.Classifier
	Publisher  events.Publisher
}

// Dispatcher runs one dispatch call at a time. It keeps no state between calls.
type Dispatcher struct {
	tool      BuildTool
	submitter Submitter
	poller    Poller
	opts      Options
}

// New creates a Dispatcher. submitter and poller may be nil for a
// dispatcher that only runs in local mode.
func New(tool BuildTool, submitter Submitter, poller Poller, opts Options) *Dispatcher {
	if opts.Classifier == nil {
		opts.Classifier = partition.NewClassifier()
	}
	if opts.Publisher == nil {
		opts.Publisher = events.Nop{}
	}
	if opts.Mode == "" {
		opts.Mode = ModeRemote
	}
	return &Dispatcher{tool: tool, submitter: submitter, poller: poller, opts: opts}
}

// Mode returns the configured dispatch mode.
func (d *Dispatcher) Mode() Mode { return d.opts.Mode }

// Dispatch materializes targets using the configured mode. Fields of spec
// left unset fall back to the configured defaults.
func (d *Dispatcher) Dispatch(ctx context.Context, targets []model.Target, spec model.ResourceSpec) (err error) {
	runID := events.NewRunID()
	ctx = events.WithRunID(ctx, runID)
	ctx = ctxlog.With(ctx, "run_id", runID, "mode", string(d.opts.Mode))
	logger := ctxlog.FromContext(ctx)

	spec = spec.WithDefaults(d.opts.Defaults)
	logger.Info("🚀 Dispatch started.", "targets", len(targets), "partition", spec.Partition.String())
	d.emit(ctx, events.Event{Kind: events.DispatchStarted, Mode: string(d.opts.Mode), Targets: model.Strings(targets), Count: len(targets)})
	defer func() {
		ev := events.Event{Kind: events.DispatchFinished, Mode: string(d.opts.Mode), Count: len(targets)}
		if err != nil {
			ev.Error = err.Error()
			logger.Error("Dispatch failed.", "error", err)
		} else {
			logger.Info("🏁 Dispatch finished.")
		}
		d.emit(ctx, ev)
	}()

	switch d.opts.Mode {
	case ModeLocal:
		return d.DispatchLocal(ctx, targets, spec)
	case ModeRemote:
		return d.DispatchRemote(ctx, targets, spec)
	default:
		return fmt.Errorf("unknown dispatch mode %q", d.opts.Mode)
	}
}

func (d *Dispatcher) emit(ctx context.Context, ev events.Event) {
	events.Emit(ctx, d.opts.Publisher, ev)
}
