package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/vk/redogrid/internal/ctxlog"
	"github.com/vk/redogrid/internal/events"
	"github.com/vk/redogrid/internal/fsutil"
	"github.com/vk/redogrid/internal/model"
)

// DispatchRemote submits the stale subset of targets as batch jobs, waits for
// them, and reconciles all targets locally. Preconditions are checked before
// any subprocess runs. Submission stops at the first failure; jobs already
// submitted keep running.
func (d *Dispatcher) DispatchRemote(ctx context.Context, targets []model.Target, spec model.ResourceSpec) error {
	logger := ctxlog.FromContext(ctx)

	if d.submitter == nil || d.poller == nil {
		return errors.New("remote dispatch requires a submitter and a poller")
	}
	if err := d.checkWorkspace(targets); err != nil {
		return err
	}
	if err := spec.Validate(len(targets)); err != nil {
		return &PreconditionError{Err: err}
	}

	stale := d.tool.CheckStale(ctx, targets).Resolve(len(targets))
	pending := filterTargets(targets, stale)
	logger.Info("Staleness checked.", "targets", len(targets), "stale", len(pending))

	if len(pending) > 0 {
		jobs, err := d.submitAll(ctx, pending, spec.Filter(stale))
		if err != nil {
			return err
		}

		if err := d.poller.AwaitCompletion(ctx, model.JobIDs(jobs), model.JobNames(jobs), d.opts.User); err != nil {
			return fmt.Errorf("waiting for batch jobs: %w", err)
		}
		d.emit(ctx, events.Event{Kind: events.JobsCompleted, Count: len(jobs)})
	} else {
		logger.Info("All targets up to date, nothing to submit.")
	}

	// Whatever a remote job failed to produce gets rebuilt here, on this host.
	logger.Info("Reconciling targets with the build tool.", "targets", len(targets))
	d.emit(ctx, events.Event{Kind: events.Reconciling, Targets: model.Strings(targets), Count: len(targets)})
	if err := d.tool.Ensure(ctx, targets); err != nil {
		return fmt.Errorf("reconciling targets: %w", err)
	}
	return nil
}

// submitAll submits targets strictly in order, one job each.
func (d *Dispatcher) submitAll(ctx context.Context, targets []model.Target, spec model.ResourceSpec) ([]model.SubmittedJob, error) {
	resources := spec.Expand(len(targets))
	jobs := make([]model.SubmittedJob, 0, len(targets))
	for i, target := range targets {
		job, err := d.submitter.Submit(ctx, target, resources[i])
		if err != nil {
			if len(jobs) > 0 {
				ctxlog.FromContext(ctx).Warn("Aborting dispatch with jobs already submitted.", "submitted", model.JobIDs(jobs))
			}
			return nil, err
		}
		d.emit(ctx, events.Event{Kind: events.JobSubmitted, Target: string(target), JobID: job.ID, JobName: job.Name})
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// checkWorkspace verifies that every target resolves inside the workspace root.
func (d *Dispatcher) checkWorkspace(targets []model.Target) error {
	if d.opts.WorkspaceRoot == "" {
		return &PreconditionError{Err: errors.New("workspace root is not set")}
	}
	root, err := fsutil.Resolve(d.opts.WorkspaceRoot)
	if err != nil {
		return &PreconditionError{Err: fmt.Errorf("resolving workspace root: %w", err)}
	}
	for _, target := range targets {
		resolved, err := fsutil.Resolve(string(target))
		if err != nil {
			return &PreconditionError{Target: target, Err: err}
		}
		if !fsutil.IsWithin(resolved, root) {
			return &PreconditionError{Target: target, Root: root}
		}
	}
	return nil
}

func filterTargets(targets []model.Target, keep []bool) []model.Target {
	out := make([]model.Target, 0, len(targets))
	for i, t := range targets {
		if keep[i] {
			out = append(out, t)
		}
	}
	return out
}
