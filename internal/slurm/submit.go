// Package slurm submits build targets as Slurm batch jobs and waits for
// them to leave the scheduler's active states. It talks to Slurm only
// through its command line tools (sbatch, squeue).
package slurm

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/vk/redogrid/internal/command"
	"github.com/vk/redogrid/internal/ctxlog"
	"github.com/vk/redogrid/internal/fsutil"
	"github.com/vk/redogrid/internal/model"
	"github.com/vk/redogrid/internal/partition"
)

const (
	DefaultSubmitCommand = "sbatch"
	GPUResourceFlag      = "--gres=gpu:1"
)

// DefaultStripEnv are the variables only meaningful on the submitting host:
// descriptors and jobserver handles of the calling build step.
var DefaultStripEnv = []string{"REDO_JS_FD", "MAKEFLAGS", "REDO_STATUS_FD", "REDO_DEP_FD"}

var ackPattern = regexp.MustCompile(`^Submitted batch job (\d+)`)

// SubmitterOptions configures a Submitter.
type SubmitterOptions struct {
	SubmitCommand string
	// EnsureCommand is what the job script runs on the compute node.
	EnsureCommand string
	StripEnv      []string
	Environ       []string
	Classifier    *partition.Classifier
}

// Submitter submits one batch job per target.
type Submitter struct {
	runner command.Runner
	opts   SubmitterOptions
}

// NewSubmitter creates a Submitter, filling empty options with defaults.
func NewSubmitter(runner command.Runner, opts SubmitterOptions) *Submitter {
	if opts.SubmitCommand == "" {
		opts.SubmitCommand = DefaultSubmitCommand
	}
	if opts.EnsureCommand == "" {
		opts.EnsureCommand = "redo-ifchange"
	}
	if opts.StripEnv == nil {
		opts.StripEnv = DefaultStripEnv
	}
	if opts.Environ == nil {
		opts.Environ = os.Environ()
	}
	if opts.Classifier == nil {
		opts.Classifier = partition.NewClassifier()
	}
	return &Submitter{runner: runner, opts: opts}
}

// BuildArgs returns the sbatch flags for one job. Only set parameters
// produce flags; the GPU request is added when the partition is GPU-class.
func BuildArgs(res model.JobResources, classifier *partition.Classifier) []string {
	var args []string
	if res.Partition != nil {
		args = append(args, "--partition", *res.Partition)
	}
	if res.CPUs != nil {
		args = append(args, "--cpus-per-task", strconv.Itoa(*res.CPUs))
	}
	if res.Memory != nil {
		args = append(args, "--mem", *res.Memory)
	}
	if res.Time != nil {
		args = append(args, "--time", *res.Time)
	}
	if classifier.IsGPU(res.PartitionName()) {
		args = append(args, GPUResourceFlag)
	}
	return append(args, "--job-name", res.Name)
}

// SanitizeEnv strips the variables in strip from environ. A remote job must
// not try to report progress through descriptors of another machine.
func SanitizeEnv(environ []string, strip []string) []string {
	return command.WithoutVars(environ, strip...)
}

// JobScript returns the body of the batch job for target.
func JobScript(ensureCommand string, target model.Target) string {
	return fmt.Sprintf("#!/bin/sh\n%s %s\n", ensureCommand, shellQuote(string(target)))
}

// ParseJobID extracts the job identifier from sbatch output.
func ParseJobID(output string) (string, error) {
	m := ackPattern.FindStringSubmatch(output)
	if m == nil {
		return "", &ParseError{Output: output}
	}
	return m[1], nil
}

// Submit submits target as a single batch job and returns its record.
func (s *Submitter) Submit(ctx context.Context, target model.Target, res model.JobResources) (model.SubmittedJob, error) {
	logger := ctxlog.FromContext(ctx).With("target", string(target))

	args := BuildArgs(res, s.opts.Classifier)

	// sbatch writes its slurm-*.out files there, the job is rejected otherwise.
	if err := fsutil.EnsureParentDir(string(target)); err != nil {
		return model.SubmittedJob{}, &SubmissionError{Target: target, JobName: res.Name, Err: fmt.Errorf("failed to create output directory: %w", err)}
	}

	logger.Debug("Submitting batch job.", res.LogArgs()...)
	out, err := s.runner.Run(ctx, &command.Cmd{
		Name:  s.opts.SubmitCommand,
		Args:  args,
		Stdin: JobScript(s.opts.EnsureCommand, target),
		Env:   SanitizeEnv(s.opts.Environ, s.opts.StripEnv),
	})
	if err != nil {
		return model.SubmittedJob{}, &SubmissionError{Target: target, JobName: res.Name, Err: err}
	}
	if !out.Success() {
		return model.SubmittedJob{}, &SubmissionError{Target: target, JobName: res.Name, ExitCode: out.ExitCode, Stderr: out.Stderr}
	}

	id, err := ParseJobID(out.Stdout)
	if err != nil {
		return model.SubmittedJob{}, &SubmissionError{Target: target, JobName: res.Name, Err: err}
	}

	logger.Info("📤 Batch job submitted.", "job_id", id, "job_name", res.Name)
	return model.SubmittedJob{ID: id, Name: res.Name, Target: target}, nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
