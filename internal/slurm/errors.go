package slurm

import (
	"fmt"
	"strings"

	"github.com/vk/redogrid/internal/model"
)

// SubmissionError reports a submission the scheduler did not accept, or
// whose acknowledgment could not be understood.
type SubmissionError struct {
	Target   model.Target
	JobName  string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *SubmissionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("submitting job %q for %s: %v", e.JobName, e.Target, e.Err)
	}
	return fmt.Sprintf("submitting job %q for %s failed: exit code %d\n%s", e.JobName, e.Target, e.ExitCode, e.Stderr)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// ParseError reports an acknowledgment without a job identifier.
type ParseError struct {
	Output string
}

func (e *ParseError) Error() string {
	out := strings.TrimSpace(e.Output)
	if out == "" {
		out = "<empty>"
	}
	return fmt.Sprintf("no job id in scheduler acknowledgment: %s", out)
}

// StatusError reports a failed status query.
type StatusError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *StatusError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("job status query failed: %v", e.Err)
	}
	return fmt.Sprintf("job status query failed: exit code %d\n%s", e.ExitCode, e.Stderr)
}

func (e *StatusError) Unwrap() error { return e.Err }
