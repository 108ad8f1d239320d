package app

import (
	"context"
	"sync"
	"time"

	"github.com/vk/redogrid/internal/events"
)

// Dispatch states reported by the status endpoint.
const (
	StateIdle      = "idle"
	StateRunning   = "running"
	StateSucceeded = "succeeded"
	StateFailed    = "failed"
)

// JobStatus is one submitted job as seen by the status endpoint.
type JobStatus struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Target string `json:"target"`
}

// StatusSnapshot is a point-in-time copy of the dispatch progress.
type StatusSnapshot struct {
	RunID      string      `json:"run_id,omitempty"`
	Mode       string      `json:"mode,omitempty"`
	State      string      `json:"state"`
	Targets    int         `json:"targets"`
	Jobs       []JobStatus `json:"jobs"`
	ActiveJobs int         `json:"active_jobs"`
	LocalRuns  int         `json:"local_runs"`
	LastEvent  string      `json:"last_event,omitempty"`
	Error      string      `json:"error,omitempty"`
	StartedAt  *time.Time  `json:"started_at,omitempty"`
	UpdatedAt  *time.Time  `json:"updated_at,omitempty"`
}

// Status tracks dispatch progress from the event stream. The dispatcher
// publishes into it and the health server reads from it.
type Status struct {
	mu   sync.Mutex
	snap StatusSnapshot
}

// NewStatus creates an idle tracker.
func NewStatus() *Status {
	return &Status{snap: StatusSnapshot{State: StateIdle, Jobs: []JobStatus{}}}
}

// Publish implements events.Publisher.
func (s *Status) Publish(_ context.Context, ev events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := ev.Time
	s.snap.UpdatedAt = &t
	s.snap.LastEvent = string(ev.Kind)

	switch ev.Kind {
	case events.DispatchStarted:
		s.snap = StatusSnapshot{
			RunID:     ev.RunID,
			Mode:      ev.Mode,
			State:     StateRunning,
			Targets:   ev.Count,
			Jobs:      []JobStatus{},
			LastEvent: string(ev.Kind),
			StartedAt: &t,
			UpdatedAt: &t,
		}
	case events.JobSubmitted:
		s.snap.Jobs = append(s.snap.Jobs, JobStatus{ID: ev.JobID, Name: ev.JobName, Target: ev.Target})
		s.snap.ActiveJobs = len(s.snap.Jobs)
	case events.PollWaiting:
		s.snap.ActiveJobs = ev.Count
	case events.JobsCompleted:
		s.snap.ActiveJobs = 0
	case events.LocalRun:
		s.snap.LocalRuns++
	case events.DispatchFinished:
		if ev.Error != "" {
			s.snap.State = StateFailed
			s.snap.Error = ev.Error
		} else {
			s.snap.State = StateSucceeded
		}
	}
}

// Snapshot returns a copy of the current progress.
func (s *Status) Snapshot() StatusSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.snap
	out.Jobs = append([]JobStatus(nil), s.snap.Jobs...)
	return out
}
