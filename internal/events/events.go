// Package events describes the lifecycle of a dispatch as a stream of small
// events and fans them out to interested publishers: the status endpoint
// and, when configured, a Socket.IO dashboard.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind names a lifecycle event.
type Kind string

const (
	DispatchStarted  Kind = "dispatch.started"
	JobSubmitted     Kind = "job.submitted"
	PollWaiting      Kind = "poll.waiting"
	JobsCompleted    Kind = "jobs.completed"
	LocalRun         Kind = "local.run"
	Reconciling      Kind = "reconcile.started"
	DispatchFinished Kind = "dispatch.finished"
)

// Event is one lifecycle notification.
type Event struct {
	RunID   string    `json:"run_id"`
	Kind    Kind      `json:"kind"`
	Mode    string    `json:"mode,omitempty"`
	Target  string    `json:"target,omitempty"`
	Targets []string  `json:"targets,omitempty"`
	JobID   string    `json:"job_id,omitempty"`
	JobName string    `json:"job_name,omitempty"`
	Count   int       `json:"count,omitempty"`
	Error   string    `json:"error,omitempty"`
	Time    time.Time `json:"time"`
}

// Publisher receives events. Publishing is best effort: implementations log
// their own failures and never block a dispatch on them.
type Publisher interface {
	Publish(ctx context.Context, ev Event)
}

// NewRunID returns a fresh identifier for one dispatch call.
func NewRunID() string {
	return uuid.NewString()
}

type runIDKey struct{}

// WithRunID stores the dispatch run identifier in ctx.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunID returns the run identifier stored in ctx, or "".
func RunID(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

// Emit stamps ev with the run identifier from ctx and the current time and
// hands it to p. A nil publisher drops the event.
func Emit(ctx context.Context, p Publisher, ev Event) {
	if p == nil {
		return
	}
	if ev.RunID == "" {
		ev.RunID = RunID(ctx)
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	p.Publish(ctx, ev)
}

// Nop discards every event.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, Event) {}

// Multi publishes to each of its publishers in order.
type Multi []Publisher

// Publish implements Publisher.
func (m Multi) Publish(ctx context.Context, ev Event) {
	for _, p := range m {
		if p != nil {
			p.Publish(ctx, ev)
		}
	}
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Publish implements Publisher.
func (r *Recorder) Publish(_ context.Context, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Kinds returns the kinds of the recorded events in order.
func (r *Recorder) Kinds() []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Kind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}
