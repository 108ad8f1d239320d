package testutil

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/vk/redogrid/internal/command"
)

// Call is a recorded invocation of a FakeRunner.
type Call struct {
	Name  string
	Args  []string
	Stdin string
	Env   []string
}

// FakeRunner is a command.Runner that records every invocation and answers
// from per-command scripts. Unscripted commands succeed with empty output.
type FakeRunner struct {
	mu      sync.Mutex
	calls   []Call
	scripts map[string][]Reply
	active  map[string]int
	handler func(Call) (*command.Result, error)
}

// Reply is one scripted answer.
type Reply struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Err      error
}

// NewFakeRunner creates an empty FakeRunner.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{
		scripts: make(map[string][]Reply),
		active:  make(map[string]int),
	}
}

// Script queues replies for the named command. Once the queue is drained the
// last reply is repeated.
func (f *FakeRunner) Script(name string, replies ...Reply) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[name] = append(f.scripts[name], replies...)
	return f
}

// Handle installs a fallback handler for commands without a script.
func (f *FakeRunner) Handle(fn func(Call) (*command.Result, error)) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = fn
	return f
}

// Run implements command.Runner.
func (f *FakeRunner) Run(ctx context.Context, cmd *command.Cmd) (*command.Result, error) {
	call := Call{
		Name:  cmd.Name,
		Args:  slices.Clone(cmd.Args),
		Stdin: cmd.Stdin,
		Env:   slices.Clone(cmd.Env),
	}

	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.active[cmd.Name]++
	concurrent := f.active[cmd.Name]
	replies := f.scripts[cmd.Name]
	var reply *Reply
	if len(replies) > 0 {
		r := replies[0]
		reply = &r
		if len(replies) > 1 {
			f.scripts[cmd.Name] = replies[1:]
		}
	}
	handler := f.handler
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.active[cmd.Name]--
		f.mu.Unlock()
	}()

	if concurrent > 1 {
		return nil, fmt.Errorf("fake runner: %d concurrent invocations of %s", concurrent, cmd.Name)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch {
	case reply != nil:
		if reply.Err != nil {
			return nil, reply.Err
		}
		if cmd.Stdout != nil && reply.Stdout != "" {
			fmt.Fprint(cmd.Stdout, reply.Stdout)
			return &command.Result{Stderr: reply.Stderr, ExitCode: reply.ExitCode}, nil
		}
		return &command.Result{Stdout: reply.Stdout, Stderr: reply.Stderr, ExitCode: reply.ExitCode}, nil
	case handler != nil:
		return handler(call)
	default:
		return &command.Result{}, nil
	}
}

// Calls returns every recorded invocation in order.
func (f *FakeRunner) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

// CallsTo returns the recorded invocations of the named command in order.
func (f *FakeRunner) CallsTo(name string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Call
	for _, c := range f.calls {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}
