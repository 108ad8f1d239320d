package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/redogrid/internal/config"
	"github.com/vk/redogrid/internal/events"
	"github.com/vk/redogrid/internal/hcl"
	"github.com/vk/redogrid/internal/model"
	"github.com/vk/redogrid/internal/testutil"
)

type appFixture struct {
	runner    *testutil.FakeRunner
	workspace string
	environ   []string
	logs      *testutil.SafeBuffer
}

func newAppFixture(t *testing.T, extraEnv ...string) *appFixture {
	t.Helper()
	ws := t.TempDir()
	return &appFixture{
		runner:    testutil.NewFakeRunner(),
		workspace: ws,
		environ:   append([]string{"PATH=/usr/bin", "WORK=" + ws, "USER=alice"}, extraEnv...),
		logs:      &testutil.SafeBuffer{},
	}
}

// SetupAppTest creates a new app instance wired to the fixture.
func (f *appFixture) SetupAppTest(t *testing.T, cfg Config) *App {
	t.Helper()
	cfg.LogLevel = "debug"
	if cfg.PollInterval == 0 {
		cfg.PollInterval = time.Millisecond
	}
	appConfig, err := NewConfig(cfg)
	require.NoError(t, err)

	a := NewApp(f.logs, appConfig, hcl.NewLoader(),
		WithRunner(f.runner),
		WithEnviron(f.environ),
		WithStdio(&bytes.Buffer{}, &bytes.Buffer{}),
	)

	t.Cleanup(func() {
		if os.Getenv("REDOGRID_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), f.logs.String())
		}
	})
	return a
}

func (f *appFixture) target(name string) string {
	return filepath.Join(f.workspace, name)
}

func TestRun_RemoteProfile(t *testing.T) {
	f := newAppFixture(t)
	a := f.target("model.pt")
	f.runner.
		Script("redo-ood", testutil.Reply{Stdout: a + "\n"}).
		Script("sbatch", testutil.Reply{Stdout: "Submitted batch job 4242\n"}).
		Script("squeue",
			testutil.Reply{Stdout: "4242 gpu-v100 redo00 alice R\n"},
			testutil.Reply{Stdout: ""},
		)

	app := f.SetupAppTest(t, Config{Targets: []string{a}, Profile: "slurm"})
	err := app.Run(context.Background())

	require.NoError(t, err)
	submits := f.runner.CallsTo("sbatch")
	require.Len(t, submits, 1)
	assert.Equal(t, []string{"--partition", "gpu-v100", "--gres=gpu:1", "--job-name", "redo00"}, submits[0].Args)
	assert.Equal(t, "#!/bin/sh\nredo-ifchange '"+a+"'\n", submits[0].Stdin)
	assert.Contains(t, f.runner.CallsTo("squeue")[0].Args, "alice")
	assert.Len(t, f.runner.CallsTo("redo-ifchange"), 1)

	snap := app.Status().Snapshot()
	assert.Equal(t, StateSucceeded, snap.State)
	assert.Equal(t, "remote", snap.Mode)
	assert.Equal(t, []JobStatus{{ID: "4242", Name: "redo00", Target: a}}, snap.Jobs)
	assert.Equal(t, 0, snap.ActiveJobs)
	assert.NotEmpty(t, snap.RunID)
}

func TestRun_ProfileFromEnvironment(t *testing.T) {
	f := newAppFixture(t, config.ProfileEnv+"=local")

	app := f.SetupAppTest(t, Config{Targets: []string{"a", "b"}})
	err := app.Run(context.Background())

	require.NoError(t, err)
	calls := f.runner.Calls()
	require.Len(t, calls, 2, "the built-in local profile defaults to a GPU partition")
	assert.Equal(t, []string{"a"}, calls[0].Args)
	assert.Equal(t, []string{"b"}, calls[1].Args)
}

func TestRun_UnknownProfile(t *testing.T) {
	f := newAppFixture(t)

	app := f.SetupAppTest(t, Config{Targets: []string{"a"}, Profile: "cluster-z"})
	err := app.Run(context.Background())

	var cfgErr *config.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "cluster-z", cfgErr.Profile)
	assert.Empty(t, f.runner.Calls())
}

func TestRun_NoProfileSelected(t *testing.T) {
	f := newAppFixture(t)

	app := f.SetupAppTest(t, Config{Targets: []string{"a"}})
	err := app.Run(context.Background())

	var cfgErr *config.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Empty(t, f.runner.Calls())
}

func TestRun_ForceLocal(t *testing.T) {
	f := newAppFixture(t)

	app := f.SetupAppTest(t, Config{
		Targets:    []string{"a", "b"},
		Profile:    "slurm",
		ForceLocal: true,
		Resources:  model.ResourceSpec{Partition: model.Scalar("cpu-short")},
	})
	err := app.Run(context.Background())

	require.NoError(t, err)
	calls := f.runner.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "redo-ifchange", calls[0].Name)
	assert.Equal(t, []string{"a", "b"}, calls[0].Args)
	assert.Equal(t, "local", app.Status().Snapshot().Mode)
}

func TestRun_RemoteNeedsUser(t *testing.T) {
	f := newAppFixture(t)
	f.environ = []string{"WORK=" + f.workspace}

	app := f.SetupAppTest(t, Config{Targets: []string{f.target("a")}, Profile: "slurm"})
	err := app.Run(context.Background())

	var cfgErr *config.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Contains(t, err.Error(), "--user")
	assert.Empty(t, f.runner.Calls())
}

func TestRun_ManifestMergedWithCommandLine(t *testing.T) {
	f := newAppFixture(t)
	a, b := f.target("a.out"), f.target("b.out")
	manifest := filepath.Join(t.TempDir(), "run.hcl")
	require.NoError(t, os.WriteFile(manifest, []byte(`
targets = ["`+a+`"]

resources {
  partition = ["cpu-short", "cpu-long"]
  mem       = "4G"
}
`), 0o600))
	f.runner.
		Script("redo-ood", testutil.Reply{ExitCode: 1}).
		Script("sbatch",
			testutil.Reply{Stdout: "Submitted batch job 1\n"},
			testutil.Reply{Stdout: "Submitted batch job 2\n"},
		).
		Script("squeue", testutil.Reply{Stdout: ""})

	app := f.SetupAppTest(t, Config{
		Targets:      []string{b},
		Profile:      "slurm",
		ManifestPath: manifest,
		Resources:    model.ResourceSpec{Memory: model.Scalar("8G")},
	})
	err := app.Run(context.Background())

	require.NoError(t, err)
	submits := f.runner.CallsTo("sbatch")
	require.Len(t, submits, 2)
	assert.Equal(t, []string{"--partition", "cpu-short", "--mem", "8G", "--job-name", "redo00"}, submits[0].Args)
	assert.Equal(t, []string{"--partition", "cpu-long", "--mem", "8G", "--job-name", "redo01"}, submits[1].Args)
	assert.Equal(t, []string{a, b}, f.runner.CallsTo("redo-ifchange")[0].Args)
}

func TestRun_DispatchFailureIsReported(t *testing.T) {
	f := newAppFixture(t)
	outside := filepath.Join(t.TempDir(), "x.out")

	app := f.SetupAppTest(t, Config{Targets: []string{outside}, Profile: "slurm"})
	err := app.Run(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "dispatch failed")
	assert.Empty(t, f.runner.Calls())
	snap := app.Status().Snapshot()
	assert.Equal(t, StateFailed, snap.State)
	assert.Contains(t, snap.Error, "does not resolve inside workspace")
}

func TestRun_UnreachableEventsServerIsNotFatal(t *testing.T) {
	f := newAppFixture(t)

	app := f.SetupAppTest(t, Config{
		Targets:   []string{"a"},
		Profile:   "local",
		EventsURL: "not-a-url",
	})
	err := app.Run(context.Background())

	require.NoError(t, err)
	assert.Contains(t, f.logs.String(), "Event publisher unavailable")
}

func TestHealthAndStatusEndpoints(t *testing.T) {
	f := newAppFixture(t)
	app := f.SetupAppTest(t, Config{Targets: []string{"a"}})
	ctx := events.WithRunID(context.Background(), "run-1")
	events.Emit(ctx, app.Status(), events.Event{Kind: events.DispatchStarted, Mode: "remote", Count: 2})
	events.Emit(ctx, app.Status(), events.Event{Kind: events.JobSubmitted, JobID: "7", JobName: "redo00", Target: "a"})
	events.Emit(ctx, app.Status(), events.Event{Kind: events.PollWaiting, Count: 1})

	srv := httptest.NewServer(app.routes())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var snap StatusSnapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, "run-1", snap.RunID)
	assert.Equal(t, StateRunning, snap.State)
	assert.Equal(t, 2, snap.Targets)
	assert.Equal(t, 1, snap.ActiveJobs)
	assert.Equal(t, string(events.PollWaiting), snap.LastEvent)
	require.Len(t, snap.Jobs, 1)
	assert.Equal(t, "7", snap.Jobs[0].ID)
}

func TestStatus_Lifecycle(t *testing.T) {
	s := NewStatus()
	assert.Equal(t, StateIdle, s.Snapshot().State)

	ctx := context.Background()
	events.Emit(ctx, s, events.Event{Kind: events.DispatchStarted, Mode: "local", Count: 3})
	events.Emit(ctx, s, events.Event{Kind: events.LocalRun, Count: 1})
	events.Emit(ctx, s, events.Event{Kind: events.LocalRun, Count: 2})
	events.Emit(ctx, s, events.Event{Kind: events.DispatchFinished, Error: "boom"})

	snap := s.Snapshot()
	assert.Equal(t, StateFailed, snap.State)
	assert.Equal(t, 2, snap.LocalRuns)
	assert.Equal(t, "boom", snap.Error)
	require.NotNil(t, snap.StartedAt)

	events.Emit(ctx, s, events.Event{Kind: events.DispatchStarted, Mode: "local", Count: 1})
	snap = s.Snapshot()
	assert.Equal(t, StateRunning, snap.State)
	assert.Empty(t, snap.Error, "a new run starts from a clean slate")
	assert.Zero(t, snap.LocalRuns)
}

func TestNewConfig(t *testing.T) {
	_, err := NewConfig(Config{})
	require.Error(t, err)

	_, err = NewConfig(Config{ManifestPath: "run.hcl"})
	require.NoError(t, err)

	_, err = NewConfig(Config{Targets: []string{"a"}, HealthcheckPort: 70000})
	require.Error(t, err)

	_, err = NewConfig(Config{Targets: []string{"a"}, PollInterval: -time.Second})
	require.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger("warn", "json", &buf)
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "shown", line["msg"])
	assert.Equal(t, "v", line["k"])

	buf.Reset()
	newLogger("bogus", "text", &buf).Info("plain")
	assert.Contains(t, buf.String(), "msg=plain")
}
