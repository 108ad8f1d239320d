package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/vk/redogrid/internal/buildtool"
	"github.com/vk/redogrid/internal/command"
	"github.com/vk/redogrid/internal/config"
	"github.com/vk/redogrid/internal/ctxlog"
	"github.com/vk/redogrid/internal/dispatch"
	"github.com/vk/redogrid/internal/events"
	"github.com/vk/redogrid/internal/model"
	"github.com/vk/redogrid/internal/partition"
	"github.com/vk/redogrid/internal/slurm"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	ctx        context.Context
	logger     *slog.Logger
	config     *Config
	loader     config.Loader
	runner     command.Runner
	environ    []string
	stdout     io.Writer
	stderr     io.Writer
	status     *Status
	httpServer *http.Server
}

// Option customizes an App. Tests use options to replace the process
// environment and the subprocess runner.
type Option func(*App)

// WithRunner replaces the subprocess runner.
func WithRunner(r command.Runner) Option {
	return func(a *App) { a.runner = r }
}

// WithEnviron replaces the process environment the app reads and passes on.
func WithEnviron(environ []string) Option {
	return func(a *App) { a.environ = environ }
}

// WithStdio sets where the build tool's own output goes.
func WithStdio(stdout, stderr io.Writer) Option {
	return func(a *App) {
		a.stdout = stdout
		a.stderr = stderr
	}
}

// NewApp is the constructor for the main application. logW receives the
// application's log; the build tool keeps writing to the process stdio so
// its output reaches the calling build step untouched.
func NewApp(logW io.Writer, appConfig *Config, loader config.Loader, opts ...Option) *App {
	logger := newLogger(appConfig.LogLevel, appConfig.LogFormat, logW)
	a := &App{
		ctx:     ctxlog.WithLogger(context.Background(), logger),
		logger:  logger,
		config:  appConfig,
		loader:  loader,
		runner:  command.NewExecRunner(),
		environ: os.Environ(),
		stdout:  os.Stdout,
		stderr:  os.Stderr,
		status:  NewStatus(),
	}
	for _, opt := range opts {
		opt(a)
	}
	logger.Debug("Logger configured successfully.")
	return a
}

// Status returns the dispatch progress tracker.
func (a *App) Status() *Status {
	return a.status
}

// Run resolves the profile, loads the manifest, and dispatches the targets.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.ctx = ctx
	a.logger.Debug("App.Run method started.")

	profiles, err := a.loader.LoadProfiles(ctx, a.config.ProfilePaths...)
	if err != nil {
		var cfgErr *config.ConfigurationError
		if errors.As(err, &cfgErr) {
			return err
		}
		return &config.ConfigurationError{Reason: "failed to load profiles", Err: err}
	}
	name := config.SelectName(a.config.Profile, a.lookup)
	profile, err := profiles.Resolve(name)
	if err != nil {
		return err
	}
	ctx = ctxlog.With(ctx, "profile", profile.Name)
	a.ctx = ctx
	a.logger.Debug("Profile resolved.", "profile", profile.Name, "mode", profile.Mode)

	targets, spec, err := a.request(ctx)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		ctxlog.FromContext(ctx).Warn("No targets given, dispatch not required.")
		return nil
	}

	mode, err := dispatch.ParseMode(profile.Mode)
	if err != nil {
		return &config.ConfigurationError{Profile: profile.Name, Reason: err.Error()}
	}
	if a.config.ForceLocal {
		mode = dispatch.ModeLocal
	}

	user := a.config.User
	if user == "" {
		user, _ = a.lookup(orDefault(profile.UserEnv, "USER"))
	}
	workspace, _ := a.lookup(profile.WorkspaceEnv)
	if mode == dispatch.ModeRemote && user == "" {
		return &config.ConfigurationError{Profile: profile.Name, Reason: fmt.Sprintf("job owner unknown: set $%s or --user", orDefault(profile.UserEnv, "USER"))}
	}

	publisher, closePublisher := a.publishers(ctx)
	defer closePublisher()

	a.healthCheckServer()
	defer a.closeHealthCheckServer()

	d := a.newDispatcher(profile, mode, workspace, user, publisher)
	if err := d.Dispatch(ctx, targets, spec); err != nil {
		return fmt.Errorf("dispatch failed: %w", err)
	}

	a.logger.Debug("App.Run method finished.")
	return nil
}

// request merges the manifest with the command line: command line targets
// are appended to the manifest's, command line resources win field by field.
func (a *App) request(ctx context.Context) ([]model.Target, model.ResourceSpec, error) {
	targets := model.Targets(a.config.Targets...)
	spec := a.config.Resources
	if a.config.ManifestPath == "" {
		return targets, spec, nil
	}

	m, err := a.loader.LoadManifest(ctx, a.config.ManifestPath)
	if err != nil {
		return nil, model.ResourceSpec{}, &config.ConfigurationError{Reason: "failed to load manifest", Err: err}
	}
	return append(m.Targets, targets...), spec.WithDefaults(m.Resources), nil
}

func (a *App) newDispatcher(profile *config.Profile, mode dispatch.Mode, workspace, user string, publisher events.Publisher) *dispatch.Dispatcher {
	classifier := partition.NewClassifier(profile.GPUPartitions...)

	tool := buildtool.New(a.runner, buildtool.Options{
		EnsureCommand: profile.BuildTool.Ensure,
		OracleCommand: profile.BuildTool.Oracle,
		SessionVars:   profile.InheritFDEnv,
		Environ:       a.environ,
		Stdout:        a.stdout,
		Stderr:        a.stderr,
	})
	submitter := slurm.NewSubmitter(a.runner, slurm.SubmitterOptions{
		SubmitCommand: profile.Scheduler.Submit,
		EnsureCommand: tool.EnsureCommand(),
		StripEnv:      profile.StripEnv,
		Environ:       a.environ,
		Classifier:    classifier,
	})

	interval := profile.PollInterval
	if a.config.PollInterval > 0 {
		interval = a.config.PollInterval
	}
	poller := slurm.NewPoller(a.runner, slurm.PollerOptions{
		StatusCommand: profile.Scheduler.Status,
		Interval:      interval,
		ActiveStates:  profile.ActiveStates,
		OnWait: func(ctx context.Context, active int) {
			events.Emit(ctx, publisher, events.Event{Kind: events.PollWaiting, Count: active})
		},
	})

	return dispatch.New(tool, submitter, poller, dispatch.Options{
		Mode:          mode,
		WorkspaceRoot: workspace,
		User:          user,
		Defaults:      profile.Resources,
		Classifier:    classifier,
		Publisher:     publisher,
	})
}

// publishers returns the status tracker, plus the Socket.IO publisher when
// configured. Events are best effort, so a dashboard that cannot be reached
// only costs a warning.
func (a *App) publishers(ctx context.Context) (events.Publisher, func()) {
	if a.config.EventsURL == "" {
		return a.status, func() {}
	}

	sio, err := events.DialSocketIO(ctx, events.SocketIOOptions{
		URL:       a.config.EventsURL,
		Namespace: a.config.EventsNamespace,
	})
	if err != nil {
		ctxlog.FromContext(ctx).Warn("Event publisher unavailable, continuing without it.", "url", a.config.EventsURL, "error", err)
		return a.status, func() {}
	}
	return events.Multi{a.status, sio}, func() {
		if err := sio.Close(); err != nil {
			ctxlog.FromContext(ctx).Debug("Closing event publisher failed.", "error", err)
		}
	}
}

func (a *App) lookup(name string) (string, bool) {
	if name == "" {
		return "", false
	}
	return command.Lookup(a.environ, name)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
