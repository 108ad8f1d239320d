package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/vk/redogrid/internal/app"
	"github.com/vk/redogrid/internal/config"
	"github.com/vk/redogrid/internal/model"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Exit codes.
const (
	ExitFailure = 1
	ExitUsage   = 2
)

// stringList collects a flag that may be given several times, each time
// with comma-separated values.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			*s = append(*s, part)
		}
	}
	return nil
}

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("redogrid", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprintf(output, `
redogrid - Dispatch redo targets to a Slurm cluster or build them locally.

Usage:
  redogrid [options] TARGET...

Arguments:
  TARGET
    A build target path. Remote targets must resolve inside the workspace.

Resource options (--partition, --cpus, --mem, --time, --name) take either
one value for every target or a comma-separated list with one value per
target.

The profile is taken from --profile, else from $%s.

Options:
`, config.ProfileEnv)
		flagSet.PrintDefaults()
	}

	var profilePaths stringList
	profileFlag := flagSet.String("profile", "", "Deployment profile to use (built-in: local, slurm).")
	flagSet.Var(&profilePaths, "profiles", "Profile file or directory of .hcl files. May be repeated.")
	manifestFlag := flagSet.String("manifest", "", "HCL manifest with targets and resources.")
	partitionFlag := flagSet.String("partition", "", "Scheduler partition(s).")
	cpusFlag := flagSet.String("cpus", "", "CPUs per task.")
	memFlag := flagSet.String("mem", "", "Memory per job, e.g. 16G.")
	timeFlag := flagSet.String("time", "", "Time limit per job, e.g. 1-00:00.")
	nameFlag := flagSet.String("name", "", "Job name(s). Defaults to redo00, redo01, ...")
	localFlag := flagSet.Bool("local", false, "Build on this host even if the profile is remote.")
	userFlag := flagSet.String("user", "", "Owner of the submitted jobs. Defaults to the profile's user_env.")
	pollFlag := flagSet.Duration("poll-interval", 0, "Interval between job status queries. 0 uses the profile's value.")
	eventsURLFlag := flagSet.String("events-url", "", "Socket.IO server receiving dispatch events.")
	eventsNSFlag := flagSet.String("events-namespace", "/", "Socket.IO namespace for dispatch events.")
	healthPortFlag := flagSet.Int("healthcheck-port", 0, "Port for the HTTP health check server. 0 is disabled.")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: ExitUsage, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	targets := flagSet.Args()
	if len(targets) == 0 && *manifestFlag == "" {
		slog.Debug("No targets provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: ExitUsage, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: ExitUsage, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	cpus, err := parseIntField(*cpusFlag)
	if err != nil {
		return nil, false, &ExitError{Code: ExitUsage, Message: fmt.Sprintf("invalid cpus: %v", err)}
	}
	resources := model.ResourceSpec{
		Partition: parseStringField(*partitionFlag),
		CPUs:      cpus,
		Memory:    parseStringField(*memFlag),
		Time:      parseStringField(*timeFlag),
		Name:      parseStringField(*nameFlag),
	}
	slog.Debug("CLI parameter validation complete.")

	cfg, err := app.NewConfig(app.Config{
		Targets:         targets,
		Profile:         *profileFlag,
		ProfilePaths:    profilePaths,
		ManifestPath:    *manifestFlag,
		Resources:       resources,
		ForceLocal:      *localFlag,
		User:            *userFlag,
		PollInterval:    *pollFlag,
		EventsURL:       *eventsURLFlag,
		EventsNamespace: *eventsNSFlag,
		HealthcheckPort: *healthPortFlag,
		LogFormat:       logFormat,
		LogLevel:        logLevel,
	})
	if err != nil {
		return nil, false, &ExitError{Code: ExitUsage, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "targets", len(targets))
	return cfg, false, nil
}

// parseStringField turns "" into an unset field, "a" into a scalar and
// "a,b" into a list.
func parseStringField(v string) model.Field[string] {
	if v == "" {
		return model.Unset[string]()
	}
	if !strings.Contains(v, ",") {
		return model.Scalar(v)
	}
	parts := strings.Split(v, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return model.List(parts...)
}

func parseIntField(v string) (model.Field[int], error) {
	f := parseStringField(v)
	if !f.IsSet() {
		return model.Unset[int](), nil
	}
	n := f.Len()
	if n < 0 {
		s, _ := f.At(0)
		i, err := strconv.Atoi(s)
		if err != nil {
			return model.Unset[int](), err
		}
		return model.Scalar(i), nil
	}
	out := make([]int, n)
	for i := range out {
		s, _ := f.At(i)
		x, err := strconv.Atoi(s)
		if err != nil {
			return model.Unset[int](), err
		}
		out[i] = x
	}
	return model.List(out...), nil
}
