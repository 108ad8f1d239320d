package config

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/vk/redogrid/internal/model"
)

// ProfileEnv selects the profile when no name is given on the command line.
const ProfileEnv = "REDOGRID_PROFILE"

// Profile describes one deployment: the dispatch mode and everything the
// dispatcher needs to know about the host it runs on. Empty fields mean
// "use the built-in default" of the component that consumes them.
type Profile struct {
	Name string
	Mode string

	// WorkspaceEnv names the environment variable holding the workspace root.
	WorkspaceEnv string
	// UserEnv names the environment variable holding the job owner.
	UserEnv string

	PollInterval  time.Duration
	GPUPartitions []string
	ActiveStates  []string
	StripEnv      []string
	InheritFDEnv  []string

	BuildTool BuildTool
	Scheduler Scheduler

	// Resources are defaults for fields a dispatch request leaves unset.
	Resources model.ResourceSpec
}

// BuildTool names the build tool commands.
type BuildTool struct {
	Ensure string
	Oracle string
}

// Scheduler names the batch scheduler commands.
type Scheduler struct {
	Submit string
	Status string
}

// Manifest is a dispatch request read from a file.
type Manifest struct {
	Targets   []model.Target
	Resources model.ResourceSpec
}

// Profiles indexes profiles by name.
type Profiles map[string]*Profile

// Names returns the profile names in lexical order.
func (p Profiles) Names() []string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve returns the named profile.
func (p Profiles) Resolve(name string) (*Profile, error) {
	if name == "" {
		return nil, &ConfigurationError{Known: p.Names(), Reason: fmt.Sprintf("no profile selected (use --profile or set %s)", ProfileEnv)}
	}
	prof, ok := p[name]
	if !ok {
		return nil, &ConfigurationError{Profile: name, Known: p.Names(), Reason: "unknown profile"}
	}
	return prof, nil
}

// SelectName picks the profile name: the explicit one if given, else the
// value of ProfileEnv as reported by lookup.
func SelectName(explicit string, lookup func(string) (string, bool)) string {
	if explicit != "" {
		return explicit
	}
	if lookup == nil {
		return ""
	}
	name, _ := lookup(ProfileEnv)
	return strings.TrimSpace(name)
}

// Validate checks the fields a loader cannot check on its own.
func (p *Profile) Validate() error {
	switch p.Mode {
	case "local", "remote":
	case "":
		return &ConfigurationError{Profile: p.Name, Reason: "mode is not set"}
	default:
		return &ConfigurationError{Profile: p.Name, Reason: fmt.Sprintf("mode %q must be \"local\" or \"remote\"", p.Mode)}
	}
	if p.Mode == "remote" && p.WorkspaceEnv == "" {
		return &ConfigurationError{Profile: p.Name, Reason: "remote profiles need workspace_env"}
	}
	if p.PollInterval < 0 {
		return &ConfigurationError{Profile: p.Name, Reason: "poll_interval must not be negative"}
	}
	return nil
}

// Clone returns a deep copy of p.
func (p *Profile) Clone() *Profile {
	c := *p
	c.GPUPartitions = slices.Clone(p.GPUPartitions)
	c.ActiveStates = slices.Clone(p.ActiveStates)
	c.StripEnv = slices.Clone(p.StripEnv)
	c.InheritFDEnv = slices.Clone(p.InheritFDEnv)
	return &c
}

// ConfigurationError reports a missing, unknown or invalid profile. It is
// raised before any dispatch work starts.
type ConfigurationError struct {
	Profile string
	Known   []string
	Reason  string
	Err     error
}

func (e *ConfigurationError) Error() string {
	var b strings.Builder
	b.WriteString("configuration error")
	if e.Profile != "" {
		fmt.Fprintf(&b, " in profile %q", e.Profile)
	}
	fmt.Fprintf(&b, ": %s", e.Reason)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if len(e.Known) > 0 {
		fmt.Fprintf(&b, " (known profiles: %s)", strings.Join(e.Known, ", "))
	}
	return b.String()
}

func (e *ConfigurationError) Unwrap() error { return e.Err }
