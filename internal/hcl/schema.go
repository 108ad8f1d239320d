package hcl

import "github.com/hashicorp/hcl/v2"

// profileFile is the top level of a profiles file.
type profileFile struct {
	Profiles []*profileBlock `hcl:"profile,block"`
}

// profileBlock mirrors a `profile "name" { ... }` block. Pointer and slice
// fields stay nil when the attribute is absent so overrides can be merged
// field by field.
type profileBlock struct {
	Name          string          `hcl:"name,label"`
	Mode          *string         `hcl:"mode,optional"`
	WorkspaceEnv  *string         `hcl:"workspace_env,optional"`
	UserEnv       *string         `hcl:"user_env,optional"`
	PollInterval  *string         `hcl:"poll_interval,optional"`
	GPUPartitions []string        `hcl:"gpu_partitions,optional"`
	ActiveStates  []string        `hcl:"active_states,optional"`
	StripEnv      []string        `hcl:"strip_env,optional"`
	InheritFDEnv  []string        `hcl:"inherit_fd_env,optional"`
	BuildTool     *buildToolBlock `hcl:"build_tool,block"`
	Scheduler     *schedulerBlock `hcl:"scheduler,block"`
	Resources     *resourcesBlock `hcl:"resources,block"`
}

type buildToolBlock struct {
	Ensure *string `hcl:"ensure,optional"`
	Oracle *string `hcl:"oracle,optional"`
}

type schedulerBlock struct {
	Submit *string `hcl:"submit,optional"`
	Status *string `hcl:"status,optional"`
}

// resourcesBlock keeps its body raw: every attribute may be a scalar or a
// list, which a static schema cannot express.
type resourcesBlock struct {
	Body hcl.Body `hcl:",remain"`
}

// manifestFile is the top level of a manifest file.
type manifestFile struct {
	Targets   []string        `hcl:"targets,optional"`
	Resources *resourcesBlock `hcl:"resources,block"`
}
