package hcl

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/redogrid/internal/config"
	"github.com/vk/redogrid/internal/ctxlog"
	"github.com/vk/redogrid/internal/fsutil"
	"github.com/vk/redogrid/internal/model"
)

//go:embed builtin.hcl
var builtinProfiles []byte

const builtinFilename = "builtin.hcl"

// Loader is the HCL-specific implementation of the config.Loader interface.
type Loader struct{}

// NewLoader creates a new HCL configuration loader.
func NewLoader() *Loader {
	return &Loader{}
}

var _ config.Loader = (*Loader)(nil)

// LoadProfiles parses the built-in profiles, then every .hcl file found
// under paths in order. A profile defined again replaces only the
// attributes its new definition sets.
func (l *Loader) LoadProfiles(ctx context.Context, paths ...string) (config.Profiles, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL profile loader started.", "path_count", len(paths))

	parser := hclparse.NewParser()
	profiles := make(config.Profiles)

	builtin, diags := parser.ParseHCL(builtinProfiles, builtinFilename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse built-in profiles: %w", diags)
	}
	if err := l.mergeProfiles(ctx, builtin, profiles); err != nil {
		return nil, fmt.Errorf("failed to decode built-in profiles: %w", err)
	}

	for _, path := range paths {
		files, err := fsutil.FindFilesByExtension(path, ".hcl")
		if err != nil {
			return nil, fmt.Errorf("error accessing profiles path %s: %w", path, err)
		}
		logger.Debug("Discovered profile files.", "path", path, "count", len(files))

		for _, file := range files {
			hclFile, diags := parser.ParseHCLFile(file)
			if diags.HasErrors() {
				return nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
			}
			if err := l.mergeProfiles(ctx, hclFile, profiles); err != nil {
				return nil, fmt.Errorf("failed to decode HCL file %s: %w", file, err)
			}
		}
	}

	for _, name := range profiles.Names() {
		if err := profiles[name].Validate(); err != nil {
			return nil, err
		}
	}

	logger.Debug("HCL profile loading complete.", "profiles", profiles.Names())
	return profiles, nil
}

// LoadManifest reads the targets and resource requests of a manifest file.
func (l *Loader) LoadManifest(ctx context.Context, path string) (*config.Manifest, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Loading manifest.", "path", path)

	parser := hclparse.NewParser()
	hclFile, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", path, diags)
	}

	var root manifestFile
	if diags := gohcl.DecodeBody(hclFile.Body, nil, &root); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", path, diags)
	}

	resources, err := decodeResources(ctx, root.Resources)
	if err != nil {
		return nil, fmt.Errorf("failed to decode resources in %s: %w", path, err)
	}

	m := &config.Manifest{
		Targets:   model.Targets(root.Targets...),
		Resources: resources,
	}
	logger.Debug("Manifest loaded.", "targets", len(m.Targets), "partition", m.Resources.Partition.String())
	return m, nil
}

func (l *Loader) mergeProfiles(ctx context.Context, file *hcl.File, into config.Profiles) error {
	var root profileFile
	if diags := gohcl.DecodeBody(file.Body, nil, &root); diags.HasErrors() {
		return diags
	}

	for _, block := range root.Profiles {
		base, exists := into[block.Name]
		if exists {
			ctxlog.FromContext(ctx).Debug("Overriding profile.", "profile", block.Name)
		}
		prof, err := translateProfile(ctx, block, base)
		if err != nil {
			return fmt.Errorf("profile %q: %w", block.Name, err)
		}
		into[prof.Name] = prof
	}
	return nil
}

// translateProfile applies the attributes set in block on top of base,
// which may be nil.
func translateProfile(ctx context.Context, block *profileBlock, base *config.Profile) (*config.Profile, error) {
	var p *config.Profile
	if base != nil {
		p = base.Clone()
	} else {
		p = &config.Profile{Name: block.Name}
	}

	setString(&p.Mode, block.Mode)
	setString(&p.WorkspaceEnv, block.WorkspaceEnv)
	setString(&p.UserEnv, block.UserEnv)
	if block.PollInterval != nil {
		d, err := time.ParseDuration(*block.PollInterval)
		if err != nil {
			return nil, fmt.Errorf("poll_interval: %w", err)
		}
		p.PollInterval = d
	}
	setList(&p.GPUPartitions, block.GPUPartitions)
	setList(&p.ActiveStates, block.ActiveStates)
	setList(&p.StripEnv, block.StripEnv)
	setList(&p.InheritFDEnv, block.InheritFDEnv)

	if block.BuildTool != nil {
		setString(&p.BuildTool.Ensure, block.BuildTool.Ensure)
		setString(&p.BuildTool.Oracle, block.BuildTool.Oracle)
	}
	if block.Scheduler != nil {
		setString(&p.Scheduler.Submit, block.Scheduler.Submit)
		setString(&p.Scheduler.Status, block.Scheduler.Status)
	}
	if block.Resources != nil {
		res, err := decodeResources(ctx, block.Resources)
		if err != nil {
			return nil, err
		}
		p.Resources = res.WithDefaults(p.Resources)
	}
	return p, nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setList(dst *[]string, v []string) {
	if v != nil {
		*dst = v
	}
}
