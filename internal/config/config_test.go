package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
}

func TestSelectName(t *testing.T) {
	env := lookupFrom(map[string]string{ProfileEnv: " slurm "})

	assert.Equal(t, "local", SelectName("local", env), "explicit name wins")
	assert.Equal(t, "slurm", SelectName("", env))
	assert.Equal(t, "", SelectName("", lookupFrom(nil)))
	assert.Equal(t, "", SelectName("", nil))
}

func TestProfiles_Resolve(t *testing.T) {
	profiles := Profiles{
		"slurm": {Name: "slurm", Mode: "remote"},
		"local": {Name: "local", Mode: "local"},
	}

	prof, err := profiles.Resolve("local")
	require.NoError(t, err)
	assert.Equal(t, "local", prof.Mode)

	_, err = profiles.Resolve("cluster")
	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "cluster", cfgErr.Profile)
	assert.Equal(t, []string{"local", "slurm"}, cfgErr.Known)
	assert.Contains(t, err.Error(), "known profiles: local, slurm")

	_, err = profiles.Resolve("")
	require.True(t, errors.As(err, &cfgErr))
	assert.Contains(t, err.Error(), ProfileEnv)
}

func TestProfile_Validate(t *testing.T) {
	tests := []struct {
		name    string
		profile Profile
		wantErr string
	}{
		{name: "local", profile: Profile{Name: "a", Mode: "local"}},
		{name: "remote", profile: Profile{Name: "a", Mode: "remote", WorkspaceEnv: "WORK"}},
		{name: "missing mode", profile: Profile{Name: "a"}, wantErr: "mode is not set"},
		{name: "bad mode", profile: Profile{Name: "a", Mode: "cloud"}, wantErr: `mode "cloud"`},
		{name: "remote without workspace", profile: Profile{Name: "a", Mode: "remote"}, wantErr: "workspace_env"},
		{name: "negative interval", profile: Profile{Name: "a", Mode: "local", PollInterval: -time.Second}, wantErr: "poll_interval"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.profile.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestProfile_CloneIsDeep(t *testing.T) {
	orig := &Profile{Name: "a", GPUPartitions: []string{"gpu-a"}}
	c := orig.Clone()
	c.GPUPartitions[0] = "changed"
	assert.Equal(t, "gpu-a", orig.GPUPartitions[0])
}
