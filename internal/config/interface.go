package config

import "context"

// Loader is the interface for a format-specific configuration loader.
type Loader interface {
	// LoadProfiles returns the built-in profiles merged with the profiles
	// found under paths. Later definitions override earlier ones field by
	// field.
	LoadProfiles(ctx context.Context, paths ...string) (Profiles, error)

	// LoadManifest reads a single manifest file.
	LoadManifest(ctx context.Context, path string) (*Manifest, error)
}
