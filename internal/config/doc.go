// Package config defines the format-agnostic configuration model: deployment
// profiles, which say where and how targets are dispatched, and manifests,
// which carry targets and their resource requests. Concrete file formats
// live in separate packages behind the Loader interface.
package config
