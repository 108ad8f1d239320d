// Package app contains the core application logic. It resolves the
// deployment profile, wires the build tool, scheduler and event publishers
// into a dispatcher and runs one dispatch, decoupled from any specific
// entrypoint like a CLI.
package app
