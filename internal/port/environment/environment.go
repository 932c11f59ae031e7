// Package environment defines the port interface for preparing the host
// before the agent runs.
package environment

import "context"

// Environment prepares on-disk state.
type Environment interface {
	// EnsureDirectories creates every directory the agent writes to.
	EnsureDirectories(ctx context.Context) error

	// EnsureConfig writes a configuration file if none exists yet and
	// reports its path and whether it was created.
	EnsureConfig(ctx context.Context) (path string, created bool, err error)
}
