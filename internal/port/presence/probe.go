// Package presence defines the port interface for presence detection strategies.
package presence

import "context"

// Probe is one strategy for deciding whether a tracked application is active.
type Probe interface {
	// Name is a short identifier used as the match prefix, e.g. "process".
	Name() string

	// Probe reports whether any target is active and, if so, what matched.
	// An error means the strategy could not run; callers treat it as no match.
	Probe(ctx context.Context) (match string, ok bool, err error)
}
