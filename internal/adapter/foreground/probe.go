// Package foreground detects a tracked application by the owner of the
// foreground window. Only Windows exposes a foreground window; elsewhere the
// probe reports ErrUnsupported.
package foreground

import (
	"context"
	"errors"

	"github.com/Strob0t/lifelog/internal/domain/presence"
)

// ErrUnsupported is returned on platforms without a foreground window API.
var ErrUnsupported = errors.New("foreground window probe not supported on this platform")

// Probe matches the foreground window's process name against targets.
type Probe struct {
	targets []string
	// current is swappable for testing.
	current func(ctx context.Context) (string, error)
}

// New creates a foreground window probe.
func New(targets []string) *Probe {
	return &Probe{targets: targets, current: foregroundProcessName}
}

// Name implements presence.Probe.
func (p *Probe) Name() string { return "foreground" }

// Probe implements presence.Probe.
func (p *Probe) Probe(ctx context.Context) (string, bool, error) {
	name, err := p.current(ctx)
	if err != nil {
		return "", false, err
	}
	if _, ok := presence.MatchTarget(p.targets, name); ok {
		return "foreground:" + name, true, nil
	}
	return "", false, nil
}
