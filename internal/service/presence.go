package service

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Strob0t/lifelog/internal/domain/presence"
	presenceport "github.com/Strob0t/lifelog/internal/port/presence"
)

// Sampler answers whether a tracked application is active right now.
type Sampler interface {
	Sample(ctx context.Context) presence.Sample
}

// PresenceMonitor runs presence probes in priority order and returns the
// first match. It keeps only the previous sample, for edge logging; it does
// not debounce.
type PresenceMonitor struct {
	probes []presenceport.Probe

	mu   sync.Mutex
	last presence.Sample
}

// NewPresenceMonitor creates a monitor over probes, tried in the given order.
func NewPresenceMonitor(probes ...presenceport.Probe) *PresenceMonitor {
	return &PresenceMonitor{probes: probes}
}

// Sample probes once. A probe that errors counts as no match.
func (m *PresenceMonitor) Sample(ctx context.Context) presence.Sample {
	var s presence.Sample
	for _, p := range m.probes {
		match, ok, err := p.Probe(ctx)
		if err != nil {
			slog.DebugContext(ctx, "presence probe failed", "probe", p.Name(), "error", err)
			continue
		}
		if ok {
			s = presence.Sample{Present: true, Match: match}
			break
		}
	}

	m.mu.Lock()
	prev := m.last
	m.last = s
	m.mu.Unlock()

	switch {
	case s.Present && !prev.Present:
		slog.InfoContext(ctx, "target application detected", "match", s.Match)
	case !s.Present && prev.Present:
		slog.InfoContext(ctx, "target application no longer detected", "last_match", prev.Match)
	case s.Present && s.Match != prev.Match:
		slog.InfoContext(ctx, "target application match changed", "from", prev.Match, "to", s.Match)
	}
	return s
}
