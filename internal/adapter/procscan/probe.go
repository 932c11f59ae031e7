// Package procscan detects tracked applications by scanning the local
// process table.
package procscan

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/Strob0t/lifelog/internal/domain/presence"
)

type procEntry struct {
	pid  int32
	name string
	exe  string
}

// Probe matches targets against process names, then executable paths.
type Probe struct {
	targets []string
	// list is swappable for testing.
	list func(ctx context.Context) ([]procEntry, error)
}

// New creates a process table probe for the given target names.
func New(targets []string) *Probe {
	return &Probe{targets: targets, list: listProcesses}
}

// Name implements presence.Probe.
func (p *Probe) Name() string { return "process" }

// Probe implements presence.Probe.
func (p *Probe) Probe(ctx context.Context) (string, bool, error) {
	procs, err := p.list(ctx)
	if err != nil {
		return "", false, fmt.Errorf("list processes: %w", err)
	}
	for _, pr := range procs {
		if _, ok := presence.MatchTarget(p.targets, pr.name); ok {
			return fmt.Sprintf("process:%s (pid=%d)", pr.name, pr.pid), true, nil
		}
	}
	for _, pr := range procs {
		if _, ok := presence.MatchTarget(p.targets, pr.exe); ok {
			return fmt.Sprintf("process:%s (pid=%d)", pr.exe, pr.pid), true, nil
		}
	}
	return "", false, nil
}

func listProcesses(ctx context.Context) ([]procEntry, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]procEntry, 0, len(procs))
	for _, p := range procs {
		// Processes exit between listing and inspection; skip them.
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		exe, _ := p.ExeWithContext(ctx)
		out = append(out, procEntry{pid: p.Pid, name: name, exe: exe})
	}
	return out, nil
}
