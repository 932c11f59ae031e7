// Package wslproc detects tracked Windows applications from inside WSL by
// querying the host through powershell.exe.
package wslproc

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/Strob0t/lifelog/internal/domain/presence"
)

// PowerShellPath is the Windows PowerShell binary as mounted in WSL.
const PowerShellPath = "/mnt/c/Windows/System32/WindowsPowerShell/v1.0/powershell.exe"

// Probe asks the Windows host for running processes named like the targets.
type Probe struct {
	names []string
	// execCommand is swappable for testing.
	execCommand func(ctx context.Context, name string, args ...string) *exec.Cmd
	getenv      func(string) string
}

// New creates a WSL host probe. Targets are reduced to base names without ".exe".
func New(targets []string) *Probe {
	names := make([]string, 0, len(targets))
	for _, t := range targets {
		if n := presence.BaseName(t); n != "" {
			names = append(names, n)
		}
	}
	return &Probe{names: names, execCommand: exec.CommandContext, getenv: os.Getenv}
}

// Name implements presence.Probe.
func (p *Probe) Name() string { return "wsl" }

// Available reports whether the process runs inside WSL.
func (p *Probe) Available() bool {
	return p.getenv("WSL_DISTRO_NAME") != ""
}

// Probe implements presence.Probe. Outside WSL it never matches.
func (p *Probe) Probe(ctx context.Context) (string, bool, error) {
	if !p.Available() || len(p.names) == 0 {
		return "", false, nil
	}

	script := fmt.Sprintf("Get-Process -Name %s -ErrorAction SilentlyContinue | Select-Object -ExpandProperty ProcessName",
		strings.Join(p.names, ","))
	cmd := p.execCommand(ctx, PowerShellPath, "-NoLogo", "-NoProfile", "-Command", script)
	out, err := cmd.Output()
	if err != nil {
		return "", false, fmt.Errorf("powershell Get-Process: %w", err)
	}

	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		if name := strings.TrimSpace(sc.Text()); name != "" {
			return "wsl:" + name, true, nil
		}
	}
	return "", false, nil
}
