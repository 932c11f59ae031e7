// Package localenv prepares directories and the configuration file on the
// local filesystem.
package localenv

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Strob0t/lifelog/internal/config"
	"github.com/Strob0t/lifelog/internal/port/environment"
)

var _ environment.Environment = (*Environment)(nil)

// Environment implements environment.Environment. When a prompt reader is
// set, EnsureConfig asks for the most commonly changed settings.
type Environment struct {
	cfg        *config.Config
	configPath string

	in  *bufio.Reader
	out io.Writer
}

// New creates an Environment for cfg that writes its config to configPath.
func New(cfg *config.Config, configPath string) *Environment {
	return &Environment{cfg: cfg, configPath: configPath}
}

// Interactive enables prompting on in, with questions written to out.
func (e *Environment) Interactive(in io.Reader, out io.Writer) {
	e.in = bufio.NewReader(in)
	e.out = out
}

// Dirs lists the directories the agent writes to, without duplicates.
func (e *Environment) Dirs() []string {
	p := e.cfg.Paths
	candidates := []string{
		p.DataDir,
		p.RecordingsDir,
		p.TranscriptsDir,
		p.SummariesDir,
		p.LogsDir,
		filepath.Dir(p.TasksFile),
		filepath.Dir(e.configPath),
	}
	if e.cfg.Events.Driver == "file" {
		candidates = append(candidates, filepath.Dir(e.cfg.Events.File))
	}
	if e.cfg.Watch.Enabled {
		candidates = append(candidates, e.cfg.Watch.Dir)
	}

	seen := make(map[string]bool, len(candidates))
	out := make([]string, 0, len(candidates))
	for _, d := range candidates {
		d = filepath.Clean(d)
		if d == "." || d == "" || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	return out
}

// EnsureDirectories creates every directory in Dirs.
func (e *Environment) EnsureDirectories(ctx context.Context) error {
	for _, dir := range e.Dirs() {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
		slog.DebugContext(ctx, "directory ready", "path", dir)
	}
	return nil
}

// EnsureConfig leaves an existing file alone. Otherwise it writes the
// current configuration, after prompting if Interactive was called.
func (e *Environment) EnsureConfig(ctx context.Context) (string, bool, error) {
	if _, err := os.Stat(e.configPath); err == nil {
		slog.InfoContext(ctx, "config already exists", "path", e.configPath)
		return e.configPath, false, nil
	}

	cfg := *e.cfg
	cfg.Gemini.APIKey = "" // secrets stay in the environment
	if e.in != nil {
		if err := e.prompt(&cfg); err != nil {
			return "", false, err
		}
	}

	if err := os.MkdirAll(filepath.Dir(e.configPath), 0o755); err != nil {
		return "", false, fmt.Errorf("create config dir: %w", err)
	}
	if err := config.WriteDefault(e.configPath, &cfg); err != nil {
		if errors.Is(err, os.ErrExist) {
			return e.configPath, false, nil
		}
		return "", false, err
	}
	slog.InfoContext(ctx, "config written", "path", e.configPath)
	return e.configPath, true, nil
}

func (e *Environment) prompt(cfg *config.Config) error {
	targets, err := e.ask("Applications to watch (comma separated)", strings.Join(cfg.Presence.Targets, ","))
	if err != nil {
		return err
	}
	var list []string
	for _, t := range strings.Split(targets, ",") {
		if t = strings.TrimSpace(t); t != "" {
			list = append(list, t)
		}
	}
	if len(list) > 0 {
		cfg.Presence.Targets = list
	}

	interval, err := e.ask("Check interval", cfg.Presence.CheckInterval.String())
	if err != nil {
		return err
	}
	d, err := time.ParseDuration(interval)
	if err != nil || d <= 0 {
		return fmt.Errorf("check interval %q: must be a positive duration such as 5s", interval)
	}
	cfg.Presence.CheckInterval = d

	device, err := e.ask("Audio input device (blank = default)", cfg.Capture.Device)
	if err != nil {
		return err
	}
	cfg.Capture.Device = device
	return nil
}

func (e *Environment) ask(question, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(e.out, "%s [%s]: ", question, def)
	} else {
		fmt.Fprintf(e.out, "%s: ", question)
	}
	line, err := e.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read answer: %w", err)
	}
	if line = strings.TrimSpace(line); line == "" {
		return def, nil
	}
	return line, nil
}
