package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Strob0t/lifelog/internal/adapter/ffmpeg"
	"github.com/Strob0t/lifelog/internal/adapter/jsonstore"
	"github.com/Strob0t/lifelog/internal/adapter/localenv"
	"github.com/Strob0t/lifelog/internal/adapter/postgres"
	"github.com/Strob0t/lifelog/internal/capture"
	"github.com/Strob0t/lifelog/internal/config"
)

var errDoctor = errors.New("doctor found problems")

// check is one doctor probe. A non-nil error fails the run unless optional
// is set, in which case it is reported as a warning.
type check struct {
	name     string
	optional bool
	run      func(ctx context.Context) (string, error)
}

func newDoctorCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the installation and report problems",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChecks(cmd.Context(), cmd.OutOrStdout(), doctorChecks(a))
		},
	}
}

func doctorChecks(a *app) []check {
	cfg := a.cfg
	checks := []check{
		{name: "config", run: func(context.Context) (string, error) {
			if _, err := os.Stat(a.configPath); err != nil {
				return "defaults (no " + a.configPath + "; run 'lifelog setup')", nil
			}
			return a.configPath, nil
		}},
		{name: "directories", run: func(context.Context) (string, error) {
			return checkDirs(localenv.New(cfg, a.configPath).Dirs())
		}},
		{name: "task document", run: func(ctx context.Context) (string, error) {
			store, err := jsonstore.New(cfg.Paths.TasksFile)
			if err != nil {
				return "", err
			}
			all, err := store.Load(ctx)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%s (%d tasks)", store.Path(), len(all)), nil
		}},
		{name: "ffmpeg", optional: !cfg.Transcode.Enabled, run: func(ctx context.Context) (string, error) {
			return ffmpeg.New(cfg.Transcode).Version(ctx)
		}},
		{name: "capture device", run: func(context.Context) (string, error) {
			return checkDevice(cfg.Capture)
		}},
		{name: "gemini api key", optional: true, run: func(context.Context) (string, error) {
			if cfg.Gemini.APIKey == "" {
				return "", errors.New("GOOGLE_API_KEY is not set; summaries will be placeholders")
			}
			return "set (model " + cfg.Gemini.Model + ")", nil
		}},
	}
	if cfg.Events.Driver == "postgres" {
		checks = append(checks, check{name: "postgres", run: func(ctx context.Context) (string, error) {
			v, err := postgres.MigrationVersion(ctx, cfg.Postgres.DSN)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("migration version %d", v), nil
		}})
	}
	return checks
}

func runChecks(ctx context.Context, out io.Writer, checks []check) error {
	failed := 0
	for _, c := range checks {
		detail, err := c.run(ctx)
		switch {
		case err == nil:
			_, _ = fmt.Fprintf(out, "ok    %-15s %s\n", c.name, detail)
		case c.optional:
			_, _ = fmt.Fprintf(out, "warn  %-15s %v\n", c.name, err)
		default:
			failed++
			_, _ = fmt.Fprintf(out, "FAIL  %-15s %v\n", c.name, err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%w: %d check(s) failed", errDoctor, failed)
	}
	return nil
}

func checkDirs(dirs []string) (string, error) {
	var missing []string
	for _, d := range dirs {
		info, err := os.Stat(d)
		if err != nil || !info.IsDir() {
			missing = append(missing, d)
		}
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("missing %v; run 'lifelog setup'", missing)
	}
	return fmt.Sprintf("%d present", len(dirs)), nil
}

func checkDevice(capt config.Capture) (string, error) {
	devices, err := listDevices()
	if err != nil {
		return "", err
	}
	d, err := capture.SelectDevice(devices, capt.Device)
	if err != nil {
		return "", err
	}
	if _, err := capture.SelectFormat(d, capt.SampleRate, capt.Channels); err != nil {
		return "", err
	}
	return d.Name, nil
}
