package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Strob0t/lifelog/internal/adapter/fswatch"
	"github.com/Strob0t/lifelog/internal/adapter/localenv"
	"github.com/Strob0t/lifelog/internal/adapter/malgo"
	"github.com/Strob0t/lifelog/internal/adapter/sysres"
	"github.com/Strob0t/lifelog/internal/capture"
	"github.com/Strob0t/lifelog/internal/service"
)

// cpuWindow is how long each health sample measures CPU load.
const cpuWindow = time.Second

func newMonitorCmd(a *app) *cobra.Command {
	var noWorker bool
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Record while a tracked application runs and process finished sessions",
		Long: `Watch for the configured applications, record audio while one is present
and queue each finished recording for processing.

Unless --no-worker is given the task worker runs in the same process. Use
'lifelog worker' to run it separately. Interrupted sessions left on disk by a
crash are finalized and queued before monitoring starts.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMonitor(cmd.Context(), a, noWorker)
		},
	}
	cmd.Flags().BoolVar(&noWorker, "no-worker", false, "Only capture; leave task processing to 'lifelog worker'")
	return cmd
}

func runMonitor(ctx context.Context, a *app, noWorker bool) error {
	cfg := a.cfg

	// --- Environment ---
	if err := localenv.New(cfg, a.configPath).EnsureDirectories(ctx); err != nil {
		return err
	}

	// --- Capture lock ---
	lock, err := service.LockCapture(cfg.Paths.RecordingsDir)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	// --- Infrastructure ---
	tasks, err := a.openTasks(ctx)
	if err != nil {
		return err
	}

	backend, err := malgo.New()
	if err != nil {
		return fmt.Errorf("audio backend: %w", err)
	}
	defer func() { _ = backend.Close() }()

	ctrl := capture.NewController(backend)
	ctrl.OnPeak(func(peak float64) {
		a.metrics.PeakAmplitude.Record(ctx, peak)
	})

	// --- Recovery ---
	recovered, err := service.NewRecovery(cfg.Paths.RecordingsDir, tasks).Run(ctx)
	if err != nil {
		return fmt.Errorf("recover partial recordings: %w", err)
	}
	if recovered > 0 {
		slog.Info("partial recordings recovered", "count", recovered)
	}

	// --- Services ---
	trigger := service.NewTrigger(service.TriggerConfigFrom(cfg), a.newPresence(), ctrl, tasks, a.openQueue(ctx))
	trigger.SetMetrics(a.metrics)

	var worker *service.Worker
	if !noWorker {
		worker, err = a.newWorker(ctx)
		if err != nil {
			return err
		}
	}

	// --- Loops ---
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return trigger.Run(gctx) })
	if worker != nil {
		g.Go(func() error { return worker.Run(gctx) })
	}
	if cfg.Health.Enabled {
		health := service.NewHealthMonitor(cfg.Health, sysres.New(cpuWindow))
		g.Go(func() error { return health.Run(gctx) })
	}
	if cfg.Watch.Enabled {
		watcher := fswatch.New(cfg.Watch.Dir, cfg.Watch.Settle, service.NewIntake(tasks).Handle)
		g.Go(func() error { return watcher.Run(gctx) })
	}

	slog.Info("monitor started", "targets", cfg.Presence.Targets, "worker", worker != nil,
		"health", cfg.Health.Enabled, "watch", cfg.Watch.Enabled)
	err = g.Wait()
	slog.Info("monitor stopped")
	return err
}
