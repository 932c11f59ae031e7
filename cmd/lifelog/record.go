package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/Strob0t/lifelog/internal/adapter/malgo"
	"github.com/Strob0t/lifelog/internal/capture"
	"github.com/Strob0t/lifelog/internal/domain/task"
	"github.com/Strob0t/lifelog/internal/service"
)

// producerPoll is how often a manual recording checks that capture is alive.
const producerPoll = time.Second

func newRecordCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "record",
		Short: "Record until interrupted, then queue the recording",
		Long: `Start a capture immediately, regardless of presence, and stop it on
Ctrl+C. The finished recording is queued as a process_session task.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRecord(cmd.Context(), a)
		},
	}
}

func runRecord(ctx context.Context, a *app) error {
	lock, err := service.LockCapture(a.cfg.Paths.RecordingsDir)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

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

	started := time.Now()
	path := service.RecordingPath(a.cfg.Paths.RecordingsDir, started)
	if err := ctrl.Start(path, service.CaptureOptions(a.cfg.Capture)); err != nil {
		return fmt.Errorf("start capture: %w", err)
	}
	slog.Info("recording, press Ctrl+C to stop", "path", path)

	ticker := time.NewTicker(producerPoll)
	defer ticker.Stop()
wait:
	for ctrl.Active() {
		select {
		case <-ctx.Done():
			break wait
		case <-ticker.C:
		}
	}

	final, err := ctrl.Stop()
	if err != nil {
		return fmt.Errorf("stop capture: %w", err)
	}
	if final == "" {
		return errors.New("capture ended without a recording")
	}
	slog.Info("recording finished", "path", final, "duration", time.Since(started).Round(time.Second))

	t, err := tasks.Enqueue(context.WithoutCancel(ctx), task.TypeProcessSession, []string{final})
	if err != nil {
		return err
	}
	slog.Info("recording queued", "task_id", t.ID)
	return nil
}
