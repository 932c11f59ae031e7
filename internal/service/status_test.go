package service

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Strob0t/lifelog/internal/config"
	"github.com/Strob0t/lifelog/internal/domain/task"
)

func TestStatusReport(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	svc := newTaskService(t)

	// 36 seconds of 16 kHz mono 16-bit audio.
	clip := make([]byte, 44+16000*2*36)
	if err := os.WriteFile(filepath.Join(dir, "20260314_210000.wav"), clip, 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "20260314_230000.wav.part"), partialWAV(10), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, CaptureLockFile), nil, 0o600); err != nil {
		t.Fatal(err)
	}
	old := filepath.Join(dir, "20260301_100000.opus")
	if err := os.WriteFile(old, []byte("opus"), 0o600); err != nil {
		t.Fatal(err)
	}
	twoDaysAgo := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(old, twoDaysAgo, twoDaysAgo); err != nil {
		t.Fatal(err)
	}

	a, _ := svc.Enqueue(ctx, task.TypeProcessSession, []string{"x.wav"})
	_, _ = svc.Enqueue(ctx, task.TypeSyncActivity, []string{"y.jsonl"})
	_ = svc.Transition(ctx, a, task.StatusProcessing, nil)

	rep, err := NewStatusService(svc, dir, config.Defaults().Capture).Report(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if rep.Recordings != 1 || rep.Partial != 1 {
		t.Errorf("recordings=%d partial=%d, want 1 and 1", rep.Recordings, rep.Partial)
	}
	if math.Abs(rep.RecordedHours-0.01) > 1e-9 {
		t.Errorf("hours = %v, want 0.01", rep.RecordedHours)
	}
	if rep.TasksCreated != 2 || rep.TasksByStatus[task.StatusPending] != 1 || rep.TasksByStatus[task.StatusProcessing] != 1 {
		t.Errorf("tasks: created=%d by status=%v", rep.TasksCreated, rep.TasksByStatus)
	}
}

func TestStatusReportMissingDir(t *testing.T) {
	svc := newTaskService(t)
	rep, err := NewStatusService(svc, filepath.Join(t.TempDir(), "none"), config.Defaults().Capture).Report(context.Background(), time.Hour)
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if rep.Recordings != 0 || rep.RecordedHours != 0 {
		t.Fatalf("unexpected report %+v", rep)
	}
}
