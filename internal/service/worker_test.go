package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/Strob0t/lifelog/internal/adapter/jsonstore"
	"github.com/Strob0t/lifelog/internal/domain/task"
	"github.com/Strob0t/lifelog/internal/logger"
	"github.com/Strob0t/lifelog/internal/resilience"
)

func newTaskService(t *testing.T) *TaskService {
	t.Helper()
	store, err := jsonstore.New(filepath.Join(t.TempDir(), "tasks.json"))
	if err != nil {
		t.Fatalf("jsonstore.New: %v", err)
	}
	return NewTaskService(store, nil)
}

func statusOf(t *testing.T, svc *TaskService, id string) task.Status {
	t.Helper()
	got, err := svc.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get %s: %v", id, err)
	}
	return got.Status
}

func TestWorkerDispatchesByType(t *testing.T) {
	ctx := context.Background()
	svc := newTaskService(t)
	ok, _ := svc.Enqueue(ctx, task.TypeProcessSession, []string{"a.wav"})
	bad, _ := svc.Enqueue(ctx, task.TypeSyncActivity, []string{"b.jsonl"})
	unknown, _ := svc.Enqueue(ctx, "upload_drive", []string{"c.txt"})

	var seen []string
	w := NewWorker(svc, time.Second)
	w.Register(task.TypeProcessSession, HandlerFunc(func(ctx context.Context, tk *task.Task) error {
		if logger.TaskID(ctx) != tk.ID {
			t.Errorf("handler context carries task_id %q, want %q", logger.TaskID(ctx), tk.ID)
		}
		seen = append(seen, tk.ID)
		return nil
	}))
	w.Register(task.TypeSyncActivity, HandlerFunc(func(context.Context, *task.Task) error {
		return errors.New("malformed export")
	}))

	n, err := w.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if n != 2 {
		t.Fatalf("processed %d tasks, want 2", n)
	}
	if len(seen) != 1 || seen[0] != ok.ID {
		t.Fatalf("handler saw %v", seen)
	}
	if got := statusOf(t, svc, ok.ID); got != task.StatusCompleted {
		t.Errorf("ok task: %s", got)
	}
	if got := statusOf(t, svc, bad.ID); got != task.StatusFailed {
		t.Errorf("failing task: %s", got)
	}
	if got := statusOf(t, svc, unknown.ID); got != task.StatusProcessing {
		t.Errorf("unknown type task: %s, want processing", got)
	}

	// Nothing is pending any more; failed tasks are not retried.
	n, err = w.RunOnce(ctx)
	if err != nil || n != 0 {
		t.Fatalf("second pass: n=%d err=%v", n, err)
	}
}

func TestWorkerSkipsTaskClaimedByAnotherStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tasks.json")
	open := func() *TaskService {
		store, err := jsonstore.New(path)
		if err != nil {
			t.Fatalf("jsonstore.New: %v", err)
		}
		return NewTaskService(store, nil)
	}
	svcA, svcB := open(), open()

	first, _ := svcA.Enqueue(ctx, task.TypeProcessSession, []string{"a.wav"})
	second, _ := svcA.Enqueue(ctx, task.TypeProcessSession, []string{"b.wav"})

	runs := map[string]int{}
	count := HandlerFunc(func(_ context.Context, tk *task.Task) error {
		runs[tk.ID]++
		return nil
	})
	other := NewWorker(svcB, time.Second)
	other.Register(task.TypeProcessSession, count)

	// While the first task is in flight the other worker drains the second,
	// so the first worker's pending snapshot of it is stale.
	w := NewWorker(svcA, time.Second)
	w.Register(task.TypeProcessSession, HandlerFunc(func(ctx context.Context, tk *task.Task) error {
		if tk.ID == first.ID {
			if _, err := other.RunOnce(ctx); err != nil {
				t.Errorf("other RunOnce: %v", err)
			}
		}
		return count(ctx, tk)
	}))

	n, err := w.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if n != 1 {
		t.Fatalf("processed %d tasks, want 1", n)
	}
	if runs[first.ID] != 1 || runs[second.ID] != 1 {
		t.Fatalf("handler runs per task: %v", runs)
	}
	if got := statusOf(t, svcA, second.ID); got != task.StatusCompleted {
		t.Errorf("second task: %s", got)
	}
}

func TestWorkerTransientFailuresThenSuccess(t *testing.T) {
	ctx := context.Background()
	svc := newTaskService(t)
	tk, _ := svc.Enqueue(ctx, task.TypeProcessSession, []string{"a.wav"})

	policy := resilience.Policy{MaxAttempts: 4, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
	calls := 0
	w := NewWorker(svc, time.Second)
	w.Register(task.TypeProcessSession, HandlerFunc(func(ctx context.Context, _ *task.Task) error {
		return resilience.Retry(ctx, policy, "transcribe", func(context.Context) error {
			calls++
			if calls <= 2 {
				return errors.New("503 from backend")
			}
			return nil
		})
	}))

	if _, err := w.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if got := statusOf(t, svc, tk.ID); got != task.StatusCompleted {
		t.Fatalf("status = %s, want completed", got)
	}
}

func TestWorkerRetryExhaustionFailsTask(t *testing.T) {
	ctx := context.Background()
	svc := newTaskService(t)
	tk, _ := svc.Enqueue(ctx, task.TypeProcessSession, []string{"a.wav"})

	policy := resilience.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
	w := NewWorker(svc, time.Second)
	w.Register(task.TypeProcessSession, HandlerFunc(func(ctx context.Context, _ *task.Task) error {
		return resilience.Retry(ctx, policy, "summarize", func(context.Context) error {
			return errors.New("timeout")
		})
	}))

	if _, err := w.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if got := statusOf(t, svc, tk.ID); got != task.StatusFailed {
		t.Fatalf("status = %s, want failed", got)
	}
}

func TestWorkerFinishesInFlightTaskOnCancel(t *testing.T) {
	svc := newTaskService(t)
	first, _ := svc.Enqueue(context.Background(), task.TypeProcessSession, []string{"a.wav"})
	second, _ := svc.Enqueue(context.Background(), task.TypeProcessSession, []string{"b.wav"})

	ctx, cancel := context.WithCancel(context.Background())
	w := NewWorker(svc, time.Second)
	w.Register(task.TypeProcessSession, HandlerFunc(func(hctx context.Context, _ *task.Task) error {
		cancel()
		if hctx.Err() != nil {
			return errors.New("handler context must not be cancelled by shutdown")
		}
		return nil
	}))

	n, err := w.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if n != 1 {
		t.Fatalf("processed %d, want 1", n)
	}
	if got := statusOf(t, svc, first.ID); got != task.StatusCompleted {
		t.Errorf("in-flight task: %s, want completed", got)
	}
	if got := statusOf(t, svc, second.ID); got != task.StatusPending {
		t.Errorf("next task: %s, want pending", got)
	}
}

func TestWorkerRunStopsOnCancel(t *testing.T) {
	svc := newTaskService(t)
	w := NewWorker(svc, time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
}
