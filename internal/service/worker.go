package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	cfotel "github.com/Strob0t/lifelog/internal/adapter/otel"
	"github.com/Strob0t/lifelog/internal/domain"
	"github.com/Strob0t/lifelog/internal/domain/task"
	"github.com/Strob0t/lifelog/internal/fsutil"
	"github.com/Strob0t/lifelog/internal/logger"
)

// LockWorker takes the worker lock beside the task document. At most one
// process runs a worker per task document; it fails with fsutil.ErrLocked
// while another does.
func LockWorker(tasksFile string) (*fsutil.Lock, error) {
	l, err := fsutil.TryLock(tasksFile + ".worker.lock")
	if err != nil {
		return nil, fmt.Errorf("another lifelog worker is running: %w", err)
	}
	return l, nil
}

// Handler executes tasks of one type. A returned error fails the task.
type Handler interface {
	Handle(ctx context.Context, t *task.Task) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, t *task.Task) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, t *task.Task) error { return f(ctx, t) }

// Worker drains Pending tasks one at a time, dispatching each by type.
type Worker struct {
	tasks    *TaskService
	handlers map[string]Handler
	interval time.Duration
	metrics  *cfotel.Metrics
}

// NewWorker creates a worker that polls every interval.
func NewWorker(tasks *TaskService, interval time.Duration) *Worker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Worker{tasks: tasks, handlers: make(map[string]Handler), interval: interval}
}

// Register installs h for taskType, replacing any previous handler.
func (w *Worker) Register(taskType string, h Handler) { w.handlers[taskType] = h }

// SetMetrics attaches metric instruments.
func (w *Worker) SetMetrics(m *cfotel.Metrics) { w.metrics = m }

// Types returns the registered task types, sorted.
func (w *Worker) Types() []string {
	out := make([]string, 0, len(w.handlers))
	for t := range w.handlers {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Run polls until ctx is done. Task store errors are logged and the next
// poll tries again.
func (w *Worker) Run(ctx context.Context) error {
	slog.InfoContext(ctx, "worker started", "poll_interval", w.interval, "task_types", w.Types())
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
			slog.ErrorContext(ctx, "worker pass failed", "error", err)
		}
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "worker stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce processes every task that is Pending at the start of the pass, in
// document order, and returns how many reached a terminal status. Handler
// failures only mark the task Failed; the returned error is always a task
// store error. Once ctx is done no further task is started, but the task in
// flight runs to completion.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	pending, err := w.tasks.List(ctx, task.StatusPending)
	if err != nil {
		return 0, err
	}

	done := 0
	for i := range pending {
		if ctx.Err() != nil {
			break
		}
		t := &pending[i]
		if err := w.tasks.Transition(ctx, t, task.StatusProcessing, nil); err != nil {
			if errors.Is(err, domain.ErrInvalidTransition) {
				slog.InfoContext(ctx, "task claimed elsewhere, skipping", "task_id", t.ID, "error", err)
				continue
			}
			return done, err
		}

		h, ok := w.handlers[t.TaskType]
		if !ok {
			slog.WarnContext(ctx, "no handler for task type, leaving task in processing",
				"task_id", t.ID, "task_type", t.TaskType)
			continue
		}

		status, cause := w.execute(ctx, h, t)
		if err := w.tasks.Transition(context.WithoutCancel(ctx), t, status, cause); err != nil {
			return done, err
		}
		done++
	}
	return done, nil
}

func (w *Worker) execute(ctx context.Context, h Handler, t *task.Task) (task.Status, error) {
	hctx := logger.WithTaskID(context.WithoutCancel(ctx), t.ID)
	hctx, span := cfotel.StartTaskSpan(hctx, t.ID, t.TaskType)
	defer span.End()

	slog.InfoContext(hctx, "task started", "task_type", t.TaskType, "files", t.FilePaths)
	start := time.Now()
	err := h.Handle(hctx, t)
	elapsed := time.Since(start)

	if w.metrics != nil {
		w.metrics.HandlerDuration.Record(hctx, elapsed.Seconds(),
			metric.WithAttributes(attribute.String("task.type", t.TaskType), attribute.Bool("task.ok", err == nil)))
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.ErrorContext(hctx, "task failed", "task_type", t.TaskType, "duration", elapsed.Round(time.Millisecond), "error", err)
		return task.StatusFailed, err
	}
	slog.InfoContext(hctx, "task completed", "task_type", t.TaskType, "duration", elapsed.Round(time.Millisecond))
	return task.StatusCompleted, nil
}
