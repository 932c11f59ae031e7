// Package service holds lifelog's use cases: presence sampling, the capture
// trigger, crash recovery and the task queue with its handlers.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	cfotel "github.com/Strob0t/lifelog/internal/adapter/otel"
	"github.com/Strob0t/lifelog/internal/domain"
	"github.com/Strob0t/lifelog/internal/domain/task"
	"github.com/Strob0t/lifelog/internal/port/messagequeue"
	"github.com/Strob0t/lifelog/internal/port/taskstore"
)

// Enqueuer adds work to the task queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, taskType string, filePaths []string) (*task.Task, error)
}

// TaskService handles task lifecycle rules and notifications on top of the
// task store.
type TaskService struct {
	store   taskstore.Store
	queue   messagequeue.Publisher
	metrics *cfotel.Metrics
}

// NewTaskService creates a new TaskService. A nil queue disables notifications.
func NewTaskService(store taskstore.Store, queue messagequeue.Publisher) *TaskService {
	if queue == nil {
		queue = messagequeue.Nop{}
	}
	return &TaskService{store: store, queue: queue}
}

// SetMetrics attaches metric instruments.
func (s *TaskService) SetMetrics(m *cfotel.Metrics) { s.metrics = m }

// Enqueue persists a new Pending task, then announces it. The task is
// durable before the notification goes out; a failed publish is only logged.
func (s *TaskService) Enqueue(ctx context.Context, taskType string, filePaths []string) (*task.Task, error) {
	t, err := s.store.Add(ctx, taskType, filePaths)
	if err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", taskType, err)
	}
	slog.InfoContext(ctx, "task enqueued", "task_id", t.ID, "task_type", taskType, "files", filePaths)

	if s.metrics != nil {
		s.metrics.TasksEnqueued.Add(ctx, 1, metric.WithAttributes(attribute.String("task.type", taskType)))
	}
	s.publish(ctx, messagequeue.SubjectTaskCreated, messagequeue.TaskCreatedPayload{
		TaskID:    t.ID,
		TaskType:  t.TaskType,
		FilePaths: t.FilePaths,
		CreatedAt: t.CreatedAt,
	})
	return t, nil
}

// List returns tasks in document order, optionally filtered by status.
func (s *TaskService) List(ctx context.Context, status task.Status) ([]task.Task, error) {
	all, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if status == "" {
		return all, nil
	}
	out := make([]task.Task, 0, len(all))
	for i := range all {
		if all[i].Status == status {
			out = append(out, all[i])
		}
	}
	return out, nil
}

// Get returns a task by ID.
func (s *TaskService) Get(ctx context.Context, id string) (*task.Task, error) {
	all, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].ID == id {
			return &all[i], nil
		}
	}
	return nil, fmt.Errorf("task %s: %w", id, domain.ErrNotFound)
}

// Transition moves t to status after checking the lifecycle, persists it and
// updates t in place. The store only applies the change while the stored
// status still equals t.Status; otherwise domain.ErrInvalidTransition is
// returned and t is left as is. cause is attached to the notification of a
// failure.
func (s *TaskService) Transition(ctx context.Context, t *task.Task, to task.Status, cause error) error {
	if err := task.CheckTransition(t.Status, to, false); err != nil {
		return fmt.Errorf("task %s: %w", t.ID, err)
	}
	if err := s.store.UpdateStatus(ctx, t.ID, t.Status, to); err != nil {
		return err
	}
	t.Status = to

	if s.metrics != nil {
		attrs := metric.WithAttributes(attribute.String("task.type", t.TaskType))
		switch to {
		case task.StatusCompleted:
			s.metrics.TasksCompleted.Add(ctx, 1, attrs)
		case task.StatusFailed:
			s.metrics.TasksFailed.Add(ctx, 1, attrs)
		}
	}

	payload := messagequeue.TaskStatusPayload{TaskID: t.ID, Status: string(to)}
	if cause != nil {
		payload.Error = cause.Error()
	}
	s.publish(ctx, messagequeue.SubjectTaskStatus, payload)
	return nil
}

// Requeue moves a Failed task back to Pending so the worker retries it.
func (s *TaskService) Requeue(ctx context.Context, id string) (*task.Task, error) {
	t, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Status != task.StatusFailed {
		return nil, fmt.Errorf("task %s is %s: %w", id, t.Status, domain.ErrInvalidTransition)
	}
	if err := s.store.UpdateStatus(ctx, id, task.StatusFailed, task.StatusPending); err != nil {
		return nil, err
	}
	t.Status = task.StatusPending
	slog.InfoContext(ctx, "task requeued", "task_id", id, "task_type", t.TaskType)
	s.publish(ctx, messagequeue.SubjectTaskStatus, messagequeue.TaskStatusPayload{TaskID: id, Status: string(task.StatusPending)})
	return t, nil
}

// RequeueInterrupted resets every Processing task to Pending. Only safe
// while no other worker is running; callers hold the worker lock.
func (s *TaskService) RequeueInterrupted(ctx context.Context) (int, error) {
	n, err := s.store.ResetStatus(ctx, task.StatusProcessing, task.StatusPending)
	if err != nil {
		return 0, fmt.Errorf("requeue interrupted tasks: %w", err)
	}
	if n > 0 {
		slog.WarnContext(ctx, "requeued tasks interrupted by a previous run", "count", n)
	}
	return n, nil
}

// Counts returns the number of tasks per status.
func (s *TaskService) Counts(ctx context.Context) (map[task.Status]int, error) {
	all, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	counts := make(map[task.Status]int, 4)
	for i := range all {
		counts[all[i].Status]++
	}
	return counts, nil
}

func (s *TaskService) publish(ctx context.Context, subject string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.ErrorContext(ctx, "failed to marshal notification", "subject", subject, "error", err)
		return
	}
	if err := s.queue.Publish(ctx, subject, data); err != nil && !errors.Is(err, context.Canceled) {
		slog.WarnContext(ctx, "failed to publish notification", "subject", subject, "error", err)
	}
}
