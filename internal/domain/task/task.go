// Package task defines the Task domain entity: a durable unit of deferred work.
package task

import (
	"fmt"
	"time"

	"github.com/Strob0t/lifelog/internal/domain"
)

// Status represents the lifecycle state of a task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Built-in task types. The type set is open; unknown types are kept in the
// document but never executed.
const (
	TypeProcessSession = "process_session"
	TypeSyncActivity   = "sync_activity"
)

// Task is one entry of the on-disk task document.
type Task struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Status    Status    `json:"status"`
	TaskType  string    `json:"task_type"`
	FilePaths []string  `json:"file_paths"`
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further automatic transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CheckTransition enforces the lifecycle Pending -> Processing -> Completed|Failed.
// Re-queueing (Processing|Failed -> Pending) is an explicit recovery action
// and is allowed only when requeue is true.
func CheckTransition(from, to Status, requeue bool) error {
	if !to.Valid() {
		return fmt.Errorf("%w: unknown status %q", domain.ErrInvalidTransition, to)
	}
	switch {
	case from == StatusPending && to == StatusProcessing:
		return nil
	case from == StatusProcessing && to.Terminal():
		return nil
	case requeue && to == StatusPending && (from == StatusProcessing || from == StatusFailed):
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, from, to)
}
