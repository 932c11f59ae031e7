// Package taskstore defines the port interface for the durable task queue.
package taskstore

import (
	"context"

	"github.com/Strob0t/lifelog/internal/domain/task"
)

// Store persists tasks. Every mutation must be durable before it returns and
// must never leave a partially written document behind.
type Store interface {
	// Add appends a new Pending task and returns it.
	Add(ctx context.Context, taskType string, filePaths []string) (*task.Task, error)

	// Load returns all tasks in insertion order.
	Load(ctx context.Context) ([]task.Task, error)

	// UpdateStatus moves one task from status from to status to. Returns
	// domain.ErrNotFound if no task has the given id and
	// domain.ErrInvalidTransition if its stored status is not from.
	UpdateStatus(ctx context.Context, id string, from, to task.Status) error

	// ResetStatus moves every task in status from to status to and returns
	// how many were changed.
	ResetStatus(ctx context.Context, from, to task.Status) (int, error)
}
