// Package jsonstore implements the task store port as a single JSON document
// that is replaced atomically on every mutation.
package jsonstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/Strob0t/lifelog/internal/domain"
	"github.com/Strob0t/lifelog/internal/domain/task"
	"github.com/Strob0t/lifelog/internal/fsutil"
)

// ErrCorrupt is returned when the task document exists but is not a valid
// JSON task array. The document is never rewritten in that case.
var ErrCorrupt = errors.New("task document is corrupt")

const lockRetry = 50 * time.Millisecond

// Store persists tasks in one JSON file. Every read-modify-write holds an
// in-process mutex and an advisory lock on <path>.lock, so the trigger, the
// file watcher, the worker and a separate worker process never overwrite
// each other's changes.
type Store struct {
	path  string
	mu    sync.Mutex
	flock *flock.Flock
	now   func() time.Time
}

// New returns a store backed by path. The file is created on first access.
func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create task dir: %w", err)
	}
	return &Store{
		path:  path,
		flock: flock.New(path + ".lock"),
		now:   time.Now,
	}, nil
}

// Path returns the document location.
func (s *Store) Path() string { return s.path }

// Add appends a Pending task with a time-ordered UUIDv7 id.
func (s *Store) Add(ctx context.Context, taskType string, filePaths []string) (*task.Task, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate task id: %w", err)
	}
	t := task.Task{
		ID:        id.String(),
		CreatedAt: s.now().UTC(),
		Status:    task.StatusPending,
		TaskType:  taskType,
		FilePaths: append([]string{}, filePaths...),
	}

	err = s.mutate(ctx, func(tasks []task.Task) ([]task.Task, error) {
		return append(tasks, t), nil
	})
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Load returns all tasks in document order. An absent document is created as [].
func (s *Store) Load(ctx context.Context) ([]task.Task, error) {
	var out []task.Task
	err := s.withLock(ctx, func() error {
		tasks, err := s.read()
		out = tasks
		return err
	})
	return out, err
}

// UpdateStatus moves the task with the given id from status from to status
// to. The stored status is compared under the document lock, so two stores
// sharing a file cannot both claim the same task.
func (s *Store) UpdateStatus(ctx context.Context, id string, from, to task.Status) error {
	return s.mutate(ctx, func(tasks []task.Task) ([]task.Task, error) {
		for i := range tasks {
			if tasks[i].ID != id {
				continue
			}
			if tasks[i].Status != from {
				return nil, fmt.Errorf("task %s is %s, not %s: %w", id, tasks[i].Status, from, domain.ErrInvalidTransition)
			}
			tasks[i].Status = to
			return tasks, nil
		}
		return nil, fmt.Errorf("task %s: %w", id, domain.ErrNotFound)
	})
}

// ResetStatus moves every task in status from to status to.
func (s *Store) ResetStatus(ctx context.Context, from, to task.Status) (int, error) {
	n := 0
	err := s.mutate(ctx, func(tasks []task.Task) ([]task.Task, error) {
		for i := range tasks {
			if tasks[i].Status == from {
				tasks[i].Status = to
				n++
			}
		}
		return tasks, nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// mutate loads the document, applies fn and writes the result back, all under lock.
func (s *Store) mutate(ctx context.Context, fn func([]task.Task) ([]task.Task, error)) error {
	return s.withLock(ctx, func() error {
		tasks, err := s.read()
		if err != nil {
			return err
		}
		updated, err := fn(tasks)
		if err != nil {
			return err
		}
		return s.write(updated)
	})
}

func (s *Store) withLock(ctx context.Context, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	locked, err := s.flock.TryLockContext(ctx, lockRetry)
	if err != nil {
		return fmt.Errorf("lock task document: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock task document: %w", ctx.Err())
	}
	defer func() { _ = s.flock.Unlock() }()

	return fn()
}

// read must be called with the lock held.
func (s *Store) read() ([]task.Task, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		if err := s.write(nil); err != nil {
			return nil, fmt.Errorf("initialize task document: %w", err)
		}
		return []task.Task{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read task document: %w", err)
	}

	var tasks []task.Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, s.path, err) //nolint:errorlint // only the sentinel is matched
	}
	if tasks == nil {
		// "null" decodes without error.
		return nil, fmt.Errorf("%w: %s: not a JSON array", ErrCorrupt, s.path)
	}
	return tasks, nil
}

// write must be called with the lock held.
func (s *Store) write(tasks []task.Task) error {
	if tasks == nil {
		tasks = []task.Task{}
	}
	data, err := json.MarshalIndent(tasks, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal tasks: %w", err)
	}
	data = append(data, '\n')
	if err := fsutil.WriteFileAtomic(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write task document: %w", err)
	}
	return nil
}
