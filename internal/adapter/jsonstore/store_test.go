package jsonstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/Strob0t/lifelog/internal/domain"
	"github.com/Strob0t/lifelog/internal/domain/task"
	"github.com/Strob0t/lifelog/internal/port/taskstore"
)

var _ taskstore.Store = (*Store)(nil)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "data", "tasks.json"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestLoadInitializesMissingDocument(t *testing.T) {
	s := newTestStore(t)

	tasks, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(tasks) != 0 {
		t.Fatalf("expected empty, got %d", len(tasks))
	}

	data, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatalf("document should exist after Load: %v", err)
	}
	if string(data) != "[]\n" {
		t.Fatalf("expected [] document, got %q", data)
	}
}

func TestAddThenLoad(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	added, err := s.Add(ctx, task.TypeProcessSession, []string{"data/recordings/20250101_120000.wav"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if added.Status != task.StatusPending {
		t.Errorf("new task should be pending, got %s", added.Status)
	}

	tasks, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(tasks))
	}
	got := tasks[0]
	if got.ID != added.ID || got.TaskType != task.TypeProcessSession || got.Status != task.StatusPending {
		t.Errorf("unexpected task %+v", got)
	}
	if len(got.FilePaths) != 1 || got.FilePaths[0] != "data/recordings/20250101_120000.wav" {
		t.Errorf("unexpected file paths %v", got.FilePaths)
	}
}

func TestAddOrdersByInsertionWithSortableIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for range 5 {
		if _, err := s.Add(ctx, task.TypeSyncActivity, []string{"a.jsonl"}); err != nil {
			t.Fatal(err)
		}
	}
	tasks, err := s.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i < len(tasks); i++ {
		if tasks[i-1].ID >= tasks[i].ID {
			t.Fatalf("ids not time ordered: %s >= %s", tasks[i-1].ID, tasks[i].ID)
		}
	}
}

func TestUpdateStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a, _ := s.Add(ctx, task.TypeProcessSession, []string{"a.wav"})
	b, _ := s.Add(ctx, task.TypeProcessSession, []string{"b.wav"})

	if err := s.UpdateStatus(ctx, b.ID, task.StatusPending, task.StatusProcessing); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	tasks, _ := s.Load(ctx)
	if tasks[0].ID != a.ID || tasks[0].Status != task.StatusPending {
		t.Errorf("first task should be untouched, got %+v", tasks[0])
	}
	if tasks[1].Status != task.StatusProcessing {
		t.Errorf("second task should be processing, got %s", tasks[1].Status)
	}
}

func TestUpdateStatusNotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.UpdateStatus(context.Background(), "missing", task.StatusProcessing, task.StatusCompleted)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateStatusRejectsStaleClaim(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tasks.json")
	first, err := New(path)
	if err != nil {
		t.Fatal(err)
	}
	second, err := New(path)
	if err != nil {
		t.Fatal(err)
	}

	tk, err := first.Add(ctx, task.TypeProcessSession, []string{"a.wav"})
	if err != nil {
		t.Fatal(err)
	}
	if err := first.UpdateStatus(ctx, tk.ID, task.StatusPending, task.StatusProcessing); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	err = second.UpdateStatus(ctx, tk.ID, task.StatusPending, task.StatusProcessing)
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("second claim: expected ErrInvalidTransition, got %v", err)
	}

	tasks, _ := second.Load(ctx)
	if tasks[0].Status != task.StatusProcessing {
		t.Fatalf("status changed by rejected claim: %s", tasks[0].Status)
	}
}

func TestResetStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a, _ := s.Add(ctx, task.TypeProcessSession, []string{"a.wav"})
	b, _ := s.Add(ctx, task.TypeProcessSession, []string{"b.wav"})
	_, _ = s.Add(ctx, task.TypeProcessSession, []string{"c.wav"})
	_ = s.UpdateStatus(ctx, a.ID, task.StatusPending, task.StatusProcessing)
	_ = s.UpdateStatus(ctx, b.ID, task.StatusPending, task.StatusProcessing)

	n, err := s.ResetStatus(ctx, task.StatusProcessing, task.StatusPending)
	if err != nil {
		t.Fatalf("ResetStatus: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 reset, got %d", n)
	}
	tasks, _ := s.Load(ctx)
	for _, tk := range tasks {
		if tk.Status != task.StatusPending {
			t.Errorf("task %s still %s", tk.ID, tk.Status)
		}
	}
}

func TestCorruptDocumentIsHardError(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"truncated", `[{"id":"a","status":"pend`},
		{"object", `{"id":"a"}`},
		{"null", `null`},
		{"empty", ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t)
			if err := os.WriteFile(s.Path(), []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}

			_, err := s.Load(context.Background())
			if !errors.Is(err, ErrCorrupt) {
				t.Fatalf("expected ErrCorrupt, got %v", err)
			}
			_, err = s.Add(context.Background(), task.TypeProcessSession, []string{"x.wav"})
			if !errors.Is(err, ErrCorrupt) {
				t.Fatalf("Add on corrupt document: expected ErrCorrupt, got %v", err)
			}

			data, _ := os.ReadFile(s.Path())
			if string(data) != tt.content {
				t.Fatalf("corrupt document must not be rewritten, got %q", data)
			}
		})
	}
}

func TestConcurrentWritersAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.json")
	first, err := New(path)
	if err != nil {
		t.Fatal(err)
	}
	second, err := New(path)
	if err != nil {
		t.Fatal(err)
	}

	const perStore = 20
	var wg sync.WaitGroup
	for _, s := range []*Store{first, second} {
		wg.Add(1)
		go func(s *Store) {
			defer wg.Done()
			for range perStore {
				if _, err := s.Add(context.Background(), task.TypeSyncActivity, []string{"a.jsonl"}); err != nil {
					t.Errorf("Add: %v", err)
					return
				}
			}
		}(s)
	}
	wg.Wait()

	tasks, err := first.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 2*perStore {
		t.Fatalf("lost updates: expected %d tasks, got %d", 2*perStore, len(tasks))
	}
}

func TestLockHonorsContext(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Load(ctx); err == nil {
		t.Fatal("expected error with canceled context")
	}
}
