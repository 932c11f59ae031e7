package service

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Strob0t/lifelog/internal/capture"
	"github.com/Strob0t/lifelog/internal/domain/task"
)

var audioExts = map[string]bool{
	".wav": true, ".flac": true, ".opus": true, ".ogg": true, ".mp3": true, ".m4a": true,
}

// ClassifyInput returns the task type for a file dropped into the inbox, or
// "" when the file should be ignored.
func ClassifyInput(path string) string {
	name := strings.ToLower(filepath.Base(path))
	if strings.HasPrefix(name, ".") || capture.IsPartPath(name) ||
		strings.HasSuffix(name, ProcessedSuffix) || strings.Contains(name, ".tmp") {
		return ""
	}
	ext := filepath.Ext(name)
	switch {
	case ext == ".jsonl" || ext == ".ndjson":
		return task.TypeSyncActivity
	case audioExts[ext]:
		return task.TypeProcessSession
	}
	return ""
}

// Intake turns files appearing in the inbox into tasks. Each file is
// enqueued at most once per process, and an archive written next to an
// audio file that was already taken (x.wav -> x.opus) is not picked up again.
type Intake struct {
	tasks Enqueuer

	mu   sync.Mutex
	seen map[string]bool
}

// NewIntake creates an Intake feeding tasks.
func NewIntake(tasks Enqueuer) *Intake {
	return &Intake{tasks: tasks, seen: make(map[string]bool)}
}

// Handle has the signature of an fswatch.Handler.
func (in *Intake) Handle(ctx context.Context, path string) {
	taskType := ClassifyInput(path)
	if taskType == "" {
		slog.DebugContext(ctx, "ignoring inbox file", "path", path)
		return
	}

	key := path
	if taskType == task.TypeProcessSession {
		key = strings.TrimSuffix(path, filepath.Ext(path))
	}
	in.mu.Lock()
	dup := in.seen[key]
	in.seen[key] = true
	in.mu.Unlock()
	if dup {
		return
	}

	slog.InfoContext(ctx, "new inbox file", "path", path, "task_type", taskType)
	if _, err := in.tasks.Enqueue(ctx, taskType, []string{path}); err != nil {
		slog.ErrorContext(ctx, "failed to enqueue inbox file", "path", path, "error", err)
		in.mu.Lock()
		delete(in.seen, key)
		in.mu.Unlock()
	}
}
