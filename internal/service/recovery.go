package service

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"

	"github.com/Strob0t/lifelog/internal/capture"
	"github.com/Strob0t/lifelog/internal/domain/task"
	"github.com/Strob0t/lifelog/internal/fsutil"
)

// CaptureLockFile is the lock taken in the recordings directory by every
// process that records. At most one process holds it.
const CaptureLockFile = ".capture.lock"

// LockCapture takes the recordings directory lock for the life of the
// process. It fails with fsutil.ErrLocked while another process records.
func LockCapture(recordingsDir string) (*fsutil.Lock, error) {
	l, err := fsutil.TryLock(filepath.Join(recordingsDir, CaptureLockFile))
	if err != nil {
		return nil, fmt.Errorf("another lifelog process is recording: %w", err)
	}
	return l, nil
}

// Recovery finalizes capture files left behind by a crash and queues them
// for processing.
type Recovery struct {
	dir   string
	tasks Enqueuer
}

// NewRecovery creates a Recovery over the recordings directory.
func NewRecovery(recordingsDir string, tasks Enqueuer) *Recovery {
	return &Recovery{dir: recordingsDir, tasks: tasks}
}

// Run must be called with the LockCapture lock held and before the trigger
// starts, so no live session owns a .part file. A file that cannot be finalized is logged and left for the
// next start; a failure to enqueue is returned.
func (r *Recovery) Run(ctx context.Context) (int, error) {
	parts, err := filepath.Glob(filepath.Join(r.dir, "*.wav"+capture.PartSuffix))
	if err != nil {
		return 0, fmt.Errorf("scan %s: %w", r.dir, err)
	}
	sort.Strings(parts)

	recovered := 0
	for _, part := range parts {
		final, err := capture.Finalize(part)
		if err != nil {
			slog.ErrorContext(ctx, "failed to recover interrupted recording", "path", part, "error", err)
			continue
		}
		if _, err := r.tasks.Enqueue(ctx, task.TypeProcessSession, []string{final}); err != nil {
			return recovered, fmt.Errorf("enqueue recovered %s: %w", final, err)
		}
		slog.InfoContext(ctx, "recovered interrupted recording", "path", final)
		recovered++
	}
	return recovered, nil
}
