package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Strob0t/lifelog/internal/capture"
	"github.com/Strob0t/lifelog/internal/config"
	"github.com/Strob0t/lifelog/internal/domain/task"
)

// StatusReport summarizes recent activity.
type StatusReport struct {
	Since          time.Time
	Recordings     int
	Partial        int // .part files, i.e. a session in progress or awaiting recovery
	RecordedHours  float64
	TasksCreated   int
	TasksByStatus  map[task.Status]int
	RecordingsDir  string
	BytesPerSecond int
}

// StatusService builds StatusReports.
type StatusService struct {
	tasks         *TaskService
	recordingsDir string
	bytesPerSec   int
	now           func() time.Time
}

// NewStatusService creates a StatusService. Recorded hours are estimated
// from the size of WAV files at the configured capture format.
func NewStatusService(tasks *TaskService, recordingsDir string, capt config.Capture) *StatusService {
	return &StatusService{
		tasks:         tasks,
		recordingsDir: recordingsDir,
		bytesPerSec:   capt.SampleRate * capt.Channels * 2,
		now:           time.Now,
	}
}

// Report covers the window ending now.
func (s *StatusService) Report(ctx context.Context, window time.Duration) (*StatusReport, error) {
	since := s.now().Add(-window)
	rep := &StatusReport{
		Since:          since,
		TasksByStatus:  make(map[task.Status]int, 4),
		RecordingsDir:  s.recordingsDir,
		BytesPerSecond: s.bytesPerSec,
	}

	entries, err := os.ReadDir(s.recordingsDir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read %s: %w", s.recordingsDir, err)
	}
	var wavBytes int64
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().Before(since) {
			continue
		}
		name := strings.ToLower(e.Name())
		if capture.IsPartPath(name) {
			rep.Partial++
			continue
		}
		rep.Recordings++
		if filepath.Ext(name) == ".wav" {
			wavBytes += info.Size() - 44
		}
	}
	if s.bytesPerSec > 0 && wavBytes > 0 {
		rep.RecordedHours = float64(wavBytes) / float64(s.bytesPerSec) / 3600
	}

	all, err := s.tasks.List(ctx, "")
	if err != nil {
		return nil, err
	}
	for i := range all {
		rep.TasksByStatus[all[i].Status]++
		if !all[i].CreatedAt.Before(since) {
			rep.TasksCreated++
		}
	}
	return rep, nil
}
