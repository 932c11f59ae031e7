// Package eventlog implements the life event repository as an append-only
// JSON Lines file. It needs no database and suits a single workstation.
package eventlog

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/Strob0t/lifelog/internal/domain/event"
	"github.com/Strob0t/lifelog/internal/port/eventstore"
)

const lockRetry = 50 * time.Millisecond

var _ eventstore.Repository = (*Store)(nil)

// Store appends one event per line to a file. Appends and scans hold an
// advisory lock on <path>.lock so a worker process and a CLI import can
// share the file.
type Store struct {
	path  string
	mu    sync.Mutex
	flock *flock.Flock
	seen  map[string]struct{} // lazily loaded IDs, nil until first Save
}

// New returns a store backed by path. The file is created on first Save.
func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create event dir: %w", err)
	}
	return &Store{path: path, flock: flock.New(path + ".lock")}, nil
}

// Save appends ev unless an event with the same ID is already stored.
func (s *Store) Save(ctx context.Context, ev *event.LifeEvent) error {
	line, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", ev.ID, err)
	}
	line = append(line, '\n')

	return s.withLock(ctx, func() error {
		if s.seen == nil {
			s.seen = make(map[string]struct{})
			if err := s.scan(func(e event.LifeEvent) { s.seen[e.ID] = struct{}{} }); err != nil {
				s.seen = nil
				return err
			}
		}
		if _, dup := s.seen[ev.ID]; dup {
			return nil
		}

		f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644) //nolint:gosec // G304: configured path
		if err != nil {
			return fmt.Errorf("open event log: %w", err)
		}
		if _, err := f.Write(line); err != nil {
			_ = f.Close()
			return fmt.Errorf("append event %s: %w", ev.ID, err)
		}
		if err := f.Sync(); err != nil {
			_ = f.Close()
			return fmt.Errorf("sync event log: %w", err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("close event log: %w", err)
		}
		s.seen[ev.ID] = struct{}{}
		return nil
	})
}

// FindByTimeRange returns events with start <= timestamp <= end, oldest first.
func (s *Store) FindByTimeRange(ctx context.Context, start, end time.Time) ([]event.LifeEvent, error) {
	var out []event.LifeEvent
	err := s.withLock(ctx, func() error {
		return s.scan(func(e event.LifeEvent) {
			if !e.Timestamp.Before(start) && !e.Timestamp.After(end) {
				out = append(out, e)
			}
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// scan calls fn for every decodable line. A torn final line from a crash is
// skipped with a warning rather than failing every later query.
func (s *Store) scan(fn func(event.LifeEvent)) error {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	lineNo := 0
	for {
		line, err := r.ReadBytes('\n')
		if len(line) > 0 {
			lineNo++
			var e event.LifeEvent
			if uerr := json.Unmarshal(line, &e); uerr != nil {
				slog.Warn("skipping unreadable event line", "path", s.path, "line", lineNo, "error", uerr)
			} else {
				fn(e)
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read event log: %w", err)
		}
	}
}

func (s *Store) withLock(ctx context.Context, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	locked, err := s.flock.TryLockContext(ctx, lockRetry)
	if err != nil {
		return fmt.Errorf("lock event log: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock event log: %s is held", s.flock.Path())
	}
	defer func() { _ = s.flock.Unlock() }()

	return fn()
}
