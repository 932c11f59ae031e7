package service

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	cfotel "github.com/Strob0t/lifelog/internal/adapter/otel"
	"github.com/Strob0t/lifelog/internal/domain/event"
	"github.com/Strob0t/lifelog/internal/domain/task"
	"github.com/Strob0t/lifelog/internal/fsutil"
	"github.com/Strob0t/lifelog/internal/port/eventstore"
)

// ProcessedSuffix is appended to an activity log once it has been imported.
const ProcessedSuffix = ".processed"

// activityNamespace scopes the name-based ids of imported events.
var activityNamespace = uuid.MustParse("5b0e7c1e-3f4a-4d8e-9a61-2c7f0d9b4e15")

// maxActivityLine bounds a single NDJSON record.
const maxActivityLine = 4 << 20

// activityRecord is one line of an exported activity log.
type activityRecord struct {
	Timestamp string          `json:"timestamp"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
}

// ActivitySync handles sync_activity tasks: it imports NDJSON activity logs
// into the event repository and archives them.
type ActivitySync struct {
	events  eventstore.Repository
	metrics *cfotel.Metrics
	now     func() time.Time
}

// NewActivitySync creates an importer writing to events.
func NewActivitySync(events eventstore.Repository) *ActivitySync {
	return &ActivitySync{events: events, now: time.Now}
}

// SetMetrics attaches metric instruments.
func (s *ActivitySync) SetMetrics(m *cfotel.Metrics) { s.metrics = m }

// Handle imports every file of the task. A file that fails is reported but
// does not stop the others; the task fails if any file failed.
func (s *ActivitySync) Handle(ctx context.Context, t *task.Task) error {
	var errs []error
	for _, path := range t.FilePaths {
		if _, err := s.Import(ctx, path); err != nil {
			slog.ErrorContext(ctx, "activity sync failed", "path", path, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Import saves every parsable line of path as a LifeEvent and renames the
// file to path+ProcessedSuffix. Blank lines are skipped and malformed lines
// are logged and skipped. It returns the number of events saved. Event ids
// derive from the file name, line number and content, so importing the same
// file again after an interrupted run stores nothing twice.
func (s *ActivitySync) Import(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path) //nolint:gosec // G304: path comes from the task document
	if err != nil {
		return 0, fmt.Errorf("open activity log: %w", err)
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxActivityLine)

	saved, skipped, lineNo := 0, 0, 0
	for sc.Scan() {
		lineNo++
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		ev, err := s.parse(path, lineNo, line)
		if err != nil {
			slog.WarnContext(ctx, "skipping malformed activity line", "path", path, "line", lineNo, "error", err)
			skipped++
			continue
		}
		if err := s.events.Save(ctx, ev); err != nil {
			return saved, fmt.Errorf("save event from %s line %d: %w", path, lineNo, err)
		}
		saved++
	}
	if err := sc.Err(); err != nil {
		return saved, fmt.Errorf("read %s: %w", path, err)
	}
	_ = f.Close()

	if err := fsutil.RenameDurable(path, path+ProcessedSuffix); err != nil {
		return saved, fmt.Errorf("archive activity log: %w", err)
	}
	if s.metrics != nil {
		s.metrics.EventsImported.Add(ctx, int64(saved))
	}
	slog.InfoContext(ctx, "activity log imported", "path", path, "events", saved, "skipped", skipped)
	return saved, nil
}

func (s *ActivitySync) parse(path string, lineNo int, line []byte) (*event.LifeEvent, error) {
	var rec activityRecord
	if err := json.Unmarshal(line, &rec); err != nil {
		return nil, err
	}

	ts, err := time.Parse(time.RFC3339Nano, rec.Timestamp)
	if err != nil {
		ts = s.now()
	}
	payload := rec.Data
	if len(bytes.TrimSpace(payload)) == 0 || string(payload) == "null" {
		payload = json.RawMessage(`{}`)
	}

	name := filepath.Base(path) + "\x00" + strconv.Itoa(lineNo) + "\x00" + string(line)
	id := uuid.NewSHA1(activityNamespace, []byte(name))
	return &event.LifeEvent{
		ID:        id.String(),
		Timestamp: ts,
		Source:    event.SourceWindowsActivity,
		Kind:      rec.Type,
		Payload:   payload,
	}, nil
}
