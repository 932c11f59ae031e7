package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	cfotel "github.com/Strob0t/lifelog/internal/adapter/otel"
	"github.com/Strob0t/lifelog/internal/config"
	"github.com/Strob0t/lifelog/internal/domain/evaluation"
	"github.com/Strob0t/lifelog/internal/domain/event"
	"github.com/Strob0t/lifelog/internal/domain/task"
	"github.com/Strob0t/lifelog/internal/fsutil"
	"github.com/Strob0t/lifelog/internal/port/cache"
	"github.com/Strob0t/lifelog/internal/port/contentgen"
	"github.com/Strob0t/lifelog/internal/port/eventstore"
	"github.com/Strob0t/lifelog/internal/resilience"
	"github.com/Strob0t/lifelog/internal/transcript"
)

// ErrEmptyTranscript is returned when a recording yields no usable text.
var ErrEmptyTranscript = errors.New("transcript is empty")

// stemLayout is the timestamp format of recording file names.
const stemLayout = "20060102_150405"

// Transcoder archives a processed recording in a compact codec.
type Transcoder interface {
	Eligible(path string) bool
	Transcode(ctx context.Context, path string) (string, error)
}

// SessionConfig holds the process_session handler's settings.
type SessionConfig struct {
	TranscriptsDir string
	SummariesDir   string
	ContextWindow  time.Duration
	CacheTTL       time.Duration
	Retry          resilience.Policy
}

// SessionConfigFrom builds a SessionConfig from the loaded configuration.
func SessionConfigFrom(cfg *config.Config) SessionConfig {
	return SessionConfig{
		TranscriptsDir: cfg.Paths.TranscriptsDir,
		SummariesDir:   cfg.Paths.SummariesDir,
		ContextWindow:  cfg.Session.ContextWindow,
		CacheTTL:       cfg.Cache.TTL,
		Retry:          resilience.PolicyFrom(cfg.Retry),
	}
}

// SessionResult describes what processing one recording produced.
type SessionResult struct {
	TranscriptPath string
	SummaryPath    string
	ArchivePath    string // empty when the recording was not transcoded
	Window         [2]time.Time
	Events         int
	Evaluation     *evaluation.Evaluation
}

// SessionProcessor handles process_session tasks: transcribe, clean,
// correlate activity, summarize, verify, persist and archive.
type SessionProcessor struct {
	cfg        SessionConfig
	gen        contentgen.Generator
	curator    contentgen.Curator
	events     eventstore.Repository
	cleaner    *transcript.Cleaner
	cache      cache.Cache
	transcoder Transcoder
}

// NewSessionProcessor creates a processor. Cache and transcoder are optional
// and set with SetCache and SetTranscoder.
func NewSessionProcessor(cfg SessionConfig, gen contentgen.Generator, curator contentgen.Curator,
	events eventstore.Repository, cleaner *transcript.Cleaner,
) *SessionProcessor {
	if cfg.ContextWindow <= 0 {
		cfg.ContextWindow = 30 * time.Minute
	}
	return &SessionProcessor{cfg: cfg, gen: gen, curator: curator, events: events, cleaner: cleaner}
}

// SetCache enables transcript caching.
func (p *SessionProcessor) SetCache(c cache.Cache) { p.cache = c }

// SetTranscoder enables archival transcoding.
func (p *SessionProcessor) SetTranscoder(t Transcoder) { p.transcoder = t }

// Handle processes every file of the task in order and stops at the first
// failure.
func (p *SessionProcessor) Handle(ctx context.Context, t *task.Task) error {
	if len(t.FilePaths) == 0 {
		return fmt.Errorf("task %s has no files", t.ID)
	}
	for _, path := range t.FilePaths {
		if _, err := p.ProcessFile(ctx, path); err != nil {
			return err
		}
	}
	return nil
}

// ProcessFile runs the full pipeline on one recording.
func (p *SessionProcessor) ProcessFile(ctx context.Context, path string) (*SessionResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("process %s: %w", path, err)
	}
	stem := Stem(path)
	res := &SessionResult{}

	raw, err := p.transcribe(ctx, path, info)
	if err != nil {
		return nil, err
	}
	cleaned := p.cleaner.Clean(raw)
	if !transcript.Valid(cleaned) {
		return nil, fmt.Errorf("process %s: %w", path, ErrEmptyTranscript)
	}
	slog.InfoContext(ctx, "transcript cleaned", "path", path, "raw_chars", len([]rune(raw)), "clean_chars", len([]rune(cleaned)))

	res.TranscriptPath = filepath.Join(p.cfg.TranscriptsDir, stem+".txt")
	if err := fsutil.WriteFileAtomic(res.TranscriptPath, []byte(cleaned+"\n"), 0o644); err != nil {
		return nil, fmt.Errorf("save transcript: %w", err)
	}

	start, end := SessionWindow(stem, info.ModTime(), p.cfg.ContextWindow)
	res.Window = [2]time.Time{start, end}
	events, err := p.events.FindByTimeRange(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("load activity %s..%s: %w", start.Format(time.RFC3339), end.Format(time.RFC3339), err)
	}
	res.Events = len(events)
	activity := ActivityContext(events)
	slog.InfoContext(ctx, "activity correlated", "path", path, "from", start, "to", end, "events", len(events))

	summary, err := p.summarize(ctx, path, cleaned, activity)
	if err != nil {
		return nil, err
	}

	if ev, err := p.verify(ctx, summary, cleaned, activity); err != nil {
		slog.WarnContext(ctx, "summary verification failed", "path", path, "error", err)
	} else {
		res.Evaluation = &ev
		slog.InfoContext(ctx, "summary verified", "path", path,
			"faithfulness_score", ev.FaithfulnessScore, "quality_score", ev.QualityScore, "reasoning", ev.Reasoning)
	}

	res.SummaryPath = filepath.Join(p.cfg.SummariesDir, stem+"_summary.txt")
	if err := fsutil.WriteFileAtomic(res.SummaryPath, []byte(summary), 0o644); err != nil {
		return nil, fmt.Errorf("save summary: %w", err)
	}
	slog.InfoContext(ctx, "summary saved", "path", res.SummaryPath)

	if p.transcoder != nil && p.transcoder.Eligible(path) {
		sctx, span := cfotel.StartStageSpan(ctx, "transcode", path)
		out, err := p.transcoder.Transcode(sctx, path)
		span.End()
		if err != nil {
			slog.WarnContext(ctx, "transcoding failed, keeping original", "path", path, "error", err)
		} else {
			res.ArchivePath = out
			slog.InfoContext(ctx, "recording archived", "path", out)
		}
	}
	return res, nil
}

func (p *SessionProcessor) transcribe(ctx context.Context, path string, info os.FileInfo) (string, error) {
	key := transcriptKey(path, info)
	if p.cache != nil {
		data, ok, err := p.cache.Get(ctx, key)
		if err != nil {
			slog.WarnContext(ctx, "transcript cache read failed", "path", path, "error", err)
		} else if ok {
			slog.InfoContext(ctx, "transcript cache hit", "path", path)
			return string(data), nil
		}
	}

	ctx, span := cfotel.StartStageSpan(ctx, "transcribe", path)
	defer span.End()
	text, err := resilience.RetryValue(ctx, p.cfg.Retry, "transcribe", func(ctx context.Context) (string, error) {
		return p.gen.Transcribe(ctx, path)
	})
	if err != nil {
		return "", fmt.Errorf("transcribe %s: %w", path, err)
	}
	if !transcript.Valid(text) {
		return "", fmt.Errorf("transcribe %s: %w", path, ErrEmptyTranscript)
	}

	if p.cache != nil {
		if err := p.cache.Set(ctx, key, []byte(text), p.cfg.CacheTTL); err != nil {
			slog.WarnContext(ctx, "transcript cache write failed", "path", path, "error", err)
		}
	}
	return text, nil
}

func (p *SessionProcessor) summarize(ctx context.Context, path, cleaned, activity string) (string, error) {
	ctx, span := cfotel.StartStageSpan(ctx, "summarize", path)
	defer span.End()
	summary, err := resilience.RetryValue(ctx, p.cfg.Retry, "summarize", func(ctx context.Context) (string, error) {
		return p.curator.SummarizeSession(ctx, cleaned, activity)
	})
	if err != nil {
		return "", fmt.Errorf("summarize %s: %w", path, err)
	}
	return summary, nil
}

func (p *SessionProcessor) verify(ctx context.Context, summary, cleaned, activity string) (evaluation.Evaluation, error) {
	return resilience.RetryValue(ctx, p.cfg.Retry, "verify_summary", func(ctx context.Context) (evaluation.Evaluation, error) {
		return p.curator.VerifySummary(ctx, summary, cleaned, activity)
	})
}

// transcriptKey changes whenever the recording is rewritten.
func transcriptKey(path string, info os.FileInfo) string {
	return fmt.Sprintf("transcript|%s|%d|%d", path, info.Size(), info.ModTime().UnixNano())
}

// Stem returns the file name without directory and extension.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// SessionWindow returns the span of time a recording covers. The start is
// parsed from a YYYYMMDD_HHMMSS stem in local time and the end is the
// file's modification time. An end before the start or more than a day
// after it is replaced by start+fallback; a stem that does not parse gives
// [mtime-fallback, mtime].
func SessionWindow(stem string, mtime time.Time, fallback time.Duration) (time.Time, time.Time) {
	if len(stem) >= len(stemLayout) {
		if start, err := time.ParseInLocation(stemLayout, stem[:len(stemLayout)], time.Local); err == nil {
			if mtime.Before(start) || mtime.Sub(start) > 24*time.Hour {
				return start, start.Add(fallback)
			}
			return start, mtime
		}
	}
	return mtime.Add(-fallback), mtime
}

// ActivityContext renders events as one "[HH:MM:SS] Kind payload" line each.
func ActivityContext(events []event.LifeEvent) string {
	var b strings.Builder
	for i := range events {
		ev := &events[i]
		kind := ev.Kind
		if kind == "" {
			kind = string(ev.Source)
		}
		fmt.Fprintf(&b, "[%s] %s %s\n", ev.Timestamp.Local().Format(time.TimeOnly), kind, compactPayload(ev.Payload))
	}
	return b.String()
}

func compactPayload(raw json.RawMessage) string {
	var b bytes.Buffer
	if err := json.Compact(&b, raw); err != nil || b.Len() == 0 || b.String() == "null" {
		return "{}"
	}
	return b.String()
}
