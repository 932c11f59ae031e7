package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	cfotel "github.com/Strob0t/lifelog/internal/adapter/otel"
	"github.com/Strob0t/lifelog/internal/capture"
	"github.com/Strob0t/lifelog/internal/config"
	"github.com/Strob0t/lifelog/internal/domain/task"
	"github.com/Strob0t/lifelog/internal/port/messagequeue"
)

// Phase is the trigger's position in the capture lifecycle.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseArmedForStart
	PhaseRecording
	PhaseArmedForStop
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseArmedForStart:
		return "armed_for_start"
	case PhaseRecording:
		return "recording"
	case PhaseArmedForStop:
		return "armed_for_stop"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// TriggerState is the in-memory state of the trigger. Since is when the
// current phase was entered; RecordingSince is when the active capture
// started and is zero outside Recording and ArmedForStop.
type TriggerState struct {
	Phase          Phase
	Since          time.Time
	RecordingSince time.Time
}

// Recorder is the part of capture.Controller the trigger drives.
type Recorder interface {
	Start(path string, opts capture.Options) error
	Stop() (string, error)
	Active() bool
}

// TriggerConfig holds the trigger's timing and where recordings go.
type TriggerConfig struct {
	CheckInterval time.Duration
	StartDebounce time.Duration
	StopGrace     time.Duration
	MinRecording  time.Duration
	RecordingsDir string
	Capture       capture.Options
}

// TriggerConfigFrom builds a TriggerConfig from the loaded configuration.
func TriggerConfigFrom(cfg *config.Config) TriggerConfig {
	return TriggerConfig{
		CheckInterval: cfg.Presence.CheckInterval,
		StartDebounce: cfg.Presence.StartDebounce,
		StopGrace:     cfg.Presence.StopGrace,
		MinRecording:  cfg.Presence.MinRecording,
		RecordingsDir: cfg.Paths.RecordingsDir,
		Capture:       CaptureOptions(cfg.Capture),
	}
}

// CaptureOptions converts the capture config section.
func CaptureOptions(cfg config.Capture) capture.Options {
	return capture.Options{
		SampleRate:      cfg.SampleRate,
		Channels:        cfg.Channels,
		Device:          cfg.Device,
		AmplitudeGate:   cfg.AmplitudeGate,
		PeakLogInterval: cfg.PeakLogInterval,
	}
}

// RecordingPath names a capture started at t. Names have one-second
// resolution; when a recording or a partial one already uses the name, a
// _1, _2, ... suffix is added. The timestamp stays the first 15 characters
// of the file name.
func RecordingPath(dir string, t time.Time) string {
	stem := t.Local().Format("20060102_150405")
	path := filepath.Join(dir, stem+".wav")
	for n := 1; pathTaken(path); n++ {
		path = filepath.Join(dir, stem+"_"+strconv.Itoa(n)+".wav")
	}
	return path
}

func pathTaken(path string) bool {
	for _, p := range []string{path, capture.PartPath(path)} {
		if _, err := os.Lstat(p); err == nil {
			return true
		}
	}
	return false
}

// Trigger starts and stops capture sessions from presence samples. Start
// waits for StartDebounce of continuous presence; stop waits for StopGrace
// of continuous absence and never cuts a session shorter than MinRecording.
type Trigger struct {
	cfg      TriggerConfig
	presence Sampler
	recorder Recorder
	tasks    Enqueuer
	queue    messagequeue.Publisher
	metrics  *cfotel.Metrics
	now      func() time.Time

	mu    sync.Mutex
	state TriggerState
	match string
}

// NewTrigger creates a trigger in the Idle phase. A nil queue disables
// session notifications.
func NewTrigger(cfg TriggerConfig, presence Sampler, recorder Recorder, tasks Enqueuer, queue messagequeue.Publisher) *Trigger {
	if queue == nil {
		queue = messagequeue.Nop{}
	}
	return &Trigger{
		cfg:      cfg,
		presence: presence,
		recorder: recorder,
		tasks:    tasks,
		queue:    queue,
		now:      time.Now,
	}
}

// SetMetrics attaches metric instruments.
func (t *Trigger) SetMetrics(m *cfotel.Metrics) { t.metrics = m }

// State returns a copy of the current state.
func (t *Trigger) State() TriggerState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Run ticks immediately and then every CheckInterval until ctx is done or a
// tick fails fatally. On cancellation an active session is finalized and
// enqueued before Run returns.
func (t *Trigger) Run(ctx context.Context) error {
	interval := t.cfg.CheckInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.InfoContext(ctx, "trigger started", "check_interval", interval,
		"start_debounce", t.cfg.StartDebounce, "stop_grace", t.cfg.StopGrace, "min_recording", t.cfg.MinRecording)

	for {
		if err := t.Tick(ctx); err != nil {
			if shutdownErr := t.Shutdown(context.WithoutCancel(ctx)); shutdownErr != nil {
				slog.ErrorContext(ctx, "finalize capture after fatal error", "error", shutdownErr)
			}
			return err
		}
		select {
		case <-ctx.Done():
			return t.Shutdown(context.WithoutCancel(ctx))
		case <-ticker.C:
		}
	}
}

// Tick takes one presence sample and applies the transition table. It
// returns an error only for capture configuration problems that retrying
// cannot fix.
func (t *Trigger) Tick(ctx context.Context) error {
	sample := t.presence.Sample(ctx)
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	if sample.Present {
		t.match = sample.Match
	}

	if t.state.Phase == PhaseRecording || t.state.Phase == PhaseArmedForStop {
		if !t.recorder.Active() {
			t.abandon(ctx)
			return nil
		}
	}

	switch t.state.Phase {
	case PhaseIdle:
		if sample.Present {
			t.enter(ctx, PhaseArmedForStart, now)
		}

	case PhaseArmedForStart:
		if !sample.Present {
			t.enter(ctx, PhaseIdle, now)
			return nil
		}
		if now.Sub(t.state.Since) < t.cfg.StartDebounce {
			return nil
		}
		return t.start(ctx, now)

	case PhaseRecording:
		if !sample.Present {
			t.enter(ctx, PhaseArmedForStop, now)
		}

	case PhaseArmedForStop:
		if sample.Present {
			slog.InfoContext(ctx, "presence returned, stop cancelled", "match", sample.Match)
			t.enter(ctx, PhaseRecording, now)
			return nil
		}
		if now.Sub(t.state.Since) < t.cfg.StopGrace {
			return nil
		}
		if now.Sub(t.state.RecordingSince) < t.cfg.MinRecording {
			return nil
		}
		_ = t.finish(ctx, now) // logged; the machine is Idle either way
	}
	return nil
}

// Shutdown stops an active capture and enqueues it without waiting for the
// stop grace or the minimum duration.
func (t *Trigger) Shutdown(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state.Phase != PhaseRecording && t.state.Phase != PhaseArmedForStop {
		t.state = TriggerState{Phase: PhaseIdle}
		return nil
	}
	slog.InfoContext(ctx, "shutdown requested, finalizing capture")
	return t.finish(ctx, t.now())
}

// enter must be called with t.mu held. It keeps RecordingSince across
// Recording <-> ArmedForStop.
func (t *Trigger) enter(ctx context.Context, phase Phase, now time.Time) {
	prev := t.state
	next := TriggerState{Phase: phase, Since: now}
	if phase == PhaseRecording || phase == PhaseArmedForStop {
		next.RecordingSince = prev.RecordingSince
	}
	t.state = next
	slog.DebugContext(ctx, "trigger transition", "from", prev.Phase.String(), "to", phase.String())
}

// start must be called with t.mu held.
func (t *Trigger) start(ctx context.Context, now time.Time) error {
	path := RecordingPath(t.cfg.RecordingsDir, now)
	if err := t.recorder.Start(path, t.cfg.Capture); err != nil {
		if errors.Is(err, capture.ErrUnsupportedConfig) || errors.Is(err, capture.ErrDeviceNotFound) {
			return fmt.Errorf("start capture: %w", err)
		}
		slog.ErrorContext(ctx, "failed to start capture, will retry", "path", path, "error", err)
		return nil
	}

	t.state = TriggerState{Phase: PhaseRecording, Since: now, RecordingSince: now}
	slog.InfoContext(ctx, "recording started", "path", path, "match", t.match)

	if t.metrics != nil {
		t.metrics.SessionsStarted.Add(ctx, 1)
	}
	t.publish(ctx, messagequeue.SubjectSessionStarted, messagequeue.SessionPayload{
		Path:    path,
		Match:   t.match,
		Started: now,
	})
	return nil
}

// finish must be called with t.mu held. The machine returns to Idle even
// when stopping or enqueueing fails; the error is returned for the caller
// to log.
func (t *Trigger) finish(ctx context.Context, now time.Time) error {
	started := t.state.RecordingSince
	t.state = TriggerState{Phase: PhaseIdle, Since: now}

	path, err := t.recorder.Stop()
	if err != nil {
		slog.ErrorContext(ctx, "failed to stop capture", "error", err)
		return fmt.Errorf("stop capture: %w", err)
	}
	if path == "" {
		return nil
	}
	duration := now.Sub(started)
	slog.InfoContext(ctx, "recording finished", "path", path, "duration", duration.Round(time.Second))

	if t.metrics != nil {
		t.metrics.SessionsFinished.Add(ctx, 1)
		t.metrics.SessionDuration.Record(ctx, duration.Seconds())
	}
	t.publish(ctx, messagequeue.SubjectSessionFinished, messagequeue.SessionPayload{
		Path:     path,
		Match:    t.match,
		Started:  started,
		Finished: now,
	})

	if _, err := t.tasks.Enqueue(ctx, task.TypeProcessSession, []string{path}); err != nil {
		slog.ErrorContext(ctx, "failed to enqueue finished recording", "path", path, "error", err)
		return err
	}
	return nil
}

// abandon must be called with t.mu held. The producer died; collect the
// session so the controller can start a new one. The .part file stays on
// disk for recovery at the next start.
func (t *Trigger) abandon(ctx context.Context) {
	if _, err := t.recorder.Stop(); err != nil {
		slog.ErrorContext(ctx, "capture producer died, partial file left for recovery", "error", err)
	} else {
		slog.WarnContext(ctx, "capture ended without a stop request")
	}
	t.state = TriggerState{Phase: PhaseIdle, Since: t.now()}
}

func (t *Trigger) publish(ctx context.Context, subject string, payload messagequeue.SessionPayload) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.ErrorContext(ctx, "failed to marshal notification", "subject", subject, "error", err)
		return
	}
	if err := t.queue.Publish(ctx, subject, data); err != nil && !errors.Is(err, context.Canceled) {
		slog.WarnContext(ctx, "failed to publish notification", "subject", subject, "error", err)
	}
}
