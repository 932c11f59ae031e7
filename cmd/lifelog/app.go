package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/Strob0t/lifelog/internal/adapter/eventlog"
	"github.com/Strob0t/lifelog/internal/adapter/ffmpeg"
	"github.com/Strob0t/lifelog/internal/adapter/foreground"
	"github.com/Strob0t/lifelog/internal/adapter/gemini"
	"github.com/Strob0t/lifelog/internal/adapter/jsonstore"
	"github.com/Strob0t/lifelog/internal/adapter/memory"
	cfnats "github.com/Strob0t/lifelog/internal/adapter/nats"
	"github.com/Strob0t/lifelog/internal/adapter/natskv"
	"github.com/Strob0t/lifelog/internal/adapter/nop"
	cfotel "github.com/Strob0t/lifelog/internal/adapter/otel"
	"github.com/Strob0t/lifelog/internal/adapter/postgres"
	"github.com/Strob0t/lifelog/internal/adapter/procscan"
	"github.com/Strob0t/lifelog/internal/adapter/ristretto"
	"github.com/Strob0t/lifelog/internal/adapter/tiered"
	"github.com/Strob0t/lifelog/internal/adapter/wslproc"
	"github.com/Strob0t/lifelog/internal/config"
	"github.com/Strob0t/lifelog/internal/domain/task"
	"github.com/Strob0t/lifelog/internal/logger"
	"github.com/Strob0t/lifelog/internal/port/cache"
	"github.com/Strob0t/lifelog/internal/port/contentgen"
	"github.com/Strob0t/lifelog/internal/port/eventstore"
	"github.com/Strob0t/lifelog/internal/port/messagequeue"
	presenceport "github.com/Strob0t/lifelog/internal/port/presence"
	"github.com/Strob0t/lifelog/internal/resilience"
	"github.com/Strob0t/lifelog/internal/service"
	"github.com/Strob0t/lifelog/internal/transcript"
)

const telemetryFlushTimeout = 5 * time.Second

// app carries the global flags and the dependencies a command opened. Each
// open* method is idempotent so commands only pay for what they use.
type app struct {
	configPath string
	dryRun     bool

	cfg     *config.Config
	metrics *cfotel.Metrics

	nats    *cfnats.Queue
	queue   messagequeue.Publisher
	tasks   *service.TaskService
	events  eventstore.Repository
	cache   cache.Cache
	closers []func()
}

// load reads configuration and installs logging and telemetry.
func (a *app) load(ctx context.Context) error {
	cfg, err := config.LoadFrom(a.configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if a.dryRun {
		cfg.DryRun = true
	}

	var extra []io.Writer
	if cfg.Logging.File {
		f, err := logger.OpenFile(cfg.Paths.LogsDir)
		if err != nil {
			return err
		}
		a.onClose(func() { _ = f.Close() })
		extra = append(extra, f)
	}
	log, closer := logger.New(cfg.Logging, extra...)
	a.onClose(closer.Close)
	slog.SetDefault(log)

	shutdown, err := cfotel.Setup(ctx, cfg.Telemetry, version)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	a.onClose(func() {
		sctx, cancel := context.WithTimeout(context.Background(), telemetryFlushTimeout)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown", "error", err)
		}
	})

	metrics, err := cfotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	a.cfg = cfg
	a.metrics = metrics
	slog.Info("config loaded",
		"config", a.configPath,
		"recordings_dir", cfg.Paths.RecordingsDir,
		"targets", cfg.Presence.Targets,
		"events_driver", cfg.Events.Driver,
		"dry_run", cfg.DryRun,
	)
	return nil
}

func (a *app) onClose(fn func()) { a.closers = append(a.closers, fn) }

// close releases everything in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// openQueue connects to NATS when configured. A broker that cannot be
// reached only disables notifications.
func (a *app) openQueue(ctx context.Context) messagequeue.Publisher {
	if a.queue != nil {
		return a.queue
	}
	a.queue = messagequeue.Nop{}
	if a.cfg.NATS.URL == "" {
		return a.queue
	}
	q, err := cfnats.Connect(ctx, a.cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable, notifications disabled", "url", a.cfg.NATS.URL, "error", err)
		return a.queue
	}
	a.onClose(func() { _ = q.Close() })
	a.nats = q
	a.queue = q
	slog.Info("nats connected", "url", a.cfg.NATS.URL)
	return a.queue
}

func (a *app) openTasks(ctx context.Context) (*service.TaskService, error) {
	if a.tasks != nil {
		return a.tasks, nil
	}
	store, err := jsonstore.New(a.cfg.Paths.TasksFile)
	if err != nil {
		return nil, fmt.Errorf("task store: %w", err)
	}
	a.tasks = service.NewTaskService(store, a.openQueue(ctx))
	a.tasks.SetMetrics(a.metrics)
	return a.tasks, nil
}

func (a *app) openEvents(ctx context.Context) (eventstore.Repository, error) {
	if a.events != nil {
		return a.events, nil
	}
	switch a.cfg.Events.Driver {
	case "postgres":
		pool, err := postgres.NewPool(ctx, a.cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		a.onClose(pool.Close)
		slog.Info("postgres connected")

		if err := postgres.RunMigrations(ctx, a.cfg.Postgres.DSN); err != nil {
			return nil, fmt.Errorf("migrations: %w", err)
		}
		slog.Info("migrations applied")
		a.events = postgres.NewEventStore(pool)
	case "memory":
		a.events = memory.NewEventStore()
	default:
		store, err := eventlog.New(a.cfg.Events.File)
		if err != nil {
			return nil, fmt.Errorf("event log: %w", err)
		}
		a.events = store
	}
	return a.events, nil
}

// openCache builds the transcript cache: in-process ristretto, backed by a
// JetStream key-value bucket when NATS is connected.
func (a *app) openCache(ctx context.Context) (cache.Cache, error) {
	if a.cache != nil {
		return a.cache, nil
	}
	l1, err := ristretto.New(a.cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	a.onClose(l1.Close)
	a.cache = l1

	a.openQueue(ctx)
	if a.nats == nil {
		return a.cache, nil
	}
	kv, err := a.nats.TranscriptBucket(ctx, a.cfg.Cache.TTL)
	if err != nil {
		slog.Warn("transcript bucket unavailable, using in-process cache only", "error", err)
		return a.cache, nil
	}
	a.cache = tiered.New(l1, natskv.New(kv), a.cfg.Cache.TTL)
	return a.cache, nil
}

// generator is the content generation backend: Gemini, or the offline
// stand-in for --dry-run and when no API key is configured.
type generator interface {
	contentgen.Generator
	contentgen.Curator
}

func (a *app) newGenerator() (generator, error) {
	if a.cfg.DryRun {
		slog.Info("dry run, using offline content generator")
		return nop.Generator{}, nil
	}
	if a.cfg.Gemini.APIKey == "" {
		slog.Warn("no gemini api key configured, using offline content generator")
		return nop.Generator{}, nil
	}
	client, err := gemini.NewClient(a.cfg.Gemini, cfotel.HTTPClient(a.cfg.Gemini.Timeout))
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	client.SetBreaker(resilience.NewBreaker("gemini", a.cfg.Breaker.MaxFailures, a.cfg.Breaker.Timeout))
	return client, nil
}

func (a *app) newSessionProcessor(ctx context.Context) (*service.SessionProcessor, error) {
	events, err := a.openEvents(ctx)
	if err != nil {
		return nil, err
	}
	gen, err := a.newGenerator()
	if err != nil {
		return nil, err
	}
	c, err := a.openCache(ctx)
	if err != nil {
		return nil, err
	}

	proc := service.NewSessionProcessor(service.SessionConfigFrom(a.cfg), gen, gen, events,
		transcript.New(a.cfg.Transcript.Fillers))
	proc.SetCache(c)
	if a.cfg.Transcode.Enabled {
		proc.SetTranscoder(ffmpeg.New(a.cfg.Transcode))
	}
	return proc, nil
}

// newWorker takes the worker lock, registers the built-in handlers and, when
// configured, returns tasks left in Processing by a crash to Pending. The
// lock is held until the app closes.
func (a *app) newWorker(ctx context.Context) (*service.Worker, error) {
	lock, err := service.LockWorker(a.cfg.Paths.TasksFile)
	if err != nil {
		return nil, err
	}
	a.onClose(func() { _ = lock.Release() })

	tasks, err := a.openTasks(ctx)
	if err != nil {
		return nil, err
	}
	sessions, err := a.newSessionProcessor(ctx)
	if err != nil {
		return nil, err
	}
	activity := service.NewActivitySync(a.events)
	activity.SetMetrics(a.metrics)

	w := service.NewWorker(tasks, a.cfg.Worker.PollInterval)
	w.SetMetrics(a.metrics)
	w.Register(task.TypeProcessSession, sessions)
	w.Register(task.TypeSyncActivity, activity)

	if a.cfg.Worker.RequeueProcessingOnStart {
		n, err := tasks.RequeueInterrupted(ctx)
		if err != nil {
			return nil, fmt.Errorf("requeue interrupted tasks: %w", err)
		}
		if n > 0 {
			slog.Info("interrupted tasks requeued", "count", n)
		}
	}
	return w, nil
}

// newPresence builds the probes in configured priority order.
func (a *app) newPresence() *service.PresenceMonitor {
	targets := a.cfg.Presence.Targets
	probes := make([]presenceport.Probe, 0, len(a.cfg.Presence.Probes))
	for _, name := range a.cfg.Presence.Probes {
		switch name {
		case "process":
			probes = append(probes, procscan.New(targets))
		case "wsl":
			p := wslproc.New(targets)
			if !p.Available() {
				slog.Debug("not running under wsl, skipping probe", "probe", name)
				continue
			}
			probes = append(probes, p)
		case "foreground":
			probes = append(probes, foreground.New(targets))
		default:
			slog.Warn("unknown presence probe ignored", "probe", name)
		}
	}
	return service.NewPresenceMonitor(probes...)
}
