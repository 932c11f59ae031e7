package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "data/config.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// WriteDefault writes the default configuration as YAML to path.
// An existing file is left untouched and reported via os.ErrExist.
func WriteDefault(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("write %s: %w", path, os.ErrExist)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: operator supplied path
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	// Paths
	setString(&cfg.Paths.DataDir, "LIFELOG_DATA_DIR")
	setString(&cfg.Paths.RecordingsDir, "LIFELOG_RECORDINGS_DIR")
	setString(&cfg.Paths.TranscriptsDir, "LIFELOG_TRANSCRIPTS_DIR")
	setString(&cfg.Paths.SummariesDir, "LIFELOG_SUMMARIES_DIR")
	setString(&cfg.Paths.TasksFile, "LIFELOG_TASKS_FILE")
	setString(&cfg.Paths.LogsDir, "LIFELOG_LOGS_DIR")

	// Presence
	setList(&cfg.Presence.Targets, "LIFELOG_PROCESS_NAMES")
	setList(&cfg.Presence.Probes, "LIFELOG_PRESENCE_PROBES")
	setDuration(&cfg.Presence.CheckInterval, "LIFELOG_CHECK_INTERVAL")
	setDuration(&cfg.Presence.StartDebounce, "LIFELOG_START_DEBOUNCE")
	setDuration(&cfg.Presence.StopGrace, "LIFELOG_STOP_GRACE")
	setDuration(&cfg.Presence.MinRecording, "LIFELOG_MIN_RECORDING")

	// Capture
	setInt(&cfg.Capture.SampleRate, "LIFELOG_SAMPLE_RATE")
	setInt(&cfg.Capture.Channels, "LIFELOG_CHANNELS")
	setString(&cfg.Capture.Device, "LIFELOG_AUDIO_DEVICE")
	setFloat64(&cfg.Capture.AmplitudeGate, "LIFELOG_SILENCE_THRESHOLD")
	setDuration(&cfg.Capture.PeakLogInterval, "LIFELOG_PEAK_LOG_INTERVAL")

	setDuration(&cfg.Worker.PollInterval, "LIFELOG_WORKER_POLL_INTERVAL")
	setBool(&cfg.Worker.RequeueProcessingOnStart, "LIFELOG_REQUEUE_PROCESSING")

	setInt(&cfg.Retry.MaxAttempts, "LIFELOG_RETRY_MAX_ATTEMPTS")
	setDuration(&cfg.Retry.BaseDelay, "LIFELOG_RETRY_BASE_DELAY")
	setDuration(&cfg.Retry.MaxDelay, "LIFELOG_RETRY_MAX_DELAY")
	setFloat64(&cfg.Retry.Jitter, "LIFELOG_RETRY_JITTER")

	setInt(&cfg.Breaker.MaxFailures, "LIFELOG_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "LIFELOG_BREAKER_TIMEOUT")

	setString(&cfg.Gemini.APIKey, "GOOGLE_API_KEY")
	setString(&cfg.Gemini.Model, "GEMINI_MODEL")
	setString(&cfg.Gemini.BaseURL, "LIFELOG_GEMINI_BASE_URL")
	setDuration(&cfg.Gemini.Timeout, "LIFELOG_GEMINI_TIMEOUT")

	setString(&cfg.Events.Driver, "LIFELOG_EVENTS_DRIVER")
	setString(&cfg.Events.File, "LIFELOG_EVENTS_FILE")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "LIFELOG_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "LIFELOG_PG_MIN_CONNS")

	setString(&cfg.NATS.URL, "NATS_URL")

	setInt64(&cfg.Cache.MaxSizeMB, "LIFELOG_CACHE_SIZE_MB")
	setDuration(&cfg.Cache.TTL, "LIFELOG_CACHE_TTL")

	// Health
	setBool(&cfg.Health.Enabled, "LIFELOG_HEALTH_ENABLED")
	setDuration(&cfg.Health.Interval, "LIFELOG_HEALTH_INTERVAL")
	setFloat64(&cfg.Health.ThresholdPercent, "LIFELOG_HEALTH_THRESHOLD")
	setInt(&cfg.Health.Consecutive, "LIFELOG_HEALTH_CONSECUTIVE")

	setString(&cfg.Logging.Level, "LIFELOG_LOG_LEVEL")
	setString(&cfg.Logging.Service, "LIFELOG_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "LIFELOG_LOG_ASYNC")
	setBool(&cfg.Logging.File, "LIFELOG_LOG_FILE")

	setString(&cfg.Telemetry.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setString(&cfg.Telemetry.ServiceName, "OTEL_SERVICE_NAME")
	setBool(&cfg.Telemetry.Insecure, "LIFELOG_OTEL_INSECURE")

	setBool(&cfg.Transcode.Enabled, "LIFELOG_TRANSCODE_ENABLED")
	setString(&cfg.Transcode.FFmpeg, "LIFELOG_FFMPEG")
	setString(&cfg.Transcode.Bitrate, "LIFELOG_TRANSCODE_BITRATE")

	setDuration(&cfg.Session.ContextWindow, "LIFELOG_CONTEXT_WINDOW")

	setBool(&cfg.Watch.Enabled, "LIFELOG_WATCH_ENABLED")
	setString(&cfg.Watch.Dir, "LIFELOG_WATCH_DIR")
	setDuration(&cfg.Watch.Settle, "LIFELOG_WATCH_SETTLE")

	setBool(&cfg.DryRun, "LIFELOG_DRY_RUN")
}

// validate checks that required fields are set and values are in range.
func validate(cfg *Config) error {
	if cfg.Paths.TasksFile == "" {
		return errors.New("paths.tasks_file is required")
	}
	if cfg.Paths.RecordingsDir == "" {
		return errors.New("paths.recordings_dir is required")
	}
	if len(cfg.Presence.Targets) == 0 {
		return errors.New("presence.targets must not be empty")
	}
	for _, p := range cfg.Presence.Probes {
		switch p {
		case "process", "wsl", "foreground":
		default:
			return fmt.Errorf("presence.probes: unknown probe %q", p)
		}
	}
	if cfg.Presence.CheckInterval <= 0 {
		return errors.New("presence.check_interval must be > 0")
	}
	if cfg.Presence.StartDebounce < 0 || cfg.Presence.StopGrace < 0 || cfg.Presence.MinRecording < 0 {
		return errors.New("presence durations must be >= 0")
	}
	if cfg.Capture.SampleRate < 1 {
		return errors.New("capture.sample_rate must be >= 1")
	}
	if cfg.Capture.Channels < 1 {
		return errors.New("capture.channels must be >= 1")
	}
	if cfg.Capture.AmplitudeGate < 0 || cfg.Capture.AmplitudeGate > 1 {
		return errors.New("capture.amplitude_gate must be within [0, 1]")
	}
	if cfg.Worker.PollInterval <= 0 {
		return errors.New("worker.poll_interval must be > 0")
	}
	if cfg.Retry.MaxAttempts < 1 {
		return errors.New("retry.max_attempts must be >= 1")
	}
	if cfg.Retry.Jitter < 0 || cfg.Retry.Jitter >= 1 {
		return errors.New("retry.jitter must be within [0, 1)")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	switch cfg.Events.Driver {
	case "file", "memory":
	case "postgres":
		if cfg.Postgres.DSN == "" {
			return errors.New("postgres.dsn is required")
		}
		if cfg.Postgres.MaxConns < 1 {
			return errors.New("postgres.max_conns must be >= 1")
		}
	default:
		return fmt.Errorf("events.driver: unknown driver %q", cfg.Events.Driver)
	}
	if cfg.Health.ThresholdPercent <= 0 || cfg.Health.ThresholdPercent > 100 {
		return errors.New("health.threshold_percent must be within (0, 100]")
	}
	if cfg.Health.Consecutive < 1 {
		return errors.New("health.consecutive must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// setList parses a comma separated value, dropping empty entries.
func setList(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) > 0 {
		*dst = out
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
