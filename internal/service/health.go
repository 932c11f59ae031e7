package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Strob0t/lifelog/internal/config"
	"github.com/Strob0t/lifelog/internal/domain/resource"
)

// ErrResourceExhausted is returned by HealthMonitor.Run once host load stayed
// above the threshold for the configured number of samples. The process is
// expected to exit so a supervisor can restart it.
var ErrResourceExhausted = errors.New("host resources exhausted")

// UsageSampler reports current host load.
type UsageSampler interface {
	Sample(ctx context.Context) (resource.Usage, error)
}

// HealthMonitor watches host CPU and memory.
type HealthMonitor struct {
	sampler     UsageSampler
	interval    time.Duration
	threshold   float64
	consecutive int

	strikes int
}

// NewHealthMonitor creates a monitor from the health config section.
func NewHealthMonitor(cfg config.Health, sampler UsageSampler) *HealthMonitor {
	h := &HealthMonitor{
		sampler:     sampler,
		interval:    cfg.Interval,
		threshold:   cfg.ThresholdPercent,
		consecutive: cfg.Consecutive,
	}
	if h.interval <= 0 {
		h.interval = 30 * time.Second
	}
	if h.consecutive < 1 {
		h.consecutive = 1
	}
	return h
}

// Run samples every interval until ctx is done or load stays high.
func (h *HealthMonitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		if err := h.Check(ctx); err != nil {
			return err
		}
	}
}

// Check takes one sample. Sampling errors are logged and do not count.
func (h *HealthMonitor) Check(ctx context.Context) error {
	u, err := h.sampler.Sample(ctx)
	if err != nil {
		if ctx.Err() == nil {
			slog.WarnContext(ctx, "health-check sample failed", "error", err)
		}
		return nil
	}

	if !u.Exceeds(h.threshold) {
		if h.strikes > 0 {
			slog.InfoContext(ctx, "health-check load back to normal", "cpu_percent", u.CPUPercent, "memory_percent", u.MemoryPercent)
		}
		h.strikes = 0
		slog.DebugContext(ctx, "health-check", "cpu_percent", u.CPUPercent, "memory_percent", u.MemoryPercent)
		return nil
	}

	h.strikes++
	slog.WarnContext(ctx, "health-check high usage",
		"cpu_percent", u.CPUPercent, "memory_percent", u.MemoryPercent,
		"threshold_percent", h.threshold, "strike", h.strikes, "of", h.consecutive)
	if h.strikes >= h.consecutive {
		return fmt.Errorf("%w: %s for %d samples", ErrResourceExhausted, u, h.strikes)
	}
	return nil
}
