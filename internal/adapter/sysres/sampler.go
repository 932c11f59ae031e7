// Package sysres samples host CPU and memory load.
package sysres

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/Strob0t/lifelog/internal/domain/resource"
)

// Sampler measures CPU over a short window and reads current memory use.
type Sampler struct {
	window time.Duration
}

// New returns a sampler that averages CPU load over window.
func New(window time.Duration) *Sampler {
	if window <= 0 {
		window = time.Second
	}
	return &Sampler{window: window}
}

// Sample blocks for the CPU window.
func (s *Sampler) Sample(ctx context.Context) (resource.Usage, error) {
	cpus, err := cpu.PercentWithContext(ctx, s.window, false)
	if err != nil {
		return resource.Usage{}, fmt.Errorf("cpu percent: %w", err)
	}
	if len(cpus) == 0 {
		return resource.Usage{}, fmt.Errorf("cpu percent: no data")
	}
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return resource.Usage{}, fmt.Errorf("virtual memory: %w", err)
	}
	return resource.Usage{CPUPercent: cpus[0], MemoryPercent: vm.UsedPercent}, nil
}
