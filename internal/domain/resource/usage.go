// Package resource defines host resource usage samples for the health loop.
package resource

import "fmt"

// Usage is a point-in-time view of host load, in percent (0..100).
type Usage struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
}

// Exceeds reports whether CPU or memory is at or above threshold percent.
func (u Usage) Exceeds(threshold float64) bool {
	return u.CPUPercent >= threshold || u.MemoryPercent >= threshold
}

func (u Usage) String() string {
	return fmt.Sprintf("cpu=%.1f%% memory=%.1f%%", u.CPUPercent, u.MemoryPercent)
}
