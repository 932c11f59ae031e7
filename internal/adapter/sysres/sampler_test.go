package sysres

import (
	"context"
	"testing"
	"time"
)

func TestSampleHost(t *testing.T) {
	u, err := New(50*time.Millisecond).Sample(context.Background())
	if err != nil {
		t.Skipf("host metrics unavailable: %v", err)
	}
	if u.CPUPercent < 0 || u.CPUPercent > 100 {
		t.Errorf("cpu = %v", u.CPUPercent)
	}
	if u.MemoryPercent <= 0 || u.MemoryPercent > 100 {
		t.Errorf("memory = %v", u.MemoryPercent)
	}
}
