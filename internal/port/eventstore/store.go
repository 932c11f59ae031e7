// Package eventstore defines the port interface for the life event repository.
package eventstore

import (
	"context"
	"time"

	"github.com/Strob0t/lifelog/internal/domain/event"
)

// Repository stores activity events and answers time-window queries.
type Repository interface {
	// Save persists one event. Saving an event with an existing ID is a no-op.
	Save(ctx context.Context, ev *event.LifeEvent) error

	// FindByTimeRange returns events with start <= timestamp <= end, oldest first.
	FindByTimeRange(ctx context.Context, start, end time.Time) ([]event.LifeEvent, error)
}
