package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/lifelog/internal/domain/event"
	"github.com/Strob0t/lifelog/internal/port/eventstore"
)

var _ eventstore.Repository = (*EventStore)(nil)

// EventStore implements eventstore.Repository on the life_events table.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates a new EventStore backed by the given connection pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Save inserts ev. Re-importing an event with a known ID is ignored.
func (s *EventStore) Save(ctx context.Context, ev *event.LifeEvent) error {
	payload := ev.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO life_events (id, ts, source, kind, payload)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO NOTHING`,
		ev.ID, ev.Timestamp.UTC(), string(ev.Source), ev.Kind, payload)
	if err != nil {
		return fmt.Errorf("save event %s: %w", ev.ID, err)
	}
	return nil
}

// FindByTimeRange returns events with start <= ts <= end, oldest first.
func (s *EventStore) FindByTimeRange(ctx context.Context, start, end time.Time) ([]event.LifeEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id::text, ts, source, kind, payload FROM life_events
		 WHERE ts >= $1 AND ts <= $2 ORDER BY ts ASC, id ASC`,
		start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("find events %s..%s: %w", start.Format(time.RFC3339), end.Format(time.RFC3339), err)
	}
	defer rows.Close()

	var events []event.LifeEvent
	for rows.Next() {
		var (
			ev     event.LifeEvent
			source string
		)
		if err := rows.Scan(&ev.ID, &ev.Timestamp, &source, &ev.Kind, &ev.Payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Source = event.Source(source)
		events = append(events, ev)
	}
	return events, rows.Err()
}
