// Package memory provides in-process implementations of the storage ports,
// used for dry runs and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Strob0t/lifelog/internal/domain/event"
	"github.com/Strob0t/lifelog/internal/port/eventstore"
)

var _ eventstore.Repository = (*EventStore)(nil)

// EventStore keeps events in a slice.
type EventStore struct {
	mu     sync.Mutex
	events []event.LifeEvent
	ids    map[string]struct{}
}

// NewEventStore returns an empty store.
func NewEventStore() *EventStore {
	return &EventStore{ids: make(map[string]struct{})}
}

func (s *EventStore) Save(_ context.Context, ev *event.LifeEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.ids[ev.ID]; dup {
		return nil
	}
	s.ids[ev.ID] = struct{}{}
	s.events = append(s.events, *ev)
	return nil
}

func (s *EventStore) FindByTimeRange(_ context.Context, start, end time.Time) ([]event.LifeEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []event.LifeEvent
	for _, e := range s.events {
		if !e.Timestamp.Before(start) && !e.Timestamp.After(end) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// Len reports how many events are stored.
func (s *EventStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}
