// Package messagequeue defines the notification publisher port.
package messagequeue

import "context"

// Publisher sends fire-and-forget notifications. Delivery failures must never
// affect the durable task document.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
	Close() error
}

// Subjects published by lifelog. All live under the lifelog.> stream.
const (
	SubjectTaskCreated     = "lifelog.tasks.created"
	SubjectTaskStatus      = "lifelog.tasks.status"
	SubjectSessionStarted  = "lifelog.sessions.started"
	SubjectSessionFinished = "lifelog.sessions.finished"
)

// Nop discards all messages. Used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, string, []byte) error { return nil }
func (Nop) Close() error                                  { return nil }
