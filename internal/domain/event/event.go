// Package event defines the LifeEvent domain entity: a timestamped activity
// record (window focus, media playback, ...) correlated with recordings.
package event

import (
	"encoding/json"
	"time"
)

// Source identifies where an event was captured.
type Source string

const (
	SourceWindowsActivity Source = "windows_activity"
	SourceWindowsAudio    Source = "windows_audio"
	SourceUbuntuMonitor   Source = "ubuntu_monitor"
	SourceSystem          Source = "system"
)

// LifeEvent is a single immutable activity record.
type LifeEvent struct {
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Source    Source          `json:"source"`
	Kind      string          `json:"kind,omitempty"` // e.g. WindowFocus, MediaPlaying
	Payload   json.RawMessage `json:"payload"`
}
