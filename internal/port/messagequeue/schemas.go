package messagequeue

import "time"

// TaskCreatedPayload is the schema for lifelog.tasks.created messages.
type TaskCreatedPayload struct {
	TaskID    string    `json:"task_id"`
	TaskType  string    `json:"task_type"`
	FilePaths []string  `json:"file_paths"`
	CreatedAt time.Time `json:"created_at"`
}

// TaskStatusPayload is the schema for lifelog.tasks.status messages.
type TaskStatusPayload struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// SessionPayload is the schema for lifelog.sessions.* messages.
type SessionPayload struct {
	Path     string    `json:"path"`
	Match    string    `json:"match,omitempty"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished,omitzero"`
}
