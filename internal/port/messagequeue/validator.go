package messagequeue

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Validate checks that data is JSON matching the schema of subject.
// Unknown subjects only need to be valid JSON.
func Validate(subject string, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("invalid JSON on subject %s", subject)
	}

	switch subject {
	case SubjectTaskCreated:
		var p TaskCreatedPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("schema validation failed for %s: %w", subject, err)
		}
		if p.TaskID == "" || p.TaskType == "" {
			return fmt.Errorf("schema validation failed for %s: %w", subject, errors.New("task_id and task_type are required"))
		}
	case SubjectTaskStatus:
		var p TaskStatusPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("schema validation failed for %s: %w", subject, err)
		}
		if p.TaskID == "" || p.Status == "" {
			return fmt.Errorf("schema validation failed for %s: %w", subject, errors.New("task_id and status are required"))
		}
	case SubjectSessionStarted, SubjectSessionFinished:
		var p SessionPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("schema validation failed for %s: %w", subject, err)
		}
		if p.Path == "" {
			return fmt.Errorf("schema validation failed for %s: %w", subject, errors.New("path is required"))
		}
	}
	return nil
}
