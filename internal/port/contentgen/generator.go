// Package contentgen defines the port interfaces for the language model
// backend that transcribes and summarizes sessions.
package contentgen

import (
	"context"

	"github.com/Strob0t/lifelog/internal/domain/evaluation"
)

// Generator produces text from prompts and audio.
type Generator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// Curator grades and condenses generated content.
type Curator interface {
	// VerifySummary scores summary against the transcript and activity context it was built from.
	VerifySummary(ctx context.Context, summary, transcript, activity string) (evaluation.Evaluation, error)

	// SummarizeSession summarizes a cleaned transcript together with the
	// activity recorded during the same session.
	SummarizeSession(ctx context.Context, transcript, activity string) (string, error)
}
