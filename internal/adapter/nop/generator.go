// Package nop provides offline stand-ins for external collaborators, used
// by --dry-run so the pipeline can be exercised without network access.
package nop

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/Strob0t/lifelog/internal/domain/evaluation"
	"github.com/Strob0t/lifelog/internal/port/contentgen"
)

var (
	_ contentgen.Generator = Generator{}
	_ contentgen.Curator   = Generator{}
)

// Generator returns placeholder text derived from its inputs.
type Generator struct{}

func (Generator) GenerateContent(_ context.Context, prompt string) (string, error) {
	return fmt.Sprintf("[dry-run] %d byte prompt", len(prompt)), nil
}

func (Generator) Transcribe(_ context.Context, audioPath string) (string, error) {
	return "[dry-run] transcript of " + filepath.Base(audioPath), nil
}

func (Generator) SummarizeSession(_ context.Context, transcript, activity string) (string, error) {
	return fmt.Sprintf("[dry-run] summary of %d transcript bytes and %d activity bytes", len(transcript), len(activity)), nil
}

func (Generator) VerifySummary(context.Context, string, string, string) (evaluation.Evaluation, error) {
	return evaluation.Evaluation{Reasoning: "dry run, not evaluated"}, nil
}
