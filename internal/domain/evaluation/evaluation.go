// Package evaluation defines the result of grading a generated summary.
package evaluation

// Evaluation scores a summary against its source transcript.
type Evaluation struct {
	FaithfulnessScore int    `json:"faithfulness_score"`
	QualityScore      int    `json:"quality_score"`
	Reasoning         string `json:"reasoning"`
}
