// Package gemini implements the content generation ports on the Google
// Generative Language REST API.
package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/Strob0t/lifelog/internal/config"
	"github.com/Strob0t/lifelog/internal/domain/evaluation"
	"github.com/Strob0t/lifelog/internal/port/contentgen"
	"github.com/Strob0t/lifelog/internal/resilience"
)

var (
	_ contentgen.Generator = (*Client)(nil)
	_ contentgen.Curator   = (*Client)(nil)
)

// ErrEmptyResponse is returned when the API answers without candidate text.
var ErrEmptyResponse = errors.New("gemini: response has no text")

// maxAudioBytes is the inline request limit of the API.
const maxAudioBytes = 20 << 20

const transcribePrompt = "Please transcribe this audio exactly as it is spoken. Output only the transcript text."

// Client talks to the generateContent endpoint of one model.
type Client struct {
	baseURL    string
	model      string
	apiKey     string
	httpClient *http.Client
	breaker    *resilience.Breaker
}

// NewClient creates a client for cfg. httpClient may be nil, in which case
// a client with cfg.Timeout is used.
func NewClient(cfg config.Gemini, httpClient *http.Client) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: api key is not configured (GOOGLE_API_KEY)")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
	}, nil
}

// SetBreaker attaches a circuit breaker to all outgoing HTTP calls.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type content struct {
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
}

// GenerateContent sends a text-only prompt.
func (c *Client) GenerateContent(ctx context.Context, prompt string) (string, error) {
	return c.generate(ctx, []part{{Text: prompt}})
}

// Transcribe uploads the audio file inline and asks for a verbatim transcript.
func (c *Client) Transcribe(ctx context.Context, audioPath string) (string, error) {
	info, err := os.Stat(audioPath)
	if err != nil {
		return "", resilience.Permanent(fmt.Errorf("stat audio: %w", err))
	}
	if info.Size() > maxAudioBytes {
		return "", resilience.Permanent(fmt.Errorf("audio %s is %d bytes, above the %d byte inline limit", audioPath, info.Size(), maxAudioBytes))
	}
	data, err := os.ReadFile(audioPath) //nolint:gosec // G304: path comes from the task document
	if err != nil {
		return "", resilience.Permanent(fmt.Errorf("read audio: %w", err))
	}
	return c.generate(ctx, []part{
		{InlineData: &inlineData{MimeType: MimeType(audioPath), Data: base64.StdEncoding.EncodeToString(data)}},
		{Text: transcribePrompt},
	})
}

// SummarizeSession asks for a summary of the transcript read against the
// recorded activity.
func (c *Client) SummarizeSession(ctx context.Context, transcript, activity string) (string, error) {
	return c.GenerateContent(ctx, summaryPrompt(transcript, activity))
}

// VerifySummary asks the model to grade summary and decodes the JSON verdict.
func (c *Client) VerifySummary(ctx context.Context, summary, transcript, activity string) (evaluation.Evaluation, error) {
	out, err := c.GenerateContent(ctx, verifyPrompt(summary, transcript, activity))
	if err != nil {
		return evaluation.Evaluation{}, err
	}
	return ParseEvaluation(out)
}

// ParseEvaluation decodes a verdict, tolerating a markdown code fence.
func ParseEvaluation(s string) (evaluation.Evaluation, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	var ev evaluation.Evaluation
	if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &ev); err != nil {
		return evaluation.Evaluation{}, fmt.Errorf("decode evaluation: %w", err)
	}
	return ev, nil
}

func summaryPrompt(transcript, activity string) string {
	var b strings.Builder
	b.WriteString("Summarize the following conversation recording as a concise lifelog entry. ")
	b.WriteString("Use the activity log to describe what was happening on the computer at the time.\n\n")
	b.WriteString("Transcript:\n")
	b.WriteString(transcript)
	b.WriteString("\n\nActivity log:\n")
	if activity == "" {
		b.WriteString("(none recorded)")
	} else {
		b.WriteString(activity)
	}
	return b.String()
}

func verifyPrompt(summary, transcript, activity string) string {
	return fmt.Sprintf("Compare the summary with the transcript and activity log it was written from and grade it. "+
		"Answer in JSON only.\n\nSummary:\n%s\n\nTranscript:\n%s\n\nActivity log:\n%s\n\n"+
		`Expected format: { "faithfulness_score": 1-5, "quality_score": 1-5, "reasoning": "..." }`,
		summary, transcript, activity)
}

// MimeType guesses the audio MIME type from the file extension.
func MimeType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".flac":
		return "audio/flac"
	case ".mp3":
		return "audio/mp3"
	case ".ogg", ".opus":
		return "audio/ogg"
	case ".m4a":
		return "audio/aac"
	default:
		return "audio/wav"
	}
}

func (c *Client) generate(ctx context.Context, parts []part) (string, error) {
	body, err := json.Marshal(generateRequest{Contents: []content{{Parts: parts}}})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	var text string
	call := func() error {
		data, err := c.post(ctx, body)
		if err != nil {
			return err
		}
		text, err = extractText(data)
		return err
	}

	if c.breaker != nil {
		if err := c.breaker.Execute(call); err != nil {
			return "", err
		}
		return text, nil
	}
	if err := call(); err != nil {
		return "", err
	}
	return text, nil
}

func (c *Client) post(ctx context.Context, body []byte) ([]byte, error) {
	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, resilience.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := fmt.Errorf("gemini API error %d: %s", resp.StatusCode, truncate(data, 512))
		if retryable(resp.StatusCode) {
			return nil, apiErr
		}
		return nil, resilience.Permanent(apiErr)
	}
	return data, nil
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status == http.StatusRequestTimeout || status >= 500
}

func extractText(data []byte) (string, error) {
	var resp generateResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if len(resp.Candidates) == 0 {
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return "", resilience.Permanent(fmt.Errorf("%w: blocked (%s)", ErrEmptyResponse, resp.PromptFeedback.BlockReason))
		}
		return "", ErrEmptyResponse
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	if b.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return b.String(), nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
