// Package gemini talks to the Gemini generateContent API for two jobs:
// transcribing voice audio and extracting a structured time-tracking intent
// from user text.
package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"togglbot/internal/domain"
	"togglbot/internal/httpclient"
)

// Client issues generateContent requests against the Gemini API.
type Client struct {
	apiBase string
	apiKey  string
	model   string
	client  *http.Client
	logger  *slog.Logger
}

type Config struct {
	APIBase string // e.g. "https://generativelanguage.googleapis.com/v1beta"
	APIKey  string
	Model   string // e.g. "gemini-1.5-flash"
	Logger  *slog.Logger
}

func New(cfg Config) *Client {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://generativelanguage.googleapis.com/v1beta"
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-flash"
	}
	return &Client{
		apiBase: strings.TrimRight(cfg.APIBase, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		client:  httpclient.New(120 * time.Second),
		logger:  cfg.Logger,
	}
}

type genRequest struct {
	Contents []genContent `json:"contents"`
}

type genContent struct {
	Parts []genPart `json:"parts"`
}

type genPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"` // base64
}

type genResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// generate sends one generateContent call and returns the concatenated text
// of the first candidate.
func (c *Client) generate(ctx context.Context, parts []genPart) (string, error) {
	body, err := json.Marshal(genRequest{Contents: []genContent{{Parts: parts}}})
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.apiBase, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("gemini request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("gemini API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var out genResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode gemini response: %w", err)
	}
	if len(out.Candidates) == 0 {
		return "", fmt.Errorf("gemini returned no candidates")
	}

	var sb strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String(), nil
}

// Transcribe converts audio bytes to plain text. Failures wrap
// domain.ErrTranscriptionFailed so the dispatcher can classify them.
func (c *Client) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if mimeType == "" {
		mimeType = "audio/ogg"
	}
	parts := []genPart{
		{InlineData: &inlineData{
			MimeType: mimeType,
			Data:     base64.StdEncoding.EncodeToString(audio),
		}},
		{Text: "Transcribe this audio message verbatim. Reply with the transcription only."},
	}

	text, err := c.generate(ctx, parts)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrTranscriptionFailed, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: empty transcription", domain.ErrTranscriptionFailed)
	}

	c.logger.Info("transcription complete", "text_len", len(text))
	return text, nil
}

// intentPrompt instructs the model to classify user text into the fixed
// action vocabulary and answer with a single JSON object.
const intentPrompt = `You are an intent recognition system for a time-tracking assistant bot.
Analyze the user's message and extract their intent for Toggl time tracking.
Respond only with a JSON object containing "action", "description", and
"duration_minutes" (when applicable).

Actions can be: "start_timer", "add_past_entry", "stop_timer", "get_status".
If no clear time-tracking intent is found, use "action": "unknown".

Examples:
User: "Start a timer for coding"
Response: {"action": "start_timer", "description": "coding"}

User: "Add 30 minutes for meeting prep"
Response: {"action": "add_past_entry", "description": "meeting prep", "duration_minutes": 30}

User: "Stop current task"
Response: {"action": "stop_timer"}

User: "What am I working on?"
Response: {"action": "get_status"}

User: "Remind me in 5 minutes"
Response: {"action": "unknown"}`

// ExtractIntent classifies user text into a domain.Intent. Responses that
// cannot be coerced to the fixed vocabulary fail with
// domain.ErrUnrecognizedIntent; a well-formed "unknown" action succeeds.
func (c *Client) ExtractIntent(ctx context.Context, text string) (domain.Intent, error) {
	parts := []genPart{
		{Text: intentPrompt},
		{Text: fmt.Sprintf("User: %s\nResponse: ", text)},
	}

	raw, err := c.generate(ctx, parts)
	if err != nil {
		return domain.Intent{}, fmt.Errorf("intent extraction: %w", err)
	}

	intent, err := coerceIntent(raw)
	if err != nil {
		c.logger.Warn("intent response not coercible", "raw_len", len(raw), "err", err)
		return domain.Intent{}, err
	}

	c.logger.Info("intent extracted", "action", intent.Action, "has_duration", intent.DurationMinutes > 0)
	return intent, nil
}
