package notify

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	json "github.com/goccy/go-json"
)

const (
	// Colors for Discord embeds
	colorRed   = 15158332 // 0xE74C3C
	colorGreen = 5763719  // 0x57F287

	defaultWebhookTimeout = 10 * time.Second

	// Max retries for rate limiting
	maxRetries = 3
)

// WebhookPayload represents a Discord webhook message
type WebhookPayload struct {
	Content string  `json:"content,omitempty"`
	Embeds  []Embed `json:"embeds,omitempty"`
}

// Embed represents a Discord embed
type Embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color,omitempty"`
	Fields      []EmbedField `json:"fields,omitempty"`
	Footer      *EmbedFooter `json:"footer,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
}

// EmbedField represents a field in a Discord embed
type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// EmbedFooter represents the footer of a Discord embed
type EmbedFooter struct {
	Text string `json:"text"`
}

// RunStats summarizes one bulk collection run.
type RunStats struct {
	Source     string
	Parsed     int
	Duplicates int
	Failed     int
	Runtime    time.Duration
}

// NewRunSummaryPayload creates the payload posted when a run finishes
func NewRunSummaryPayload(s RunStats) WebhookPayload {
	color := colorGreen
	if s.Failed > 0 && s.Parsed == 0 {
		color = colorRed
	}
	return WebhookPayload{
		Embeds: []Embed{
			{
				Title:       "Replay collection finished",
				Description: s.Source,
				Color:       color,
				Fields: []EmbedField{
					{Name: "Parsed", Value: humanize.Comma(int64(s.Parsed)), Inline: true},
					{Name: "Duplicates", Value: humanize.Comma(int64(s.Duplicates)), Inline: true},
					{Name: "Failed", Value: humanize.Comma(int64(s.Failed)), Inline: true},
					{Name: "Runtime", Value: formatDuration(s.Runtime), Inline: true},
				},
			},
		},
	}
}

// NewRunFailedPayload creates the payload posted when a run aborts
func NewRunFailedPayload(source string, err error) WebhookPayload {
	return WebhookPayload{
		Content: "@here Replay collection failed",
		Embeds: []Embed{
			{
				Title:       "Replay collection failed",
				Description: source,
				Color:       colorRed,
				Fields:      []EmbedField{{Name: "Error", Value: err.Error()}},
				Footer:      &EmbedFooter{Text: "Already collected reports were kept"},
			},
		},
	}
}

// WebhookClient sends notifications to Discord webhooks
type WebhookClient struct {
	webhookURL string
	httpClient *http.Client
}

// NewWebhookClient creates a new WebhookClient
func NewWebhookClient(webhookURL string) *WebhookClient {
	return &WebhookClient{
		webhookURL: webhookURL,
		httpClient: &http.Client{
			Timeout: defaultWebhookTimeout,
		},
	}
}

// SendRunSummary posts the summary of a finished run
func (c *WebhookClient) SendRunSummary(ctx context.Context, s RunStats) error {
	return c.sendPayload(ctx, NewRunSummaryPayload(s))
}

// SendRunFailed posts an aborted run
func (c *WebhookClient) SendRunFailed(ctx context.Context, source string, err error) error {
	return c.sendPayload(ctx, NewRunFailedPayload(source, err))
}

// sendPayload sends a webhook payload with retry on rate limiting
func (c *WebhookClient) sendPayload(ctx context.Context, payload WebhookPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	for attempt := 0; attempt < maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		resp.Body.Close()

		// Discord returns 204 No Content
		if resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusOK {
			return nil
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			waitDuration := time.Second
			if seconds, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
				waitDuration = time.Duration(seconds) * time.Second
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(waitDuration):
				continue
			}
		}

		return fmt.Errorf("webhook request failed with status %d", resp.StatusCode)
	}

	return fmt.Errorf("webhook request failed after %d retries", maxRetries)
}

// formatDuration formats a duration as "Xh Ym" (e.g., 18h 32m)
func formatDuration(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh %dm", hours, minutes)
}
