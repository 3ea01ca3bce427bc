// Package discord provides Discord notification sending via webhooks.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"moodle-herald/internal/domain"
	"moodle-herald/internal/notifications"
)

const (
	defaultTimeout = 10 * time.Second
	defaultBotName = "Moodle Herald"

	// Discord rejects embed descriptions beyond this length.
	maxDescriptionLen = 4096

	embedColor = 0x2b5e91
)

// Config holds Discord sender configuration.
type Config struct {
	Enabled      bool
	WebhookURL   string
	BotName      string // username shown for the webhook, default "Moodle Herald"
	ThumbnailURL string // embed thumbnail (optional)
	Timeout      time.Duration
}

// Sender implements Discord notification sending via webhooks.
type Sender struct {
	config     Config
	httpClient *http.Client
}

// NewSender creates a new Discord sender.
// Returns an error if enabled but the webhook URL is missing.
func NewSender(config Config) (*Sender, error) {
	if config.Enabled && config.WebhookURL == "" {
		return nil, fmt.Errorf("discord sender: webhook URL is required when enabled")
	}

	if config.BotName == "" {
		config.BotName = defaultBotName
	}
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}

	slog.Info("discord sender configured",
		"enabled", config.Enabled,
		"bot_name", config.BotName,
	)

	return &Sender{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}, nil
}

// Type returns the channel type.
func (s *Sender) Type() domain.ChannelType {
	return domain.ChannelTypeDiscord
}

// Enabled reports whether the sender is configured for delivery.
func (s *Sender) Enabled() bool {
	return s.config.Enabled
}

// RequiresSender is true: the embed author line shows the resolved sender.
func (s *Sender) RequiresSender() bool {
	return true
}

type webhookPayload struct {
	Username string  `json:"username,omitempty"`
	Embeds   []embed `json:"embeds"`
}

type embed struct {
	Title       string          `json:"title,omitempty"`
	Description string          `json:"description,omitempty"`
	Color       int             `json:"color,omitempty"`
	Author      *embedAuthor    `json:"author,omitempty"`
	Thumbnail   *embedThumbnail `json:"thumbnail,omitempty"`
	Fields      []embedField    `json:"fields,omitempty"`
}

type embedAuthor struct {
	Name    string `json:"name"`
	IconURL string `json:"icon_url,omitempty"`
}

type embedThumbnail struct {
	URL string `json:"url"`
}

type embedField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Send posts the message as a single embed to the webhook.
func (s *Sender) Send(ctx context.Context, msg notifications.Message) error {
	if !s.config.Enabled {
		slog.Debug("discord sender disabled, skipping")
		return nil
	}

	e := embed{
		Title:       msg.Subject,
		Description: truncate(msg.Body, maxDescriptionLen),
		Color:       embedColor,
		Author: &embedAuthor{
			Name:    msg.Sender.FullName,
			IconURL: msg.Sender.ProfileImageURL,
		},
	}
	if s.config.ThumbnailURL != "" {
		e.Thumbnail = &embedThumbnail{URL: s.config.ThumbnailURL}
	}
	if msg.Summary != "" {
		e.Fields = append(e.Fields, embedField{Name: "Summary", Value: truncate(msg.Summary, 1024)})
	}

	payload := webhookPayload{
		Username: s.config.BotName,
		Embeds:   []embed{e},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return &RetryableError{Message: fmt.Sprintf("send request: %v", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	return s.handleResponse(resp)
}

func (s *Sender) handleResponse(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	switch {
	// Webhook executions return 204; 200 shows up with ?wait=true.
	case resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusOK:
		slog.Debug("discord message sent", "webhook", maskWebhookURL(s.config.WebhookURL))
		return nil

	case resp.StatusCode == http.StatusBadRequest:
		return &PermanentError{
			Code:    resp.StatusCode,
			Message: fmt.Sprintf("bad request: %s", string(body)),
		}

	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &PermanentError{
			Code:    resp.StatusCode,
			Message: "invalid or expired webhook",
		}

	case resp.StatusCode == http.StatusNotFound:
		return &PermanentError{
			Code:    resp.StatusCode,
			Message: "webhook not found",
		}

	case resp.StatusCode == http.StatusTooManyRequests:
		return &RetryableError{
			Code:    resp.StatusCode,
			Message: "rate limited",
		}

	case resp.StatusCode >= 500:
		return &RetryableError{
			Code:    resp.StatusCode,
			Message: fmt.Sprintf("server error: %s", string(body)),
		}

	default:
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}

// maskWebhookURL hides the webhook token for logging.
func maskWebhookURL(url string) string {
	if len(url) > 40 {
		return url[:20] + "..." + url[len(url)-10:]
	}
	return url
}

// PermanentError indicates a failure that should not be retried.
type PermanentError struct {
	Code    int
	Message string
}

func (e *PermanentError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("discord error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("discord error: %s", e.Message)
}

// IsRetryable returns false as permanent errors should not be retried.
func (e *PermanentError) IsRetryable() bool { return false }

// RetryableError indicates a temporary failure.
type RetryableError struct {
	Code    int
	Message string
}

func (e *RetryableError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("discord error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("discord error: %s", e.Message)
}

// IsRetryable returns true as these errors are temporary.
func (e *RetryableError) IsRetryable() bool { return true }
