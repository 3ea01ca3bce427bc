// Package pushbullet provides push notification sending via the Pushbullet API.
package pushbullet

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
	defaultAPIURL  = "https://api.pushbullet.com/v2/pushes"
)

// Config holds Pushbullet sender configuration.
type Config struct {
	Enabled bool
	APIKey  string
	APIURL  string // overridable for tests
	Timeout time.Duration
}

// Sender implements push notification sending via Pushbullet.
type Sender struct {
	config     Config
	httpClient *http.Client
}

// NewSender creates a new Pushbullet sender.
// Returns an error if enabled but the API key is missing.
func NewSender(config Config) (*Sender, error) {
	if config.Enabled && config.APIKey == "" {
		return nil, fmt.Errorf("pushbullet sender: API key is required when enabled")
	}

	if config.APIURL == "" {
		config.APIURL = defaultAPIURL
	}
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}

	slog.Info("pushbullet sender configured", "enabled", config.Enabled)

	return &Sender{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}, nil
}

// Type returns the channel type.
func (s *Sender) Type() domain.ChannelType {
	return domain.ChannelTypePushbullet
}

// Enabled reports whether the sender is configured for delivery.
func (s *Sender) Enabled() bool {
	return s.config.Enabled
}

// RequiresSender is false: pushes carry only subject and text, so a Moodle
// user lookup would be wasted.
func (s *Sender) RequiresSender() bool {
	return false
}

type pushPayload struct {
	Type  string `json:"type"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Send creates a note push with the subject and the summary, falling back
// to the full body when no summary is available.
func (s *Sender) Send(ctx context.Context, msg notifications.Message) error {
	if !s.config.Enabled {
		slog.Debug("pushbullet sender disabled, skipping")
		return nil
	}

	text := msg.Summary
	if text == "" {
		text = msg.Body
	}

	body, err := json.Marshal(pushPayload{
		Type:  "note",
		Title: msg.Subject,
		Body:  text,
	})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Access-Token", s.config.APIKey)

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
	case resp.StatusCode == http.StatusOK:
		slog.Debug("pushbullet push sent")
		return nil

	case resp.StatusCode == http.StatusBadRequest:
		return &PermanentError{
			Code:    resp.StatusCode,
			Message: fmt.Sprintf("bad request: %s", string(body)),
		}

	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &PermanentError{
			Code:    resp.StatusCode,
			Message: "invalid or revoked access token",
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

// PermanentError indicates a failure that should not be retried.
type PermanentError struct {
	Code    int
	Message string
}

func (e *PermanentError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("pushbullet error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("pushbullet error: %s", e.Message)
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
		return fmt.Sprintf("pushbullet error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("pushbullet error: %s", e.Message)
}

// IsRetryable returns true as these errors are temporary.
func (e *RetryableError) IsRetryable() bool { return true }
