// Package summary condenses notification bodies with an OpenAI-compatible
// chat completion API. Summaries are strictly best-effort decoration: a
// failure here is logged by the caller and never blocks delivery.
package summary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Config holds summarizer configuration.
type Config struct {
	Enabled      bool
	APIKey       string
	Model        string
	SystemPrompt string
	MaxTokens    int
	BaseURL      string // alternative OpenAI-compatible endpoint (optional)
}

// Summarizer produces short summaries of notification text.
type Summarizer struct {
	config Config
	client *openai.Client
}

// NewSummarizer creates a summarizer.
// Returns an error if enabled but the API key is missing.
func NewSummarizer(config Config) (*Summarizer, error) {
	if config.Enabled && config.APIKey == "" {
		return nil, errors.New("summarizer: API key is required when enabled")
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	slog.Info("summarizer configured", "enabled", config.Enabled, "model", config.Model)

	return &Summarizer{
		config: config,
		client: openai.NewClientWithConfig(clientConfig),
	}, nil
}

// Summarize returns a summary of text, or an empty string when disabled.
func (s *Summarizer) Summarize(ctx context.Context, text string) (string, error) {
	if !s.config.Enabled {
		return "", nil
	}
	if strings.TrimSpace(text) == "" {
		return "", nil
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     s.config.Model,
		MaxTokens: s.config.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: s.config.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion: empty response")
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
