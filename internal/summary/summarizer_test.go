package summary

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSummarizer_EnabledWithoutKey(t *testing.T) {
	_, err := NewSummarizer(Config{Enabled: true})
	require.Error(t, err)
}

func TestSummarize_Disabled(t *testing.T) {
	s, err := NewSummarizer(Config{Enabled: false})
	require.NoError(t, err)

	got, err := s.Summarize(context.Background(), "anything")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSummarize_EmptyInput(t *testing.T) {
	s, err := NewSummarizer(Config{Enabled: true, APIKey: "sk-test"})
	require.NoError(t, err)

	got, err := s.Summarize(context.Background(), "   \n ")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSummarize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o-mini", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "user", req.Messages[1].Role)
		assert.Equal(t, "Long notification body", req.Messages[1].Content)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":" Short summary. "}}]}`))
	}))
	defer server.Close()

	s, err := NewSummarizer(Config{
		Enabled:      true,
		APIKey:       "sk-test",
		Model:        "gpt-4o-mini",
		SystemPrompt: "Summarize.",
		MaxTokens:    100,
		BaseURL:      server.URL + "/v1",
	})
	require.NoError(t, err)

	got, err := s.Summarize(context.Background(), "Long notification body")
	require.NoError(t, err)
	assert.Equal(t, "Short summary.", got)
}

func TestSummarize_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	s, err := NewSummarizer(Config{
		Enabled: true,
		APIKey:  "sk-test",
		Model:   "gpt-4o-mini",
		BaseURL: server.URL + "/v1",
	})
	require.NoError(t, err)

	_, err = s.Summarize(context.Background(), "body")
	require.Error(t, err)
}
