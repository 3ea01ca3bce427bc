package pushbullet

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moodle-herald/internal/notifications"
)

func TestNewSender_EnabledWithoutKey(t *testing.T) {
	_, err := NewSender(Config{Enabled: true})
	require.Error(t, err)
}

func TestSend_Disabled(t *testing.T) {
	s, err := NewSender(Config{Enabled: false})
	require.NoError(t, err)

	require.NoError(t, s.Send(context.Background(), notifications.Message{Subject: "x"}))
}

func TestSend_Payload(t *testing.T) {
	var payload pushPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "secret-key", r.Header.Get("Access-Token"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	s, err := NewSender(Config{Enabled: true, APIKey: "secret-key", APIURL: server.URL})
	require.NoError(t, err)

	require.NoError(t, s.Send(context.Background(), notifications.Message{
		Subject: "Assignment due",
		Body:    "Full body text",
		Summary: "Short summary",
	}))

	assert.Equal(t, "note", payload.Type)
	assert.Equal(t, "Assignment due", payload.Title)
	// The push carries the summary when one is available.
	assert.Equal(t, "Short summary", payload.Body)
}

func TestSend_FallsBackToBody(t *testing.T) {
	var payload pushPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	s, err := NewSender(Config{Enabled: true, APIKey: "secret-key", APIURL: server.URL})
	require.NoError(t, err)

	require.NoError(t, s.Send(context.Background(), notifications.Message{
		Subject: "Assignment due",
		Body:    "Full body text",
	}))
	assert.Equal(t, "Full body text", payload.Body)
}

func TestSend_StatusCodes(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		permanent bool
		retryable bool
	}{
		{name: "bad request", status: http.StatusBadRequest, permanent: true},
		{name: "unauthorized", status: http.StatusUnauthorized, permanent: true},
		{name: "forbidden", status: http.StatusForbidden, permanent: true},
		{name: "rate limited", status: http.StatusTooManyRequests, retryable: true},
		{name: "server error", status: http.StatusInternalServerError, retryable: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			s, err := NewSender(Config{Enabled: true, APIKey: "secret-key", APIURL: server.URL})
			require.NoError(t, err)

			err = s.Send(context.Background(), notifications.Message{Subject: "x"})
			require.Error(t, err)

			if tt.permanent {
				var permErr *PermanentError
				require.ErrorAs(t, err, &permErr)
				assert.False(t, permErr.IsRetryable())
			}
			if tt.retryable {
				var retryErr *RetryableError
				require.ErrorAs(t, err, &retryErr)
				assert.True(t, retryErr.IsRetryable())
			}
		})
	}
}

func TestSend_ConnectionFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close()

	s, err := NewSender(Config{Enabled: true, APIKey: "secret-key", APIURL: server.URL, Timeout: time.Second})
	require.NoError(t, err)

	err = s.Send(context.Background(), notifications.Message{Subject: "x"})
	var retryErr *RetryableError
	require.ErrorAs(t, err, &retryErr)
}
