package moodle

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMoodle serves the two endpoints the client touches and routes REST
// calls by wsfunction.
func fakeMoodle(t *testing.T, handlers map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc(loginPath, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if h, ok := handlers["login"]; ok {
			h(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"token":"abc123"}`))
	})
	mux.HandleFunc(restPath, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "abc123", r.Form.Get("wstoken"))
		assert.Equal(t, "json", r.Form.Get("moodlewsrestformat"))

		fn := r.Form.Get("wsfunction")
		h, ok := handlers[fn]
		require.True(t, ok, "unexpected wsfunction %q", fn)
		h(w, r)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func loggedInClient(t *testing.T, handlers map[string]http.HandlerFunc) *Client {
	t.Helper()

	if _, ok := handlers["core_webservice_get_site_info"]; !ok {
		handlers["core_webservice_get_site_info"] = func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"userid":7,"sitename":"Test Moodle"}`))
		}
	}

	server := fakeMoodle(t, handlers)
	client := NewClient(Config{
		URL:       server.URL,
		Username:  "student",
		Password:  "hunter2",
		RateLimit: 1000,
	})
	require.NoError(t, client.Login(context.Background()))
	return client
}

func TestClient_Login(t *testing.T) {
	client := loggedInClient(t, map[string]http.HandlerFunc{})

	assert.Equal(t, int64(7), client.UserID())
}

func TestClient_Login_InvalidCredentials(t *testing.T) {
	server := fakeMoodle(t, map[string]http.HandlerFunc{
		"login": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"error":"Invalid login, please try again","errorcode":"invalidlogin"}`))
		},
	})

	client := NewClient(Config{URL: server.URL, Username: "student", Password: "wrong", RateLimit: 1000})
	err := client.Login(context.Background())

	require.Error(t, err)
	var permErr *PermanentError
	require.ErrorAs(t, err, &permErr)
	assert.False(t, permErr.IsRetryable())
}

func TestClient_Login_ServerDown(t *testing.T) {
	client := NewClient(Config{URL: "http://localhost:59999", Username: "u", Password: "p", RateLimit: 1000})
	err := client.Login(context.Background())

	require.Error(t, err)
	var transient *TransientError
	require.ErrorAs(t, err, &transient)
	assert.True(t, transient.IsRetryable())
}

func TestClient_LatestNotification(t *testing.T) {
	client := loggedInClient(t, map[string]http.HandlerFunc{
		"message_popup_get_popup_notifications": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "7", r.Form.Get("useridto"))
			_, _ = w.Write([]byte(`{
				"notifications": [
					{"id": 42, "useridfrom": 5, "subject": "Assignment due",
					 "fullmessagehtml": "<p>Soon</p>", "smallmessage": "Soon", "timecreated": 1700000000},
					{"id": 41, "useridfrom": 5, "subject": "Older", "fullmessagehtml": "<p>Old</p>"}
				],
				"unreadcount": 2
			}`))
		},
	})

	n, err := client.LatestNotification(context.Background())
	require.NoError(t, err)
	require.NotNil(t, n)

	assert.Equal(t, int64(42), n.ID)
	assert.Equal(t, "Assignment due", n.Subject)
	assert.Equal(t, "<p>Soon</p>", n.BodyHTML)
	require.NotNil(t, n.SenderID)
	assert.Equal(t, int64(5), *n.SenderID)
}

func TestClient_LatestNotification_Empty(t *testing.T) {
	client := loggedInClient(t, map[string]http.HandlerFunc{
		"message_popup_get_popup_notifications": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"notifications": [], "unreadcount": 0}`))
		},
	})

	n, err := client.LatestNotification(context.Background())
	require.NoError(t, err)
	assert.Nil(t, n)
}

func TestClient_LatestNotification_SystemSender(t *testing.T) {
	client := loggedInClient(t, map[string]http.HandlerFunc{
		"message_popup_get_popup_notifications": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"notifications": [{"id": 9, "useridfrom": -10, "subject": "System"}]}`))
		},
	})

	n, err := client.LatestNotification(context.Background())
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.Nil(t, n.SenderID, "negative pseudo-ids must not be resolvable")
}

func TestClient_LatestNotification_WSException(t *testing.T) {
	client := loggedInClient(t, map[string]http.HandlerFunc{
		"message_popup_get_popup_notifications": func(w http.ResponseWriter, _ *http.Request) {
			// Moodle reports errors with HTTP 200.
			_, _ = w.Write([]byte(`{"exception":"moodle_exception","errorcode":"sitemaintenance","message":"down"}`))
		},
	})

	_, err := client.LatestNotification(context.Background())
	require.Error(t, err)

	var transient *TransientError
	require.ErrorAs(t, err, &transient)
	assert.Contains(t, err.Error(), "sitemaintenance")
}

func TestClient_ResolveUser(t *testing.T) {
	client := loggedInClient(t, map[string]http.HandlerFunc{
		"core_user_get_users_by_field": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "id", r.Form.Get("field"))
			assert.Equal(t, "5", r.Form.Get("values[0]"))
			_, _ = w.Write([]byte(`[{"id":5,"fullname":"Jane Moodle","profileimageurl":"https://moodle.example.com/pix/u/5.png"}]`))
		},
	})

	identity, err := client.ResolveUser(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, "Jane Moodle", identity.FullName)
	assert.Equal(t, "https://moodle.example.com/pix/u/5.png", identity.ProfileImageURL)
}

func TestClient_ResolveUser_NotFound(t *testing.T) {
	client := loggedInClient(t, map[string]http.HandlerFunc{
		"core_user_get_users_by_field": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`[]`))
		},
	})

	_, err := client.ResolveUser(context.Background(), 5)
	require.ErrorIs(t, err, ErrUserNotFound)
}
