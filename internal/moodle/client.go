// Package moodle is a minimal client for the Moodle mobile web service API.
package moodle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"moodle-herald/internal/domain"
)

const (
	defaultTimeout = 10 * time.Second

	// Service name registered for the official mobile app; grants access to
	// the message_popup and core_user functions used here.
	tokenService = "moodle_mobile_app"

	loginPath = "/login/token.php"
	restPath  = "/webservice/rest/server.php"
)

// ErrUserNotFound is returned by ResolveUser when Moodle knows no user with
// the requested id. Callers treat this as non-fatal.
var ErrUserNotFound = errors.New("moodle user not found")

// TransientError marks a failure that is expected to succeed on retry:
// network problems, 5xx responses, or Moodle-side exceptions.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string     { return fmt.Sprintf("moodle %s: %v", e.Op, e.Err) }
func (e *TransientError) Unwrap() error     { return e.Err }
func (e *TransientError) IsRetryable() bool { return true }

// PermanentError marks a failure retrying cannot fix, such as rejected
// credentials during login.
type PermanentError struct {
	Op  string
	Err error
}

func (e *PermanentError) Error() string     { return fmt.Sprintf("moodle %s: %v", e.Op, e.Err) }
func (e *PermanentError) Unwrap() error     { return e.Err }
func (e *PermanentError) IsRetryable() bool { return false }

// Config holds Moodle client configuration.
type Config struct {
	URL       string
	Username  string
	Password  string
	RateLimit float64 // requests per second against the Moodle host
	Timeout   time.Duration
}

// Client talks to a single Moodle instance with one authenticated session.
// The token is obtained once by Login; Moodle web service tokens do not
// expire between calls, so there is no re-authentication path.
//
// Client is used from a single polling goroutine and is not safe for
// concurrent use.
type Client struct {
	config     Config
	httpClient *http.Client
	limiter    *rate.Limiter

	token  string
	userID int64
}

// NewClient creates an unauthenticated client. Call Login before any other
// method.
func NewClient(config Config) *Client {
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	if config.RateLimit <= 0 {
		config.RateLimit = 1
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}
}

type tokenResponse struct {
	Token     string `json:"token"`
	Error     string `json:"error"`
	ErrorCode string `json:"errorcode"`
}

type siteInfoResponse struct {
	UserID   int64  `json:"userid"`
	SiteName string `json:"sitename"`
}

// Login obtains a web service token and resolves the polling user's id.
// Rejected credentials are a PermanentError; the caller must treat it as a
// fatal startup condition, not a retryable one.
func (c *Client) Login(ctx context.Context) error {
	form := url.Values{
		"username": {c.config.Username},
		"password": {c.config.Password},
		"service":  {tokenService},
	}

	body, err := c.post(ctx, c.config.URL+loginPath, form)
	if err != nil {
		return &TransientError{Op: "login", Err: err}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return &TransientError{Op: "login", Err: fmt.Errorf("decode token response: %w", err)}
	}
	if tr.Token == "" {
		if tr.ErrorCode == "invalidlogin" {
			return &PermanentError{Op: "login", Err: errors.New("invalid credentials")}
		}
		return &TransientError{Op: "login", Err: fmt.Errorf("no token in response: %s", tr.Error)}
	}

	c.token = tr.Token

	var info siteInfoResponse
	if err := c.call(ctx, "core_webservice_get_site_info", nil, &info); err != nil {
		return err
	}
	if info.UserID == 0 {
		return &TransientError{Op: "site info", Err: errors.New("no userid in response")}
	}
	c.userID = info.UserID

	return nil
}

// UserID returns the id of the authenticated polling user.
func (c *Client) UserID() int64 { return c.userID }

type popupNotificationsResponse struct {
	Notifications []popupNotification `json:"notifications"`
	UnreadCount   int                 `json:"unreadcount"`
}

type popupNotification struct {
	ID              int64  `json:"id"`
	UserIDFrom      int64  `json:"useridfrom"`
	Subject         string `json:"subject"`
	FullMessageHTML string `json:"fullmessagehtml"`
	SmallMessage    string `json:"smallmessage"`
	TimeCreated     int64  `json:"timecreated"`
}

// LatestNotification fetches the current notification list for the polling
// user and returns the most recent entry, or nil when the stream is empty.
// Moodle orders the list most-recent-first; only the first element matters.
func (c *Client) LatestNotification(ctx context.Context) (*domain.Notification, error) {
	args := url.Values{
		"useridto": {strconv.FormatInt(c.userID, 10)},
	}

	var resp popupNotificationsResponse
	if err := c.call(ctx, "message_popup_get_popup_notifications", args, &resp); err != nil {
		return nil, err
	}

	if len(resp.Notifications) == 0 {
		return nil, nil
	}

	n := resp.Notifications[0]
	notification := &domain.Notification{
		ID:          n.ID,
		Subject:     n.Subject,
		BodyHTML:    n.FullMessageHTML,
		SmallBody:   n.SmallMessage,
		TimeCreated: n.TimeCreated,
	}
	// Moodle uses negative pseudo-ids for system senders (e.g. -10 for the
	// no-reply user); only real users can be resolved later.
	if n.UserIDFrom > 0 {
		id := n.UserIDFrom
		notification.SenderID = &id
	}

	return notification, nil
}

type userRecord struct {
	ID              int64  `json:"id"`
	FullName        string `json:"fullname"`
	ProfileImageURL string `json:"profileimageurl"`
}

// ResolveUser looks up a user's display identity by id. Returns
// ErrUserNotFound when Moodle has no such user.
func (c *Client) ResolveUser(ctx context.Context, id int64) (*domain.SenderIdentity, error) {
	args := url.Values{
		"field":     {"id"},
		"values[0]": {strconv.FormatInt(id, 10)},
	}

	var users []userRecord
	if err := c.call(ctx, "core_user_get_users_by_field", args, &users); err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, ErrUserNotFound
	}

	return &domain.SenderIdentity{
		FullName:        users[0].FullName,
		ProfileImageURL: users[0].ProfileImageURL,
	}, nil
}

// call invokes a web service function and decodes the JSON response into out.
// Moodle reports application errors with HTTP 200 and an "exception" member,
// which is mapped to a TransientError like any transport failure.
func (c *Client) call(ctx context.Context, wsfunction string, args url.Values, out any) error {
	form := url.Values{
		"wstoken":            {c.token},
		"wsfunction":         {wsfunction},
		"moodlewsrestformat": {"json"},
	}
	for k, vs := range args {
		form[k] = vs
	}

	body, err := c.post(ctx, c.config.URL+restPath, form)
	if err != nil {
		return &TransientError{Op: wsfunction, Err: err}
	}

	if ex := decodeException(body); ex != nil {
		return &TransientError{Op: wsfunction, Err: ex}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &TransientError{Op: wsfunction, Err: fmt.Errorf("decode response: %w", err)}
	}

	return nil
}

func (c *Client) post(ctx context.Context, endpoint string, form url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	return body, nil
}

type wsException struct {
	Exception string `json:"exception"`
	ErrorCode string `json:"errorcode"`
	Message   string `json:"message"`
}

func (e *wsException) Error() string {
	return fmt.Sprintf("%s (%s): %s", e.Exception, e.ErrorCode, e.Message)
}

// decodeException returns the web service exception carried in body, if any.
// Array responses cannot carry one.
func decodeException(body []byte) *wsException {
	trimmed := strings.TrimSpace(string(body))
	if !strings.HasPrefix(trimmed, "{") {
		return nil
	}

	var ex wsException
	if err := json.Unmarshal(body, &ex); err != nil || ex.Exception == "" {
		return nil
	}
	return &ex
}
