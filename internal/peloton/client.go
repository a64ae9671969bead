// Package peloton provides minimal interactions with the Peloton REST API.
package peloton

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultBaseURL is the public API root.
const DefaultBaseURL = "https://api.onepeloton.com/"

// SessionCookieName is the cookie the API reads the session token from.
const SessionCookieName = "peloton_session_id"

// Session is the credential pair returned by a successful login.
type Session struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
}

// Client issues requests against the Peloton API. It never retries.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient constructs a client with the provided timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/") + "/",
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Login exchanges credentials for a session.
func (c *Client) Login(ctx context.Context, username, password string) (Session, error) {
	body, err := json.Marshal(map[string]string{
		"username_or_email": username,
		"password":          password,
	})
	if err != nil {
		return Session{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"auth/login", bytes.NewReader(body))
	if err != nil {
		return Session{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	data, err := c.do(req)
	if err != nil {
		return Session{}, err
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return Session{}, fmt.Errorf("decode login response: %w", err)
	}
	return session, nil
}

// Me fetches the authenticated user's profile.
func (c *Client) Me(ctx context.Context, sessionToken string) (json.RawMessage, error) {
	req, err := c.authenticated(ctx, sessionToken, "api/me", nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

// RecentWorkouts fetches the newest page of workouts joined with ride and instructor details.
func (c *Client) RecentWorkouts(ctx context.Context, sessionToken, userID string, limit int) (json.RawMessage, error) {
	query := url.Values{}
	query.Set("joins", "ride,ride.instructor")
	query.Set("limit", strconv.Itoa(limit))
	query.Set("sort_by", "-created")
	query.Set("page", "0")

	req, err := c.authenticated(ctx, sessionToken, "api/user/"+url.PathEscape(userID)+"/workouts", query)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

// CurrentChallenges fetches the challenges the user has joined.
func (c *Client) CurrentChallenges(ctx context.Context, sessionToken, userID string) (json.RawMessage, error) {
	query := url.Values{}
	query.Set("has_joined", "true")

	req, err := c.authenticated(ctx, sessionToken, "api/user/"+url.PathEscape(userID)+"/challenges/current", query)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

func (c *Client) authenticated(ctx context.Context, sessionToken, path string, query url.Values) (*http.Request, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cookie", SessionCookieName+"="+sessionToken+";")
	req.Header.Set("peloton-platform", "web")
	return req, nil
}

// do executes the request and returns the body of a 2xx response.
func (c *Client) do(req *http.Request) (json.RawMessage, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Op: req.Method + " " + req.URL.Path, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: req.Method + " " + req.URL.Path, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &UpstreamError{Status: resp.StatusCode, Body: data}
	}
	return json.RawMessage(data), nil
}
