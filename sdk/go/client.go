// Package sdk is a typed Go client for the communityxp HTTP and WebSocket API.
package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"communityxp/core"
)

// Option configures the Client.
type Option func(*Client)

// Client provides typed access to the communityxp HTTP + WebSocket API.
type Client struct {
	baseURL    string
	wsURL      string
	httpClient *http.Client
	headers    http.Header
}

// NewClient constructs a new SDK client targeting the given baseURL (e.g., http://localhost:8080/api).
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("baseURL is required")
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	c := &Client{
		baseURL:    baseURL,
		wsURL:      deriveWSURL(baseURL),
		httpClient: http.DefaultClient,
		headers:    make(http.Header),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithAuthToken adds an Authorization: Bearer token header to all requests (HTTP + WS).
func WithAuthToken(token string) Option {
	return func(c *Client) {
		if strings.TrimSpace(token) != "" {
			c.headers.Set("Authorization", "Bearer "+token)
		}
	}
}

// WithAPIKey adds an X-API-Key header.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		if strings.TrimSpace(key) != "" {
			c.headers.Set("X-API-Key", key)
		}
	}
}

// WithHeader sets an arbitrary header applied to HTTP and WS calls.
func WithHeader(k, v string) Option {
	return func(c *Client) {
		if k != "" {
			c.headers.Set(k, v)
		}
	}
}

// SendInteraction submits a raw event to the scoring pipeline.
func (c *Client) SendInteraction(ctx context.Context, ev core.RawEvent) (InteractionResult, error) {
	if strings.TrimSpace(string(ev.User)) == "" {
		return InteractionResult{}, ErrEmptyUserID
	}
	var out InteractionResult
	err := c.do(ctx, http.MethodPost, "/interactions", nil, ev, &out)
	return out, err
}

// SendChatMessage delivers a chat message (new, edited or with changed reactions).
// msg must marshal to the chat platform payload, e.g. rocket.ChatMessage.
func (c *Client) SendChatMessage(ctx context.Context, msg any) (ChatResult, error) {
	var out ChatResult
	err := c.do(ctx, http.MethodPost, "/rocket/messages", nil, msg, &out)
	return out, err
}

// MonthlyRanking fetches the leaderboard of the month containing date. A zero date means the
// current month; page and limit are ignored when negative or zero respectively.
func (c *Client) MonthlyRanking(ctx context.Context, date time.Time, page, limit int) ([]core.LeaderboardEntry, error) {
	q := url.Values{}
	if !date.IsZero() {
		q.Set("date", date.Format(time.DateOnly))
	}
	if page >= 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var rows []core.LeaderboardEntry
	err := c.do(ctx, http.MethodGet, "/rankings/monthly", q, nil, &rows)
	return rows, err
}

// MostActive fetches per-channel interaction counts inside [begin, end].
func (c *Client) MostActive(ctx context.Context, begin, end time.Time, channel string, minCount int) ([]core.ActiveUser, error) {
	q := url.Values{}
	if !begin.IsZero() {
		q.Set("begin", begin.Format(time.RFC3339))
	}
	if !end.IsZero() {
		q.Set("end", end.Format(time.RFC3339))
	}
	if channel != "" {
		q.Set("channel", channel)
	}
	if minCount > 0 {
		q.Set("min", strconv.Itoa(minCount))
	}
	var rows []core.ActiveUser
	err := c.do(ctx, http.MethodGet, "/rankings/active", q, nil, &rows)
	return rows, err
}

// Position returns the 1-based monthly ranking position of a user, or 0 when unranked.
func (c *Client) Position(ctx context.Context, userID string, date time.Time) (int, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, ErrEmptyUserID
	}
	q := url.Values{}
	if !date.IsZero() {
		q.Set("date", date.Format(time.DateOnly))
	}
	var body struct {
		Position int `json:"position"`
	}
	err := c.do(ctx, http.MethodGet, "/users/"+url.PathEscape(userID)+"/position", q, nil, &body)
	return body.Position, err
}

// GetUser fetches a community member.
func (c *Client) GetUser(ctx context.Context, userID string) (core.User, error) {
	if strings.TrimSpace(userID) == "" {
		return core.User{}, ErrEmptyUserID
	}
	var u core.User
	err := c.do(ctx, http.MethodGet, "/users/"+url.PathEscape(userID), nil, nil, &u)
	return u, err
}

// Health probes /healthz and returns status + storage check.
func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/healthz", nil, nil)
	if err != nil {
		return HealthStatus{}, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return HealthStatus{}, err
	}
	defer resp.Body.Close()

	// An unhealthy server still answers with a status body.
	var hs HealthStatus
	if err := json.NewDecoder(resp.Body).Decode(&hs); err != nil {
		return HealthStatus{}, fmt.Errorf("decode health: %w", err)
	}
	return hs, nil
}

// SubscribeEvents connects to the WebSocket stream and emits core.Event values. A non-empty
// userID narrows the stream to that user. The returned channel closes when ctx is done or the
// connection drops.
func (c *Client) SubscribeEvents(ctx context.Context, userID string) (<-chan core.Event, error) {
	if c.wsURL == "" {
		return nil, errors.New("wsURL is not set; ensure baseURL is http/https")
	}
	target := c.wsURL
	if userID != "" {
		target += "?user=" + url.QueryEscape(userID)
	}
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, target, c.headers)
	if err != nil {
		return nil, err
	}

	out := make(chan core.Event, 32)
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()
	go func() {
		defer close(out)
		defer conn.Close()
		for {
			var evt core.Event
			if err := conn.ReadJSON(&evt); err != nil {
				return
			}
			select {
			case out <- evt:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, body, target any) error {
	req, err := c.newRequest(ctx, method, path, q, body)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeJSON(resp, target)
}

func (c *Client) newRequest(ctx context.Context, method, path string, q url.Values, body any) (*http.Request, error) {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	var buf *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		buf = bytes.NewReader(b)
	}
	var req *http.Request
	var err error
	if buf != nil {
		req, err = http.NewRequestWithContext(ctx, method, u, buf)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, u, nil)
	}
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.applyHeaders(req)
	return req, nil
}

func (c *Client) applyHeaders(r *http.Request) {
	for k, vals := range c.headers {
		for _, v := range vals {
			r.Header.Add(k, v)
		}
	}
}

func deriveWSURL(httpBase string) string {
	u, err := url.Parse(httpBase)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		return ""
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String()
}
