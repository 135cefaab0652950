package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"communityxp/core"
	"communityxp/engine"
)

// Sink posts operational notifications and domain events to configured HTTP endpoints.
// Delivery is synchronous and best effort: failures are logged and never returned.
type Sink struct {
	client    *http.Client
	endpoints []string
	logger    *slog.Logger
}

// Option configures a Sink.
type Option func(*Sink)

// WithClient overrides the HTTP client (defaults to 2s timeout).
func WithClient(c *http.Client) Option {
	return func(s *Sink) {
		if c != nil {
			s.client = c
		}
	}
}

// WithLogger sets the logger used for delivery failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sink) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a webhook sink.
func New(endpoints []string, opts ...Option) *Sink {
	s := &Sink{
		client: &http.Client{Timeout: 2 * time.Second},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.endpoints = append([]string{}, endpoints...)
	return s
}

// Notify posts the notification JSON to all endpoints.
func (s *Sink) Notify(ctx context.Context, n engine.Notification) {
	if err, ok := n.Details.(error); ok {
		n.Details = err.Error()
	}
	s.post(ctx, "notification", n)
}

// OnEvent posts the event JSON to all endpoints.
func (s *Sink) OnEvent(ctx context.Context, e core.Event) {
	s.post(ctx, string(e.Type), e)
}

func (s *Sink) post(ctx context.Context, kind string, payload any) {
	if len(s.endpoints) == 0 {
		return
	}
	body, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("webhook payload not encodable", "kind", kind, "error", err)
		return
	}
	for _, ep := range s.endpoints {
		req, err := http.NewRequestWithContext(context.WithoutCancel(ctx), http.MethodPost, ep, bytes.NewReader(body))
		if err != nil {
			s.logger.Warn("webhook request invalid", "endpoint", ep, "error", err)
			continue
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := s.client.Do(req)
		if err != nil {
			s.logger.Warn("webhook delivery failed", "endpoint", ep, "kind", kind, "error", err)
			continue
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		if resp.StatusCode >= 300 {
			s.logger.Warn("webhook endpoint rejected payload", "endpoint", ep, "kind", kind, "status", resp.StatusCode)
		}
	}
}

var _ engine.Notifier = (*Sink)(nil)
