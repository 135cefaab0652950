package analytics

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"communityxp/core"
)

// Metrics exports gamification and HTTP counters to Prometheus. Label values are bounded:
// origins, categories and event types are closed sets, and HTTP paths are the registered routes.
type Metrics struct {
	registry *prometheus.Registry

	interactions *prometheus.CounterVec
	score        *prometheus.CounterVec
	levelUps     prometheus.Counter
	achievements *prometheus.CounterVec
	messages     prometheus.Counter
	reactions    *prometheus.CounterVec

	httpReqs     *prometheus.CounterVec
	httpLat      *prometheus.HistogramVec
	httpInflight prometheus.Gauge
}

// NewMetrics registers all collectors on a fresh registry under namespace.
func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		interactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interactions_total",
			Help:      "Interactions saved, by origin and category.",
		}, []string{"origin", "category"}),
		score: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "score_awarded_total",
			Help:      "Sum of positive score deltas credited to users.",
		}, []string{"origin"}),
		levelUps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "level_changes_total",
			Help:      "Number of user level changes.",
		}),
		achievements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "achievements_unlocked_total",
			Help:      "Achievements unlocked, by achievement.",
		}, []string{"achievement"}),
		messages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_messages_total",
			Help:      "Chat messages stored.",
		}),
		reactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_reactions_total",
			Help:      "Chat reaction changes, by direction.",
		}, []string{"change"}),
		httpReqs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),
		httpLat: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		httpInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_inflight",
			Help:      "Current number of in-flight HTTP requests.",
		}),
	}
	m.registry.MustRegister(
		m.interactions, m.score, m.levelUps, m.achievements, m.messages, m.reactions,
		m.httpReqs, m.httpLat, m.httpInflight,
	)
	return m
}

// Registry exposes the underlying registry for tests and custom collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) OnEvent(_ context.Context, e core.Event) {
	switch e.Type {
	case core.EventInteractionSaved:
		category, _ := e.Metadata["category"].(string)
		m.interactions.WithLabelValues(string(e.Origin), category).Inc()
	case core.EventScoreAwarded:
		if e.Delta > 0 {
			m.score.WithLabelValues(string(e.Origin)).Add(float64(e.Delta))
		}
	case core.EventLevelUp:
		m.levelUps.Inc()
	case core.EventAchievementUnlocked:
		m.achievements.WithLabelValues(e.Achievement).Inc()
	case core.EventMessageSaved:
		m.messages.Inc()
	case core.EventReactionAdded:
		m.reactions.WithLabelValues("added").Inc()
	case core.EventReactionRemoved:
		m.reactions.WithLabelValues("removed").Inc()
	}
}

// Middleware instruments requests. route maps a request to its registered pattern; when nil
// or empty the raw URL path is used.
func (m *Metrics) Middleware(route func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			m.httpInflight.Inc()
			defer m.httpInflight.Dec()

			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			path := ""
			if route != nil {
				path = route(r)
			}
			if path == "" {
				path = r.URL.Path
			}
			m.httpReqs.WithLabelValues(r.Method, path, strconv.Itoa(sw.status)).Inc()
			m.httpLat.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// Hijack supports WebSocket upgrades behind the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

var _ Hook = (*Metrics)(nil)
