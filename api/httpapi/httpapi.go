// Package httpapi exposes the scoring pipeline, rankings and live event stream over HTTP.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	wsadapter "communityxp/adapters/websocket"
	"communityxp/analytics"
	"communityxp/core"
	"communityxp/engine"
	"communityxp/integrations/rocket"
	"communityxp/leaderboard"
	"communityxp/realtime"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Options configures the HTTP API surface.
type Options struct {
	// PathPrefix, if set, is prepended to all routes (e.g., "/api").
	PathPrefix string
	// AllowCORSOrigin, if non-empty, enables basic CORS with the given origin (use "*" for any).
	AllowCORSOrigin string
	// APIKeys, if non-empty, enables static API key auth via Authorization: Bearer or X-API-Key.
	APIKeys []string
	// RateLimitEnabled toggles rate limiting.
	RateLimitEnabled bool
	// RateLimitRPM is the allowed requests per minute per client key.
	RateLimitRPM int
	// RateLimitBurst defines burst capacity.
	RateLimitBurst int
	// MetricsPath serves Prometheus metrics when Deps.Metrics is set. Defaults to /metrics.
	MetricsPath string
}

// Deps are the components behind the routes. Service and Rankings are required; the rest
// disable their routes when nil.
type Deps struct {
	Service  *engine.Service
	Rankings *leaderboard.Service
	Messages *rocket.MessageHandler
	Hub      *realtime.Hub
	Metrics  *analytics.Metrics
	Logger   *slog.Logger
}

type api struct {
	deps Deps
	log  *slog.Logger
}

// NewMux builds an http.Handler exposing the REST API and WebSocket stream.
// Routes:
//   - POST {prefix}/interactions
//   - POST {prefix}/rocket/messages
//   - GET  {prefix}/rankings/monthly?date=YYYY-MM-DD&page=&limit=
//   - GET  {prefix}/rankings/active?begin=&end=&channel=&min=
//   - GET  {prefix}/rankings/all?core_team=&limit=
//   - GET  {prefix}/users/{id}
//   - GET  {prefix}/users/{id}/position?date=
//   - GET  {prefix}/healthz
//   - WS   {prefix}/ws
func NewMux(deps Deps, opts Options) http.Handler {
	a := &api{deps: deps, log: deps.Logger}
	if a.log == nil {
		a.log = slog.Default()
	}
	p := func(method, path string) string { return method + " " + withPrefix(opts.PathPrefix, path) }

	mux := http.NewServeMux()
	mux.HandleFunc(p(http.MethodGet, "/healthz"), a.healthCheck)
	mux.HandleFunc(p(http.MethodPost, "/interactions"), a.postInteraction)
	if deps.Messages != nil {
		mux.HandleFunc(p(http.MethodPost, "/rocket/messages"), a.postChatMessage)
	}
	mux.HandleFunc(p(http.MethodGet, "/rankings/monthly"), a.monthlyRanking)
	mux.HandleFunc(p(http.MethodGet, "/rankings/active"), a.mostActive)
	mux.HandleFunc(p(http.MethodGet, "/rankings/all"), a.allRanking)
	mux.HandleFunc(p(http.MethodGet, "/users/{id}"), a.getUser)
	mux.HandleFunc(p(http.MethodGet, "/users/{id}/position"), a.userPosition)
	if deps.Hub != nil {
		mux.Handle(p(http.MethodGet, "/ws"), wsadapter.Handler(deps.Hub))
	}
	if deps.Metrics != nil {
		path := opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		mux.Handle("GET "+path, deps.Metrics.Handler())
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "route not found", nil)
	})

	var handler http.Handler = mux
	if deps.Metrics != nil {
		handler = deps.Metrics.Middleware(func(r *http.Request) string {
			_, pattern := mux.Handler(r)
			return pattern
		})(handler)
	}
	if opts.RateLimitEnabled && opts.RateLimitRPM > 0 && opts.RateLimitBurst > 0 {
		handler = withRateLimit(handler, opts.RateLimitRPM, opts.RateLimitBurst)
	}
	if len(opts.APIKeys) > 0 {
		handler = withAPIKeyAuth(handler, opts.APIKeys)
	}
	if opts.AllowCORSOrigin != "" {
		handler = withCORS(handler, opts.AllowCORSOrigin)
	}
	return handler
}

// healthCheck verifies the storage backend answers.
func (a *api) healthCheck(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"status": "healthy",
		"checks": map[string]any{"storage": "ok"},
	}
	code := http.StatusOK
	if err := a.deps.Service.Storage().Ping(r.Context()); err != nil {
		a.log.Warn("health check failed", "error", err)
		code = http.StatusServiceUnavailable
		status["status"] = "unhealthy"
		status["checks"] = map[string]any{"storage": "failed"}
	}
	writeJSONStatus(w, code, status)
}

func (a *api) postInteraction(w http.ResponseWriter, r *http.Request) {
	var raw core.RawEvent
	if !decodeBody(w, r, &raw) {
		return
	}
	res, err := a.deps.Service.Process(r.Context(), raw)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	body := map[string]any{
		"interaction": res.Interaction,
		"scored":      res.Scored,
		"user":        res.User,
		"save":        res.Save,
	}
	if res.Save.Err != nil {
		body["error"] = res.Save.Err.Error()
	}
	writeJSONStatus(w, http.StatusCreated, body)
}

func (a *api) postChatMessage(w http.ResponseWriter, r *http.Request) {
	var msg rocket.ChatMessage
	if !decodeBody(w, r, &msg) {
		return
	}
	out := a.deps.Messages.Handle(r.Context(), msg)
	if out.Kind == rocket.OutcomeFailed {
		a.writeServiceError(w, out.Err)
		return
	}
	writeJSON(w, out)
}

func (a *api) monthlyRanking(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	date, err := parseDate(q.Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", err.Error(), nil)
		return
	}
	page, err := parsePage(q.Get("page"), q.Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_page", err.Error(), nil)
		return
	}
	rows, err := a.deps.Rankings.Monthly(r.Context(), date, page)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, nonNil(rows))
}

func (a *api) mostActive(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	begin, err := parseDate(q.Get("begin"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_begin", err.Error(), nil)
		return
	}
	end, err := parseEndDate(q.Get("end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_end", err.Error(), nil)
		return
	}
	query := core.ActiveQuery{Begin: begin, End: end, Channel: q.Get("channel")}
	if raw := q.Get("min"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid_min", "min must be a non-negative integer", nil)
			return
		}
		query.MinCount = n
	}
	rows, err := a.deps.Rankings.MostActive(r.Context(), query)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, nonNil(rows))
}

func (a *api) allRanking(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := core.RankingFilter{}
	if raw := q.Get("core_team"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_core_team", "core_team must be a boolean", nil)
			return
		}
		filter.CoreTeam = v
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer", nil)
			return
		}
		filter.Limit = n
	}
	users, err := a.deps.Service.FindAllToRanking(r.Context(), filter)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, nonNil(users))
}

func (a *api) getUser(w http.ResponseWriter, r *http.Request) {
	user, err := core.NormalizeUserID(core.UserID(r.PathValue("id")))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_user", err.Error(), nil)
		return
	}
	u, err := a.deps.Service.GetUser(r.Context(), user)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, u)
}

func (a *api) userPosition(w http.ResponseWriter, r *http.Request) {
	user, err := core.NormalizeUserID(core.UserID(r.PathValue("id")))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_user", err.Error(), nil)
		return
	}
	date, err := parseDate(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", err.Error(), nil)
		return
	}
	pos, err := a.deps.Rankings.Position(r.Context(), user, date)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, map[string]any{"user": user, "position": pos})
}

func (a *api) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrInvalidEvent):
		writeError(w, http.StatusBadRequest, "invalid_event", err.Error(), nil)
	case errors.Is(err, engine.ErrUnknownOrigin):
		writeError(w, http.StatusBadRequest, "unknown_origin", err.Error(), nil)
	case errors.Is(err, engine.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "user_not_found", err.Error(), nil)
	case errors.Is(err, engine.ErrMessageNotFound):
		writeError(w, http.StatusNotFound, "message_not_found", err.Error(), nil)
	default:
		a.log.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error", nil)
	}
}

// Helpers

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error(), nil)
		return false
	}
	return true
}

// parseDate accepts RFC 3339, YYYY-MM-DD or YYYY-MM. Empty means the zero time.
func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly, "2006-01"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", raw)
}

// parseEndDate is parseDate for inclusive upper bounds: YYYY-MM-DD and YYYY-MM cover the
// whole day or month.
func parseEndDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	t, err := parseDate(raw)
	if err != nil || t.IsZero() {
		return t, err
	}
	switch len(raw) {
	case len(time.DateOnly):
		return t.AddDate(0, 0, 1).Add(-time.Nanosecond), nil
	case len("2006-01"):
		return t.AddDate(0, 1, 0).Add(-time.Nanosecond), nil
	}
	return t, nil
}

func parsePage(page, limit string) (core.Page, error) {
	var p core.Page
	if page != "" {
		n, err := strconv.Atoi(page)
		if err != nil || n < 0 {
			return p, errors.New("page must be a non-negative integer")
		}
		p.Page = &n
	}
	if limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n <= 0 {
			return p, errors.New("limit must be a positive integer")
		}
		p.Limit = &n
	}
	return p, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func withPrefix(prefix, path string) string {
	if prefix == "" || prefix == "/" {
		return path
	}
	return strings.TrimSuffix(prefix, "/") + path
}

func writeJSON(w http.ResponseWriter, v any) { writeJSONStatus(w, http.StatusOK, v) }

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, msg string, details any) {
	writeJSONStatus(w, status, apiError{Code: code, Message: msg, Details: details})
}

func extractAPIKey(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	return ""
}

// clientKey uses API key if present, otherwise remote IP.
func clientKey(r *http.Request) string {
	if key := extractAPIKey(r); key != "" {
		return key
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
