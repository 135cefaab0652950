package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mem "communityxp/adapters/memory"
	"communityxp/analytics"
	"communityxp/commands"
	"communityxp/core"
	"communityxp/engine"
	"communityxp/integrations/github"
	"communityxp/integrations/rocket"
	"communityxp/leaderboard"
	"communityxp/realtime"
)

var testNow = time.Date(2024, 5, 15, 10, 0, 0, 0, time.UTC)

type testEnv struct {
	store *mem.Store
	svc   *engine.Service
	deps  Deps
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := mem.New()
	settings := engine.DefaultSettings()
	settings.Now = func() time.Time { return testNow }
	svc := engine.NewService(store, engine.NewEventBus(engine.DispatchSync), engine.DefaultRuleEngine(), settings)
	t.Cleanup(svc.Close)
	svc.RegisterController(github.NewController(github.DefaultRewards(), 0))
	svc.SetNotifier(engine.MultiNotifier{})

	registry := commands.NewRegistry()
	require.NoError(t, commands.RegisterDefaults(registry, store))
	messages := rocket.NewMessageHandler(store, svc, registry, rocket.DefaultRewards(), rocket.WithPublisher(svc), rocket.WithNotifier(engine.MultiNotifier{}))

	ctx := context.Background()
	for _, u := range []core.User{
		{ID: "alice", Username: "alice", RocketID: "r-alice", Level: 1},
		{ID: "bob", Username: "bob", RocketID: "r-bob", Level: 1},
	} {
		require.NoError(t, store.SaveUser(ctx, u))
	}
	return &testEnv{
		store: store,
		svc:   svc,
		deps: Deps{
			Service:  svc,
			Rankings: leaderboard.NewService(store, func() time.Time { return testNow }),
			Messages: messages,
			Hub:      realtime.NewHub(),
		},
	}
}

func do(t *testing.T, h http.Handler, method, target, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr *bytes.Reader
	if body != "" {
		rdr = bytes.NewReader([]byte(body))
	} else {
		rdr = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, rdr)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestPostInteractionScoresAndRanks(t *testing.T) {
	env := newTestEnv(t)
	h := NewMux(env.deps, Options{PathPrefix: "/api"})

	rec := do(t, h, http.MethodPost, "/api/interactions", `{"origin":"github","type":"pull_request","user":"alice","value":"org/repo#1"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var res struct {
		Scored      bool             `json:"scored"`
		Interaction core.Interaction `json:"interaction"`
		User        core.User        `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.Scored)
	assert.Equal(t, int64(5), res.Interaction.Score)
	assert.Equal(t, int64(5), res.User.Score)

	rec = do(t, h, http.MethodGet, "/api/rankings/monthly?date=2024-05-01", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var rows []core.LeaderboardEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, core.UserID("alice"), rows[0].UserID)
	assert.Equal(t, int64(5), rows[0].Score)

	rec = do(t, h, http.MethodGet, "/api/users/alice/position?date=2024-05", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user":"alice","position":1}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/rankings/monthly?date=2024-04-01", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestPostInteractionErrors(t *testing.T) {
	env := newTestEnv(t)
	h := NewMux(env.deps, Options{})

	rec := do(t, h, http.MethodPost, "/interactions", `{"origin":"nowhere","type":"message","user":"alice"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown_origin")

	rec = do(t, h, http.MethodPost, "/interactions", `{"origin":"github","type":"post","user":"alice"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_event")

	rec = do(t, h, http.MethodPost, "/interactions", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_body")
}

func TestPostChatMessage(t *testing.T) {
	env := newTestEnv(t)
	h := NewMux(env.deps, Options{})

	rec := do(t, h, http.MethodPost, "/rocket/messages", `{"_id":"m1","rid":"general","msg":"hello","u":{"_id":"r-bob","username":"bob"}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out struct {
		Kind rocket.OutcomeKind `json:"kind"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, rocket.OutcomeMessage, out.Kind)

	bob, err := env.svc.GetUser(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, rocket.DefaultRewards().MessageSend, bob.Score)

	rec = do(t, h, http.MethodPost, "/rocket/messages", `{"_id":"m2","rid":"general","msg":"!score","u":{"_id":"r-bob","username":"bob"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Hi bob")

	rec = do(t, h, http.MethodPost, "/rocket/messages", `{"rid":"general","msg":"no id"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetUser(t *testing.T) {
	env := newTestEnv(t)
	h := NewMux(env.deps, Options{PathPrefix: "/api/"})

	rec := do(t, h, http.MethodGet, "/api/users/alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var u core.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &u))
	assert.Equal(t, "alice", u.Username)

	rec = do(t, h, http.MethodGet, "/api/users/unknown", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/nothing-here", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRankingQueries(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	for i := 0; i < 6; i++ {
		_, err := env.store.CreateInteraction(ctx, core.Interaction{User: "bob", Channel: "general", Score: 1, Date: testNow.Add(-time.Duration(i) * time.Hour)})
		require.NoError(t, err)
	}
	require.NoError(t, env.store.SaveUser(ctx, core.User{ID: "bob", Username: "bob", RocketID: "r-bob", Score: 6, Level: 2}))
	h := NewMux(env.deps, Options{})

	rec := do(t, h, http.MethodGet, "/rankings/active?begin=2024-05-01&end=2024-05-31", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var active []core.ActiveUser
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &active))
	require.Len(t, active, 1)
	assert.Equal(t, int64(6), active[0].Count)

	rec = do(t, h, http.MethodGet, "/rankings/active?begin=2024-05-15&end=2024-05-15", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &active))
	require.Len(t, active, 1)
	assert.Equal(t, int64(6), active[0].Count)

	rec = do(t, h, http.MethodGet, "/rankings/active?begin=2024-05-01&end=2024-05-31&min=7", "")
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/rankings/active?begin=2024-06-01&end=2024-05-01", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/rankings/active?begin=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/rankings/all?core_team=false&limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var users []core.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &users))
	require.Len(t, users, 1)
	assert.Equal(t, core.UserID("bob"), users[0].ID)

	rec = do(t, h, http.MethodGet, "/rankings/monthly?page=-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	h := NewMux(env.deps, Options{})
	rec := do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestAPIKeyAuth(t *testing.T) {
	env := newTestEnv(t)
	h := NewMux(env.deps, Options{PathPrefix: "/api", APIKeys: []string{"secret"}, AllowCORSOrigin: "*"})

	rec := do(t, h, http.MethodGet, "/api/users/alice", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/users/alice", "", "Authorization", "Bearer secret")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = do(t, h, http.MethodOptions, "/api/users/alice", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t)
	h := NewMux(env.deps, Options{
		APIKeys:          []string{"k"},
		RateLimitEnabled: true,
		RateLimitRPM:     1,
		RateLimitBurst:   1,
	})

	rec := do(t, h, http.MethodGet, "/users/alice", "", "X-API-Key", "k")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, h, http.MethodGet, "/users/alice", "", "X-API-Key", "k")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestMetricsRoute(t *testing.T) {
	env := newTestEnv(t)
	env.deps.Metrics = analytics.NewMetrics("cxp")
	h := NewMux(env.deps, Options{})

	do(t, h, http.MethodGet, "/users/alice", "")
	rec := do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `path="GET /users/{id}"`), rec.Body.String())
}

func TestParseEndDate(t *testing.T) {
	end, err := parseEndDate("2024-05-15")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 15, 23, 59, 59, 999999999, time.UTC), end)

	end, err = parseEndDate("2024-02")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 29, 23, 59, 59, 999999999, time.UTC), end)

	end, err = parseEndDate("2024-05-15T08:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 15, 8, 0, 0, 0, time.UTC), end)

	end, err = parseEndDate("")
	require.NoError(t, err)
	assert.True(t, end.IsZero())

	_, err = parseEndDate("soon")
	assert.Error(t, err)
}
