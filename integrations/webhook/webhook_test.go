package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"communityxp/core"
	"communityxp/engine"
)

func TestSink_OnEventPostsToEndpoints(t *testing.T) {
	var hits int32
	var got core.Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	sink := New([]string{srv.URL, srv.URL})
	sink.OnEvent(context.Background(), core.NewLevelUp("u1", 1, 2))

	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
	assert.Equal(t, core.EventLevelUp, got.Type)
	assert.Equal(t, int64(2), got.Level)
}

func TestSink_NotifyStringifiesErrors(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	New([]string{srv.URL}).Notify(context.Background(), engine.Notification{
		Type: "error", File: "rocket.Handle", Resume: "boom", Details: errors.New("db down"),
	})

	assert.Equal(t, "error", got["type"])
	assert.Equal(t, "db down", got["details"])
}

func TestSink_FailuresAreSwallowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	url := srv.URL
	srv.Close()

	sink := New([]string{url, "://bad"})
	assert.NotPanics(t, func() {
		sink.Notify(context.Background(), engine.Notification{Resume: "x"})
	})
	New(nil).OnEvent(context.Background(), core.NewLevelUp("u", 1, 2))
}
