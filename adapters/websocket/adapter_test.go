package websocket

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"communityxp/core"
	"communityxp/realtime"
)

func dial(t *testing.T, url string, hub *realtime.Hub) *gorillaws.Conn {
	t.Helper()
	conn, _, err := gorillaws.DefaultDialer.Dial("ws"+url[len("http"):], nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.Len() > 0 }, time.Second, 5*time.Millisecond)
	return conn
}

func TestHandlerStreamsEvents(t *testing.T) {
	hub := realtime.NewHub()
	server := httptest.NewServer(Handler(hub))
	defer server.Close()

	conn := dial(t, server.URL, hub)
	defer conn.Close()

	hub.Broadcast(context.Background(), core.NewScoreAwarded("alice", 5, 5))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var received core.Event
	require.NoError(t, json.Unmarshal(msg, &received))
	assert.Equal(t, core.UserID("alice"), received.UserID)
}

func TestHandlerFiltersByQuery(t *testing.T) {
	hub := realtime.NewHub()
	server := httptest.NewServer(Handler(hub))
	defer server.Close()

	conn := dial(t, server.URL+"?user=bob&types=level_up", hub)
	defer conn.Close()

	ctx := context.Background()
	hub.Broadcast(ctx, core.NewScoreAwarded("bob", 5, 5))
	hub.Broadcast(ctx, core.NewLevelUp("alice", 1, 2))
	hub.Broadcast(ctx, core.NewLevelUp("bob", 1, 2))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var received core.Event
	require.NoError(t, json.Unmarshal(msg, &received))
	assert.Equal(t, core.UserID("bob"), received.UserID)
	assert.Equal(t, core.EventLevelUp, received.Type)
}

func TestHandlerUnsubscribesOnClose(t *testing.T) {
	hub := realtime.NewHub()
	server := httptest.NewServer(Handler(hub))
	defer server.Close()

	conn := dial(t, server.URL, hub)
	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}
