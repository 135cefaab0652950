package rocket_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"communityxp/adapters/memory"
	"communityxp/commands"
	"communityxp/core"
	"communityxp/engine"
	"communityxp/integrations/rocket"
)

type recordingNotifier struct {
	mu    sync.Mutex
	notes []engine.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n engine.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
}

type fixture struct {
	store    *memory.Store
	svc      *engine.Service
	handler  *rocket.MessageHandler
	notifier *recordingNotifier
	rewards  rocket.Rewards
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	settings := engine.DefaultSettings()
	settings.Now = func() time.Time { return time.Date(2024, 5, 15, 10, 0, 0, 0, time.UTC) }
	svc := engine.NewService(store, engine.NewEventBus(engine.DispatchSync), engine.DefaultRuleEngine(), settings)
	t.Cleanup(svc.Close)

	registry := commands.NewRegistry()
	require.NoError(t, commands.RegisterDefaults(registry, store))
	notifier := &recordingNotifier{}
	rewards := rocket.DefaultRewards()
	h := rocket.NewMessageHandler(store, svc, registry, rewards, rocket.WithNotifier(notifier), rocket.WithPublisher(svc))

	for _, u := range []core.User{
		{ID: "ana", Username: "ana", RocketID: "r-ana", Level: 1},
		{ID: "bob", Username: "bob", RocketID: "r-bob", Level: 1},
	} {
		require.NoError(t, store.SaveUser(ctx, u))
	}
	return &fixture{store: store, svc: svc, handler: h, notifier: notifier, rewards: rewards}
}

func (f *fixture) score(t *testing.T, id core.UserID) int64 {
	t.Helper()
	u, err := f.store.GetUser(context.Background(), id)
	require.NoError(t, err)
	return u.Score
}

func chat(id, sender, username, text string) rocket.ChatMessage {
	return rocket.ChatMessage{ID: id, RoomID: "general", Text: text, User: rocket.Sender{ID: sender, Username: username}}
}

func TestNewMessageScoresOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	msg := chat("m1", "r-ana", "ana", "hello")

	out := f.handler.Handle(ctx, msg)
	require.NoError(t, out.Err)
	assert.Equal(t, rocket.OutcomeMessage, out.Kind)
	assert.Equal(t, f.rewards.MessageSend, f.score(t, "ana"))

	again := f.handler.Handle(ctx, msg)
	assert.Equal(t, rocket.OutcomeIgnored, again.Kind)
	assert.Equal(t, f.rewards.MessageSend, f.score(t, "ana"))

	scores, err := f.store.ListScores(ctx, core.MessageRef(out.Message.ID))
	require.NoError(t, err)
	assert.Len(t, scores, 1)
}

func TestThreadReply(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	parent := f.handler.Handle(ctx, chat("m1", "r-ana", "ana", "question"))
	require.Equal(t, rocket.OutcomeMessage, parent.Kind)

	reply := chat("m2", "r-bob", "bob", "answer")
	reply.ThreadID = "m1"
	out := f.handler.Handle(ctx, reply)
	require.NoError(t, out.Err)
	assert.Equal(t, rocket.OutcomeReply, out.Kind)
	assert.Equal(t, parent.Message.ID, out.Message.Parent)
	assert.Equal(t, "m1", out.Message.Platform.Parent)

	stored, err := f.store.FindMessage(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, stored.Is.Thread)

	assert.Equal(t, f.rewards.ThreadSend, f.score(t, "bob"))
	assert.Equal(t, f.rewards.MessageSend+f.rewards.ThreadReceive, f.score(t, "ana"))

	sent, err := f.store.ListScores(ctx, core.MessageRef(out.Message.ID))
	require.NoError(t, err)
	assert.Len(t, sent, 1)
	received, err := f.store.ListScores(ctx, core.MessageRef(parent.Message.ID))
	require.NoError(t, err)
	assert.Len(t, received, 2)
}

func TestReplyWithMissingParentIsTopLevel(t *testing.T) {
	f := newFixture(t)
	reply := chat("m2", "r-bob", "bob", "orphan")
	reply.ThreadID = "gone"

	out := f.handler.Handle(context.Background(), reply)
	require.NoError(t, out.Err)
	assert.Equal(t, rocket.OutcomeMessage, out.Kind)
	assert.Equal(t, f.rewards.MessageSend, f.score(t, "bob"))
}

func TestReactionAddAndRemove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	msg := chat("m1", "r-ana", "ana", "nice")
	first := f.handler.Handle(ctx, msg)
	require.Equal(t, rocket.OutcomeMessage, first.Kind)

	msg.Reactions = map[string]rocket.ReactionUsers{":x:": {Usernames: []string{"bob"}}}
	out := f.handler.Handle(ctx, msg)
	require.NoError(t, out.Err)
	assert.Equal(t, rocket.OutcomeReactions, out.Kind)
	require.Len(t, out.Added, 1)
	assert.Equal(t, "bob", out.Added[0].Username)
	assert.Equal(t, ":x:", out.Added[0].Content)
	assert.Equal(t, core.UserID("bob"), out.Added[0].User)

	list, err := f.store.ListReactions(ctx, first.Message.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	afterAdd := f.score(t, "ana")
	assert.Equal(t, f.rewards.MessageSend+f.rewards.ReactionReceive, afterAdd)

	assert.Equal(t, rocket.OutcomeIgnored, f.handler.Handle(ctx, msg).Kind)

	msg.Reactions = nil
	out = f.handler.Handle(ctx, msg)
	require.NoError(t, out.Err)
	require.Len(t, out.Removed, 1)
	list, err = f.store.ListReactions(ctx, first.Message.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Equal(t, afterAdd, f.score(t, "ana"))
}

func TestSelfReactionEarnsNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	msg := chat("m1", "r-ana", "ana", "me")
	f.handler.Handle(ctx, msg)

	msg.Reactions = map[string]rocket.ReactionUsers{":tada:": {Usernames: []string{"ana"}}}
	out := f.handler.Handle(ctx, msg)
	require.Len(t, out.Added, 1)
	assert.Equal(t, f.rewards.MessageSend, f.score(t, "ana"))
}

func TestCommandMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.handler.Handle(ctx, chat("m1", "r-ana", "ana", "hello"))

	out := f.handler.Handle(ctx, chat("m2", "r-ana", "ana", "!score"))
	require.NoError(t, out.Err)
	assert.Equal(t, rocket.OutcomeCommand, out.Kind)
	require.NotNil(t, out.Response)
	assert.Contains(t, out.Response.Text, "level 1")
	assert.True(t, out.Message.Is.Command)
	assert.Equal(t, f.rewards.MessageSend, f.score(t, "ana"))

	scores, err := f.store.ListScores(ctx, core.MessageRef(out.Message.ID))
	require.NoError(t, err)
	assert.Empty(t, scores)
}

func TestUnownedMessageNotifies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	out := f.handler.Handle(ctx, chat("m9", "r-ghost", "ghost", "who am i"))
	require.NoError(t, out.Err)
	assert.Equal(t, rocket.OutcomeUnowned, out.Kind)
	assert.Empty(t, out.Message.User)
	require.Len(t, f.notifier.notes, 1)
	assert.Equal(t, "Unable to find user.", f.notifier.notes[0].Resume)

	stored, err := f.store.FindMessage(ctx, "m9")
	require.NoError(t, err)
	assert.Equal(t, "who am i", stored.Content)
}

func TestHandleSwallowsErrors(t *testing.T) {
	f := newFixture(t)

	out := f.handler.Handle(context.Background(), rocket.ChatMessage{Text: "no id"})
	assert.Equal(t, rocket.OutcomeFailed, out.Kind)
	assert.ErrorIs(t, out.Err, engine.ErrInvalidEvent)
	require.Len(t, f.notifier.notes, 1)
	assert.Equal(t, "error", f.notifier.notes[0].Type)
}
