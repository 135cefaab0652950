package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mem "communityxp/adapters/memory"
	"communityxp/core"
	"communityxp/engine"
)

var clock = time.Date(2024, time.May, 15, 10, 0, 0, 0, time.UTC)

type fakeController struct {
	origin core.Origin
	score  int64
	flood  bool
	limit  int64
	err    error
}

func (f *fakeController) Origin() core.Origin { return f.origin }

func (f *fakeController) Normalize(raw core.RawEvent) (core.Interaction, error) {
	if f.err != nil {
		return core.Interaction{}, f.err
	}
	return core.Interaction{
		Origin:   f.origin,
		Type:     raw.Type,
		User:     raw.User,
		Channel:  raw.Channel,
		Category: core.CategoryNetwork,
		Action:   string(raw.Type),
		Score:    f.score,
	}, nil
}

func (f *fakeController) IsFlood(context.Context, core.Interaction) (bool, error) { return f.flood, nil }

func (f *fakeController) DailyLimit() (int64, bool) { return f.limit, f.limit > 0 }

type recordingNotifier struct {
	mu    sync.Mutex
	notes []engine.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n engine.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
}

func newService(t *testing.T, mutate func(*engine.Settings)) (*engine.Service, *mem.Store) {
	t.Helper()
	store := mem.New()
	settings := engine.DefaultSettings()
	settings.Now = func() time.Time { return clock }
	if mutate != nil {
		mutate(&settings)
	}
	svc := engine.NewService(store, engine.NewEventBus(engine.DispatchSync), engine.DefaultRuleEngine(), settings)
	t.Cleanup(svc.Close)
	return svc, store
}

func ptr[T any](v T) *T { return &v }

func TestNormalizeManual(t *testing.T) {
	svc, _ := newService(t, nil)
	i, err := svc.Normalize(core.RawEvent{Type: core.TypeManual, User: "u1", Username: "ana", Value: "v", Text: "bonus", Score: ptr(int64(7))}, nil)
	require.NoError(t, err)
	assert.Equal(t, core.OriginSystem, i.Origin)
	assert.Equal(t, "network", i.Channel)
	assert.Equal(t, core.CategoryNetwork, i.Category)
	assert.Equal(t, "manual", i.Action)
	assert.Equal(t, "bonus", i.Description)
	assert.Equal(t, int64(7), i.Score)
	assert.Equal(t, clock, i.Date)

	i, err = svc.Normalize(core.RawEvent{Type: core.TypeManual, User: "u1"}, nil)
	require.NoError(t, err)
	assert.Zero(t, i.Score)
}

func TestNormalizeInactivity(t *testing.T) {
	svc, _ := newService(t, nil)
	i, err := svc.Normalize(core.RawEvent{Type: core.TypeInactivity, User: "u1", Score: ptr(int64(-3))}, nil)
	require.NoError(t, err)
	assert.Equal(t, engine.SystemDescription, i.Description)
	assert.Equal(t, engine.InactivityChannel, i.Channel)
	assert.Equal(t, "inactivity", i.Action)
	assert.Equal(t, int64(-3), i.Score)

	i, err = svc.Normalize(core.RawEvent{Type: core.TypeInactivity, User: "u1"}, nil)
	require.NoError(t, err)
	assert.Equal(t, engine.InactivityChannel, i.Channel)
	assert.Zero(t, i.Score)
}

func TestNormalizeDelegatesToController(t *testing.T) {
	svc, _ := newService(t, nil)
	_, err := svc.Normalize(core.RawEvent{Type: core.TypeMessage, Origin: core.OriginRocket}, nil)
	assert.ErrorIs(t, err, engine.ErrUnknownOrigin)

	ctrl := &fakeController{origin: core.OriginRocket, score: 2}
	svc.RegisterController(ctrl)
	got, ok := svc.GetModuleController(core.OriginRocket)
	require.True(t, ok)
	i, err := svc.Normalize(core.RawEvent{Type: core.TypeMessage, User: "u"}, got)
	require.NoError(t, err)
	assert.Equal(t, int64(2), i.Score)
	assert.Equal(t, clock, i.Date)

	_, ok = svc.GetModuleController(core.OriginGitHub)
	assert.False(t, ok)
}

func TestHasScoreFloodAlwaysDenies(t *testing.T) {
	svc, _ := newService(t, nil)
	ctrl := &fakeController{origin: core.OriginRocket, flood: true}
	ok, err := svc.HasScore(context.Background(), ctrl, core.Interaction{User: "u"})
	require.NoError(t, err)
	assert.False(t, ok)

	ctrl.flood = false
	ok, err = svc.HasScore(context.Background(), ctrl, core.Interaction{User: "u"})
	require.NoError(t, err)
	assert.True(t, ok)

	flood, err := svc.IsFlood(context.Background(), nil, core.Interaction{})
	require.NoError(t, err)
	assert.False(t, flood)
}

func TestIsOnDailyLimit(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name      string
		today     int64
		allowZero bool
		want      bool
	}{
		{"remaining positive", 9, false, true},
		{"remaining zero strict", 10, false, false},
		{"remaining zero allowed", 10, true, true},
		{"remaining negative", 12, true, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, store := newService(t, func(s *engine.Settings) { s.AllowZeroRemaining = tc.allowZero })
			_, err := store.CreateInteraction(ctx, core.Interaction{User: "u", Score: tc.today, Date: clock.Add(-time.Hour)})
			require.NoError(t, err)
			_, err = store.CreateInteraction(ctx, core.Interaction{User: "u", Score: 100, Date: clock.AddDate(0, 0, -1)})
			require.NoError(t, err)

			ok, err := svc.IsOnDailyLimit(ctx, &fakeController{limit: 10}, core.Interaction{User: "u"})
			require.NoError(t, err)
			assert.Equal(t, tc.want, ok)
		})
	}
}

func TestDailyLimitFallsBackToSettings(t *testing.T) {
	svc, _ := newService(t, func(s *engine.Settings) { s.DailyLimit = 33 })
	assert.Equal(t, int64(33), svc.DailyLimit(nil))
	assert.Equal(t, int64(33), svc.DailyLimit(&fakeController{}))
	assert.Equal(t, int64(4), svc.DailyLimit(&fakeController{limit: 4}))
}

func TestUpdateScoreNilUser(t *testing.T) {
	svc, store := newService(t, nil)
	u, err := svc.UpdateScore(context.Background(), nil, 10)
	require.NoError(t, err)
	assert.Nil(t, u)
	users, err := store.ListRanking(context.Background(), core.RankingFilter{})
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestUpdateScoreLevelEvents(t *testing.T) {
	svc, store := newService(t, nil)
	ctx := context.Background()
	var levelUps []core.Event
	svc.Subscribe(core.EventLevelUp, func(_ context.Context, e core.Event) { levelUps = append(levelUps, e) })

	user := &core.User{ID: "u", Level: 1}
	_, err := svc.UpdateScore(ctx, user, 4)
	require.NoError(t, err)
	assert.Empty(t, levelUps)
	assert.Equal(t, int64(1), user.Level)

	_, err = svc.UpdateScore(ctx, user, 1)
	require.NoError(t, err)
	require.Len(t, levelUps, 1)
	assert.Equal(t, int64(1), levelUps[0].PreviousLevel)
	assert.Equal(t, int64(2), levelUps[0].Level)
	assert.Equal(t, int64(1), user.PreviousLevel)

	stored, err := store.GetUser(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, int64(5), stored.Score)
	assert.Equal(t, int64(2), stored.Level)
}

func TestUpdateScoreFreshUserHasNoLevelUp(t *testing.T) {
	svc, store := newService(t, nil)
	ctx := context.Background()
	var levelUps []core.Event
	svc.Subscribe(core.EventLevelUp, func(_ context.Context, e core.Event) { levelUps = append(levelUps, e) })

	require.NoError(t, store.SaveUser(ctx, core.User{ID: "fresh"}))
	require.NoError(t, svc.Award(ctx, "fresh", 1, "first", core.MessageRef("m1")))
	assert.Empty(t, levelUps)

	stored, err := store.GetUser(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Score)
	assert.Equal(t, int64(1), stored.Level)

	_, err = svc.UpdateScore(ctx, &core.User{ID: "unsaved"}, 1)
	require.NoError(t, err)
	assert.Empty(t, levelUps)
}

func TestAwardUnknownUserKeepsAuditOnly(t *testing.T) {
	svc, store := newService(t, nil)
	ctx := context.Background()
	require.NoError(t, svc.Award(ctx, "ghost", 5, "reply", core.MessageRef("m1")))

	scores, err := store.ListScores(ctx, core.MessageRef("m1"))
	require.NoError(t, err)
	require.Len(t, scores, 1)
	_, err = store.GetUser(ctx, "ghost")
	assert.ErrorIs(t, err, engine.ErrUserNotFound)
}

func TestUpdatePro(t *testing.T) {
	svc, store := newService(t, nil)
	ctx := context.Background()

	user := &core.User{ID: "u", Level: 4}
	require.NoError(t, svc.UpdatePro(ctx, user))
	assert.False(t, user.Pro)

	user.Level = 5
	require.NoError(t, svc.UpdatePro(ctx, user))
	assert.True(t, user.Pro)
	require.NotNil(t, user.ProBeginAt)
	assert.Equal(t, clock, *user.ProBeginAt)

	stored, err := store.GetUser(ctx, "u")
	require.NoError(t, err)
	assert.True(t, stored.Pro)

	member := &core.User{ID: "c", IsCoreTeam: true, Level: 1}
	require.NoError(t, svc.UpdatePro(ctx, member))
	assert.True(t, member.Pro)
}

func TestOnSaveInteractionPartialFailure(t *testing.T) {
	svc, store := newService(t, nil)
	ctx := context.Background()
	boom := errors.New("boom")
	temporaryRan := false
	svc.AddAchievementHandler(engine.AchievementFunc(func(context.Context, core.Interaction, *core.User) error { return boom }))
	svc.AddTemporaryAchievementHandler(engine.AchievementFunc(func(context.Context, core.Interaction, *core.User) error {
		temporaryRan = true
		return nil
	}))

	user := &core.User{ID: "u", Level: 1}
	require.NoError(t, store.SaveUser(ctx, *user))
	res := svc.OnSaveInteraction(ctx, core.Interaction{ID: "i1", User: "u", Score: 3}, user)

	assert.False(t, res.OK())
	assert.Equal(t, []engine.SaveStep{engine.StepPro, engine.StepScore}, res.Completed)
	assert.Equal(t, engine.StepAchievements, res.Failed)
	assert.ErrorIs(t, res.Err, boom)
	assert.False(t, temporaryRan)

	stored, err := store.GetUser(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, int64(3), stored.Score)
	scores, err := store.ListScores(ctx, core.InteractionRef("i1"))
	require.NoError(t, err)
	assert.Len(t, scores, 1)
}

func TestOnSaveInteractionAllSteps(t *testing.T) {
	svc, store := newService(t, nil)
	ctx := context.Background()
	user := &core.User{ID: "u", Level: 1}
	require.NoError(t, store.SaveUser(ctx, *user))

	res := svc.OnSaveInteraction(ctx, core.Interaction{ID: "i1", User: "u"}, user)
	assert.True(t, res.OK())
	assert.Len(t, res.Completed, 4)

	scores, err := store.ListScores(ctx, core.InteractionRef("i1"))
	require.NoError(t, err)
	assert.Empty(t, scores)
}

func TestProcessScoresKnownUser(t *testing.T) {
	svc, store := newService(t, nil)
	ctx := context.Background()
	svc.RegisterController(&fakeController{origin: core.OriginRocket, score: 2})
	require.NoError(t, store.SaveUser(ctx, core.User{ID: "u", Level: 1}))
	var saved []core.Event
	svc.Subscribe(core.EventInteractionSaved, func(_ context.Context, e core.Event) { saved = append(saved, e) })

	res, err := svc.Process(ctx, core.RawEvent{Origin: core.OriginRocket, Type: core.TypeMessage, User: "u", Channel: "general"})
	require.NoError(t, err)
	assert.True(t, res.Scored)
	assert.True(t, res.Save.OK())
	assert.NotEmpty(t, res.Interaction.ID)
	assert.Equal(t, int64(2), res.User.Score)
	assert.Len(t, saved, 1)
}

func TestProcessGateZeroesScore(t *testing.T) {
	svc, store := newService(t, nil)
	ctx := context.Background()
	svc.RegisterController(&fakeController{origin: core.OriginRocket, score: 2, flood: true})
	require.NoError(t, store.SaveUser(ctx, core.User{ID: "u", Level: 1}))

	res, err := svc.Process(ctx, core.RawEvent{Origin: core.OriginRocket, Type: core.TypeMessage, User: "u"})
	require.NoError(t, err)
	assert.False(t, res.Scored)
	assert.Zero(t, res.Interaction.Score)

	stored, err := store.GetUser(ctx, "u")
	require.NoError(t, err)
	assert.Zero(t, stored.Score)
	from, to := core.DayRange(clock)
	list, err := store.ListInteractions(ctx, "u", from, to)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestProcessSystemBypassesGate(t *testing.T) {
	svc, store := newService(t, func(s *engine.Settings) { s.DailyLimit = 1 })
	ctx := context.Background()
	require.NoError(t, store.SaveUser(ctx, core.User{ID: "u", Level: 1}))

	for i := 0; i < 2; i++ {
		res, err := svc.Process(ctx, core.RawEvent{Type: core.TypeManual, User: "u", Score: ptr(int64(10))})
		require.NoError(t, err)
		assert.True(t, res.Scored)
	}
	stored, err := store.GetUser(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, int64(20), stored.Score)
}

func TestProcessUnknownUserNotifies(t *testing.T) {
	svc, store := newService(t, nil)
	ctx := context.Background()
	notes := &recordingNotifier{}
	svc.SetNotifier(notes)
	svc.RegisterController(&fakeController{origin: core.OriginRocket, score: 1})

	res, err := svc.Process(ctx, core.RawEvent{Origin: core.OriginRocket, Type: core.TypeMessage, User: "ghost"})
	require.NoError(t, err)
	assert.Nil(t, res.User)
	require.Len(t, notes.notes, 1)
	assert.Equal(t, "Unable to find user.", notes.notes[0].Resume)

	from, to := core.DayRange(clock)
	list, err := store.ListInteractions(ctx, "ghost", from, to)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestProcessErrors(t *testing.T) {
	svc, _ := newService(t, nil)
	ctx := context.Background()

	_, err := svc.Process(ctx, core.RawEvent{Origin: core.OriginBlog, Type: core.TypePost, User: "u"})
	assert.ErrorIs(t, err, engine.ErrUnknownOrigin)

	_, err = svc.Process(ctx, core.RawEvent{Type: core.TypeManual, User: "  "})
	assert.ErrorIs(t, err, engine.ErrInvalidEvent)

	bad := errors.New("bad payload")
	svc.RegisterController(&fakeController{origin: core.OriginGitHub, err: bad})
	_, err = svc.Process(ctx, core.RawEvent{Origin: core.OriginGitHub, Type: core.TypePush, User: "u"})
	assert.ErrorIs(t, err, bad)
}

func TestAward(t *testing.T) {
	svc, store := newService(t, nil)
	ctx := context.Background()
	require.NoError(t, store.SaveUser(ctx, core.User{ID: "u", Level: 1}))

	require.NoError(t, svc.Award(ctx, "u", 3, "message", core.MessageRef("m1")))
	require.NoError(t, svc.Award(ctx, "ghost", 3, "message", core.MessageRef("m1")))
	assert.Error(t, svc.Award(ctx, "u", 3, "message", core.Ref{}))

	stored, err := store.GetUser(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, int64(3), stored.Score)
	scores, err := store.ListScores(ctx, core.MessageRef("m1"))
	require.NoError(t, err)
	assert.Len(t, scores, 2)
}

func TestFindAllToRankingAndCoreTeam(t *testing.T) {
	svc, store := newService(t, nil)
	ctx := context.Background()
	require.NoError(t, store.SaveUser(ctx, core.User{ID: "a", RocketID: "ra", Score: 5}))
	require.NoError(t, store.SaveUser(ctx, core.User{ID: "b", RocketID: "rb", Score: 9, IsCoreTeam: true}))

	users, err := svc.FindAllToRanking(ctx, core.RankingFilter{})
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, core.UserID("a"), users[0].ID)

	isCore, err := svc.IsCoreTeam(ctx, "rb")
	require.NoError(t, err)
	assert.True(t, isCore)
	_, err = svc.IsCoreTeam(ctx, "nobody")
	assert.ErrorIs(t, err, engine.ErrUserNotFound)
}
