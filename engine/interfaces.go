package engine

import (
	"context"
	"time"

	"communityxp/core"
)

// UserStore persists user profiles.
type UserStore interface {
	GetUser(ctx context.Context, id core.UserID) (core.User, error)
	FindUserByRocketID(ctx context.Context, rocketID string) (core.User, error)
	FindUserByUsername(ctx context.Context, username string) (core.User, error)
	SaveUser(ctx context.Context, user core.User) error
	ListRanking(ctx context.Context, filter core.RankingFilter) ([]core.User, error)
}

// InteractionStore persists normalized interactions.
type InteractionStore interface {
	CreateInteraction(ctx context.Context, i core.Interaction) (core.Interaction, error)
	// ListInteractions returns the user's interactions dated in [from, to).
	ListInteractions(ctx context.Context, user core.UserID, from, to time.Time) ([]core.Interaction, error)
}

// MessageStore persists chat messages keyed by platform message id.
type MessageStore interface {
	FindMessage(ctx context.Context, platformID string) (core.Message, error)
	// UpsertMessage inserts m unless a message with the same platform id exists.
	// created is false when the stored message was returned instead.
	UpsertMessage(ctx context.Context, m core.Message) (stored core.Message, created bool, err error)
	SaveMessage(ctx context.Context, m core.Message) error
}

// ScoreStore appends score audit entries.
type ScoreStore interface {
	CreateScore(ctx context.Context, s core.Score) (core.Score, error)
	ListScores(ctx context.Context, ref core.Ref) ([]core.Score, error)
}

// ReactionStore persists message reactions.
type ReactionStore interface {
	ListReactions(ctx context.Context, messageID string) ([]core.Reaction, error)
	CreateReaction(ctx context.Context, r core.Reaction) (core.Reaction, error)
	DeleteReaction(ctx context.Context, id string) error
}

// RankingStore answers the read-only aggregation views.
type RankingStore interface {
	// MonthlyScores sums interaction scores per user dated in [from, to), keeps positive sums,
	// drops core team members and users without a rocket id, and orders by score desc.
	MonthlyScores(ctx context.Context, from, to time.Time, skip, limit int) ([]core.LeaderboardEntry, error)
	MostActive(ctx context.Context, q core.ActiveQuery) ([]core.ActiveUser, error)
}

// Storage abstracts persistence for gamification state.
type Storage interface {
	UserStore
	InteractionStore
	MessageStore
	ScoreStore
	ReactionStore
	RankingStore
	Ping(ctx context.Context) error
}

// ModuleController is the capability every platform integration exposes.
type ModuleController interface {
	Origin() core.Origin
	Normalize(raw core.RawEvent) (core.Interaction, error)
	IsFlood(ctx context.Context, i core.Interaction) (bool, error)
	// DailyLimit returns the integration's own daily score limit, if it declares one.
	DailyLimit() (int64, bool)
}

// RuleEngine evaluates rules and emits derived events.
type RuleEngine interface {
	Evaluate(ctx context.Context, user core.User, trigger core.Event) []core.Event
}

// AchievementHandler reacts to a saved interaction.
type AchievementHandler interface {
	Handle(ctx context.Context, i core.Interaction, user *core.User) error
}

// AchievementFunc adapts a function to AchievementHandler.
type AchievementFunc func(ctx context.Context, i core.Interaction, user *core.User) error

func (f AchievementFunc) Handle(ctx context.Context, i core.Interaction, user *core.User) error {
	return f(ctx, i, user)
}

// RateCounter counts hits per key inside fixed windows.
type RateCounter interface {
	// Incr records a hit for key and returns the number of hits in the current window.
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// Notification is an operational report sent to a Notifier.
type Notification struct {
	Type    string `json:"type"`
	File    string `json:"file"`
	Resume  string `json:"resume"`
	Details any    `json:"details,omitempty"`
}

// Notifier receives fire-and-forget reports. Implementations must not panic or block for long.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}
