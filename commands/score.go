package commands

import (
	"context"
	"errors"
	"fmt"

	"communityxp/core"
	"communityxp/engine"
)

// ScorePattern matches "!score" and its Portuguese alias "!pontos".
const ScorePattern = `^!(score|pontos)\b`

const noScoreText = "Oops! You don't have any points yet."

// RegisterDefaults registers the built-in commands.
func RegisterDefaults(r *Registry, users engine.UserStore) error {
	return r.Register("score", ScorePattern, ScoreHandler(users))
}

// ScoreHandler replies with the caller's level, score and all-time ranking position.
func ScoreHandler(users engine.UserStore) Handler {
	return func(ctx context.Context, msg Message) (Response, error) {
		return CommandScore(ctx, users, msg.Username)
	}
}

// CommandScore builds the score reply for username. Users without a ranked position get a
// friendly "no points" reply instead of an error.
func CommandScore(ctx context.Context, users engine.UserStore, username string) (Response, error) {
	none := Response{Text: noScoreText}
	user, err := users.FindUserByUsername(ctx, username)
	if errors.Is(err, engine.ErrUserNotFound) {
		return none, nil
	}
	if err != nil {
		return Response{}, err
	}
	position, err := rankingPosition(ctx, users, user)
	if err != nil {
		return Response{}, err
	}
	if position == 0 {
		return none, nil
	}
	return Response{
		Text:        fmt.Sprintf("Hi %s, you are currently at level %d with %d XP", displayName(user), user.Level, user.Score),
		Attachments: []Attachment{{Text: fmt.Sprintf("And you are at position %d of the ranking", position)}},
	}, nil
}

// rankingPosition is the 1-based position of user among users of the same team group.
func rankingPosition(ctx context.Context, users engine.UserStore, user core.User) (int, error) {
	ranking, err := users.ListRanking(ctx, core.RankingFilter{CoreTeam: user.IsCoreTeam, Limit: core.MaxPageLimit})
	if err != nil {
		return 0, err
	}
	for i, u := range ranking {
		if u.ID == user.ID {
			return i + 1, nil
		}
	}
	return 0, nil
}

func displayName(u core.User) string {
	if u.Name != "" {
		return u.Name
	}
	return u.Username
}
