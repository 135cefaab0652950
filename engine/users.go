package engine

import (
	"context"
	"errors"
	"fmt"

	"communityxp/core"
)

// UpdateScore adds delta to the user's score, recomputes the level and persists the user.
// A level change is evaluated by the rule engine and the derived events are published.
// A nil user is a no-op.
func (s *Service) UpdateScore(ctx context.Context, user *core.User, delta int64) (*core.User, error) {
	if user == nil {
		return nil, nil
	}
	if user.Level < 1 {
		user.Level = s.settings.Levels.Level(user.Score)
	}
	next, err := core.AddSafe(user.Score, delta)
	if err != nil {
		return nil, err
	}
	user.Score = next
	user.PreviousLevel = user.Level
	user.Level = s.settings.Levels.Level(user.Score)
	user.UpdatedAt = s.settings.Now().UTC()

	if err := s.storage.SaveUser(ctx, *user); err != nil {
		return nil, fmt.Errorf("save user %s: %w", user.ID, err)
	}

	trigger := core.NewScoreAwarded(user.ID, delta, user.Score)
	s.bus.Publish(ctx, trigger)
	if user.Level != user.PreviousLevel {
		s.onChangeLevel(ctx, *user, trigger)
	}
	return user, nil
}

func (s *Service) onChangeLevel(ctx context.Context, user core.User, trigger core.Event) {
	s.settings.Logger.Info("user level changed",
		"user", user.ID, "previous_level", user.PreviousLevel, "level", user.Level)
	for _, ev := range s.rules.Evaluate(ctx, user, trigger) {
		s.bus.Publish(ctx, ev)
	}
}

// UpdatePro marks the user pro when they are core team or reached the configured pro level.
func (s *Service) UpdatePro(ctx context.Context, user *core.User) error {
	if user == nil {
		return nil
	}
	pro := user.IsCoreTeam || (s.settings.ProLevel > 0 && user.Level >= s.settings.ProLevel)
	if pro == user.Pro {
		return nil
	}
	user.Pro = pro
	if pro && user.ProBeginAt == nil {
		now := s.settings.Now().UTC()
		user.ProBeginAt = &now
	}
	if err := s.storage.SaveUser(ctx, *user); err != nil {
		return fmt.Errorf("save pro status of %s: %w", user.ID, err)
	}
	return nil
}

// Award appends a Score entry for ref and credits value to the owning user.
// An unknown user still gets the audit entry but no user score is credited.
func (s *Service) Award(ctx context.Context, userID core.UserID, value int64, description string, ref core.Ref) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	if _, err := s.storage.CreateScore(ctx, core.Score{
		Value:       value,
		Description: description,
		Ref:         ref,
		User:        userID,
		Date:        s.settings.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("create score: %w", err)
	}
	if value == 0 || userID == "" {
		return nil
	}
	user, err := s.storage.GetUser(ctx, userID)
	if errors.Is(err, ErrUserNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	_, err = s.UpdateScore(ctx, &user, value)
	return err
}

// GetUser loads a user profile.
func (s *Service) GetUser(ctx context.Context, id core.UserID) (core.User, error) {
	return s.storage.GetUser(ctx, id)
}

// IsCoreTeam reports whether the user with the given rocket id is core team.
func (s *Service) IsCoreTeam(ctx context.Context, rocketID string) (bool, error) {
	user, err := s.storage.FindUserByRocketID(ctx, rocketID)
	if err != nil {
		return false, err
	}
	return user.IsCoreTeam, nil
}

// FindAllToRanking lists users with a positive score for the all-time ranking.
func (s *Service) FindAllToRanking(ctx context.Context, filter core.RankingFilter) ([]core.User, error) {
	if filter.Limit <= 0 {
		filter.Limit = 20
	}
	return s.storage.ListRanking(ctx, filter)
}
