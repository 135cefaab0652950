package engine

import (
	"context"
	"fmt"

	"communityxp/core"
)

// HasScore reports whether i may award score: it must be within the daily limit and not flood.
func (s *Service) HasScore(ctx context.Context, ctrl ModuleController, i core.Interaction) (bool, error) {
	withinLimit, err := s.IsOnDailyLimit(ctx, ctrl, i)
	if err != nil {
		return false, err
	}
	flood, err := s.IsFlood(ctx, ctrl, i)
	if err != nil {
		return false, err
	}
	return withinLimit && !flood, nil
}

// IsFlood asks the origin's controller; without one nothing is flood.
func (s *Service) IsFlood(ctx context.Context, ctrl ModuleController, i core.Interaction) (bool, error) {
	if ctrl == nil {
		return false, nil
	}
	flood, err := ctrl.IsFlood(ctx, i)
	if err != nil {
		return false, fmt.Errorf("flood check for %s: %w", ctrl.Origin(), err)
	}
	return flood, nil
}

// IsOnDailyLimit reports whether the user still has daily score left.
// With AllowZeroRemaining, an exhausted-to-zero budget still counts as allowed.
func (s *Service) IsOnDailyLimit(ctx context.Context, ctrl ModuleController, i core.Interaction) (bool, error) {
	today, err := s.TodayScore(ctx, i.User)
	if err != nil {
		return false, err
	}
	remaining := s.DailyLimit(ctrl) - today
	if remaining == 0 && s.settings.AllowZeroRemaining {
		return true, nil
	}
	return remaining > 0, nil
}

// DailyLimit returns the controller's declared limit, or the global default.
func (s *Service) DailyLimit(ctrl ModuleController) int64 {
	if ctrl != nil {
		if limit, ok := ctrl.DailyLimit(); ok && limit > 0 {
			return limit
		}
	}
	return s.settings.DailyLimit
}

// TodayScore sums the scores of the user's interactions dated today.
func (s *Service) TodayScore(ctx context.Context, user core.UserID) (int64, error) {
	from, to := core.DayRange(s.settings.Now())
	interactions, err := s.storage.ListInteractions(ctx, user, from, to)
	if err != nil {
		return 0, fmt.Errorf("list today's interactions: %w", err)
	}
	var total int64
	for _, i := range interactions {
		total += i.Score
	}
	return total, nil
}
