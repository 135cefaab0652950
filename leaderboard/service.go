package leaderboard

import (
	"context"
	"fmt"
	"time"

	"communityxp/core"
	"communityxp/engine"
)

// Service answers the read-only ranking views over accumulated interactions.
type Service struct {
	store engine.RankingStore
	now   func() time.Time
}

// NewService builds a Service; a nil clock means time.Now.
func NewService(store engine.RankingStore, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{store: store, now: now}
}

// Monthly ranks community members by the sum of their interaction scores in the month of date.
// A zero date means the current month.
func (s *Service) Monthly(ctx context.Context, date time.Time, page core.Page) ([]core.LeaderboardEntry, error) {
	skip, limit := page.Resolve()
	from, to := core.MonthRange(s.dateOrNow(date))
	rows, err := s.store.MonthlyScores(ctx, from, to, skip, limit)
	if err != nil {
		return nil, fmt.Errorf("monthly ranking: %w", err)
	}
	return rows, nil
}

// MostActive counts interactions per user and channel inside [Begin, End].
func (s *Service) MostActive(ctx context.Context, q core.ActiveQuery) ([]core.ActiveUser, error) {
	q = q.WithDefaults()
	if q.End.IsZero() {
		q.End = s.now().UTC()
	}
	if q.End.Before(q.Begin) {
		return nil, fmt.Errorf("%w: end before begin", engine.ErrInvalidEvent)
	}
	rows, err := s.store.MostActive(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("most active: %w", err)
	}
	return rows, nil
}

// Position returns the 1-based position of user in the monthly ranking of date, or 0 when the
// user is not ranked.
func (s *Service) Position(ctx context.Context, user core.UserID, date time.Time) (int, error) {
	rows, err := s.Monthly(ctx, date, core.Page{})
	if err != nil {
		return 0, err
	}
	for i, row := range rows {
		if row.UserID == user {
			return i + 1, nil
		}
	}
	return 0, nil
}

func (s *Service) dateOrNow(date time.Time) time.Time {
	if date.IsZero() {
		return s.now()
	}
	return date
}
