package core

import "time"

// DefaultMinActiveCount is the minimum interaction count for MostActive when none is given.
const DefaultMinActiveCount = 6

// LeaderboardEntry is one row of the monthly leaderboard.
type LeaderboardEntry struct {
	UserID   UserID `json:"id" db:"id"`
	RocketID string `json:"rocket_id" db:"rocket_id"`
	Name     string `json:"name" db:"name"`
	Avatar   string `json:"avatar" db:"avatar"`
	Level    int64  `json:"level" db:"level"`
	UUID     string `json:"uuid" db:"uuid"`
	Username string `json:"username" db:"username"`
	Score    int64  `json:"score" db:"score"`
}

// ActiveQuery filters the most-active report. Begin and End are inclusive.
type ActiveQuery struct {
	Begin    time.Time
	End      time.Time
	Channel  string
	MinCount int
}

// WithDefaults fills MinCount when unset.
func (q ActiveQuery) WithDefaults() ActiveQuery {
	if q.MinCount <= 0 {
		q.MinCount = DefaultMinActiveCount
	}
	return q
}

// ActiveUser is one (user, channel) group of the most-active report.
type ActiveUser struct {
	UserID   UserID `json:"id" db:"id"`
	Name     string `json:"name" db:"name"`
	RocketID string `json:"rocket_id" db:"rocket_id"`
	Username string `json:"username" db:"username"`
	Channel  string `json:"channel" db:"channel"`
	Count    int64  `json:"count" db:"count"`
}

// RankingFilter selects users for the all-time ranking.
type RankingFilter struct {
	CoreTeam bool
	Limit    int
}
