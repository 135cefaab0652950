package leaderboard

import "communityxp/core"

// Entry is one user's position input: a user and the score they are ranked by.
type Entry struct {
	User  core.UserID `json:"user"`
	Score int64       `json:"score"`
}

// Board is an ordered all-time ranking keyed by score desc, user asc.
type Board interface {
	Update(user core.UserID, score int64)
	Remove(user core.UserID)
	TopN(n int) []Entry
	Len() int
}
