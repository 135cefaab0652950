package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"communityxp/core"
	"communityxp/engine"
	"communityxp/leaderboard"
)

// Store is a concurrent in-memory Storage implementation.
type Store struct {
	mu           sync.RWMutex
	users        map[core.UserID]core.User
	interactions []core.Interaction
	messages     map[string]core.Message
	byPlatformID map[string]string
	scores       []core.Score
	reactions    map[string]core.Reaction
	board        leaderboard.Board
}

func New() *Store {
	return &Store{
		users:        map[core.UserID]core.User{},
		messages:     map[string]core.Message{},
		byPlatformID: map[string]string{},
		reactions:    map[string]core.Reaction{},
		board:        leaderboard.NewSkipList(),
	}
}

func (s *Store) Ping(context.Context) error { return nil }

// Users

func (s *Store) GetUser(_ context.Context, id core.UserID) (core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return core.User{}, fmt.Errorf("%w: %s", engine.ErrUserNotFound, id)
	}
	return u.Clone(), nil
}

func (s *Store) FindUserByRocketID(_ context.Context, rocketID string) (core.User, error) {
	return s.findUser(func(u core.User) bool { return rocketID != "" && u.RocketID == rocketID })
}

func (s *Store) FindUserByUsername(_ context.Context, username string) (core.User, error) {
	return s.findUser(func(u core.User) bool { return username != "" && u.Username == username })
}

func (s *Store) findUser(match func(core.User) bool) (core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if match(u) {
			return u.Clone(), nil
		}
	}
	return core.User{}, engine.ErrUserNotFound
}

func (s *Store) SaveUser(_ context.Context, user core.User) error {
	if _, err := core.NormalizeUserID(user.ID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	if prev, ok := s.users[user.ID]; ok {
		user.CreatedAt = prev.CreatedAt
	} else if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = now
	}
	user.PreviousLevel = 0
	if user.Level < 1 {
		user.Level = 1
	}
	s.users[user.ID] = user.Clone()
	if user.Score > 0 {
		s.board.Update(user.ID, user.Score)
	} else {
		s.board.Remove(user.ID)
	}
	return nil
}

func (s *Store) ListRanking(_ context.Context, filter core.RankingFilter) ([]core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.User
	for _, e := range s.board.TopN(s.board.Len()) {
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
		u := s.users[e.User]
		if u.IsCoreTeam != filter.CoreTeam {
			continue
		}
		out = append(out, u.Clone())
	}
	return out, nil
}

// Interactions

func (s *Store) CreateInteraction(_ context.Context, i core.Interaction) (core.Interaction, error) {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	if i.Date.IsZero() {
		i.Date = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interactions = append(s.interactions, i)
	return i, nil
}

func (s *Store) ListInteractions(_ context.Context, user core.UserID, from, to time.Time) ([]core.Interaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Interaction
	for _, i := range s.interactions {
		if i.User == user && !i.Date.Before(from) && i.Date.Before(to) {
			out = append(out, i)
		}
	}
	return out, nil
}

// Messages

func (s *Store) FindMessage(_ context.Context, platformID string) (core.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byPlatformID[platformID]
	if !ok {
		return core.Message{}, fmt.Errorf("%w: %s", engine.ErrMessageNotFound, platformID)
	}
	return s.messages[id], nil
}

func (s *Store) UpsertMessage(_ context.Context, m core.Message) (core.Message, bool, error) {
	if m.Platform.MessageID == "" {
		return core.Message{}, false, fmt.Errorf("%w: empty platform message id", engine.ErrInvalidEvent)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byPlatformID[m.Platform.MessageID]; ok {
		return s.messages[id], false, nil
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	s.messages[m.ID] = m
	s.byPlatformID[m.Platform.MessageID] = m.ID
	return m, true, nil
}

func (s *Store) SaveMessage(_ context.Context, m core.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[m.ID]; !ok {
		return fmt.Errorf("%w: %s", engine.ErrMessageNotFound, m.ID)
	}
	m.UpdatedAt = time.Now().UTC()
	s.messages[m.ID] = m
	s.byPlatformID[m.Platform.MessageID] = m.ID
	return nil
}

// Scores

func (s *Store) CreateScore(_ context.Context, sc core.Score) (core.Score, error) {
	if err := sc.Ref.Validate(); err != nil {
		return core.Score{}, err
	}
	if sc.ID == "" {
		sc.ID = uuid.NewString()
	}
	if sc.Date.IsZero() {
		sc.Date = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scores = append(s.scores, sc)
	return sc, nil
}

func (s *Store) ListScores(_ context.Context, ref core.Ref) ([]core.Score, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Score
	for _, sc := range s.scores {
		if sc.Ref == ref {
			out = append(out, sc)
		}
	}
	return out, nil
}

// Reactions

func (s *Store) ListReactions(_ context.Context, messageID string) ([]core.Reaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Reaction
	for _, r := range s.reactions {
		if r.Message == messageID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	return out, nil
}

func (s *Store) CreateReaction(_ context.Context, r core.Reaction) (core.Reaction, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reactions[r.ID] = r
	return r, nil
}

func (s *Store) DeleteReaction(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reactions[id]; !ok {
		return fmt.Errorf("%w: %s", engine.ErrReactionNotFound, id)
	}
	delete(s.reactions, id)
	return nil
}

// Rankings

func (s *Store) MonthlyScores(_ context.Context, from, to time.Time, skip, limit int) ([]core.LeaderboardEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sums := map[core.UserID]int64{}
	for _, i := range s.interactions {
		if !i.Date.Before(from) && i.Date.Before(to) {
			sums[i.User] += i.Score
		}
	}
	var out []core.LeaderboardEntry
	for id, score := range sums {
		u, ok := s.users[id]
		if score <= 0 || !ok || u.IsCoreTeam || u.RocketID == "" {
			continue
		}
		out = append(out, core.LeaderboardEntry{
			UserID: u.ID, RocketID: u.RocketID, Name: u.Name, Avatar: u.Avatar,
			Level: u.Level, UUID: u.UUID, Username: u.Username, Score: score,
		})
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Score == out[b].Score {
			return out[a].UserID < out[b].UserID
		}
		return out[a].Score > out[b].Score
	})
	return paginate(out, skip, limit), nil
}

func (s *Store) MostActive(_ context.Context, q core.ActiveQuery) ([]core.ActiveUser, error) {
	q = q.WithDefaults()
	type key struct {
		user    core.UserID
		channel string
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := map[key]int64{}
	for _, i := range s.interactions {
		if i.Date.Before(q.Begin) || i.Date.After(q.End) {
			continue
		}
		if q.Channel != "" && i.Channel != q.Channel {
			continue
		}
		counts[key{i.User, i.Channel}]++
	}
	var out []core.ActiveUser
	for k, n := range counts {
		if n < int64(q.MinCount) {
			continue
		}
		u := s.users[k.user]
		out = append(out, core.ActiveUser{
			UserID: k.user, Name: u.Name, RocketID: u.RocketID, Username: u.Username,
			Channel: k.channel, Count: n,
		})
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Count != out[b].Count {
			return out[a].Count > out[b].Count
		}
		if out[a].UserID != out[b].UserID {
			return out[a].UserID < out[b].UserID
		}
		return out[a].Channel < out[b].Channel
	})
	return out, nil
}

func paginate[T any](rows []T, skip, limit int) []T {
	if skip >= len(rows) {
		return nil
	}
	rows = rows[skip:]
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}

var _ engine.Storage = (*Store)(nil)
