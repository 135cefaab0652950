package core

import "context"

// Rule determines whether given user state and trigger event should emit derived events.
type Rule interface {
	Evaluate(ctx context.Context, user User, trigger Event) []Event
}

// LevelRule emits a level change when a score award moved the user across a threshold,
// plus an achievement for every newly reached level listed in Achievements.
type LevelRule struct {
	Achievements map[int64]string
}

func (r LevelRule) Evaluate(_ context.Context, user User, trigger Event) []Event {
	if trigger.Type != EventScoreAwarded || user.Level == user.PreviousLevel {
		return nil
	}
	out := []Event{NewLevelUp(user.ID, user.PreviousLevel, user.Level)}
	for lvl := user.PreviousLevel + 1; lvl <= user.Level; lvl++ {
		if name, ok := r.Achievements[lvl]; ok {
			out = append(out, NewAchievementUnlocked(user.ID, name, lvl))
		}
	}
	return out
}
