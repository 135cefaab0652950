package core

import "time"

// EventType enumerates domain events.
type EventType string

const (
	EventInteractionSaved    EventType = "interaction_saved"
	EventScoreAwarded        EventType = "score_awarded"
	EventLevelUp             EventType = "level_up"
	EventAchievementUnlocked EventType = "achievement_unlocked"
	EventMessageSaved        EventType = "message_saved"
	EventReactionAdded       EventType = "reaction_added"
	EventReactionRemoved     EventType = "reaction_removed"
)

// Event represents an immutable domain event.
type Event struct {
	Type          EventType      `json:"type"`
	Time          time.Time      `json:"time"`
	UserID        UserID         `json:"user_id"`
	Origin        Origin         `json:"origin,omitempty"`
	Delta         int64          `json:"delta,omitempty"`
	Total         int64          `json:"total,omitempty"`
	Level         int64          `json:"level,omitempty"`
	PreviousLevel int64          `json:"previous_level,omitempty"`
	Achievement   string         `json:"achievement,omitempty"`
	Ref           *Ref           `json:"ref,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

func NewInteractionSaved(i Interaction) Event {
	ref := InteractionRef(i.ID)
	return Event{Type: EventInteractionSaved, Time: time.Now().UTC(), UserID: i.User, Origin: i.Origin, Delta: i.Score, Ref: &ref,
		Metadata: map[string]any{"action": i.Action, "channel": i.Channel, "category": string(i.Category)}}
}

func NewScoreAwarded(user UserID, delta int64, total int64) Event {
	return Event{Type: EventScoreAwarded, Time: time.Now().UTC(), UserID: user, Delta: delta, Total: total}
}

func NewLevelUp(user UserID, previous, level int64) Event {
	return Event{Type: EventLevelUp, Time: time.Now().UTC(), UserID: user, PreviousLevel: previous, Level: level}
}

func NewAchievementUnlocked(user UserID, achievement string, level int64) Event {
	return Event{Type: EventAchievementUnlocked, Time: time.Now().UTC(), UserID: user, Achievement: achievement, Level: level}
}

func NewMessageSaved(m Message) Event {
	ref := MessageRef(m.ID)
	return Event{Type: EventMessageSaved, Time: time.Now().UTC(), UserID: m.User, Origin: OriginRocket, Ref: &ref}
}

func NewReactionChanged(typ EventType, r Reaction) Event {
	ref := MessageRef(r.Message)
	return Event{Type: typ, Time: time.Now().UTC(), UserID: r.User, Origin: OriginRocket, Ref: &ref,
		Metadata: map[string]any{"content": r.Content, "username": r.Username}}
}
