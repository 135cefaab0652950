// Package rocket integrates Rocket.Chat: message classification, reaction tracking and
// the module controller scoring chat interactions.
package rocket

import (
	"fmt"

	"communityxp/core"
	"communityxp/engine"
)

// Sender is the `u` object of a Rocket.Chat message.
type Sender struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
	Name     string `json:"name,omitempty"`
}

// ReactionUsers lists who reacted with one emoji.
type ReactionUsers struct {
	Usernames []string `json:"usernames"`
}

// ChatMessage is a message as delivered by the Rocket.Chat realtime/webhook API.
type ChatMessage struct {
	ID        string                   `json:"_id"`
	RoomID    string                   `json:"rid"`
	Text      string                   `json:"msg"`
	User      Sender                   `json:"u"`
	ThreadID  string                   `json:"tmid,omitempty"`
	Reactions map[string]ReactionUsers `json:"reactions,omitempty"`
}

// Validate checks the identifiers the handler relies on.
func (m ChatMessage) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("%w: message without _id", engine.ErrInvalidEvent)
	}
	if m.User.ID == "" {
		return fmt.Errorf("%w: message %s without sender", engine.ErrInvalidEvent, m.ID)
	}
	return nil
}

func (m ChatMessage) platform() core.PlatformMessage {
	return core.PlatformMessage{MessageID: m.ID, RoomID: m.RoomID, UserID: m.User.ID, Parent: m.ThreadID}
}

// Rewards are the score values granted by chat activity.
type Rewards struct {
	MessageSend     int64 `json:"message_send" yaml:"message_send"`
	ThreadSend      int64 `json:"thread_send" yaml:"thread_send"`
	ThreadReceive   int64 `json:"thread_receive" yaml:"thread_receive"`
	ReactionSend    int64 `json:"reaction_send" yaml:"reaction_send"`
	ReactionReceive int64 `json:"reaction_receive" yaml:"reaction_receive"`
}

// DefaultRewards returns the stock reward table.
func DefaultRewards() Rewards {
	return Rewards{MessageSend: 1, ThreadSend: 2, ThreadReceive: 3, ReactionSend: 0, ReactionReceive: 1}
}
