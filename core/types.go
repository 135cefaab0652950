package core

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// UserID uniquely identifies a user in the gamification domain.
type UserID string

// Origin names the system an interaction came from.
type Origin string

const (
	OriginSystem Origin = "system"
	OriginGitHub Origin = "github"
	OriginRocket Origin = "rocket"
	OriginBlog   Origin = "blog"
)

// InteractionType classifies a raw event. Manual and inactivity are system types;
// everything else is interpreted by the origin's module controller.
type InteractionType string

const (
	TypeManual     InteractionType = "manual"
	TypeInactivity InteractionType = "inactivity"

	TypeMessage     InteractionType = "message"
	TypeThread      InteractionType = "thread"
	TypeReaction    InteractionType = "reaction"
	TypePullRequest InteractionType = "pull_request"
	TypeReview      InteractionType = "review"
	TypeIssue       InteractionType = "issue"
	TypePush        InteractionType = "push"
	TypePost        InteractionType = "post"
	TypeComment     InteractionType = "comment"
)

// IsSystem reports whether the type is produced by the platform itself rather than an integration.
func (t InteractionType) IsSystem() bool { return t == TypeManual || t == TypeInactivity }

// Category groups interactions for daily limits.
type Category string

const (
	CategoryNetwork Category = "network"
	CategoryGitHub  Category = "github"
	CategoryBlog    Category = "blog"
)

// RawEvent is an inbound event before normalization.
type RawEvent struct {
	Origin   Origin          `json:"origin"`
	Type     InteractionType `json:"type"`
	User     UserID          `json:"user"`
	Username string          `json:"username,omitempty"`
	Value    string          `json:"value,omitempty"`
	Text     string          `json:"text,omitempty"`
	Score    *int64          `json:"score,omitempty"`
	Channel  string          `json:"channel,omitempty"`
	Action   string          `json:"action,omitempty"`
	Thread   bool            `json:"thread,omitempty"`
	Date     time.Time       `json:"date,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// Interaction is the canonical record of a scorable event from any source.
type Interaction struct {
	ID          string          `json:"id"`
	Origin      Origin          `json:"origin"`
	Type        InteractionType `json:"type"`
	User        UserID          `json:"user"`
	Username    string          `json:"username,omitempty"`
	Value       string          `json:"value,omitempty"`
	Thread      bool            `json:"thread"`
	Description string          `json:"description"`
	Channel     string          `json:"channel"`
	Category    Category        `json:"category"`
	Action      string          `json:"action"`
	Score       int64           `json:"score"`
	Date        time.Time       `json:"date"`
}

// User is a community member's gamification profile.
type User struct {
	ID            UserID     `json:"id"`
	UUID          string     `json:"uuid,omitempty"`
	Name          string     `json:"name"`
	Username      string     `json:"username"`
	Avatar        string     `json:"avatar,omitempty"`
	Email         string     `json:"email,omitempty"`
	Score         int64      `json:"score"`
	Level         int64      `json:"level"`
	PreviousLevel int64      `json:"-"`
	IsCoreTeam    bool       `json:"is_core_team"`
	Pro           bool       `json:"pro"`
	ProBeginAt    *time.Time `json:"pro_begin_at,omitempty"`
	RocketID      string     `json:"rocket_id,omitempty"`
	GitHubID      string     `json:"github_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Clone returns a copy that shares no pointers with u.
func (u User) Clone() User {
	cp := u
	if u.ProBeginAt != nil {
		t := *u.ProBeginAt
		cp.ProBeginAt = &t
	}
	return cp
}

// PlatformMessage carries the chat platform identifiers of a Message.
type PlatformMessage struct {
	MessageID string `json:"message_id"`
	RoomID    string `json:"room_id"`
	UserID    string `json:"user_id"`
	Parent    string `json:"parent,omitempty"`
}

// MessageFlags mirrors the `is.*` flags of a stored message.
type MessageFlags struct {
	Command bool `json:"command"`
	Thread  bool `json:"thread"`
}

// Message is one stored chat message, unique by platform message id.
type Message struct {
	ID        string          `json:"id"`
	User      UserID          `json:"user,omitempty"`
	Platform  PlatformMessage `json:"platform"`
	Content   string          `json:"content"`
	Is        MessageFlags    `json:"is"`
	Parent    string          `json:"parent,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// RefKind tags the entity a Score entry points at.
type RefKind string

const (
	RefMessage     RefKind = "message"
	RefInteraction RefKind = "interaction"
)

// Ref is a typed reference to the entity that earned a score.
type Ref struct {
	Kind RefKind `json:"kind"`
	ID   string  `json:"id"`
}

// MessageRef builds a Ref to a stored message.
func MessageRef(id string) Ref { return Ref{Kind: RefMessage, ID: id} }

// InteractionRef builds a Ref to a stored interaction.
func InteractionRef(id string) Ref { return Ref{Kind: RefInteraction, ID: id} }

// Validate checks the ref is well formed.
func (r Ref) Validate() error {
	switch r.Kind {
	case RefMessage, RefInteraction:
	default:
		return errors.New("invalid ref kind")
	}
	if strings.TrimSpace(r.ID) == "" {
		return errors.New("empty ref id")
	}
	return nil
}

// Score is an append-only audit entry.
type Score struct {
	ID          string    `json:"id"`
	Value       int64     `json:"value"`
	Description string    `json:"description"`
	Ref         Ref       `json:"ref"`
	User        UserID    `json:"user,omitempty"`
	Date        time.Time `json:"date"`
}

// Reaction is a (user, emoji, message) tuple.
type Reaction struct {
	ID                string    `json:"id"`
	Message           string    `json:"message"`
	PlatformMessageID string    `json:"platform_message_id"`
	PlatformUserID    string    `json:"platform_user_id,omitempty"`
	Username          string    `json:"username"`
	Content           string    `json:"content"`
	User              UserID    `json:"user,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// NormalizeUserID trims user identifiers; case is preserved.
func NormalizeUserID(id UserID) (UserID, error) {
	s := strings.TrimSpace(string(id))
	if s == "" {
		return "", errors.New("empty user id")
	}
	return UserID(s), nil
}
