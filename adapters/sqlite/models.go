package sqlite

import (
	"time"

	"communityxp/core"
)

// Row models mapped by GORM. Timestamps are stored in UTC so textual comparison in SQLite
// orders them correctly.

type userModel struct {
	ID         string `gorm:"type:TEXT NOT NULL;primaryKey"`
	UUID       string `gorm:"type:TEXT NOT NULL;default:''"`
	Name       string `gorm:"type:TEXT NOT NULL;default:''"`
	Username   string `gorm:"type:TEXT NOT NULL;default:'';index"`
	Avatar     string `gorm:"type:TEXT NOT NULL;default:''"`
	Email      string `gorm:"type:TEXT NOT NULL;default:''"`
	Score      int64  `gorm:"not null;default:0;index"`
	Level      int64  `gorm:"not null;default:1"`
	IsCoreTeam bool   `gorm:"not null;default:false"`
	Pro        bool   `gorm:"not null;default:false"`
	ProBeginAt *time.Time
	RocketID   string    `gorm:"type:TEXT NOT NULL;default:'';index"`
	GitHubID   string    `gorm:"column:github_id;type:TEXT NOT NULL;default:''"`
	CreatedAt  time.Time `gorm:"not null;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"not null"`
}

func (userModel) TableName() string { return "users" }

func userFromCore(u core.User) userModel {
	return userModel{
		ID: string(u.ID), UUID: u.UUID, Name: u.Name, Username: u.Username, Avatar: u.Avatar, Email: u.Email,
		Score: u.Score, Level: u.Level, IsCoreTeam: u.IsCoreTeam, Pro: u.Pro, ProBeginAt: utcPtr(u.ProBeginAt),
		RocketID: u.RocketID, GitHubID: u.GitHubID, CreatedAt: u.CreatedAt.UTC(), UpdatedAt: u.UpdatedAt.UTC(),
	}
}

func (m userModel) core() core.User {
	return core.User{
		ID: core.UserID(m.ID), UUID: m.UUID, Name: m.Name, Username: m.Username, Avatar: m.Avatar, Email: m.Email,
		Score: m.Score, Level: m.Level, IsCoreTeam: m.IsCoreTeam, Pro: m.Pro, ProBeginAt: m.ProBeginAt,
		RocketID: m.RocketID, GitHubID: m.GitHubID, CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt,
	}
}

type interactionModel struct {
	ID          string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	Origin      string    `gorm:"type:TEXT NOT NULL"`
	Kind        string    `gorm:"type:TEXT NOT NULL"`
	UserID      string    `gorm:"type:TEXT NOT NULL;index:idx_interactions_user_date,priority:1"`
	Username    string    `gorm:"type:TEXT NOT NULL;default:''"`
	Value       string    `gorm:"column:val;type:TEXT NOT NULL;default:''"`
	Thread      bool      `gorm:"not null;default:false"`
	Description string    `gorm:"type:TEXT NOT NULL;default:''"`
	Channel     string    `gorm:"type:TEXT NOT NULL;default:''"`
	Category    string    `gorm:"type:TEXT NOT NULL;default:''"`
	Action      string    `gorm:"type:TEXT NOT NULL;default:''"`
	Score       int64     `gorm:"not null;default:0"`
	OccurredAt  time.Time `gorm:"not null;index:idx_interactions_user_date,priority:2"`
}

func (interactionModel) TableName() string { return "interactions" }

func (m interactionModel) core() core.Interaction {
	return core.Interaction{
		ID: m.ID, Origin: core.Origin(m.Origin), Type: core.InteractionType(m.Kind), User: core.UserID(m.UserID),
		Username: m.Username, Value: m.Value, Thread: m.Thread, Description: m.Description, Channel: m.Channel,
		Category: core.Category(m.Category), Action: m.Action, Score: m.Score, Date: m.OccurredAt,
	}
}

type messageModel struct {
	ID                string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	UserID            string    `gorm:"type:TEXT NOT NULL;default:''"`
	PlatformMessageID string    `gorm:"type:TEXT NOT NULL;uniqueIndex"`
	RoomID            string    `gorm:"type:TEXT NOT NULL;default:''"`
	PlatformUserID    string    `gorm:"type:TEXT NOT NULL;default:''"`
	PlatformParent    string    `gorm:"type:TEXT NOT NULL;default:''"`
	Content           string    `gorm:"type:TEXT NOT NULL;default:''"`
	IsCommand         bool      `gorm:"not null;default:false"`
	IsThread          bool      `gorm:"not null;default:false"`
	Parent            string    `gorm:"type:TEXT NOT NULL;default:''"`
	CreatedAt         time.Time `gorm:"not null"`
	UpdatedAt         time.Time `gorm:"not null"`
}

func (messageModel) TableName() string { return "messages" }

func messageFromCore(m core.Message) messageModel {
	return messageModel{
		ID: m.ID, UserID: string(m.User), PlatformMessageID: m.Platform.MessageID, RoomID: m.Platform.RoomID,
		PlatformUserID: m.Platform.UserID, PlatformParent: m.Platform.Parent, Content: m.Content,
		IsCommand: m.Is.Command, IsThread: m.Is.Thread, Parent: m.Parent,
		CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC(),
	}
}

func (m messageModel) core() core.Message {
	return core.Message{
		ID:   m.ID,
		User: core.UserID(m.UserID),
		Platform: core.PlatformMessage{
			MessageID: m.PlatformMessageID, RoomID: m.RoomID, UserID: m.PlatformUserID, Parent: m.PlatformParent,
		},
		Content:   m.Content,
		Is:        core.MessageFlags{Command: m.IsCommand, Thread: m.IsThread},
		Parent:    m.Parent,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

type scoreModel struct {
	ID          string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	Amount      int64     `gorm:"not null"`
	Description string    `gorm:"type:TEXT NOT NULL;default:''"`
	RefKind     string    `gorm:"type:TEXT NOT NULL;index:idx_scores_ref,priority:1"`
	RefID       string    `gorm:"type:TEXT NOT NULL;index:idx_scores_ref,priority:2"`
	UserID      string    `gorm:"type:TEXT NOT NULL;default:''"`
	OccurredAt  time.Time `gorm:"not null"`
}

func (scoreModel) TableName() string { return "scores" }

type reactionModel struct {
	ID                string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	MessageID         string    `gorm:"type:TEXT NOT NULL;index"`
	PlatformMessageID string    `gorm:"type:TEXT NOT NULL;default:''"`
	PlatformUserID    string    `gorm:"type:TEXT NOT NULL;default:''"`
	Username          string    `gorm:"type:TEXT NOT NULL;default:''"`
	Content           string    `gorm:"type:TEXT NOT NULL"`
	UserID            string    `gorm:"type:TEXT NOT NULL;default:''"`
	CreatedAt         time.Time `gorm:"not null"`
}

func (reactionModel) TableName() string { return "reactions" }

func (m reactionModel) core() core.Reaction {
	return core.Reaction{
		ID: m.ID, Message: m.MessageID, PlatformMessageID: m.PlatformMessageID, PlatformUserID: m.PlatformUserID,
		Username: m.Username, Content: m.Content, User: core.UserID(m.UserID), CreatedAt: m.CreatedAt,
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
