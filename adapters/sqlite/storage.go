// Package sqlite is an embedded engine.Storage backed by GORM and the pure Go SQLite driver.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"communityxp/core"
	"communityxp/engine"
)

// Store implements engine.Storage on a GORM database.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// OpenSQLite opens (or creates) a SQLite database and applies PRAGMAs.
func OpenSQLite(path string) (*gorm.DB, error) {
	if dir := filepath.Dir(path); dir != "." && path != ":memory:" {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, err
	}

	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA synchronous=NORMAL;")
	db.Exec("PRAGMA busy_timeout=5000;")

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}
	return db, nil
}

// AutoMigrate creates or updates every table.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&userModel{},
		&interactionModel{},
		&messageModel{},
		&scoreModel{},
		&reactionModel{},
	)
}

// Open opens path, migrates it and returns a Store.
func Open(path string) (*Store, error) {
	db, err := OpenSQLite(path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return New(db), nil
}

// New wraps an already migrated database.
func New(db *gorm.DB) *Store { return &Store{db: db, now: time.Now} }

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) tx(ctx context.Context) *gorm.DB { return s.db.WithContext(ctx) }

// Users

func (s *Store) GetUser(ctx context.Context, id core.UserID) (core.User, error) {
	return s.firstUser(ctx, "id = ?", string(id))
}

func (s *Store) FindUserByRocketID(ctx context.Context, rocketID string) (core.User, error) {
	if rocketID == "" {
		return core.User{}, engine.ErrUserNotFound
	}
	return s.firstUser(ctx, "rocket_id = ?", rocketID)
}

func (s *Store) FindUserByUsername(ctx context.Context, username string) (core.User, error) {
	if username == "" {
		return core.User{}, engine.ErrUserNotFound
	}
	return s.firstUser(ctx, "username = ?", username)
}

func (s *Store) firstUser(ctx context.Context, where string, arg string) (core.User, error) {
	var m userModel
	if err := s.tx(ctx).Where(where, arg).Take(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return core.User{}, fmt.Errorf("%w: %s", engine.ErrUserNotFound, arg)
		}
		return core.User{}, err
	}
	return m.core(), nil
}

func (s *Store) SaveUser(ctx context.Context, u core.User) error {
	if _, err := core.NormalizeUserID(u.ID); err != nil {
		return err
	}
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = s.now()
	}
	if u.Level < 1 {
		u.Level = 1
	}
	m := userFromCore(u)
	return s.tx(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"uuid", "name", "username", "avatar", "email", "score", "level", "is_core_team", "pro",
			"pro_begin_at", "rocket_id", "github_id", "updated_at",
		}),
	}).Create(&m).Error
}

func (s *Store) ListRanking(ctx context.Context, filter core.RankingFilter) ([]core.User, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = core.MaxPageLimit
	}
	var rows []userModel
	err := s.tx(ctx).
		Where("score > 0 AND is_core_team = ?", filter.CoreTeam).
		Order("score DESC").Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]core.User, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.core())
	}
	return out, nil
}

// Interactions

func (s *Store) CreateInteraction(ctx context.Context, i core.Interaction) (core.Interaction, error) {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	if i.Date.IsZero() {
		i.Date = s.now()
	}
	i.Date = i.Date.UTC()
	m := interactionModel{
		ID: i.ID, Origin: string(i.Origin), Kind: string(i.Type), UserID: string(i.User), Username: i.Username,
		Value: i.Value, Thread: i.Thread, Description: i.Description, Channel: i.Channel,
		Category: string(i.Category), Action: i.Action, Score: i.Score, OccurredAt: i.Date,
	}
	if err := s.tx(ctx).Create(&m).Error; err != nil {
		return core.Interaction{}, err
	}
	return i, nil
}

func (s *Store) ListInteractions(ctx context.Context, user core.UserID, from, to time.Time) ([]core.Interaction, error) {
	var rows []interactionModel
	err := s.tx(ctx).
		Where("user_id = ? AND occurred_at >= ? AND occurred_at < ?", string(user), from.UTC(), to.UTC()).
		Order("occurred_at").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]core.Interaction, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.core())
	}
	return out, nil
}

// Messages

func (s *Store) FindMessage(ctx context.Context, platformID string) (core.Message, error) {
	var m messageModel
	if err := s.tx(ctx).Where("platform_message_id = ?", platformID).Take(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return core.Message{}, fmt.Errorf("%w: %s", engine.ErrMessageNotFound, platformID)
		}
		return core.Message{}, err
	}
	return m.core(), nil
}

func (s *Store) UpsertMessage(ctx context.Context, msg core.Message) (core.Message, bool, error) {
	if msg.Platform.MessageID == "" {
		return core.Message{}, false, fmt.Errorf("%w: empty platform message id", engine.ErrInvalidEvent)
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	now := s.now().UTC()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now
	}
	msg.UpdatedAt = now
	m := messageFromCore(msg)
	res := s.tx(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "platform_message_id"}},
		DoNothing: true,
	}).Create(&m)
	if res.Error != nil {
		return core.Message{}, false, res.Error
	}
	if res.RowsAffected > 0 {
		return m.core(), true, nil
	}
	stored, err := s.FindMessage(ctx, msg.Platform.MessageID)
	return stored, false, err
}

func (s *Store) SaveMessage(ctx context.Context, msg core.Message) error {
	res := s.tx(ctx).Model(&messageModel{}).Where("id = ?", msg.ID).Updates(map[string]any{
		"user_id":         string(msg.User),
		"content":         msg.Content,
		"is_command":      msg.Is.Command,
		"is_thread":       msg.Is.Thread,
		"parent":          msg.Parent,
		"platform_parent": msg.Platform.Parent,
		"updated_at":      s.now().UTC(),
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", engine.ErrMessageNotFound, msg.ID)
	}
	return nil
}

// Scores

func (s *Store) CreateScore(ctx context.Context, sc core.Score) (core.Score, error) {
	if err := sc.Ref.Validate(); err != nil {
		return core.Score{}, err
	}
	if sc.ID == "" {
		sc.ID = uuid.NewString()
	}
	if sc.Date.IsZero() {
		sc.Date = s.now()
	}
	sc.Date = sc.Date.UTC()
	m := scoreModel{
		ID: sc.ID, Amount: sc.Value, Description: sc.Description, RefKind: string(sc.Ref.Kind),
		RefID: sc.Ref.ID, UserID: string(sc.User), OccurredAt: sc.Date,
	}
	if err := s.tx(ctx).Create(&m).Error; err != nil {
		return core.Score{}, err
	}
	return sc, nil
}

func (s *Store) ListScores(ctx context.Context, ref core.Ref) ([]core.Score, error) {
	var rows []scoreModel
	err := s.tx(ctx).Where("ref_kind = ? AND ref_id = ?", string(ref.Kind), ref.ID).Order("occurred_at").Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]core.Score, 0, len(rows))
	for _, r := range rows {
		out = append(out, core.Score{
			ID: r.ID, Value: r.Amount, Description: r.Description,
			Ref: core.Ref{Kind: core.RefKind(r.RefKind), ID: r.RefID}, User: core.UserID(r.UserID), Date: r.OccurredAt,
		})
	}
	return out, nil
}

// Reactions

func (s *Store) ListReactions(ctx context.Context, messageID string) ([]core.Reaction, error) {
	var rows []reactionModel
	if err := s.tx(ctx).Where("message_id = ?", messageID).Order("created_at").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]core.Reaction, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.core())
	}
	return out, nil
}

func (s *Store) CreateReaction(ctx context.Context, r core.Reaction) (core.Reaction, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now()
	}
	r.CreatedAt = r.CreatedAt.UTC()
	m := reactionModel{
		ID: r.ID, MessageID: r.Message, PlatformMessageID: r.PlatformMessageID, PlatformUserID: r.PlatformUserID,
		Username: r.Username, Content: r.Content, UserID: string(r.User), CreatedAt: r.CreatedAt,
	}
	if err := s.tx(ctx).Create(&m).Error; err != nil {
		return core.Reaction{}, err
	}
	return r, nil
}

func (s *Store) DeleteReaction(ctx context.Context, id string) error {
	res := s.tx(ctx).Where("id = ?", id).Delete(&reactionModel{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", engine.ErrReactionNotFound, id)
	}
	return nil
}

// Rankings

type leaderboardRow struct {
	UserID   string
	RocketID string
	Name     string
	Avatar   string
	Level    int64
	UUID     string
	Username string
	Score    int64
}

func (s *Store) MonthlyScores(ctx context.Context, from, to time.Time, skip, limit int) ([]core.LeaderboardEntry, error) {
	var rows []leaderboardRow
	err := s.tx(ctx).Raw(`SELECT u.id AS user_id, u.rocket_id, u.name, u.avatar, u.level, u.uuid, u.username, t.score
		FROM (
			SELECT user_id, SUM(score) AS score FROM interactions
			WHERE occurred_at >= ? AND occurred_at < ?
			GROUP BY user_id HAVING SUM(score) > 0
		) t
		JOIN users u ON u.id = t.user_id
		WHERE u.is_core_team = ? AND u.rocket_id <> ''
		ORDER BY t.score DESC, u.id ASC
		LIMIT ? OFFSET ?`, from.UTC(), to.UTC(), false, limit, skip).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]core.LeaderboardEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, core.LeaderboardEntry{
			UserID: core.UserID(r.UserID), RocketID: r.RocketID, Name: r.Name, Avatar: r.Avatar,
			Level: r.Level, UUID: r.UUID, Username: r.Username, Score: r.Score,
		})
	}
	return out, nil
}

type activeRow struct {
	UserID   string
	Name     string
	RocketID string
	Username string
	Channel  string
	Total    int64
}

func (s *Store) MostActive(ctx context.Context, q core.ActiveQuery) ([]core.ActiveUser, error) {
	q = q.WithDefaults()
	tx := s.tx(ctx).Table("interactions AS i").
		Select(`i.user_id AS user_id, COALESCE(u.name, '') AS name, COALESCE(u.rocket_id, '') AS rocket_id,
			COALESCE(u.username, '') AS username, i.channel AS channel, COUNT(*) AS total`).
		Joins("LEFT JOIN users u ON u.id = i.user_id").
		Where("i.occurred_at >= ? AND i.occurred_at <= ?", q.Begin.UTC(), q.End.UTC())
	if q.Channel != "" {
		tx = tx.Where("i.channel = ?", q.Channel)
	}
	var rows []activeRow
	err := tx.Group("i.user_id, u.name, u.rocket_id, u.username, i.channel").
		Having("COUNT(*) >= ?", q.MinCount).
		Order("total DESC, i.user_id ASC, i.channel ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]core.ActiveUser, 0, len(rows))
	for _, r := range rows {
		out = append(out, core.ActiveUser{
			UserID: core.UserID(r.UserID), Name: r.Name, RocketID: r.RocketID, Username: r.Username,
			Channel: r.Channel, Count: r.Total,
		})
	}
	return out, nil
}

var _ engine.Storage = (*Store)(nil)
