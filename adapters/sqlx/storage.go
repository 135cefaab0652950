package sqlx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"communityxp/core"
	"communityxp/engine"
)

// Driver names a supported SQL dialect.
type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverMySQL    Driver = "mysql"
)

// Config holds SQL connection configuration. MySQL DSNs need parseTime=true.
type Config struct {
	Driver          Driver        `json:"driver" yaml:"driver" env:"COMMUNITYXP_SQL_DRIVER"`
	DSN             string        `json:"dsn" yaml:"dsn" env:"COMMUNITYXP_SQL_DSN"`
	MaxOpenConns    int           `json:"max_open_conns" yaml:"max_open_conns" env:"COMMUNITYXP_SQL_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `json:"max_idle_conns" yaml:"max_idle_conns" env:"COMMUNITYXP_SQL_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime" env:"COMMUNITYXP_SQL_CONN_MAX_LIFETIME"`
}

// DefaultConfig returns pool defaults for driver.
func DefaultConfig(driver Driver) Config {
	return Config{
		Driver:          driver,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
	}
}

// Store implements engine.Storage on Postgres or MySQL.
type Store struct {
	db     *sqlx.DB
	driver Driver
	now    func() time.Time
}

// New connects and returns a Store. Call Migrate to create the schema.
func New(ctx context.Context, cfg Config) (*Store, error) {
	switch cfg.Driver {
	case DriverPostgres, DriverMySQL:
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", cfg.Driver)
	}
	db, err := sqlx.ConnectContext(ctx, string(cfg.Driver), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.Driver, err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return NewWithDB(db, cfg.Driver), nil
}

// NewWithDB wraps an existing connection (useful for testing)
func NewWithDB(db *sqlx.DB, driver Driver) *Store {
	return &Store{db: db, driver: driver, now: time.Now}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Migrate creates the tables when missing.
func (s *Store) Migrate(ctx context.Context) error {
	r := strings.NewReplacer(
		"{ts}", "TIMESTAMPTZ",
		"{idx}", "",
		"{pgidx}", "CREATE INDEX IF NOT EXISTS idx_interactions_user_date ON interactions (user_id, occurred_at)",
	)
	if s.driver == DriverMySQL {
		r = strings.NewReplacer(
			"{ts}", "DATETIME(6)",
			"{idx}", ",\n\t\tINDEX idx_interactions_user_date (user_id, occurred_at)",
			"{pgidx}", "",
		)
	}
	for _, stmt := range schema {
		stmt = r.Replace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id VARCHAR(191) PRIMARY KEY,
		uuid VARCHAR(64) NOT NULL DEFAULT '',
		name VARCHAR(255) NOT NULL DEFAULT '',
		username VARCHAR(191) NOT NULL DEFAULT '',
		avatar VARCHAR(512) NOT NULL DEFAULT '',
		email VARCHAR(255) NOT NULL DEFAULT '',
		score BIGINT NOT NULL DEFAULT 0,
		level BIGINT NOT NULL DEFAULT 1,
		is_core_team BOOLEAN NOT NULL DEFAULT FALSE,
		pro BOOLEAN NOT NULL DEFAULT FALSE,
		pro_begin_at {ts} NULL,
		rocket_id VARCHAR(191) NOT NULL DEFAULT '',
		github_id VARCHAR(191) NOT NULL DEFAULT '',
		created_at {ts} NOT NULL,
		updated_at {ts} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS interactions (
		id VARCHAR(64) PRIMARY KEY,
		origin VARCHAR(32) NOT NULL,
		kind VARCHAR(32) NOT NULL,
		user_id VARCHAR(191) NOT NULL,
		username VARCHAR(191) NOT NULL DEFAULT '',
		val VARCHAR(512) NOT NULL DEFAULT '',
		thread BOOLEAN NOT NULL DEFAULT FALSE,
		description TEXT NOT NULL,
		channel VARCHAR(191) NOT NULL DEFAULT '',
		category VARCHAR(32) NOT NULL DEFAULT '',
		action VARCHAR(64) NOT NULL DEFAULT '',
		score BIGINT NOT NULL DEFAULT 0,
		occurred_at {ts} NOT NULL{idx}
	)`,
	`{pgidx}`,
	`CREATE TABLE IF NOT EXISTS messages (
		id VARCHAR(64) PRIMARY KEY,
		user_id VARCHAR(191) NOT NULL DEFAULT '',
		platform_message_id VARCHAR(191) NOT NULL UNIQUE,
		room_id VARCHAR(191) NOT NULL DEFAULT '',
		platform_user_id VARCHAR(191) NOT NULL DEFAULT '',
		platform_parent VARCHAR(191) NOT NULL DEFAULT '',
		content TEXT NOT NULL,
		is_command BOOLEAN NOT NULL DEFAULT FALSE,
		is_thread BOOLEAN NOT NULL DEFAULT FALSE,
		parent VARCHAR(64) NOT NULL DEFAULT '',
		created_at {ts} NOT NULL,
		updated_at {ts} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS scores (
		id VARCHAR(64) PRIMARY KEY,
		amount BIGINT NOT NULL,
		description TEXT NOT NULL,
		ref_kind VARCHAR(16) NOT NULL,
		ref_id VARCHAR(64) NOT NULL,
		user_id VARCHAR(191) NOT NULL DEFAULT '',
		occurred_at {ts} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS reactions (
		id VARCHAR(64) PRIMARY KEY,
		message_id VARCHAR(64) NOT NULL,
		platform_message_id VARCHAR(191) NOT NULL DEFAULT '',
		platform_user_id VARCHAR(191) NOT NULL DEFAULT '',
		username VARCHAR(191) NOT NULL DEFAULT '',
		content VARCHAR(191) NOT NULL,
		user_id VARCHAR(191) NOT NULL DEFAULT '',
		created_at {ts} NOT NULL
	)`,
}

type userRow struct {
	ID         string     `db:"id"`
	UUID       string     `db:"uuid"`
	Name       string     `db:"name"`
	Username   string     `db:"username"`
	Avatar     string     `db:"avatar"`
	Email      string     `db:"email"`
	Score      int64      `db:"score"`
	Level      int64      `db:"level"`
	IsCoreTeam bool       `db:"is_core_team"`
	Pro        bool       `db:"pro"`
	ProBeginAt *time.Time `db:"pro_begin_at"`
	RocketID   string     `db:"rocket_id"`
	GitHubID   string     `db:"github_id"`
	CreatedAt  time.Time  `db:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at"`
}

func (r userRow) user() core.User {
	return core.User{
		ID: core.UserID(r.ID), UUID: r.UUID, Name: r.Name, Username: r.Username, Avatar: r.Avatar,
		Email: r.Email, Score: r.Score, Level: r.Level, IsCoreTeam: r.IsCoreTeam, Pro: r.Pro,
		ProBeginAt: r.ProBeginAt, RocketID: r.RocketID, GitHubID: r.GitHubID,
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

const userColumns = `id, uuid, name, username, avatar, email, score, level, is_core_team, pro,
	pro_begin_at, rocket_id, github_id, created_at, updated_at`

// Users

func (s *Store) GetUser(ctx context.Context, id core.UserID) (core.User, error) {
	return s.getUserBy(ctx, "id", string(id))
}

func (s *Store) FindUserByRocketID(ctx context.Context, rocketID string) (core.User, error) {
	if rocketID == "" {
		return core.User{}, engine.ErrUserNotFound
	}
	return s.getUserBy(ctx, "rocket_id", rocketID)
}

func (s *Store) FindUserByUsername(ctx context.Context, username string) (core.User, error) {
	if username == "" {
		return core.User{}, engine.ErrUserNotFound
	}
	return s.getUserBy(ctx, "username", username)
}

func (s *Store) getUserBy(ctx context.Context, column, value string) (core.User, error) {
	var row userRow
	q := s.db.Rebind(`SELECT ` + userColumns + ` FROM users WHERE ` + column + ` = ? LIMIT 1`)
	if err := s.db.GetContext(ctx, &row, q, value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.User{}, fmt.Errorf("%w: %s=%s", engine.ErrUserNotFound, column, value)
		}
		return core.User{}, fmt.Errorf("failed to get user: %w", err)
	}
	return row.user(), nil
}

func (s *Store) SaveUser(ctx context.Context, u core.User) error {
	if _, err := core.NormalizeUserID(u.ID); err != nil {
		return err
	}
	now := s.now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = now
	}
	if u.Level < 1 {
		u.Level = 1
	}
	q := `INSERT INTO users (` + userColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)` + s.userUpsertClause()
	_, err := s.db.ExecContext(ctx, s.db.Rebind(q),
		string(u.ID), u.UUID, u.Name, u.Username, u.Avatar, u.Email, u.Score, u.Level, u.IsCoreTeam, u.Pro,
		u.ProBeginAt, u.RocketID, u.GitHubID, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

var userMutableColumns = []string{
	"uuid", "name", "username", "avatar", "email", "score", "level", "is_core_team", "pro",
	"pro_begin_at", "rocket_id", "github_id", "updated_at",
}

func (s *Store) userUpsertClause() string {
	sets := make([]string, 0, len(userMutableColumns))
	for _, c := range userMutableColumns {
		if s.driver == DriverMySQL {
			sets = append(sets, c+" = VALUES("+c+")")
		} else {
			sets = append(sets, c+" = EXCLUDED."+c)
		}
	}
	if s.driver == DriverMySQL {
		return " ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
	}
	return " ON CONFLICT (id) DO UPDATE SET " + strings.Join(sets, ", ")
}

func (s *Store) ListRanking(ctx context.Context, filter core.RankingFilter) ([]core.User, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = core.MaxPageLimit
	}
	var rows []userRow
	q := s.db.Rebind(`SELECT ` + userColumns + ` FROM users
		WHERE score > 0 AND is_core_team = ?
		ORDER BY score DESC, id ASC LIMIT ?`)
	if err := s.db.SelectContext(ctx, &rows, q, filter.CoreTeam, limit); err != nil {
		return nil, fmt.Errorf("failed to list ranking: %w", err)
	}
	out := make([]core.User, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.user())
	}
	return out, nil
}

// Interactions

type interactionRow struct {
	ID          string    `db:"id"`
	Origin      string    `db:"origin"`
	Kind        string    `db:"kind"`
	UserID      string    `db:"user_id"`
	Username    string    `db:"username"`
	Value       string    `db:"val"`
	Thread      bool      `db:"thread"`
	Description string    `db:"description"`
	Channel     string    `db:"channel"`
	Category    string    `db:"category"`
	Action      string    `db:"action"`
	Score       int64     `db:"score"`
	OccurredAt  time.Time `db:"occurred_at"`
}

func (s *Store) CreateInteraction(ctx context.Context, i core.Interaction) (core.Interaction, error) {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	if i.Date.IsZero() {
		i.Date = s.now().UTC()
	}
	q := s.db.Rebind(`INSERT INTO interactions
		(id, origin, kind, user_id, username, val, thread, description, channel, category, action, score, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, q, i.ID, string(i.Origin), string(i.Type), string(i.User), i.Username, i.Value,
		i.Thread, i.Description, i.Channel, string(i.Category), i.Action, i.Score, i.Date)
	if err != nil {
		return core.Interaction{}, fmt.Errorf("failed to create interaction: %w", err)
	}
	return i, nil
}

func (s *Store) ListInteractions(ctx context.Context, user core.UserID, from, to time.Time) ([]core.Interaction, error) {
	var rows []interactionRow
	q := s.db.Rebind(`SELECT id, origin, kind, user_id, username, val, thread, description, channel, category,
		action, score, occurred_at FROM interactions
		WHERE user_id = ? AND occurred_at >= ? AND occurred_at < ? ORDER BY occurred_at`)
	if err := s.db.SelectContext(ctx, &rows, q, string(user), from, to); err != nil {
		return nil, fmt.Errorf("failed to list interactions: %w", err)
	}
	out := make([]core.Interaction, 0, len(rows))
	for _, r := range rows {
		out = append(out, core.Interaction{
			ID: r.ID, Origin: core.Origin(r.Origin), Type: core.InteractionType(r.Kind), User: core.UserID(r.UserID),
			Username: r.Username, Value: r.Value, Thread: r.Thread, Description: r.Description, Channel: r.Channel,
			Category: core.Category(r.Category), Action: r.Action, Score: r.Score, Date: r.OccurredAt,
		})
	}
	return out, nil
}

// Messages

type messageRow struct {
	ID                string    `db:"id"`
	UserID            string    `db:"user_id"`
	PlatformMessageID string    `db:"platform_message_id"`
	RoomID            string    `db:"room_id"`
	PlatformUserID    string    `db:"platform_user_id"`
	PlatformParent    string    `db:"platform_parent"`
	Content           string    `db:"content"`
	IsCommand         bool      `db:"is_command"`
	IsThread          bool      `db:"is_thread"`
	Parent            string    `db:"parent"`
	CreatedAt         time.Time `db:"created_at"`
	UpdatedAt         time.Time `db:"updated_at"`
}

func (r messageRow) message() core.Message {
	return core.Message{
		ID:   r.ID,
		User: core.UserID(r.UserID),
		Platform: core.PlatformMessage{
			MessageID: r.PlatformMessageID, RoomID: r.RoomID, UserID: r.PlatformUserID, Parent: r.PlatformParent,
		},
		Content:   r.Content,
		Is:        core.MessageFlags{Command: r.IsCommand, Thread: r.IsThread},
		Parent:    r.Parent,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func (s *Store) FindMessage(ctx context.Context, platformID string) (core.Message, error) {
	var row messageRow
	q := s.db.Rebind(`SELECT id, user_id, platform_message_id, room_id, platform_user_id, platform_parent,
		content, is_command, is_thread, parent, created_at, updated_at
		FROM messages WHERE platform_message_id = ?`)
	if err := s.db.GetContext(ctx, &row, q, platformID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Message{}, fmt.Errorf("%w: %s", engine.ErrMessageNotFound, platformID)
		}
		return core.Message{}, fmt.Errorf("failed to find message: %w", err)
	}
	return row.message(), nil
}

func (s *Store) UpsertMessage(ctx context.Context, m core.Message) (core.Message, bool, error) {
	if m.Platform.MessageID == "" {
		return core.Message{}, false, fmt.Errorf("%w: empty platform message id", engine.ErrInvalidEvent)
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	now := s.now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now

	verb, suffix := "INSERT INTO", " ON CONFLICT (platform_message_id) DO NOTHING"
	if s.driver == DriverMySQL {
		verb, suffix = "INSERT IGNORE INTO", ""
	}
	q := s.db.Rebind(verb + ` messages (id, user_id, platform_message_id, room_id, platform_user_id, platform_parent,
		content, is_command, is_thread, parent, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)` + suffix)
	res, err := s.db.ExecContext(ctx, q, m.ID, string(m.User), m.Platform.MessageID, m.Platform.RoomID,
		m.Platform.UserID, m.Platform.Parent, m.Content, m.Is.Command, m.Is.Thread, m.Parent, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return core.Message{}, false, fmt.Errorf("failed to upsert message: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return m, true, nil
	}
	stored, err := s.FindMessage(ctx, m.Platform.MessageID)
	return stored, false, err
}

func (s *Store) SaveMessage(ctx context.Context, m core.Message) error {
	q := s.db.Rebind(`UPDATE messages SET user_id = ?, content = ?, is_command = ?, is_thread = ?, parent = ?,
		platform_parent = ?, updated_at = ? WHERE id = ?`)
	res, err := s.db.ExecContext(ctx, q, string(m.User), m.Content, m.Is.Command, m.Is.Thread, m.Parent,
		m.Platform.Parent, s.now().UTC(), m.ID)
	if err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", engine.ErrMessageNotFound, m.ID)
	}
	return nil
}

// Scores

type scoreRow struct {
	ID          string    `db:"id"`
	Amount      int64     `db:"amount"`
	Description string    `db:"description"`
	RefKind     string    `db:"ref_kind"`
	RefID       string    `db:"ref_id"`
	UserID      string    `db:"user_id"`
	OccurredAt  time.Time `db:"occurred_at"`
}

func (s *Store) CreateScore(ctx context.Context, sc core.Score) (core.Score, error) {
	if err := sc.Ref.Validate(); err != nil {
		return core.Score{}, err
	}
	if sc.ID == "" {
		sc.ID = uuid.NewString()
	}
	if sc.Date.IsZero() {
		sc.Date = s.now().UTC()
	}
	q := s.db.Rebind(`INSERT INTO scores (id, amount, description, ref_kind, ref_id, user_id, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, q, sc.ID, sc.Value, sc.Description, string(sc.Ref.Kind), sc.Ref.ID,
		string(sc.User), sc.Date); err != nil {
		return core.Score{}, fmt.Errorf("failed to create score: %w", err)
	}
	return sc, nil
}

func (s *Store) ListScores(ctx context.Context, ref core.Ref) ([]core.Score, error) {
	var rows []scoreRow
	q := s.db.Rebind(`SELECT id, amount, description, ref_kind, ref_id, user_id, occurred_at
		FROM scores WHERE ref_kind = ? AND ref_id = ? ORDER BY occurred_at`)
	if err := s.db.SelectContext(ctx, &rows, q, string(ref.Kind), ref.ID); err != nil {
		return nil, fmt.Errorf("failed to list scores: %w", err)
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

type reactionRow struct {
	ID                string    `db:"id"`
	MessageID         string    `db:"message_id"`
	PlatformMessageID string    `db:"platform_message_id"`
	PlatformUserID    string    `db:"platform_user_id"`
	Username          string    `db:"username"`
	Content           string    `db:"content"`
	UserID            string    `db:"user_id"`
	CreatedAt         time.Time `db:"created_at"`
}

func (s *Store) ListReactions(ctx context.Context, messageID string) ([]core.Reaction, error) {
	var rows []reactionRow
	q := s.db.Rebind(`SELECT id, message_id, platform_message_id, platform_user_id, username, content, user_id,
		created_at FROM reactions WHERE message_id = ? ORDER BY created_at`)
	if err := s.db.SelectContext(ctx, &rows, q, messageID); err != nil {
		return nil, fmt.Errorf("failed to list reactions: %w", err)
	}
	out := make([]core.Reaction, 0, len(rows))
	for _, r := range rows {
		out = append(out, core.Reaction{
			ID: r.ID, Message: r.MessageID, PlatformMessageID: r.PlatformMessageID, PlatformUserID: r.PlatformUserID,
			Username: r.Username, Content: r.Content, User: core.UserID(r.UserID), CreatedAt: r.CreatedAt,
		})
	}
	return out, nil
}

func (s *Store) CreateReaction(ctx context.Context, r core.Reaction) (core.Reaction, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now().UTC()
	}
	q := s.db.Rebind(`INSERT INTO reactions (id, message_id, platform_message_id, platform_user_id, username,
		content, user_id, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, q, r.ID, r.Message, r.PlatformMessageID, r.PlatformUserID, r.Username,
		r.Content, string(r.User), r.CreatedAt); err != nil {
		return core.Reaction{}, fmt.Errorf("failed to create reaction: %w", err)
	}
	return r, nil
}

func (s *Store) DeleteReaction(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM reactions WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete reaction: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", engine.ErrReactionNotFound, id)
	}
	return nil
}

// Rankings

func (s *Store) MonthlyScores(ctx context.Context, from, to time.Time, skip, limit int) ([]core.LeaderboardEntry, error) {
	var rows []core.LeaderboardEntry
	q := s.db.Rebind(`SELECT u.id, u.rocket_id, u.name, u.avatar, u.level, u.uuid, u.username, t.score
		FROM (
			SELECT user_id, SUM(score) AS score FROM interactions
			WHERE occurred_at >= ? AND occurred_at < ?
			GROUP BY user_id HAVING SUM(score) > 0
		) t
		JOIN users u ON u.id = t.user_id
		WHERE u.is_core_team = ? AND u.rocket_id <> ''
		ORDER BY t.score DESC, u.id ASC
		LIMIT ? OFFSET ?`)
	if err := s.db.SelectContext(ctx, &rows, q, from, to, false, limit, skip); err != nil {
		return nil, fmt.Errorf("failed to rank monthly scores: %w", err)
	}
	return rows, nil
}

func (s *Store) MostActive(ctx context.Context, aq core.ActiveQuery) ([]core.ActiveUser, error) {
	aq = aq.WithDefaults()
	args := []any{aq.Begin, aq.End}
	channelFilter := ""
	if aq.Channel != "" {
		channelFilter = ` AND i.channel = ?`
		args = append(args, aq.Channel)
	}
	args = append(args, aq.MinCount)
	q := s.db.Rebind(`SELECT i.user_id AS id, COALESCE(u.name, '') AS name, COALESCE(u.rocket_id, '') AS rocket_id,
		COALESCE(u.username, '') AS username, i.channel AS channel, COUNT(*) AS count
		FROM interactions i LEFT JOIN users u ON u.id = i.user_id
		WHERE i.occurred_at >= ? AND i.occurred_at <= ?` + channelFilter + `
		GROUP BY i.user_id, u.name, u.rocket_id, u.username, i.channel
		HAVING COUNT(*) >= ?
		ORDER BY COUNT(*) DESC, i.user_id ASC, i.channel ASC`)
	var rows []core.ActiveUser
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("failed to rank active users: %w", err)
	}
	return rows, nil
}

var _ engine.Storage = (*Store)(nil)
