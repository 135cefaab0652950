package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"communityxp/adapters/sqlx"
)

func validBase() *Config {
	return &Config{
		Environment: EnvDevelopment,
		Server: ServerConfig{
			Address:           ":8080",
			ReadTimeout:       time.Second,
			WriteTimeout:      time.Second,
			IdleTimeout:       time.Second,
			ReadHeaderTimeout: time.Second,
			ShutdownTimeout:   time.Second,
		},
		Storage: StorageConfig{Adapter: AdapterMemory},
		Logging: LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
	}
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, EnvDevelopment, cfg.Environment)
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, AdapterMemory, cfg.Storage.Adapter)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, int64(50), cfg.Gamification.DailyLimit)
	assert.Equal(t, "network", cfg.Gamification.NetworkChannel)
	assert.Equal(t, int64(1), cfg.Gamification.Rewards.Rocket.MessageSend)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("COMMUNITYXP_SERVER_ADDR", ":7070")
	t.Setenv("COMMUNITYXP_DAILY_LIMIT", "30")
	t.Setenv("COMMUNITYXP_FLOOD_WINDOW", "30s")
	t.Setenv("COMMUNITYXP_SECURITY_API_KEYS", "a, b")
	t.Setenv("COMMUNITYXP_REDIS_ADDR", "redis:6379")
	t.Setenv("COMMUNITYXP_LOG_ATTRIBUTES", "service=cxp,region=eu")
	t.Setenv("COMMUNITYXP_LEVELS", "10,20,30")
	t.Setenv("COMMUNITYXP_LEVEL_ACHIEVEMENTS", "2=rookie,3=regular")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Server.Address)
	assert.Equal(t, int64(30), cfg.Gamification.DailyLimit)
	assert.Equal(t, 30*time.Second, cfg.Gamification.Flood.Window)
	assert.Equal(t, []string{"a", "b"}, cfg.Security.APIKeys)
	assert.Equal(t, "redis:6379", cfg.Storage.Redis.Addr)
	assert.Equal(t, map[string]string{"service": "cxp", "region": "eu"}, cfg.Logging.Attributes)
	assert.Equal(t, []int64{10, 20, 30}, cfg.Gamification.Levels)
	assert.Equal(t, map[int64]string{2: "rookie", 3: "regular"}, cfg.Gamification.LevelAchievements)

	t.Setenv("COMMUNITYXP_DAILY_LIMIT", "lots")
	_, err = Load()
	assert.Error(t, err)
}

func TestLoadFromFile(t *testing.T) {
	path := writeTemp(t, "config.json", `{
		"environment": "testing",
		"server": {"address": ":9090"},
		"storage": {"adapter": "memory"},
		"gamification": {"level_achievements": {"3": "regular"}}
	}`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, EnvTesting, cfg.Environment)
	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.Equal(t, AdapterMemory, cfg.Storage.Adapter)
	assert.Equal(t, map[int64]string{3: "regular"}, cfg.Gamification.LevelAchievements)
	assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeout, "unset keys keep defaults")
}

func TestLoadFromYAMLFile(t *testing.T) {
	path := writeTemp(t, "config.yaml", `
environment: staging
storage:
  adapter: sqlite
  sqlite:
    path: /tmp/cxp.db
gamification:
  daily_limit: 20
  allow_zero_remaining: true
  levels: [10, 20, 40]
  level_achievements:
    2: rookie
  flood:
    window: 2m
    max_interactions: 5
  rewards:
    rocket:
      message_send: 2
      thread_receive: 4
    github:
      pull_request: 8
  limits:
    blog: 15
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, EnvStaging, cfg.Environment)
	assert.Equal(t, AdapterSQLite, cfg.Storage.Adapter)
	assert.Equal(t, "/tmp/cxp.db", cfg.Storage.SQLite.Path)

	g := cfg.Gamification
	assert.Equal(t, int64(20), g.DailyLimit)
	assert.True(t, g.AllowZeroRemaining)
	assert.Equal(t, []int64{10, 20, 40}, []int64(g.LevelTable()))
	assert.Equal(t, "rookie", g.LevelAchievements[2])
	assert.Equal(t, 2*time.Minute, g.Flood.Window)
	assert.Equal(t, int64(5), g.Flood.MaxInteractions)
	assert.Equal(t, int64(2), g.Rewards.Rocket.MessageSend)
	assert.Equal(t, int64(4), g.Rewards.Rocket.ThreadReceive)
	assert.Equal(t, int64(2), g.Rewards.Rocket.ThreadSend, "unset reward keeps its default")
	assert.Equal(t, int64(8), g.Rewards.GitHub.PullRequest)
	assert.Equal(t, int64(15), g.Limits.Blog)
}

func TestLoadFromFileRejectsInvalid(t *testing.T) {
	path := writeTemp(t, "bad.yml", "gamification:\n  levels: [10, 5]\n")
	_, err := LoadFromFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "levels")

	path = writeTemp(t, "broken.json", "{")
	_, err = LoadFromFile(path)
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
	}{
		{"valid config", func(*Config) {}, false},
		{"invalid environment", func(c *Config) { c.Environment = "" }, true},
		{"invalid server timeout", func(c *Config) { c.Server.ReadTimeout = 0 }, true},
		{"unknown adapter", func(c *Config) { c.Storage.Adapter = "file" }, true},
		{"sql without dsn", func(c *Config) {
			c.Storage.Adapter = AdapterSQL
			c.Storage.SQL = sqlx.DefaultConfig(sqlx.DriverMySQL)
		}, true},
		{"sql with dsn", func(c *Config) {
			c.Storage.Adapter = AdapterSQL
			c.Storage.SQL = sqlx.DefaultConfig(sqlx.DriverPostgres)
			c.Storage.SQL.DSN = "postgres://localhost/cxp"
		}, false},
		{"sqlite without path", func(c *Config) { c.Storage.Adapter = AdapterSQLite }, true},
		{"redis without addr", func(c *Config) { c.Storage.RedisEnabled = true }, true},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }, true},
		{"metrics path", func(c *Config) { c.Metrics = MetricsConfig{Enabled: true, Path: "metrics"} }, true},
		{"rate limit without rpm", func(c *Config) { c.Security.EnableRateLimit = true }, true},
		{"empty api key", func(c *Config) { c.Security.APIKeys = []string{" "} }, true},
		{"bad webhook", func(c *Config) { c.Notify = NotifyConfig{Webhooks: []string{"ftp://x"}, Timeout: time.Second} }, true},
		{"good webhook", func(c *Config) { c.Notify = NotifyConfig{Webhooks: []string{"https://hooks.example.com/x"}, Timeout: time.Second} }, false},
		{"negative daily limit", func(c *Config) { c.Gamification.DailyLimit = -1 }, true},
		{"achievement at level one", func(c *Config) { c.Gamification.LevelAchievements = map[int64]string{1: "x"} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validBase()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestStringRedactsSecrets(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Storage.SQL.DSN = "postgres://user:pw@db/cxp"
	cfg.Storage.Redis.Password = "hunter2"
	cfg.Security.APIKeys = []string{"k1"}

	s := cfg.String()
	assert.NotContains(t, s, "hunter2")
	assert.NotContains(t, s, "user:pw")
	assert.NotContains(t, s, "k1")
	assert.Contains(t, s, "[REDACTED]")
}

func TestValidateConfigPath(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "c.json")
	ymlPath := filepath.Join(dir, "c.yml")
	txtPath := filepath.Join(dir, "c.txt")
	for _, p := range []string{jsonPath, ymlPath, txtPath} {
		require.NoError(t, os.WriteFile(p, []byte("{}"), 0o600))
	}

	tests := []struct {
		name        string
		path        string
		expectError bool
	}{
		{"valid json file", jsonPath, false},
		{"valid yaml file", ymlPath, false},
		{"empty path", "", true},
		{"path traversal", "../../../etc/passwd", true},
		{"non-config file", txtPath, true},
		{"nonexistent file", filepath.Join(dir, "missing.json"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateConfigPath(tt.path)
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
