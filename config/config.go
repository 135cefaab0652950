package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"communityxp/adapters/redis"
	"communityxp/adapters/sqlx"
	"communityxp/core"
	"communityxp/integrations/blog"
	"communityxp/integrations/github"
	"communityxp/integrations/rocket"
)

// Environment represents the deployment environment
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Storage adapters.
const (
	AdapterMemory = "memory"
	AdapterSQL    = "sql"
	AdapterSQLite = "sqlite"
)

// Config holds the complete application configuration
type Config struct {
	Environment Environment `json:"environment" yaml:"environment" env:"COMMUNITYXP_ENV"`

	Server       ServerConfig       `json:"server" yaml:"server"`
	Storage      StorageConfig      `json:"storage" yaml:"storage"`
	Logging      LoggingConfig      `json:"logging" yaml:"logging"`
	Metrics      MetricsConfig      `json:"metrics" yaml:"metrics"`
	Security     SecurityConfig     `json:"security" yaml:"security"`
	Notify       NotifyConfig       `json:"notify" yaml:"notify"`
	Gamification GamificationConfig `json:"gamification" yaml:"gamification"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Address           string        `json:"address" yaml:"address" env:"COMMUNITYXP_SERVER_ADDR"`
	PathPrefix        string        `json:"path_prefix" yaml:"path_prefix" env:"COMMUNITYXP_SERVER_PATH_PREFIX"`
	CORSOrigin        string        `json:"cors_origin" yaml:"cors_origin" env:"COMMUNITYXP_SERVER_CORS_ORIGIN"`
	ReadTimeout       time.Duration `json:"read_timeout" yaml:"read_timeout" env:"COMMUNITYXP_SERVER_READ_TIMEOUT"`
	WriteTimeout      time.Duration `json:"write_timeout" yaml:"write_timeout" env:"COMMUNITYXP_SERVER_WRITE_TIMEOUT"`
	IdleTimeout       time.Duration `json:"idle_timeout" yaml:"idle_timeout" env:"COMMUNITYXP_SERVER_IDLE_TIMEOUT"`
	ReadHeaderTimeout time.Duration `json:"read_header_timeout" yaml:"read_header_timeout" env:"COMMUNITYXP_SERVER_READ_HEADER_TIMEOUT"`
	ShutdownTimeout   time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" env:"COMMUNITYXP_SERVER_SHUTDOWN_TIMEOUT"`
}

// StorageConfig holds storage adapter configuration. Redis backs the flood counters when
// enabled; otherwise counters are kept in process.
type StorageConfig struct {
	Adapter      string       `json:"adapter" yaml:"adapter" env:"COMMUNITYXP_STORAGE_ADAPTER"`
	Migrate      bool         `json:"migrate" yaml:"migrate" env:"COMMUNITYXP_STORAGE_MIGRATE"`
	RedisEnabled bool         `json:"redis_enabled" yaml:"redis_enabled" env:"COMMUNITYXP_REDIS_ENABLED"`
	Redis        redis.Config `json:"redis,omitempty" yaml:"redis,omitempty"`
	SQL          sqlx.Config  `json:"sql,omitempty" yaml:"sql,omitempty"`
	SQLite       SQLiteConfig `json:"sqlite,omitempty" yaml:"sqlite,omitempty"`
}

// SQLiteConfig holds embedded database configuration
type SQLiteConfig struct {
	Path string `json:"path" yaml:"path" env:"COMMUNITYXP_SQLITE_PATH"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string            `json:"level" yaml:"level" env:"COMMUNITYXP_LOG_LEVEL"`
	Format     string            `json:"format" yaml:"format" env:"COMMUNITYXP_LOG_FORMAT"`
	Output     string            `json:"output" yaml:"output" env:"COMMUNITYXP_LOG_OUTPUT"`
	Attributes map[string]string `json:"attributes,omitempty" yaml:"attributes,omitempty" env:"COMMUNITYXP_LOG_ATTRIBUTES"`
}

// MetricsConfig holds metrics configuration. Metrics are served on the API listener.
type MetricsConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled" env:"COMMUNITYXP_METRICS_ENABLED"`
	Path      string `json:"path" yaml:"path" env:"COMMUNITYXP_METRICS_PATH"`
	Namespace string `json:"namespace" yaml:"namespace" env:"COMMUNITYXP_METRICS_NAMESPACE"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	EnableRateLimit bool            `json:"enable_rate_limit" yaml:"enable_rate_limit" env:"COMMUNITYXP_SECURITY_RATE_LIMIT_ENABLED"`
	RateLimit       RateLimitConfig `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"`
	APIKeys         []string        `json:"api_keys,omitempty" yaml:"api_keys,omitempty" env:"COMMUNITYXP_SECURITY_API_KEYS"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int `json:"requests_per_minute" yaml:"requests_per_minute" env:"COMMUNITYXP_SECURITY_RATE_LIMIT_RPM"`
	BurstSize         int `json:"burst_size" yaml:"burst_size" env:"COMMUNITYXP_SECURITY_RATE_LIMIT_BURST"`
}

// NotifyConfig lists where operational notifications are delivered besides the log.
type NotifyConfig struct {
	Webhooks []string      `json:"webhooks,omitempty" yaml:"webhooks,omitempty" env:"COMMUNITYXP_NOTIFY_WEBHOOKS"`
	Timeout  time.Duration `json:"timeout" yaml:"timeout" env:"COMMUNITYXP_NOTIFY_TIMEOUT"`
}

// GamificationConfig holds the scoring policy.
type GamificationConfig struct {
	DailyLimit         int64            `json:"daily_limit" yaml:"daily_limit" env:"COMMUNITYXP_DAILY_LIMIT"`
	AllowZeroRemaining bool             `json:"allow_zero_remaining" yaml:"allow_zero_remaining" env:"COMMUNITYXP_ALLOW_ZERO_REMAINING"`
	NetworkChannel     string           `json:"network_channel" yaml:"network_channel" env:"COMMUNITYXP_NETWORK_CHANNEL"`
	ProLevel           int64            `json:"pro_level" yaml:"pro_level" env:"COMMUNITYXP_PRO_LEVEL"`
	Levels             []int64          `json:"levels,omitempty" yaml:"levels,omitempty" env:"COMMUNITYXP_LEVELS"`
	LevelAchievements  map[int64]string `json:"level_achievements,omitempty" yaml:"level_achievements,omitempty" env:"COMMUNITYXP_LEVEL_ACHIEVEMENTS"`
	Limits             ModuleLimits     `json:"limits" yaml:"limits"`
	Flood              FloodConfig      `json:"flood" yaml:"flood"`
	Rewards            RewardsConfig    `json:"rewards" yaml:"rewards"`
}

// ModuleLimits overrides the daily limit per integration. Zero falls back to DailyLimit.
type ModuleLimits struct {
	Rocket int64 `json:"rocket" yaml:"rocket" env:"COMMUNITYXP_LIMIT_ROCKET"`
	GitHub int64 `json:"github" yaml:"github" env:"COMMUNITYXP_LIMIT_GITHUB"`
	Blog   int64 `json:"blog" yaml:"blog" env:"COMMUNITYXP_LIMIT_BLOG"`
}

// FloodConfig bounds chat bursts and repeated blog text.
type FloodConfig struct {
	Window          time.Duration `json:"window" yaml:"window" env:"COMMUNITYXP_FLOOD_WINDOW"`
	MaxInteractions int64         `json:"max_interactions" yaml:"max_interactions" env:"COMMUNITYXP_FLOOD_MAX"`
	BlogWindow      time.Duration `json:"blog_window" yaml:"blog_window" env:"COMMUNITYXP_FLOOD_BLOG_WINDOW"`
}

// RewardsConfig holds the score per action of every integration.
type RewardsConfig struct {
	Rocket rocket.Rewards `json:"rocket" yaml:"rocket"`
	GitHub github.Rewards `json:"github" yaml:"github"`
	Blog   blog.Rewards   `json:"blog" yaml:"blog"`
}

// LevelTable returns the configured thresholds, or the defaults when none are set.
func (g GamificationConfig) LevelTable() core.LevelTable {
	if len(g.Levels) == 0 {
		return core.DefaultLevels
	}
	return core.LevelTable(g.Levels)
}

// Validate validates security settings.
func (s SecurityConfig) Validate() error {
	var errs []string
	if s.EnableRateLimit {
		if s.RateLimit.RequestsPerMinute <= 0 {
			errs = append(errs, "rate_limit.requests_per_minute must be > 0 when rate limiting is enabled")
		}
		if s.RateLimit.BurstSize <= 0 {
			errs = append(errs, "rate_limit.burst_size must be > 0 when rate limiting is enabled")
		}
	}
	for i, key := range s.APIKeys {
		if strings.TrimSpace(key) == "" {
			errs = append(errs, fmt.Sprintf("api_keys[%d] is empty", i))
		}
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// Load loads configuration from environment variables and validates it
func Load() (*Config, error) {
	cfg := DefaultConfig()

	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// validateConfigPath validates that the config file path is safe
func validateConfigPath(path string) error {
	if path == "" {
		return errors.New("config file path cannot be empty")
	}

	cleanPath := filepath.Clean(path)

	switch strings.ToLower(filepath.Ext(cleanPath)) {
	case ".json", ".yaml", ".yml":
	default:
		return errors.New("config file must have .json, .yaml or .yml extension")
	}

	if _, err := os.Stat(cleanPath); err != nil {
		return fmt.Errorf("config file not accessible: %w", err)
	}

	return nil
}

// LoadFromFile loads configuration from a JSON or YAML file. Environment variables
// override file values.
func LoadFromFile(path string) (*Config, error) {
	if err := validateConfigPath(path); err != nil {
		return nil, fmt.Errorf("invalid config file path: %w", err)
	}

	file, err := os.Open(path) // #nosec G304 - Path validated above
	if err != nil {
		return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults for development
func DefaultConfig() *Config {
	return &Config{
		Environment: EnvDevelopment,
		Server: ServerConfig{
			Address:           ":8080",
			PathPrefix:        "/api",
			CORSOrigin:        "*",
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   30 * time.Second,
		},
		Storage: StorageConfig{
			Adapter: AdapterMemory,
			Migrate: true,
			Redis:   redis.DefaultConfig(),
			SQL:     sqlx.DefaultConfig(sqlx.DriverPostgres),
			SQLite:  SQLiteConfig{Path: "./data/communityxp.db"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled:   false,
			Path:      "/metrics",
			Namespace: "communityxp",
		},
		Security: SecurityConfig{
			EnableRateLimit: false,
			RateLimit: RateLimitConfig{
				RequestsPerMinute: 60,
				BurstSize:         10,
			},
			APIKeys: []string{},
		},
		Notify: NotifyConfig{
			Timeout: 5 * time.Second,
		},
		Gamification: GamificationConfig{
			DailyLimit:     50,
			NetworkChannel: "network",
			ProLevel:       5,
			Flood: FloodConfig{
				Window:          time.Minute,
				MaxInteractions: 10,
				BlogWindow:      24 * time.Hour,
			},
			Rewards: RewardsConfig{
				Rocket: rocket.DefaultRewards(),
				GitHub: github.DefaultRewards(),
				Blog:   blog.DefaultRewards(),
			},
		},
	}
}

// Validate validates the configuration and returns detailed error messages
func (c *Config) Validate() error {
	var errs []string

	if c.Environment == "" {
		errs = append(errs, "environment cannot be empty")
	}

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Storage.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("storage config: %v", err))
	}

	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("logging config: %v", err))
	}

	if err := c.Metrics.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("metrics config: %v", err))
	}

	if err := c.Security.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("security config: %v", err))
	}

	if err := c.Notify.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("notify config: %v", err))
	}

	if err := c.Gamification.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("gamification config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

// String returns a JSON representation of the config (with secrets redacted)
func (c *Config) String() string {
	cfg := *c

	if cfg.Storage.SQL.DSN != "" {
		cfg.Storage.SQL.DSN = "[REDACTED]"
	}
	if cfg.Storage.Redis.Password != "" {
		cfg.Storage.Redis.Password = "[REDACTED]"
	}
	if len(cfg.Security.APIKeys) > 0 {
		cfg.Security.APIKeys = []string{"[REDACTED]"}
	}

	data, _ := json.MarshalIndent(cfg, "", "  ")
	return string(data)
}
