package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"

	"communityxp/adapters/sqlx"
)

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	var errs []string

	if s.Address == "" {
		errs = append(errs, "address cannot be empty")
	}

	if s.ReadTimeout <= 0 {
		errs = append(errs, "read_timeout must be positive")
	}

	if s.WriteTimeout <= 0 {
		errs = append(errs, "write_timeout must be positive")
	}

	if s.IdleTimeout <= 0 {
		errs = append(errs, "idle_timeout must be positive")
	}

	if s.ReadHeaderTimeout <= 0 {
		errs = append(errs, "read_header_timeout must be positive")
	}

	if s.ShutdownTimeout <= 0 {
		errs = append(errs, "shutdown_timeout must be positive")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

// Validate validates storage configuration
func (s *StorageConfig) Validate() error {
	var errs []string

	validAdapters := []string{AdapterMemory, AdapterSQL, AdapterSQLite}
	if !slices.Contains(validAdapters, s.Adapter) {
		errs = append(errs, fmt.Sprintf("adapter must be one of: %s", strings.Join(validAdapters, ", ")))
	}

	switch s.Adapter {
	case AdapterSQL:
		if s.SQL.Driver != sqlx.DriverPostgres && s.SQL.Driver != sqlx.DriverMySQL {
			errs = append(errs, "sql.driver must be postgres or mysql")
		}
		if s.SQL.DSN == "" {
			errs = append(errs, "sql.dsn cannot be empty")
		}
	case AdapterSQLite:
		if err := s.SQLite.Validate(); err != nil {
			errs = append(errs, fmt.Sprintf("sqlite config: %v", err))
		}
	}

	if s.RedisEnabled && s.Redis.Addr == "" {
		errs = append(errs, "redis.addr cannot be empty when redis is enabled")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

// Validate validates embedded database configuration
func (f *SQLiteConfig) Validate() error {
	if f.Path == "" {
		return errors.New("path cannot be empty")
	}
	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	var errs []string

	validLevels := []string{"debug", "info", "warn", "error"}
	isValidLevel := false
	for _, level := range validLevels {
		if l.Level == level {
			isValidLevel = true
			break
		}
	}

	if !isValidLevel {
		errs = append(errs, fmt.Sprintf("level must be one of: %s", strings.Join(validLevels, ", ")))
	}

	validFormats := []string{"json", "text"}
	isValidFormat := false
	for _, format := range validFormats {
		if l.Format == format {
			isValidFormat = true
			break
		}
	}

	if !isValidFormat {
		errs = append(errs, fmt.Sprintf("format must be one of: %s", strings.Join(validFormats, ", ")))
	}

	validOutputs := []string{"stdout", "stderr"}
	isValidOutput := false
	for _, output := range validOutputs {
		if l.Output == output {
			isValidOutput = true
			break
		}
	}

	if !isValidOutput {
		errs = append(errs, fmt.Sprintf("output must be one of: %s", strings.Join(validOutputs, ", ")))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

// Validate validates metrics configuration
func (m *MetricsConfig) Validate() error {
	var errs []string

	if m.Enabled {
		if !strings.HasPrefix(m.Path, "/") {
			errs = append(errs, "path must start with / when metrics are enabled")
		}
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

// Validate validates notification sinks
func (n *NotifyConfig) Validate() error {
	var errs []string
	for i, endpoint := range n.Webhooks {
		u, err := url.Parse(strings.TrimSpace(endpoint))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Sprintf("webhooks[%d] must be an http(s) URL", i))
		}
	}
	if len(n.Webhooks) > 0 && n.Timeout <= 0 {
		errs = append(errs, "timeout must be positive when webhooks are set")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// Validate validates the scoring policy
func (g *GamificationConfig) Validate() error {
	var errs []string

	if g.DailyLimit < 0 {
		errs = append(errs, "daily_limit cannot be negative")
	}
	if g.Limits.Rocket < 0 || g.Limits.GitHub < 0 || g.Limits.Blog < 0 {
		errs = append(errs, "limits cannot be negative")
	}
	if g.ProLevel < 0 {
		errs = append(errs, "pro_level cannot be negative")
	}
	if g.Flood.Window < 0 || g.Flood.BlogWindow < 0 {
		errs = append(errs, "flood windows cannot be negative")
	}
	if g.Flood.MaxInteractions < 0 {
		errs = append(errs, "flood.max_interactions cannot be negative")
	}
	if err := g.LevelTable().Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("levels: %v", err))
	}
	for level := range g.LevelAchievements {
		if level < 2 {
			errs = append(errs, fmt.Sprintf("level_achievements: level %d is never reached by a level change", level))
		}
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}
