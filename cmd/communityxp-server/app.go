package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	mem "communityxp/adapters/memory"
	redisAdapter "communityxp/adapters/redis"
	sqliteAdapter "communityxp/adapters/sqlite"
	sqlxAdapter "communityxp/adapters/sqlx"
	"communityxp/analytics"
	"communityxp/api/httpapi"
	"communityxp/config"
	"communityxp/core"
	"communityxp/engine"
	"communityxp/gamify"
	"communityxp/integrations/blog"
	"communityxp/integrations/github"
	"communityxp/integrations/rocket"
	"communityxp/integrations/webhook"
	"communityxp/realtime"
)

// App aggregates the assembled server components.
type App struct {
	Config *config.Config
	Logger *slog.Logger
	System *gamify.System
	Server *http.Server
}

// provideConfig reads .env, then the file named by COMMUNITYXP_CONFIG_FILE if set, then the
// environment.
func provideConfig() (*config.Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if path := os.Getenv("COMMUNITYXP_CONFIG_FILE"); path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

func provideLogger(cfg *config.Config) *slog.Logger {
	return setupLogging(cfg)
}

func provideHub() *realtime.Hub {
	return realtime.NewHub()
}

func provideMetrics(cfg *config.Config) *analytics.Metrics {
	if !cfg.Metrics.Enabled {
		return nil
	}
	return analytics.NewMetrics(cfg.Metrics.Namespace)
}

func provideStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (engine.Storage, func(), error) {
	return setupStorage(ctx, cfg, logger)
}

func provideCounter(cfg *config.Config) (engine.RateCounter, func(), error) {
	if !cfg.Storage.RedisEnabled {
		return mem.NewCounter(), func() {}, nil
	}
	counter, err := redisAdapter.New(cfg.Storage.Redis)
	if err != nil {
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	return counter, func() { _ = counter.Close() }, nil
}

func provideWebhooks(cfg *config.Config, logger *slog.Logger) *webhook.Sink {
	if len(cfg.Notify.Webhooks) == 0 {
		return nil
	}
	return webhook.New(cfg.Notify.Webhooks,
		webhook.WithClient(&http.Client{Timeout: cfg.Notify.Timeout}),
		webhook.WithLogger(logger),
	)
}

func provideNotifier(logger *slog.Logger, sink *webhook.Sink) engine.Notifier {
	notifiers := engine.MultiNotifier{engine.LogNotifier{Logger: logger}}
	if sink != nil {
		notifiers = append(notifiers, sink)
	}
	return notifiers
}

func provideSystem(
	cfg *config.Config,
	logger *slog.Logger,
	storage engine.Storage,
	counter engine.RateCounter,
	hub *realtime.Hub,
	metrics *analytics.Metrics,
	notifier engine.Notifier,
	sink *webhook.Sink,
) (*gamify.System, func(), error) {
	g := cfg.Gamification
	settings := engine.DefaultSettings()
	settings.DailyLimit = g.DailyLimit
	settings.AllowZeroRemaining = g.AllowZeroRemaining
	settings.NetworkChannel = g.NetworkChannel
	settings.Levels = g.LevelTable()
	settings.ProLevel = g.ProLevel
	settings.Logger = logger

	opts := []gamify.Option{
		gamify.WithStorage(storage),
		gamify.WithCounter(counter),
		gamify.WithSettings(settings),
		gamify.WithRuleEngine(engine.NewRuleEngine(core.LevelRule{Achievements: g.LevelAchievements})),
		gamify.WithDispatchMode(engine.DispatchAsync),
		gamify.WithRealtime(hub),
		gamify.WithNotifier(notifier),
		gamify.WithChatRewards(g.Rewards.Rocket),
		gamify.WithLogger(logger),
		gamify.WithControllers(
			rocket.NewController(g.Rewards.Rocket, rocket.FloodPolicy{Window: g.Flood.Window, MaxInteractions: g.Flood.MaxInteractions}, counter, g.Limits.Rocket),
			github.NewController(g.Rewards.GitHub, g.Limits.GitHub),
			blog.NewController(g.Rewards.Blog, counter, g.Flood.BlogWindow, g.Limits.Blog),
		),
	}
	if metrics != nil {
		opts = append(opts, gamify.WithMetrics(metrics))
	}
	sys, err := gamify.New(opts...)
	if err != nil {
		return nil, nil, err
	}
	if sink != nil {
		sys.Service.Subscribe(core.EventLevelUp, sink.OnEvent)
		sys.Service.Subscribe(core.EventAchievementUnlocked, sink.OnEvent)
	}
	return sys, sys.Close, nil
}

func provideHandler(sys *gamify.System, cfg *config.Config, logger *slog.Logger) http.Handler {
	return httpapi.NewMux(httpapi.Deps{
		Service:  sys.Service,
		Rankings: sys.Rankings,
		Messages: sys.Messages,
		Hub:      sys.Hub,
		Metrics:  sys.Metrics,
		Logger:   logger,
	}, httpapi.Options{
		PathPrefix:       cfg.Server.PathPrefix,
		AllowCORSOrigin:  cfg.Server.CORSOrigin,
		APIKeys:          cfg.Security.APIKeys,
		RateLimitEnabled: cfg.Security.EnableRateLimit,
		RateLimitRPM:     cfg.Security.RateLimit.RequestsPerMinute,
		RateLimitBurst:   cfg.Security.RateLimit.BurstSize,
		MetricsPath:      cfg.Metrics.Path,
	})
}

func provideServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           handler,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}
}

// setupLogging configures the logger based on configuration.
func setupLogging(cfg *config.Config) *slog.Logger {
	var out io.Writer = os.Stdout
	if cfg.Logging.Output == "stderr" {
		out = os.Stderr
	}

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Logging.Level),
	}

	var handler slog.Handler
	switch cfg.Logging.Format {
	case "text":
		handler = slog.NewTextHandler(out, opts)
	default:
		handler = slog.NewJSONHandler(out, opts)
	}

	if len(cfg.Logging.Attributes) > 0 {
		handler = handler.WithAttrs(convertAttributes(cfg.Logging.Attributes))
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// convertAttributes converts map[string]string to []slog.Attr.
func convertAttributes(attrs map[string]string) []slog.Attr {
	result := make([]slog.Attr, 0, len(attrs))
	for k, v := range attrs {
		result = append(result, slog.String(k, v))
	}
	return result
}

// setupStorage creates the storage adapter named by configuration, migrating SQL schemas
// when enabled.
func setupStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (engine.Storage, func(), error) {
	switch cfg.Storage.Adapter {
	case config.AdapterMemory:
		return mem.New(), func() {}, nil
	case config.AdapterSQL:
		store, err := sqlxAdapter.New(ctx, cfg.Storage.SQL)
		if err != nil {
			return nil, nil, err
		}
		if cfg.Storage.Migrate {
			if err := store.Migrate(ctx); err != nil {
				_ = store.Close()
				return nil, nil, fmt.Errorf("migrate: %w", err)
			}
		}
		return store, closer(logger, "sql", store.Close), nil
	case config.AdapterSQLite:
		store, err := sqliteAdapter.Open(cfg.Storage.SQLite.Path)
		if err != nil {
			return nil, nil, err
		}
		return store, closer(logger, "sqlite", store.Close), nil
	default:
		return nil, nil, fmt.Errorf("unknown storage adapter: %s", cfg.Storage.Adapter)
	}
}

func closer(logger *slog.Logger, name string, fn func() error) func() {
	return func() {
		if err := fn(); err != nil {
			logger.Warn("closing storage failed", "adapter", name, "error", err)
		}
	}
}
