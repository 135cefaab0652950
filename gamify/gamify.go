// Package gamify assembles the scoring engine, integrations and read models into one System.
package gamify

import (
	"fmt"
	"log/slog"
	"time"

	mem "communityxp/adapters/memory"
	"communityxp/analytics"
	"communityxp/commands"
	"communityxp/engine"
	"communityxp/integrations/blog"
	"communityxp/integrations/github"
	"communityxp/integrations/rocket"
	"communityxp/leaderboard"
	"communityxp/realtime"
)

// Option configures the System builder.
type Option func(*config)

type config struct {
	storage     engine.Storage
	counter     engine.RateCounter
	mode        engine.DispatchMode
	rules       engine.RuleEngine
	settings    engine.Settings
	hub         *realtime.Hub
	metrics     *analytics.Metrics
	notifier    engine.Notifier
	controllers []engine.ModuleController
	rewards     rocket.Rewards
	logger      *slog.Logger
}

// WithStorage sets the persistence adapter.
func WithStorage(s engine.Storage) Option { return func(c *config) { c.storage = s } }

// WithCounter sets the flood counter shared by the default controllers.
func WithCounter(rc engine.RateCounter) Option { return func(c *config) { c.counter = rc } }

// WithRuleEngine sets the rule engine.
func WithRuleEngine(r engine.RuleEngine) Option { return func(c *config) { c.rules = r } }

// WithDispatchMode selects sync or async event dispatch.
func WithDispatchMode(m engine.DispatchMode) Option { return func(c *config) { c.mode = m } }

// WithSettings sets the scoring policy.
func WithSettings(s engine.Settings) Option { return func(c *config) { c.settings = s } }

// WithRealtime wires a realtime hub to receive all engine events.
func WithRealtime(h *realtime.Hub) Option { return func(c *config) { c.hub = h } }

// WithMetrics subscribes Prometheus collectors to all engine events.
func WithMetrics(m *analytics.Metrics) Option { return func(c *config) { c.metrics = m } }

// WithNotifier sets the sink for operational notifications.
func WithNotifier(n engine.Notifier) Option { return func(c *config) { c.notifier = n } }

// WithControllers replaces the default rocket, github and blog controllers.
func WithControllers(ctrls ...engine.ModuleController) Option {
	return func(c *config) { c.controllers = append(c.controllers, ctrls...) }
}

// WithChatRewards sets the rewards applied by the chat message handler.
func WithChatRewards(r rocket.Rewards) Option { return func(c *config) { c.rewards = r } }

// WithLogger sets the logger used by the engine and handlers.
func WithLogger(l *slog.Logger) Option { return func(c *config) { c.logger = l } }

// System is an assembled community scoring backend.
type System struct {
	Service  *engine.Service
	Rankings *leaderboard.Service
	Messages *rocket.MessageHandler
	Commands *commands.Registry
	Hub      *realtime.Hub
	Metrics  *analytics.Metrics
}

// Close stops event dispatch.
func (s *System) Close() { s.Service.Close() }

// New builds a System. If not provided, defaults are used:
//   - storage and flood counter: in-memory
//   - rules: DefaultRuleEngine
//   - dispatch: async
//   - controllers: rocket, github and blog with default rewards
func New(opts ...Option) (*System, error) {
	cfg := &config{
		mode:     engine.DispatchAsync,
		rules:    engine.DefaultRuleEngine(),
		settings: engine.DefaultSettings(),
		rewards:  rocket.DefaultRewards(),
	}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	if cfg.settings.Logger == nil {
		cfg.settings.Logger = cfg.logger
	}
	if cfg.storage == nil {
		cfg.storage = mem.New()
	}
	if cfg.counter == nil {
		cfg.counter = mem.NewCounter()
	}

	bus := engine.NewEventBus(cfg.mode)
	svc := engine.NewService(cfg.storage, bus, cfg.rules, cfg.settings)
	if cfg.notifier != nil {
		svc.SetNotifier(cfg.notifier)
	}
	if cfg.hub != nil {
		bus.SubscribeAll(cfg.hub.Broadcast)
	}
	if cfg.metrics != nil {
		analytics.NewBridge(cfg.metrics).Attach(bus)
	}

	controllers := cfg.controllers
	if len(controllers) == 0 {
		controllers = DefaultControllers(cfg.counter, cfg.rewards)
	}
	for _, c := range controllers {
		svc.RegisterController(c)
	}

	registry := commands.NewRegistry()
	if err := commands.RegisterDefaults(registry, cfg.storage); err != nil {
		svc.Close()
		return nil, fmt.Errorf("register commands: %w", err)
	}
	messages := rocket.NewMessageHandler(cfg.storage, svc, registry, cfg.rewards,
		rocket.WithNotifier(svc.Notifier()),
		rocket.WithPublisher(svc),
		rocket.WithLogger(cfg.logger),
	)

	return &System{
		Service:  svc,
		Rankings: leaderboard.NewService(cfg.storage, cfg.settings.Now),
		Messages: messages,
		Commands: registry,
		Hub:      cfg.hub,
		Metrics:  cfg.metrics,
	}, nil
}

// DefaultControllers returns the stock integrations: chat bursts over ten interactions a
// minute and repeated blog text within a day count as flood.
func DefaultControllers(counter engine.RateCounter, chat rocket.Rewards) []engine.ModuleController {
	return []engine.ModuleController{
		rocket.NewController(chat, rocket.FloodPolicy{Window: time.Minute, MaxInteractions: 10}, counter, 0),
		github.NewController(github.DefaultRewards(), 0),
		blog.NewController(blog.DefaultRewards(), counter, 24*time.Hour, 0),
	}
}
