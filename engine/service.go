package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"communityxp/core"
)

const (
	// SystemDescription is the description of system-generated inactivity interactions.
	SystemDescription = "system action"
	// InactivityChannel is the channel recorded for inactivity penalties.
	InactivityChannel = "matrix"
)

// Settings holds the scoring policy knobs of a Service.
type Settings struct {
	// DailyLimit is the global per-user daily score cap used when a controller declares none.
	DailyLimit int64
	// AllowZeroRemaining keeps scoring allowed when exactly zero of the daily limit remains.
	AllowZeroRemaining bool
	// NetworkChannel is the channel recorded for manual grants.
	NetworkChannel string
	Levels         core.LevelTable
	// ProLevel is the level from which a user is considered pro. Zero disables it.
	ProLevel int64
	Now      func() time.Time
	Logger   *slog.Logger
}

// DefaultSettings returns the policy used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		DailyLimit:     50,
		NetworkChannel: "network",
		Levels:         core.DefaultLevels,
		ProLevel:       5,
		Now:            time.Now,
		Logger:         slog.Default(),
	}
}

// Service wires storage, event bus, rules and platform integrations into the scoring pipeline.
type Service struct {
	storage  Storage
	bus      *EventBus
	rules    RuleEngine
	settings Settings

	mu           sync.RWMutex
	controllers  map[core.Origin]ModuleController
	achievements []AchievementHandler
	temporary    []AchievementHandler
	notifier     Notifier
}

func NewService(storage Storage, bus *EventBus, rules RuleEngine, settings Settings) *Service {
	if storage == nil || bus == nil || rules == nil {
		panic("NewService requires non-nil storage, bus, and rules")
	}
	defaults := DefaultSettings()
	if settings.Now == nil {
		settings.Now = defaults.Now
	}
	if settings.Logger == nil {
		settings.Logger = defaults.Logger
	}
	if len(settings.Levels) == 0 {
		settings.Levels = defaults.Levels
	}
	if settings.NetworkChannel == "" {
		settings.NetworkChannel = defaults.NetworkChannel
	}
	return &Service{
		storage:     storage,
		bus:         bus,
		rules:       rules,
		settings:    settings,
		controllers: map[core.Origin]ModuleController{},
		notifier:    LogNotifier{Logger: settings.Logger},
	}
}

// NewRuleEngine combines rules into a RuleEngine.
func NewRuleEngine(rules ...core.Rule) RuleEngine {
	return &simpleRuleEngine{rules: rules}
}

// DefaultRuleEngine emits level changes without named achievements.
func DefaultRuleEngine() RuleEngine {
	return NewRuleEngine(core.LevelRule{})
}

// RegisterController makes an integration available to GetModuleController.
func (s *Service) RegisterController(c ModuleController) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.controllers[c.Origin()] = c
}

// AddAchievementHandler appends a handler run after every saved interaction.
func (s *Service) AddAchievementHandler(h AchievementHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.achievements = append(s.achievements, h)
}

// AddTemporaryAchievementHandler appends a handler for time-boxed achievements.
func (s *Service) AddTemporaryAchievementHandler(h AchievementHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.temporary = append(s.temporary, h)
}

// SetNotifier replaces the notification sink.
func (s *Service) SetNotifier(n Notifier) {
	if n == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifier = n
}

// Notifier returns the configured notification sink.
func (s *Service) Notifier() Notifier {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.notifier
}

// Storage exposes the underlying store to sibling components (handlers, rankings).
func (s *Service) Storage() Storage { return s.storage }

// Subscribe convenience method.
func (s *Service) Subscribe(typ core.EventType, handler func(context.Context, core.Event)) func() {
	return s.bus.Subscribe(typ, handler)
}

func (s *Service) Publish(ctx context.Context, ev core.Event) {
	s.bus.Publish(ctx, ev)
}

func (s *Service) Close() { s.bus.Close() }

// GetModuleController returns the integration registered for origin.
func (s *Service) GetModuleController(origin core.Origin) (ModuleController, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.controllers[origin]
	return c, ok
}

// Normalize maps a raw event to an Interaction. Manual and inactivity events are built here;
// everything else is delegated to ctrl, which must be non-nil.
func (s *Service) Normalize(raw core.RawEvent, ctrl ModuleController) (core.Interaction, error) {
	date := raw.Date
	if date.IsZero() {
		date = s.settings.Now().UTC()
	}
	var score int64
	if raw.Score != nil {
		score = *raw.Score
	}
	switch raw.Type {
	case core.TypeManual:
		return core.Interaction{
			Origin:      core.OriginSystem,
			Type:        raw.Type,
			User:        raw.User,
			Username:    raw.Username,
			Value:       raw.Value,
			Description: raw.Text,
			Channel:     s.settings.NetworkChannel,
			Category:    core.CategoryNetwork,
			Action:      string(core.TypeManual),
			Score:       score,
			Date:        date,
		}, nil
	case core.TypeInactivity:
		return core.Interaction{
			Origin:      core.OriginSystem,
			Type:        raw.Type,
			User:        raw.User,
			Description: SystemDescription,
			Channel:     InactivityChannel,
			Category:    core.CategoryNetwork,
			Action:      string(core.TypeInactivity),
			Score:       score,
			Date:        date,
		}, nil
	}
	if ctrl == nil {
		return core.Interaction{}, fmt.Errorf("%w: %q", ErrUnknownOrigin, raw.Origin)
	}
	i, err := ctrl.Normalize(raw)
	if err != nil {
		return core.Interaction{}, err
	}
	if i.Date.IsZero() {
		i.Date = date
	}
	return i, nil
}

type simpleRuleEngine struct{ rules []core.Rule }

func (s *simpleRuleEngine) Evaluate(ctx context.Context, user core.User, trigger core.Event) []core.Event {
	var out []core.Event
	for _, r := range s.rules {
		out = append(out, r.Evaluate(ctx, user, trigger)...)
	}
	return out
}
