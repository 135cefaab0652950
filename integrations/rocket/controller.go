package rocket

import (
	"context"
	"fmt"
	"time"

	"communityxp/core"
	"communityxp/engine"
)

// FloodPolicy caps scored interactions per user and channel inside a window.
type FloodPolicy struct {
	Window          time.Duration
	MaxInteractions int64
}

// Controller is the engine.ModuleController for Rocket.Chat interactions.
type Controller struct {
	rewards    Rewards
	flood      FloodPolicy
	counter    engine.RateCounter
	dailyLimit int64
}

// NewController builds the controller. A nil counter disables flood detection.
func NewController(rewards Rewards, flood FloodPolicy, counter engine.RateCounter, dailyLimit int64) *Controller {
	return &Controller{rewards: rewards, flood: flood, counter: counter, dailyLimit: dailyLimit}
}

func (c *Controller) Origin() core.Origin { return core.OriginRocket }

func (c *Controller) Normalize(raw core.RawEvent) (core.Interaction, error) {
	var score int64
	switch raw.Type {
	case core.TypeMessage:
		score = c.rewards.MessageSend
	case core.TypeThread:
		score = c.rewards.ThreadSend
	case core.TypeReaction:
		score = c.rewards.ReactionSend
	default:
		return core.Interaction{}, fmt.Errorf("%w: rocket does not handle %q", engine.ErrInvalidEvent, raw.Type)
	}
	action := raw.Action
	if action == "" {
		action = string(raw.Type)
	}
	return core.Interaction{
		Origin:      core.OriginRocket,
		Type:        raw.Type,
		User:        raw.User,
		Username:    raw.Username,
		Value:       raw.Value,
		Thread:      raw.Thread || raw.Type == core.TypeThread,
		Description: raw.Text,
		Channel:     raw.Channel,
		Category:    core.CategoryNetwork,
		Action:      action,
		Score:       score,
		Date:        raw.Date,
	}, nil
}

// IsFlood reports whether the user exceeded the interaction cap for the channel.
func (c *Controller) IsFlood(ctx context.Context, i core.Interaction) (bool, error) {
	if c.counter == nil || c.flood.MaxInteractions <= 0 || c.flood.Window <= 0 {
		return false, nil
	}
	n, err := c.counter.Incr(ctx, fmt.Sprintf("rocket:%s:%s", i.User, i.Channel), c.flood.Window)
	if err != nil {
		return false, err
	}
	return n > c.flood.MaxInteractions, nil
}

func (c *Controller) DailyLimit() (int64, bool) { return c.dailyLimit, c.dailyLimit > 0 }

var _ engine.ModuleController = (*Controller)(nil)
