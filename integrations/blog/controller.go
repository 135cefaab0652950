// Package blog scores blog posts and comments.
package blog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"communityxp/core"
	"communityxp/engine"
)

// Rewards are the score values per blog action.
type Rewards struct {
	Post    int64 `json:"post" yaml:"post"`
	Comment int64 `json:"comment" yaml:"comment"`
}

func DefaultRewards() Rewards { return Rewards{Post: 10, Comment: 2} }

// Controller is the engine.ModuleController for blog events.
type Controller struct {
	rewards    Rewards
	counter    engine.RateCounter
	window     time.Duration
	dailyLimit int64
}

// NewController builds the controller. Repeating the same text within window is flood;
// a nil counter or zero window disables the check.
func NewController(rewards Rewards, counter engine.RateCounter, window time.Duration, dailyLimit int64) *Controller {
	return &Controller{rewards: rewards, counter: counter, window: window, dailyLimit: dailyLimit}
}

func (c *Controller) Origin() core.Origin { return core.OriginBlog }

func (c *Controller) Normalize(raw core.RawEvent) (core.Interaction, error) {
	var score int64
	switch raw.Type {
	case core.TypePost:
		score = c.rewards.Post
	case core.TypeComment:
		score = c.rewards.Comment
	default:
		return core.Interaction{}, fmt.Errorf("%w: blog does not handle %q", engine.ErrInvalidEvent, raw.Type)
	}
	channel := raw.Channel
	if channel == "" {
		channel = "blog"
	}
	return core.Interaction{
		Origin:      core.OriginBlog,
		Type:        raw.Type,
		User:        raw.User,
		Username:    raw.Username,
		Value:       raw.Value,
		Description: raw.Text,
		Channel:     channel,
		Category:    core.CategoryBlog,
		Action:      string(raw.Type),
		Score:       score,
		Date:        raw.Date,
	}, nil
}

func (c *Controller) IsFlood(ctx context.Context, i core.Interaction) (bool, error) {
	if c.counter == nil || c.window <= 0 {
		return false, nil
	}
	text := strings.ToLower(strings.TrimSpace(i.Description))
	if text == "" {
		return false, nil
	}
	sum := sha256.Sum256([]byte(text))
	n, err := c.counter.Incr(ctx, "blog:"+string(i.User)+":"+hex.EncodeToString(sum[:8]), c.window)
	if err != nil {
		return false, err
	}
	return n > 1, nil
}

func (c *Controller) DailyLimit() (int64, bool) { return c.dailyLimit, c.dailyLimit > 0 }

var _ engine.ModuleController = (*Controller)(nil)
