// Package github scores repository activity: pull requests, reviews, issues and pushes.
package github

import (
	"context"
	"fmt"

	"communityxp/core"
	"communityxp/engine"
)

// Rewards are the score values per GitHub action.
type Rewards struct {
	PullRequest int64 `json:"pull_request" yaml:"pull_request"`
	Review      int64 `json:"review" yaml:"review"`
	Issue       int64 `json:"issue" yaml:"issue"`
	Push        int64 `json:"push" yaml:"push"`
}

func DefaultRewards() Rewards {
	return Rewards{PullRequest: 5, Review: 3, Issue: 2, Push: 1}
}

// Controller is the engine.ModuleController for GitHub events. GitHub activity is never flood.
type Controller struct {
	rewards    Rewards
	dailyLimit int64
}

func NewController(rewards Rewards, dailyLimit int64) *Controller {
	return &Controller{rewards: rewards, dailyLimit: dailyLimit}
}

func (c *Controller) Origin() core.Origin { return core.OriginGitHub }

func (c *Controller) Normalize(raw core.RawEvent) (core.Interaction, error) {
	var score int64
	switch raw.Type {
	case core.TypePullRequest:
		score = c.rewards.PullRequest
	case core.TypeReview:
		score = c.rewards.Review
	case core.TypeIssue:
		score = c.rewards.Issue
	case core.TypePush:
		score = c.rewards.Push
	default:
		return core.Interaction{}, fmt.Errorf("%w: github does not handle %q", engine.ErrInvalidEvent, raw.Type)
	}
	action := raw.Action
	if action == "" {
		action = string(raw.Type)
	}
	channel := raw.Channel
	if channel == "" {
		channel = "github"
	}
	return core.Interaction{
		Origin:      core.OriginGitHub,
		Type:        raw.Type,
		User:        raw.User,
		Username:    raw.Username,
		Value:       raw.Value,
		Description: raw.Text,
		Channel:     channel,
		Category:    core.CategoryGitHub,
		Action:      action,
		Score:       score,
		Date:        raw.Date,
	}, nil
}

func (c *Controller) IsFlood(context.Context, core.Interaction) (bool, error) { return false, nil }

func (c *Controller) DailyLimit() (int64, bool) { return c.dailyLimit, c.dailyLimit > 0 }

var _ engine.ModuleController = (*Controller)(nil)
