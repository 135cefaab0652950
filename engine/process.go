package engine

import (
	"context"
	"errors"
	"fmt"

	"communityxp/core"
)

// SaveStep names one step of OnSaveInteraction.
type SaveStep string

const (
	StepPro                   SaveStep = "pro"
	StepScore                 SaveStep = "score"
	StepAchievements          SaveStep = "achievements"
	StepTemporaryAchievements SaveStep = "temporary_achievements"
)

// SaveResult records how far OnSaveInteraction got. Steps are not compensated on failure.
type SaveResult struct {
	Completed []SaveStep `json:"completed"`
	Failed    SaveStep   `json:"failed,omitempty"`
	Err       error      `json:"-"`
}

// OK reports whether every step completed.
func (r SaveResult) OK() bool { return r.Err == nil }

// OnSaveInteraction runs pro status, score update, achievements and temporary achievements in
// order. The first failing step stops the sequence.
func (s *Service) OnSaveInteraction(ctx context.Context, i core.Interaction, user *core.User) SaveResult {
	s.mu.RLock()
	achievements := append([]AchievementHandler(nil), s.achievements...)
	temporary := append([]AchievementHandler(nil), s.temporary...)
	s.mu.RUnlock()

	steps := []struct {
		name SaveStep
		run  func() error
	}{
		{StepPro, func() error { return s.UpdatePro(ctx, user) }},
		{StepScore, func() error { return s.scoreInteraction(ctx, i, user) }},
		{StepAchievements, func() error { return runHandlers(ctx, achievements, i, user) }},
		{StepTemporaryAchievements, func() error { return runHandlers(ctx, temporary, i, user) }},
	}

	var res SaveResult
	for _, step := range steps {
		if err := step.run(); err != nil {
			res.Failed = step.name
			res.Err = fmt.Errorf("%s step: %w", step.name, err)
			return res
		}
		res.Completed = append(res.Completed, step.name)
	}
	return res
}

func (s *Service) scoreInteraction(ctx context.Context, i core.Interaction, user *core.User) error {
	if i.Score != 0 && i.ID != "" {
		if _, err := s.storage.CreateScore(ctx, core.Score{
			Value:       i.Score,
			Description: i.Description,
			Ref:         core.InteractionRef(i.ID),
			User:        i.User,
			Date:        i.Date,
		}); err != nil {
			return fmt.Errorf("create score: %w", err)
		}
	}
	_, err := s.UpdateScore(ctx, user, i.Score)
	return err
}

func runHandlers(ctx context.Context, handlers []AchievementHandler, i core.Interaction, user *core.User) error {
	for _, h := range handlers {
		if err := h.Handle(ctx, i, user); err != nil {
			return err
		}
	}
	return nil
}

// ProcessResult describes the outcome of Process.
type ProcessResult struct {
	Interaction core.Interaction `json:"interaction"`
	// Scored is false when the policy gate denied score; the interaction is still stored with score 0.
	Scored bool       `json:"scored"`
	User   *core.User `json:"user,omitempty"`
	Save   SaveResult `json:"save"`
}

// Process runs a raw event through normalization, the policy gate and the score updater.
func (s *Service) Process(ctx context.Context, raw core.RawEvent) (ProcessResult, error) {
	var ctrl ModuleController
	if !raw.Type.IsSystem() {
		c, ok := s.GetModuleController(raw.Origin)
		if !ok {
			return ProcessResult{}, fmt.Errorf("%w: %q", ErrUnknownOrigin, raw.Origin)
		}
		ctrl = c
	}

	i, err := s.Normalize(raw, ctrl)
	if err != nil {
		return ProcessResult{}, err
	}
	if _, err := core.NormalizeUserID(i.User); err != nil {
		return ProcessResult{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}

	res := ProcessResult{Scored: true}
	if ctrl != nil {
		ok, err := s.HasScore(ctx, ctrl, i)
		if err != nil {
			return ProcessResult{}, err
		}
		if !ok {
			i.Score = 0
			res.Scored = false
		}
	}

	var user *core.User
	u, err := s.storage.GetUser(ctx, i.User)
	switch {
	case err == nil:
		user = &u
	case errors.Is(err, ErrUserNotFound):
		s.Notifier().Notify(ctx, Notification{
			Type:    "info",
			File:    "engine/process.Process",
			Resume:  "Unable to find user.",
			Details: map[string]any{"user": i.User, "origin": i.Origin, "action": i.Action},
		})
	default:
		return ProcessResult{}, err
	}

	stored, err := s.storage.CreateInteraction(ctx, i)
	if err != nil {
		return ProcessResult{}, fmt.Errorf("create interaction: %w", err)
	}
	res.Interaction = stored

	if user != nil {
		res.Save = s.OnSaveInteraction(ctx, stored, user)
		res.User = user
		if res.Save.Err != nil {
			s.Notifier().Notify(ctx, Notification{
				Type:    "error",
				File:    "engine/process.OnSaveInteraction",
				Resume:  fmt.Sprintf("Interaction saved but %s step failed", res.Save.Failed),
				Details: res.Save.Err,
			})
		}
	}

	s.bus.Publish(ctx, core.NewInteractionSaved(stored))
	return res, nil
}
