package rocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"communityxp/commands"
	"communityxp/core"
	"communityxp/engine"
)

// Store is the persistence a MessageHandler needs.
type Store interface {
	engine.UserStore
	engine.MessageStore
	engine.ReactionStore
}

// Scorer appends a score entry for ref and credits the user. engine.Service implements it.
type Scorer interface {
	Award(ctx context.Context, user core.UserID, value int64, description string, ref core.Ref) error
}

// Publisher receives domain events. engine.Service implements it.
type Publisher interface {
	Publish(ctx context.Context, ev core.Event)
}

// OutcomeKind names the path a message took through the handler.
type OutcomeKind string

const (
	OutcomeCommand   OutcomeKind = "command"
	OutcomeMessage   OutcomeKind = "message"
	OutcomeReply     OutcomeKind = "reply"
	OutcomeReactions OutcomeKind = "reactions"
	OutcomeUnowned   OutcomeKind = "unowned"
	OutcomeIgnored   OutcomeKind = "ignored"
	OutcomeFailed    OutcomeKind = "failed"
)

// Outcome describes what Process did with a message.
type Outcome struct {
	Kind     OutcomeKind        `json:"kind"`
	Message  *core.Message      `json:"message,omitempty"`
	Response *commands.Response `json:"response,omitempty"`
	Added    []core.Reaction    `json:"added,omitempty"`
	Removed  []core.Reaction    `json:"removed,omitempty"`
	Err      error              `json:"-"`
}

// MessageHandler classifies incoming chat messages and applies their score side effects.
type MessageHandler struct {
	store    Store
	scorer   Scorer
	events   Publisher
	commands *commands.Registry
	rewards  Rewards
	notifier engine.Notifier
	logger   *slog.Logger
}

// HandlerOption configures a MessageHandler.
type HandlerOption func(*MessageHandler)

// WithNotifier sets where swallowed errors and unowned messages are reported.
func WithNotifier(n engine.Notifier) HandlerOption {
	return func(h *MessageHandler) {
		if n != nil {
			h.notifier = n
		}
	}
}

// WithLogger sets the handler logger.
func WithLogger(l *slog.Logger) HandlerOption {
	return func(h *MessageHandler) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithPublisher sets the event sink for message and reaction events.
func WithPublisher(p Publisher) HandlerOption {
	return func(h *MessageHandler) { h.events = p }
}

func NewMessageHandler(store Store, scorer Scorer, registry *commands.Registry, rewards Rewards, opts ...HandlerOption) *MessageHandler {
	if registry == nil {
		registry = commands.NewRegistry()
	}
	h := &MessageHandler{
		store:    store,
		scorer:   scorer,
		commands: registry,
		rewards:  rewards,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.notifier == nil {
		h.notifier = engine.LogNotifier{Logger: h.logger}
	}
	return h
}

// Handle processes msg and never fails: errors are reported to the notifier and returned
// inside the Outcome.
func (h *MessageHandler) Handle(ctx context.Context, msg ChatMessage) Outcome {
	out, err := h.Process(ctx, msg)
	if err != nil {
		h.notifier.Notify(ctx, engine.Notification{
			Type:    "error",
			File:    "integrations/rocket.MessageHandler.Handle",
			Resume:  "Unexpected error handling chat message",
			Details: err,
		})
		return Outcome{Kind: OutcomeFailed, Err: err}
	}
	return out
}

// Process classifies msg in priority order: command, reaction change on a stored message,
// unowned message, new threaded reply, new top-level message.
func (h *MessageHandler) Process(ctx context.Context, msg ChatMessage) (Outcome, error) {
	if err := msg.Validate(); err != nil {
		return Outcome{}, err
	}

	stored, err := h.store.FindMessage(ctx, msg.ID)
	found := err == nil
	if err != nil && !errors.Is(err, engine.ErrMessageNotFound) {
		return Outcome{}, err
	}

	author, err := h.store.FindUserByRocketID(ctx, msg.User.ID)
	known := err == nil
	if err != nil && !errors.Is(err, engine.ErrUserNotFound) {
		return Outcome{}, err
	}

	if _, ok := h.commands.Match(msg.Text); ok {
		return h.handleCommand(ctx, msg, author.ID)
	}
	if found {
		return h.handleReactions(ctx, msg, stored)
	}
	if !known {
		return h.saveUnownedMessage(ctx, msg)
	}
	if msg.ThreadID != "" {
		return h.handleReply(ctx, msg, author)
	}
	return h.handleNewMessage(ctx, msg, author)
}

func (h *MessageHandler) handleCommand(ctx context.Context, msg ChatMessage, owner core.UserID) (Outcome, error) {
	m, created, err := h.store.UpsertMessage(ctx, core.Message{
		User:     owner,
		Platform: msg.platform(),
		Content:  msg.Text,
		Is:       core.MessageFlags{Command: true},
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("store command message: %w", err)
	}
	if !created {
		return Outcome{Kind: OutcomeIgnored, Message: &m}, nil
	}
	resp, err := h.commands.Handle(ctx, commands.Message{
		ID: msg.ID, RoomID: msg.RoomID, UserID: msg.User.ID, Username: msg.User.Username, Text: msg.Text,
	})
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Kind: OutcomeCommand, Message: &m, Response: &resp}, nil
}

func (h *MessageHandler) handleNewMessage(ctx context.Context, msg ChatMessage, author core.User) (Outcome, error) {
	m, created, err := h.store.UpsertMessage(ctx, core.Message{
		User:     author.ID,
		Platform: msg.platform(),
		Content:  msg.Text,
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("store message: %w", err)
	}
	if !created {
		return Outcome{Kind: OutcomeIgnored, Message: &m}, nil
	}
	h.publish(ctx, core.NewMessageSaved(m))
	if err := h.award(ctx, author.ID, h.rewards.MessageSend, "New message", m.ID); err != nil {
		return Outcome{}, err
	}
	return Outcome{Kind: OutcomeMessage, Message: &m}, nil
}

func (h *MessageHandler) handleReply(ctx context.Context, msg ChatMessage, author core.User) (Outcome, error) {
	parent, err := h.store.FindMessage(ctx, msg.ThreadID)
	if errors.Is(err, engine.ErrMessageNotFound) {
		h.logger.Info("thread parent not stored, treating reply as a new message",
			"message", msg.ID, "parent", msg.ThreadID)
		return h.handleNewMessage(ctx, msg, author)
	}
	if err != nil {
		return Outcome{}, err
	}

	reply, created, err := h.store.UpsertMessage(ctx, core.Message{
		User:     author.ID,
		Platform: msg.platform(),
		Content:  msg.Text,
		Parent:   parent.ID,
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("store reply: %w", err)
	}
	if !created {
		return Outcome{Kind: OutcomeIgnored, Message: &reply}, nil
	}
	h.publish(ctx, core.NewMessageSaved(reply))

	if err := h.award(ctx, author.ID, h.rewards.ThreadSend, "New reply sent", reply.ID); err != nil {
		return Outcome{}, err
	}
	if err := h.award(ctx, parent.User, h.rewards.ThreadReceive, "New reply received", parent.ID); err != nil {
		return Outcome{}, err
	}
	if !parent.Is.Thread {
		parent.Is.Thread = true
		if err := h.store.SaveMessage(ctx, parent); err != nil {
			return Outcome{}, fmt.Errorf("flag thread parent: %w", err)
		}
	}
	return Outcome{Kind: OutcomeReply, Message: &reply}, nil
}

func (h *MessageHandler) handleReactions(ctx context.Context, msg ChatMessage, stored core.Message) (Outcome, error) {
	existing, err := h.store.ListReactions(ctx, stored.ID)
	if err != nil {
		return Outcome{}, fmt.Errorf("list reactions: %w", err)
	}
	addedKeys, removed := Diff(Flatten(msg.Reactions), existing)
	if len(addedKeys) == 0 && len(removed) == 0 {
		return Outcome{Kind: OutcomeIgnored, Message: &stored}, nil
	}

	out := Outcome{Kind: OutcomeReactions, Message: &stored}
	for _, k := range addedKeys {
		reactor, err := h.store.FindUserByUsername(ctx, k.Username)
		if err != nil && !errors.Is(err, engine.ErrUserNotFound) {
			return Outcome{}, err
		}
		r, err := h.store.CreateReaction(ctx, core.Reaction{
			Message:           stored.ID,
			PlatformMessageID: stored.Platform.MessageID,
			PlatformUserID:    reactor.RocketID,
			Username:          k.Username,
			Content:           k.Content,
			User:              reactor.ID,
		})
		if err != nil {
			return Outcome{}, fmt.Errorf("create reaction: %w", err)
		}
		out.Added = append(out.Added, r)
		h.publish(ctx, core.NewReactionChanged(core.EventReactionAdded, r))

		if reactor.ID != "" && reactor.ID == stored.User {
			continue
		}
		if err := h.award(ctx, stored.User, h.rewards.ReactionReceive, "Reaction received", stored.ID); err != nil {
			return Outcome{}, err
		}
		if err := h.award(ctx, reactor.ID, h.rewards.ReactionSend, "Reaction sent", stored.ID); err != nil {
			return Outcome{}, err
		}
	}
	for _, r := range removed {
		if err := h.store.DeleteReaction(ctx, r.ID); err != nil && !errors.Is(err, engine.ErrReactionNotFound) {
			return Outcome{}, fmt.Errorf("delete reaction: %w", err)
		}
		out.Removed = append(out.Removed, r)
		h.publish(ctx, core.NewReactionChanged(core.EventReactionRemoved, r))
	}
	return out, nil
}

func (h *MessageHandler) saveUnownedMessage(ctx context.Context, msg ChatMessage) (Outcome, error) {
	m, _, err := h.store.UpsertMessage(ctx, core.Message{Platform: msg.platform(), Content: msg.Text})
	if err != nil {
		return Outcome{}, fmt.Errorf("store unowned message: %w", err)
	}
	h.notifier.Notify(ctx, engine.Notification{
		Type:    "info",
		File:    "integrations/rocket.MessageHandler.saveUnownedMessage",
		Resume:  "Unable to find user.",
		Details: map[string]any{"content": msg.Text, "message_id": msg.ID, "user_id": msg.User.ID, "username": msg.User.Username},
	})
	return Outcome{Kind: OutcomeUnowned, Message: &m}, nil
}

// award skips zero rewards and messages without an owner.
func (h *MessageHandler) award(ctx context.Context, user core.UserID, value int64, description, messageID string) error {
	if value == 0 || user == "" || h.scorer == nil {
		return nil
	}
	if err := h.scorer.Award(ctx, user, value, description, core.MessageRef(messageID)); err != nil {
		return fmt.Errorf("award %q to %s: %w", description, user, err)
	}
	return nil
}

func (h *MessageHandler) publish(ctx context.Context, ev core.Event) {
	if h.events != nil {
		h.events.Publish(ctx, ev)
	}
}
