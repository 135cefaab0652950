// Package commands dispatches chat commands such as "!score" typed in a channel.
package commands

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
)

// ErrNoCommand is returned by Handle when the text matches no registered command.
var ErrNoCommand = errors.New("no matching command")

// Message is the chat input a command runs against.
type Message struct {
	ID       string `json:"id"`
	RoomID   string `json:"room_id"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Text     string `json:"text"`
}

// Attachment is an extra block of text shown under a response.
type Attachment struct {
	Text string `json:"text"`
}

// Response is the reply posted back to the room.
type Response struct {
	Text        string       `json:"msg"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Handler runs a matched command.
type Handler func(ctx context.Context, msg Message) (Response, error)

// Command is a named pattern and its handler.
type Command struct {
	Name    string
	Pattern *regexp.Regexp
	Handler Handler
}

// Registry holds commands in registration order; the first match wins.
type Registry struct {
	mu       sync.RWMutex
	commands []Command
}

func NewRegistry() *Registry { return &Registry{} }

// Register compiles pattern and adds the command.
func (r *Registry) Register(name, pattern string, h Handler) error {
	if h == nil {
		return fmt.Errorf("command %q: nil handler", name)
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("command %q: %w", name, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.commands {
		if c.Name == name {
			return fmt.Errorf("command %q already registered", name)
		}
	}
	r.commands = append(r.commands, Command{Name: name, Pattern: re, Handler: h})
	return nil
}

// Match returns the first command whose pattern matches text.
func (r *Registry) Match(text string) (Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.commands {
		if c.Pattern.MatchString(text) {
			return c, true
		}
	}
	return Command{}, false
}

// Patterns lists the registered patterns by command name.
func (r *Registry) Patterns() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.commands))
	for _, c := range r.commands {
		out[c.Name] = c.Pattern.String()
	}
	return out
}

// Handle runs the command matching msg.Text.
func (r *Registry) Handle(ctx context.Context, msg Message) (Response, error) {
	c, ok := r.Match(msg.Text)
	if !ok {
		return Response{}, ErrNoCommand
	}
	resp, err := c.Handler(ctx, msg)
	if err != nil {
		return Response{}, fmt.Errorf("command %s: %w", c.Name, err)
	}
	return resp, nil
}
