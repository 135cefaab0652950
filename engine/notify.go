package engine

import (
	"context"
	"log/slog"
)

// LogNotifier writes notifications to a structured logger.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Notify(ctx context.Context, note Notification) {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelInfo
	if note.Type == "error" {
		level = slog.LevelError
	}
	attrs := []any{"file", note.File}
	if err, ok := note.Details.(error); ok {
		attrs = append(attrs, "error", err.Error())
	} else if note.Details != nil {
		attrs = append(attrs, "details", note.Details)
	}
	logger.Log(ctx, level, note.Resume, attrs...)
}

// MultiNotifier fans a notification out to several sinks.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, note Notification) {
	for _, n := range m {
		if n != nil {
			n.Notify(ctx, note)
		}
	}
}
