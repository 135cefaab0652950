// Package analytics turns domain events into operational metrics.
package analytics

import (
	"context"

	"communityxp/core"
)

// Hook receives domain events.
type Hook interface {
	OnEvent(ctx context.Context, e core.Event)
}

// HookFunc adapts a function to Hook.
type HookFunc func(ctx context.Context, e core.Event)

func (f HookFunc) OnEvent(ctx context.Context, e core.Event) { f(ctx, e) }

// Subscriber is the part of the event bus a Bridge attaches to.
type Subscriber interface {
	SubscribeAll(handler func(context.Context, core.Event)) func()
}

// BridgeHook fans an event out to multiple hooks.
type BridgeHook struct{ hooks []Hook }

func NewBridge(hooks ...Hook) *BridgeHook { return &BridgeHook{hooks: hooks} }

func (b *BridgeHook) OnEvent(ctx context.Context, e core.Event) {
	for _, h := range b.hooks {
		h.OnEvent(ctx, e)
	}
}

// Attach subscribes the bridge to every event on bus and returns the unsubscribe func.
func (b *BridgeHook) Attach(bus Subscriber) func() {
	return bus.SubscribeAll(b.OnEvent)
}
