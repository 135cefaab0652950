package engine

import (
	"context"
	"log/slog"
	"sync"

	"communityxp/core"
)

type DispatchMode int

const (
	DispatchSync DispatchMode = iota
	DispatchAsync
)

// anyEvent is the subscription key used by SubscribeAll.
const anyEvent core.EventType = "*"

type subscription struct {
	id int64
	fn func(context.Context, core.Event)
}

// EventBus provides thread-safe pub/sub with sync and async dispatch.
// Handlers run side effects (realtime, metrics, webhooks); a panicking handler is logged and skipped.
type EventBus struct {
	mode   DispatchMode
	mu     sync.RWMutex
	subs   map[core.EventType]map[int64]subscription
	nextID int64
	queue  chan core.Event
	wg     sync.WaitGroup
	once   sync.Once
	logger *slog.Logger
}

func NewEventBus(mode DispatchMode) *EventBus {
	eb := &EventBus{
		mode:   mode,
		subs:   make(map[core.EventType]map[int64]subscription),
		queue:  make(chan core.Event, 2048),
		logger: slog.Default(),
	}
	if mode == DispatchAsync {
		eb.startWorkers(4)
	}
	return eb
}

func (e *EventBus) startWorkers(n int) {
	for i := 0; i < n; i++ {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			for ev := range e.queue {
				e.dispatch(context.Background(), ev)
			}
		}()
	}
}

// Close drains queued events and stops async workers. Publishing after Close is a no-op.
func (e *EventBus) Close() {
	e.once.Do(func() {
		e.mu.Lock()
		close(e.queue)
		e.queue = nil
		e.mu.Unlock()
		e.wg.Wait()
	})
}

// Subscribe registers a handler for an event type. Returns unsubscribe func.
func (e *EventBus) Subscribe(typ core.EventType, handler func(context.Context, core.Event)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	id := e.nextID
	if e.subs[typ] == nil {
		e.subs[typ] = make(map[int64]subscription)
	}
	e.subs[typ][id] = subscription{id: id, fn: handler}
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if m := e.subs[typ]; m != nil {
			delete(m, id)
		}
	}
}

// SubscribeAll registers a handler for every event type.
func (e *EventBus) SubscribeAll(handler func(context.Context, core.Event)) func() {
	return e.Subscribe(anyEvent, handler)
}

// Publish sends an event to subscribers.
func (e *EventBus) Publish(ctx context.Context, ev core.Event) {
	if e.mode == DispatchAsync {
		e.mu.RLock()
		defer e.mu.RUnlock()
		if e.queue == nil {
			return
		}
		select {
		case e.queue <- ev:
		default:
			e.logger.Warn("event bus queue full, dropping event", "type", ev.Type, "user", ev.UserID)
		}
		return
	}
	e.dispatch(ctx, ev)
}

func (e *EventBus) dispatch(ctx context.Context, ev core.Event) {
	e.mu.RLock()
	handlers := make([]func(context.Context, core.Event), 0, len(e.subs[ev.Type])+len(e.subs[anyEvent]))
	for _, s := range e.subs[ev.Type] {
		handlers = append(handlers, s.fn)
	}
	for _, s := range e.subs[anyEvent] {
		handlers = append(handlers, s.fn)
	}
	e.mu.RUnlock()
	for _, h := range handlers {
		e.safeCall(ctx, h, ev)
	}
}

func (e *EventBus) safeCall(ctx context.Context, h func(context.Context, core.Event), ev core.Event) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("event handler panicked", "type", ev.Type, "panic", r)
		}
	}()
	h(ctx, ev)
}
