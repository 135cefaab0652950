package engine

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"communityxp/core"
)

func TestEventBusSync(t *testing.T) {
	bus := NewEventBus(DispatchSync)
	count := 0
	bus.Subscribe(core.EventScoreAwarded, func(ctx context.Context, e core.Event) { count++ })
	bus.Publish(context.Background(), core.NewScoreAwarded("u", 1, 1))
	bus.Publish(context.Background(), core.NewLevelUp("u", 1, 2))
	if count != 1 {
		t.Fatalf("want 1 got %d", count)
	}
}

func TestEventBusSubscribeAllAndUnsubscribe(t *testing.T) {
	bus := NewEventBus(DispatchSync)
	count := 0
	unsubscribe := bus.SubscribeAll(func(ctx context.Context, e core.Event) { count++ })
	bus.Publish(context.Background(), core.NewScoreAwarded("u", 1, 1))
	bus.Publish(context.Background(), core.NewLevelUp("u", 1, 2))
	unsubscribe()
	bus.Publish(context.Background(), core.NewLevelUp("u", 2, 3))
	if count != 2 {
		t.Fatalf("want 2 got %d", count)
	}
}

func TestEventBusRecoversHandlerPanic(t *testing.T) {
	bus := NewEventBus(DispatchSync)
	called := false
	bus.Subscribe(core.EventLevelUp, func(ctx context.Context, e core.Event) { panic("boom") })
	bus.SubscribeAll(func(ctx context.Context, e core.Event) { called = true })
	bus.Publish(context.Background(), core.NewLevelUp("u", 1, 2))
	if !called {
		t.Fatal("second handler should still run")
	}
}

func TestEventBusAsync(t *testing.T) {
	bus := NewEventBus(DispatchAsync)
	defer bus.Close()
	ch := make(chan struct{})
	bus.Subscribe(core.EventScoreAwarded, func(ctx context.Context, e core.Event) { close(ch) })
	bus.Publish(context.Background(), core.NewScoreAwarded("u", 1, 1))
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("timeout")
	}
}

func TestEventBusCloseDrains(t *testing.T) {
	bus := NewEventBus(DispatchAsync)
	var n int32
	bus.SubscribeAll(func(ctx context.Context, e core.Event) { atomic.AddInt32(&n, 1) })
	for i := 0; i < 10; i++ {
		bus.Publish(context.Background(), core.NewScoreAwarded("u", 1, int64(i)))
	}
	bus.Close()
	if got := atomic.LoadInt32(&n); got != 10 {
		t.Fatalf("want 10 delivered got %d", got)
	}
	bus.Publish(context.Background(), core.NewScoreAwarded("u", 1, 1))
	bus.Close()
}
