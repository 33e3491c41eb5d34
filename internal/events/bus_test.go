package events

import (
	"sync"
	"testing"
	"time"
)

func waitFor(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(time.Second):
		t.Fatal("Should deliver the event")
		return Event{}
	}
}

func TestSubscribeReceivesMatchingType(t *testing.T) {
	bus := NewBus()
	received := make(chan Event, 1)
	bus.Subscribe(EventTradeOpened, func(e Event) { received <- e })

	bus.PublishTradeOpened("acct-1", "EURUSD", "SELL", 1001, 0.05, 1.0850, 1.0872, 1.0770)

	e := waitFor(t, received)
	if e.Type != EventTradeOpened {
		t.Errorf("Should deliver a trade opened event, got %s", e.Type)
	}
	if e.AccountID != "acct-1" {
		t.Errorf("Should carry the account ID, got %s", e.AccountID)
	}
	if e.Data["symbol"] != "EURUSD" {
		t.Errorf("Should carry the symbol, got %v", e.Data["symbol"])
	}
}

func TestSubscribeIgnoresOtherTypes(t *testing.T) {
	bus := NewBus()
	received := make(chan Event, 1)
	bus.Subscribe(EventBreakerTripped, func(e Event) { received <- e })

	bus.PublishSignal("acct-1", "EURUSD", "WEDGE_REVERSAL", "SELL", 0.72)

	select {
	case e := <-received:
		t.Errorf("Should not deliver other event types, got %s", e.Type)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSubscribeAllSeesEverything(t *testing.T) {
	bus := NewBus()
	var mu sync.Mutex
	var seen []EventType
	done := make(chan struct{}, 3)
	bus.SubscribeAll(func(e Event) {
		mu.Lock()
		seen = append(seen, e.Type)
		mu.Unlock()
		done <- struct{}{}
	})

	bus.PublishSignal("a", "EURUSD", "MOMENTUM", "BUY", 0.66)
	bus.PublishSignalRejected("a", "EURUSD", "SPREAD_TOO_WIDE", "2.4 pips")
	bus.PublishTradeClosed("a", "EURUSD", "BUY", 1002, -18.40)

	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("Should deliver all three events")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 3 {
		t.Errorf("Should see three events, got %d", len(seen))
	}
}

func TestPublishNeverBlocksWithoutSubscribers(t *testing.T) {
	bus := NewBus()
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			bus.PublishError("a", "test", "boom", nil)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Should publish without blocking")
	}
}
