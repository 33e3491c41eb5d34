// Package events is the in-process pub/sub bus connecting the trading
// engine to the API stream and the journal.
package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventSignalGenerated EventType = "SIGNAL_GENERATED"
	EventSignalRejected  EventType = "SIGNAL_REJECTED"
	EventTradeOpened     EventType = "TRADE_OPENED"
	EventTradeClosed     EventType = "TRADE_CLOSED"
	EventStopMoved       EventType = "STOP_MOVED"
	EventBreakerTripped  EventType = "BREAKER_TRIPPED"
	EventBreakerReset    EventType = "BREAKER_RESET"
	EventAccountPaused   EventType = "ACCOUNT_PAUSED"
	EventEngineStarted   EventType = "ENGINE_STARTED"
	EventEngineStopped   EventType = "ENGINE_STOPPED"
	EventError           EventType = "ERROR"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	AccountID string                 `json:"account_id,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// Bus manages event publishing and subscriptions
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
	}
}

// Subscribe registers a subscriber for a specific event type
func (b *Bus) Subscribe(eventType EventType, subscriber Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (b *Bus) SubscribeAll(subscriber Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.allSubs = append(b.allSubs, subscriber)
}

// Publish sends an event to all subscribers. Subscribers run on their
// own goroutines so a slow consumer never blocks the trading loops.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	if subs, ok := b.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event)
		}
	}
	for _, sub := range b.allSubs {
		go sub(event)
	}
}

// PublishTradeOpened publishes a trade opened event
func (b *Bus) PublishTradeOpened(accountID, symbol, direction string, ticket int64, lots, entry, stopLoss, takeProfit float64) {
	b.Publish(Event{
		Type:      EventTradeOpened,
		AccountID: accountID,
		Data: map[string]interface{}{
			"symbol":      symbol,
			"direction":   direction,
			"ticket":      ticket,
			"lots":        lots,
			"entry":       entry,
			"stop_loss":   stopLoss,
			"take_profit": takeProfit,
		},
	})
}

// PublishTradeClosed publishes a trade closed event
func (b *Bus) PublishTradeClosed(accountID, symbol, direction string, ticket int64, profit float64) {
	b.Publish(Event{
		Type:      EventTradeClosed,
		AccountID: accountID,
		Data: map[string]interface{}{
			"symbol":    symbol,
			"direction": direction,
			"ticket":    ticket,
			"profit":    profit,
		},
	})
}

// PublishSignal publishes a signal generated event
func (b *Bus) PublishSignal(accountID, symbol, signalType, direction string, confidence float64) {
	b.Publish(Event{
		Type:      EventSignalGenerated,
		AccountID: accountID,
		Data: map[string]interface{}{
			"symbol":     symbol,
			"type":       signalType,
			"direction":  direction,
			"confidence": confidence,
		},
	})
}

// PublishSignalRejected publishes a rejected signal with its reason
func (b *Bus) PublishSignalRejected(accountID, symbol, reason, detail string) {
	b.Publish(Event{
		Type:      EventSignalRejected,
		AccountID: accountID,
		Data: map[string]interface{}{
			"symbol": symbol,
			"reason": reason,
			"detail": detail,
		},
	})
}

// PublishStopMoved publishes a protective stop adjustment
func (b *Bus) PublishStopMoved(accountID, symbol, kind string, ticket int64, newStop float64) {
	b.Publish(Event{
		Type:      EventStopMoved,
		AccountID: accountID,
		Data: map[string]interface{}{
			"symbol":   symbol,
			"kind":     kind,
			"ticket":   ticket,
			"new_stop": newStop,
		},
	})
}

// PublishError publishes an error event
func (b *Bus) PublishError(accountID, source, message string, err error) {
	data := map[string]interface{}{
		"source":  source,
		"message": message,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	b.Publish(Event{Type: EventError, AccountID: accountID, Data: data})
}
