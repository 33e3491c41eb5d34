// Package circuit implements the per-account daily-loss circuit breaker.
// A tripped breaker blocks new entries only; open positions keep their
// stops and the position manager keeps running.
package circuit

import (
	"fmt"
	"sync"
	"time"
)

// BreakerState represents the circuit breaker state
type BreakerState string

const (
	StateClosed  BreakerState = "closed" // Normal operation
	StateTripped BreakerState = "open"   // Entries halted until the daily reset
)

// Breaker tracks realized PnL against the day's starting balance and
// trips when the daily loss limit is breached. It resets on the UTC
// day boundary.
type Breaker struct {
	mu              sync.RWMutex
	maxDailyLossPct float64
	startingBalance float64
	realized        float64
	day             time.Time
	state           BreakerState
	tripReason      string
	onTrip          func(reason string)
	onReset         func()
}

// NewBreaker creates a breaker tripping at maxDailyLossPct of the day's
// starting balance.
func NewBreaker(maxDailyLossPct float64) *Breaker {
	return &Breaker{
		maxDailyLossPct: maxDailyLossPct,
		state:           StateClosed,
	}
}

// OnTrip sets the callback fired once per trip.
func (b *Breaker) OnTrip(handler func(reason string)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onTrip = handler
}

// OnReset sets the callback fired on the daily reset after a trip.
func (b *Breaker) OnReset(handler func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onReset = handler
}

// Observe anchors the day's starting balance. The first observation of
// each UTC day wins; later calls on the same day are ignored.
func (b *Breaker) Observe(balance float64, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rollDay(now)
	if b.startingBalance == 0 {
		b.startingBalance = balance
	}
}

// RecordProfit adds one closed trade's realized PnL and trips the
// breaker when the daily loss limit is breached.
func (b *Breaker) RecordProfit(profit float64, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rollDay(now)
	b.realized += profit

	if b.state == StateTripped || b.startingBalance <= 0 {
		return
	}
	lossPct := -b.realized / b.startingBalance * 100
	if lossPct >= b.maxDailyLossPct {
		b.state = StateTripped
		b.tripReason = fmt.Sprintf("daily loss %.2f%% reached limit %.2f%%", lossPct, b.maxDailyLossPct)
		if b.onTrip != nil {
			go b.onTrip(b.tripReason)
		}
	}
}

// CanTrade reports whether new entries are allowed.
func (b *Breaker) CanTrade(now time.Time) (bool, string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rollDay(now)
	if b.state == StateTripped {
		return false, b.tripReason
	}
	return true, ""
}

// Tripped reports the current state without rolling the day.
func (b *Breaker) Tripped() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state == StateTripped
}

// DailyPnL returns the realized PnL recorded today.
func (b *Breaker) DailyPnL() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.realized
}

// rollDay resets counters on the UTC day boundary. Caller holds b.mu.
func (b *Breaker) rollDay(now time.Time) {
	day := now.UTC().Truncate(24 * time.Hour)
	if day.Equal(b.day) {
		return
	}
	wasTripped := b.state == StateTripped
	b.day = day
	b.realized = 0
	b.startingBalance = 0
	b.state = StateClosed
	b.tripReason = ""
	if wasTripped && b.onReset != nil {
		go b.onReset()
	}
}
