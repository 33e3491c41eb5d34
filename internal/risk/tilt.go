package risk

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"forex-trading-agent/config"
	"forex-trading-agent/internal/broker"
)

// TiltTracker scales position size down through losing streaks and
// locks out a symbol+direction after repeated stop-outs. One tracker
// per account.
type TiltTracker struct {
	mu  sync.Mutex
	cfg config.TiltConfig

	consecutiveLosses int
	hits              map[string][]time.Time // symbol:direction -> stop-hit times
	cooldowns         map[string]time.Time   // symbol:direction -> expiry
	seen              map[int64]time.Time    // deal ticket -> close time, pruned with the window
}

func NewTiltTracker(cfg config.TiltConfig) *TiltTracker {
	return &TiltTracker{
		cfg:       cfg,
		hits:      make(map[string][]time.Time),
		cooldowns: make(map[string]time.Time),
		seen:      make(map[int64]time.Time),
	}
}

// RecordClose feeds one closed deal into the streak and cooldown state.
// Deals are deduplicated by ticket, so replaying broker history is safe.
func (t *TiltTracker) RecordClose(deal broker.Deal) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, dup := t.seen[deal.Ticket]; dup {
		return
	}
	// Dedupe only needs to span the broker refetch overlap; anything
	// older than the cooldown window can go.
	cutoff := deal.ClosedAt.Add(-t.cfg.CooldownWindow())
	for ticket, closedAt := range t.seen {
		if closedAt.Before(cutoff) {
			delete(t.seen, ticket)
		}
	}
	t.seen[deal.Ticket] = deal.ClosedAt

	if deal.Profit > 0 {
		// A winner, stop-hit or not, ends the streak.
		t.consecutiveLosses = 0
		return
	}
	if deal.Profit < 0 {
		t.consecutiveLosses++
	}

	if !deal.HitStopLoss() {
		return
	}
	key := cooldownKey(deal.Symbol, deal.Direction)
	hits := append(t.hits[key], deal.ClosedAt)

	// Keep only hits inside the rolling window.
	kept := hits[:0]
	for _, h := range hits {
		if h.After(cutoff) {
			kept = append(kept, h)
		}
	}
	t.hits[key] = kept

	if len(kept) >= t.cfg.CooldownHits {
		t.cooldowns[key] = deal.ClosedAt.Add(t.cfg.CooldownDuration())
		t.hits[key] = nil
	}
}

// SizeFactor returns the anti-tilt multiplier for the current streak.
// It only ever steps down as losses mount: 1.0, then 0.75, 0.5, 0.25.
func (t *TiltTracker) SizeFactor() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch {
	case t.consecutiveLosses >= t.cfg.QuarterAfterLosses:
		return 0.25
	case t.consecutiveLosses >= t.cfg.HalveAfterLosses:
		return 0.5
	case t.consecutiveLosses >= t.cfg.ReduceAfterLosses:
		return t.cfg.ReduceFactor
	default:
		return 1.0
	}
}

// ConsecutiveLosses returns the current streak length.
func (t *TiltTracker) ConsecutiveLosses() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.consecutiveLosses
}

// OnCooldown reports whether the symbol+direction is locked out at now.
// The opposite direction on the same symbol is unaffected.
func (t *TiltTracker) OnCooldown(symbol string, dir broker.Direction, now time.Time) (bool, string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := cooldownKey(symbol, dir)
	expiry, ok := t.cooldowns[key]
	if !ok {
		return false, ""
	}
	if now.After(expiry) {
		delete(t.cooldowns, key)
		return false, ""
	}
	return true, fmt.Sprintf("stop-loss cooldown on %s until %s", key, expiry.UTC().Format(time.RFC3339))
}

func cooldownKey(symbol string, dir broker.Direction) string {
	return strings.ToUpper(symbol) + ":" + string(dir)
}
