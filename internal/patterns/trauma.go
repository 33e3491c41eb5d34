package patterns

import (
	"fmt"
	"math"
	"time"

	"forex-trading-agent/internal/broker"
	"forex-trading-agent/internal/market"
)

const (
	godCandleATRMultiple = 3.0
	godCandleATRPeriod   = 14
	traumaCooldown       = 120 * time.Second
)

// TraumaTracker watches for god candles, bars whose range dwarfs recent
// volatility. A god candle freezes new entries for the symbol until the
// cooldown passes; after that, an exhaustion wick against the spike turns
// into a reversal candidate.
type TraumaTracker struct {
	active    bool
	spikeUp   bool // spike direction: true when the god candle closed up
	seenAt    time.Time
	spikeHigh float64
	spikeLow  float64
}

func NewTraumaTracker() *TraumaTracker {
	return &TraumaTracker{}
}

// Blocked reports whether entries are frozen and why.
func (t *TraumaTracker) Blocked(now time.Time) (bool, string) {
	if !t.active {
		return false, ""
	}
	if now.Sub(t.seenAt) < traumaCooldown {
		remaining := traumaCooldown - now.Sub(t.seenAt)
		return true, fmt.Sprintf("god candle cooldown, %s remaining", remaining.Round(time.Second))
	}
	return false, ""
}

// Update records new god candles and, once the cooldown has passed,
// looks for the exhaustion reversal. Emitting the candidate clears the
// tracker; so does price going quiet with no reversal.
func (t *TraumaTracker) Update(snap market.Snapshot, now time.Time) (Candidate, bool) {
	candles := snap.Candles
	if len(candles) < godCandleATRPeriod+2 {
		return Candidate{}, false
	}
	last := candles[len(candles)-1]
	atr := market.ATR(candles[:len(candles)-1], godCandleATRPeriod)

	if atr > 0 && last.Range() >= godCandleATRMultiple*atr {
		t.active = true
		t.spikeUp = last.IsBullish()
		t.seenAt = now
		t.spikeHigh = last.High
		t.spikeLow = last.Low
		return Candidate{}, false
	}

	if !t.active {
		return Candidate{}, false
	}
	if now.Sub(t.seenAt) < traumaCooldown {
		return Candidate{}, false
	}
	// Stale spike: if nothing printed an exhaustion bar within the window,
	// stand down rather than chase.
	if now.Sub(t.seenAt) > 10*traumaCooldown {
		t.active = false
		return Candidate{}, false
	}

	if t.spikeUp {
		// Spike was up: want a heavy upper wick with a bearish close.
		if last.UpperWickRatio() >= wickExhaustionRatio && !last.IsBullish() {
			cand := Candidate{
				Symbol:        snap.Symbol,
				Direction:     broker.Sell,
				Type:          TraumaReversal,
				Entry:         last.Close,
				StopExtreme:   math.Max(t.spikeHigh, last.High),
				CandleQuality: last.UpperWickRatio(),
				Reason:        "exhaustion after upward god candle",
				Time:          now,
			}
			t.active = false
			return cand, true
		}
	} else {
		if last.LowerWickRatio() >= wickExhaustionRatio && last.IsBullish() {
			cand := Candidate{
				Symbol:        snap.Symbol,
				Direction:     broker.Buy,
				Type:          TraumaReversal,
				Entry:         last.Close,
				StopExtreme:   math.Min(t.spikeLow, last.Low),
				CandleQuality: last.LowerWickRatio(),
				Reason:        "exhaustion after downward god candle",
				Time:          now,
			}
			t.active = false
			return cand, true
		}
	}
	return Candidate{}, false
}
