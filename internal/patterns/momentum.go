package patterns

import (
	"math"
	"time"

	"forex-trading-agent/internal/broker"
	"forex-trading-agent/internal/market"
)

const (
	emaFast            = 8
	emaMid             = 21
	emaSlow            = 50
	momentumWickRatio  = 0.55
	emaMinSeparation   = 0.0005 // fraction of price between fast and slow
	momentumSwingBars  = 20
	momentumZoneReach  = 0.0020
)

// MomentumDetector is the lowest-priority fallback: stacked EMAs, a
// recent rejection wick in trend direction, and price parked at an
// unswept liquidity pool. Only runs in the London and New York sessions.
type MomentumDetector struct{}

func NewMomentumDetector() *MomentumDetector {
	return &MomentumDetector{}
}

func (m *MomentumDetector) Detect(snap market.Snapshot, zones []market.Zone, now time.Time) (Candidate, bool) {
	phase := market.PhaseAt(now)
	if phase != market.PhaseReaction && phase != market.PhaseSolution {
		return Candidate{}, false
	}
	candles := snap.Candles
	if len(candles) < emaSlow+5 {
		return Candidate{}, false
	}

	fast := market.EMA(candles, emaFast)
	mid := market.EMA(candles, emaMid)
	slow := market.EMA(candles, emaSlow)
	i := len(candles) - 1

	var dir broker.Direction
	switch {
	case fast[i] > mid[i] && mid[i] > slow[i]:
		dir = broker.Buy
	case fast[i] < mid[i] && mid[i] < slow[i]:
		dir = broker.Sell
	default:
		return Candidate{}, false
	}

	price := candles[i].Close
	if price <= 0 || math.Abs(fast[i]-slow[i])/price < emaMinSeparation {
		return Candidate{}, false
	}

	wick, ok := recentRejection(candles, dir)
	if !ok {
		return Candidate{}, false
	}

	if _, near := market.NearestUnswept(zones, price, momentumZoneReach); !near {
		return Candidate{}, false
	}

	return Candidate{
		Symbol:        snap.Symbol,
		Direction:     dir,
		Type:          MomentumReversal,
		Entry:         price,
		StopExtreme:   swingExtreme(candles, dir),
		CandleQuality: wick,
		Reason:        "ema stack with rejection at liquidity",
	}, true
}

// recentRejection finds a wick against the trend in the last 5 bars:
// sellers rejected below in an uptrend, buyers rejected above in a
// downtrend.
func recentRejection(candles []market.Candle, dir broker.Direction) (float64, bool) {
	start := len(candles) - 5
	best := 0.0
	for _, c := range candles[start:] {
		wick := c.LowerWickRatio()
		if dir == broker.Sell {
			wick = c.UpperWickRatio()
		}
		if wick > best {
			best = wick
		}
	}
	if best < momentumWickRatio {
		return 0, false
	}
	return best, true
}

// swingExtreme is the stop anchor: the lowest low (buy) or highest high
// (sell) of the trailing swing window.
func swingExtreme(candles []market.Candle, dir broker.Direction) float64 {
	start := len(candles) - momentumSwingBars
	if start < 0 {
		start = 0
	}
	if dir == broker.Buy {
		low := candles[start].Low
		for _, c := range candles[start:] {
			if c.Low < low {
				low = c.Low
			}
		}
		return low
	}
	high := candles[start].High
	for _, c := range candles[start:] {
		if c.High > high {
			high = c.High
		}
	}
	return high
}
