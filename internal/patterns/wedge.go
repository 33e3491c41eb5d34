package patterns

import (
	"fmt"
	"math"
	"time"

	"forex-trading-agent/internal/broker"
	"forex-trading-agent/internal/market"
)

// Wedge geometry thresholds.
const (
	minWedgeCandles     = 15
	maxWedgeCandles     = 60
	minTouches          = 3
	touchTolerance      = 0.0003
	convergenceRatio    = 0.6
	breakoutThreshold   = 0.0005
	wickExhaustionRatio = 0.6
	swingWindow         = 3
	rsiPeriod           = 14
	rsiOversold         = 35.0
	rsiOverbought       = 65.0
)

// WedgePhase is the lifecycle stage of a tracked wedge.
type WedgePhase string

const (
	PhaseNoPattern  WedgePhase = "NO_PATTERN"
	PhaseForming    WedgePhase = "WEDGE_FORMING"
	PhaseBreakout   WedgePhase = "BREAKOUT"
	PhaseStopHunt   WedgePhase = "STOP_HUNT"
	PhaseEntryReady WedgePhase = "ENTRY_READY"
)

// trendline is a least-squares fit through swing points: price = slope*x + intercept
// with x measured in bars from the window start.
type trendline struct {
	slope     float64
	intercept float64
	touches   int
}

func (l trendline) at(x int) float64 {
	return l.slope*float64(x) + l.intercept
}

// WedgeTracker follows one symbol through the wedge lifecycle: converging
// structure, fake breakout, stop hunt into the wick, then the reversal
// entry against the breakout. Emitting a candidate resets the tracker.
type WedgeTracker struct {
	phase       WedgePhase
	breakoutDir broker.Direction // direction price broke, trade goes the other way
	breakoutAt  time.Time
	barsAfter   int
	huntExtreme float64
	wedgeStart  float64
	convergence float64
	touches     int
	volumeSpike bool
}

func NewWedgeTracker() *WedgeTracker {
	return &WedgeTracker{phase: PhaseNoPattern}
}

func (w *WedgeTracker) Phase() WedgePhase {
	return w.phase
}

func (w *WedgeTracker) reset() {
	*w = WedgeTracker{phase: PhaseNoPattern}
}

// Update advances the tracker with the latest snapshot. It returns a
// candidate exactly once per completed lifecycle.
func (w *WedgeTracker) Update(snap market.Snapshot, now time.Time) (Candidate, bool) {
	candles := snap.Candles
	if len(candles) < minWedgeCandles {
		return Candidate{}, false
	}
	if len(candles) > maxWedgeCandles {
		candles = candles[len(candles)-maxWedgeCandles:]
	}
	last := candles[len(candles)-1]

	switch w.phase {
	case PhaseNoPattern, PhaseForming:
		upper, lower, ok := fitWedge(candles)
		if !ok {
			w.phase = PhaseNoPattern
			return Candidate{}, false
		}
		w.phase = PhaseForming
		w.touches = upper.touches + lower.touches
		w.convergence = wedgeConvergence(upper, lower, len(candles))
		w.wedgeStart = candles[0].Close
		w.volumeSpike = volumeSpike(candles)

		lastX := len(candles) - 1
		if last.Close > upper.at(lastX)+breakoutThreshold {
			w.phase = PhaseBreakout
			w.breakoutDir = broker.Buy
			w.breakoutAt = now
			w.barsAfter = 0
			w.huntExtreme = last.High
		} else if last.Close < lower.at(lastX)-breakoutThreshold {
			w.phase = PhaseBreakout
			w.breakoutDir = broker.Sell
			w.breakoutAt = now
			w.barsAfter = 0
			w.huntExtreme = last.Low
		}

	case PhaseBreakout:
		w.barsAfter++
		if w.barsAfter > 3 {
			w.reset()
			return Candidate{}, false
		}
		if w.breakoutDir == broker.Buy {
			if last.High > w.huntExtreme {
				w.huntExtreme = last.High
			}
			// Exhaustion wick on the breakout side marks the stop hunt.
			if last.UpperWickRatio() >= wickExhaustionRatio {
				w.phase = PhaseStopHunt
			}
		} else {
			if last.Low < w.huntExtreme {
				w.huntExtreme = last.Low
			}
			if last.LowerWickRatio() >= wickExhaustionRatio {
				w.phase = PhaseStopHunt
			}
		}

	case PhaseStopHunt:
		w.barsAfter++
		if w.barsAfter > 6 {
			w.reset()
			return Candidate{}, false
		}
		// A close against the hunt confirms the reversal.
		reversed := (w.breakoutDir == broker.Buy && !last.IsBullish()) ||
			(w.breakoutDir == broker.Sell && last.IsBullish())
		if reversed {
			w.phase = PhaseEntryReady
			cand := w.buildCandidate(snap, last, now)
			w.reset()
			return cand, true
		}
	}

	return Candidate{}, false
}

func (w *WedgeTracker) buildCandidate(snap market.Snapshot, last market.Candle, now time.Time) Candidate {
	dir := w.breakoutDir.Opposite()
	score := w.score(snap, last, now)

	return Candidate{
		Symbol:        snap.Symbol,
		Direction:     dir,
		Type:          WedgeReversal,
		Entry:         last.Close,
		StopExtreme:   w.huntExtreme,
		TargetLevel:   w.wedgeStart,
		CandleQuality: score,
		Reason: fmt.Sprintf("wedge %s hunt reversed, %d touches, convergence %.2f",
			w.breakoutDir, w.touches, w.convergence),
		Time: now,
	}
}

// score grades the completed setup 0-1 from its structural evidence.
func (w *WedgeTracker) score(snap market.Snapshot, last market.Candle, now time.Time) float64 {
	pts := 0.0

	pts += math.Min(float64(w.touches)/8, 1) * 15
	pts += (1 - w.convergence) * 15

	wick := last.UpperWickRatio()
	if w.breakoutDir == broker.Sell {
		wick = last.LowerWickRatio()
	}
	pts += math.Min(wick/0.8, 1) * 20

	if w.volumeSpike {
		pts += 10
	}
	// Momentum shifted if the reversal bar closed against the breakout.
	if (w.breakoutDir == broker.Buy && !last.IsBullish()) ||
		(w.breakoutDir == broker.Sell && last.IsBullish()) {
		pts += 15
	}

	rsi := market.RSI(snap.Candles, rsiPeriod)
	if (w.breakoutDir == broker.Buy && rsi >= rsiOverbought) ||
		(w.breakoutDir == broker.Sell && rsi <= rsiOversold) {
		pts += 10
	}

	pts += 5 // close back inside, required to reach this point

	if market.InKillzone(now) {
		pts += 10
	} else if h := now.UTC().Hour(); h >= 8 && h < 12 {
		pts += 5
	}

	return math.Min(pts/100, 1)
}

// fitWedge finds converging trendlines through the window's swing points.
func fitWedge(candles []market.Candle) (upper, lower trendline, ok bool) {
	highs, lows := swingPoints(candles)
	if len(highs) < 2 || len(lows) < 2 {
		return trendline{}, trendline{}, false
	}

	upper = fitLine(highs, candles, true)
	lower = fitLine(lows, candles, false)

	if upper.touches < minTouches || lower.touches < minTouches {
		return trendline{}, trendline{}, false
	}
	// Lines must converge: the channel at the end narrower than at the start.
	if wedgeConvergence(upper, lower, len(candles)) >= convergenceRatio {
		return trendline{}, trendline{}, false
	}
	return upper, lower, true
}

func wedgeConvergence(upper, lower trendline, n int) float64 {
	widthStart := upper.at(0) - lower.at(0)
	widthEnd := upper.at(n-1) - lower.at(n-1)
	if widthStart <= 0 {
		return 1
	}
	return math.Max(widthEnd, 0) / widthStart
}

// swingPoints returns indexes of local extrema over +-swingWindow bars.
func swingPoints(candles []market.Candle) (highs, lows []int) {
	for i := swingWindow; i < len(candles)-swingWindow; i++ {
		isHigh, isLow := true, true
		for j := i - swingWindow; j <= i+swingWindow; j++ {
			if j == i {
				continue
			}
			if candles[j].High >= candles[i].High {
				isHigh = false
			}
			if candles[j].Low <= candles[i].Low {
				isLow = false
			}
		}
		if isHigh {
			highs = append(highs, i)
		}
		if isLow {
			lows = append(lows, i)
		}
	}
	return highs, lows
}

// fitLine least-squares fits a line through the swing prices and counts
// touches within the adaptive tolerance.
func fitLine(idx []int, candles []market.Candle, useHigh bool) trendline {
	n := float64(len(idx))
	var sumX, sumY, sumXY, sumXX float64
	for _, i := range idx {
		y := candles[i].Low
		if useHigh {
			y = candles[i].High
		}
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	line := trendline{}
	if denom != 0 {
		line.slope = (n*sumXY - sumX*sumY) / denom
	}
	line.intercept = (sumY - line.slope*sumX) / n

	tol := adaptiveTolerance(candles)
	for _, i := range idx {
		y := candles[i].Low
		if useHigh {
			y = candles[i].High
		}
		if math.Abs(y-line.at(i)) <= tol {
			line.touches++
		}
	}
	return line
}

func adaptiveTolerance(candles []market.Candle) float64 {
	var sum float64
	for _, c := range candles {
		sum += c.Range()
	}
	avg := sum / float64(len(candles))
	return math.Max(touchTolerance, avg*0.15)
}

func volumeSpike(candles []market.Candle) bool {
	if len(candles) < 10 {
		return false
	}
	var sum float64
	for _, c := range candles[:len(candles)-1] {
		sum += c.Volume
	}
	avg := sum / float64(len(candles)-1)
	return avg > 0 && candles[len(candles)-1].Volume > avg*1.5
}
