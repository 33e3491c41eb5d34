package patterns

import (
	"time"

	"forex-trading-agent/internal/broker"
	"forex-trading-agent/internal/market"
)

// MidweekTracker plays the weekly trap: Monday's range baits one side,
// and when price breaks the opposite extreme from Wednesday on, the week
// resolves against the bait.
type MidweekTracker struct {
	weekStart   time.Time
	mondayHigh  float64
	mondayLow   float64
	mondayClose float64
	recorded    bool
	fired       bool
}

func NewMidweekTracker() *MidweekTracker {
	return &MidweekTracker{}
}

// Update records Monday's range and emits at most one reversal candidate
// per week once price confirms the trap.
func (m *MidweekTracker) Update(snap market.Snapshot, now time.Time) (Candidate, bool) {
	now = now.UTC()
	week := mondayOf(now)
	if !week.Equal(m.weekStart) {
		*m = MidweekTracker{weekStart: week}
	}

	if !m.recorded {
		m.recordMonday(snap.Candles, week)
	}
	if !m.recorded || m.fired {
		return Candidate{}, false
	}

	act := market.ActAt(now)
	if act != market.ActReversal && act != market.ActDistribution && act != market.ActEpilogue {
		return Candidate{}, false
	}

	last := snap.Last()
	mid := (m.mondayHigh + m.mondayLow) / 2

	// Monday closing strong baited the bulls; the trap springs when price
	// later loses the Monday low. The inverse baits the bears.
	if m.mondayClose > mid && last.Close < m.mondayLow {
		m.fired = true
		return Candidate{
			Symbol:        snap.Symbol,
			Direction:     broker.Sell,
			Type:          MidweekReversal,
			Entry:         last.Close,
			StopExtreme:   m.mondayHigh,
			TargetLevel:   m.mondayLow - (m.mondayHigh - m.mondayLow),
			CandleQuality: bodyStrength(last),
			Reason:        "bullish Monday trap broken under weekly low",
			Time:          now,
		}, true
	}
	if m.mondayClose <= mid && last.Close > m.mondayHigh {
		m.fired = true
		return Candidate{
			Symbol:        snap.Symbol,
			Direction:     broker.Buy,
			Type:          MidweekReversal,
			Entry:         last.Close,
			StopExtreme:   m.mondayLow,
			TargetLevel:   m.mondayHigh + (m.mondayHigh - m.mondayLow),
			CandleQuality: bodyStrength(last),
			Reason:        "bearish Monday trap broken over weekly high",
			Time:          now,
		}, true
	}
	return Candidate{}, false
}

func (m *MidweekTracker) recordMonday(candles []market.Candle, week time.Time) {
	monEnd := week.Add(24 * time.Hour)
	var high, low, close float64
	low = 0
	for _, c := range candles {
		if c.Time.Before(week) || !c.Time.Before(monEnd) {
			continue
		}
		if c.High > high {
			high = c.High
		}
		if low == 0 || c.Low < low {
			low = c.Low
		}
		close = c.Close
	}
	if high > 0 && low > 0 {
		m.mondayHigh = high
		m.mondayLow = low
		m.mondayClose = close
		m.recorded = true
	}
}

func bodyStrength(c market.Candle) float64 {
	ratio := c.BodyRatio()
	if ratio > 1 {
		return 1
	}
	return ratio
}

func mondayOf(now time.Time) time.Time {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(now.Weekday()) - int(time.Monday) + 7) % 7
	return day.AddDate(0, 0, -offset)
}
