package market

import (
	"testing"
	"time"
)

// TestPhaseAt tests the UTC session clock
func TestPhaseAt(t *testing.T) {
	// Wednesday 2025-06-04
	day := time.Date(2025, 6, 4, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		hour int
		want SessionPhase
	}{
		{0, PhaseAccumulation},
		{7, PhaseAccumulation},
		{8, PhaseReaction},
		{12, PhaseReaction},
		{13, PhaseSolution},
		{20, PhaseSolution},
		{21, PhaseClosed},
		{23, PhaseClosed},
	}
	for _, c := range cases {
		got := PhaseAt(day.Add(time.Duration(c.hour) * time.Hour))
		if got != c.want {
			t.Errorf("Hour %02d: expected %s, got %s", c.hour, c.want, got)
		}
	}

	// Saturday should be closed regardless of hour
	sat := time.Date(2025, 6, 7, 14, 0, 0, 0, time.UTC)
	if PhaseAt(sat) != PhaseClosed {
		t.Error("Weekend should map to CLOSED phase")
	}
}

// TestActAt tests the weekly act mapping
func TestActAt(t *testing.T) {
	// 2025-06-01 is a Sunday
	sunday := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	expected := []WeeklyAct{
		ActConnector, ActInduction, ActAccumulation,
		ActReversal, ActDistribution, ActEpilogue, ActEpilogue,
	}
	for i, want := range expected {
		got := ActAt(sunday.AddDate(0, 0, i))
		if got != want {
			t.Errorf("Day offset %d: expected %s, got %s", i, want, got)
		}
	}
}

// TestTradableAct tests that Sunday and Monday are observation-only
func TestTradableAct(t *testing.T) {
	if TradableAct(ActConnector) {
		t.Error("Sunday should not be tradable")
	}
	if TradableAct(ActInduction) {
		t.Error("Monday should not be tradable")
	}
	if !TradableAct(ActReversal) {
		t.Error("Wednesday should be tradable")
	}
}

// TestInKillzone tests the New York killzone window
func TestInKillzone(t *testing.T) {
	day := time.Date(2025, 6, 4, 0, 0, 0, 0, time.UTC)
	if InKillzone(day.Add(12 * time.Hour)) {
		t.Error("12:00 UTC should be outside the killzone")
	}
	if !InKillzone(day.Add(14 * time.Hour)) {
		t.Error("14:00 UTC should be inside the killzone")
	}
	if InKillzone(day.Add(16 * time.Hour)) {
		t.Error("16:00 UTC should be outside the killzone")
	}
}

// TestPipMath tests pip size and dollar value handling
func TestPipMath(t *testing.T) {
	if PipSize("EURUSD") != 0.0001 {
		t.Error("EURUSD pip size should be 0.0001")
	}
	if PipSize("USDJPY") != 0.01 {
		t.Error("USDJPY pip size should be 0.01")
	}
	if PipDollarValue("EURUSD", 1.085) != 10 {
		t.Error("USD-quoted pip value should be $10 per lot")
	}
	jpy := PipDollarValue("USDJPY", 150.0)
	if jpy < 6.6 || jpy > 6.7 {
		t.Errorf("USDJPY pip value at 150.00 should be ~6.67, got %f", jpy)
	}
}

// TestInstrumentClass tests symbol bucketing
func TestInstrumentClass(t *testing.T) {
	if InstrumentClass("EURUSD") != "major" {
		t.Error("EURUSD should be classed as major")
	}
	if InstrumentClass("USDJPY") != "jpy_cross" {
		t.Error("USDJPY should be classed as jpy_cross")
	}
	if InstrumentClass("XAUUSD") != "metal" {
		t.Error("XAUUSD should be classed as metal")
	}
}

// TestATR tests average true range over a flat series
func TestATR(t *testing.T) {
	candles := make([]Candle, 20)
	for i := range candles {
		candles[i] = Candle{Open: 1.10, High: 1.101, Low: 1.099, Close: 1.10}
	}
	atr := ATR(candles, 14)
	if atr < 0.0019 || atr > 0.0021 {
		t.Errorf("Expected ATR ~0.002, got %f", atr)
	}

	if ATR(candles[:5], 14) != 0 {
		t.Error("ATR with insufficient data should be 0")
	}
}
