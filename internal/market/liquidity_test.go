package market

import (
	"testing"
	"time"
)

func hourlyCandles(start time.Time, prices []float64) []Candle {
	out := make([]Candle, len(prices))
	for i, p := range prices {
		out[i] = Candle{
			Time:  start.Add(time.Duration(i) * time.Hour),
			Open:  p,
			High:  p + 0.0010,
			Low:   p - 0.0010,
			Close: p,
		}
	}
	return out
}

// TestBuildZones tests that day and Asian levels come out of the history
func TestBuildZones(t *testing.T) {
	// Wednesday, zones built mid-session
	day := time.Date(2025, 6, 4, 0, 0, 0, 0, time.UTC)
	prices := make([]float64, 14)
	for i := range prices {
		prices[i] = 1.0850 + float64(i)*0.0002
	}
	candles := hourlyCandles(day, prices)
	now := day.Add(14 * time.Hour)

	zones := BuildZones("EURUSD", candles, now)
	if len(zones) == 0 {
		t.Fatal("Should build zones from intraday candles")
	}

	var haveDayHigh, haveAsianLow bool
	for _, z := range zones {
		switch z.Kind {
		case ZoneDayHigh:
			haveDayHigh = true
		case ZoneAsianLow:
			haveAsianLow = true
			// Asian low is the low of the first 8 hours
			want := 1.0850 - 0.0010
			if z.Price != want {
				t.Errorf("Asian low should be %f, got %f", want, z.Price)
			}
		}
	}
	if !haveDayHigh {
		t.Error("Should include a day-high zone")
	}
	if !haveAsianLow {
		t.Error("Should include an Asian-low zone")
	}
}

// TestDetectSweep tests pierce-and-close-back detection
func TestDetectSweep(t *testing.T) {
	zone := Zone{Kind: ZoneDayHigh, Price: 1.0900, Strength: 8}

	sweep := Candle{Open: 1.0885, High: 1.0912, Low: 1.0880, Close: 1.0888}
	if !DetectSweep(zone, sweep) {
		t.Error("Should detect sweep when bar pierces high and closes back under")
	}

	breakout := Candle{Open: 1.0885, High: 1.0920, Low: 1.0880, Close: 1.0915}
	if DetectSweep(zone, breakout) {
		t.Error("Should NOT count a genuine breakout close as a sweep")
	}

	shy := Candle{Open: 1.0885, High: 1.0902, Low: 1.0880, Close: 1.0890}
	if DetectSweep(zone, shy) {
		t.Error("Should NOT detect sweep inside the tolerance band")
	}
}

// TestBuildZonesKeepsLiveSweepUnmarked tests that only prior bars mark a
// zone swept; a run happening on the latest bar stays detectable
func TestBuildZonesKeepsLiveSweepUnmarked(t *testing.T) {
	day := time.Date(2025, 6, 4, 0, 0, 0, 0, time.UTC)

	var candles []Candle
	// Asian session sets the high at 1.0860
	for i := 0; i < 8; i++ {
		high := 1.0855
		if i == 3 {
			high = 1.0860
		}
		candles = append(candles, Candle{
			Time: day.Add(time.Duration(i) * time.Hour),
			Open: 1.0850, High: high, Low: 1.0840, Close: 1.0850,
		})
	}
	// Quiet London hours under the level
	for i := 8; i < 14; i++ {
		candles = append(candles, Candle{
			Time: day.Add(time.Duration(i) * time.Hour),
			Open: 1.0850, High: 1.0855, Low: 1.0845, Close: 1.0850,
		})
	}
	// The latest bar runs the Asian high and closes back under it
	candles = append(candles, Candle{
		Time: day.Add(14 * time.Hour),
		Open: 1.0856, High: 1.0868, Low: 1.0856, Close: 1.0857,
	})

	zones := BuildZones("EURUSD", candles, day.Add(14*time.Hour))
	for _, z := range zones {
		if z.Kind == ZoneAsianHigh && z.Swept {
			t.Error("A sweep on the latest bar should NOT pre-mark the zone")
		}
	}

	// The same run one bar earlier is history and does mark the zone
	candles[13] = Candle{
		Time: day.Add(13 * time.Hour),
		Open: 1.0856, High: 1.0868, Low: 1.0856, Close: 1.0857,
	}
	candles[14] = Candle{
		Time: day.Add(14 * time.Hour),
		Open: 1.0850, High: 1.0855, Low: 1.0845, Close: 1.0850,
	}
	zones = BuildZones("EURUSD", candles, day.Add(14*time.Hour))
	var sawSwept bool
	for _, z := range zones {
		if z.Kind == ZoneAsianHigh && z.Swept {
			sawSwept = true
		}
	}
	if !sawSwept {
		t.Error("A sweep on a prior bar should mark the zone swept")
	}
}

// TestNearestUnswept tests zone lookup skips swept levels
func TestNearestUnswept(t *testing.T) {
	zones := []Zone{
		{Kind: ZoneDayHigh, Price: 1.0900, Swept: true},
		{Kind: ZonePsychLevel, Price: 1.0920},
	}
	z, ok := NearestUnswept(zones, 1.0905, 0.0050)
	if !ok {
		t.Fatal("Should find an unswept zone in range")
	}
	if z.Kind != ZonePsychLevel {
		t.Error("Swept zones should be skipped")
	}

	if _, ok := NearestUnswept(zones, 1.2000, 0.0050); ok {
		t.Error("Should find nothing outside the distance cap")
	}
}

// TestNearPsychLevel tests round-number proximity
func TestNearPsychLevel(t *testing.T) {
	if !NearPsychLevel("EURUSD", 1.0852, 5) {
		t.Error("1.0852 is within 5 pips of the 50 level")
	}
	if NearPsychLevel("EURUSD", 1.0837, 5) {
		t.Error("1.0837 is not near a psych level")
	}
	if !NearPsychLevel("EURUSD", 1.0999, 5) {
		t.Error("1.0999 is within 5 pips of the big figure")
	}
}
