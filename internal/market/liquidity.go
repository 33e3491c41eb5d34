package market

import (
	"math"
	"sort"
	"time"
)

// ZoneKind identifies where a liquidity pool came from.
type ZoneKind string

const (
	ZoneDayHigh    ZoneKind = "DAY_HIGH"
	ZoneDayLow     ZoneKind = "DAY_LOW"
	ZoneAsianHigh  ZoneKind = "ASIAN_HIGH"
	ZoneAsianLow   ZoneKind = "ASIAN_LOW"
	ZoneWeeklyHigh ZoneKind = "WEEKLY_HIGH"
	ZoneWeeklyLow  ZoneKind = "WEEKLY_LOW"
	ZonePsychLevel ZoneKind = "PSYCH_LEVEL"
)

// Zone is one resting-liquidity level. Strength ranks zones when several
// sit near the current price; Swept marks zones price has already run.
type Zone struct {
	Kind     ZoneKind
	Price    float64
	Strength int
	Swept    bool
}

// SweepTolerance is how far beyond a zone price must trade for the zone
// to count as swept, in raw price units for a 4-decimal pair.
const SweepTolerance = 0.0005

// psychSteps are the pip offsets within each big figure that attract
// resting orders.
var psychSteps = []float64{0, 20, 50, 80}

// BuildZones derives the liquidity map for a symbol from its candle
// history. Day and Asian levels come from today's UTC bars, weekly levels
// from Monday's bars.
func BuildZones(symbol string, candles []Candle, now time.Time) []Zone {
	if len(candles) == 0 {
		return nil
	}
	now = now.UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	var zones []Zone

	dayHigh, dayLow, haveDay := rangeSince(candles, dayStart, now)
	if haveDay {
		zones = append(zones,
			Zone{Kind: ZoneDayHigh, Price: dayHigh, Strength: 8},
			Zone{Kind: ZoneDayLow, Price: dayLow, Strength: 8},
		)
	}

	asianEnd := dayStart.Add(8 * time.Hour)
	asianHigh, asianLow, haveAsian := rangeSince(candles, dayStart, asianEnd)
	if haveAsian {
		zones = append(zones,
			Zone{Kind: ZoneAsianHigh, Price: asianHigh, Strength: 7},
			Zone{Kind: ZoneAsianLow, Price: asianLow, Strength: 7},
		)
	}

	monStart := mondayStart(now)
	monHigh, monLow, haveMon := rangeSince(candles, monStart, monStart.Add(24*time.Hour))
	if haveMon {
		zones = append(zones,
			Zone{Kind: ZoneWeeklyHigh, Price: monHigh, Strength: 9},
			Zone{Kind: ZoneWeeklyLow, Price: monLow, Strength: 9},
		)
	}

	zones = append(zones, psychZones(symbol, candles[len(candles)-1].Close)...)

	markSwept(zones, candles)
	sort.SliceStable(zones, func(i, j int) bool { return zones[i].Strength > zones[j].Strength })
	return zones
}

// NearestUnswept returns the closest unswept zone within maxDistance of
// price, or false when none qualifies.
func NearestUnswept(zones []Zone, price, maxDistance float64) (Zone, bool) {
	best := Zone{}
	bestDist := math.MaxFloat64
	found := false
	for _, z := range zones {
		if z.Swept {
			continue
		}
		if d := math.Abs(z.Price - price); d <= maxDistance && d < bestDist {
			best, bestDist, found = z, d, true
		}
	}
	return best, found
}

// DetectSweep reports whether the bar pierced the zone and closed back on
// the original side, the stop-hunt signature.
func DetectSweep(z Zone, bar Candle) bool {
	if z.Swept {
		return false
	}
	// Zone above price: a sweep spikes through the level and closes under it.
	if bar.High >= z.Price+SweepTolerance && bar.Close < z.Price {
		return true
	}
	return bar.Low <= z.Price-SweepTolerance && bar.Close > z.Price
}

func psychZones(symbol string, price float64) []Zone {
	pip := PipSize(symbol)
	figure := pip * 100
	base := math.Floor(price/figure) * figure

	var zones []Zone
	for fig := -1; fig <= 1; fig++ {
		for _, step := range psychSteps {
			level := base + float64(fig)*figure + step*pip
			if math.Abs(level-price) <= 100*pip {
				zones = append(zones, Zone{Kind: ZonePsychLevel, Price: level, Strength: 6})
			}
		}
	}
	return zones
}

// NearPsychLevel reports whether price sits within tolerancePips of a
// round-number pool.
func NearPsychLevel(symbol string, price, tolerancePips float64) bool {
	pip := PipSize(symbol)
	figure := pip * 100
	offset := math.Mod(price, figure)
	if offset < 0 {
		offset += figure
	}
	offsetPips := offset / pip
	for _, step := range psychSteps {
		if math.Abs(offsetPips-step) <= tolerancePips || math.Abs(offsetPips-step-100) <= tolerancePips {
			return true
		}
	}
	return false
}

func markSwept(zones []Zone, candles []Candle) {
	// Only the most recent bars decide sweep state; older touches are the
	// zone's origin, not a run on it. The latest bar is left out so a
	// sweep happening right now is still the live signal, not history.
	start := len(candles) - 10
	if start < 1 {
		start = 1
	}
	for i := range zones {
		for j := start; j < len(candles)-1; j++ {
			if DetectSweep(zones[i], candles[j]) {
				zones[i].Swept = true
				break
			}
		}
	}
}

func rangeSince(candles []Candle, from, to time.Time) (high, low float64, ok bool) {
	low = math.MaxFloat64
	for _, c := range candles {
		if c.Time.Before(from) || !c.Time.Before(to) {
			continue
		}
		if c.High > high {
			high = c.High
		}
		if c.Low < low {
			low = c.Low
		}
		ok = true
	}
	if !ok {
		return 0, 0, false
	}
	return high, low, true
}

func mondayStart(now time.Time) time.Time {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(now.Weekday()) - int(time.Monday) + 7) % 7
	return day.AddDate(0, 0, -offset)
}
