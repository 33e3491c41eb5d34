// Package market holds the price-data model shared by the detectors and
// the risk engine: candles, quote snapshots, pip math, session clocks and
// liquidity zones.
package market

import (
	"math"
	"strings"
	"time"
)

// Candle is one OHLCV bar. Times are UTC.
type Candle struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

func (c Candle) Body() float64 {
	return math.Abs(c.Close - c.Open)
}

func (c Candle) Range() float64 {
	return c.High - c.Low
}

func (c Candle) UpperWick() float64 {
	return c.High - math.Max(c.Open, c.Close)
}

func (c Candle) LowerWick() float64 {
	return math.Min(c.Open, c.Close) - c.Low
}

func (c Candle) IsBullish() bool {
	return c.Close > c.Open
}

// BodyRatio is body size relative to the full range, 0 when the bar is flat.
func (c Candle) BodyRatio() float64 {
	r := c.Range()
	if r <= 0 {
		return 0
	}
	return c.Body() / r
}

func (c Candle) UpperWickRatio() float64 {
	r := c.Range()
	if r <= 0 {
		return 0
	}
	return c.UpperWick() / r
}

func (c Candle) LowerWickRatio() float64 {
	r := c.Range()
	if r <= 0 {
		return 0
	}
	return c.LowerWick() / r
}

// Snapshot is the immutable market view one decision cycle works from.
type Snapshot struct {
	Symbol    string
	Timeframe string
	Candles   []Candle
	Bid       float64
	Ask       float64
	Time      time.Time
}

func (s Snapshot) SpreadPips(symbol string) float64 {
	return (s.Ask - s.Bid) / PipSize(symbol)
}

func (s Snapshot) Last() Candle {
	if len(s.Candles) == 0 {
		return Candle{}
	}
	return s.Candles[len(s.Candles)-1]
}

// PipSize returns the price increment of one pip: 0.01 for JPY-quoted
// pairs, 0.0001 otherwise.
func PipSize(symbol string) float64 {
	if strings.HasSuffix(strings.ToUpper(symbol), "JPY") {
		return 0.01
	}
	return 0.0001
}

// PipDollarValue returns the account-currency value of one pip for one
// standard lot. USD-quoted pairs are a fixed $10; JPY-quoted pairs
// depend on the current rate.
func PipDollarValue(symbol string, rate float64) float64 {
	if strings.HasSuffix(strings.ToUpper(symbol), "JPY") {
		if rate <= 0 {
			return 10
		}
		return 100000 * 0.01 / rate
	}
	return 10
}

// InstrumentClass buckets a symbol for the SL/TP distance tables.
func InstrumentClass(symbol string) string {
	upper := strings.ToUpper(symbol)
	switch {
	case strings.HasPrefix(upper, "XAU"), strings.HasPrefix(upper, "XAG"):
		return "metal"
	case strings.HasSuffix(upper, "JPY"):
		return "jpy_cross"
	default:
		return "major"
	}
}

// ATR is the average true range over the trailing period, using the
// simple mean of true ranges. Returns 0 when there is not enough data.
func ATR(candles []Candle, period int) float64 {
	if len(candles) < period+1 {
		return 0
	}
	sum := 0.0
	for i := len(candles) - period; i < len(candles); i++ {
		tr := trueRange(candles[i], candles[i-1])
		sum += tr
	}
	return sum / float64(period)
}

func trueRange(c, prev Candle) float64 {
	hl := c.High - c.Low
	hc := math.Abs(c.High - prev.Close)
	lc := math.Abs(c.Low - prev.Close)
	return math.Max(hl, math.Max(hc, lc))
}

// EMA returns the exponential moving average series for the closes.
// The first value seeds with the first close.
func EMA(candles []Candle, period int) []float64 {
	if len(candles) == 0 || period <= 0 {
		return nil
	}
	k := 2.0 / (float64(period) + 1.0)
	out := make([]float64, len(candles))
	out[0] = candles[0].Close
	for i := 1; i < len(candles); i++ {
		out[i] = candles[i].Close*k + out[i-1]*(1-k)
	}
	return out
}

// RSI computes the relative strength index over the close series using
// Wilder smoothing. Returns 50 when there is not enough data.
func RSI(candles []Candle, period int) float64 {
	if len(candles) < period+1 {
		return 50
	}
	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		delta := candles[i].Close - candles[i-1].Close
		if delta > 0 {
			avgGain += delta
		} else {
			avgLoss -= delta
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	for i := period + 1; i < len(candles); i++ {
		delta := candles[i].Close - candles[i-1].Close
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}
