package patterns

import (
	"math"
	"strings"

	"forex-trading-agent/internal/broker"
	"forex-trading-agent/internal/market"
)

// Flow is one pair's short-horizon directional read.
type Flow string

const (
	FlowBullish Flow = "BULLISH"
	FlowBearish Flow = "BEARISH"
	FlowNeutral Flow = "NEUTRAL"
)

// usdIsBase marks where USD sits in each basket pair. A dollar-up move is
// bearish for quote-side pairs and bullish for base-side pairs.
var usdIsBase = map[string]bool{
	"EURUSD": false,
	"GBPUSD": false,
	"AUDUSD": false,
	"NZDUSD": false,
	"USDCHF": true,
	"USDJPY": true,
	"USDCAD": true,
}

// BasketPairs is the default correlation set.
var BasketPairs = []string{"EURUSD", "GBPUSD", "USDCHF", "USDJPY"}

// BasketConfirmation is the cross-pair agreement result for one candidate.
type BasketConfirmation struct {
	Confirmed  bool
	Confidence float64
	Agreeing   int
}

// BasketConfirmer checks whether correlated dollar pairs agree with a
// candidate's implied USD direction.
type BasketConfirmer struct {
	minAgreeing int
}

func NewBasketConfirmer(minAgreeing int) *BasketConfirmer {
	if minAgreeing <= 0 {
		minAgreeing = 1
	}
	return &BasketConfirmer{minAgreeing: minAgreeing}
}

// Confirm computes per-pair flows from the basket histories and counts
// pairs whose flow matches the candidate's USD direction. The candidate's
// own symbol never votes for itself.
func (b *BasketConfirmer) Confirm(cand Candidate, basket map[string][]market.Candle) BasketConfirmation {
	wantUSDUp, ok := impliedUSDUp(cand.Symbol, cand.Direction)
	if !ok {
		return BasketConfirmation{Confidence: 0.2}
	}

	agreeing := 0
	var confSum float64
	for symbol, candles := range basket {
		if strings.EqualFold(symbol, cand.Symbol) {
			continue
		}
		flow, conf := PairFlow(candles)
		if flow == FlowNeutral {
			continue
		}
		pairUSDUp, known := flowImpliesUSDUp(symbol, flow)
		if !known {
			continue
		}
		if pairUSDUp == wantUSDUp {
			agreeing++
			confSum += conf
		}
	}

	if agreeing < b.minAgreeing {
		return BasketConfirmation{Confidence: 0.2, Agreeing: agreeing}
	}
	return BasketConfirmation{
		Confirmed:  true,
		Confidence: math.Min(confSum/float64(agreeing), 1),
		Agreeing:   agreeing,
	}
}

// PairFlow reads the last five closed bars: flow exists when the net
// change clearly beats the average bar range.
func PairFlow(candles []market.Candle) (Flow, float64) {
	if len(candles) < 5 {
		return FlowNeutral, 0.2
	}
	recent := candles[len(candles)-5:]
	net := recent[len(recent)-1].Close - recent[0].Open
	var avgRange float64
	for _, c := range recent {
		avgRange += c.Range()
	}
	avgRange /= float64(len(recent))
	if avgRange <= 0 || math.Abs(net)/avgRange <= 0.5 {
		return FlowNeutral, 0.2
	}

	conf := math.Min(math.Abs(net)/(avgRange*2), 1)
	if net > 0 {
		return FlowBullish, conf
	}
	return FlowBearish, conf
}

// impliedUSDUp translates a trade on a pair into a dollar direction.
func impliedUSDUp(symbol string, dir broker.Direction) (bool, bool) {
	base, known := usdIsBase[strings.ToUpper(symbol)]
	if !known {
		return false, false
	}
	buying := dir == broker.Buy
	if base {
		// Buying USDxxx is buying dollars.
		return buying, true
	}
	return !buying, true
}

func flowImpliesUSDUp(symbol string, flow Flow) (bool, bool) {
	base, known := usdIsBase[strings.ToUpper(symbol)]
	if !known {
		return false, false
	}
	up := flow == FlowBullish
	if base {
		return up, true
	}
	return !up, true
}
