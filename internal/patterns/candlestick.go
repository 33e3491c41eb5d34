package patterns

import (
	"math"

	"forex-trading-agent/internal/broker"
	"forex-trading-agent/internal/market"
)

const (
	railroadMinRangePips = 10.0
	railroadMinScore     = 0.4
	starMaxBodyRatio     = 0.15
	starMinWickRatio     = 0.3
	psychTolerancePips   = 5.0
	psychBoost           = 1.2
)

// CandleScanner detects two-bar exhaustion prints: railroad tracks and
// the star after a strong move. A nearby round-number pool boosts either.
type CandleScanner struct{}

func NewCandleScanner() *CandleScanner {
	return &CandleScanner{}
}

// Scan returns the best exhaustion print on the latest bars, if any.
func (s *CandleScanner) Scan(snap market.Snapshot) (Candidate, bool) {
	candles := snap.Candles
	if len(candles) < 5 {
		return Candidate{}, false
	}
	last := candles[len(candles)-1]
	prev := candles[len(candles)-2]
	pip := market.PipSize(snap.Symbol)

	if cand, ok := s.railroad(snap, prev, last, pip); ok {
		return s.withConfluence(snap, cand), true
	}
	if cand, ok := s.star(snap, candles); ok {
		return s.withConfluence(snap, cand), true
	}
	return Candidate{}, false
}

// railroad matches two adjacent full-range bars in opposite directions,
// the second erasing the first.
func (s *CandleScanner) railroad(snap market.Snapshot, prev, last market.Candle, pip float64) (Candidate, bool) {
	prevPips := prev.Range() / pip
	lastPips := last.Range() / pip
	if prevPips < railroadMinRangePips || lastPips < railroadMinRangePips {
		return Candidate{}, false
	}
	if prev.IsBullish() == last.IsBullish() {
		return Candidate{}, false
	}

	rangeScore := math.Min((prevPips+lastPips)/(4*railroadMinRangePips), 1)
	overlap := math.Min(prev.High, last.High) - math.Max(prev.Low, last.Low)
	overlapScore := 0.0
	if span := math.Max(prev.Range(), last.Range()); span > 0 {
		overlapScore = math.Max(overlap, 0) / span
	}
	score := rangeScore*0.5 + overlapScore*0.5
	if score < railroadMinScore {
		return Candidate{}, false
	}

	dir := broker.Sell
	stop := math.Max(prev.High, last.High)
	if last.IsBullish() {
		dir = broker.Buy
		stop = math.Min(prev.Low, last.Low)
	}
	return Candidate{
		Symbol:        snap.Symbol,
		Direction:     dir,
		Type:          CandleExhaustion,
		Entry:         last.Close,
		StopExtreme:   stop,
		CandleQuality: score,
		Reason:        "railroad tracks",
	}, true
}

// star matches a tiny-bodied bar with a rejection wick after a strong
// directional push.
func (s *CandleScanner) star(snap market.Snapshot, candles []market.Candle) (Candidate, bool) {
	last := candles[len(candles)-1]
	if last.BodyRatio() > starMaxBodyRatio {
		return Candidate{}, false
	}

	// Strong prior move: net change over the previous three bars beats
	// their average range.
	prior := candles[len(candles)-4 : len(candles)-1]
	net := prior[len(prior)-1].Close - prior[0].Open
	var avgRange float64
	for _, c := range prior {
		avgRange += c.Range()
	}
	avgRange /= float64(len(prior))
	if avgRange <= 0 || math.Abs(net) < avgRange {
		return Candidate{}, false
	}

	moveUp := net > 0
	wick := last.UpperWickRatio()
	dir := broker.Sell
	stop := last.High
	if !moveUp {
		wick = last.LowerWickRatio()
		dir = broker.Buy
		stop = last.Low
	}
	if wick < starMinWickRatio {
		return Candidate{}, false
	}

	return Candidate{
		Symbol:        snap.Symbol,
		Direction:     dir,
		Type:          CandleExhaustion,
		Entry:         last.Close,
		StopExtreme:   stop,
		CandleQuality: (1 - last.BodyRatio()) * wick,
		Reason:        "star after strong move",
	}, true
}

func (s *CandleScanner) withConfluence(snap market.Snapshot, cand Candidate) Candidate {
	if market.NearPsychLevel(snap.Symbol, cand.Entry, psychTolerancePips) {
		cand.CandleQuality = math.Min(cand.CandleQuality*psychBoost, 1)
		cand.Reason += " at psych level"
	}
	return cand
}
